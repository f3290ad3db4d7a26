package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/msbrogli/tmuxdeck/internal/apperr"
	"github.com/msbrogli/tmuxdeck/internal/cliclient"
)

var (
	screenshotWindow int
	screenshotOut    string
)

// screenshotCmd is capture's sibling with ANSI always preserved — a visual
// snapshot for piping into a terminal renderer, which stays out of scope here.
var screenshotCmd = &cobra.Command{
	Use:   "screenshot <sessionId>",
	Short: "Capture a pane with ANSI escapes preserved",
	Args:  cobra.ExactArgs(1),
	RunE:  runScreenshot,
}

func init() {
	screenshotCmd.Flags().IntVarP(&screenshotWindow, "window", "w", 0, "window index")
	screenshotCmd.Flags().StringVarP(&screenshotOut, "output", "o", "", "write to FILE instead of stdout")
}

func runScreenshot(cmd *cobra.Command, args []string) error {
	containerID, sessionName, err := splitSessionID(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(apperr.ExitCode(err))
	}

	path := cliclient.PathEscapeTarget(containerID, sessionName, screenshotWindow) + "/capture?ansi=1"
	out, err := client().GetBytes(cmd.Context(), path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(apperr.ExitCode(err))
	}
	return writeOutput(screenshotOut, out)
}
