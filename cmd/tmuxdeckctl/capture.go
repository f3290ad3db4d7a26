package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/msbrogli/tmuxdeck/internal/apperr"
	"github.com/msbrogli/tmuxdeck/internal/cliclient"
)

var (
	captureWindow int
	captureOut    string
	captureAnsi   bool
)

var captureCmd = &cobra.Command{
	Use:   "capture <sessionId>",
	Short: "Capture a pane's current text content",
	Args:  cobra.ExactArgs(1),
	RunE:  runCapture,
}

func init() {
	captureCmd.Flags().IntVarP(&captureWindow, "window", "w", 0, "window index")
	captureCmd.Flags().StringVarP(&captureOut, "output", "o", "", "write to FILE instead of stdout")
	captureCmd.Flags().BoolVar(&captureAnsi, "ansi", false, "preserve ANSI escape sequences")
}

func runCapture(cmd *cobra.Command, args []string) error {
	containerID, sessionName, err := splitSessionID(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(apperr.ExitCode(err))
	}

	path := cliclient.PathEscapeTarget(containerID, sessionName, captureWindow) + "/capture"
	if captureAnsi {
		path += "?ansi=1"
	}

	out, err := client().GetBytes(cmd.Context(), path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(apperr.ExitCode(err))
	}
	return writeOutput(captureOut, out)
}

func writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
