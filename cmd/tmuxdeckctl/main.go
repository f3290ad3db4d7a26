// Command tmuxdeckctl is the thin CLI client over tmuxdeckd's HTTP API
// (§6): list/capture/screenshot, undecorated, no TUI rendering. Exit codes
// mirror apperr.ExitCode so scripts can branch on the same classification
// the server itself uses.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(64)
	}
}
