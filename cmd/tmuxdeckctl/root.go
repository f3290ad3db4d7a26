package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/msbrogli/tmuxdeck/internal/cliclient"
)

var (
	serverURL string
	authToken string
)

var rootCmd = &cobra.Command{
	Use:           "tmuxdeckctl",
	Short:         "Drive a tmuxdeckd server from the command line",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("TMUXDECK_SERVER", "http://127.0.0.1:7170"), "tmuxdeckd base URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("TMUXDECK_TOKEN"), "session or bridge bearer token")
	rootCmd.AddCommand(listCmd, captureCmd, screenshotCmd)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func client() *cliclient.Client {
	return cliclient.New(serverURL, authToken)
}
