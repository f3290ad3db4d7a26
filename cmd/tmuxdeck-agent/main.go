// Command tmuxdeck-agent runs on a remote host outside the server's direct
// reach (no shared Docker daemon, no shared tmux socket) and bridges its
// local tmux sessions back to a tmuxdeckd instance over a reverse WebSocket
// (§4.D). It is a thin wrapper around internal/bridgeagent.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/msbrogli/tmuxdeck/internal/adapter"
	"github.com/msbrogli/tmuxdeck/internal/bridgeagent"
)

var version = "0.1.0"

func main() {
	url := flag.String("url", "", "bridge hub WebSocket URL (wss://host/ws/bridge)")
	token := flag.String("token", "", "bridge token issued by the server")
	name := flag.String("name", "", "display name reported to the server")
	socket := flag.String("socket", "", "tmux socket path (-S); empty uses the default socket")
	reportSecs := flag.Int("report-interval", 5, "session report interval, in seconds")
	showVersion := flag.Bool("version", false, "show version")
	flag.Parse()

	if *showVersion {
		fmt.Println("tmuxdeck-agent", version)
		return
	}
	if *url == "" || *token == "" {
		fmt.Fprintln(os.Stderr, "usage: tmuxdeck-agent -url wss://host/ws/bridge -token <token> [-name host1]")
		os.Exit(64)
	}
	if *name == "" {
		if h, err := os.Hostname(); err == nil {
			*name = h
		} else {
			*name = "agent"
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	a := &bridgeagent.Agent{
		URL:            *url,
		Token:          *token,
		Name:           *name,
		Adapter:        adapter.NewLocalAdapter(*socket),
		ReportInterval: time.Duration(*reportSecs) * time.Second,
		Logger:         logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("agent exited", "err", err)
		os.Exit(1)
	}
}
