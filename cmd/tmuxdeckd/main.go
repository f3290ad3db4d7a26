// Command tmuxdeckd is the TmuxDeck server core: it discovers tmux sessions
// across direct, container, host-socket, and bridge sources, mediates
// terminal WebSocket traffic between clients and panes, and routes session
// notifications across web/os/telegram channels (§6). Lifecycle and listener
// setup are carried over from kojo's cmd/kojo/main.go.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"tailscale.com/tsnet"

	"github.com/msbrogli/tmuxdeck/internal/auth"
	"github.com/msbrogli/tmuxdeck/internal/bridge"
	"github.com/msbrogli/tmuxdeck/internal/config"
	"github.com/msbrogli/tmuxdeck/internal/debugring"
	"github.com/msbrogli/tmuxdeck/internal/dockerclient"
	"github.com/msbrogli/tmuxdeck/internal/model"
	"github.com/msbrogli/tmuxdeck/internal/notify"
	"github.com/msbrogli/tmuxdeck/internal/registry"
	"github.com/msbrogli/tmuxdeck/internal/server"
	"github.com/msbrogli/tmuxdeck/internal/store"
	"github.com/msbrogli/tmuxdeck/internal/telegram"
)

var version = "0.1.0"

func main() {
	local := flag.Bool("local", false, "listen on localhost only (no Tailscale)")
	showVersion := flag.Bool("version", false, "show version")
	flag.Parse()

	if *showVersion {
		fmt.Println("tmuxdeckd", version)
		return
	}

	cfg := config.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	st := store.New(cfg.DataDir, logger)

	var docker *dockerclient.Client
	if d, err := dockerclient.New(cfg.DockerSocket, cfg.ContainerNamePrefix); err != nil {
		logger.Warn("docker unavailable, container sources disabled", "err", err)
	} else {
		docker = d
	}

	hub := bridge.NewHub()

	reg := registry.New(registry.Deps{
		Docker:      docker,
		Hub:         hub,
		HostSocket:  cfg.HostTmuxSocket,
		LocalSocket: localSocketPath(cfg),
		NamePrefix:  cfg.ContainerNamePrefix,
		Templates: func() []model.Template {
			doc, err := st.LoadTemplates()
			if err != nil {
				logger.Warn("load templates", "err", err)
				return nil
			}
			return doc.Templates
		},
		BridgeRecords: func() []model.BridgeRecord {
			doc, err := st.LoadBridges()
			if err != nil {
				logger.Warn("load bridges", "err", err)
				return nil
			}
			return doc.Bridges
		},
		Logger: logger,
	})

	push, err := notify.NewPushManager(cfg.DataDir, logger)
	if err != nil {
		logger.Error("failed to init push manager", "err", err)
		os.Exit(1)
	}

	// telegramSender stays a true nil interface (not a nil *telegram.Client)
	// when no bot token is configured, so Router's r.telegram == nil check
	// skips the fallback instead of calling through a nil receiver.
	var telegramSender notify.TelegramSender
	if cfg.TelegramBotToken != "" {
		telegramSender = telegram.New(cfg.TelegramBotToken)
	}

	router := notify.NewRouter(telegramSender, push, func() []string {
		chats, err := st.LoadTelegramChats()
		if err != nil {
			logger.Warn("load telegram chats", "err", err)
			return nil
		}
		return chats
	}, cfg.TelegramTimeoutSecs, logger)

	gate, err := auth.New(st)
	if err != nil {
		logger.Error("failed to init auth gate", "err", err)
		os.Exit(1)
	}
	pairing := auth.NewPairing()

	ring := debugring.New(debugring.NewSlackWebhookSink(cfg.SlackWebhookURL))

	srv := server.New(server.Config{
		Addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Registry: reg,
		Hub:      hub,
		Notifier: router,
		Push:     push,
		Gate:     gate,
		Pairing:  pairing,
		Ring:     ring,
		Store:    st,
		Logger:   logger,
		Version:  version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := cron.New(cron.WithSeconds())
	registerSchedule(sched, cfg, reg, hub, gate, st, logger)
	sched.Start()
	defer sched.Stop()

	if cfg.TemplatesDir != "" {
		stopWatch, err := st.WatchTemplatesDir(cfg.TemplatesDir, func() {
			logger.Info("templates directory changed")
		})
		if err != nil {
			logger.Warn("failed to watch templates dir", "err", err)
		} else {
			defer stopWatch()
		}
	}

	if *local {
		ln, err := listenWithFallback(cfg.Host, cfg.Port, 10, logger)
		if err != nil {
			logger.Error("failed to listen", "err", err)
			os.Exit(1)
		}
		actualAddr := ln.Addr().String()
		fmt.Fprintf(os.Stderr, "\n  tmuxdeckd v%s running at:\n\n    http://%s\n\n", version, actualAddr)
		go func() {
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				logger.Error("server error", "err", err)
				os.Exit(1)
			}
		}()
	} else {
		tsServer := &tsnet.Server{
			Hostname: "tmuxdeck",
			Logf:     func(format string, args ...any) { logger.Debug(fmt.Sprintf(format, args...)) },
		}

		ln, err := tsServer.ListenTLS("tcp", fmt.Sprintf(":%d", cfg.Port))
		if err != nil {
			logger.Error("failed to listen on tailscale", "err", err)
			os.Exit(1)
		}

		fmt.Fprintf(os.Stderr, "\n  tmuxdeckd v%s running at:\n\n", version)
		lc, _ := tsServer.LocalClient()
		if lc != nil {
			if status, err := lc.Status(ctx); err == nil {
				if status.Self != nil {
					dnsName := strings.TrimSuffix(status.Self.DNSName, ".")
					if dnsName != "" {
						if cfg.Port == 443 {
							fmt.Fprintf(os.Stderr, "    https://%s\n", dnsName)
						} else {
							fmt.Fprintf(os.Stderr, "    https://%s:%d\n", dnsName, cfg.Port)
						}
					}
				}
				for _, ip := range status.TailscaleIPs {
					fmt.Fprintf(os.Stderr, "    https://%s:%d\n", ip, cfg.Port)
				}
			} else {
				logger.Warn("could not get tailscale status", "err", err)
			}
		}
		fmt.Fprintln(os.Stderr)

		go func() {
			srv.SetTLSConfig(&tls.Config{})
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				logger.Error("server error", "err", err)
				os.Exit(1)
			}
		}()

		defer tsServer.Close()
	}

	<-ctx.Done()
	logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
}

// localSocketPath returns the tmux socket used for TmuxDeck's own "local"
// container-less source, rooted under the data dir unless overridden.
func localSocketPath(cfg *config.Config) string {
	return cfg.DataDir + "/tmuxdeck.sock"
}

// registerSchedule wires the periodic jobs §4.B/§4.D/§6 expect: container
// and session reconciliation, bridge liveness sweeps, and auth session
// expiry. The intervals are fixed (3s, 15s and 1m), with no jitter.
func registerSchedule(sched *cron.Cron, cfg *config.Config, reg *registry.Registry, hub *bridge.Hub, gate *auth.Gate, st *store.Store, logger *slog.Logger) {
	_, err := sched.AddFunc("@every 3s", func() {
		if err := reg.Poll(context.Background()); err != nil {
			logger.Debug("registry poll", "err", err)
		}
	})
	if err != nil {
		logger.Error("failed to schedule registry poll", "err", err)
	}

	_, err = sched.AddFunc("@every 15s", func() {
		hub.SweepStale(time.Duration(cfg.ReportIntervalSecs*4) * time.Second)
	})
	if err != nil {
		logger.Error("failed to schedule bridge sweep", "err", err)
	}

	_, err = sched.AddFunc("@every 1m", gate.SweepExpired)
	if err != nil {
		logger.Error("failed to schedule session sweep", "err", err)
	}
}

func listenWithFallback(host string, startPort, maxAttempts int, logger *slog.Logger) (net.Listener, error) {
	for i := range maxAttempts {
		port := startPort + i
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			if i > 0 {
				logger.Info("port was busy, using fallback", "requested", startPort, "actual", port)
			}
			return ln, nil
		}
		if !strings.Contains(err.Error(), "address already in use") {
			return nil, err
		}
	}
	return nil, fmt.Errorf("all ports %d-%d are in use", startPort, startPort+maxAttempts-1)
}
