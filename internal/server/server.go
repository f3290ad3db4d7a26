// Package server wires the HTTP API and the terminal/bridge WebSocket and
// notification SSE endpoints together (§6). Grounded on kojo's
// internal/server: stdlib http.ServeMux with method+pattern routes, a
// single *http.Server, and the writeJSONResponse/writeError envelope shape.
package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/msbrogli/tmuxdeck/internal/apperr"
	"github.com/msbrogli/tmuxdeck/internal/auth"
	"github.com/msbrogli/tmuxdeck/internal/bridge"
	"github.com/msbrogli/tmuxdeck/internal/debugring"
	"github.com/msbrogli/tmuxdeck/internal/metrics"
	"github.com/msbrogli/tmuxdeck/internal/notify"
	"github.com/msbrogli/tmuxdeck/internal/registry"
	"github.com/msbrogli/tmuxdeck/internal/store"
)

func metricsCollectors() []prometheus.Collector {
	return metrics.Collectors()
}

type Server struct {
	registry *registry.Registry
	hub      *bridge.Hub
	notifier *notify.Router
	push     *notify.PushManager
	gate     *auth.Gate
	pairing  *auth.Pairing
	ring     *debugring.Ring
	store    *store.Store

	logger  *slog.Logger
	version string
	httpSrv *http.Server
}

type Config struct {
	Addr     string
	Registry *registry.Registry
	Hub      *bridge.Hub
	Notifier *notify.Router
	Push     *notify.PushManager
	Gate     *auth.Gate
	Pairing  *auth.Pairing
	Ring     *debugring.Ring
	Store    *store.Store
	Logger   *slog.Logger
	Version  string
}

func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		registry: cfg.Registry,
		hub:      cfg.Hub,
		notifier: cfg.Notifier,
		push:     cfg.Push,
		gate:     cfg.Gate,
		pairing:  cfg.Pairing,
		ring:     cfg.Ring,
		store:    cfg.Store,
		logger:   logger,
		version:  cfg.Version,
	}

	s.wireCollaborators()

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /auth/status", s.handleAuthStatus)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.HandleFunc("POST /auth/pin", s.handleSetPIN)
	mux.HandleFunc("GET /auth/pair-qr", s.handlePairQR)
	mux.HandleFunc("POST /auth/pair", s.handlePair)

	mux.Handle("GET /containers", s.requireAuth(s.handleListContainers))
	mux.Handle("POST /containers", s.requireAuth(s.handleCreateContainer))
	mux.Handle("POST /containers/{id}/start", s.requireAuth(s.handleStartContainer))
	mux.Handle("POST /containers/{id}/stop", s.requireAuth(s.handleStopContainer))
	mux.Handle("PATCH /containers/{id}", s.requireAuth(s.handleRenameContainer))
	mux.Handle("DELETE /containers/{id}", s.requireAuth(s.handleRemoveContainer))

	mux.Handle("GET /containers/{id}/sessions", s.requireAuth(s.handleListSessions))
	mux.Handle("POST /containers/{id}/sessions", s.requireAuth(s.handleCreateSession))
	mux.Handle("DELETE /containers/{id}/sessions/{name}", s.requireAuth(s.handleKillSession))
	mux.Handle("PATCH /containers/{id}/sessions/{name}", s.requireAuth(s.handleRenameSession))

	mux.Handle("GET /containers/{id}/sessions/{name}/windows/{index}/capture", s.requireAuth(s.handleCapturePane))
	mux.Handle("POST /containers/{id}/sessions/{name}/windows/{index}/clear-status", s.requireAuth(s.handleClearWindowStatus))
	mux.Handle("POST /containers/{id}/sessions/{name}/windows", s.requireAuth(s.handleCreateWindow))
	mux.Handle("DELETE /containers/{id}/sessions/{name}/windows/{index}", s.requireAuth(s.handleKillWindow))
	mux.Handle("POST /containers/{id}/sessions/{name}/windows/swap", s.requireAuth(s.handleSwapWindows))
	mux.Handle("POST /containers/{id}/sessions/{name}/windows/move", s.requireAuth(s.handleMoveWindow))

	mux.Handle("GET /templates", s.requireAuth(s.handleListTemplates))
	mux.Handle("POST /templates", s.requireAuth(s.handleSaveTemplates))

	mux.Handle("GET /settings", s.requireAuth(s.handleGetSettings))
	mux.Handle("POST /settings", s.requireAuth(s.handleSaveSettings))

	mux.Handle("GET /bridges", s.requireAuth(s.handleListBridges))
	mux.Handle("POST /bridges", s.requireAuth(s.handleCreateBridge))
	mux.Handle("DELETE /bridges/{id}", s.requireAuth(s.handleDeleteBridge))

	mux.Handle("GET /telegram-chats", s.requireAuth(s.handleListTelegramChats))
	mux.Handle("POST /telegram-chats", s.requireAuth(s.handleAddTelegramChat))
	mux.Handle("DELETE /telegram-chats/{id}", s.requireAuth(s.handleRemoveTelegramChat))

	mux.Handle("GET /notifications", s.requireAuth(s.handleListNotifications))
	mux.Handle("POST /notifications/dismiss", s.requireAuth(s.handleDismissNotification))
	mux.Handle("GET /notifications/stream", s.requireAuth(s.handleNotificationStream))
	mux.Handle("POST /notifications", s.requireAuth(s.handlePostNotification))

	mux.Handle("POST /push/subscribe", s.requireAuth(s.handlePushSubscribe))
	mux.Handle("POST /push/unsubscribe", s.requireAuth(s.handlePushUnsubscribe))
	mux.Handle("GET /push/vapid", s.requireAuth(s.handleVAPIDKey))

	mux.Handle("GET /debug-log", s.requireAuth(s.handleGetDebugLog))
	mux.Handle("POST /debug-log", s.requireAuth(s.handlePostDebugLog))
	mux.Handle("DELETE /debug-log", s.requireAuth(s.handleClearDebugLog))

	mux.Handle("GET /ws/terminal/{containerId}/{sessionName}/{windowIndex}", s.requireAuth(s.handleTerminalWS))
	mux.Handle("GET /ws/bridge", http.HandlerFunc(s.handleBridgeWS)) // authenticated via first frame, not the gate

	reg := prometheus.NewRegistry()
	for _, c := range metricsCollectors() {
		_ = reg.Register(c)
	}
	// Ungated, like /health: an operational endpoint scraped by infrastructure
	// that doesn't hold a PIN session.
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	corsMw := cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           corsMw(mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return s
}

func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("server started", "addr", ln.Addr().String())
	return s.httpSrv.Serve(ln)
}

func (s *Server) SetTLSConfig(cfg *tls.Config) {
	s.httpSrv.TLSConfig = cfg
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down...")
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Helpers ---

func writeJSONResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSONResponse(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

// writeErr projects a classified error to the HTTP envelope via its Kind's
// HTTPStatus() mapping (§7); unclassified errors fall back to 500.
func writeErr(w http.ResponseWriter, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = &apperr.Error{Kind: apperr.Internal, Message: err.Error()}
	}
	writeError(w, ae.HTTPStatus(), ae.Kind.String(), ae.Error())
}
