// Package webserver exposes the relay over HTTP: the hook intake, a state
// query and the websocket feed.
package webserver

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/zsprackett/agent-pulse/internal/activity"
	"github.com/zsprackett/agent-pulse/internal/hook"
	"github.com/zsprackett/agent-pulse/internal/hub"
)

const maxHookBody = 64 << 10

type TLSConfig struct {
	Mode     string // "self-signed", "manual", or "" (disabled)
	CertFile string
	KeyFile  string
	CacheDir string
}

type Config struct {
	Host string
	Port int
	TLS  TLSConfig
}

// StateMachine is the part of monitor.Machine the server drives.
type StateMachine interface {
	Emit(mode activity.Mode, protection time.Duration)
	Snapshot() activity.StateMessage
}

type Server struct {
	machine StateMachine
	hub     *hub.Hub
	cfg     Config
	logger  *slog.Logger

	srv *http.Server
	ln  net.Listener
}

func New(machine StateMachine, h *hub.Hub, cfg Config, logger *slog.Logger) *Server {
	return &Server{
		machine: machine,
		hub:     h,
		cfg:     cfg,
		logger:  logger,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /hook", s.handleHook)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /ws", s.hub.HandleWS)
	return logRequests(s.logger, mux)
}

// Start binds the listener and serves in the background. Bind errors are
// returned; serve errors are logged.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	tlsCfg, err := s.tlsConfig()
	if err != nil {
		ln.Close()
		return fmt.Errorf("tls: %w", err)
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}

	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("webserver: serve failed", "err", err)
		}
	}()
	s.logger.Info("webserver: listening", "addr", ln.Addr().String(), "tls", tlsCfg != nil)
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown disconnects websocket clients and stops accepting requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) tlsConfig() (*tls.Config, error) {
	switch s.cfg.TLS.Mode {
	case "":
		return nil, nil
	case "self-signed":
		return selfSignedTLS(s.cfg.TLS.CacheDir)
	case "manual":
		cert, err := tls.LoadX509KeyPair(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		if err != nil {
			return nil, err
		}
		return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
	default:
		return nil, fmt.Errorf("unknown mode %q", s.cfg.TLS.Mode)
	}
}

func (s *Server) handleHook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxHookBody)
	e, err := hook.Decode(r.Body)
	if err != nil {
		s.logger.Debug("webserver: rejected hook body", "err", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON"})
		return
	}

	if d, ok := hook.Classify(e); ok {
		s.machine.Emit(d.Mode, d.Protection)
	} else {
		s.logger.Debug("webserver: ignored hook", "type", e.Type, "tool", e.Tool)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type stateResponse struct {
	Mode activity.Mode `json:"mode"`
	Ts   int64         `json:"ts"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap := s.machine.Snapshot()
	writeJSON(w, http.StatusOK, stateResponse{Mode: snap.Mode, Ts: snap.Timestamp})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "clients": s.hub.Count()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
