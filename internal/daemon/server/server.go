// Package server provides the HTTP server for the testwatch daemon.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/grovetools/testwatch/errors"
	"github.com/grovetools/testwatch/internal/daemon/engine"
	"github.com/grovetools/testwatch/internal/daemon/store"
	"github.com/grovetools/testwatch/pkg/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	pongWait   = pingPeriod + 10*time.Second
)

// RunningConfig holds the active configuration being used by the daemon.
// This is exposed via the /api/config endpoint so clients can verify what config is active.
type RunningConfig struct {
	Root         string        `json:"root"`
	Include      []string      `json:"include"`
	Exclude      []string      `json:"exclude"`
	ScanInterval time.Duration `json:"scan_interval"`
	EventsFile   string        `json:"events_file"`
	Version      string        `json:"version,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
}

// Server manages the daemon's HTTP server over a Unix socket and, optionally,
// a TCP address.
type Server struct {
	logger        *logrus.Entry
	mu            sync.Mutex
	servers       []*http.Server
	shutdown      bool
	engine        *engine.Engine
	runningConfig *RunningConfig
	upgrader      websocket.Upgrader
}

// New creates a new Server instance.
func New(logger *logrus.Entry) *Server {
	return &Server{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The daemon only listens locally; clients are CLI processes.
			CheckOrigin: func(r *http.Request) bool { return r.Header.Get("Origin") == "" },
		},
	}
}

// SetEngine sets the collector engine for the server.
func (s *Server) SetEngine(eng *engine.Engine) {
	s.engine = eng
}

// SetRunningConfig sets the running configuration for the server.
func (s *Server) SetRunningConfig(cfg *RunningConfig) {
	s.runningConfig = cfg
}

// Handler returns the daemon API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Query and mutation endpoints
	mux.HandleFunc("/api/app", s.handleGetApp)
	mux.HandleFunc("/api/app/selected-file", s.handleSelectedFile)
	mux.HandleFunc("/api/workspace", s.handleGetWorkspace)
	mux.HandleFunc("/api/summary", s.handleGetSummary)
	mux.HandleFunc("/api/runner-status", s.handleGetRunnerStatus)
	mux.HandleFunc("/api/config", s.handleGetConfig)

	// Subscription endpoints
	mux.HandleFunc("/api/subscribe/", s.handleSubscribe)

	return h2c.NewHandler(mux, &http2.Server{})
}

// ListenAndServe starts the daemon on the given unix socket path.
// It blocks until the server stops or fails.
func (s *Server) ListenAndServe(socketPath string) error {
	// Cleanup stale socket
	if _, err := os.Stat(socketPath); err == nil {
		if err := os.Remove(socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}

	// Set restrictive permissions on socket
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.logger.WithField("socket", socketPath).Info("Daemon listening")
	return s.Serve(listener)
}

// ListenAndServeTCP starts the daemon on a TCP address.
func (s *Server) ListenAndServeTCP(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.logger.WithField("addr", listener.Addr().String()).Info("Daemon listening")
	return s.Serve(listener)
}

// Serve serves the API on l until Shutdown. After Shutdown it closes l and
// returns immediately.
func (s *Server) Serve(l net.Listener) error {
	srv := &http.Server{Handler: s.Handler()}
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return l.Close()
	}
	s.servers = append(s.servers, srv)
	s.mu.Unlock()
	err := srv.Serve(l)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	s.mu.Lock()
	s.shutdown = true
	servers := append([]*http.Server(nil), s.servers...)
	s.mu.Unlock()

	var firstErr error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Server) store(w http.ResponseWriter) *store.Store {
	if s.engine == nil {
		http.Error(w, "engine not initialized", http.StatusServiceUnavailable)
		return nil
	}
	return s.engine.Store()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError encodes err as a TestwatchError body.
func writeError(w http.ResponseWriter, status int, err error) {
	te, ok := err.(*errors.TestwatchError)
	if !ok {
		te = errors.Wrap(err, errors.ErrCodeInternal, "request failed")
	}
	writeJSON(w, status, te)
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// handleGetApp returns the app-level state (the selected file).
func (s *Server) handleGetApp(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	st := s.store(w)
	if st == nil {
		return
	}
	writeJSON(w, http.StatusOK, models.AppState{SelectedFile: st.SelectedFile()})
}

// handleSelectedFile handles GET/POST for the selected file.
// POST sets the selection, GET returns it.
func (s *Server) handleSelectedFile(w http.ResponseWriter, r *http.Request) {
	st := s.store(w)
	if st == nil {
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req models.SelectedFile
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, errors.InvalidInput("invalid request body"))
			return
		}
		if err := st.SetSelectedFile(req.Path); err != nil {
			s.logger.WithError(err).WithField("path", req.Path).Debug("Selection rejected")
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		s.logger.WithField("path", req.Path).Debug("Selected file updated")
		writeJSON(w, http.StatusOK, models.SelectedFile{Path: req.Path})

	case http.MethodGet:
		writeJSON(w, http.StatusOK, models.SelectedFile{Path: st.SelectedFile()})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleGetWorkspace returns the workspace listing as JSON.
func (s *Server) handleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	if st := s.store(w); st != nil {
		writeJSON(w, http.StatusOK, st.Workspace())
	}
}

// handleGetSummary returns the test summary as JSON.
func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	if st := s.store(w); st != nil {
		writeJSON(w, http.StatusOK, st.Summary())
	}
}

// handleGetRunnerStatus returns the runner status as JSON.
func (s *Server) handleGetRunnerStatus(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	if st := s.store(w); st != nil {
		writeJSON(w, http.StatusOK, st.Runner())
	}
}

// handleSubscribe streams store events for one topic over a websocket.
// Every frame carries the subscription ID assigned on connect.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	topic, ok := store.ParseTopic(strings.TrimPrefix(r.URL.Path, "/api/subscribe/"))
	if !ok {
		writeError(w, http.StatusNotFound, errors.InvalidInput("unknown subscription topic"))
		return
	}
	st := s.store(w)
	if st == nil {
		return
	}

	// Register before the handshake completes: a client whose dial has
	// returned must not miss any later change.
	ch := st.Subscribe(topic)
	defer st.Unsubscribe(topic, ch)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	log := s.logger.WithFields(logrus.Fields{"subscription": id, "topic": topic})
	log.Debug("Subscriber connected")

	// The read loop only exists to process control frames and notice the
	// client going away.
	gone := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-gone:
			log.Debug("Subscriber disconnected")
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-ch:
			if !ok {
				return
			}
			frame := models.Frame{
				ID:           id,
				Topic:        string(ev.Topic),
				SummaryDelta: ev.Summary,
				RunnerDelta:  ev.Runner,
				SelectedFile: ev.SelectedFile,
				Workspace:    ev.Workspace,
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(frame); err != nil {
				log.WithError(err).Debug("Failed to write frame")
				return
			}
		}
	}
}

// handleGetConfig returns the running configuration as JSON.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.runningConfig == nil {
		http.Error(w, "config not initialized", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.runningConfig)
}
