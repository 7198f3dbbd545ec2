// Package web is the orchestrator's HTTP surface: the A2A endpoint, the SSE
// stream, discovery, and a small REST API with a websocket event feed.
package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mtzanidakis/quorum/internal/a2a"
	"github.com/mtzanidakis/quorum/internal/config"
	"github.com/mtzanidakis/quorum/internal/natsbus"
	"github.com/mtzanidakis/quorum/internal/store"
	"github.com/mtzanidakis/quorum/internal/stream"
	"github.com/mtzanidakis/quorum/internal/vault"
	"github.com/mtzanidakis/quorum/internal/workflow"
	"github.com/rs/cors"
)

const (
	sessionCookieName = "session"
	sessionMaxAge     = 30 * 24 * time.Hour
	shutdownTimeout   = 5 * time.Second
)

// Executor drives one workflow run.
type Executor interface {
	Execute(ctx context.Context, s *workflow.State, obs workflow.Observer) error
}

// StreamRunner answers a query as a sequence of events.
type StreamRunner interface {
	Run(ctx context.Context, query string, sink stream.Sink) error
}

type Scheduler interface {
	Add(name, schedule, query string) (*store.ScheduledQuery, error)
}

// Prober checks a specialist's /health endpoint.
type Prober interface {
	Health(ctx context.Context, base string) (*a2a.Health, error)
}

type Server struct {
	store    *store.Store
	natsURL  string
	nats     *natsbus.Client
	wf       Executor
	streamer StreamRunner
	sched    Scheduler
	vault    *vault.Vault
	prober   Prober
	hub      *Hub
	version  string

	startedAt time.Time

	cfgMu sync.RWMutex
	cfg   *config.Config
	cors  atomic.Pointer[cors.Cors]

	sessionMu sync.Mutex
	sessions  map[string]time.Time
}

func NewServer(s *store.Store, natsURL string, wf Executor, st StreamRunner, sched Scheduler, v *vault.Vault, prober Prober, cfg *config.Config, version string) *Server {
	srv := &Server{
		store:     s,
		natsURL:   natsURL,
		wf:        wf,
		streamer:  st,
		sched:     sched,
		vault:     v,
		prober:    prober,
		hub:       NewHub(),
		version:   version,
		startedAt: time.Now(),
		cfg:       cfg,
		sessions:  make(map[string]time.Time),
	}
	srv.cors.Store(newCORS(cfg.Web.CORSOrigins))
	return srv
}

func newCORS(origins []string) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
}

// UpdateConfig applies a reloaded config. Only the web section and the
// orchestrator card fields take effect here.
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
	s.cors.Store(newCORS(cfg.Web.CORSOrigins))
}

func (s *Server) config() *config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// Handler returns the full route tree wrapped in CORS and auth.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	a2a.Mount(mux, &a2a.Handler{Send: s.handleSend, Get: s.handleGet}, s.config().Orchestrator.Name, s.card)
	mux.HandleFunc("POST /stream", s.handleStream)

	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)
	mux.HandleFunc("GET /api/auth/check", s.handleAuthCheck)
	s.registerAPI(mux)
	mux.HandleFunc("GET /api/ws", s.handleWebSocket)

	return s.withMiddleware(mux)
}

// Start serves on the orchestrator address until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config().ListenAddr())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.hub.Run(ctx)
	s.subscribeEvents()
	defer s.closeEvents()

	server := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("orchestrator listening", "addr", ln.Addr().String())
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.cors.Load().ServeHTTP(w, r, func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			if strings.HasPrefix(r.URL.Path, "/api/") && s.config().Web.Auth != "" {
				if r.URL.Path != "/api/login" && r.URL.Path != "/api/auth/check" && !s.checkAuth(w, r) {
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	})
}

// checkAuth accepts a live session cookie or Basic auth with the configured
// password.
func (s *Server) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	if s.validSession(w, r) {
		return true
	}
	if _, pass, ok := r.BasicAuth(); ok && pass == s.config().Web.Auth {
		return true
	}
	w.Header().Set("WWW-Authenticate", `Basic realm="quorum"`)
	jsonError(w, "unauthorized", http.StatusUnauthorized)
	return false
}

// validSession refreshes the cookie of a live session.
func (s *Server) validSession(w http.ResponseWriter, r *http.Request) bool {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return false
	}
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	expiry, ok := s.sessions[cookie.Value]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(s.sessions, cookie.Value)
		return false
	}
	s.sessions[cookie.Value] = time.Now().Add(sessionMaxAge)
	s.setSessionCookie(w, cookie.Value)
	return true
}

func (s *Server) createSession() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)

	s.sessionMu.Lock()
	s.sessions[token] = time.Now().Add(sessionMaxAge)
	s.sessionMu.Unlock()
	return token, nil
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(sessionMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	auth := s.config().Web.Auth
	if auth == "" {
		jsonResponse(w, map[string]string{"status": "ok"})
		return
	}

	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Password != auth {
		jsonError(w, "invalid password", http.StatusUnauthorized)
		return
	}

	token, err := s.createSession()
	if err != nil {
		jsonError(w, "session creation failed", http.StatusInternalServerError)
		return
	}
	s.setSessionCookie(w, token)
	jsonResponse(w, map[string]string{"status": "ok"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		s.sessionMu.Lock()
		delete(s.sessions, cookie.Value)
		s.sessionMu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	jsonResponse(w, map[string]string{"status": "ok"})
}

func (s *Server) handleAuthCheck(w http.ResponseWriter, r *http.Request) {
	if s.config().Web.Auth == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if s.validSession(w, r) {
		jsonResponse(w, map[string]string{"status": "ok"})
		return
	}
	jsonError(w, "unauthorized", http.StatusUnauthorized)
}

// subscribeEvents forwards every bus event to the websocket hub.
func (s *Server) subscribeEvents() {
	if s.natsURL == "" {
		return
	}
	client, err := natsbus.Connect(s.natsURL)
	if err != nil {
		slog.Error("web server nats client failed", "error", err)
		return
	}
	s.nats = client

	_, err = client.Subscribe(natsbus.TopicEventsAll, func(subject string, data []byte) {
		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			slog.Warn("invalid event payload", "subject", subject, "error", err)
			return
		}
		event.Subject = subject
		s.hub.Broadcast(event)
	})
	if err != nil {
		slog.Error("subscribe events failed", "error", err)
	}
}

func (s *Server) closeEvents() {
	if s.nats != nil {
		s.nats.Close()
	}
}
