package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/events"
	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/metrics"
	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/session"
)

type Server struct {
	sessions SessionManager
	broker   Broker
	agent    AgentProbe
	cfg      config.Config
	upgrader websocket.Upgrader
}

type Broker interface {
	Subscribe(ctx context.Context, sessionID string) <-chan events.SessionEvent
}

type SessionManager interface {
	Create() *session.Session
	Get(id string) (*session.Session, error)
	Close(ctx context.Context, id string) error
}

// AgentProbe reports whether the agent server is reachable.
type AgentProbe interface {
	Ping(ctx context.Context) error
}

func NewServer(sessions SessionManager, broker Broker, agent AgentProbe, cfg config.Config) *Server {
	return &Server{
		sessions: sessions,
		broker:   broker,
		agent:    agent,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(quietRequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics)
	r.Use(corsMiddleware)

	r.Post("/sessions", s.createSession)
	r.Get("/sessions/{id}", s.getSession)
	r.Delete("/sessions/{id}", s.deleteSession)
	r.Post("/sessions/{id}/messages", s.addMessage)
	r.Post("/sessions/{id}/cancel", s.cancelSession)
	r.Get("/sessions/{id}/timeline", s.getTimeline)
	r.Get("/sessions/{id}/archive/{messageID}", s.getArchive)
	r.Get("/sessions/{id}/events", s.streamEvents)
	r.Get("/sessions/{id}/ws", s.streamWebSocket)
	r.Get("/effort", s.listEffort)
	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}

func quietRequestLogger(next http.Handler) http.Handler {
	logged := middleware.Logger(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shouldSuppressRequestLog(r.Method, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		logged.ServeHTTP(w, r)
	})
}

func shouldSuppressRequestLog(method string, path string) bool {
	cleanPath := strings.TrimSpace(path)
	if method == http.MethodGet && (strings.HasSuffix(cleanPath, "/events") || strings.HasSuffix(cleanPath, "/ws")) {
		return true
	}
	if method == http.MethodGet && (cleanPath == "/health" || cleanPath == "/metrics") {
		return true
	}
	if method == http.MethodOptions && strings.HasSuffix(cleanPath, "/messages") {
		return true
	}
	return false
}

// requestMetrics records every request under its route pattern so that
// session ids do not explode label cardinality.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHTTPRequest(r.Method, path, strconv.Itoa(status), time.Since(start))
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type subsystemStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type readinessResponse struct {
	Status     string                     `json:"status"`
	Subsystems map[string]subsystemStatus `json:"subsystems"`
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	subsystems := map[string]subsystemStatus{}
	overall := http.StatusOK

	if s.agent == nil {
		subsystems["agent"] = subsystemStatus{Status: "skipped"}
	} else if err := s.agent.Ping(ctx); err != nil {
		subsystems["agent"] = subsystemStatus{Status: "error", Error: err.Error()}
		overall = http.StatusServiceUnavailable
	} else {
		subsystems["agent"] = subsystemStatus{Status: "ok"}
	}

	status := "ok"
	if overall != http.StatusOK {
		status = "degraded"
	}
	writeJSONStatus(w, readinessResponse{Status: status, Subsystems: subsystems}, overall)
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(value)
}

func writeJSONStatus(w http.ResponseWriter, value any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Last-Event-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()
	return server.ListenAndServe()
}
