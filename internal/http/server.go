// Package http exposes the turn-taking decisions of the hosted agents over a small JSON API.
package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nextlevelbuilder/crosstalk/internal/a2a"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// StatusFunc reports channel status for the health endpoint.
type StatusFunc func() map[string]interface{}

// Server routes decision requests to the protocol of the addressed agent.
type Server struct {
	protocols map[string]*a2a.Protocol
	status    StatusFunc
	token     string
}

// NewServer creates a server for the given protocols. status may be nil.
// An empty token disables bearer authentication on /v1 routes.
func NewServer(protocols []*a2a.Protocol, status StatusFunc, token string) *Server {
	s := &Server{
		protocols: make(map[string]*a2a.Protocol, len(protocols)),
		status:    status,
		token:     token,
	}
	for _, p := range protocols {
		s.protocols[p.Self().ID] = p
	}
	return s
}

// Router builds the chi router with middleware and all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(metricsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/agents", s.handleListAgents)
		r.Route("/agents/{agentID}", func(r chi.Router) {
			r.Post("/evaluate", s.withMessage(s.handleEvaluate))
			r.Post("/arbitrate", s.withMessage(s.handleArbitrate))
			r.Post("/guard", s.withMessage(s.handleGuard))
			r.Post("/annotate", s.withMessage(s.handleAnnotate))
		})
	})
	return r
}

// Serve runs handler on addr until ctx ends, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	slog.Info("http server stopped")
	return nil
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && !tokenMatches(extractBearerToken(r), s.token) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type messageHandler func(w http.ResponseWriter, r *http.Request, p *a2a.Protocol, msg a2a.Message)

// withMessage resolves the addressed agent and decodes the message body.
func (s *Server) withMessage(next messageHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID := chi.URLParam(r, "agentID")
		p, ok := s.protocols[agentID]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown agent: " + agentID})
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var msg a2a.Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid message: " + err.Error()})
			return
		}
		if msg.RoomID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "room_id is required"})
			return
		}
		next(w, r, p, msg)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok"}
	if s.status != nil {
		resp["channels"] = s.status()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents := make([]a2a.Identity, 0, len(s.protocols))
	for _, p := range s.protocols {
		agents = append(agents, p.Self())
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	writeJSON(w, http.StatusOK, map[string]interface{}{"agents": agents})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request, p *a2a.Protocol, msg a2a.Message) {
	v := p.Evaluate(r.Context(), msg)
	slog.Debug("api: evaluate", "agent", p.Self().ID, "room", msg.RoomID, "respond", v.ShouldRespond, "stage", v.Stage)
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleArbitrate(w http.ResponseWriter, r *http.Request, p *a2a.Protocol, msg a2a.Message) {
	writeJSON(w, http.StatusOK, p.ClassifyAndArbitrate(r.Context(), msg))
}

func (s *Server) handleGuard(w http.ResponseWriter, r *http.Request, p *a2a.Protocol, msg a2a.Message) {
	writeJSON(w, http.StatusOK, p.LoopGuard().Decide(r.Context(), msg))
}

func (s *Server) handleAnnotate(w http.ResponseWriter, r *http.Request, p *a2a.Protocol, msg a2a.Message) {
	writeJSON(w, http.StatusOK, map[string]string{"guidance": p.AnnotateContext(r.Context(), msg)})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// tokenMatches compares tokens in constant time.
func tokenMatches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
