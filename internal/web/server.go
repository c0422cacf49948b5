package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/conorfennell/ankibot/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"
)

const (
	defaultLimit = 20
	maxLimit     = 200
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	db     *storage.DB
	router chi.Router
	logger *zap.Logger
}

// NewServer creates and configures a new server.
func NewServer(db *storage.DB, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		db:     db,
		router: chi.NewRouter(),
		logger: logger,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.logRequests)
	s.router.Use(httprate.LimitByIP(100, time.Minute))

	s.router.Get("/healthz", s.handleHealth())
	s.router.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.handleListSessions())
		r.Get("/{id}", s.handleGetSession())
		r.Get("/{id}/reviews", s.handleListReviews())
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// handleHealth reports whether the history database answers.
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.Ping(); err != nil {
			s.logger.Error("health check failed", zap.Error(err))
			s.respondError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// sessionResponse is a stored session as the API shows it.
type sessionResponse struct {
	storage.Session
	EndedAt *time.Time `json:"ended_at,omitempty"`
}

func toResponse(sess storage.Session) sessionResponse {
	out := sessionResponse{Session: sess}
	if sess.EndedAt.Valid {
		t := sess.EndedAt.Time
		out.EndedAt = &t
	}
	return out
}

// handleListSessions lists recent sessions, optionally for one owner.
func (s *Server) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = min(n, maxLimit)
		}

		sessions, err := s.db.RecentSessions(r.URL.Query().Get("owner"), limit)
		if err != nil {
			s.logger.Error("failed to list sessions", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		out := make([]sessionResponse, 0, len(sessions))
		for _, sess := range sessions {
			out = append(out, toResponse(sess))
		}
		s.respondJSON(w, http.StatusOK, out)
	}
}

// handleGetSession shows a single session.
func (s *Server) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.findSession(w, chi.URLParam(r, "id"))
		if !ok {
			return
		}
		s.respondJSON(w, http.StatusOK, toResponse(*sess))
	}
}

// handleListReviews lists the ratings given in a session.
func (s *Server) handleListReviews() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, ok := s.findSession(w, id); !ok {
			return
		}
		reviews, err := s.db.ReviewsBySession(id)
		if err != nil {
			s.logger.Error("failed to list reviews", zap.String("session_id", id), zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		s.respondJSON(w, http.StatusOK, reviews)
	}
}

// findSession writes the error response itself when it returns false.
func (s *Server) findSession(w http.ResponseWriter, id string) (*storage.Session, bool) {
	sess, err := s.db.FindSession(id)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("failed to find session", zap.String("session_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}
	return sess, true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
