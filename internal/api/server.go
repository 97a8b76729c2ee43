// Package api exposes the turn engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	apperrors "medchat-engine/internal/common/errors"
	"medchat-engine/internal/common/validation"
	orchestrateturn "medchat-engine/internal/dialogue/orchestrate-turn"
	"medchat-engine/internal/models"
)

const (
	Name = "api"

	HeaderRequestID = "X-Request-ID"

	defaultMaxBodyBytes = 1 << 20
	readinessTimeout    = 2 * time.Second
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type TurnHandler interface {
	Execute(ctx context.Context, req *models.TurnRequest) (*models.TurnResponse, error)
}

// ReadinessCheck is one dependency probed by GET /ready.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Config struct {
	RateLimitRPS   float64
	RateLimitBurst int
	MaxBodyBytes   int64
}

type Server struct {
	config    *Config
	turns     TurnHandler
	checks    []ReadinessCheck
	validator *validation.Validator
	limiter   *rate.Limiter
	errors    *apperrors.ErrorHandler
	logger    Logger
}

func NewServer(config *Config, turns TurnHandler, checks []ReadinessCheck, log Logger) *Server {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaultMaxBodyBytes
	}
	limit := rate.Inf
	if config.RateLimitRPS > 0 {
		limit = rate.Limit(config.RateLimitRPS)
	}
	burst := config.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	l := log.With(map[string]interface{}{
		"component": Name,
	})
	return &Server{
		config:    config,
		turns:     turns,
		checks:    checks,
		validator: validation.NewTurnRequestValidator(),
		limiter:   rate.NewLimiter(limit, burst),
		errors:    apperrors.NewErrorHandler(l),
		logger:    l,
	}
}

// Routes returns the service mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(HeaderRequestID, requestID)

	if !s.limiter.Allow() {
		s.errors.WriteError(w, requestID, apperrors.NewRateLimitedError())
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		s.errors.WriteError(w, requestID, apperrors.NewInvalidRequestError(err.Error()))
		return
	}

	result := s.validator.ValidateBytes(body)
	if !result.Valid {
		stdErr := apperrors.NewInvalidRequestError(strings.Join(result.GetErrorMessages(), "; ")).
			WithMetadata("errors", result.Errors)
		s.errors.WriteError(w, requestID, stdErr)
		return
	}

	var req models.TurnRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.errors.WriteError(w, requestID, apperrors.NewInvalidRequestError(err.Error()))
		return
	}
	if req.Language == "" {
		req.Language = models.LanguageAuto
	}

	resp, err := s.turns.Execute(orchestrateturn.WithRequestID(r.Context(), requestID), &req)
	if err != nil {
		s.errors.WriteError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(s.checks))
	for _, c := range s.checks {
		if err := c.Check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[c.Name] = err.Error()
			s.logger.Warn("readiness check failed", map[string]interface{}{
				"check": c.Name,
				"error": err.Error(),
			})
			continue
		}
		results[c.Name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	writeJSON(w, status, map[string]interface{}{
		"status": state,
		"checks": results,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
