package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/almcoach/internal/metrics"
	"github.com/MikeSquared-Agency/almcoach/internal/processor"
	"github.com/MikeSquared-Agency/almcoach/internal/ratelimit"
	"github.com/MikeSquared-Agency/almcoach/internal/session"
)

const (
	maxBodyBytes  = 1 << 20
	maxAudioBytes = 10 << 20
)

type Server struct {
	router *chi.Mux
	port   int
	proc   *processor.Processor
	logger *slog.Logger
}

func NewServer(port int, apiToken string, proc *processor.Processor, m *metrics.Metrics, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   port,
		proc:   proc,
		logger: logger,
	}

	router.Get("/health", s.health)
	router.Handle("/metrics", m.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Get("/almcoach/status", s.status)
		r.Get("/almcoach/performance", s.performance)
		r.Post("/calls", s.startCall)
		r.Route("/calls/{callID}", func(r chi.Router) {
			r.Delete("/", s.endCall)
			r.Get("/", s.snapshot)
			r.Post("/utterances", s.utterance)
			r.Post("/audio", s.audio)
			r.Get("/progress", s.progress)
			r.Post("/suggestions/{trackingID}/used", s.markUsed)
			r.Get("/ws", s.stream)
		})
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// BearerAuthMiddleware rejects requests without the configured token. An
// empty token disables the check.
func BearerAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		want := "Bearer " + token
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != want {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"status": "error", "error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"agent":     "almcoach",
		"status":    "ok",
		"processor": s.proc.Status(),
	})
}

func (s *Server) performance(w http.ResponseWriter, r *http.Request) {
	top := 10
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid top %q", v))
			return
		}
		top = n
	}
	writeJSON(w, http.StatusOK, s.proc.Performance(top))
}

type startCallRequest struct {
	CallID string `json:"call_id"`
	session.Profile
}

func (s *Server) startCall(w http.ResponseWriter, r *http.Request) {
	var req startCallRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.CallID) == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("call_id is required"))
		return
	}
	res, err := s.proc.StartCall(r.Context(), req.CallID, req.Profile)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) endCall(w http.ResponseWriter, r *http.Request) {
	sum, err := s.proc.EndCall(r.Context(), chi.URLParam(r, "callID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "success",
		"call_id":            sum.CallID,
		"final_stage":        sum.FinalStage,
		"appointment_set":    sum.AppointmentSet,
		"alm_completion":     sum.ALMCompletion,
		"qualification":      sum.Qualification,
		"collected_info":     sum.Collected,
		"next_steps":         sum.NextSteps,
		"objections":         sum.Objections,
		"needs":              sum.Needs,
		"turns":              sum.Turns,
		"suggestions_served": sum.SuggestionsServed,
		"suggestions_used":   sum.SuggestionsUsed,
		"duration_seconds":   int(sum.Duration.Seconds()),
	})
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.proc.Snapshot(chi.URLParam(r, "callID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) utterance(w http.ResponseWriter, r *http.Request) {
	var in processor.Input
	if err := decode(w, r, &in); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.proc.HandleUtterance(r.Context(), chi.URLParam(r, "callID"), in)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) audio(w http.ResponseWriter, r *http.Request) {
	audio, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.proc.HandleAudio(r.Context(), chi.URLParam(r, "callID"), audio, r.URL.Query().Get("speaker"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if res == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) progress(w http.ResponseWriter, r *http.Request) {
	p, err := s.proc.Progress(chi.URLParam(r, "callID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) markUsed(w http.ResponseWriter, r *http.Request) {
	err := s.proc.MarkSuggestionUsed(r.Context(), chi.URLParam(r, "callID"), chi.URLParam(r, "trackingID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// errorBody is the error envelope. It carries an empty suggestion payload
// so clients can render it like a turn result.
type errorBody struct {
	Status       string   `json:"status"`
	Error        string   `json:"error"`
	RetryAfter   int      `json:"retry_after,omitempty"`
	Primary      any      `json:"primary_suggestion"`
	Alternatives []any    `json:"alternative_suggestions"`
	Warnings     []string `json:"warnings"`
}

func newErrorBody(err error) errorBody {
	return errorBody{Status: "error", Error: err.Error(), Alternatives: []any{}, Warnings: []string{}}
}

// statusFor maps processor errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ratelimit.ErrLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, session.ErrNotFound), errors.Is(err, processor.ErrUnknownSuggestion):
		return http.StatusNotFound
	case errors.Is(err, session.ErrExists):
		return http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	case errors.Is(err, processor.ErrEmptyUtterance):
		return http.StatusBadRequest
	case errors.Is(err, processor.ErrTranscriptionUnavailable):
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	code := statusFor(err)
	body := newErrorBody(err)
	if body.RetryAfter = retryAfter(err); body.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(body.RetryAfter))
	}
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, code, body)
}

func retryAfter(err error) int {
	var le *ratelimit.LimitError
	if errors.As(err, &le) {
		return le.RetryAfterSeconds()
	}
	return 0
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, newErrorBody(err))
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
