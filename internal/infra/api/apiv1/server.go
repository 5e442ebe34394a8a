package apiv1

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"telegram-media-relay/internal/domain"
	"telegram-media-relay/internal/infra/logging"
	"telegram-media-relay/internal/infra/metrics"
	"telegram-media-relay/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type Server struct {
	relay usecase.RelayUseCase
	auth  *AuthManager
	log   *zerolog.Logger
}

func NewServer(relay usecase.RelayUseCase, auth *AuthManager, logger *zerolog.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Server{relay: relay, auth: auth, log: logger}
}

// RegisterAPIV1 mounts the /api/v1 routes on r.
func RegisterAPIV1(r chi.Router, s *Server) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth", s.issueToken)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Require)
			r.Use(s.requireRelay)
			r.Get("/queues/{tgID}", s.getQueue)
			r.Delete("/queues/{tgID}", s.cancelQueue)
			r.Post("/queues/{tgID}/jobs", s.enqueueJob)
			r.Get("/queues/{tgID}/history", s.listHistory)
		})
	})
}

func (s *Server) requireRelay(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.relay == nil {
			writeError(w, http.StatusNotImplemented, "relay is not wired")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) issueToken(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		writeError(w, http.StatusForbidden, "admin api is not configured")
		return
	}
	key := r.Header.Get("X-API-Key")
	if key == "" {
		var body struct {
			APIKey string `json:"api_key"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 4<<10)).Decode(&body); err == nil {
			key = body.APIKey
		}
	}
	if key == "" || !s.auth.CheckKey(key) {
		metrics.IncAdminCommand("auth", "unauthorized")
		writeError(w, http.StatusUnauthorized, "invalid api key")
		return
	}
	tok, exp, err := s.auth.Mint()
	if err != nil {
		s.log.Error().Err(err).Msg("mint admin token")
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	metrics.IncAdminCommand("auth", "authorized")
	writeJSON(w, http.StatusOK, tokenResponse{Token: tok, ExpiresAt: exp})
}

type queueResponse struct {
	TgID    int64 `json:"tg_id"`
	Pending int   `json:"pending"`
	Busy    bool  `json:"busy"`
}

func (s *Server) getQueue(w http.ResponseWriter, r *http.Request) {
	id, ok := tgIDParam(w, r)
	if !ok {
		return
	}
	metrics.IncAdminCommand("queue_get", "authorized")
	writeJSON(w, http.StatusOK, queueResponse{
		TgID:    id,
		Pending: s.relay.Pending(r.Context(), id),
		Busy:    s.relay.IsBusy(r.Context(), id),
	})
}

func (s *Server) cancelQueue(w http.ResponseWriter, r *http.Request) {
	id, ok := tgIDParam(w, r)
	if !ok {
		return
	}
	n := s.relay.Cancel(r.Context(), id)
	metrics.IncAdminCommand("queue_cancel", "authorized")
	s.log.Info().Int64("tg_id", id).Int("cancelled", n).Msg("queue cancelled via admin api")
	writeJSON(w, http.StatusOK, map[string]int{"cancelled": n})
}

type enqueueRequest struct {
	URL    string `json:"url"`
	ChatID int64  `json:"chat_id"`
}

type enqueueResponse struct {
	JobID    string `json:"job_id"`
	Position int    `json:"position"`
}

func (s *Server) enqueueJob(w http.ResponseWriter, r *http.Request) {
	id, ok := tgIDParam(w, r)
	if !ok {
		return
	}
	var req enqueueRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 16<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if u, err := url.Parse(req.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		writeError(w, http.StatusUnprocessableEntity, "url must be an absolute http(s) url")
		return
	}
	if req.ChatID == 0 {
		// private chats share the user id
		req.ChatID = id
	}

	job, pos, err := s.relay.EnqueueURL(r.Context(), id, req.ChatID, req.URL)
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, domain.ErrNotAllowed):
		writeError(w, http.StatusServiceUnavailable, "relay is shutting down")
		return
	case err != nil:
		s.log.Error().Err(err).Int64("tg_id", id).Msg("enqueue via admin api")
		writeError(w, http.StatusInternalServerError, "could not enqueue job")
		return
	}
	metrics.IncAdminCommand("queue_enqueue", "authorized")
	writeJSON(w, http.StatusAccepted, enqueueResponse{JobID: job.ID, Position: pos})
}

type historyItem struct {
	JobID      string    `json:"job_id"`
	Kind       string    `json:"kind"`
	Source     string    `json:"source"`
	FileName   string    `json:"file_name,omitempty"`
	Status     string    `json:"status"`
	Result     string    `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := tgIDParam(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	recs, err := s.relay.History(r.Context(), id, limit)
	if err != nil {
		s.log.Error().Err(err).Int64("tg_id", id).Msg("list history")
		writeError(w, http.StatusInternalServerError, "could not read history")
		return
	}
	out := make([]historyItem, 0, len(recs))
	for _, rec := range recs {
		out = append(out, historyItem{
			JobID:      rec.JobID,
			Kind:       string(rec.Kind),
			Source:     rec.Source,
			FileName:   rec.FileName,
			Status:     string(rec.Status),
			Result:     rec.Result,
			Error:      rec.Error,
			FinishedAt: rec.FinishedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func tgIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "tgID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "tgID must be a positive integer")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
