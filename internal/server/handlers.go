package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/seawingai/ai-marketing-agent/internal/dispatch"
	"github.com/seawingai/ai-marketing-agent/internal/storage"
	logx "github.com/seawingai/ai-marketing-agent/pkg/logx"
)

type generateRequest struct {
	Prompt      string  `json:"prompt"`
	System      string  `json:"system,omitempty"`
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

type targetRequest struct {
	Kind        string            `json:"kind"`
	Credentials map[string]string `json:"credentials"`

	Timeout       string `json:"timeout,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
}

type scheduleRequest struct {
	Payload dispatch.PublishPayload `json:"payload"`
	Cron    string                  `json:"cron,omitempty"`
	RunAt   *time.Time              `json:"run_at,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.Prompt == "" {
		s.writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	res, err := s.agent.Generate(r.Context(), dispatch.GenerationRequest{
		Prompt:      req.Prompt,
		System:      req.System,
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var payload dispatch.PublishPayload
	if !s.readJSON(w, r, &payload) {
		return
	}

	res, err := s.agent.Publish(r.Context(), payload)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	s.recordHistory(r, payload, res)
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePublishToTarget(w http.ResponseWriter, r *http.Request) {
	var payload dispatch.PublishPayload
	if !s.readJSON(w, r, &payload) {
		return
	}

	out, err := s.agent.PublishToTarget(r.Context(), r.PathValue("target"), payload)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var payload dispatch.PublishPayload
	if !s.readJSON(w, r, &payload) {
		return
	}
	s.writeJSON(w, http.StatusOK, s.agent.Validate(payload))
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"targets": s.agent.ListTargets()})
}

func (s *Server) handleListKinds(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"kinds": s.agent.ListAvailableTargetKinds()})
}

func (s *Server) handleRegisterTarget(w http.ResponseWriter, r *http.Request) {
	var req targetRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	cfg, err := req.dispatchConfig()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := r.PathValue("name")
	if err := s.agent.RegisterTarget(name, cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"registered": name})
}

func (s *Server) handleUnregisterTarget(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !s.agent.UnregisterTarget(name) {
		s.writeError(w, http.StatusNotFound, "target not registered: "+name)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"removed": name})
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	if s.sched == nil {
		s.writeError(w, http.StatusNotImplemented, "scheduling is disabled")
		return
	}
	posts, err := s.sched.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"schedules": posts})
}

func (s *Server) handleAddSchedule(w http.ResponseWriter, r *http.Request) {
	if s.sched == nil {
		s.writeError(w, http.StatusNotImplemented, "scheduling is disabled")
		return
	}
	var req scheduleRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	post, err := s.sched.Add(r.Context(), storage.ScheduledPost{
		Payload: req.Payload,
		Cron:    req.Cron,
		RunAt:   req.RunAt,
	})
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, post)
}

func (s *Server) handleRemoveSchedule(w http.ResponseWriter, r *http.Request) {
	if s.sched == nil {
		s.writeError(w, http.StatusNotImplemented, "scheduling is disabled")
		return
	}
	id := r.PathValue("id")
	ok, err := s.sched.Remove(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "schedule not found: "+id)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"removed": id})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusNotImplemented, "storage is disabled")
		return
	}
	records, err := s.store.ListHistory(r.Context(), s.cfg.HistoryLimit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"history": records})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"targets": len(s.agent.ListTargets()),
	})
}

// recordHistory persists ad-hoc publish results; scheduled runs are recorded
// by the schedule service itself.
func (s *Server) recordHistory(r *http.Request, payload dispatch.PublishPayload, res *dispatch.FanOutResult) {
	if s.store == nil || res == nil {
		return
	}
	content := payload.Content
	if len(content) > 200 {
		content = content[:200]
	}
	rec := storage.PublishRecord{
		ID:      uuid.NewString(),
		Content: content,
		Result:  *res,
		At:      time.Now(),
	}
	if err := s.store.AppendHistory(r.Context(), rec); err != nil {
		s.log.Warn("history append failed", logx.Err(err))
	}
}

func (t targetRequest) dispatchConfig() (dispatch.TargetConfig, error) {
	cfg := dispatch.TargetConfig{
		Kind:        t.Kind,
		Credentials: t.Credentials,
		RatePerSec:  t.RatePerSec,
		Retry:       dispatch.RetryOptions{MaxAttempts: t.RetryMax},
	}
	var err error
	if cfg.Timeout, err = parseDuration("timeout", t.Timeout); err != nil {
		return dispatch.TargetConfig{}, err
	}
	if cfg.Retry.BaseDelay, err = parseDuration("retry_base", t.RetryBase); err != nil {
		return dispatch.TargetConfig{}, err
	}
	if cfg.Retry.MaxDelay, err = parseDuration("retry_max_delay", t.RetryMaxDelay); err != nil {
		return dispatch.TargetConfig{}, err
	}
	return cfg, nil
}

func parseDuration(field, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.New("invalid " + field + ": " + raw)
	}
	return d, nil
}

func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("response encode failed", logx.Err(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]any{"error": msg})
}

// writeDispatchError maps the dispatch taxonomy onto HTTP statuses: the
// agent acts as a gateway, so upstream transient failures surface as 502.
func (s *Server) writeDispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dispatch.ErrTargetNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, dispatch.ErrInvalidPayload), errors.Is(err, dispatch.ErrNoProvider):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var de *dispatch.Error
	if errors.As(err, &de) {
		status := http.StatusBadGateway
		switch de.Kind {
		case dispatch.KindClient:
			status = http.StatusBadRequest
		case dispatch.KindAuth:
			status = http.StatusUnauthorized
		case dispatch.KindRateLimit:
			status = http.StatusTooManyRequests
		}
		s.writeJSON(w, status, map[string]any{
			"error":     de.Message,
			"kind":      string(de.Kind),
			"provider":  de.Provider,
			"retryable": de.Retryable(),
		})
		return
	}
	s.writeError(w, http.StatusInternalServerError, err.Error())
}
