package app

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/logger"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/resources"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/value"
)

// RegisterRoutes mounts the task submission/status/cancellation API
// onto router, alongside whatever metrics/health endpoints the caller
// already registered.
func (a *App) RegisterRoutes(router chi.Router) {
	router.Post("/tasks", a.handleSubmit)
	router.Get("/tasks/{id}", a.handleGetStatus)
	router.Delete("/tasks/{id}", a.handleCancel)
}

type submitTaskRequest struct {
	Type       string                 `json:"type"`
	Priority   string                 `json:"priority"`
	Parameters map[string]interface{} `json:"parameters"`
	User       string                 `json:"user"`
	Tier       string                 `json:"tier"`
	MaxRetries int                    `json:"max_retries"`
}

func (a *App) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decode request: "+err.Error())
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}

	params, err := value.FromJSON(mustMarshal(req.Parameters))
	if err != nil {
		writeError(w, http.StatusBadRequest, "parameters: "+err.Error())
		return
	}

	t, err := a.SubmitTask(r.Context(), SubmitRequest{
		Type:       req.Type,
		Priority:   resources.Priority(req.Priority),
		Parameters: params,
		User:       req.User,
		Tier:       resources.SubscriptionTier(req.Tier),
		MaxRetries: req.MaxRetries,
	})
	if err != nil {
		logger.Errorf("coordinator: submit task: %v", err)
		writeError(w, http.StatusInternalServerError, "submit task failed")
		return
	}
	writeJSON(w, http.StatusAccepted, t)
}

func (a *App) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, ok, err := a.GetTaskStatus(r.Context(), id)
	if err != nil {
		logger.Errorf("coordinator: get task status: %v", err)
		writeError(w, http.StatusInternalServerError, "get task status failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *App) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cancelled, err := a.CancelTask(r.Context(), id)
	if err != nil {
		logger.Errorf("coordinator: cancel task: %v", err)
		writeError(w, http.StatusInternalServerError, "cancel task failed")
		return
	}
	if !cancelled {
		writeError(w, http.StatusConflict, "task not cancellable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func mustMarshal(v map[string]interface{}) []byte {
	if v == nil {
		return []byte("{}")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
