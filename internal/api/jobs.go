package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-sync/internal/job"
	"github.com/sells-group/catalog-sync/internal/model"
)

// Jobs is the job controller surface the API drives.
type Jobs interface {
	Start(ctx context.Context, jobType model.JobType, opts model.JobOptions) (model.BatchProgress, error)
	Stop(ctx context.Context, jobType model.JobType) (model.BatchProgress, error)
	Status(ctx context.Context, jobType model.JobType) (model.BatchProgress, error)
}

// Actions accepted by POST /jobs/{jobType}.
const (
	ActionStart  = "start"
	ActionStatus = "status"
	ActionStop   = "stop"
)

// JobRequest is the body of POST /jobs/{jobType}.
type JobRequest struct {
	Action string `json:"action"`
	model.JobOptions
}

// ErrorResponse is returned for failed requests. Progress is set when a
// start is rejected because the job is already running.
type ErrorResponse struct {
	Error    string               `json:"error"`
	Progress *model.BatchProgress `json:"progress,omitempty"`
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	jobType, ok := jobTypeParam(w, r)
	if !ok {
		return
	}
	p, err := h.jobs.Status(r.Context(), jobType)
	h.respond(w, p, err, http.StatusOK)
}

func (h *handler) action(w http.ResponseWriter, r *http.Request) {
	jobType, ok := jobTypeParam(w, r)
	if !ok {
		return
	}

	var req JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	switch req.Action {
	case ActionStart:
		p, err := h.start(r.Context(), jobType, req.JobOptions)
		h.respond(w, p, err, http.StatusAccepted)
	case ActionStatus:
		p, err := h.jobs.Status(r.Context(), jobType)
		h.respond(w, p, err, http.StatusOK)
	case ActionStop:
		p, err := h.jobs.Stop(r.Context(), jobType)
		h.respond(w, p, err, http.StatusOK)
	default:
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("unknown action %q", req.Action)})
	}
}

// start collapses concurrent start requests for the same job type into one
// controller call.
func (h *handler) start(ctx context.Context, jobType model.JobType, opts model.JobOptions) (model.BatchProgress, error) {
	v, err, shared := h.starts.Do(string(jobType), func() (any, error) {
		return h.jobs.Start(ctx, jobType, opts)
	})
	if shared {
		h.log.Debug("collapsed concurrent start", zap.String("job_type", string(jobType)))
	}
	p, _ := v.(model.BatchProgress)
	return p, err
}

func (h *handler) respond(w http.ResponseWriter, p model.BatchProgress, err error, okStatus int) {
	switch {
	case err == nil:
		writeJSON(w, okStatus, p)
	case errors.Is(err, job.ErrAlreadyRunning):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "job already running", Progress: &p})
	case errors.Is(err, job.ErrUnknownJobType):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "unknown job type"})
	default:
		h.log.Error("job request failed", zap.String("job_type", string(p.JobType)), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}

func jobTypeParam(w http.ResponseWriter, r *http.Request) (model.JobType, bool) {
	jobType := model.JobType(chi.URLParam(r, "jobType"))
	if !jobType.Valid() {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: fmt.Sprintf("unknown job type %q", jobType)})
		return "", false
	}
	return jobType, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
