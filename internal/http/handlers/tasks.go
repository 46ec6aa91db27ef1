// Package handlers provides the HTTP API handlers for voxetl.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/voxetl/voxetl/internal/pipeline"
	"github.com/voxetl/voxetl/internal/task"
)

// TasksHandler exposes task submission and inspection.
type TasksHandler struct {
	pool     *pipeline.Pool
	registry *task.Registry
	streamer *pipeline.Streamer
	logger   *slog.Logger
}

// NewTasksHandler creates a tasks handler.
func NewTasksHandler(pool *pipeline.Pool, registry *task.Registry, streamer *pipeline.Streamer, logger *slog.Logger) *TasksHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TasksHandler{
		pool:     pool,
		registry: registry,
		streamer: streamer,
		logger:   logger,
	}
}

// submitRequest is the JSON body of POST /tasks.
type submitRequest struct {
	URL string `json:"url"`
}

// errorDetail is the pre-stream error payload.
type errorDetail struct {
	Detail string `json:"detail"`
}

// RegisterRoutes registers the raw SSE route on the router. The submit
// endpoint streams its response, so it bypasses huma entirely.
func (h *TasksHandler) RegisterRoutes(router *chi.Mux) {
	router.Post("/tasks", h.handleSubmit)
}

// Register registers the JSON task read operations with the API.
func (h *TasksHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listTasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
		Description: "Returns every task known to this process.",
		Tags:        []string{"Tasks"},
	}, h.ListTasks)

	huma.Register(api, huma.Operation{
		OperationID: "getTask",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Description: "Returns the current state of a single task.",
		Tags:        []string{"Tasks"},
	}, h.GetTask)

	huma.Register(api, huma.Operation{
		OperationID: "resumeTask",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/resume",
		Summary:     "Resume task",
		Description: "Requeues a failed, cancelled, or paused task.",
		Tags:        []string{"Tasks"},
	}, h.ResumeTask)
}

// handleSubmit accepts a URL and streams task progress as server-sent
// events until the task reaches a terminal state.
func (h *TasksHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeDetail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if strings.TrimSpace(req.URL) == "" {
		h.writeDetail(w, http.StatusBadRequest, "url must not be empty")
		return
	}

	t, err := h.pool.Submit(req.URL)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrDuplicateURL):
			h.writeDetail(w, http.StatusBadRequest, "a task for this URL already exists")
		case errors.Is(err, pipeline.ErrQueueFull):
			h.writeDetail(w, http.StatusBadRequest, "task queue is full")
		case errors.Is(err, pipeline.ErrShuttingDown):
			h.writeDetail(w, http.StatusInternalServerError, "server is shutting down")
		default:
			h.writeDetail(w, http.StatusInternalServerError, "failed to submit task")
		}
		return
	}

	h.logger.InfoContext(r.Context(), "task submitted",
		slog.String("task_id", t.ID),
		slog.String("url", req.URL),
	)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)

	// Initial comment establishes the stream and triggers onopen in
	// browser EventSource clients.
	fmt.Fprintf(w, ":connected\n\n")
	if err := rc.Flush(); err != nil {
		h.logger.Debug("initial SSE flush failed", slog.Any("error", err))
		return
	}

	for event := range h.streamer.Stream(r.Context(), t) {
		payload, err := json.Marshal(event)
		if err != nil {
			h.logger.Error("failed to marshal SSE event",
				slog.String("task_id", t.ID),
				slog.Any("error", err),
			)
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			h.logger.Debug("SSE write failed, client likely disconnected",
				slog.String("task_id", t.ID),
				slog.Any("error", err),
			)
			return
		}
		if err := rc.Flush(); err != nil {
			h.logger.Debug("SSE flush failed, client likely disconnected",
				slog.String("task_id", t.ID),
				slog.Any("error", err),
			)
			return
		}
	}
}

func (h *TasksHandler) writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorDetail{Detail: detail})
}

// ListTasksInput is the input for the task list endpoint.
type ListTasksInput struct{}

// ListTasksOutput is the output for the task list endpoint.
type ListTasksOutput struct {
	Body ListTasksResponse
}

// ListTasksResponse holds the task list payload.
type ListTasksResponse struct {
	Tasks []task.Snapshot `json:"tasks"`
	Count int             `json:"count"`
}

// ListTasks returns every registered task.
func (h *TasksHandler) ListTasks(ctx context.Context, input *ListTasksInput) (*ListTasksOutput, error) {
	snapshots := h.registry.List()
	return &ListTasksOutput{
		Body: ListTasksResponse{
			Tasks: snapshots,
			Count: len(snapshots),
		},
	}, nil
}

// GetTaskInput is the input for the single-task endpoint.
type GetTaskInput struct {
	ID string `path:"id" doc:"Task ID"`
}

// GetTaskOutput is the output for the single-task endpoint.
type GetTaskOutput struct {
	Body task.Snapshot
}

// GetTask returns the current state of one task.
func (h *TasksHandler) GetTask(ctx context.Context, input *GetTaskInput) (*GetTaskOutput, error) {
	t, err := h.registry.Get(input.ID)
	if err != nil {
		return nil, huma.Error404NotFound("task not found")
	}
	return &GetTaskOutput{Body: t.Snapshot()}, nil
}

// ResumeTaskInput is the input for the resume endpoint.
type ResumeTaskInput struct {
	ID string `path:"id" doc:"Task ID"`
}

// ResumeTaskOutput is the output for the resume endpoint.
type ResumeTaskOutput struct {
	Body task.Snapshot
}

// ResumeTask requeues a resumable task as Pending.
func (h *TasksHandler) ResumeTask(ctx context.Context, input *ResumeTaskInput) (*ResumeTaskOutput, error) {
	t, err := h.registry.Get(input.ID)
	if err != nil {
		return nil, huma.Error404NotFound("task not found")
	}

	if err := h.pool.Resume(t); err != nil {
		switch {
		case errors.Is(err, pipeline.ErrNotResumable):
			return nil, huma.Error409Conflict("task is not in a resumable state")
		case errors.Is(err, pipeline.ErrQueueFull):
			return nil, huma.Error503ServiceUnavailable("task queue is full")
		case errors.Is(err, pipeline.ErrShuttingDown):
			return nil, huma.Error503ServiceUnavailable("server is shutting down")
		default:
			return nil, huma.Error500InternalServerError("failed to resume task")
		}
	}
	return &ResumeTaskOutput{Body: t.Snapshot()}, nil
}
