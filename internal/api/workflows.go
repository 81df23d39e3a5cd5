package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hireloop/hireloop/internal/llm"
	"github.com/hireloop/hireloop/internal/storage"
)

type createWorkflowRequest struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	WorkflowType  string `json:"workflow_type"`
	CreatedBy     string `json:"created_by"`
	GenerateSteps bool   `json:"generate_steps"`
}

// workflowDetail is a workflow with its steps embedded.
type workflowDetail struct {
	storage.Workflow
	Steps []storage.WorkflowStep `json:"steps"`
}

func handleListWorkflows(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := r.URL.Query().Get("status")
		if status != "" && !storage.ValidWorkflowStatus(status) {
			httpError(w, http.StatusBadRequest, "invalid status %q", status)
			return
		}

		workflows, err := deps.Store.ListWorkflows(status)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to list workflows: %v", err)
			return
		}
		if workflows == nil {
			workflows = []storage.Workflow{}
		}
		writeJSON(w, http.StatusOK, workflows)
	}
}

func handleCreateWorkflow(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req createWorkflowRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if req.Title == "" {
			httpError(w, http.StatusBadRequest, "title is required")
			return
		}
		if req.WorkflowType == "" {
			httpError(w, http.StatusBadRequest, "workflow_type is required")
			return
		}
		if req.CreatedBy == "" {
			httpError(w, http.StatusBadRequest, "created_by is required")
			return
		}

		now := time.Now().UTC()
		wf := storage.Workflow{
			ID:           uuid.New().String(),
			Title:        req.Title,
			Description:  req.Description,
			WorkflowType: req.WorkflowType,
			Status:       storage.WorkflowDraft,
			CreatedBy:    req.CreatedBy,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := deps.Store.CreateWorkflow(wf); err != nil {
			httpError(w, http.StatusInternalServerError, "failed to create workflow: %v", err)
			return
		}

		steps := []storage.WorkflowStep{}
		if req.GenerateSteps {
			// Generation is best-effort: a model or parse failure must
			// not fail workflow creation.
			generated, err := deps.Service.GenerateSteps(r.Context(), wf.ID, wf.WorkflowType)
			if err != nil {
				slog.Warn("step generation failed", "workflow_id", wf.ID, "error", err)
			} else {
				steps = generated
			}
		}

		writeJSON(w, http.StatusCreated, workflowDetail{Workflow: wf, Steps: steps})
	}
}

func handleGetWorkflow(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		wf, err := deps.Store.GetWorkflow(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "Workflow not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to get workflow: %v", err)
			return
		}

		steps, err := deps.Store.ListSteps(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to list steps: %v", err)
			return
		}
		if steps == nil {
			steps = []storage.WorkflowStep{}
		}
		writeJSON(w, http.StatusOK, workflowDetail{Workflow: wf, Steps: steps})
	}
}

// workflowMutable lists the fields a workflow update may touch.
// Identity and ownership fields are immutable after creation.
var workflowMutable = map[string]bool{
	"title":         true,
	"description":   true,
	"workflow_type": true,
	"status":        true,
}

func handleUpdateWorkflow(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var fields map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}

		var upd storage.WorkflowUpdate
		for key, raw := range fields {
			if !workflowMutable[key] {
				httpError(w, http.StatusBadRequest, "field %q cannot be updated", key)
				return
			}
			var v string
			if err := json.Unmarshal(raw, &v); err != nil {
				httpError(w, http.StatusBadRequest, "field %q must be a string", key)
				return
			}
			switch key {
			case "title":
				upd.Title = &v
			case "description":
				upd.Description = &v
			case "workflow_type":
				upd.WorkflowType = &v
			case "status":
				upd.Status = &v
			}
		}

		wf, err := deps.Store.UpdateWorkflow(id, upd)
		if errors.Is(err, storage.ErrValidation) {
			httpError(w, http.StatusBadRequest, "%v", err)
			return
		}
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "Workflow not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to update workflow: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, wf)
	}
}

func handleDeleteWorkflow(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeleteWorkflow(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "Workflow not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to delete workflow: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// --- Steps ---

type createStepRequest struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	AssignedTo  string `json:"assigned_to"`
	DueDate     string `json:"due_date"`
	Status      string `json:"status"`
}

func handleListSteps(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if _, err := deps.Store.GetWorkflow(id); err != nil {
			workflowLookupError(w, err)
			return
		}
		steps, err := deps.Store.ListSteps(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to list steps: %v", err)
			return
		}
		if steps == nil {
			steps = []storage.WorkflowStep{}
		}
		writeJSON(w, http.StatusOK, steps)
	}
}

func handleCreateStep(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req createStepRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if req.Title == "" {
			httpError(w, http.StatusBadRequest, "title is required")
			return
		}
		if req.Status != "" && !storage.ValidStepStatus(req.Status) {
			httpError(w, http.StatusBadRequest, "invalid status %q", req.Status)
			return
		}

		if _, err := deps.Store.GetWorkflow(id); err != nil {
			workflowLookupError(w, err)
			return
		}

		now := time.Now().UTC()
		st := storage.WorkflowStep{
			ID:          uuid.New().String(),
			WorkflowID:  id,
			Type:        req.Type,
			Title:       req.Title,
			Description: req.Description,
			AssignedTo:  req.AssignedTo,
			Status:      req.Status,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if req.DueDate != "" {
			t, err := time.Parse(time.RFC3339, req.DueDate)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid due_date: %v", err)
				return
			}
			st.DueDate = &t
		}

		if err := deps.Store.CreateStep(st); err != nil {
			httpError(w, http.StatusInternalServerError, "failed to create step: %v", err)
			return
		}

		created, err := deps.Store.GetStep(id, st.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to load created step: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

var stepMutable = map[string]bool{
	"type":        true,
	"title":       true,
	"description": true,
	"assigned_to": true,
	"due_date":    true,
	"status":      true,
}

func handleUpdateStep(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		stepID := chi.URLParam(r, "stepID")
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var fields map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}

		var upd storage.StepUpdate
		for key, raw := range fields {
			if !stepMutable[key] {
				httpError(w, http.StatusBadRequest, "field %q cannot be updated", key)
				return
			}
			var v string
			if err := json.Unmarshal(raw, &v); err != nil {
				httpError(w, http.StatusBadRequest, "field %q must be a string", key)
				return
			}
			switch key {
			case "type":
				upd.Type = &v
			case "title":
				upd.Title = &v
			case "description":
				upd.Description = &v
			case "assigned_to":
				upd.AssignedTo = &v
			case "due_date":
				t, err := time.Parse(time.RFC3339, v)
				if err != nil {
					httpError(w, http.StatusBadRequest, "invalid due_date: %v", err)
					return
				}
				upd.DueDate = &t
			case "status":
				upd.Status = &v
			}
		}

		st, err := deps.Store.UpdateStep(id, stepID, upd)
		if errors.Is(err, storage.ErrValidation) {
			httpError(w, http.StatusBadRequest, "%v", err)
			return
		}
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "Step not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to update step: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// --- Messages ---

type postMessageRequest struct {
	Message string `json:"message"`
	Sender  string `json:"sender"`
}

func handleListMessages(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if _, err := deps.Store.GetWorkflow(id); err != nil {
			workflowLookupError(w, err)
			return
		}
		msgs, err := deps.Store.ListMessages(id, messagePageSize)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to list messages: %v", err)
			return
		}
		if msgs == nil {
			msgs = []storage.ChatMessage{}
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

func handlePostMessage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req postMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if req.Message == "" {
			httpError(w, http.StatusBadRequest, "message is required")
			return
		}
		if req.Sender == "" {
			req.Sender = "user"
		}

		if _, err := deps.Store.GetWorkflow(id); err != nil {
			workflowLookupError(w, err)
			return
		}

		reply, err := deps.Service.ProcessMessage(r.Context(), id, req.Message, req.Sender)
		if err != nil {
			var ce *llm.CompletionError
			if errors.As(err, &ce) {
				httpError(w, http.StatusInternalServerError, "completion failed: %s", ce.Detail)
				return
			}
			httpError(w, http.StatusInternalServerError, "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, reply)
	}
}

func workflowLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "Workflow not found")
		return
	}
	httpError(w, http.StatusInternalServerError, "failed to get workflow: %v", err)
}
