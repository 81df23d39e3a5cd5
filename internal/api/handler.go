// Package api exposes the recruiting-assistant HTTP surface: workflow
// CRUD, chat reconciliation, the legacy single-thread chat endpoints,
// and integration stubs.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hireloop/hireloop/internal/llm"
	"github.com/hireloop/hireloop/internal/storage"
	"github.com/hireloop/hireloop/internal/workflow"
)

const maxRequestBodySize = 1 << 20 // 1MB
const maxResumeBodySize = 10 << 20 // 10MB

// messagePageSize is how many messages the history endpoint returns.
const messagePageSize = 50

// Reconciler runs chat turns and step generation against workflow
// state.
type Reconciler interface {
	ProcessMessage(ctx context.Context, workflowID, message, sender string) (workflow.Reply, error)
	GenerateSteps(ctx context.Context, workflowID, workflowType string) ([]storage.WorkflowStep, error)
}

// ChatClient is the completion surface used by the legacy chat
// endpoint.
type ChatClient interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
	CompleteStream(ctx context.Context, messages []llm.Message, onDelta func(cumulative string) error) (string, error)
}

// Deps holds the collaborators of the HTTP layer.
type Deps struct {
	Store   *storage.Store
	Service Reconciler
	Chat    ChatClient
	Version string
}

// NewHandler returns the http.Handler for the whole API surface.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	r.Route("/api", func(r chi.Router) {
		r.Get("/workflows", handleListWorkflows(deps))
		r.Post("/workflows", handleCreateWorkflow(deps))
		r.Get("/workflows/{id}", handleGetWorkflow(deps))
		r.Put("/workflows/{id}", handleUpdateWorkflow(deps))
		r.Delete("/workflows/{id}", handleDeleteWorkflow(deps))

		r.Get("/workflows/{id}/steps", handleListSteps(deps))
		r.Post("/workflows/{id}/steps", handleCreateStep(deps))
		r.Put("/workflows/{id}/steps/{stepID}", handleUpdateStep(deps))

		r.Get("/workflows/{id}/messages", handleListMessages(deps))
		r.Post("/workflows/{id}/messages", handlePostMessage(deps))

		r.Post("/workflows/{id}/resume", handleResumeUpload(deps))

		r.Get("/chat", handleChatPing)
		r.Post("/chat", handleChat(deps))
		r.Post("/chat/log", handleChatLog(deps))
		r.Get("/chat/logs", handleChatLogs(deps))

		r.Post("/integrations/linkedin/post", handleLinkedInPost(deps))
		r.Post("/integrations/calendar/slots", handleCalendarSlots(deps))
		r.Post("/integrations/background-check/initiate", handleBackgroundCheck(deps))
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   deps.Version,
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]string{"error": fmt.Sprintf(format, args...)})
}
