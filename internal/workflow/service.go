// Package workflow reconciles chat turns with persisted workflow
// state: it assembles model context, invokes the completion client,
// classifies the response into actions, and commits the message plus
// any action-derived steps as one unit of work.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hireloop/hireloop/internal/action"
	"github.com/hireloop/hireloop/internal/llm"
	"github.com/hireloop/hireloop/internal/storage"
)

// contextMessageWindow is how many recent chat messages are included in
// the model context.
const contextMessageWindow = 5

// Completer is the blocking chat-completion call used by the service.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// Store is the persistence surface the service needs.
type Store interface {
	GetWorkflow(id string) (storage.Workflow, error)
	ListSteps(workflowID string) ([]storage.WorkflowStep, error)
	LastMessages(workflowID string, n int) ([]storage.ChatMessage, error)
	SaveChatTurn(msg storage.ChatMessage, steps []storage.WorkflowStep) error
	CreateSteps(steps []storage.WorkflowStep) error
}

// Service is the single entry point for "a participant says something
// in the context of a workflow".
type Service struct {
	store     Store
	completer Completer
}

// NewService creates a Service over the given store and completion
// client.
func NewService(store Store, completer Completer) *Service {
	return &Service{store: store, completer: completer}
}

// Reply is the outcome of one reconciled chat turn.
type Reply struct {
	Message string          `json:"message"`
	Actions []action.Action `json:"actions"`
}

// ProcessMessage runs one chat turn: load context, complete, extract
// actions, persist the message and action-derived steps atomically.
// A completion failure aborts before any persistence; a persistence
// failure rolls the whole turn back.
//
// An empty workflowID yields empty context and skips persistence (a
// chat message cannot exist without an owning workflow).
func (s *Service) ProcessMessage(ctx context.Context, workflowID, message, sender string) (Reply, error) {
	snapshot, err := s.buildContext(workflowID)
	if err != nil {
		return Reply{}, err
	}

	messages, err := composeChat(snapshot, message)
	if err != nil {
		return Reply{}, err
	}

	text, err := s.completer.Complete(ctx, messages)
	if err != nil {
		return Reply{}, err
	}

	actions := action.Extract(text)

	if workflowID != "" {
		now := time.Now().UTC()
		msg := storage.ChatMessage{
			ID:         uuid.New().String(),
			WorkflowID: workflowID,
			Message:    message,
			Sender:     sender,
			CreatedAt:  now,
		}
		steps := make([]storage.WorkflowStep, 0, len(actions))
		for _, a := range actions {
			steps = append(steps, stepForAction(workflowID, a, now))
		}
		if err := s.store.SaveChatTurn(msg, steps); err != nil {
			return Reply{}, fmt.Errorf("saving chat turn: %w", err)
		}
	}

	return Reply{Message: text, Actions: actions}, nil
}

// buildContext loads the workflow, its steps, and its recent messages.
// An empty id yields a nil snapshot, not an error.
func (s *Service) buildContext(workflowID string) (*contextSnapshot, error) {
	if workflowID == "" {
		return nil, nil
	}

	wf, err := s.store.GetWorkflow(workflowID)
	if err != nil {
		return nil, fmt.Errorf("loading workflow: %w", err)
	}
	steps, err := s.store.ListSteps(workflowID)
	if err != nil {
		return nil, fmt.Errorf("loading steps: %w", err)
	}
	msgs, err := s.store.LastMessages(workflowID, contextMessageWindow)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}

	if steps == nil {
		steps = []storage.WorkflowStep{}
	}
	if msgs == nil {
		msgs = []storage.ChatMessage{}
	}
	return &contextSnapshot{Workflow: wf, Steps: steps, Messages: msgs}, nil
}

// stepForAction maps an extracted action onto the workflow step it
// creates.
func stepForAction(workflowID string, a action.Action, now time.Time) storage.WorkflowStep {
	st := storage.WorkflowStep{
		ID:          uuid.New().String(),
		WorkflowID:  workflowID,
		Type:        a.Type,
		Description: a.Description,
		Status:      storage.StepNotStarted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	switch a.Type {
	case action.TypeSchedule:
		st.Title = "Schedule Interview"
		st.AssignedTo = "Recruiter"
	case action.TypePostJob:
		st.Title = "Post Job Listing"
		st.AssignedTo = "Recruiter"
	case action.TypePrepareOffer:
		st.Title = "Prepare Offer Letter"
		st.AssignedTo = "Hiring Manager"
	default:
		st.Title = a.Description
		st.AssignedTo = "Unassigned"
	}
	return st
}
