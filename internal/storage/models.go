package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned when a write carries an invalid or
// immutable field value.
var ErrValidation = errors.New("validation failed")

// Workflow statuses. Transitions are unrestricted: any status may
// follow any other.
const (
	WorkflowDraft      = "draft"
	WorkflowInProgress = "in_progress"
	WorkflowCompleted  = "completed"
	WorkflowOnHold     = "on_hold"
	WorkflowCancelled  = "cancelled"
)

// Step statuses.
const (
	StepNotStarted = "not_started"
	StepInProgress = "in_progress"
	StepCompleted  = "completed"
	StepBlocked    = "blocked"
	StepSkipped    = "skipped"
)

// ValidWorkflowStatus reports whether s is a known workflow status.
func ValidWorkflowStatus(s string) bool {
	switch s {
	case WorkflowDraft, WorkflowInProgress, WorkflowCompleted, WorkflowOnHold, WorkflowCancelled:
		return true
	}
	return false
}

// ValidStepStatus reports whether s is a known step status.
func ValidStepStatus(s string) bool {
	switch s {
	case StepNotStarted, StepInProgress, StepCompleted, StepBlocked, StepSkipped:
		return true
	}
	return false
}

// Workflow is the root aggregate: a recruiting process instance owning
// steps and chat messages.
type Workflow struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	WorkflowType string    `json:"workflow_type"`
	Status       string    `json:"status"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// WorkflowStep is a discrete task within a workflow. WorkflowID is
// immutable after creation.
type WorkflowStep struct {
	ID          string     `json:"id"`
	WorkflowID  string     `json:"workflow_id"`
	Type        string     `json:"type"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	AssignedTo  string     `json:"assigned_to"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ChatMessage is one append-only chat turn owned by a workflow.
type ChatMessage struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	Message    string    `json:"message"`
	Sender     string    `json:"sender"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChatLogEntry is one message in the legacy single-thread chat log.
type ChatLogEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// WorkflowUpdate is a partial update over the mutable fields of a
// workflow. Nil pointers leave fields unchanged.
type WorkflowUpdate struct {
	Title        *string
	Description  *string
	WorkflowType *string
	Status       *string
}

// StepUpdate is a partial update over the mutable fields of a step.
type StepUpdate struct {
	Type        *string
	Title       *string
	Description *string
	AssignedTo  *string
	DueDate     *time.Time
	Status      *string
}
