package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hireloop/hireloop/internal/storage"
)

// StepDraft is one parsed step from a generation response: a title
// plus whatever key/value attributes followed it.
type StepDraft struct {
	Title  string
	Fields map[string]string
}

// GenerateSteps asks the model for a step list for the workflow type
// and persists every valid draft as a step of the workflow. The whole
// batch commits in one transaction. Unparseable responses degrade to
// an empty or partial result rather than an error.
func (s *Service) GenerateSteps(ctx context.Context, workflowID, workflowType string) ([]storage.WorkflowStep, error) {
	snapshot, err := s.buildContext(workflowID)
	if err != nil {
		return nil, err
	}

	messages, err := composeGeneration(workflowType, snapshot)
	if err != nil {
		return nil, err
	}

	text, err := s.completer.Complete(ctx, messages)
	if err != nil {
		return nil, err
	}

	drafts := ParseStepDrafts(text)
	if len(drafts) == 0 {
		return []storage.WorkflowStep{}, nil
	}

	now := time.Now().UTC()
	steps := make([]storage.WorkflowStep, 0, len(drafts))
	for _, d := range drafts {
		steps = append(steps, stepFromDraft(workflowID, d, now))
	}

	if err := s.store.CreateSteps(steps); err != nil {
		return nil, fmt.Errorf("saving generated steps: %w", err)
	}
	return steps, nil
}

// ParseStepDrafts parses semi-structured completion text into drafts.
// A line starting with "- " or "* " begins a new draft titled by the
// remainder; subsequent "key: value" lines set attributes on the
// current draft, with the key lowercased and spaces replaced by
// underscores. Blank lines are ignored, the trailing draft is flushed,
// and drafts without a title are dropped.
func ParseStepDrafts(text string) []StepDraft {
	var drafts []StepDraft
	var current *StepDraft

	flush := func() {
		if current != nil && current.Title != "" {
			drafts = append(drafts, *current)
		}
		current = nil
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
			flush()
			current = &StepDraft{
				Title:  strings.TrimSpace(line[2:]),
				Fields: make(map[string]string),
			}
			continue
		}

		if current == nil {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), " ", "_")
		current.Fields[key] = strings.TrimSpace(value)
	}
	flush()

	return drafts
}

// stepFromDraft converts a draft into a step record, applying the
// generation defaults: type "task" and assignee "Unassigned".
func stepFromDraft(workflowID string, d StepDraft, now time.Time) storage.WorkflowStep {
	st := storage.WorkflowStep{
		ID:          uuid.New().String(),
		WorkflowID:  workflowID,
		Type:        "task",
		Title:       d.Title,
		Description: d.Fields["description"],
		AssignedTo:  "Unassigned",
		Status:      storage.StepNotStarted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if v := d.Fields["type"]; v != "" {
		st.Type = v
	}
	if v := d.Fields["assigned_to"]; v != "" {
		st.AssignedTo = v
	} else if v := d.Fields["required_participants"]; v != "" {
		st.AssignedTo = v
	}
	if v := d.Fields["due_date"]; v != "" {
		if t, ok := parseDueDate(v); ok {
			st.DueDate = &t
		}
	}
	return st
}

// parseDueDate accepts the date formats a model plausibly emits.
// Freeform durations ("2 weeks") are not dates and are skipped.
func parseDueDate(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
