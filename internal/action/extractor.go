// Package action classifies completion text into structured workflow
// action intents via case-insensitive keyword matching. The rules are
// deliberately simple and must stay reproducible: downstream step
// creation depends on these exact trigger words and descriptions.
package action

import "strings"

// Action types.
const (
	TypeSchedule     = "schedule"
	TypePostJob      = "post_job"
	TypePrepareOffer = "prepare_offer"
)

// Action is a transient intent extracted from an AI completion. It has
// no identity or lifecycle of its own: it is produced, consumed to
// create a workflow step, and discarded.
type Action struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Extract returns the actions implied by the given text. Rules are
// independent: a single text may yield several actions. Pure function,
// no hidden state.
func Extract(text string) []Action {
	lower := strings.ToLower(text)
	actions := []Action{}

	if strings.Contains(lower, "schedule") {
		actions = append(actions, Action{
			Type:        TypeSchedule,
			Description: "Schedule an interview or meeting",
		})
	}

	if strings.Contains(lower, "post") && strings.Contains(lower, "job") {
		actions = append(actions, Action{
			Type:        TypePostJob,
			Description: "Post a job listing",
		})
	}

	if strings.Contains(lower, "offer") {
		actions = append(actions, Action{
			Type:        TypePrepareOffer,
			Description: "Prepare an offer letter",
		})
	}

	return actions
}
