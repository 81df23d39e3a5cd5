package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/hireloop/hireloop/internal/llm"
	"github.com/hireloop/hireloop/internal/storage"
)

// SystemPrompt is the fixed recruiting-assistant persona sent with
// every completion.
const SystemPrompt = `You are an AI recruiting assistant. Help users manage their recruiting workflows by:
1. Understanding their requirements and goals
2. Creating appropriate workflow steps
3. Suggesting next actions
4. Providing relevant templates and guidance`

// contextSnapshot is the workflow state handed to the model as
// structured context: the workflow itself, its steps, and the last few
// chat messages oldest to newest.
type contextSnapshot struct {
	Workflow storage.Workflow       `json:"workflow"`
	Steps    []storage.WorkflowStep `json:"steps"`
	Messages []storage.ChatMessage  `json:"messages"`
}

// composeChat builds the completion messages for one chat turn: the
// persona, the optional context as a second system message, and the
// user's message.
func composeChat(snapshot *contextSnapshot, userMessage string) ([]llm.Message, error) {
	messages := []llm.Message{
		{Role: "system", Content: SystemPrompt},
	}

	if snapshot != nil {
		b, err := json.Marshal(snapshot)
		if err != nil {
			return nil, fmt.Errorf("marshaling context: %w", err)
		}
		messages = append(messages, llm.Message{
			Role:    "system",
			Content: "Current context: " + string(b),
		})
	}

	messages = append(messages, llm.Message{Role: "user", Content: userMessage})
	return messages, nil
}

// composeGeneration builds the prompt asking the model for a structured
// step list for a workflow type.
func composeGeneration(workflowType string, snapshot *contextSnapshot) ([]llm.Message, error) {
	contextJSON := "{}"
	if snapshot != nil {
		b, err := json.MarshalIndent(snapshot, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling context: %w", err)
		}
		contextJSON = string(b)
	}

	prompt := fmt.Sprintf(`Create a detailed recruiting workflow for: %s

Context:
%s

Generate a list of workflow steps. Start each step with "- " followed by
the step title, then one "key: value" line per attribute:
- Step title
- Step type
- Description
- Required participants
- Estimated duration

Return the steps in a structured format.`, workflowType, contextJSON)

	return []llm.Message{
		{Role: "system", Content: SystemPrompt},
		{Role: "user", Content: prompt},
	}, nil
}
