package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hireloop/hireloop/internal/action"
	"github.com/hireloop/hireloop/internal/llm"
	"github.com/hireloop/hireloop/internal/storage"
)

// mockCompleter implements Completer for testing.
type mockCompleter struct {
	response string
	err      error
	gotMsgs  []llm.Message
}

func (m *mockCompleter) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	m.gotMsgs = messages
	return m.response, m.err
}

// mockStore implements Store in memory, recording what was saved.
type mockStore struct {
	workflow storage.Workflow
	steps    []storage.WorkflowStep
	messages []storage.ChatMessage

	getErr  error
	saveErr error

	savedMsg     *storage.ChatMessage
	savedSteps   []storage.WorkflowStep
	createdSteps []storage.WorkflowStep
}

func (m *mockStore) GetWorkflow(id string) (storage.Workflow, error) {
	if m.getErr != nil {
		return storage.Workflow{}, m.getErr
	}
	return m.workflow, nil
}

func (m *mockStore) ListSteps(workflowID string) ([]storage.WorkflowStep, error) {
	return m.steps, nil
}

func (m *mockStore) LastMessages(workflowID string, n int) ([]storage.ChatMessage, error) {
	if len(m.messages) > n {
		return m.messages[len(m.messages)-n:], nil
	}
	return m.messages, nil
}

func (m *mockStore) SaveChatTurn(msg storage.ChatMessage, steps []storage.WorkflowStep) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.savedMsg = &msg
	m.savedSteps = steps
	return nil
}

func (m *mockStore) CreateSteps(steps []storage.WorkflowStep) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.createdSteps = steps
	return nil
}

func testService(store *mockStore, completer *mockCompleter) *Service {
	return NewService(store, completer)
}

func TestProcessMessagePersistsTurn(t *testing.T) {
	store := &mockStore{workflow: storage.Workflow{ID: "wf-1", Title: "Backend Engineer Hiring"}}
	completer := &mockCompleter{response: "Let's schedule an interview and post the job listing."}
	svc := testService(store, completer)

	reply, err := svc.ProcessMessage(context.Background(), "wf-1", "what next?", "user")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	if reply.Message != completer.response {
		t.Errorf("reply message = %q, want completion text", reply.Message)
	}
	if len(reply.Actions) != 2 {
		t.Fatalf("reply carried %d actions, want 2: %+v", len(reply.Actions), reply.Actions)
	}
	if reply.Actions[0].Type != action.TypeSchedule || reply.Actions[1].Type != action.TypePostJob {
		t.Errorf("actions = %+v, want [schedule, post_job]", reply.Actions)
	}

	if store.savedMsg == nil {
		t.Fatal("chat message was not persisted")
	}
	if store.savedMsg.Message != "what next?" || store.savedMsg.Sender != "user" {
		t.Errorf("persisted message = %+v", store.savedMsg)
	}
	if len(store.savedSteps) != 2 {
		t.Fatalf("persisted %d steps, want 2", len(store.savedSteps))
	}
	titles := []string{store.savedSteps[0].Title, store.savedSteps[1].Title}
	if titles[0] != "Schedule Interview" || titles[1] != "Post Job Listing" {
		t.Errorf("step titles = %v", titles)
	}
	for _, st := range store.savedSteps {
		if st.Status != storage.StepNotStarted {
			t.Errorf("step %q status = %q, want not_started", st.Title, st.Status)
		}
	}
}

func TestProcessMessageStepAssignees(t *testing.T) {
	store := &mockStore{workflow: storage.Workflow{ID: "wf-1"}}
	completer := &mockCompleter{response: "schedule the panel, post the job, and prepare the offer"}
	svc := testService(store, completer)

	if _, err := svc.ProcessMessage(context.Background(), "wf-1", "go", "user"); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	want := map[string]string{
		"Schedule Interview":   "Recruiter",
		"Post Job Listing":     "Recruiter",
		"Prepare Offer Letter": "Hiring Manager",
	}
	if len(store.savedSteps) != len(want) {
		t.Fatalf("persisted %d steps, want %d", len(store.savedSteps), len(want))
	}
	for _, st := range store.savedSteps {
		if want[st.Title] != st.AssignedTo {
			t.Errorf("step %q assigned to %q, want %q", st.Title, st.AssignedTo, want[st.Title])
		}
	}
}

// A completion failure aborts the turn before anything is persisted.
func TestProcessMessageCompletionErrorSkipsPersistence(t *testing.T) {
	store := &mockStore{workflow: storage.Workflow{ID: "wf-1"}}
	completer := &mockCompleter{err: &llm.CompletionError{Status: 500, Detail: "upstream down"}}
	svc := testService(store, completer)

	_, err := svc.ProcessMessage(context.Background(), "wf-1", "hello", "user")

	var cerr *llm.CompletionError
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v, want *llm.CompletionError", err)
	}
	if store.savedMsg != nil || store.savedSteps != nil {
		t.Error("persistence happened despite completion failure")
	}
}

func TestProcessMessagePersistenceErrorPropagates(t *testing.T) {
	saveErr := errors.New("disk full")
	store := &mockStore{workflow: storage.Workflow{ID: "wf-1"}, saveErr: saveErr}
	completer := &mockCompleter{response: "schedule it"}
	svc := testService(store, completer)

	_, err := svc.ProcessMessage(context.Background(), "wf-1", "hello", "user")
	if !errors.Is(err, saveErr) {
		t.Errorf("error = %v, want wrapped store error", err)
	}
}

func TestProcessMessageUnknownWorkflow(t *testing.T) {
	store := &mockStore{getErr: storage.ErrNotFound}
	completer := &mockCompleter{response: "unused"}
	svc := testService(store, completer)

	_, err := svc.ProcessMessage(context.Background(), "wf-missing", "hello", "user")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	if completer.gotMsgs != nil {
		t.Error("completion was called despite missing workflow")
	}
}

// Without a workflow there is nothing to own the message: the turn
// completes but persists nothing.
func TestProcessMessageWithoutWorkflowSkipsPersistence(t *testing.T) {
	store := &mockStore{}
	completer := &mockCompleter{response: "schedule something"}
	svc := testService(store, completer)

	reply, err := svc.ProcessMessage(context.Background(), "", "hello", "user")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if len(reply.Actions) != 1 {
		t.Errorf("actions = %+v, want one schedule action", reply.Actions)
	}
	if store.savedMsg != nil || store.savedSteps != nil {
		t.Error("persistence happened without an owning workflow")
	}
	// No workflow means no context system message either.
	if len(completer.gotMsgs) != 2 {
		t.Errorf("prompt had %d messages, want persona + user only", len(completer.gotMsgs))
	}
}

func TestProcessMessageContextPrompt(t *testing.T) {
	now := time.Now().UTC()
	store := &mockStore{
		workflow: storage.Workflow{ID: "wf-1", Title: "Backend Engineer Hiring", Status: storage.WorkflowDraft},
		steps:    []storage.WorkflowStep{{ID: "st-1", WorkflowID: "wf-1", Title: "Screen resumes"}},
		messages: []storage.ChatMessage{
			{ID: "m1", WorkflowID: "wf-1", Message: "earlier message", Sender: "user", CreatedAt: now},
		},
	}
	completer := &mockCompleter{response: "ok"}
	svc := testService(store, completer)

	if _, err := svc.ProcessMessage(context.Background(), "wf-1", "what now?", "user"); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	msgs := completer.gotMsgs
	if len(msgs) != 3 {
		t.Fatalf("prompt had %d messages, want persona + context + user", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[0].Content != SystemPrompt {
		t.Errorf("first message = %+v, want the persona", msgs[0])
	}
	if msgs[1].Role != "system" || !strings.HasPrefix(msgs[1].Content, "Current context: ") {
		t.Errorf("second message = %+v, want the context snapshot", msgs[1])
	}
	for _, frag := range []string{"Backend Engineer Hiring", "Screen resumes", "earlier message"} {
		if !strings.Contains(msgs[1].Content, frag) {
			t.Errorf("context message missing %q", frag)
		}
	}
	if msgs[2].Role != "user" || msgs[2].Content != "what now?" {
		t.Errorf("last message = %+v, want the user turn", msgs[2])
	}
}
