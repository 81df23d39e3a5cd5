package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hireloop/hireloop/internal/llm"
	"github.com/hireloop/hireloop/internal/storage"
	"github.com/hireloop/hireloop/internal/workflow"
)

// fakeCompleter implements both the reconciler's completion call and
// the legacy ChatClient.
type fakeCompleter struct {
	response string
	chunks   []string
	err      error
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	return f.response, f.err
}

func (f *fakeCompleter) CompleteStream(ctx context.Context, messages []llm.Message, onDelta func(string) error) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	var cumulative string
	for _, c := range f.chunks {
		cumulative += c
		if onDelta != nil {
			if err := onDelta(cumulative); err != nil {
				return cumulative, err
			}
		}
	}
	return cumulative, nil
}

func setupHandler(t *testing.T, completer *fakeCompleter) (http.Handler, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	service := workflow.NewService(store, completer)
	handler := NewHandler(Deps{
		Store:   store,
		Service: service,
		Chat:    completer,
		Version: "test",
	})
	return handler, store
}

func jsonReq(method, url, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func createTestWorkflow(t *testing.T, h http.Handler) string {
	t.Helper()
	rr := httptest.NewRecorder()
	body := `{"title":"Backend Engineer Hiring","workflow_type":"engineering","created_by":"u1"}`
	h.ServeHTTP(rr, jsonReq(http.MethodPost, "/api/workflows", body))
	if rr.Code != http.StatusCreated {
		t.Fatalf("creating workflow: status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding create response: %v", err)
	}
	return created.ID
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &e); err != nil {
		t.Fatalf("decoding error body %q: %v", rr.Body.String(), err)
	}
	return e.Error
}

func TestHealth(t *testing.T) {
	h, _ := setupHandler(t, &fakeCompleter{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodGet, "/health", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("response = %+v", resp)
	}
}

func TestCreateWorkflow(t *testing.T) {
	h, _ := setupHandler(t, &fakeCompleter{})

	rr := httptest.NewRecorder()
	body := `{"title":"Backend Engineer Hiring","workflow_type":"engineering","created_by":"u1"}`
	h.ServeHTTP(rr, jsonReq(http.MethodPost, "/api/workflows", body))

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body = %s", rr.Code, rr.Body.String())
	}
	var created struct {
		ID     string                 `json:"id"`
		Status string                 `json:"status"`
		Steps  []storage.WorkflowStep `json:"steps"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if created.ID == "" {
		t.Error("created workflow has no id")
	}
	if created.Status != storage.WorkflowDraft {
		t.Errorf("status = %q, want draft", created.Status)
	}
	if created.Steps == nil || len(created.Steps) != 0 {
		t.Errorf("steps = %+v, want empty list", created.Steps)
	}
}

func TestCreateWorkflowMissingFields(t *testing.T) {
	h, _ := setupHandler(t, &fakeCompleter{})

	cases := []struct {
		name string
		body string
	}{
		{"missing title", `{"workflow_type":"engineering","created_by":"u1"}`},
		{"missing workflow_type", `{"title":"T","created_by":"u1"}`},
		{"missing created_by", `{"title":"T","workflow_type":"engineering"}`},
		{"malformed body", `{not json`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, jsonReq(http.MethodPost, "/api/workflows", tc.body))
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body = %s", rr.Code, rr.Body.String())
			}
			if decodeError(t, rr) == "" {
				t.Error("error body missing error field")
			}
		})
	}
}

func TestCreateWorkflowGeneratesSteps(t *testing.T) {
	completer := &fakeCompleter{response: "- Screen resumes\ntype: task\n- Phone interview\nassigned_to: Recruiter"}
	h, store := setupHandler(t, completer)

	rr := httptest.NewRecorder()
	body := `{"title":"Backend Engineer Hiring","workflow_type":"engineering","created_by":"u1","generate_steps":true}`
	h.ServeHTTP(rr, jsonReq(http.MethodPost, "/api/workflows", body))

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body = %s", rr.Code, rr.Body.String())
	}
	var created struct {
		ID    string                 `json:"id"`
		Steps []storage.WorkflowStep `json:"steps"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(created.Steps) != 2 {
		t.Fatalf("generated %d steps, want 2: %+v", len(created.Steps), created.Steps)
	}
	if created.Steps[0].Title != "Screen resumes" || created.Steps[1].Title != "Phone interview" {
		t.Errorf("step titles = %q, %q", created.Steps[0].Title, created.Steps[1].Title)
	}

	persisted, err := store.ListSteps(created.ID)
	if err != nil {
		t.Fatalf("ListSteps: %v", err)
	}
	if len(persisted) != 2 {
		t.Errorf("persisted %d steps, want 2", len(persisted))
	}
}

// Generation is best-effort: a model failure must not fail creation.
func TestCreateWorkflowGenerationFailureStillCreates(t *testing.T) {
	completer := &fakeCompleter{err: &llm.CompletionError{Status: 500, Detail: "down"}}
	h, _ := setupHandler(t, completer)

	rr := httptest.NewRecorder()
	body := `{"title":"T","workflow_type":"engineering","created_by":"u1","generate_steps":true}`
	h.ServeHTTP(rr, jsonReq(http.MethodPost, "/api/workflows", body))

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body = %s", rr.Code, rr.Body.String())
	}
}

func TestGetWorkflowNotFound(t *testing.T) {
	h, _ := setupHandler(t, &fakeCompleter{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodGet, "/api/workflows/nope", ""))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	if got := decodeError(t, rr); got != "Workflow not found" {
		t.Errorf("error = %q, want %q", got, "Workflow not found")
	}
}

func TestGetWorkflowEmbedsSteps(t *testing.T) {
	h, store := setupHandler(t, &fakeCompleter{})
	id := createTestWorkflow(t, h)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodPost, "/api/workflows/"+id+"/steps", `{"title":"Screen resumes"}`))
	if rr.Code != http.StatusCreated {
		t.Fatalf("creating step: status = %d; body = %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodGet, "/api/workflows/"+id, ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var detail struct {
		ID    string                 `json:"id"`
		Steps []storage.WorkflowStep `json:"steps"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if detail.ID != id {
		t.Errorf("id = %q, want %q", detail.ID, id)
	}
	if len(detail.Steps) != 1 || detail.Steps[0].Title != "Screen resumes" {
		t.Errorf("steps = %+v", detail.Steps)
	}

	// The step also shows the storage defaults.
	st, err := store.GetStep(id, detail.Steps[0].ID)
	if err != nil {
		t.Fatalf("GetStep: %v", err)
	}
	if st.Status != storage.StepNotStarted || st.AssignedTo != "Unassigned" {
		t.Errorf("step defaults = %+v", st)
	}
}

func TestUpdateWorkflowStatus(t *testing.T) {
	h, _ := setupHandler(t, &fakeCompleter{})
	id := createTestWorkflow(t, h)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodPut, "/api/workflows/"+id, `{"status":"completed"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rr.Code, rr.Body.String())
	}
	var updated storage.Workflow
	if err := json.Unmarshal(rr.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if updated.Status != storage.WorkflowCompleted {
		t.Errorf("status = %q, want completed", updated.Status)
	}
	if updated.Title != "Backend Engineer Hiring" {
		t.Errorf("title changed by partial update: %q", updated.Title)
	}
}

func TestUpdateWorkflowImmutableField(t *testing.T) {
	h, _ := setupHandler(t, &fakeCompleter{})
	id := createTestWorkflow(t, h)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodPut, "/api/workflows/"+id, `{"created_by":"someone-else"}`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body = %s", rr.Code, rr.Body.String())
	}
	if got := decodeError(t, rr); !strings.Contains(got, "created_by") {
		t.Errorf("error = %q, want mention of the rejected field", got)
	}
}

func TestUpdateWorkflowInvalidStatus(t *testing.T) {
	h, _ := setupHandler(t, &fakeCompleter{})
	id := createTestWorkflow(t, h)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodPut, "/api/workflows/"+id, `{"status":"archived"}`))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400; body = %s", rr.Code, rr.Body.String())
	}
}

func TestDeleteWorkflow(t *testing.T) {
	h, _ := setupHandler(t, &fakeCompleter{})
	id := createTestWorkflow(t, h)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodDelete, "/api/workflows/"+id, ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodGet, "/api/workflows/"+id, ""))
	if rr.Code != http.StatusNotFound {
		t.Errorf("status after delete = %d, want 404", rr.Code)
	}
}

func TestListWorkflowsInvalidStatusFilter(t *testing.T) {
	h, _ := setupHandler(t, &fakeCompleter{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodGet, "/api/workflows?status=bogus", ""))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestUpdateStepNotFound(t *testing.T) {
	h, _ := setupHandler(t, &fakeCompleter{})
	id := createTestWorkflow(t, h)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodPut, "/api/workflows/"+id+"/steps/nope", `{"status":"completed"}`))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404; body = %s", rr.Code, rr.Body.String())
	}
	if got := decodeError(t, rr); got != "Step not found" {
		t.Errorf("error = %q, want %q", got, "Step not found")
	}
}

func TestCreateStepRequiresTitle(t *testing.T) {
	h, _ := setupHandler(t, &fakeCompleter{})
	id := createTestWorkflow(t, h)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodPost, "/api/workflows/"+id+"/steps", `{"type":"task"}`))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400; body = %s", rr.Code, rr.Body.String())
	}
}

// The end-to-end reconciliation scenario: one message creating two
// steps through action extraction.
func TestPostMessageReconciles(t *testing.T) {
	completer := &fakeCompleter{response: "Sure, let's schedule an interview and post the job listing."}
	h, store := setupHandler(t, completer)
	id := createTestWorkflow(t, h)

	rr := httptest.NewRecorder()
	body := `{"message":"Let's schedule an interview and post the job","sender":"user"}`
	h.ServeHTTP(rr, jsonReq(http.MethodPost, "/api/workflows/"+id+"/messages", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rr.Code, rr.Body.String())
	}
	var reply struct {
		Message string `json:"message"`
		Actions []struct {
			Type string `json:"type"`
		} `json:"actions"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if reply.Message != completer.response {
		t.Errorf("message = %q, want the completion text", reply.Message)
	}
	if len(reply.Actions) != 2 || reply.Actions[0].Type != "schedule" || reply.Actions[1].Type != "post_job" {
		t.Errorf("actions = %+v, want [schedule, post_job]", reply.Actions)
	}

	steps, err := store.ListSteps(id)
	if err != nil {
		t.Fatalf("ListSteps: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("persisted %d steps, want 2", len(steps))
	}
	if steps[0].Title != "Schedule Interview" || steps[1].Title != "Post Job Listing" {
		t.Errorf("step titles = %q, %q", steps[0].Title, steps[1].Title)
	}
	for _, st := range steps {
		if st.Status != storage.StepNotStarted {
			t.Errorf("step %q status = %q, want not_started", st.Title, st.Status)
		}
	}

	msgs, err := store.ListMessages(id, 10)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Message != "Let's schedule an interview and post the job" {
		t.Errorf("messages = %+v, want the inbound message", msgs)
	}
}

func TestPostMessageCompletionError(t *testing.T) {
	completer := &fakeCompleter{err: &llm.CompletionError{Status: 502, Detail: "upstream unavailable"}}
	h, store := setupHandler(t, completer)
	id := createTestWorkflow(t, h)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodPost, "/api/workflows/"+id+"/messages", `{"message":"hello"}`))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500; body = %s", rr.Code, rr.Body.String())
	}
	if got := decodeError(t, rr); !strings.Contains(got, "upstream unavailable") {
		t.Errorf("error = %q, want the upstream detail", got)
	}

	// Nothing persisted after a completion failure.
	msgs, err := store.ListMessages(id, 10)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("messages persisted despite completion failure: %+v", msgs)
	}
}

func TestPostMessageUnknownWorkflow(t *testing.T) {
	h, _ := setupHandler(t, &fakeCompleter{response: "hi"})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodPost, "/api/workflows/nope/messages", `{"message":"hello"}`))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404; body = %s", rr.Code, rr.Body.String())
	}
	if got := decodeError(t, rr); got != "Workflow not found" {
		t.Errorf("error = %q, want %q", got, "Workflow not found")
	}
}

func TestListMessagesNewestFirst(t *testing.T) {
	completer := &fakeCompleter{response: "noted"}
	h, _ := setupHandler(t, completer)
	id := createTestWorkflow(t, h)

	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		body := fmt.Sprintf(`{"message":"message %d"}`, i+1)
		h.ServeHTTP(rr, jsonReq(http.MethodPost, "/api/workflows/"+id+"/messages", body))
		if rr.Code != http.StatusOK {
			t.Fatalf("posting message %d: status = %d", i+1, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodGet, "/api/workflows/"+id+"/messages", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var msgs []storage.ChatMessage
	if err := json.Unmarshal(rr.Body.Bytes(), &msgs); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[0].Message != "message 3" || msgs[2].Message != "message 1" {
		t.Errorf("order = [%q .. %q], want newest first", msgs[0].Message, msgs[2].Message)
	}
}
