package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":"Workflow not found"}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestClientListWorkflows(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/workflows": `[{"id":"wf-1","title":"Backend Engineer Hiring","status":"draft"}]`,
	})

	resp, err := ts.client().get(ctx, "/api/workflows?status=draft")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var workflows []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := decodeJSON(resp, &workflows); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(workflows) != 1 || workflows[0].ID != "wf-1" {
		t.Errorf("workflows = %+v", workflows)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("recorded %d requests, want 1", len(ts.requests))
	}
	if ts.requests[0].Path != "/api/workflows?status=draft" {
		t.Errorf("path = %q, want the status filter preserved", ts.requests[0].Path)
	}
}

func TestClientPostMessage(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/workflows/wf-1/messages": `{"message":"On it.","actions":[{"type":"schedule","description":"Schedule an interview or meeting"}]}`,
	})

	resp, err := ts.client().post(ctx, "/api/workflows/wf-1/messages", map[string]string{
		"message": "schedule the interview",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var reply struct {
		Message string `json:"message"`
		Actions []struct {
			Type string `json:"type"`
		} `json:"actions"`
	}
	if err := decodeJSON(resp, &reply); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if reply.Message != "On it." || len(reply.Actions) != 1 {
		t.Errorf("reply = %+v", reply)
	}

	req := ts.requests[0]
	if req.Method != "POST" {
		t.Errorf("method = %q, want POST", req.Method)
	}
	if want := `{"message":"schedule the interview"}`; req.Body != want {
		t.Errorf("body = %q, want %q", req.Body, want)
	}
}

func TestClientErrorBody(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := ts.client().get(ctx, "/api/workflows/nope")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var v any
	err = decodeJSON(resp, &v)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if want := "Workflow not found"; !bytes.Contains([]byte(err.Error()), []byte(want)) {
		t.Errorf("error = %q, want it to carry the server body", err)
	}
}

func TestClientServerUnreachable(t *testing.T) {
	c := &apiClient{
		baseURL:    "http://127.0.0.1:1",
		httpClient: &http.Client{Timeout: time.Second},
	}

	if _, err := c.get(ctx, "/api/workflows"); err == nil {
		t.Fatal("expected error for unreachable server")
	}
}
