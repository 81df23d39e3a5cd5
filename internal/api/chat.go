package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hireloop/hireloop/internal/llm"
	"github.com/hireloop/hireloop/internal/storage"
	"github.com/hireloop/hireloop/internal/workflow"
)

// chatLogPageSize bounds the legacy log listing.
const chatLogPageSize = 500

type chatRequest struct {
	Message  string        `json:"message"`
	Messages []llm.Message `json:"messages"`
	System   string        `json:"system"`
	Stream   bool          `json:"stream"`
}

// streamEvent is one SSE payload of the legacy streaming protocol.
// Text carries the cumulative response so far: each event replaces the
// previously displayed text rather than appending to it.
type streamEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func handleChatPing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Chat endpoint is ready",
	})
}

// handleChat is the legacy single-thread chat endpoint: no workflow
// context, no persistence, optional SSE streaming.
func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if req.Message == "" && len(req.Messages) == 0 {
			httpError(w, http.StatusBadRequest, "Missing message field")
			return
		}

		system := req.System
		if system == "" {
			system = workflow.SystemPrompt
		}
		messages := []llm.Message{{Role: "system", Content: system}}
		if len(req.Messages) > 0 {
			messages = append(messages, req.Messages...)
		} else {
			messages = append(messages, llm.Message{Role: "user", Content: req.Message})
		}

		if req.Stream {
			streamChat(w, r, deps, messages)
			return
		}

		text, err := deps.Chat.Complete(r.Context(), messages)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"response": text})
	}
}

// streamChat emits the completion as an SSE stream of cumulative-text
// events, terminated by stream close. A client disconnect cancels the
// upstream request through the request context.
func streamChat(w http.ResponseWriter, r *http.Request, deps Deps, messages []llm.Message) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	enc := json.NewEncoder(w)
	_, err := deps.Chat.CompleteStream(r.Context(), messages, func(cumulative string) error {
		if _, err := w.Write([]byte("data: ")); err != nil {
			return err
		}
		if err := enc.Encode(streamEvent{Type: "text", Text: cumulative}); err != nil {
			return err
		}
		// Encode already wrote one newline; SSE events end with a blank line.
		if _, err := w.Write([]byte("\n")); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil && !errors.Is(err, r.Context().Err()) {
		slog.Warn("chat stream aborted", "error", err)
	}
}

// --- Legacy single-thread chat log ---

type chatLogRequest struct {
	UserID    string `json:"user_id"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func handleChatLog(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chatLogRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		for field, v := range map[string]string{
			"user_id":   req.UserID,
			"sender":    req.Sender,
			"message":   req.Message,
			"timestamp": req.Timestamp,
		} {
			if v == "" {
				httpError(w, http.StatusBadRequest, "Missing required field: %s", field)
				return
			}
		}

		ts, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid timestamp: %v", err)
			return
		}

		entry := storage.ChatLogEntry{
			ID:        uuid.New().String(),
			UserID:    req.UserID,
			Message:   req.Message,
			Sender:    req.Sender,
			Timestamp: ts,
		}
		if err := deps.Store.AppendChatLog(entry); err != nil {
			httpError(w, http.StatusInternalServerError, "failed to log message: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "success",
			"message": "Message logged successfully",
			"data":    entry,
		})
	}
}

func handleChatLogs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := deps.Store.ListChatLog(chatLogPageSize)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to list chat logs: %v", err)
			return
		}
		if entries == nil {
			entries = []storage.ChatLogEntry{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": entries})
	}
}
