package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"github.com/hireloop/hireloop/internal/storage"
)

// resumeExcerptLimit caps how much extracted resume text is kept as
// chat context.
const resumeExcerptLimit = 20000

// handleResumeUpload accepts a PDF resume, extracts its plain text,
// and appends it to the workflow chat history as a system message so
// later completions see it as context.
func handleResumeUpload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		r.Body = http.MaxBytesReader(w, r.Body, maxResumeBodySize)
		defer r.Body.Close()

		if _, err := deps.Store.GetWorkflow(id); err != nil {
			workflowLookupError(w, err)
			return
		}

		data, err := io.ReadAll(r.Body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "reading upload: %v", err)
			return
		}
		if len(data) == 0 {
			httpError(w, http.StatusBadRequest, "empty upload")
			return
		}

		text, err := extractPDFText(data)
		if err != nil {
			httpError(w, http.StatusBadRequest, "could not parse PDF: %v", err)
			return
		}
		if text == "" {
			httpError(w, http.StatusBadRequest, "PDF contains no extractable text")
			return
		}

		msg := storage.ChatMessage{
			ID:         uuid.New().String(),
			WorkflowID: id,
			Message:    "Resume received:\n" + text,
			Sender:     "system",
			CreatedAt:  time.Now().UTC(),
		}
		if err := deps.Store.SaveChatTurn(msg, nil); err != nil {
			httpError(w, http.StatusInternalServerError, "failed to save resume text: %v", err)
			return
		}

		writeJSON(w, http.StatusCreated, msg)
	}
}

func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	text := strings.TrimSpace(buf.String())
	if len(text) > resumeExcerptLimit {
		text = text[:resumeExcerptLimit]
	}
	return text, nil
}

// --- Integration stubs ---
//
// These endpoints stand in for an external-integration collaborator;
// they accept the request shape and return canned responses.

func handleLinkedInPost(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req struct {
			Content string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if req.Content == "" {
			httpError(w, http.StatusBadRequest, "content is required")
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"status":   "posted",
			"provider": "linkedin",
			"post_id":  uuid.New().String(),
		})
	}
}

func handleCalendarSlots(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req struct {
			Days int `json:"days"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		days := req.Days
		if days <= 0 || days > 14 {
			days = 3
		}

		// Two slots per weekday, starting tomorrow.
		var slots []string
		day := time.Now().UTC().AddDate(0, 0, 1)
		for len(slots) < days*2 {
			if day.Weekday() != time.Saturday && day.Weekday() != time.Sunday {
				morning := time.Date(day.Year(), day.Month(), day.Day(), 10, 0, 0, 0, time.UTC)
				afternoon := morning.Add(4 * time.Hour)
				slots = append(slots, morning.Format(time.RFC3339), afternoon.Format(time.RFC3339))
			}
			day = day.AddDate(0, 0, 1)
		}

		writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
	}
}

func handleBackgroundCheck(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req struct {
			Candidate string `json:"candidate"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if req.Candidate == "" {
			httpError(w, http.StatusBadRequest, "candidate is required")
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"status":   "initiated",
			"check_id": uuid.New().String(),
		})
	}
}
