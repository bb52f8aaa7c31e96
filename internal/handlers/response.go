package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/capsulesync/internal/models"
	"github.com/prudhvinik1/capsulesync/internal/services"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

// CapsuleResponse is the JSON form of a capsule. Content is only present once
// the capsule is unlocked.
type CapsuleResponse struct {
	ID         uuid.UUID `json:"id"`
	SenderID   uuid.UUID `json:"sender_id"`
	ReceiverID uuid.UUID `json:"receiver_id"`
	UnlockAt   string    `json:"unlock_at"`
	Status     string    `json:"status"`
	Content    string    `json:"content,omitempty"`
}

func toCapsuleResponse(c models.Capsule) CapsuleResponse {
	res := CapsuleResponse{
		ID:         c.ID,
		SenderID:   c.SenderID,
		ReceiverID: c.ReceiverID,
		UnlockAt:   c.UnlockAt.UTC().Format(time.RFC3339),
		Status:     string(c.Status),
	}
	if c.IsUnlocked() {
		res.Content = c.Content
	}
	return res
}

func toCapsuleResponses(capsules []models.Capsule) []CapsuleResponse {
	out := make([]CapsuleResponse, 0, len(capsules))
	for _, c := range capsules {
		out = append(out, toCapsuleResponse(c))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeServiceError maps service errors onto status codes. Client errors echo
// the message; server errors are logged and answered generically.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrEmailExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, services.ErrInvalidToken),
		errors.Is(err, services.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, services.ErrRemoteWrite), errors.Is(err, services.ErrRemoteRead):
		h.logger.Error("remote capsule store failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadGateway, "capsule store unavailable")
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
