package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type createCapsuleRequest struct {
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
	UnlockAt   string `json:"unlock_at"`
}

type createCapsuleResponse struct {
	ID uuid.UUID `json:"id"`
}

func (h *Handler) createCapsule(w http.ResponseWriter, r *http.Request) {
	user, err := h.identity.CurrentUser(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	var req createCapsuleRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	receiverID, err := uuid.Parse(req.ReceiverID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "receiver_id must be a UUID")
		return
	}
	unlockAt, err := time.Parse(time.RFC3339, req.UnlockAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unlock_at must be an RFC3339 timestamp")
		return
	}

	id, err := h.capsules.CreateCapsule(r.Context(), user.ID, receiverID, req.Content, unlockAt)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createCapsuleResponse{ID: id})
}

func (h *Handler) listCapsules(w http.ResponseWriter, r *http.Request) {
	user, err := h.identity.CurrentUser(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	capsules, err := h.capsules.ListCapsules(r.Context(), user.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"capsules": toCapsuleResponses(capsules)})
}

// watchCapsules streams the receiver's capsules as server-sent events, one
// "snapshot" event per emitted set. The stream ends with an "error" event if
// the remote subscription fails, or when the client disconnects.
func (h *Handler) watchCapsules(w http.ResponseWriter, r *http.Request) {
	user, err := h.identity.CurrentUser(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	watch, err := h.capsules.WatchCapsules(r.Context(), user.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	defer watch.Cancel()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for snapshot := range watch.Snapshots() {
		if err := writeEvent(w, "snapshot", toCapsuleResponses(snapshot)); err != nil {
			h.logger.Debug("watch client gone", "receiver_id", user.ID, "error", err)
			return
		}
		if err := rc.Flush(); err != nil {
			h.logger.Warn("watch stream not flushable", "error", err)
			return
		}
	}

	if err := watch.Err(); err != nil {
		h.logger.Warn("capsule watch ended", "receiver_id", user.ID, "error", err)
		if writeEvent(w, "error", errorResponse{Error: "capsule store unavailable"}) == nil {
			_ = rc.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
