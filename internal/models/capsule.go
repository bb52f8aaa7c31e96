package models

import (
	"time"

	"github.com/google/uuid"
)

type CapsuleStatus string

const (
	StatusLocked   CapsuleStatus = "locked"
	StatusUnlocked CapsuleStatus = "unlocked"
)

// Capsule is a message that becomes readable once UnlockAt has passed.
// Status is derived from UnlockAt and is only a snapshot wherever it is stored.
type Capsule struct {
	ID         uuid.UUID     `json:"id"`
	Content    string        `json:"content"`
	SenderID   uuid.UUID     `json:"sender_id"`
	ReceiverID uuid.UUID     `json:"receiver_id"`
	UnlockAt   time.Time     `json:"unlock_at"`
	Status     CapsuleStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
}

// ComputeStatus reports whether a capsule unlocking at unlockAt is readable at now.
// The boundary instant counts as unlocked.
func ComputeStatus(unlockAt, now time.Time) CapsuleStatus {
	if !now.Before(unlockAt) {
		return StatusUnlocked
	}
	return StatusLocked
}

// WithStatusAt returns a copy of c with Status recomputed for now.
func (c Capsule) WithStatusAt(now time.Time) Capsule {
	c.Status = ComputeStatus(c.UnlockAt, now)
	return c
}

func (c Capsule) IsUnlocked() bool {
	return c.Status == StatusUnlocked
}
