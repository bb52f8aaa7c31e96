package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/capsulesync/internal/repositories"
)

const unlockBatchSize = 100

// UnlockNotifier turns scheduled unlock times into events. For every capsule
// whose time has come it records the unlock and pokes the receiver's change
// feed, so open watches recompute the status right away.
type UnlockNotifier struct {
	schedule repositories.NotificationSchedule
	remote   repositories.RemoteCapsuleStore
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewUnlockNotifier(
	schedule repositories.NotificationSchedule,
	remote repositories.RemoteCapsuleStore,
	interval time.Duration,
	logger *slog.Logger,
) *UnlockNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &UnlockNotifier{
		schedule: schedule,
		remote:   remote,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Start polls the schedule every interval until ctx is done.
func (n *UnlockNotifier) Start(ctx context.Context) {
	n.logger.Info("unlock notifier started", "interval", n.interval)

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		if _, err := n.RunOnce(ctx); err != nil && ctx.Err() == nil {
			n.logger.Warn("unlock poll failed", "error", err)
		}

		select {
		case <-ctx.Done():
			n.logger.Info("unlock notifier stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce processes every notification that is due and returns how many
// capsules were announced as unlocked.
func (n *UnlockNotifier) RunOnce(ctx context.Context) (int, error) {
	announced := 0
	for {
		due, err := n.schedule.PopDue(ctx, n.now(), unlockBatchSize)
		if err != nil {
			return announced, fmt.Errorf("failed to pop due notifications: %w", err)
		}

		for _, id := range due {
			if n.announce(ctx, id) {
				announced++
			}
		}

		if int64(len(due)) < unlockBatchSize {
			return announced, nil
		}
	}
}

func (n *UnlockNotifier) announce(ctx context.Context, capsuleID uuid.UUID) bool {
	capsule, err := n.remote.Get(ctx, capsuleID)
	if errors.Is(err, repositories.ErrNotFound) {
		n.logger.Warn("scheduled capsule no longer exists", "capsule_id", capsuleID)
		return false
	}
	if err != nil {
		n.retryLater(ctx, capsuleID, err)
		return false
	}

	if err := n.remote.NotifyChanged(ctx, capsule.ReceiverID); err != nil {
		n.retryLater(ctx, capsuleID, err)
		return false
	}

	n.logger.Info("capsule unlocked",
		"capsule_id", capsule.ID,
		"sender_id", capsule.SenderID,
		"receiver_id", capsule.ReceiverID,
		"unlock_at", capsule.UnlockAt,
	)
	return true
}

func (n *UnlockNotifier) retryLater(ctx context.Context, capsuleID uuid.UUID, cause error) {
	next := n.now().Add(n.interval)
	n.logger.Warn("unlock announcement failed, rescheduling",
		"capsule_id", capsuleID,
		"retry_at", next,
		"error", cause,
	)
	if err := n.schedule.Schedule(ctx, capsuleID, next); err != nil {
		n.logger.Error("unlock notification dropped", "capsule_id", capsuleID, "error", err)
	}
}
