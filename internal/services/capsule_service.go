package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/capsulesync/internal/models"
	"github.com/prudhvinik1/capsulesync/internal/repositories"
)

// NotificationScheduler arranges a notice for the moment a capsule unlocks.
type NotificationScheduler interface {
	Schedule(ctx context.Context, capsuleID uuid.UUID, unlockAt time.Time) error
}

// RecipientDirectory resolves receiver identifiers to accounts.
type RecipientDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// CapsuleService keeps the local capsule cache in step with the remote store.
// The remote store is authoritative; the cache only serves fast first reads.
type CapsuleService struct {
	remote        repositories.RemoteCapsuleStore
	cache         repositories.CapsuleCache
	scheduler     NotificationScheduler
	recipients    RecipientDirectory
	notifyTimeout time.Duration
	logger        *slog.Logger
	now           func() time.Time

	notifications sync.WaitGroup
}

// NewCapsuleService wires the reconciler. recipients may be nil, in which case
// any non-nil receiver ID is accepted.
func NewCapsuleService(
	remote repositories.RemoteCapsuleStore,
	cache repositories.CapsuleCache,
	scheduler NotificationScheduler,
	recipients RecipientDirectory,
	notifyTimeout time.Duration,
	logger *slog.Logger,
) *CapsuleService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CapsuleService{
		remote:        remote,
		cache:         cache,
		scheduler:     scheduler,
		recipients:    recipients,
		notifyTimeout: notifyTimeout,
		logger:        logger,
		now:           time.Now,
	}
}

// CreateCapsule stores a new capsule remotely, mirrors it into the local cache
// and schedules its unlock notification.
//
// The capsule is written as locked even when unlockAt has already passed; the
// next remote delivery on the read path corrects the status.
func (s *CapsuleService) CreateCapsule(ctx context.Context, senderID, receiverID uuid.UUID, content string, unlockAt time.Time) (uuid.UUID, error) {
	if err := s.validate(ctx, senderID, receiverID, content, unlockAt); err != nil {
		return uuid.Nil, err
	}

	capsule := models.Capsule{
		Content:    content,
		SenderID:   senderID,
		ReceiverID: receiverID,
		UnlockAt:   unlockAt.UTC(),
		Status:     models.StatusLocked,
	}

	if err := s.remote.Insert(ctx, &capsule); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", ErrRemoteWrite, err)
	}

	// The remote row exists now, so the mirror write must not be cut short by
	// the caller going away.
	if err := s.cache.Upsert(context.WithoutCancel(ctx), capsule); err != nil {
		s.logger.Warn("capsule not mirrored to local cache",
			"capsule_id", capsule.ID,
			"receiver_id", capsule.ReceiverID,
			"error", fmt.Errorf("%w: %w", ErrLocalCache, err),
		)
	}

	s.scheduleNotification(capsule.ID, capsule.UnlockAt)

	s.logger.Info("capsule created",
		"capsule_id", capsule.ID,
		"sender_id", senderID,
		"receiver_id", receiverID,
		"unlock_at", capsule.UnlockAt,
	)
	return capsule.ID, nil
}

func (s *CapsuleService) validate(ctx context.Context, senderID, receiverID uuid.UUID, content string, unlockAt time.Time) error {
	switch {
	case strings.TrimSpace(content) == "":
		return fmt.Errorf("%w: content is required", ErrValidation)
	case senderID == uuid.Nil:
		return fmt.Errorf("%w: sender is required", ErrValidation)
	case receiverID == uuid.Nil:
		return fmt.Errorf("%w: receiver is required", ErrValidation)
	case unlockAt.IsZero():
		return fmt.Errorf("%w: unlock time is required", ErrValidation)
	}

	if s.recipients == nil {
		return nil
	}
	_, err := s.recipients.GetByID(ctx, receiverID)
	if errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("%w: unknown receiver %s", ErrValidation, receiverID)
	}
	if err != nil {
		return fmt.Errorf("failed to resolve receiver: %w", err)
	}
	return nil
}

// scheduleNotification hands the unlock time to the scheduler without waiting
// for it. Failures are logged and never retried.
func (s *CapsuleService) scheduleNotification(capsuleID uuid.UUID, unlockAt time.Time) {
	if s.scheduler == nil {
		return
	}

	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()

		if err := s.scheduler.Schedule(ctx, capsuleID, unlockAt); err != nil {
			s.logger.Warn("unlock notification not scheduled",
				"capsule_id", capsuleID,
				"unlock_at", unlockAt,
				"error", err,
			)
		}
	}()
}

// WaitForNotifications blocks until every scheduling call started so far has
// finished.
func (s *CapsuleService) WaitForNotifications() {
	s.notifications.Wait()
}

// ListCapsules returns the cached capsules of receiverID without touching the
// remote store.
func (s *CapsuleService) ListCapsules(ctx context.Context, receiverID uuid.UUID) ([]models.Capsule, error) {
	capsules, err := s.cache.QueryByReceiver(ctx, receiverID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLocalCache, err)
	}
	return capsules, nil
}

// WatchCapsules streams snapshots of the capsules addressed to receiverID. The
// first snapshot comes from the local cache; every later one is a remote
// delivery with freshly computed statuses, which also replaces the cached rows.
// The stream runs until the watch is cancelled, ctx is done, or the remote
// subscription fails.
func (s *CapsuleService) WatchCapsules(ctx context.Context, receiverID uuid.UUID) (*CapsuleWatch, error) {
	if receiverID == uuid.Nil {
		return nil, fmt.Errorf("%w: receiver is required", ErrValidation)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w := &CapsuleWatch{
		snapshots: make(chan []models.Capsule),
		done:      make(chan struct{}),
		cancel:    cancel,
	}
	go s.runWatch(watchCtx, w, receiverID)
	return w, nil
}

func (s *CapsuleService) runWatch(ctx context.Context, w *CapsuleWatch, receiverID uuid.UUID) {
	defer close(w.done)
	defer close(w.snapshots)

	local, err := s.cache.QueryByReceiver(ctx, receiverID)
	if err != nil {
		s.logger.Warn("local capsule snapshot unavailable",
			"receiver_id", receiverID,
			"error", fmt.Errorf("%w: %w", ErrLocalCache, err),
		)
		local = []models.Capsule{}
	}
	if !w.emit(ctx, local) {
		return
	}

	sub, err := s.remote.Subscribe(ctx, receiverID)
	if err != nil {
		if ctx.Err() == nil {
			w.fail(fmt.Errorf("%w: %w", ErrRemoteRead, err))
		}
		return
	}
	defer sub.Close()

	updates := sub.Updates()
	for {
		select {
		case <-ctx.Done():
			return
		case snapshot, ok := <-updates:
			if !ok {
				if ctx.Err() == nil {
					w.fail(fmt.Errorf("%w: subscription ended", ErrRemoteRead))
				}
				return
			}
			if snapshot.Err != nil {
				s.logger.Warn("remote capsule delivery failed",
					"receiver_id", receiverID,
					"error", snapshot.Err,
				)
				continue
			}

			capsules := s.reconcile(receiverID, snapshot.Capsules)

			// A cancelled watch must not write a snapshot it will never emit.
			if ctx.Err() != nil {
				return
			}
			if err := s.cache.ReplaceAll(ctx, receiverID, capsules); err != nil {
				s.logger.Warn("local capsule cache not refreshed",
					"receiver_id", receiverID,
					"error", fmt.Errorf("%w: %w", ErrLocalCache, err),
				)
			}

			if !w.emit(ctx, capsules) {
				return
			}
		}
	}
}

// reconcile recomputes every status against the current time. Whatever status
// the remote store returned is discarded.
func (s *CapsuleService) reconcile(receiverID uuid.UUID, remote []models.Capsule) []models.Capsule {
	now := s.now()
	capsules := make([]models.Capsule, 0, len(remote))
	for _, capsule := range remote {
		if capsule.ReceiverID != receiverID {
			continue
		}
		capsules = append(capsules, capsule.WithStatusAt(now))
	}
	return capsules
}

// CapsuleWatch is a running WatchCapsules stream.
type CapsuleWatch struct {
	snapshots chan []models.Capsule
	done      chan struct{}
	cancel    context.CancelFunc

	mu  sync.Mutex
	err error
}

// Snapshots yields capsule sets in delivery order. It is closed when the watch
// stops.
func (w *CapsuleWatch) Snapshots() <-chan []models.Capsule {
	return w.snapshots
}

// Err reports why the watch stopped. It is nil while the watch runs and after a
// cancellation.
func (w *CapsuleWatch) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Cancel stops the watch and releases its remote subscription. When Cancel
// returns the watch no longer writes to the local cache. It is safe to call
// more than once.
func (w *CapsuleWatch) Cancel() {
	w.cancel()
	<-w.done
}

// Done is closed once the watch has fully stopped.
func (w *CapsuleWatch) Done() <-chan struct{} {
	return w.done
}

func (w *CapsuleWatch) emit(ctx context.Context, capsules []models.Capsule) bool {
	select {
	case w.snapshots <- capsules:
		return true
	case <-ctx.Done():
		return false
	}
}

func (w *CapsuleWatch) fail(err error) {
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()
}
