package repositories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/prudhvinik1/capsulesync/internal/models"
)

// ErrSubscriptionClosed is delivered when the change feed stops underneath an
// open subscription.
var ErrSubscriptionClosed = errors.New("capsule subscription closed by remote")

var _ RemoteCapsuleStore = (*CapsuleStore)(nil)

// CapsuleStore is the remote capsule store: rows live in the capsule repository
// and every write is announced on the change feed of its receiver.
type CapsuleStore struct {
	repo   CapsuleRepository
	feed   ChangeFeed
	logger *slog.Logger
}

func NewCapsuleStore(repo CapsuleRepository, feed ChangeFeed, logger *slog.Logger) *CapsuleStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CapsuleStore{repo: repo, feed: feed, logger: logger}
}

// Insert persists the capsule and announces it. A failed announcement is only
// logged: the row is written and the next delivery for the receiver includes it.
func (s *CapsuleStore) Insert(ctx context.Context, capsule *models.Capsule) error {
	if err := s.repo.Create(ctx, capsule); err != nil {
		return err
	}

	if err := s.feed.Publish(ctx, capsule.ReceiverID); err != nil {
		s.logger.Warn("capsule change not announced",
			"capsule_id", capsule.ID,
			"receiver_id", capsule.ReceiverID,
			"error", err,
		)
	}
	return nil
}

func (s *CapsuleStore) Get(ctx context.Context, id uuid.UUID) (*models.Capsule, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *CapsuleStore) NotifyChanged(ctx context.Context, receiverID uuid.UUID) error {
	return s.feed.Publish(ctx, receiverID)
}

// Subscribe opens a standing query for receiverID. The first update is the
// current full set; every change announced afterwards yields another full set.
func (s *CapsuleStore) Subscribe(ctx context.Context, receiverID uuid.UUID) (Subscription, error) {
	listener, err := s.feed.Listen(ctx, receiverID)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to receiver %s: %w", receiverID, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &capsuleSubscription{
		updates:  make(chan RemoteSnapshot),
		stopped:  make(chan struct{}),
		cancel:   cancel,
		listener: listener,
	}
	go sub.run(subCtx, s.repo, receiverID)
	return sub, nil
}

type capsuleSubscription struct {
	updates  chan RemoteSnapshot
	stopped  chan struct{}
	cancel   context.CancelFunc
	listener FeedListener

	releaseOnce sync.Once
	releaseErr  error
}

func (s *capsuleSubscription) Updates() <-chan RemoteSnapshot {
	return s.updates
}

func (s *capsuleSubscription) Close() error {
	s.cancel()
	<-s.stopped
	return s.release()
}

func (s *capsuleSubscription) release() error {
	s.releaseOnce.Do(func() {
		s.releaseErr = s.listener.Close()
	})
	return s.releaseErr
}

func (s *capsuleSubscription) run(ctx context.Context, repo CapsuleRepository, receiverID uuid.UUID) {
	defer close(s.stopped)
	defer close(s.updates)
	defer s.release()

	if !s.deliver(ctx, fetchSnapshot(ctx, repo, receiverID)) {
		return
	}

	changes := s.listener.Changes()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				s.deliver(ctx, RemoteSnapshot{Err: ErrSubscriptionClosed})
				return
			}
			if !s.deliver(ctx, fetchSnapshot(ctx, repo, receiverID)) {
				return
			}
		}
	}
}

func (s *capsuleSubscription) deliver(ctx context.Context, snapshot RemoteSnapshot) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case s.updates <- snapshot:
		return true
	case <-ctx.Done():
		return false
	}
}

func fetchSnapshot(ctx context.Context, repo CapsuleRepository, receiverID uuid.UUID) RemoteSnapshot {
	capsules, err := repo.ListByReceiver(ctx, receiverID)
	if err != nil {
		return RemoteSnapshot{Err: err}
	}
	return RemoteSnapshot{Capsules: capsules}
}
