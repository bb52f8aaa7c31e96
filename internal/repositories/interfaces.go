package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/capsulesync/internal/models"
)

type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteAllForAccount(ctx context.Context, accountID uuid.UUID) error
}

// CapsuleRepository is the authoritative capsule table.
type CapsuleRepository interface {
	Create(ctx context.Context, capsule *models.Capsule) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Capsule, error)
	ListByReceiver(ctx context.Context, receiverID uuid.UUID) ([]models.Capsule, error)
}

// CapsuleCache is the local, non-authoritative replica of a receiver's capsules.
type CapsuleCache interface {
	Init(ctx context.Context) error
	Upsert(ctx context.Context, capsule models.Capsule) error
	ReplaceAll(ctx context.Context, receiverID uuid.UUID, capsules []models.Capsule) error
	QueryByReceiver(ctx context.Context, receiverID uuid.UUID) ([]models.Capsule, error)
}

// ChangeFeed signals that the capsule set of a receiver may have changed.
type ChangeFeed interface {
	Publish(ctx context.Context, receiverID uuid.UUID) error
	Listen(ctx context.Context, receiverID uuid.UUID) (FeedListener, error)
}

// FeedListener yields one value per observed change. Pending changes may be
// coalesced. The channel is closed once the listener is closed.
type FeedListener interface {
	Changes() <-chan struct{}
	Close() error
}

// RemoteCapsuleStore is the multi-writer source of truth with push-based
// queries by receiver.
type RemoteCapsuleStore interface {
	Insert(ctx context.Context, capsule *models.Capsule) error
	Get(ctx context.Context, id uuid.UUID) (*models.Capsule, error)
	Subscribe(ctx context.Context, receiverID uuid.UUID) (Subscription, error)
	NotifyChanged(ctx context.Context, receiverID uuid.UUID) error
}

// Subscription delivers full snapshots of a receiver's capsules until closed.
// Close is idempotent; Updates is closed once delivery has stopped.
type Subscription interface {
	Updates() <-chan RemoteSnapshot
	Close() error
}

// RemoteSnapshot is one delivery of a subscription. Err is set when the
// snapshot could not be read; the subscription keeps running.
type RemoteSnapshot struct {
	Capsules []models.Capsule
	Err      error
}

type NotificationSchedule interface {
	Schedule(ctx context.Context, capsuleID uuid.UUID, unlockAt time.Time) error
	PopDue(ctx context.Context, now time.Time, limit int64) ([]uuid.UUID, error)
}
