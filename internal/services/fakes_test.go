package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/capsulesync/internal/database"
	"github.com/prudhvinik1/capsulesync/internal/models"
	"github.com/prudhvinik1/capsulesync/internal/repositories"
	"github.com/stretchr/testify/require"
)

// fakeRemote is an in-memory remote capsule store whose deliveries are driven
// by the test.
type fakeRemote struct {
	mu           sync.Mutex
	capsules     []models.Capsule
	subs         []*fakeSubscription
	insertErr    error
	subscribeErr error
	getErr       error
	notified     []uuid.UUID
}

func (r *fakeRemote) Insert(_ context.Context, capsule *models.Capsule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	capsule.ID = uuid.New()
	capsule.CreatedAt = time.Now().UTC()
	r.capsules = append(r.capsules, *capsule)
	return nil
}

// put stores a capsule as another writer would, without any local side effect.
func (r *fakeRemote) put(capsule models.Capsule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capsules = append(r.capsules, capsule)
}

func (r *fakeRemote) Get(_ context.Context, id uuid.UUID) (*models.Capsule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	for _, c := range r.capsules {
		if c.ID == id {
			found := c
			return &found, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeRemote) NotifyChanged(_ context.Context, receiverID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notified = append(r.notified, receiverID)
	return nil
}

func (r *fakeRemote) Subscribe(_ context.Context, receiverID uuid.UUID) (repositories.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subscribeErr != nil {
		return nil, r.subscribeErr
	}
	sub := &fakeSubscription{
		receiverID: receiverID,
		updates:    make(chan repositories.RemoteSnapshot),
		closed:     make(chan struct{}),
	}
	r.subs = append(r.subs, sub)
	return sub, nil
}

func (r *fakeRemote) subscription(t *testing.T) *fakeSubscription {
	t.Helper()
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.subs) > 0
	}, 2*time.Second, 5*time.Millisecond, "no subscription opened")

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subs[len(r.subs)-1]
}

func (r *fakeRemote) snapshotFor(receiverID uuid.UUID) []models.Capsule {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Capsule{}
	for _, c := range r.capsules {
		if c.ReceiverID == receiverID {
			out = append(out, c)
		}
	}
	return out
}

type fakeSubscription struct {
	receiverID uuid.UUID
	updates    chan repositories.RemoteSnapshot
	closed     chan struct{}
	closeOnce  sync.Once
}

func (s *fakeSubscription) Updates() <-chan repositories.RemoteSnapshot {
	return s.updates
}

func (s *fakeSubscription) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// deliver pushes a snapshot and reports whether the watcher accepted it.
func (s *fakeSubscription) deliver(snapshot repositories.RemoteSnapshot) bool {
	select {
	case s.updates <- snapshot:
		return true
	case <-s.closed:
		return false
	case <-time.After(2 * time.Second):
		return false
	}
}

func (s *fakeSubscription) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

type scheduledCall struct {
	capsuleID uuid.UUID
	unlockAt  time.Time
}

type fakeScheduler struct {
	mu    sync.Mutex
	calls []scheduledCall
	err   error
}

func (s *fakeScheduler) Schedule(_ context.Context, capsuleID uuid.UUID, unlockAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, scheduledCall{capsuleID: capsuleID, unlockAt: unlockAt})
	return s.err
}

func (s *fakeScheduler) scheduled() []scheduledCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scheduledCall(nil), s.calls...)
}

// failingCache accepts nothing.
type failingCache struct{}

var errCacheDown = errors.New("disk full")

func (failingCache) Init(context.Context) error { return errCacheDown }
func (failingCache) Upsert(context.Context, models.Capsule) error {
	return errCacheDown
}
func (failingCache) ReplaceAll(context.Context, uuid.UUID, []models.Capsule) error {
	return errCacheDown
}
func (failingCache) QueryByReceiver(context.Context, uuid.UUID) ([]models.Capsule, error) {
	return nil, errCacheDown
}

type fakeDirectory struct {
	known map[uuid.UUID]bool
}

func (d fakeDirectory) GetByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	if !d.known[id] {
		return nil, repositories.ErrNotFound
	}
	return &models.Account{ID: id}, nil
}

func newTestCache(t *testing.T) *repositories.SQLiteCapsuleCache {
	t.Helper()

	db, err := database.NewInMemorySQLiteDB(context.Background(), t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cache := repositories.NewSQLiteCapsuleCache(db)
	require.NoError(t, cache.Init(context.Background()))
	return cache
}

func nextSnapshot(t *testing.T, w *CapsuleWatch) []models.Capsule {
	t.Helper()
	select {
	case snap, ok := <-w.Snapshots():
		require.True(t, ok, "watch stopped unexpectedly: %v", w.Err())
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func waitStopped(t *testing.T, w *CapsuleWatch) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

type memoryAccountRepository struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.Account
}

func newMemoryAccountRepository() *memoryAccountRepository {
	return &memoryAccountRepository{accounts: make(map[uuid.UUID]*models.Account)}
}

func (r *memoryAccountRepository) Create(_ context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account.ID = uuid.New()
	account.CreatedAt = time.Now().UTC()
	account.UpdatedAt = account.CreatedAt
	stored := *account
	r.accounts[account.ID] = &stored
	return nil
}

func (r *memoryAccountRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	found := *account
	return &found, nil
}

func (r *memoryAccountRepository) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.accounts {
		if account.Email == email {
			found := *account
			return &found, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *memoryAccountRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.accounts, id)
	return nil
}
