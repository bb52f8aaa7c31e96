package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/capsulesync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(id string, accountID uuid.UUID, ttl time.Duration) *models.Session {
	return &models.Session{
		ID:        id,
		AccountID: accountID,
		ExpiresAt: time.Now().Add(ttl),
		CreatedAt: time.Now(),
	}
}

// TestSessionRepository_Create tests creating a session with TTL
func TestSessionRepository_Create(t *testing.T) {
	mr, client := getTestRedis(t)
	repo := NewRedisSessionRepository(client)
	ctx := context.Background()
	accountID := uuid.New()

	err := repo.Create(ctx, newSession("session-123", accountID, 24*time.Hour))
	require.NoError(t, err)

	retrieved, err := repo.GetByID(ctx, "session-123")
	require.NoError(t, err)
	assert.Equal(t, accountID, retrieved.AccountID)
	assert.True(t, mr.TTL("session:session-123") > 0, "session key must expire")

	sessions, err := repo.ListByAccountID(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, sessions, 1, "Account should have 1 session")
	assert.Equal(t, "session-123", sessions[0].ID)
}

func TestSessionRepository_CreateRejectsExpired(t *testing.T) {
	_, client := getTestRedis(t)
	repo := NewRedisSessionRepository(client)

	err := repo.Create(context.Background(), newSession("old", uuid.New(), -time.Minute))
	assert.Error(t, err)
}

// TestSessionRepository_Expiration tests the lazy cleanup of the account index
func TestSessionRepository_Expiration(t *testing.T) {
	mr, client := getTestRedis(t)
	repo := NewRedisSessionRepository(client)
	ctx := context.Background()
	accountID := uuid.New()

	require.NoError(t, repo.Create(ctx, newSession("expired-session", accountID, time.Second)))
	require.NoError(t, repo.Create(ctx, newSession("valid-session", accountID, 24*time.Hour)))

	mr.FastForward(2 * time.Second)

	sessions, err := repo.ListByAccountID(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, sessions, 1, "Should only have 1 valid session")
	assert.Equal(t, "valid-session", sessions[0].ID)

	_, err = repo.GetByID(ctx, "expired-session")
	assert.ErrorIs(t, err, ErrNotFound, "Expired session should not exist")

	members, err := client.SMembers(ctx, accountSessionsKey(accountID)).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"valid-session"}, members)
}

func TestSessionRepository_Delete(t *testing.T) {
	_, client := getTestRedis(t)
	repo := NewRedisSessionRepository(client)
	ctx := context.Background()
	accountID := uuid.New()

	require.NoError(t, repo.Create(ctx, newSession("session-to-delete", accountID, time.Hour)))

	require.NoError(t, repo.Delete(ctx, "session-to-delete"))

	_, err := repo.GetByID(ctx, "session-to-delete")
	assert.ErrorIs(t, err, ErrNotFound, "Session should be deleted")

	sessions, err := repo.ListByAccountID(ctx, accountID)
	require.NoError(t, err)
	assert.Empty(t, sessions, "Account should have no sessions")
}

func TestSessionRepository_DeleteMissing(t *testing.T) {
	_, client := getTestRedis(t)
	repo := NewRedisSessionRepository(client)

	err := repo.Delete(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionRepository_DeleteAllForAccount(t *testing.T) {
	_, client := getTestRedis(t)
	repo := NewRedisSessionRepository(client)
	ctx := context.Background()
	accountID := uuid.New()
	other := uuid.New()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, newSession(uuid.NewString(), accountID, time.Hour)))
	}
	require.NoError(t, repo.Create(ctx, newSession("other-session", other, time.Hour)))

	require.NoError(t, repo.DeleteAllForAccount(ctx, accountID))

	sessions, err := repo.ListByAccountID(ctx, accountID)
	require.NoError(t, err)
	assert.Empty(t, sessions, "Account should have no sessions")

	_, err = repo.GetByID(ctx, "other-session")
	assert.NoError(t, err, "other accounts keep their sessions")
}
