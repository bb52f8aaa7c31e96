package repositories

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/capsulesync/internal/database"
	"github.com/prudhvinik1/capsulesync/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// getTestPool connects to TEST_DATABASE_URL and applies the schema. Tests that
// need Postgres are skipped when it is not set.
func getTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	pool, err := database.NewPostgresPool(context.Background(), url)
	require.NoError(t, err, "Failed to connect to test database")
	require.NoError(t, database.RunPostgresMigrations(pool))
	t.Cleanup(pool.Close)
	return pool
}

// getTestRedis starts an in-process Redis server for the test.
func getTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newTestCache(t *testing.T) *SQLiteCapsuleCache {
	t.Helper()

	db, err := database.NewInMemorySQLiteDB(context.Background(), t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cache := NewSQLiteCapsuleCache(db)
	require.NoError(t, cache.Init(context.Background()))
	return cache
}

func makeCapsule(receiverID uuid.UUID, content string, unlockAt time.Time) models.Capsule {
	return models.Capsule{
		ID:         uuid.New(),
		Content:    content,
		SenderID:   uuid.New(),
		ReceiverID: receiverID,
		UnlockAt:   unlockAt.UTC(),
		Status:     models.StatusLocked,
	}
}
