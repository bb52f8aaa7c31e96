package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/capsulesync/internal/database"
	"github.com/prudhvinik1/capsulesync/internal/models"
)

// cacheTimeLayout is fixed width so that unlock_at sorts lexically.
const cacheTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var _ CapsuleCache = (*SQLiteCapsuleCache)(nil)

// SQLiteCapsuleCache stores one row per capsule with every column as TEXT.
type SQLiteCapsuleCache struct {
	db *database.SQLiteDB
}

func NewSQLiteCapsuleCache(db *database.SQLiteDB) *SQLiteCapsuleCache {
	return &SQLiteCapsuleCache{db: db}
}

// Init creates the cache schema if it does not exist yet.
func (c *SQLiteCapsuleCache) Init(ctx context.Context) error {
	if err := c.db.Migrate(); err != nil {
		return fmt.Errorf("failed to init capsule cache: %w", err)
	}
	return nil
}

func (c *SQLiteCapsuleCache) Upsert(ctx context.Context, capsule models.Capsule) error {
	if err := upsertCapsuleRow(ctx, c.db.Writer, capsule); err != nil {
		return fmt.Errorf("failed to upsert cached capsule %s: %w", capsule.ID, err)
	}
	return nil
}

// ReplaceAll makes capsules the complete cached set for receiverID. Rows of the
// receiver that are absent from capsules are removed; other receivers are untouched.
func (c *SQLiteCapsuleCache) ReplaceAll(ctx context.Context, receiverID uuid.UUID, capsules []models.Capsule) error {
	for _, capsule := range capsules {
		if capsule.ReceiverID != receiverID {
			return fmt.Errorf("capsule %s belongs to receiver %s, not %s", capsule.ID, capsule.ReceiverID, receiverID)
		}
	}

	tx, err := c.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cache replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM capsules WHERE receiver_id = ?`, receiverID.String()); err != nil {
		return fmt.Errorf("failed to clear cached capsules: %w", err)
	}

	for _, capsule := range capsules {
		if err := upsertCapsuleRow(ctx, tx, capsule); err != nil {
			return fmt.Errorf("failed to cache capsule %s: %w", capsule.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache replace: %w", err)
	}
	return nil
}

func (c *SQLiteCapsuleCache) QueryByReceiver(ctx context.Context, receiverID uuid.UUID) ([]models.Capsule, error) {
	const query = `SELECT id, content, sender_id, receiver_id, unlock_at, status
	               FROM capsules
	               WHERE receiver_id = ?
	               ORDER BY unlock_at ASC, id ASC`

	rows, err := c.db.Reader.QueryContext(ctx, query, receiverID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query cached capsules: %w", err)
	}
	defer rows.Close()

	capsules := []models.Capsule{}
	for rows.Next() {
		var id, content, senderID, rowReceiverID, unlockAt, status sql.NullString
		if err := rows.Scan(&id, &content, &senderID, &rowReceiverID, &unlockAt, &status); err != nil {
			return nil, fmt.Errorf("failed to scan cached capsule: %w", err)
		}

		capsule, err := decodeCachedCapsule(id.String, content.String, senderID.String, rowReceiverID.String, unlockAt.String, status.String)
		if err != nil {
			return nil, err
		}
		capsules = append(capsules, capsule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cached capsules: %w", err)
	}

	return capsules, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertCapsuleRow(ctx context.Context, db execer, capsule models.Capsule) error {
	const query = `INSERT INTO capsules (id, content, sender_id, receiver_id, unlock_at, status)
	               VALUES (?, ?, ?, ?, ?, ?)
	               ON CONFLICT(id) DO UPDATE SET
	                   content = excluded.content,
	                   sender_id = excluded.sender_id,
	                   receiver_id = excluded.receiver_id,
	                   unlock_at = excluded.unlock_at,
	                   status = excluded.status`

	_, err := db.ExecContext(ctx, query,
		capsule.ID.String(),
		capsule.Content,
		capsule.SenderID.String(),
		capsule.ReceiverID.String(),
		capsule.UnlockAt.UTC().Format(cacheTimeLayout),
		string(capsule.Status),
	)
	return err
}

func decodeCachedCapsule(id, content, senderID, receiverID, unlockAt, status string) (models.Capsule, error) {
	capsuleID, err := uuid.Parse(id)
	if err != nil {
		return models.Capsule{}, fmt.Errorf("cached capsule has invalid id %q: %w", id, err)
	}
	sender, err := uuid.Parse(senderID)
	if err != nil {
		return models.Capsule{}, fmt.Errorf("cached capsule %s has invalid sender: %w", capsuleID, err)
	}
	receiver, err := uuid.Parse(receiverID)
	if err != nil {
		return models.Capsule{}, fmt.Errorf("cached capsule %s has invalid receiver: %w", capsuleID, err)
	}
	unlock, err := time.Parse(cacheTimeLayout, unlockAt)
	if err != nil {
		return models.Capsule{}, fmt.Errorf("cached capsule %s has invalid unlock time: %w", capsuleID, err)
	}

	return models.Capsule{
		ID:         capsuleID,
		Content:    content,
		SenderID:   sender,
		ReceiverID: receiver,
		UnlockAt:   unlock.UTC(),
		Status:     models.CapsuleStatus(status),
	}, nil
}
