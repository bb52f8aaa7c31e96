package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/capsulesync/internal/models"
)

const capsuleColumns = `id, content, sender_id, receiver_id, unlock_at, status, created_at`

type PostgresCapsuleRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresCapsuleRepository(pool *pgxpool.Pool) *PostgresCapsuleRepository {
	return &PostgresCapsuleRepository{pool: pool}
}

// Create inserts the capsule and fills in the store-assigned ID and CreatedAt.
func (r *PostgresCapsuleRepository) Create(ctx context.Context, capsule *models.Capsule) error {
	query := `INSERT INTO capsules (content, sender_id, receiver_id, unlock_at, status)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query,
		capsule.Content,
		capsule.SenderID,
		capsule.ReceiverID,
		capsule.UnlockAt.UTC(),
		string(capsule.Status),
	).Scan(&capsule.ID, &capsule.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create capsule: %w", err)
	}
	return nil
}

func (r *PostgresCapsuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Capsule, error) {
	query := `SELECT ` + capsuleColumns + ` FROM capsules WHERE id = $1`

	capsule, err := scanCapsule(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get capsule by ID: %w", err)
	}
	return &capsule, nil
}

func (r *PostgresCapsuleRepository) ListByReceiver(ctx context.Context, receiverID uuid.UUID) ([]models.Capsule, error) {
	query := `SELECT ` + capsuleColumns + `
	          FROM capsules
	          WHERE receiver_id = $1
	          ORDER BY unlock_at ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, receiverID)
	if err != nil {
		return nil, fmt.Errorf("failed to query capsules: %w", err)
	}
	defer rows.Close()

	capsules := []models.Capsule{}
	for rows.Next() {
		capsule, err := scanCapsule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan capsule: %w", err)
		}
		capsules = append(capsules, capsule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating capsules: %w", err)
	}

	return capsules, nil
}

func scanCapsule(row pgx.Row) (models.Capsule, error) {
	var (
		capsule models.Capsule
		status  string
	)
	err := row.Scan(
		&capsule.ID,
		&capsule.Content,
		&capsule.SenderID,
		&capsule.ReceiverID,
		&capsule.UnlockAt,
		&status,
		&capsule.CreatedAt,
	)
	if err != nil {
		return models.Capsule{}, err
	}
	capsule.Status = models.CapsuleStatus(status)
	capsule.UnlockAt = capsule.UnlockAt.UTC()
	return capsule, nil
}
