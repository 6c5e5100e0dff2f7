package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles data access for notifications.
type Repository interface {
	Create(ctx context.Context, n Notification) (Notification, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed notification repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Create inserts a notification and returns the stored row.
func (r *PGRepository) Create(ctx context.Context, n Notification) (Notification, error) {
	metadata := n.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	payload, err := json.Marshal(metadata)
	if err != nil {
		return Notification{}, fmt.Errorf("notify: marshal metadata: %w", err)
	}

	const insertSQL = `
		INSERT INTO notifications (kind, title, message, related_id, related_type, metadata)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		RETURNING id, created_at
	`

	stored := n
	if err := r.pool.QueryRow(ctx, insertSQL,
		n.Kind,
		n.Title,
		n.Message,
		n.RelatedID,
		n.RelatedType,
		payload,
	).Scan(&stored.ID, &stored.CreatedAt); err != nil {
		return Notification{}, fmt.Errorf("notify: insert notification: %w", err)
	}

	return stored, nil
}
