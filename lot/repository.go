package lot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrLotNotFound is returned when no lot row matches the key.
var ErrLotNotFound = errors.New("lot: not found")

// Repository handles data access for canonical lots.
type Repository interface {
	Upsert(ctx context.Context, l CanonicalLot) (CanonicalLot, error)
	SoftDelete(ctx context.Context, l CanonicalLot) error
	List(ctx context.Context) ([]CanonicalLot, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed lot repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const lotColumns = `external_id, lot_name, airline, volume_amount, volume_unit::text,
       price_per_unit, currency::text, ci_score, location, delivery_window,
       long_term, posted_on`

const lotInsertColumns = `external_id, lot_name, airline, volume_amount, volume_unit,
       price_per_unit, currency, ci_score, location, delivery_window,
       long_term, posted_on`

// Upsert stores a lot keyed by its upstream id when one looks like a valid
// identifier, else by the (lot_name, airline) natural key.
func (r *PGRepository) Upsert(ctx context.Context, l CanonicalLot) (CanonicalLot, error) {
	externalID := l.ID
	var upsertSQL string
	if looksLikeIdentifier(l.ID) {
		upsertSQL = `
			INSERT INTO lots (` + lotInsertColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (external_id) DO UPDATE
			SET lot_name = EXCLUDED.lot_name, airline = EXCLUDED.airline,
			    volume_amount = EXCLUDED.volume_amount, volume_unit = EXCLUDED.volume_unit,
			    price_per_unit = EXCLUDED.price_per_unit, currency = EXCLUDED.currency,
			    ci_score = EXCLUDED.ci_score, location = EXCLUDED.location,
			    delivery_window = EXCLUDED.delivery_window, long_term = EXCLUDED.long_term,
			    posted_on = EXCLUDED.posted_on, deleted = false, updated_at = now()
			RETURNING ` + lotColumns
	} else {
		// A title that leaked into the id field must not occupy the unique
		// external_id slot.
		externalID = ""
		upsertSQL = `
			INSERT INTO lots (` + lotInsertColumns + `)
			VALUES (NULLIF($1, ''), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (lot_name, airline) DO UPDATE
			SET volume_amount = EXCLUDED.volume_amount, volume_unit = EXCLUDED.volume_unit,
			    price_per_unit = EXCLUDED.price_per_unit, currency = EXCLUDED.currency,
			    ci_score = EXCLUDED.ci_score, location = EXCLUDED.location,
			    delivery_window = EXCLUDED.delivery_window, long_term = EXCLUDED.long_term,
			    posted_on = EXCLUDED.posted_on, deleted = false, updated_at = now()
			RETURNING ` + lotColumns
	}

	stored, err := scanLot(r.pool.QueryRow(ctx, upsertSQL,
		externalID,
		l.LotName,
		l.Airline,
		l.Volume,
		l.VolumeUnit,
		l.PricePerUnit,
		l.Currency,
		l.CIScore,
		l.Location,
		l.DeliveryWindow,
		l.LongTerm,
		l.PostedOn,
	))
	if err != nil {
		// The id-keyed insert can still collide with a row first stored
		// id-less under the same (lot_name, airline). Adopt that row and
		// backfill its external id.
		var pgErr *pgconn.PgError
		if externalID != "" && errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return r.adoptByNaturalKey(ctx, l)
		}
		return CanonicalLot{}, fmt.Errorf("lot: upsert: %w", err)
	}
	return stored, nil
}

func (r *PGRepository) adoptByNaturalKey(ctx context.Context, l CanonicalLot) (CanonicalLot, error) {
	const adoptSQL = `
		UPDATE lots
		SET external_id = $1, volume_amount = $4, volume_unit = $5,
		    price_per_unit = $6, currency = $7, ci_score = $8, location = $9,
		    delivery_window = $10, long_term = $11, posted_on = $12,
		    deleted = false, updated_at = now()
		WHERE lot_name = $2 AND airline = $3
		RETURNING ` + lotColumns

	stored, err := scanLot(r.pool.QueryRow(ctx, adoptSQL,
		l.ID,
		l.LotName,
		l.Airline,
		l.Volume,
		l.VolumeUnit,
		l.PricePerUnit,
		l.Currency,
		l.CIScore,
		l.Location,
		l.DeliveryWindow,
		l.LongTerm,
		l.PostedOn,
	))
	if err != nil {
		return CanonicalLot{}, fmt.Errorf("lot: adopt by natural key: %w", err)
	}
	return stored, nil
}

// SoftDelete flags a lot as deleted, keyed the same way as Upsert.
func (r *PGRepository) SoftDelete(ctx context.Context, l CanonicalLot) error {
	query := `UPDATE lots SET deleted = true, updated_at = now() WHERE lot_name = $1 AND airline = $2`
	args := []any{l.LotName, l.Airline}
	if looksLikeIdentifier(l.ID) {
		query = `UPDATE lots SET deleted = true, updated_at = now() WHERE external_id = $1`
		args = []any{l.ID}
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("lot: soft delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLotNotFound
	}
	return nil
}

// List returns all known, non-deleted lots, newest first.
func (r *PGRepository) List(ctx context.Context) ([]CanonicalLot, error) {
	const selectSQL = `
		SELECT ` + lotColumns + `
		FROM lots
		WHERE deleted = false
		ORDER BY posted_on DESC
	`

	rows, err := r.pool.Query(ctx, selectSQL)
	if err != nil {
		return nil, fmt.Errorf("lot: list: %w", err)
	}
	defer rows.Close()

	lots := make([]CanonicalLot, 0, 16)
	for rows.Next() {
		l, err := scanLot(rows)
		if err != nil {
			return nil, fmt.Errorf("lot: scan: %w", err)
		}
		lots = append(lots, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lot: iterate: %w", err)
	}
	return lots, nil
}

// looksLikeIdentifier accepts compact opaque ids (uuid, hex object ids).
// Human-readable titles that leaked into the id field fall back to the
// natural key.
func looksLikeIdentifier(id string) bool {
	if len(id) < 8 || len(id) > 64 {
		return false
	}
	return !strings.ContainsAny(id, " \t\n")
}

func scanLot(row pgx.Row) (CanonicalLot, error) {
	var (
		l          CanonicalLot
		externalID *string
	)
	if err := row.Scan(
		&externalID,
		&l.LotName,
		&l.Airline,
		&l.Volume,
		&l.VolumeUnit,
		&l.PricePerUnit,
		&l.Currency,
		&l.CIScore,
		&l.Location,
		&l.DeliveryWindow,
		&l.LongTerm,
		&l.PostedOn,
	); err != nil {
		return CanonicalLot{}, err
	}
	if externalID != nil {
		l.ID = *externalID
	}
	return l, nil
}
