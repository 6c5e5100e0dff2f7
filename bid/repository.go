package bid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrBidNotFound is returned when no bid row exists for the key.
	ErrBidNotFound = errors.New("bid: not found")
	// ErrDuplicateExternalID signals a collision on the correlation key.
	ErrDuplicateExternalID = errors.New("bid: duplicate external bid id")
	// ErrTerminalStatus signals that the bid already reached a terminal
	// status and the requested transition was not applied.
	ErrTerminalStatus = errors.New("bid: terminal status")
)

// CreateParams enumerates the fields required to insert a new bid.
type CreateParams struct {
	ExternalBidID string
	LotID         string
	VolumeAmount  float64
	VolumeUnit    string
	Price         float64
	PricePerUnit  float64
	Currency      string
}

// Repository handles data access for producer bids. Status changes are
// single atomic updates keyed by external_bid_id so concurrent deliveries of
// the same event cannot lose updates.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (ProducerBid, error)
	GetByExternalID(ctx context.Context, externalBidID string) (ProducerBid, error)
	MarkSubmitted(ctx context.Context, externalBidID string) (ProducerBid, error)
	MarkWon(ctx context.Context, externalBidID, buyerBidID string) (ProducerBid, error)
	MarkLost(ctx context.Context, externalBidID, reason string) (ProducerBid, error)
	RecordCounterOffer(ctx context.Context, externalBidID string, offer CounterOffer) (ProducerBid, error)
	SupersedePrevious(ctx context.Context, lotID, keepExternalBidID string) (int64, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed bid repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const bidColumns = `id, external_bid_id, lot_id, volume_amount, volume_unit,
       price, price_per_unit, currency, status::text, buyer_bid_id,
       rejection_reason, counter_offer, created_at, updated_at`

// Create inserts a new bid in draft status.
func (r *PGRepository) Create(ctx context.Context, params CreateParams) (ProducerBid, error) {
	if params.ExternalBidID == "" {
		return ProducerBid{}, fmt.Errorf("bid: external bid id required")
	}
	if params.LotID == "" {
		return ProducerBid{}, fmt.Errorf("bid: lot id required")
	}

	const insertSQL = `
		INSERT INTO producer_bids (external_bid_id, lot_id, volume_amount, volume_unit,
		                           price, price_per_unit, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'draft')
		RETURNING ` + bidColumns

	b, err := scanBid(r.pool.QueryRow(ctx, insertSQL,
		params.ExternalBidID,
		params.LotID,
		params.VolumeAmount,
		params.VolumeUnit,
		params.Price,
		params.PricePerUnit,
		params.Currency,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ProducerBid{}, ErrDuplicateExternalID
		}
		return ProducerBid{}, fmt.Errorf("bid: create: %w", err)
	}
	return b, nil
}

// GetByExternalID retrieves a bid by its correlation key.
func (r *PGRepository) GetByExternalID(ctx context.Context, externalBidID string) (ProducerBid, error) {
	const selectSQL = `SELECT ` + bidColumns + ` FROM producer_bids WHERE external_bid_id = $1`

	b, err := scanBid(r.pool.QueryRow(ctx, selectSQL, externalBidID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProducerBid{}, ErrBidNotFound
		}
		return ProducerBid{}, fmt.Errorf("bid: get by external id: %w", err)
	}
	return b, nil
}

// MarkSubmitted moves a draft bid to submitted after the outbound call
// succeeded. A bid the counterpart already resolved via a fast callback is
// left in that state: after submission only inbound events move the status.
func (r *PGRepository) MarkSubmitted(ctx context.Context, externalBidID string) (ProducerBid, error) {
	const updateSQL = `
		UPDATE producer_bids
		SET status = 'submitted', updated_at = now()
		WHERE external_bid_id = $1 AND status = 'draft'
		RETURNING ` + bidColumns

	b, err := scanBid(r.pool.QueryRow(ctx, updateSQL, externalBidID))
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return ProducerBid{}, fmt.Errorf("bid: mark submitted: %w", err)
	}
	return r.GetByExternalID(ctx, externalBidID)
}

// MarkWon records an accepted bid together with the counterpart's bid id.
// Redelivery of the same acceptance is idempotent; a bid already lost or
// superseded stays that way.
func (r *PGRepository) MarkWon(ctx context.Context, externalBidID, buyerBidID string) (ProducerBid, error) {
	const updateSQL = `
		UPDATE producer_bids
		SET status = 'won', buyer_bid_id = NULLIF($2, ''), updated_at = now()
		WHERE external_bid_id = $1 AND status NOT IN ('lost', 'superseded')
		RETURNING ` + bidColumns

	return r.applyTransition(ctx, updateSQL, externalBidID, buyerBidID)
}

// MarkLost records a rejected bid and the buyer's reason when present.
func (r *PGRepository) MarkLost(ctx context.Context, externalBidID, reason string) (ProducerBid, error) {
	const updateSQL = `
		UPDATE producer_bids
		SET status = 'lost', rejection_reason = NULLIF($2, ''), updated_at = now()
		WHERE external_bid_id = $1 AND status NOT IN ('won', 'superseded')
		RETURNING ` + bidColumns

	return r.applyTransition(ctx, updateSQL, externalBidID, reason)
}

// RecordCounterOffer stores the buyer's revision and moves the bid to
// counter_offer.
func (r *PGRepository) RecordCounterOffer(ctx context.Context, externalBidID string, offer CounterOffer) (ProducerBid, error) {
	payload, err := json.Marshal(offer)
	if err != nil {
		return ProducerBid{}, fmt.Errorf("bid: marshal counter offer: %w", err)
	}

	const updateSQL = `
		UPDATE producer_bids
		SET status = 'counter_offer', counter_offer = $2::jsonb,
		    buyer_bid_id = COALESCE(NULLIF($3, ''), buyer_bid_id),
		    updated_at = now()
		WHERE external_bid_id = $1 AND status NOT IN ('won', 'lost', 'superseded')
		RETURNING ` + bidColumns

	return r.applyTransition(ctx, updateSQL, externalBidID, payload, offer.BuyerBidID)
}

// SupersedePrevious marks older submitted bids on the same lot as superseded,
// keeping the given bid untouched. Returns the number of bids superseded.
func (r *PGRepository) SupersedePrevious(ctx context.Context, lotID, keepExternalBidID string) (int64, error) {
	const updateSQL = `
		UPDATE producer_bids
		SET status = 'superseded', updated_at = now()
		WHERE lot_id = $1 AND external_bid_id <> $2 AND status = 'submitted'
	`

	tag, err := r.pool.Exec(ctx, updateSQL, lotID, keepExternalBidID)
	if err != nil {
		return 0, fmt.Errorf("bid: supersede previous: %w", err)
	}
	return tag.RowsAffected(), nil
}

// applyTransition runs a status-guarded update. Zero matched rows means the
// bid either does not exist or sits in a terminal status the guard excludes.
func (r *PGRepository) applyTransition(ctx context.Context, sql string, args ...any) (ProducerBid, error) {
	b, err := scanBid(r.pool.QueryRow(ctx, sql, args...))
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return ProducerBid{}, fmt.Errorf("bid: update status: %w", err)
	}

	existing, err := r.GetByExternalID(ctx, args[0].(string))
	if err != nil {
		return ProducerBid{}, err
	}
	return ProducerBid{}, fmt.Errorf("%w: %s is %s", ErrTerminalStatus, existing.ExternalBidID, existing.Status)
}

func scanBid(row pgx.Row) (ProducerBid, error) {
	var (
		b            ProducerBid
		buyerBidID   *string
		reason       *string
		counterOffer []byte
	)
	if err := row.Scan(
		&b.ID,
		&b.ExternalBidID,
		&b.LotID,
		&b.VolumeAmount,
		&b.VolumeUnit,
		&b.Price,
		&b.PricePerUnit,
		&b.Currency,
		&b.Status,
		&buyerBidID,
		&reason,
		&counterOffer,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return ProducerBid{}, err
	}

	if buyerBidID != nil {
		b.BuyerBidID = *buyerBidID
	}
	if reason != nil {
		b.RejectionReason = *reason
	}
	if len(counterOffer) > 0 {
		var offer CounterOffer
		if err := json.Unmarshal(counterOffer, &offer); err != nil {
			return ProducerBid{}, fmt.Errorf("bid: decode counter offer: %w", err)
		}
		b.CounterOffer = &offer
	}
	return b, nil
}
