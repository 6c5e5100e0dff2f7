package contract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrContractNotFound is returned when no contract row exists for the key.
var ErrContractNotFound = errors.New("contract: not found")

// Repository handles data access for contracts.
type Repository interface {
	CreateFromAcceptance(ctx context.Context, params CreateParams) (Contract, bool, error)
	GetByBid(ctx context.Context, producerBidID, buyerContractID string) (Contract, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewRepository creates a PostgreSQL-backed contract repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool, now: time.Now}
}

// CreateFromAcceptance materializes a contract for an accepted bid. Creation
// is idempotent on (producer_bid_id, buyer_contract_id): a retried accept
// event returns the existing row with created=false instead of inserting a
// duplicate.
func (r *PGRepository) CreateFromAcceptance(ctx context.Context, params CreateParams) (Contract, bool, error) {
	if params.ProducerBidID == "" {
		return Contract{}, false, fmt.Errorf("contract: producer bid id required")
	}

	params.applyDefaults(r.now())

	const insertSQL = `
		INSERT INTO contracts (producer_bid_id, buyer_contract_id, buyer_bid_id, contract_number,
		                       volume_amount, volume_unit, price_per_unit, currency, pricing_type,
		                       start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (producer_bid_id, buyer_contract_id) DO NOTHING
		RETURNING id, created_at
	`

	stored := Contract{
		ProducerBidID:   params.ProducerBidID,
		BuyerContractID: params.BuyerContractID,
		BuyerBidID:      params.BuyerBidID,
		ContractNumber:  params.ContractNumber,
		VolumeAmount:    params.VolumeAmount,
		VolumeUnit:      params.VolumeUnit,
		PricePerUnit:    params.PricePerUnit,
		Currency:        params.Currency,
		PricingType:     params.PricingType,
		StartDate:       params.StartDate,
		EndDate:         params.EndDate,
	}

	err := r.pool.QueryRow(ctx, insertSQL,
		params.ProducerBidID,
		params.BuyerContractID,
		params.BuyerBidID,
		params.ContractNumber,
		params.VolumeAmount,
		params.VolumeUnit,
		params.PricePerUnit,
		params.Currency,
		params.PricingType,
		params.StartDate,
		params.EndDate,
	).Scan(&stored.ID, &stored.CreatedAt)

	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Contract{}, false, fmt.Errorf("contract: insert: %w", err)
	}

	// Conflict path: the contract already exists from an earlier delivery.
	existing, err := r.GetByBid(ctx, params.ProducerBidID, params.BuyerContractID)
	if err != nil {
		return Contract{}, false, err
	}
	return existing, false, nil
}

// GetByBid fetches the contract for the dedup key.
func (r *PGRepository) GetByBid(ctx context.Context, producerBidID, buyerContractID string) (Contract, error) {
	const selectSQL = `
		SELECT id, producer_bid_id, buyer_contract_id, buyer_bid_id, contract_number,
		       volume_amount, volume_unit, price_per_unit, currency, pricing_type,
		       start_date, end_date, created_at
		FROM contracts
		WHERE producer_bid_id = $1 AND buyer_contract_id = $2
	`

	var c Contract
	err := r.pool.QueryRow(ctx, selectSQL, producerBidID, buyerContractID).Scan(
		&c.ID,
		&c.ProducerBidID,
		&c.BuyerContractID,
		&c.BuyerBidID,
		&c.ContractNumber,
		&c.VolumeAmount,
		&c.VolumeUnit,
		&c.PricePerUnit,
		&c.Currency,
		&c.PricingType,
		&c.StartDate,
		&c.EndDate,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contract{}, ErrContractNotFound
		}
		return Contract{}, fmt.Errorf("contract: get by bid: %w", err)
	}
	return c, nil
}
