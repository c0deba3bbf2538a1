package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	domainErrors "github.com/dbakare/gromart/internal/domain/errors"
	"github.com/dbakare/gromart/internal/domain/transaction"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const transactionColumns = `id, user_id, amount, currency, status, tx_type,
	        payment_method, provider_name, provider_reference, provider_tx_id,
	        reference_kind, reference_id, metadata, attempt_count,
	        refunded_amount, created_at, updated_at, completed_at`

// TransactionRepository implements transaction.Repository using PostgreSQL.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

func (r *TransactionRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Create inserts a new transaction.
func (r *TransactionRepository) Create(ctx context.Context, t *transaction.Transaction) error {
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO transactions
		 (id, user_id, amount, currency, status, tx_type,
		  payment_method, provider_name, provider_reference, provider_tx_id,
		  reference_kind, reference_id, metadata, attempt_count,
		  refunded_amount, created_at, updated_at, completed_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		t.ID, t.UserID, koboToNumericString(t.Amount), t.Currency, string(t.Status), string(t.Type),
		t.PaymentMethod, t.ProviderName, t.ProviderReference, t.ProviderTxID,
		string(t.Reference.Kind), t.Reference.ID, metadata, t.AttemptCount,
		koboToNumericString(t.RefundedAmount), t.CreatedAt, t.UpdatedAt, t.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByID retrieves a transaction by its ID.
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	return r.scanTransaction(r.db(ctx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
}

// GetByProviderReference retrieves a transaction by the reference issued at
// payment initiation.
func (r *TransactionRepository) GetByProviderReference(ctx context.Context, reference string) (*transaction.Transaction, error) {
	return r.scanTransaction(r.db(ctx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE provider_reference = $1`, reference))
}

// GetByProviderTxID retrieves a transaction by the provider-side id reported
// in webhooks.
func (r *TransactionRepository) GetByProviderTxID(ctx context.Context, providerTxID string) (*transaction.Transaction, error) {
	return r.scanTransaction(r.db(ctx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE provider_tx_id = $1`, providerTxID))
}

// GetPendingForReference returns the single pending transaction for a
// (user, reference) tuple. A partial unique index enforces at most one.
func (r *TransactionRepository) GetPendingForReference(ctx context.Context, userID uuid.UUID, ref transaction.Reference) (*transaction.Transaction, error) {
	return r.scanTransaction(r.db(ctx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE user_id = $1 AND reference_kind = $2 AND reference_id = $3 AND status = 'pending'
		 ORDER BY created_at DESC
		 LIMIT 1`, userID, string(ref.Kind), ref.ID))
}

// Update updates an existing transaction.
func (r *TransactionRepository) Update(ctx context.Context, t *transaction.Transaction) error {
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE transactions SET
		  status=$1, payment_method=$2, provider_reference=$3, provider_tx_id=$4,
		  metadata=$5, attempt_count=$6, refunded_amount=$7,
		  updated_at=$8, completed_at=$9
		 WHERE id=$10`,
		string(t.Status), t.PaymentMethod, t.ProviderReference, t.ProviderTxID,
		metadata, t.AttemptCount, koboToNumericString(t.RefundedAmount),
		t.UpdatedAt, t.CompletedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrTransactionNotFound
	}
	return nil
}

// ListByReference returns every payment attempt against a reference, oldest
// first.
func (r *TransactionRepository) ListByReference(ctx context.Context, ref transaction.Reference) ([]*transaction.Transaction, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE reference_kind = $1 AND reference_id = $2
		 ORDER BY created_at ASC`, string(ref.Kind), ref.ID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []*transaction.Transaction
	for rows.Next() {
		t, err := r.scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func (r *TransactionRepository) scanTransaction(s scanner) (*transaction.Transaction, error) {
	t := &transaction.Transaction{}
	var (
		amount   string
		status   string
		txType   string
		refKind  string
		metadata []byte
		refunded string
	)
	err := s.Scan(
		&t.ID, &t.UserID, &amount, &t.Currency, &status, &txType,
		&t.PaymentMethod, &t.ProviderName, &t.ProviderReference, &t.ProviderTxID,
		&refKind, &t.Reference.ID, &metadata, &t.AttemptCount,
		&refunded, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	t.Status = transaction.Status(status)
	t.Type = transaction.Type(txType)
	t.Reference.Kind = transaction.ReferenceKind(refKind)

	if t.Amount, err = numericStringToKobo(amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	if t.RefundedAmount, err = numericStringToKobo(refunded); err != nil {
		return nil, fmt.Errorf("parse refunded_amount: %w", err)
	}

	t.Metadata = make(map[string]any)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal transaction metadata: %w", err)
		}
	}
	return t, nil
}
