package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	domainErrors "github.com/dbakare/gromart/internal/domain/errors"
	"github.com/dbakare/gromart/internal/domain/shoppinglist"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const shoppingListColumns = `id, name, customer_id, market_id, agent_id,
	        status, payment_status, estimated_total, items, created_at, updated_at`

// ShoppingListRepository implements shoppinglist.Repository using PostgreSQL.
// Items are stored denormalized as JSONB; they are only ever read and written
// as a whole set with their list.
type ShoppingListRepository struct {
	pool *pgxpool.Pool
}

// NewShoppingListRepository creates a new ShoppingListRepository.
func NewShoppingListRepository(pool *pgxpool.Pool) *ShoppingListRepository {
	return &ShoppingListRepository{pool: pool}
}

func (r *ShoppingListRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Create inserts a new shopping list.
func (r *ShoppingListRepository) Create(ctx context.Context, l *shoppinglist.ShoppingList) error {
	items, err := json.Marshal(l.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}

	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO shopping_lists
		 (id, name, customer_id, market_id, agent_id,
		  status, payment_status, estimated_total, items, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		l.ID, l.Name, l.CustomerID, l.MarketID, l.AgentID,
		string(l.Status), string(l.PaymentStatus),
		koboToNumericString(l.EstimatedTotal), items, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert shopping list: %w", err)
	}
	return nil
}

// GetByID retrieves a shopping list by its ID.
func (r *ShoppingListRepository) GetByID(ctx context.Context, id uuid.UUID) (*shoppinglist.ShoppingList, error) {
	return r.scanList(r.db(ctx).QueryRow(ctx,
		`SELECT `+shoppingListColumns+` FROM shopping_lists WHERE id = $1`, id))
}

// Update updates an existing shopping list.
func (r *ShoppingListRepository) Update(ctx context.Context, l *shoppinglist.ShoppingList) error {
	items, err := json.Marshal(l.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}

	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE shopping_lists SET
		  name=$1, agent_id=$2, status=$3, payment_status=$4,
		  estimated_total=$5, items=$6, updated_at=$7
		 WHERE id=$8`,
		l.Name, l.AgentID, string(l.Status), string(l.PaymentStatus),
		koboToNumericString(l.EstimatedTotal), items, l.UpdatedAt, l.ID,
	)
	if err != nil {
		return fmt.Errorf("update shopping list: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrShoppingListNotFound
	}
	return nil
}

// ListByCustomer returns a customer's lists, newest first.
func (r *ShoppingListRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*shoppinglist.ShoppingList, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+shoppingListColumns+` FROM shopping_lists
		 WHERE customer_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`, customerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list shopping lists: %w", err)
	}
	defer rows.Close()

	var lists []*shoppinglist.ShoppingList
	for rows.Next() {
		l, err := r.scanList(rows)
		if err != nil {
			return nil, err
		}
		lists = append(lists, l)
	}
	return lists, rows.Err()
}

func (r *ShoppingListRepository) scanList(s scanner) (*shoppinglist.ShoppingList, error) {
	l := &shoppinglist.ShoppingList{}
	var (
		status        string
		paymentStatus string
		total         string
		items         []byte
	)
	err := s.Scan(
		&l.ID, &l.Name, &l.CustomerID, &l.MarketID, &l.AgentID,
		&status, &paymentStatus, &total, &items, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrShoppingListNotFound
		}
		return nil, fmt.Errorf("scan shopping list: %w", err)
	}

	l.Status = shoppinglist.Status(status)
	l.PaymentStatus = shoppinglist.PaymentStatus(paymentStatus)

	if l.EstimatedTotal, err = numericStringToKobo(total); err != nil {
		return nil, fmt.Errorf("parse estimated_total: %w", err)
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &l.Items); err != nil {
			return nil, fmt.Errorf("unmarshal items: %w", err)
		}
	}
	return l, nil
}
