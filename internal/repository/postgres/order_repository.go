package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	domainErrors "github.com/dbakare/gromart/internal/domain/errors"
	"github.com/dbakare/gromart/internal/domain/order"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// allowedOrderSortColumns is a whitelist of columns valid for ORDER BY.
var allowedOrderSortColumns = map[string]string{
	"created_at":   "created_at",
	"updated_at":   "updated_at",
	"total_amount": "total_amount",
	"status":       "status",
}

const orderColumns = `id, order_number, customer_id, shopping_list_id, agent_id,
	        status, payment_status, total_amount, service_fee, delivery_fee,
	        payment_id, payment_processed_at, delivery_address, customer_notes,
	        delivery_metadata, created_at, updated_at`

// OrderRepository implements order.Repository using PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Create inserts a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	addr, err := json.Marshal(o.DeliveryAddress)
	if err != nil {
		return fmt.Errorf("marshal delivery address: %w", err)
	}
	meta, err := json.Marshal(o.DeliveryMetadata)
	if err != nil {
		return fmt.Errorf("marshal delivery metadata: %w", err)
	}

	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO orders
		 (id, order_number, customer_id, shopping_list_id, agent_id,
		  status, payment_status, total_amount, service_fee, delivery_fee,
		  payment_id, payment_processed_at, delivery_address, customer_notes,
		  delivery_metadata, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		o.ID, o.OrderNumber, o.CustomerID, o.ShoppingListID, o.AgentID,
		string(o.Status), string(o.PaymentStatus),
		koboToNumericString(o.TotalAmount), koboToNumericString(o.ServiceFee), koboToNumericString(o.DeliveryFee),
		o.PaymentID, o.PaymentProcessedAt, addr, o.CustomerNotes,
		meta, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetByID retrieves an order by its ID.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return r.scanOrder(r.db(ctx).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

// GetByOrderNumber retrieves an order by its human-facing number.
func (r *OrderRepository) GetByOrderNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.scanOrder(r.db(ctx).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, number))
}

// GetCurrentForList returns the live order for a (shopping list, customer)
// pair: payment still pending, or already completed. Expired and failed
// orders do not block a fresh checkout.
func (r *OrderRepository) GetCurrentForList(ctx context.Context, shoppingListID, customerID uuid.UUID) (*order.Order, error) {
	return r.scanOrder(r.db(ctx).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE shopping_list_id = $1 AND customer_id = $2
		   AND payment_status IN ('pending', 'completed')
		 ORDER BY created_at DESC
		 LIMIT 1`, shoppingListID, customerID))
}

// ExistsByOrderNumber reports whether an order number is already taken.
func (r *OrderRepository) ExistsByOrderNumber(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.db(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE order_number = $1)`, number,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check order number: %w", err)
	}
	return exists, nil
}

// Update updates an existing order.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	addr, err := json.Marshal(o.DeliveryAddress)
	if err != nil {
		return fmt.Errorf("marshal delivery address: %w", err)
	}
	meta, err := json.Marshal(o.DeliveryMetadata)
	if err != nil {
		return fmt.Errorf("marshal delivery metadata: %w", err)
	}

	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE orders SET
		  agent_id=$1, status=$2, payment_status=$3,
		  total_amount=$4, service_fee=$5, delivery_fee=$6,
		  payment_id=$7, payment_processed_at=$8, delivery_address=$9,
		  customer_notes=$10, delivery_metadata=$11, updated_at=$12
		 WHERE id=$13`,
		o.AgentID, string(o.Status), string(o.PaymentStatus),
		koboToNumericString(o.TotalAmount), koboToNumericString(o.ServiceFee), koboToNumericString(o.DeliveryFee),
		o.PaymentID, o.PaymentProcessedAt, addr,
		o.CustomerNotes, meta, o.UpdatedAt, o.ID,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrOrderNotFound
	}
	return nil
}

// AssignAgent binds an agent only if the order is still unassigned.
func (r *OrderRepository) AssignAgent(ctx context.Context, orderID, agentID uuid.UUID) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE orders SET agent_id = $2, updated_at = NOW()
		 WHERE id = $1 AND agent_id IS NULL`,
		orderID, agentID,
	)
	if err != nil {
		return fmt.Errorf("assign agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrAssignmentConflict
	}
	return nil
}

// List lists orders with optional filters.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]*order.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.CustomerID != nil {
		query += fmt.Sprintf(" AND customer_id = $%d", argIdx)
		args = append(args, *f.CustomerID)
		argIdx++
	}
	if f.AgentID != nil {
		query += fmt.Sprintf(" AND agent_id = $%d", argIdx)
		args = append(args, *f.AgentID)
		argIdx++
	}
	if f.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(*f.Status))
		argIdx++
	}
	if f.PaymentStatus != nil {
		query += fmt.Sprintf(" AND payment_status = $%d", argIdx)
		args = append(args, string(*f.PaymentStatus))
		argIdx++
	}

	// Strict whitelist for sort column
	sortBy := "created_at"
	if col, ok := allowedOrderSortColumns[f.SortBy]; ok {
		sortBy = col
	}
	sortOrder := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		sortOrder = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", sortBy, sortOrder)

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []*order.Order
	for rows.Next() {
		o, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r *OrderRepository) scanOrder(s scanner) (*order.Order, error) {
	o := &order.Order{}
	var (
		status        string
		paymentStatus string
		total         string
		serviceFee    string
		deliveryFee   string
		addr          []byte
		meta          []byte
	)
	err := s.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &o.ShoppingListID, &o.AgentID,
		&status, &paymentStatus, &total, &serviceFee, &deliveryFee,
		&o.PaymentID, &o.PaymentProcessedAt, &addr, &o.CustomerNotes,
		&meta, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrOrderNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)

	if o.TotalAmount, err = numericStringToKobo(total); err != nil {
		return nil, fmt.Errorf("parse total_amount: %w", err)
	}
	if o.ServiceFee, err = numericStringToKobo(serviceFee); err != nil {
		return nil, fmt.Errorf("parse service_fee: %w", err)
	}
	if o.DeliveryFee, err = numericStringToKobo(deliveryFee); err != nil {
		return nil, fmt.Errorf("parse delivery_fee: %w", err)
	}

	if len(addr) > 0 {
		if err := json.Unmarshal(addr, &o.DeliveryAddress); err != nil {
			return nil, fmt.Errorf("unmarshal delivery address: %w", err)
		}
	}
	o.DeliveryMetadata = make(map[string]any)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &o.DeliveryMetadata); err != nil {
			return nil, fmt.Errorf("unmarshal delivery metadata: %w", err)
		}
	}
	return o, nil
}
