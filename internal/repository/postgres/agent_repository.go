package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dbakare/gromart/internal/domain/agent"
	domainErrors "github.com/dbakare/gromart/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const agentColumns = `id, name, phone, market_id, status, latitude, longitude,
	        current_load, last_assigned_at, created_at, updated_at`

// AgentRepository implements agent.Repository using PostgreSQL.
type AgentRepository struct {
	pool *pgxpool.Pool
}

// NewAgentRepository creates a new AgentRepository.
func NewAgentRepository(pool *pgxpool.Pool) *AgentRepository {
	return &AgentRepository{pool: pool}
}

func (r *AgentRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// GetByID retrieves an agent by its ID.
func (r *AgentRepository) GetByID(ctx context.Context, id uuid.UUID) (*agent.Agent, error) {
	return r.scanAgent(r.db(ctx).QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1`, id))
}

// AvailableForMarket returns available agents for a market ranked by current
// load, then by how long ago they were last assigned. Excluded ids are
// agents already tried for this order.
func (r *AgentRepository) AvailableForMarket(ctx context.Context, marketID uuid.UUID, excluded []uuid.UUID, limit int) ([]*agent.Agent, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `SELECT ` + agentColumns + ` FROM agents
	 WHERE market_id = $1 AND status = 'available'`
	args := []any{marketID}
	argIdx := 2

	if len(excluded) > 0 {
		query += fmt.Sprintf(" AND NOT (id = ANY($%d))", argIdx)
		args = append(args, excluded)
		argIdx++
	}

	query += fmt.Sprintf(` ORDER BY current_load ASC, last_assigned_at ASC NULLS FIRST LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list available agents: %w", err)
	}
	defer rows.Close()

	var agents []*agent.Agent
	for rows.Next() {
		a, err := r.scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// MarkBusy flips available -> busy only if the agent is still available.
func (r *AgentRepository) MarkBusy(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE agents SET
		  status = 'busy', current_load = current_load + 1,
		  last_assigned_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status = 'available'`, id)
	if err != nil {
		return fmt.Errorf("mark agent busy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrAgentUnavailable
	}
	return nil
}

// MarkAvailable releases the agent back into the pool.
func (r *AgentRepository) MarkAvailable(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE agents SET
		  status = 'available', current_load = GREATEST(current_load - 1, 0),
		  updated_at = NOW()
		 WHERE id = $1 AND status = 'busy'`, id)
	if err != nil {
		return fmt.Errorf("mark agent available: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrAgentNotFound
	}
	return nil
}

func (r *AgentRepository) scanAgent(s scanner) (*agent.Agent, error) {
	a := &agent.Agent{}
	var status string
	err := s.Scan(
		&a.ID, &a.Name, &a.Phone, &a.MarketID, &status, &a.Latitude, &a.Longitude,
		&a.CurrentLoad, &a.LastAssignedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrAgentNotFound
		}
		return nil, fmt.Errorf("scan agent: %w", err)
	}
	a.Status = agent.Status(status)
	return a, nil
}
