package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dbakare/gromart/internal/domain/trail"
	"github.com/dbakare/gromart/internal/domain/transaction"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TrailRepository implements trail.Repository using PostgreSQL. The trail is
// append-only; rows are never updated or deleted.
type TrailRepository struct {
	pool *pgxpool.Pool
}

// NewTrailRepository creates a new TrailRepository.
func NewTrailRepository(pool *pgxpool.Pool) *TrailRepository {
	return &TrailRepository{pool: pool}
}

func (r *TrailRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Append inserts a trail event.
func (r *TrailRepository) Append(ctx context.Context, e *trail.Event) error {
	before, err := json.Marshal(e.Before)
	if err != nil {
		return fmt.Errorf("marshal before state: %w", err)
	}
	after, err := json.Marshal(e.After)
	if err != nil {
		return fmt.Errorf("marshal after state: %w", err)
	}
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO trail_events
		 (id, action, description, performer_id, reference_kind, reference_id,
		  before_state, after_state, metadata, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, e.Action, e.Description, e.PerformerID,
		string(e.Reference.Kind), e.Reference.ID,
		before, after, metadata, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trail event: %w", err)
	}
	return nil
}

// ListByReference returns the audit history of a reference, oldest first.
func (r *TrailRepository) ListByReference(ctx context.Context, ref transaction.Reference) ([]*trail.Event, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, action, description, performer_id, reference_kind, reference_id,
		        before_state, after_state, metadata, created_at
		 FROM trail_events
		 WHERE reference_kind = $1 AND reference_id = $2
		 ORDER BY created_at ASC`, string(ref.Kind), ref.ID)
	if err != nil {
		return nil, fmt.Errorf("list trail events: %w", err)
	}
	defer rows.Close()

	var events []*trail.Event
	for rows.Next() {
		e := &trail.Event{}
		var (
			refKind  string
			before   []byte
			after    []byte
			metadata []byte
		)
		if err := rows.Scan(
			&e.ID, &e.Action, &e.Description, &e.PerformerID, &refKind, &e.Reference.ID,
			&before, &after, &metadata, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan trail event: %w", err)
		}
		e.Reference.Kind = transaction.ReferenceKind(refKind)
		if err := unmarshalState(before, &e.Before); err != nil {
			return nil, err
		}
		if err := unmarshalState(after, &e.After); err != nil {
			return nil, err
		}
		if err := unmarshalState(metadata, &e.Metadata); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func unmarshalState(raw []byte, dst *map[string]any) error {
	*dst = make(map[string]any)
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("unmarshal trail state: %w", err)
	}
	return nil
}
