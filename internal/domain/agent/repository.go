package agent

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence operations for agents.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Agent, error)
	// AvailableForMarket returns candidate agents for a market ranked by
	// suitability (current load, then distance, then least recently
	// assigned). An empty slice is a valid result, not an error.
	AvailableForMarket(ctx context.Context, marketID uuid.UUID, excluded []uuid.UUID, limit int) ([]*Agent, error)
	// MarkBusy flips available -> busy as a compare-and-set; it fails with
	// ErrAgentUnavailable if the agent was concurrently taken.
	MarkBusy(ctx context.Context, id uuid.UUID) error
	MarkAvailable(ctx context.Context, id uuid.UUID) error
}
