package agent

import (
	"time"

	"github.com/google/uuid"
)

// Status represents an agent's availability.
type Status string

const (
	StatusAvailable Status = "available"
	StatusBusy      Status = "busy"
	StatusOffline   Status = "offline"
)

// Agent is a fulfillment worker who shops for and delivers orders.
type Agent struct {
	ID             uuid.UUID
	Name           string
	Phone          string
	MarketID       *uuid.UUID
	Status         Status
	Latitude       *float64
	Longitude      *float64
	CurrentLoad    int
	LastAssignedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsAvailable reports whether the agent can take a new order.
func (a *Agent) IsAvailable() bool {
	return a.Status == StatusAvailable
}
