package models

import (
	"time"

	"github.com/google/uuid"
)

// NetworkAlert records the same drift pattern recurring independently across
// multiple tenants for one payer, implying a payer-wide rather than
// tenant-specific cause. It is deliberately a distinct entity from DriftSignal:
// it is payer-scoped, not tenant-scoped.
type NetworkAlert struct {
	ID          string     `json:"id"`
	Payer       string     `json:"payer"`
	Type        SignalType `json:"signal_type"`
	TenantCount int        `json:"tenant_count"`
	WindowStart time.Time  `json:"window_start"`
	WindowEnd   time.Time  `json:"window_end"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewNetworkAlert creates a network alert with a fresh id and timestamp.
func NewNetworkAlert(payer string, typ SignalType, tenantCount int) *NetworkAlert {
	return &NetworkAlert{
		ID:          uuid.New().String(),
		Payer:       payer,
		Type:        typ,
		TenantCount: tenantCount,
		CreatedAt:   time.Now().UTC(),
	}
}
