// Package claims provides read-only access to the claims store. driftwatch
// treats claims as an external data source: it queries, never writes, and does
// not prescribe how claims got there.
package claims

import (
	"context"
	"time"

	"github.com/clearclaim/driftwatch/internal/models"
)

// DateBasis selects which claim date places a claim inside a window.
type DateBasis string

const (
	// BasisDecided windows claims by adjudication date. Used by every
	// detector that compares decision outcomes.
	BasisDecided DateBasis = "decided"
	// BasisSubmitted windows claims by submission date. Used for
	// processing-time comparisons, where the decision may land outside the
	// window.
	BasisSubmitted DateBasis = "submitted"
)

// Reader is the claim query surface the aggregator depends on. Every method
// requires an explicit tenant id; there is no ambient tenant context and no
// unscoped escape hatch.
type Reader interface {
	// ListClaims returns claims for one tenant and grouping key whose basis
	// date falls in the half-open range [start, end).
	ListClaims(ctx context.Context, tenantID string, key models.GroupingKey, start, end time.Time, basis DateBasis) ([]*models.Claim, error)

	// GroupingKeys returns the distinct (payer, procedure group) pairs with
	// at least one claim decided in [start, end) for the tenant.
	GroupingKeys(ctx context.Context, tenantID string, start, end time.Time) ([]models.GroupingKey, error)
}
