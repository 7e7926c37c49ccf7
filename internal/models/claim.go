// Package models defines the core entities shared across driftwatch.
package models

import "time"

// Outcome is the adjudication outcome of a claim.
type Outcome string

const (
	OutcomePaid    Outcome = "paid"
	OutcomeDenied  Outcome = "denied"
	OutcomePartial Outcome = "partial"
	OutcomePending Outcome = "pending"
)

// ParseOutcome converts a string to Outcome.
func ParseOutcome(s string) Outcome {
	switch s {
	case "paid":
		return OutcomePaid
	case "denied":
		return OutcomeDenied
	case "partial":
		return OutcomePartial
	default:
		return OutcomePending
	}
}

// Claim is a single adjudicated claim row from the claims store.
// The claims store is a read-only collaborator; driftwatch never writes claims.
type Claim struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	Payer          string    `json:"payer"`
	ProcedureGroup string    `json:"procedure_group"`
	Outcome        Outcome   `json:"outcome"`
	SubmittedDate  time.Time `json:"submitted_date"`
	DecidedDate    time.Time `json:"decided_date"`
	PaymentDate    time.Time `json:"payment_date"`
	AllowedAmount  float64   `json:"allowed_amount"`
	PaidAmount     float64   `json:"paid_amount"`
	AuthRequired   bool      `json:"authorization_required"`
	DenialReason   string    `json:"denial_reason,omitempty"`
}

// Decided reports whether the claim has reached a terminal adjudication outcome.
func (c *Claim) Decided() bool {
	return c.Outcome == OutcomePaid || c.Outcome == OutcomeDenied || c.Outcome == OutcomePartial
}

// GroupingKey identifies the unit of comparison: one payer crossed with one
// procedure group. Values are case-sensitive and normalized upstream.
type GroupingKey struct {
	Payer          string `json:"payer"`
	ProcedureGroup string `json:"procedure_group"`
}

// Label returns the human-readable entity label used in alert payloads
// and suppression fingerprints.
func (k GroupingKey) Label() string {
	return k.Payer + "/" + k.ProcedureGroup
}
