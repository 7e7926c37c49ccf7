package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a computation run.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// ComputationRun records one execution of the drift pipeline for a tenant.
// It is created before any detector work starts and finalized exactly once.
// Signals and candidate alerts reference their originating run; a failed run
// retains no signals.
type ComputationRun struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	Status        RunStatus `json:"status"`
	BaselineStart time.Time `json:"baseline_start"`
	BaselineEnd   time.Time `json:"baseline_end"`
	CurrentStart  time.Time `json:"current_start"`
	CurrentEnd    time.Time `json:"current_end"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at,omitempty"`
	Summary       string    `json:"summary,omitempty"`
}

// NewComputationRun creates a run in the running state.
func NewComputationRun(tenantID string) *ComputationRun {
	return &ComputationRun{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Status:    RunRunning,
		StartedAt: time.Now().UTC(),
	}
}

// Finished reports whether the run has been finalized.
func (r *ComputationRun) Finished() bool {
	return r.Status == RunSuccess || r.Status == RunFailed
}
