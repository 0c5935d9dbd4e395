package models

import (
	"time"

	"github.com/google/uuid"
)

// Commission entry statuses.
const (
	CommissionPending = "pending"
	CommissionPaid    = "paid"
)

// CommissionEntry is platform commission owed by a worker on a cash-settled job.
type CommissionEntry struct {
	ID         uuid.UUID  `json:"id"`
	WorkerID   uuid.UUID  `json:"worker_id"`
	JobID      uuid.UUID  `json:"job_id"`
	JobTitle   string     `json:"job_title"`
	ClientName string     `json:"client_name"`
	Amount     Money      `json:"amount"`
	JobTotal   Money      `json:"job_total"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`
}

// CommissionLedger is a worker's commission history with running totals.
type CommissionLedger struct {
	WorkerID     uuid.UUID         `json:"worker_id"`
	Entries      []CommissionEntry `json:"entries"`
	PendingTotal Money             `json:"pending_total"`
	PaidTotal    Money             `json:"paid_total"`
}
