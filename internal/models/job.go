package models

import (
	"time"

	"github.com/google/uuid"
)

// Job status enums.
const (
	JobStatusOpen           = "open"
	JobStatusAssigned       = "assigned"
	JobStatusInProgress     = "in_progress"
	JobStatusWorkDone       = "work_done"
	JobStatusCompleted      = "completed"
	JobStatusFullyCompleted = "fully_completed"
	JobStatusCancelled      = "cancelled"
)

// Offer status enums.
const (
	OfferStatusPending  = "pending"
	OfferStatusAccepted = "accepted"
	OfferStatusRejected = "rejected"
)

// Payment methods accepted when a client pays for a job.
const (
	PaymentMethodCash = "cash"
	PaymentMethodUPI  = "upi"
)

// WorkerSnapshot is the worker's public profile copied onto an offer or a job
// at the moment it was taken. Later profile edits do not change it.
type WorkerSnapshot struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Photo    string    `json:"photo,omitempty"`
	WorkerID string    `json:"worker_id,omitempty"`
}

type Offer struct {
	ID        uuid.UUID      `json:"id"`
	WorkerID  uuid.UUID      `json:"worker_id"`
	Amount    Money          `json:"amount"`
	Message   string         `json:"message,omitempty"`
	Status    string         `json:"status"`
	Worker    WorkerSnapshot `json:"worker"`
	CreatedAt time.Time      `json:"created_at"`
}

type PaymentDetails struct {
	Method       string    `json:"method"`
	Amount       Money     `json:"amount"`
	WalletCredit Money     `json:"wallet_credit"`
	Commission   Money     `json:"commission"`
	PaidAt       time.Time `json:"paid_at"`
}

type Job struct {
	ID             uuid.UUID               `json:"id"`
	ClientID       uuid.UUID               `json:"client_id"`
	ClientName     string                  `json:"client_name,omitempty"`
	Title          string                  `json:"title"`
	Address        string                  `json:"address"`
	Pincode        string                  `json:"pincode"`
	Budget         Money                   `json:"budget"`
	Category       string                  `json:"category"`
	Gender         string                  `json:"gender"`
	Description    string                  `json:"description,omitempty"`
	Status         string                  `json:"status"`
	Offers         []Offer                 `json:"offers"`
	AssignedWorker *WorkerSnapshot         `json:"assigned_worker,omitempty"`
	Payment        *PaymentDetails         `json:"payment_details,omitempty"`
	Cooldowns      map[uuid.UUID]time.Time `json:"-"`
	AssignedAt     *time.Time              `json:"assigned_at,omitempty"`
	CompletedAt    *time.Time              `json:"completed_at,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

// HasAcceptedOffer reports whether any offer on the job was accepted.
func (j *Job) HasAcceptedOffer() bool {
	for _, o := range j.Offers {
		if o.Status == OfferStatusAccepted {
			return true
		}
	}
	return false
}

// OfferBy returns the index of the worker's offer, or -1.
func (j *Job) OfferBy(workerID uuid.UUID) int {
	for i, o := range j.Offers {
		if o.WorkerID == workerID {
			return i
		}
	}
	return -1
}

// IsAssignedTo reports whether the job's frozen worker snapshot is userID.
func (j *Job) IsAssignedTo(userID uuid.UUID) bool {
	return j.AssignedWorker != nil && j.AssignedWorker.ID == userID
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (j *Job) Clone() *Job {
	cp := *j
	cp.Offers = append([]Offer(nil), j.Offers...)
	if j.AssignedWorker != nil {
		w := *j.AssignedWorker
		cp.AssignedWorker = &w
	}
	if j.Payment != nil {
		p := *j.Payment
		cp.Payment = &p
	}
	cp.Cooldowns = make(map[uuid.UUID]time.Time, len(j.Cooldowns))
	for k, v := range j.Cooldowns {
		cp.Cooldowns[k] = v
	}
	if j.AssignedAt != nil {
		t := *j.AssignedAt
		cp.AssignedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// JobFilter narrows job listings. Zero values mean "any".
type JobFilter struct {
	ClientID *uuid.UUID
	WorkerID *uuid.UUID
	Statuses []string
	Limit    int
	Offset   int
}
