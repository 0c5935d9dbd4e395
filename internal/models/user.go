package models

import (
	"time"

	"github.com/google/uuid"
)

// User roles.
const (
	RoleClient = "client"
	RoleWorker = "worker"
	RoleAdmin  = "admin"
)

// Worker verification states.
const (
	VerificationNone     = "none"
	VerificationPending  = "pending"
	VerificationApproved = "approved"
	VerificationRejected = "rejected"
)

type VerificationDocument struct {
	Kind      string `json:"kind"`
	Reference string `json:"reference"`
}

type User struct {
	ID               uuid.UUID              `json:"id"`
	Name             string                 `json:"name"`
	Phone            string                 `json:"phone"`
	Photo            string                 `json:"photo,omitempty"`
	Role             string                 `json:"role"`
	Verification     string                 `json:"verification"`
	VerificationDocs []VerificationDocument `json:"verification_documents,omitempty"`
	RejectionReason  string                 `json:"rejection_reason,omitempty"`
	PublicWorkerID   *string                `json:"worker_id,omitempty"`
	WalletBalance    Money                  `json:"-"`
	WalletHeld       Money                  `json:"-"`
	TotalEarnings    Money                  `json:"-"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// Snapshot returns the public profile frozen onto offers and assigned jobs.
func (u *User) Snapshot() WorkerSnapshot {
	s := WorkerSnapshot{ID: u.ID, Name: u.Name, Photo: u.Photo}
	if u.PublicWorkerID != nil {
		s.WorkerID = *u.PublicWorkerID
	}
	return s
}

// IsVerifiedWorker reports whether the user may take work.
func (u *User) IsVerifiedWorker() bool {
	return u.Role == RoleWorker && u.Verification == VerificationApproved
}
