package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet transaction types.
const (
	WalletTxnCredit     = "credit"
	WalletTxnDebit      = "debit"
	WalletTxnWithdrawal = "withdrawal"
)

// Wallet transaction statuses. Only completed entries count toward the balance.
const (
	WalletTxnPending    = "pending"
	WalletTxnProcessing = "processing"
	WalletTxnCompleted  = "completed"
	WalletTxnFailed     = "failed"
)

type WalletTransaction struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	Type          string     `json:"type"`
	Amount        Money      `json:"amount"`
	Description   string     `json:"description"`
	JobID         *uuid.UUID `json:"job_id,omitempty"`
	ExternalTxnID *string    `json:"external_transaction_id,omitempty"`
	UTR           *string    `json:"utr,omitempty"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Wallet is the balance view of a user plus its transaction history, newest first.
type Wallet struct {
	UserID        uuid.UUID           `json:"user_id"`
	Balance       Money               `json:"balance"`
	Held          Money               `json:"held"`
	Available     Money               `json:"available"`
	TotalEarnings Money               `json:"total_earnings"`
	WorkerID      *string             `json:"worker_id,omitempty"`
	Transactions  []WalletTransaction `json:"transactions"`
}
