package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Withdrawal request statuses. Processing is the approved state: funds are
// held and the payout instruction has been sent to the rail.
const (
	WithdrawalPending    = "pending"
	WithdrawalProcessing = "processing"
	WithdrawalCompleted  = "completed"
	WithdrawalFailed     = "failed"
	WithdrawalRejected   = "rejected"
)

// Payout destination modes.
const (
	PayoutModeUPI  = "upi"
	PayoutModeBank = "bank"
)

var (
	upiIDPattern = regexp.MustCompile(`^[a-zA-Z0-9.\-_]{2,256}@[a-zA-Z]{2,64}$`)
	ifscPattern  = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
	acctPattern  = regexp.MustCompile(`^[0-9]{9,18}$`)
)

type PayoutDestination struct {
	Mode          string `json:"mode"`
	UPIID         string `json:"upi_id,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	IFSC          string `json:"ifsc,omitempty"`
	AccountHolder string `json:"account_holder,omitempty"`
}

// Valid reports whether the destination is complete for its mode.
func (d PayoutDestination) Valid() bool {
	switch d.Mode {
	case PayoutModeUPI:
		return upiIDPattern.MatchString(d.UPIID)
	case PayoutModeBank:
		return acctPattern.MatchString(d.AccountNumber) &&
			ifscPattern.MatchString(strings.ToUpper(d.IFSC)) &&
			strings.TrimSpace(d.AccountHolder) != ""
	}
	return false
}

type WithdrawalRequest struct {
	ID            uuid.UUID         `json:"id"`
	UserID        uuid.UUID         `json:"user_id"`
	Amount        Money             `json:"amount"`
	Destination   PayoutDestination `json:"destination"`
	Status        string            `json:"status"`
	TransactionID *string           `json:"transaction_id,omitempty"`
	UTR           *string           `json:"utr,omitempty"`
	FailureReason string            `json:"failure_reason,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	ApprovedAt    *time.Time        `json:"approved_at,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	UpdatedAt     time.Time         `json:"updated_at"`
}
