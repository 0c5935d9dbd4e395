package services

import (
	"context"

	"github.com/workmandi/backend/internal/auth"
	"github.com/workmandi/backend/internal/models"
)

// WalletService exposes the caller's wallet subledger.
type WalletService struct {
	Wallets WalletStore
}

func NewWalletService(wallets WalletStore) *WalletService {
	return &WalletService{Wallets: wallets}
}

// Get returns balance, held and available funds with the transaction
// history, newest first.
func (s *WalletService) Get(ctx context.Context, id auth.Identity) (*models.Wallet, error) {
	w, err := s.Wallets.Get(ctx, id.UserID)
	if err != nil {
		return nil, storeErr(err, "user_not_found", "user")
	}
	return w, nil
}
