package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agrichain/agrichain-backend/internal/storage"
	pkgerrors "github.com/agrichain/agrichain-backend/pkg/errors"
	"github.com/agrichain/agrichain-backend/pkg/keylock"
	"github.com/agrichain/agrichain-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// store is the slice of the persistence adapter the wallet service uses.
type store interface {
	Put(ctx context.Context, collection, key string, record any) error
	Get(ctx context.Context, collection, key string, dest any) error
}

type Service interface {
	// Credit adds amount to the seller's wallet, creating it on first use.
	// Returns the wallet after the credit is applied.
	Credit(ctx context.Context, sellerID string, amount decimal.Decimal) (Wallet, error)
	// Balance returns the seller's wallet. A seller that has never been
	// credited gets a zero-balance wallet.
	Balance(ctx context.Context, sellerID string) (Wallet, error)
}

type service struct {
	store store
	locks *keylock.KeyedMutex
	logg  *logger.Logger
	now   func() time.Time
}

func NewService(store store, logg *logger.Logger) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{
		store: store,
		locks: keylock.New(),
		logg:  logg,
		now:   time.Now,
	}, nil
}

func (s *service) Credit(ctx context.Context, sellerID string, amount decimal.Decimal) (Wallet, error) {
	if sellerID == "" {
		return Wallet{}, pkgerrors.New(pkgerrors.CodeValidation, "seller id is required")
	}
	if !amount.IsPositive() {
		return Wallet{}, pkgerrors.New(pkgerrors.CodeValidation, "credit amount must be positive")
	}

	unlock := s.locks.Lock(sellerID)
	defer unlock()

	now := s.now().UTC()

	var w Wallet
	err := s.store.Get(ctx, storage.CollectionWallets, sellerID, &w)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		w = Wallet{SellerID: sellerID, Balance: decimal.Zero, CreatedAt: now}
	case err != nil:
		return Wallet{}, err
	}

	w.Balance = w.Balance.Add(amount)
	w.UpdatedAt = now

	if err := s.store.Put(ctx, storage.CollectionWallets, sellerID, w); err != nil {
		return Wallet{}, err
	}

	logCtx := s.logg.WithSellerID(ctx, sellerID)
	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"amount":  amount.String(),
		"balance": w.Balance.String(),
	}), "wallet credited")

	return w, nil
}

func (s *service) Balance(ctx context.Context, sellerID string) (Wallet, error) {
	if sellerID == "" {
		return Wallet{}, pkgerrors.New(pkgerrors.CodeValidation, "seller id is required")
	}

	var w Wallet
	err := s.store.Get(ctx, storage.CollectionWallets, sellerID, &w)
	if errors.Is(err, storage.ErrNotFound) {
		return Wallet{SellerID: sellerID, Balance: decimal.Zero}, nil
	}
	if err != nil {
		return Wallet{}, err
	}
	return w, nil
}
