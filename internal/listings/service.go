package listings

import (
	"context"
	"errors"
	"fmt"

	"github.com/agrichain/agrichain-backend/internal/storage"
	pkgerrors "github.com/agrichain/agrichain-backend/pkg/errors"
	"github.com/agrichain/agrichain-backend/pkg/logger"
)

type store interface {
	Delete(ctx context.Context, collection, key string) error
}

type Service interface {
	// Remove takes a product off the marketplace once its stock has been
	// sold through. The whole listing record is removed.
	Remove(ctx context.Context, productID string) error
}

type service struct {
	store store
	logg  *logger.Logger
}

func NewService(store store, logg *logger.Logger) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{store: store, logg: logg}, nil
}

func (s *service) Remove(ctx context.Context, productID string) error {
	if productID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	err := s.store.Delete(ctx, storage.CollectionProducts, productID)
	if errors.Is(err, storage.ErrNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if err != nil {
		return err
	}

	s.logg.Info(s.logg.WithField(ctx, "product_id", productID), "product removed from listings")
	return nil
}
