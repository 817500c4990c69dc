package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agrichain/agrichain-backend/internal/orders"
	"github.com/agrichain/agrichain-backend/internal/storage"
	"github.com/agrichain/agrichain-backend/pkg/enums"
	"github.com/agrichain/agrichain-backend/pkg/logger"
	"go.uber.org/multierr"
)

const defaultOrderTTL = 10 * 24 * time.Hour

// OrderExpiryJobParams configure the stale order sweeper.
type OrderExpiryJobParams struct {
	Logger *logger.Logger
	Repo   orders.Repo
	TTL    time.Duration
}

// NewOrderExpiryJob builds the job that expires orders whose confirmation
// code was never presented.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("order repo required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultOrderTTL
	}
	return &orderExpiryJob{
		logg: params.Logger,
		repo: params.Repo,
		ttl:  ttl,
		now:  time.Now,
	}, nil
}

type orderExpiryJob struct {
	logg *logger.Logger
	repo orders.Repo
	ttl  time.Duration
	now  func() time.Time
}

func (j *orderExpiryJob) Name() string { return "order-expiry" }

func (j *orderExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	stale, err := j.repo.ListPendingBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("query stale orders: %w", err)
	}

	var errs error
	expired := 0
	for _, order := range stale {
		err := j.repo.TransitionStatus(ctx, order.ID, enums.OrderStatusPendingConfirmation, enums.OrderStatusExpired, nil)
		switch {
		case errors.Is(err, storage.ErrConditionFailed):
			// Settled or cancelled between the query and the sweep.
			continue
		case errors.Is(err, storage.ErrNotFound):
			continue
		case err != nil:
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
		default:
			expired++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{"candidates": len(stale), "expired": expired})
	j.logg.Info(logCtx, "order expiry sweep complete")
	return errs
}
