package cron

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/agrichain/agrichain-backend/internal/orders"
	"github.com/agrichain/agrichain-backend/internal/storage"
	"github.com/agrichain/agrichain-backend/pkg/enums"
	"github.com/agrichain/agrichain-backend/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExpiryFixture(t *testing.T, ttl time.Duration) (Job, orders.Repo) {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: &bytes.Buffer{}})
	fileStore, err := storage.NewFileStore(t.TempDir(), storage.DefaultKeyFields())
	require.NoError(t, err)
	adapter, err := storage.NewAdapter(nil, fileStore, logg)
	require.NoError(t, err)
	repo, err := orders.NewRepo(adapter)
	require.NoError(t, err)
	job, err := NewOrderExpiryJob(OrderExpiryJobParams{Logger: logg, Repo: repo, TTL: ttl})
	require.NoError(t, err)
	return job, repo
}

func TestOrderExpiryJobExpiresStaleOrders(t *testing.T) {
	job, repo := newExpiryFixture(t, 24*time.Hour)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Insert(ctx, orders.Order{ID: "stale", Status: enums.OrderStatusPendingConfirmation, CreatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, repo.Insert(ctx, orders.Order{ID: "fresh", Status: enums.OrderStatusPendingConfirmation, CreatedAt: now.Add(-time.Hour)}))
	require.NoError(t, repo.Insert(ctx, orders.Order{ID: "settled", Status: enums.OrderStatusCompleted, CreatedAt: now.Add(-72 * time.Hour)}))

	require.NoError(t, job.Run(ctx))

	stale, err := repo.FindByID(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusExpired, stale.Status)

	fresh, err := repo.FindByID(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPendingConfirmation, fresh.Status)

	settled, err := repo.FindByID(ctx, "settled")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, settled.Status)
}

func TestOrderExpiryJobEmptySweep(t *testing.T) {
	job, _ := newExpiryFixture(t, 24*time.Hour)
	assert.NoError(t, job.Run(context.Background()))
}

func TestOrderExpiryJobName(t *testing.T) {
	job, _ := newExpiryFixture(t, 0)
	assert.Equal(t, "order-expiry", job.Name())
}
