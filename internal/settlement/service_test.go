package settlement

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/agrichain/agrichain-backend/internal/listings"
	"github.com/agrichain/agrichain-backend/internal/orders"
	"github.com/agrichain/agrichain-backend/internal/storage"
	"github.com/agrichain/agrichain-backend/internal/wallet"
	"github.com/agrichain/agrichain-backend/pkg/config"
	"github.com/agrichain/agrichain-backend/pkg/enums"
	pkgerrors "github.com/agrichain/agrichain-backend/pkg/errors"
	"github.com/agrichain/agrichain-backend/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyWallet fails credits for the named sellers and delegates the rest.
type flakyWallet struct {
	inner       wallet.Service
	failSellers map[string]bool
}

func (f *flakyWallet) Credit(ctx context.Context, sellerID string, amount decimal.Decimal) (wallet.Wallet, error) {
	if f.failSellers[sellerID] {
		return wallet.Wallet{}, pkgerrors.New(pkgerrors.CodePersistence, "wallet store unavailable")
	}
	return f.inner.Credit(ctx, sellerID, amount)
}

func (f *flakyWallet) Balance(ctx context.Context, sellerID string) (wallet.Wallet, error) {
	return f.inner.Balance(ctx, sellerID)
}

type fixture struct {
	orders      orders.Service
	repo        orders.Repo
	wallets     wallet.Service
	flaky       *flakyWallet
	settlements Service
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: &bytes.Buffer{}})
}

func newFixture(t *testing.T, cfg config.OTPConfig) *fixture {
	t.Helper()
	logg := testLogger()

	fileStore, err := storage.NewFileStore(t.TempDir(), storage.DefaultKeyFields())
	require.NoError(t, err)
	adapter, err := storage.NewAdapter(nil, fileStore, logg)
	require.NoError(t, err)

	repo, err := orders.NewRepo(adapter)
	require.NoError(t, err)
	listingSvc, err := listings.NewService(adapter, logg)
	require.NoError(t, err)
	orderSvc, err := orders.NewService(repo, listingSvc, logg)
	require.NoError(t, err)
	walletSvc, err := wallet.NewService(adapter, logg)
	require.NoError(t, err)

	flaky := &flakyWallet{inner: walletSvc, failSellers: map[string]bool{}}
	settleSvc, err := NewService(repo, flaky, cfg, nil, logg)
	require.NoError(t, err)

	return &fixture{
		orders:      orderSvc,
		repo:        repo,
		wallets:     walletSvc,
		flaky:       flaky,
		settlements: settleSvc,
	}
}

func (f *fixture) createOrder(t *testing.T) orders.CreateResult {
	t.Helper()
	result, err := f.orders.Create(context.Background(), orders.CreateInput{
		BuyerID: "buyer-1",
		Items: []orders.LineItem{
			{ProductID: "p1", SellerID: "seller-1", Name: "maize", Unit: "50kg bag", UnitPrice: decimal.RequireFromString("40.00"), Quantity: 5},
			{ProductID: "p2", SellerID: "seller-2", Name: "beans", Unit: "25kg bag", UnitPrice: decimal.RequireFromString("12.50"), Quantity: 4},
		},
	})
	require.NoError(t, err)
	return result
}

func TestVerifySettlesAndCreditsSellers(t *testing.T) {
	f := newFixture(t, config.OTPConfig{})
	ctx := context.Background()
	created := f.createOrder(t)

	result, err := f.settlements.Verify(ctx, created.OrderID, created.OTP, "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, result.Status)
	assert.False(t, result.CompletedAt.IsZero())

	order, err := f.repo.FindByID(ctx, created.OrderID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, order.Status)
	require.NotNil(t, order.CompletedAt)
	assert.False(t, order.NeedsReconciliation)

	// 40.00 * 5
	w1, err := f.wallets.Balance(ctx, "seller-1")
	require.NoError(t, err)
	assert.True(t, w1.Balance.Equal(decimal.RequireFromString("200.00")), "got %s", w1.Balance)

	// 12.50 * 4
	w2, err := f.wallets.Balance(ctx, "seller-2")
	require.NoError(t, err)
	assert.True(t, w2.Balance.Equal(decimal.RequireFromString("50.00")), "got %s", w2.Balance)
}

func TestVerifyTrimsPresentedCode(t *testing.T) {
	f := newFixture(t, config.OTPConfig{})
	created := f.createOrder(t)

	_, err := f.settlements.Verify(context.Background(), created.OrderID, "  "+created.OTP+"\n", "buyer-1")
	assert.NoError(t, err)
}

func TestVerifyWrongCode(t *testing.T) {
	f := newFixture(t, config.OTPConfig{})
	ctx := context.Background()
	created := f.createOrder(t)

	wrong := "000000"
	if wrong == created.OTP {
		wrong = "000001"
	}
	_, err := f.settlements.Verify(ctx, created.OrderID, wrong, "buyer-1")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidOTP))

	order, err := f.repo.FindByID(ctx, created.OrderID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPendingConfirmation, order.Status)

	w, err := f.wallets.Balance(ctx, "seller-1")
	require.NoError(t, err)
	assert.True(t, w.Balance.IsZero())
}

func TestVerifyEmptyCode(t *testing.T) {
	f := newFixture(t, config.OTPConfig{})
	created := f.createOrder(t)

	_, err := f.settlements.Verify(context.Background(), created.OrderID, "   ", "buyer-1")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidOTP))
}

func TestVerifyForeignBuyer(t *testing.T) {
	f := newFixture(t, config.OTPConfig{})
	ctx := context.Background()
	created := f.createOrder(t)

	// Even the correct code settles nothing for a different buyer.
	_, err := f.settlements.Verify(ctx, created.OrderID, created.OTP, "intruder")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized))

	order, err := f.repo.FindByID(ctx, created.OrderID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPendingConfirmation, order.Status)
}

func TestVerifyUnknownOrder(t *testing.T) {
	f := newFixture(t, config.OTPConfig{})

	_, err := f.settlements.Verify(context.Background(), "missing", "123456", "buyer-1")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestVerifyIdempotence(t *testing.T) {
	f := newFixture(t, config.OTPConfig{})
	ctx := context.Background()
	created := f.createOrder(t)

	_, err := f.settlements.Verify(ctx, created.OrderID, created.OTP, "buyer-1")
	require.NoError(t, err)

	_, err = f.settlements.Verify(ctx, created.OrderID, created.OTP, "buyer-1")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	// The replay must not double-credit.
	w, err := f.wallets.Balance(ctx, "seller-1")
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.RequireFromString("200.00")), "got %s", w.Balance)
}

func TestVerifyConcurrentAttemptsSettleOnce(t *testing.T) {
	f := newFixture(t, config.OTPConfig{})
	ctx := context.Background()
	created := f.createOrder(t)

	const attempts = 8
	successes := 0
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			if _, err := f.settlements.Verify(ctx, created.OrderID, created.OTP, "buyer-1"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)

	w, err := f.wallets.Balance(ctx, "seller-1")
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.RequireFromString("200.00")), "got %s", w.Balance)
}

func TestVerifyBypassRejectedByDefault(t *testing.T) {
	f := newFixture(t, config.OTPConfig{TestBypassCode: "123456"})
	created := f.createOrder(t)

	if created.OTP == "123456" {
		t.Skip("generated code collides with the bypass code")
	}
	_, err := f.settlements.Verify(context.Background(), created.OrderID, "123456", "buyer-1")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidOTP))
}

func TestVerifyBypassAcceptedWhenEnabled(t *testing.T) {
	f := newFixture(t, config.OTPConfig{AllowTestBypass: true, TestBypassCode: "123456"})
	created := f.createOrder(t)

	result, err := f.settlements.Verify(context.Background(), created.OrderID, "123456", "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, result.Status)
}

func TestVerifyPartialSettlement(t *testing.T) {
	f := newFixture(t, config.OTPConfig{})
	ctx := context.Background()
	created := f.createOrder(t)
	f.flaky.failSellers["seller-2"] = true

	_, err := f.settlements.Verify(ctx, created.OrderID, created.OTP, "buyer-1")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodePartialSettlement))

	// The completed transition stands and the order is flagged for manual
	// reconciliation.
	order, err := f.repo.FindByID(ctx, created.OrderID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, order.Status)
	assert.True(t, order.NeedsReconciliation)

	w1, err := f.wallets.Balance(ctx, "seller-1")
	require.NoError(t, err)
	assert.True(t, w1.Balance.Equal(decimal.RequireFromString("200.00")), "got %s", w1.Balance)

	w2, err := f.wallets.Balance(ctx, "seller-2")
	require.NoError(t, err)
	assert.True(t, w2.Balance.IsZero())
}

func TestVerifyEndToEndOnFallbackAlone(t *testing.T) {
	// The whole create-then-verify flow must work with no primary store
	// configured, which is exactly the posture when the document store is
	// down at startup.
	f := newFixture(t, config.OTPConfig{})
	ctx := context.Background()
	created := f.createOrder(t)

	result, err := f.settlements.Verify(ctx, created.OrderID, created.OTP, "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, result.Status)
}
