package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/agrichain/agrichain-backend/internal/storage"
	"github.com/agrichain/agrichain-backend/pkg/enums"
)

// store is the slice of the persistence adapter the order repo uses.
type store interface {
	Put(ctx context.Context, collection, key string, record any) error
	Get(ctx context.Context, collection, key string, dest any) error
	QueryByField(ctx context.Context, collection, field string, value any) ([]json.RawMessage, error)
	QueryByContains(ctx context.Context, collection, field string, value any) ([]json.RawMessage, error)
	Update(ctx context.Context, collection, key string, fields map[string]any, pre *storage.Precondition) error
}

// Repo persists orders through the fallback adapter. Not-found and failed
// preconditions surface as the storage sentinels; callers map them to API
// error codes.
type Repo interface {
	Insert(ctx context.Context, order Order) error
	FindByID(ctx context.Context, orderID string) (Order, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]Order, error)
	ListBySeller(ctx context.Context, sellerID string) ([]Order, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]Order, error)
	// TransitionStatus conditionally moves an order from one status to
	// another. completedAt is written only when non-nil.
	TransitionStatus(ctx context.Context, orderID string, from, to enums.OrderStatus, completedAt *time.Time) error
	MarkNeedsReconciliation(ctx context.Context, orderID string) error
}

type repo struct {
	store store
	now   func() time.Time
}

func NewRepo(store store) (Repo, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	return &repo{store: store, now: time.Now}, nil
}

func (r *repo) Insert(ctx context.Context, order Order) error {
	return r.store.Put(ctx, storage.CollectionOrders, order.ID, order)
}

func (r *repo) FindByID(ctx context.Context, orderID string) (Order, error) {
	var order Order
	if err := r.store.Get(ctx, storage.CollectionOrders, orderID, &order); err != nil {
		return Order{}, err
	}
	return order, nil
}

func (r *repo) ListByBuyer(ctx context.Context, buyerID string) ([]Order, error) {
	records, err := r.store.QueryByField(ctx, storage.CollectionOrders, "buyerId", buyerID)
	if err != nil {
		return nil, err
	}
	return decodeNewestFirst(records)
}

func (r *repo) ListBySeller(ctx context.Context, sellerID string) ([]Order, error) {
	records, err := r.store.QueryByContains(ctx, storage.CollectionOrders, "sellerIds", sellerID)
	if err != nil {
		return nil, err
	}
	return decodeNewestFirst(records)
}

func (r *repo) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]Order, error) {
	records, err := r.store.QueryByField(ctx, storage.CollectionOrders, "status", string(enums.OrderStatusPendingConfirmation))
	if err != nil {
		return nil, err
	}
	all, err := decodeNewestFirst(records)
	if err != nil {
		return nil, err
	}
	stale := make([]Order, 0, len(all))
	for _, order := range all {
		if order.CreatedAt.Before(cutoff) {
			stale = append(stale, order)
		}
	}
	return stale, nil
}

func (r *repo) TransitionStatus(ctx context.Context, orderID string, from, to enums.OrderStatus, completedAt *time.Time) error {
	fields := map[string]any{
		"status":    string(to),
		"updatedAt": r.now().UTC().Format(time.RFC3339Nano),
	}
	if completedAt != nil {
		fields["completedAt"] = completedAt.UTC().Format(time.RFC3339Nano)
	}
	pre := &storage.Precondition{Field: "status", Equals: string(from)}
	return r.store.Update(ctx, storage.CollectionOrders, orderID, fields, pre)
}

func (r *repo) MarkNeedsReconciliation(ctx context.Context, orderID string) error {
	fields := map[string]any{
		"needsReconciliation": true,
		"updatedAt":           r.now().UTC().Format(time.RFC3339Nano),
	}
	return r.store.Update(ctx, storage.CollectionOrders, orderID, fields, nil)
}

func decodeNewestFirst(records []json.RawMessage) ([]Order, error) {
	result := make([]Order, 0, len(records))
	for _, raw := range records {
		var order Order
		if err := json.Unmarshal(raw, &order); err != nil {
			return nil, fmt.Errorf("decode order: %w", err)
		}
		result = append(result, order)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}
