package storage

import (
	"context"
	"encoding/json"
	"errors"
)

// Collection names used by the settlement core.
const (
	CollectionOrders   = "orders"
	CollectionWallets  = "wallets"
	CollectionProducts = "products"
)

var (
	// ErrNotFound is returned when a record does not exist in the store.
	ErrNotFound = errors.New("storage: record not found")
	// ErrConditionFailed is returned when a conditional update's precondition
	// does not hold. It is a semantic outcome, never a store failure.
	ErrConditionFailed = errors.New("storage: precondition failed")
)

// Precondition guards a conditional update: the update applies only while the
// named field still equals the expected value.
type Precondition struct {
	Field  string
	Equals any
}

// Store is one physical document store. Records cross the boundary as JSON;
// implementations must not retain references to the values they are given.
type Store interface {
	Name() string
	Put(ctx context.Context, collection, key string, record any) error
	Get(ctx context.Context, collection, key string, dest any) error
	QueryByField(ctx context.Context, collection, field string, value any) ([]json.RawMessage, error)
	QueryByContains(ctx context.Context, collection, field string, value any) ([]json.RawMessage, error)
	Update(ctx context.Context, collection, key string, fields map[string]any, pre *Precondition) error
	Delete(ctx context.Context, collection, key string) error
}

func encode(record any) (map[string]any, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func decode(doc map[string]any, dest any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
