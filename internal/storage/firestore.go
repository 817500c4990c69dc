package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/agrichain/agrichain-backend/pkg/config"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore is the primary document store.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestore connects a Firestore-backed store for the configured project.
func NewFirestore(ctx context.Context, cfg config.FirestoreConfig) (*FirestoreStore, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("firestore project id required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}
	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect firestore: %w", err)
	}
	return &FirestoreStore{client: client}, nil
}

func (s *FirestoreStore) Name() string { return "firestore" }

func (s *FirestoreStore) Put(ctx context.Context, collection, key string, record any) error {
	doc, err := encode(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if _, err := s.client.Collection(collection).Doc(key).Set(ctx, doc); err != nil {
		return fmt.Errorf("firestore set %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *FirestoreStore) Get(ctx context.Context, collection, key string, dest any) error {
	snap, err := s.client.Collection(collection).Doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("firestore get %s/%s: %w", collection, key, err)
	}
	return decode(snap.Data(), dest)
}

func (s *FirestoreStore) QueryByField(ctx context.Context, collection, field string, value any) ([]json.RawMessage, error) {
	return s.runQuery(ctx, s.client.Collection(collection).Where(field, "==", value))
}

func (s *FirestoreStore) QueryByContains(ctx context.Context, collection, field string, value any) ([]json.RawMessage, error) {
	return s.runQuery(ctx, s.client.Collection(collection).Where(field, "array-contains", value))
}

func (s *FirestoreStore) runQuery(ctx context.Context, query firestore.Query) ([]json.RawMessage, error) {
	iter := query.Documents(ctx)
	defer iter.Stop()

	var records []json.RawMessage
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore query: %w", err)
		}
		raw, err := json.Marshal(snap.Data())
		if err != nil {
			return nil, fmt.Errorf("encode query result: %w", err)
		}
		records = append(records, raw)
	}
	return records, nil
}

func (s *FirestoreStore) Update(ctx context.Context, collection, key string, fields map[string]any, pre *Precondition) error {
	ref := s.client.Collection(collection).Doc(key)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrNotFound
			}
			return err
		}
		if pre != nil {
			current, err := snap.DataAt(pre.Field)
			if err != nil {
				return ErrConditionFailed
			}
			if fmt.Sprint(current) != fmt.Sprint(pre.Equals) {
				return ErrConditionFailed
			}
		}
		return tx.Set(ref, fields, firestore.MergeAll)
	})
	if err == ErrNotFound || err == ErrConditionFailed {
		return err
	}
	if err != nil {
		return fmt.Errorf("firestore update %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *FirestoreStore) Delete(ctx context.Context, collection, key string) error {
	ref := s.client.Collection(collection).Doc(key)
	if _, err := ref.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("firestore get %s/%s: %w", collection, key, err)
	}
	if _, err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("firestore delete %s/%s: %w", collection, key, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *FirestoreStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
