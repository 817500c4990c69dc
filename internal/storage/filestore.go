package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore is the local fallback: one JSON array file per collection,
// read-modify-rewritten wholesale under a per-collection mutex. It is a
// single-process store; concurrent writers from other processes are not safe.
type FileStore struct {
	dir       string
	keyFields map[string]string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// DefaultKeyFields maps each collection to the record field holding its key.
func DefaultKeyFields() map[string]string {
	return map[string]string{
		CollectionOrders:   "id",
		CollectionWallets:  "sellerId",
		CollectionProducts: "id",
	}
}

// NewFileStore prepares a file-backed store rooted at dir.
func NewFileStore(dir string, keyFields map[string]string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("fallback dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create fallback dir: %w", err)
	}
	if keyFields == nil {
		keyFields = DefaultKeyFields()
	}
	return &FileStore{
		dir:       dir,
		keyFields: keyFields,
		locks:     make(map[string]*sync.Mutex),
	}, nil
}

func (s *FileStore) Name() string { return "file" }

func (s *FileStore) Put(ctx context.Context, collection, key string, record any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := encode(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	unlock := s.lock(collection)
	defer unlock()

	docs, err := s.read(collection)
	if err != nil {
		return err
	}
	keyField := s.keyField(collection)
	replaced := false
	for i, existing := range docs {
		if fmt.Sprint(existing[keyField]) == key {
			docs[i] = doc
			replaced = true
			break
		}
	}
	if !replaced {
		docs = append(docs, doc)
	}
	return s.write(collection, docs)
}

func (s *FileStore) Get(ctx context.Context, collection, key string, dest any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.lock(collection)
	defer unlock()

	docs, err := s.read(collection)
	if err != nil {
		return err
	}
	keyField := s.keyField(collection)
	for _, doc := range docs {
		if fmt.Sprint(doc[keyField]) == key {
			return decode(doc, dest)
		}
	}
	return ErrNotFound
}

func (s *FileStore) QueryByField(ctx context.Context, collection, field string, value any) ([]json.RawMessage, error) {
	return s.query(ctx, collection, func(doc map[string]any) bool {
		return fmt.Sprint(doc[field]) == fmt.Sprint(value)
	})
}

func (s *FileStore) QueryByContains(ctx context.Context, collection, field string, value any) ([]json.RawMessage, error) {
	want := fmt.Sprint(value)
	return s.query(ctx, collection, func(doc map[string]any) bool {
		members, ok := doc[field].([]any)
		if !ok {
			return false
		}
		for _, member := range members {
			if fmt.Sprint(member) == want {
				return true
			}
		}
		return false
	})
}

func (s *FileStore) query(ctx context.Context, collection string, match func(map[string]any) bool) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	unlock := s.lock(collection)
	defer unlock()

	docs, err := s.read(collection)
	if err != nil {
		return nil, err
	}
	var records []json.RawMessage
	for _, doc := range docs {
		if !match(doc) {
			continue
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encode query result: %w", err)
		}
		records = append(records, raw)
	}
	return records, nil
}

func (s *FileStore) Update(ctx context.Context, collection, key string, fields map[string]any, pre *Precondition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	normalized, err := encode(fields)
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}

	unlock := s.lock(collection)
	defer unlock()

	docs, err := s.read(collection)
	if err != nil {
		return err
	}
	keyField := s.keyField(collection)
	for i, doc := range docs {
		if fmt.Sprint(doc[keyField]) != key {
			continue
		}
		if pre != nil && fmt.Sprint(doc[pre.Field]) != fmt.Sprint(pre.Equals) {
			return ErrConditionFailed
		}
		for field, value := range normalized {
			doc[field] = value
		}
		docs[i] = doc
		return s.write(collection, docs)
	}
	return ErrNotFound
}

func (s *FileStore) Delete(ctx context.Context, collection, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.lock(collection)
	defer unlock()

	docs, err := s.read(collection)
	if err != nil {
		return err
	}
	keyField := s.keyField(collection)
	kept := docs[:0]
	found := false
	for _, doc := range docs {
		if fmt.Sprint(doc[keyField]) == key {
			found = true
			continue
		}
		kept = append(kept, doc)
	}
	if !found {
		return ErrNotFound
	}
	return s.write(collection, kept)
}

func (s *FileStore) keyField(collection string) string {
	if field, ok := s.keyFields[collection]; ok {
		return field
	}
	return "id"
}

func (s *FileStore) lock(collection string) func() {
	s.mu.Lock()
	lock, ok := s.locks[collection]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[collection] = lock
	}
	s.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

func (s *FileStore) path(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

func (s *FileStore) read(collection string) ([]map[string]any, error) {
	raw, err := os.ReadFile(s.path(collection))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", collection, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var docs []map[string]any
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", collection, err)
	}
	return docs, nil
}

func (s *FileStore) write(collection string, docs []map[string]any) error {
	if docs == nil {
		docs = []map[string]any{}
	}
	raw, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", collection, err)
	}
	if err := os.WriteFile(s.path(collection), raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", collection, err)
	}
	return nil
}
