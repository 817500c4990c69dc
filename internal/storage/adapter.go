package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/agrichain/agrichain-backend/pkg/errors"
	"github.com/agrichain/agrichain-backend/pkg/logger"
	"go.uber.org/multierr"
)

// Adapter is the persistence surface the services talk to. Every operation
// tries the primary store first and falls back to the secondary on failure.
// The two stores are never merged: a record lives wherever it was last
// written, and reads chase it through the fallback chain. When both stores
// fail the operation surfaces a PERSISTENCE_FAILURE; there is no silent
// success.
type Adapter struct {
	primary        Store
	secondary      Store
	logg           *logger.Logger
	primaryTimeout time.Duration
}

// defaultPrimaryTimeout bounds every primary call. A primary that hangs must
// degrade into a fallback, not consume the caller's whole deadline and starve
// the secondary store.
const defaultPrimaryTimeout = 3 * time.Second

// NewAdapter wires the fallback chain. primary may be nil (development mode
// with the primary store disabled); secondary is required.
func NewAdapter(primary, secondary Store, logg *logger.Logger) (*Adapter, error) {
	if secondary == nil {
		return nil, fmt.Errorf("secondary store required")
	}
	return &Adapter{
		primary:        primary,
		secondary:      secondary,
		logg:           logg,
		primaryTimeout: defaultPrimaryTimeout,
	}, nil
}

func (a *Adapter) primaryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.primaryTimeout)
}

func (a *Adapter) Put(ctx context.Context, collection, key string, record any) error {
	if a.primary != nil {
		pctx, cancel := a.primaryCtx(ctx)
		primaryErr := a.primary.Put(pctx, collection, key, record)
		cancel()
		if primaryErr == nil {
			return nil
		}
		a.logFallback(ctx, "put", collection, key, primaryErr)
		if secondaryErr := a.secondary.Put(ctx, collection, key, record); secondaryErr != nil {
			return a.bothFailed("put", collection, key, primaryErr, secondaryErr)
		}
		return nil
	}
	if err := a.secondary.Put(ctx, collection, key, record); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, fmt.Sprintf("put %s/%s", collection, key))
	}
	return nil
}

func (a *Adapter) Get(ctx context.Context, collection, key string, dest any) error {
	if a.primary != nil {
		pctx, cancel := a.primaryCtx(ctx)
		primaryErr := a.primary.Get(pctx, collection, key, dest)
		cancel()
		if primaryErr == nil {
			return nil
		}
		// A primary miss is also a fallback trigger: the record may only
		// exist in the secondary store.
		if !errors.Is(primaryErr, ErrNotFound) {
			a.logFallback(ctx, "get", collection, key, primaryErr)
		}
		secondaryErr := a.secondary.Get(ctx, collection, key, dest)
		if secondaryErr == nil {
			return nil
		}
		if errors.Is(secondaryErr, ErrNotFound) {
			return ErrNotFound
		}
		if errors.Is(primaryErr, ErrNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, secondaryErr, fmt.Sprintf("get %s/%s", collection, key))
		}
		return a.bothFailed("get", collection, key, primaryErr, secondaryErr)
	}
	err := a.secondary.Get(ctx, collection, key, dest)
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodePersistence, err, fmt.Sprintf("get %s/%s", collection, key))
}

func (a *Adapter) QueryByField(ctx context.Context, collection, field string, value any) ([]json.RawMessage, error) {
	return a.runQuery(ctx, collection, field, value, Store.QueryByField)
}

func (a *Adapter) QueryByContains(ctx context.Context, collection, field string, value any) ([]json.RawMessage, error) {
	return a.runQuery(ctx, collection, field, value, Store.QueryByContains)
}

func (a *Adapter) runQuery(
	ctx context.Context,
	collection, field string,
	value any,
	query func(Store, context.Context, string, string, any) ([]json.RawMessage, error),
) ([]json.RawMessage, error) {
	if a.primary != nil {
		pctx, cancel := a.primaryCtx(ctx)
		records, primaryErr := query(a.primary, pctx, collection, field, value)
		cancel()
		if primaryErr == nil && len(records) > 0 {
			return records, nil
		}
		if primaryErr != nil {
			a.logFallback(ctx, "query", collection, field, primaryErr)
		}
		// An empty primary result set falls through: records written while
		// the primary was down live only in the secondary store.
		secondary, secondaryErr := query(a.secondary, ctx, collection, field, value)
		if secondaryErr == nil {
			if len(secondary) == 0 && primaryErr == nil {
				return records, nil
			}
			return secondary, nil
		}
		if primaryErr == nil {
			return records, nil
		}
		return nil, a.bothFailed("query", collection, field, primaryErr, secondaryErr)
	}
	records, err := query(a.secondary, ctx, collection, field, value)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, fmt.Sprintf("query %s by %s", collection, field))
	}
	return records, nil
}

// Update applies a partial update, optionally guarded by a precondition. An
// ErrConditionFailed from either store is a semantic outcome and never
// triggers fallback; a primary miss does, for the same reason as Get.
func (a *Adapter) Update(ctx context.Context, collection, key string, fields map[string]any, pre *Precondition) error {
	if a.primary != nil {
		pctx, cancel := a.primaryCtx(ctx)
		primaryErr := a.primary.Update(pctx, collection, key, fields, pre)
		cancel()
		if primaryErr == nil || errors.Is(primaryErr, ErrConditionFailed) {
			return primaryErr
		}
		if !errors.Is(primaryErr, ErrNotFound) {
			a.logFallback(ctx, "update", collection, key, primaryErr)
		}
		secondaryErr := a.secondary.Update(ctx, collection, key, fields, pre)
		if secondaryErr == nil || errors.Is(secondaryErr, ErrConditionFailed) || errors.Is(secondaryErr, ErrNotFound) {
			if errors.Is(secondaryErr, ErrNotFound) && !errors.Is(primaryErr, ErrNotFound) {
				return a.bothFailed("update", collection, key, primaryErr, secondaryErr)
			}
			return secondaryErr
		}
		return a.bothFailed("update", collection, key, primaryErr, secondaryErr)
	}
	err := a.secondary.Update(ctx, collection, key, fields, pre)
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConditionFailed) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodePersistence, err, fmt.Sprintf("update %s/%s", collection, key))
}

func (a *Adapter) Delete(ctx context.Context, collection, key string) error {
	if a.primary != nil {
		pctx, cancel := a.primaryCtx(ctx)
		primaryErr := a.primary.Delete(pctx, collection, key)
		cancel()
		if primaryErr == nil {
			return nil
		}
		if !errors.Is(primaryErr, ErrNotFound) {
			a.logFallback(ctx, "delete", collection, key, primaryErr)
		}
		secondaryErr := a.secondary.Delete(ctx, collection, key)
		if secondaryErr == nil {
			return nil
		}
		if errors.Is(secondaryErr, ErrNotFound) {
			if errors.Is(primaryErr, ErrNotFound) {
				return ErrNotFound
			}
			return a.bothFailed("delete", collection, key, primaryErr, secondaryErr)
		}
		if errors.Is(primaryErr, ErrNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, secondaryErr, fmt.Sprintf("delete %s/%s", collection, key))
		}
		return a.bothFailed("delete", collection, key, primaryErr, secondaryErr)
	}
	err := a.secondary.Delete(ctx, collection, key)
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodePersistence, err, fmt.Sprintf("delete %s/%s", collection, key))
}

func (a *Adapter) logFallback(ctx context.Context, op, collection, subject string, err error) {
	if a.logg == nil {
		return
	}
	logCtx := a.logg.WithFields(ctx, map[string]any{
		"op":         op,
		"collection": collection,
		"subject":    subject,
		"store":      a.primary.Name(),
	})
	a.logg.Error(logCtx, "primary store failed; falling back", err)
}

func (a *Adapter) bothFailed(op, collection, subject string, primaryErr, secondaryErr error) error {
	combined := multierr.Combine(primaryErr, secondaryErr)
	return pkgerrors.Wrap(pkgerrors.CodePersistence, combined, fmt.Sprintf("%s %s/%s failed in both stores", op, collection, subject))
}
