// Package form is the single load/validate/save path shared by every
// per-user record: fetch the row (cache first), bind raw form input into
// a record, validate it, upsert it, write the result through to the cache
// and publish a change event.
package form

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/atinyakov/NikahPrep/internal/cache"
	"github.com/atinyakov/NikahPrep/internal/models"
	"github.com/atinyakov/NikahPrep/internal/money"
	"github.com/atinyakov/NikahPrep/internal/realtime"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotFound is returned by stores when the row does not exist yet.
var ErrNotFound = models.ErrNotFound

// FieldErrors maps input field names to validation messages.
type FieldErrors map[string]string

// Add records msg for field, keeping the first message per field.
func (fe FieldErrors) Add(field, msg string) {
	if _, ok := fe[field]; !ok {
		fe[field] = msg
	}
}

// Err returns fe as an error, or nil when there are no messages.
func (fe FieldErrors) Err() error {
	if len(fe) == 0 {
		return nil
	}
	return fe
}

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fe[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Values is raw form input as typed by the user.
type Values map[string]string

// Amounts parses every field present in v into the matching record field,
// leaving fields absent from v untouched. Parse failures are added to errs.
func (v Values) Amounts(fields []models.Field, r money.Range, errs FieldErrors) {
	for _, f := range fields {
		raw, ok := v[f.Name]
		if !ok {
			continue
		}
		amount, err := money.Parse(raw, r)
		if err != nil {
			errs.Add(f.Name, amountMessage(err))
			continue
		}
		*f.Value = amount
	}
}

func amountMessage(err error) string {
	var rangeErr *money.RangeError
	if errors.As(err, &rangeErr) {
		return rangeErr.Error()
	}
	return "must be a number"
}

// Form binds raw input onto the current version of a record.
type Form[T any] interface {
	// Key identifies the row among the user's rows of this kind. It is
	// empty for rows that exist once per user.
	Key() string
	// Bind applies the input to current and validates the result.
	Bind(current T) (T, FieldErrors)
}

// Store persists records of one kind.
type Store[T any] interface {
	Get(ctx context.Context, userID, key string) (T, error)
	Upsert(ctx context.Context, userID string, rec T) (T, error)
}

// Publisher announces row changes.
type Publisher interface {
	Publish(ctx context.Context, e realtime.Event) error
}

// Binder implements Load and Save for one record kind.
type Binder[T any] struct {
	Table     string
	Store     Store[T]
	Cache     *cache.Cache[T]
	Publisher Publisher
	// Empty returns the record shown before the user first saves.
	Empty func(userID, key string) T
	Log   *zap.Logger

	originOnce sync.Once
	origin     string
}

// Origin is stamped on every event this Binder publishes.
func (b *Binder[T]) Origin() string {
	b.originOnce.Do(func() { b.origin = uuid.NewString() })
	return b.origin
}

// Load returns the user's record, or Empty when none was saved yet.
func (b *Binder[T]) Load(ctx context.Context, userID, key string) (T, error) {
	ck := cache.Key(b.Table, userID, key)
	if v, ok := b.Cache.Get(ck); ok {
		return v, nil
	}

	rec, err := b.Store.Get(ctx, userID, key)
	if errors.Is(err, ErrNotFound) {
		return b.Empty(userID, key), nil
	}
	if err != nil {
		var zero T
		return zero, fmt.Errorf("load %s: %w", b.Table, err)
	}
	b.Cache.Set(ck, rec)
	return rec, nil
}

// Save binds f onto the current record and upserts it. Validation failures
// are returned as FieldErrors and nothing is written. Saving unchanged
// input again upserts the same row.
func (b *Binder[T]) Save(ctx context.Context, userID string, f Form[T]) (T, error) {
	var zero T
	key := f.Key()

	current, err := b.Load(ctx, userID, key)
	if err != nil {
		return zero, err
	}

	rec, errs := f.Bind(current)
	if err := errs.Err(); err != nil {
		return zero, err
	}

	saved, err := b.Store.Upsert(ctx, userID, rec)
	if err != nil {
		return zero, fmt.Errorf("save %s: %w", b.Table, err)
	}
	b.Cache.Set(cache.Key(b.Table, userID, key), saved)

	b.publish(ctx, realtime.Event{Table: b.Table, UserID: userID, Key: key, Op: realtime.OpUpsert})
	return saved, nil
}

// Forget drops a cached row after it was deleted outside Save and
// announces the deletion.
func (b *Binder[T]) Forget(ctx context.Context, userID, key string) {
	b.Cache.Invalidate(cache.Key(b.Table, userID, key))
	b.publish(ctx, realtime.Event{Table: b.Table, UserID: userID, Key: key, Op: realtime.OpDelete})
}

// Invalidate drops cache entries named by e. It is registered as a
// realtime.Broker hook. Events published by b itself are ignored: Save and
// Forget have already updated the cache.
func (b *Binder[T]) Invalidate(e realtime.Event) {
	switch {
	case e.Op == realtime.OpResync:
		b.Cache.InvalidatePrefix(b.Table + ":")
	case e.Origin != "" && e.Origin == b.Origin():
	case e.Table == b.Table:
		b.Cache.Invalidate(cache.Key(e.Table, e.UserID, e.Key))
	}
}

func (b *Binder[T]) publish(ctx context.Context, e realtime.Event) {
	if b.Publisher == nil {
		return
	}
	e.Origin = b.Origin()
	// The row is stored at this point, so publish failures are only logged.
	if err := b.Publisher.Publish(ctx, e); err != nil {
		b.Log.Warn("failed to publish change event",
			zap.String("table", e.Table), zap.String("user", e.UserID), zap.Error(err))
	}
}
