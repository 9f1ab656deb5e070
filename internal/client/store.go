package client

import (
	"context"
	"errors"
	"time"

	"github.com/atinyakov/NikahPrep/internal/cache"
	"github.com/atinyakov/NikahPrep/internal/finance"
	"github.com/atinyakov/NikahPrep/internal/form"
	"github.com/atinyakov/NikahPrep/internal/models"
	"github.com/atinyakov/NikahPrep/internal/realtime"
	"github.com/atinyakov/NikahPrep/internal/service"
	"go.uber.org/zap"
)

// selfKey is the cache key of single-row entities.
const selfKey = "self"

// Store serves reads from a local cache and keeps it in step with the
// server. Checklist toggles and note edits are applied optimistically and
// rolled back when the server rejects them; other saves are written
// through. Watch drops entries named by the event stream.
type Store struct {
	api *API
	log *zap.Logger

	dashboard *cache.Cache[service.Dashboard]
	budget    *cache.Cache[service.BudgetView]
	mahr      *cache.Cache[service.MahrView]
	wedding   *cache.Cache[service.WeddingView]
	goals     *cache.Cache[service.GoalsView]
	checklist *cache.Cache[service.ChecklistView]
	notes     *cache.Cache[models.ModuleNote]
}

// NewStore returns a Store over api. Entries expire after ttl even without
// events; zero keeps them until invalidated.
func NewStore(api *API, ttl time.Duration) *Store {
	return &Store{
		api:       api,
		log:       api.Log,
		dashboard: cache.New[service.Dashboard](ttl),
		budget:    cache.New[service.BudgetView](ttl),
		mahr:      cache.New[service.MahrView](ttl),
		wedding:   cache.New[service.WeddingView](ttl),
		goals:     cache.New[service.GoalsView](ttl),
		checklist: cache.New[service.ChecklistView](ttl),
		notes:     cache.New[models.ModuleNote](ttl),
	}
}

func cached[V any](ctx context.Context, c *cache.Cache[V], key string, load func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

func saved[V any](s *Store, c *cache.Cache[V], key string, v V, err error) (V, error) {
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	s.dashboard.Invalidate(selfKey)
	return v, nil
}

// Dashboard returns the overview.
func (s *Store) Dashboard(ctx context.Context) (service.Dashboard, error) {
	return cached(ctx, s.dashboard, selfKey, s.api.Dashboard)
}

// Budget returns the budget.
func (s *Store) Budget(ctx context.Context) (service.BudgetView, error) {
	return cached(ctx, s.budget, selfKey, s.api.Budget)
}

// SaveBudget saves budget input.
func (s *Store) SaveBudget(ctx context.Context, values form.Values) (service.BudgetView, error) {
	v, err := s.api.SaveBudget(ctx, values)
	return saved(s, s.budget, selfKey, v, err)
}

// Mahr returns the mahr tracker.
func (s *Store) Mahr(ctx context.Context) (service.MahrView, error) {
	return cached(ctx, s.mahr, selfKey, s.api.Mahr)
}

// SaveMahr saves mahr input.
func (s *Store) SaveMahr(ctx context.Context, values form.Values) (service.MahrView, error) {
	v, err := s.api.SaveMahr(ctx, values)
	return saved(s, s.mahr, selfKey, v, err)
}

// Wedding returns the wedding budget.
func (s *Store) Wedding(ctx context.Context) (service.WeddingView, error) {
	return cached(ctx, s.wedding, selfKey, s.api.Wedding)
}

// SaveWedding saves wedding budget input.
func (s *Store) SaveWedding(ctx context.Context, values form.Values) (service.WeddingView, error) {
	v, err := s.api.SaveWedding(ctx, values)
	return saved(s, s.wedding, selfKey, v, err)
}

// Goals returns the savings goals.
func (s *Store) Goals(ctx context.Context) (service.GoalsView, error) {
	return cached(ctx, s.goals, selfKey, s.api.Goals)
}

// SaveGoal saves the goal called name. The goal list is reloaded on next
// read since its overview changes with every goal.
func (s *Store) SaveGoal(ctx context.Context, name string, values form.Values) (service.GoalView, error) {
	v, err := s.api.SaveGoal(ctx, name, values)
	if err != nil {
		return v, err
	}
	s.goals.Invalidate(selfKey)
	s.dashboard.Invalidate(selfKey)
	return v, nil
}

// DeleteGoal removes the goal called name.
func (s *Store) DeleteGoal(ctx context.Context, name string) error {
	if err := s.api.DeleteGoal(ctx, name); err != nil {
		return err
	}
	s.goals.Invalidate(selfKey)
	s.dashboard.Invalidate(selfKey)
	return nil
}

// Checklist returns the checklist.
func (s *Store) Checklist(ctx context.Context) (service.ChecklistView, error) {
	return cached(ctx, s.checklist, selfKey, s.api.Checklist)
}

// SetChecklistItem toggles an item. The cached checklist shows the change
// before the server confirms it and reverts if the call fails.
func (s *Store) SetChecklistItem(ctx context.Context, itemID string, completed bool) (service.ChecklistView, error) {
	current, err := s.Checklist(ctx)
	if err != nil {
		return current, err
	}
	next := withChecklistEntry(current, models.ChecklistEntry{
		ChecklistItem: models.ChecklistItem{ID: itemID},
		Completed:     completed,
	})
	v, err := s.checklist.Optimistic(selfKey, next, func() (service.ChecklistView, error) {
		entry, err := s.api.SetChecklistItem(ctx, itemID, completed)
		if err != nil {
			return service.ChecklistView{}, err
		}
		return withChecklistEntry(next, entry), nil
	})
	if err == nil {
		s.dashboard.Invalidate(selfKey)
	}
	return v, err
}

// withChecklistEntry returns a copy of v with the item of e.ID replaced by
// e's completion and the progress recounted. Catalog fields of e are used
// only when set.
func withChecklistEntry(v service.ChecklistView, e models.ChecklistEntry) service.ChecklistView {
	out := service.ChecklistView{Categories: make([]service.ChecklistGroup, len(v.Categories))}
	done, total := 0, 0
	for i, g := range v.Categories {
		items := make([]models.ChecklistEntry, len(g.Items))
		for j, item := range g.Items {
			if item.ID == e.ID {
				item.Completed = e.Completed
				item.CompletedAt = e.CompletedAt
				if e.Title != "" {
					item.ChecklistItem = e.ChecklistItem
				}
			}
			if item.Completed {
				done++
			}
			total++
			items[j] = item
		}
		out.Categories[i] = service.ChecklistGroup{Category: g.Category, Items: items}
	}
	out.Progress = service.Progress{Done: done, Total: total, Percent: finance.Ratio(done, total)}
	return out
}

// Note returns the note on a module.
func (s *Store) Note(ctx context.Context, slug string) (models.ModuleNote, error) {
	return cached(ctx, s.notes, slug, func(ctx context.Context) (models.ModuleNote, error) {
		return s.api.Note(ctx, slug)
	})
}

// SaveNote replaces the note on a module, showing the new body at once and
// restoring the old one if the save fails.
func (s *Store) SaveNote(ctx context.Context, slug, body string) (models.ModuleNote, error) {
	next, _ := s.notes.Get(slug)
	next.Body = body
	return s.notes.Optimistic(slug, next, func() (models.ModuleNote, error) {
		return s.api.SaveNote(ctx, slug, body)
	})
}

// Invalidate drops the entries affected by e. Any change may move the
// dashboard; a resync drops everything.
func (s *Store) Invalidate(e realtime.Event) {
	s.dashboard.Invalidate(selfKey)
	switch e.Table {
	case service.TableBudget:
		s.budget.Invalidate(selfKey)
	case service.TableMahr:
		s.mahr.Invalidate(selfKey)
	case service.TableWedding:
		s.wedding.Invalidate(selfKey)
	case service.TableGoals:
		s.goals.Invalidate(selfKey)
	case service.TableChecklist:
		s.checklist.Invalidate(selfKey)
	case service.TableModuleNotes:
		// Notes are keyed by slug here and by module id on the wire.
		s.notes.InvalidatePrefix("")
	}
	if e.Op == realtime.OpResync {
		s.budget.InvalidatePrefix("")
		s.mahr.InvalidatePrefix("")
		s.wedding.InvalidatePrefix("")
		s.goals.InvalidatePrefix("")
		s.checklist.InvalidatePrefix("")
		s.notes.InvalidatePrefix("")
	}
}

// Watch follows the event stream until ctx is done, reconnecting after
// failures with the given delay. Each event invalidates the cache and is
// then passed to fn when fn is non-nil. Every reconnect drops the cache
// since events may have been missed.
func (s *Store) Watch(ctx context.Context, retry time.Duration, fn func(realtime.Event)) error {
	handle := func(e realtime.Event) {
		s.Invalidate(e)
		if fn != nil {
			fn(e)
		}
	}
	for {
		err := s.api.Events(ctx, handle)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrNotSignedIn) {
			return err
		}
		if err != nil {
			s.log.Warn("event stream interrupted", zap.Error(err))
		}
		handle(realtime.Event{Op: realtime.OpResync, At: time.Now().UTC()})
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retry):
		}
	}
}
