// Package autosave persists free text after the writer pauses.
//
// Every Update replaces the local text and restarts an idle timer; when the
// timer fires the latest text is saved. Saves never overlap and the last
// text written wins. A failed save is reported through State and is only
// repeated by Retry, Flush or a further edit.
package autosave

import (
	"context"
	"sync"
	"time"
)

// DefaultDelay is the idle time before text is saved.
const DefaultDelay = time.Second

// Status is the save state shown next to the editor.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
	StatusSaving  Status = "saving"
	StatusSaved   Status = "saved"
	StatusError   Status = "error"
)

// SaveFunc persists text.
type SaveFunc func(ctx context.Context, text string) error

// State is a snapshot of the saver.
type State struct {
	Status  Status
	Text    string
	Err     error
	SavedAt time.Time
}

// Saver debounces saves of a single text value.
type Saver struct {
	ctx   context.Context
	save  SaveFunc
	delay time.Duration

	saveMu sync.Mutex

	mu       sync.Mutex
	timer    *time.Timer
	text     string
	gen      uint64
	dirty    bool
	closed   bool
	state    State
	onChange func(State)
}

// New creates a Saver that calls save after delay of inactivity. ctx is
// passed to timer-triggered saves. A non-positive delay uses DefaultDelay.
func New(ctx context.Context, delay time.Duration, save SaveFunc) *Saver {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Saver{
		ctx:   ctx,
		save:  save,
		delay: delay,
		state: State{Status: StatusIdle},
	}
}

// OnChange registers fn to receive every state transition. fn runs with no
// locks held, on the goroutine that caused the change.
func (s *Saver) OnChange(fn func(State)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Load sets the initial text without scheduling a save.
func (s *Saver) Load(text string) {
	s.mu.Lock()
	s.text = text
	s.state.Text = text
	s.mu.Unlock()
}

// Update records a new text and restarts the idle timer.
func (s *Saver) Update(text string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.text = text
	s.gen++
	s.dirty = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, s.fire)
	st := s.setLocked(StatusPending, nil)
	s.mu.Unlock()
	s.notify(st)
}

// State returns the current snapshot.
func (s *Saver) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Flush saves pending text now instead of waiting for the timer.
func (s *Saver) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
	return s.persist(ctx)
}

// Retry repeats a failed save with the current text.
func (s *Saver) Retry(ctx context.Context) error {
	return s.Flush(ctx)
}

// Close stops the idle timer. Unsaved text stays unsaved; call Flush first
// to keep it.
func (s *Saver) Close() {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
}

func (s *Saver) fire() {
	_ = s.persist(s.ctx)
}

func (s *Saver) persist(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	text, gen := s.text, s.gen
	st := s.setLocked(StatusSaving, nil)
	s.mu.Unlock()
	s.notify(st)

	err := s.save(ctx, text)

	s.mu.Lock()
	switch {
	case err != nil:
		st = s.setLocked(StatusError, err)
	case gen == s.gen:
		s.dirty = false
		s.state.SavedAt = time.Now()
		st = s.setLocked(StatusSaved, nil)
	default:
		// Edited while saving; the running timer saves the newer text.
		st = s.setLocked(StatusPending, nil)
	}
	s.mu.Unlock()
	s.notify(st)
	return err
}

func (s *Saver) setLocked(status Status, err error) State {
	s.state.Status = status
	s.state.Err = err
	s.state.Text = s.text
	return s.state
}

func (s *Saver) notify(st State) {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}
