package client

import (
	"context"
	"time"

	"github.com/atinyakov/NikahPrep/internal/autosave"
)

// NoteEditor edits one module note, saving through the Store once typing
// pauses.
type NoteEditor struct {
	Slug  string
	saver *autosave.Saver
}

// EditNote loads the note on slug and returns an editor for it. Saves run
// with ctx after delay of inactivity.
func (s *Store) EditNote(ctx context.Context, slug string, delay time.Duration) (*NoteEditor, error) {
	note, err := s.Note(ctx, slug)
	if err != nil {
		return nil, err
	}
	saver := autosave.New(ctx, delay, func(ctx context.Context, text string) error {
		_, err := s.SaveNote(ctx, slug, text)
		return err
	})
	saver.Load(note.Body)
	return &NoteEditor{Slug: slug, saver: saver}, nil
}

// Text returns the current text.
func (e *NoteEditor) Text() string { return e.saver.State().Text }

// State returns the save state.
func (e *NoteEditor) State() autosave.State { return e.saver.State() }

// Update replaces the text and schedules a save.
func (e *NoteEditor) Update(text string) { e.saver.Update(text) }

// OnChange reports every save state transition to fn.
func (e *NoteEditor) OnChange(fn func(autosave.State)) { e.saver.OnChange(fn) }

// Close saves pending text and stops the editor.
func (e *NoteEditor) Close(ctx context.Context) error {
	err := e.saver.Flush(ctx)
	e.saver.Close()
	return err
}
