package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/atinyakov/NikahPrep/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	checklist []models.ChecklistEntry
	modules   []models.ModuleProgress
	module    map[string]models.Module
	lessons   []models.Lesson
	prompts   []models.PromptEntry
	resources []models.Resource

	favorites map[string]bool
	completed map[string]bool
}

func (f *fakeCatalog) ListChecklist(context.Context, string) ([]models.ChecklistEntry, error) {
	return f.checklist, nil
}

func (f *fakeCatalog) SetChecklistItem(_ context.Context, _, itemID string, completed bool) (models.ChecklistEntry, error) {
	for i := range f.checklist {
		if f.checklist[i].ID == itemID {
			f.checklist[i].Completed = completed
			return f.checklist[i], nil
		}
	}
	return models.ChecklistEntry{}, ErrNotFound
}

func (f *fakeCatalog) ListModules(context.Context, string) ([]models.ModuleProgress, error) {
	return f.modules, nil
}

func (f *fakeCatalog) GetModule(_ context.Context, slug string) (models.Module, error) {
	m, ok := f.module[slug]
	if !ok {
		return models.Module{}, ErrNotFound
	}
	return m, nil
}

func (f *fakeCatalog) ListLessons(_ context.Context, _ string, moduleIDs []string) ([]models.Lesson, error) {
	var out []models.Lesson
	for _, l := range f.lessons {
		for _, id := range moduleIDs {
			if l.ModuleID == id {
				out = append(out, l)
			}
		}
	}
	return out, nil
}

func (f *fakeCatalog) CompleteLesson(_ context.Context, _, lessonID string) (time.Time, error) {
	f.completed[lessonID] = true
	return time.Now(), nil
}

func (f *fakeCatalog) UncompleteLesson(_ context.Context, _, lessonID string) error {
	delete(f.completed, lessonID)
	return nil
}

func (f *fakeCatalog) ListPrompts(context.Context, string) ([]models.PromptEntry, error) {
	return f.prompts, nil
}

func (f *fakeCatalog) ListResources(_ context.Context, _, kind string) ([]models.Resource, error) {
	var out []models.Resource
	for _, r := range f.resources {
		if kind == "" || r.Kind == kind {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeCatalog) SetFavorite(_ context.Context, _, resourceID string, favorite bool) error {
	f.favorites[resourceID] = favorite
	return nil
}

type countingRenderer struct {
	calls int
}

func (r *countingRenderer) Render(source string) (string, error) {
	r.calls++
	return "<p>" + strings.TrimPrefix(source, "# ") + "</p>", nil
}

type catalogFixture struct {
	svc      *CatalogService
	repo     *fakeCatalog
	notes    *memStore[models.ModuleNote]
	talk     *memStore[models.DiscussionNote]
	renderer *countingRenderer
	pub      *recordingPublisher
}

func newCatalogFixture() *catalogFixture {
	done := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := &fakeCatalog{
		checklist: []models.ChecklistEntry{
			{ChecklistItem: models.ChecklistItem{ID: "c1", Category: "spiritual"}, Completed: true},
			{ChecklistItem: models.ChecklistItem{ID: "c2", Category: "family"}},
			{ChecklistItem: models.ChecklistItem{ID: "c3", Category: "spiritual"}},
			{ChecklistItem: models.ChecklistItem{ID: "c4", Category: "family"}, Completed: true},
		},
		modules: []models.ModuleProgress{
			{Module: models.Module{ID: "m1", Slug: "foundations"}, LessonsTotal: 2, LessonsDone: 1},
		},
		module: map[string]models.Module{"foundations": {ID: "m1", Slug: "foundations"}},
		lessons: []models.Lesson{
			{ID: "l1", ModuleID: "m1", Body: "# Niyyah", CompletedAt: &done},
			{ID: "l2", ModuleID: "m1", Body: "# Rights"},
			{ID: "l3", ModuleID: "m2", Body: "# Other"},
		},
		prompts: []models.PromptEntry{
			{DiscussionPrompt: models.DiscussionPrompt{ID: "p1", Category: "money"}, Note: &models.DiscussionNote{Discussed: true}},
			{DiscussionPrompt: models.DiscussionPrompt{ID: "p2", Category: "money"}},
			{DiscussionPrompt: models.DiscussionPrompt{ID: "p3", Category: "home"}},
		},
		resources: []models.Resource{
			{ID: "r1", Kind: "book"},
			{ID: "r2", Kind: "video"},
		},
		favorites: map[string]bool{},
		completed: map[string]bool{},
	}
	f := &catalogFixture{
		repo:     repo,
		notes:    newMemStore(func(n models.ModuleNote) string { return n.ModuleID }),
		talk:     newMemStore(func(n models.DiscussionNote) string { return n.PromptID }),
		renderer: &countingRenderer{},
		pub:      &recordingPublisher{},
	}
	f.svc = NewCatalogService(repo, CatalogStores{ModuleNotes: f.notes, Discussion: f.talk}, f.renderer, f.pub, 0, nopLog)
	return f
}

func TestChecklist_GroupsInCatalogOrder(t *testing.T) {
	f := newCatalogFixture()

	v, err := f.svc.Checklist(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, v.Categories, 2)
	assert.Equal(t, "spiritual", v.Categories[0].Category)
	assert.Len(t, v.Categories[0].Items, 2)
	assert.Equal(t, 2, v.Progress.Done)
	assert.Equal(t, 4, v.Progress.Total)
	assert.True(t, v.Progress.Percent.Equal(dec("50")))
}

func TestSetChecklistItem_Publishes(t *testing.T) {
	f := newCatalogFixture()

	e, err := f.svc.SetChecklistItem(context.Background(), "u1", "c2", true)
	require.NoError(t, err)
	assert.True(t, e.Completed)
	assert.Equal(t, []string{TableChecklist}, f.pub.tables())

	_, err = f.svc.SetChecklistItem(context.Background(), "u1", "nope", true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestModules(t *testing.T) {
	f := newCatalogFixture()

	mods, err := f.svc.Modules(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.True(t, mods[0].Progress.Percent.Equal(dec("50")))
}

func TestModule_RendersLessonsOnce(t *testing.T) {
	f := newCatalogFixture()
	ctx := context.Background()

	v, err := f.svc.Module(ctx, "u1", "foundations")
	require.NoError(t, err)
	require.Len(t, v.Lessons, 2)
	assert.Equal(t, "<p>Niyyah</p>", v.Lessons[0].HTML)
	assert.Equal(t, 1, v.Progress.Done)
	assert.Equal(t, "m1", v.Note.ModuleID)
	assert.Empty(t, v.Note.Body)

	_, err = f.svc.Module(ctx, "u1", "foundations")
	require.NoError(t, err)
	assert.Equal(t, 2, f.renderer.calls)

	_, err = f.svc.Module(ctx, "u1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveNote_LastWriteWins(t *testing.T) {
	f := newCatalogFixture()
	ctx := context.Background()

	_, err := f.svc.SaveNote(ctx, "u1", "foundations", "first")
	require.NoError(t, err)
	_, err = f.svc.SaveNote(ctx, "u1", "foundations", "second")
	require.NoError(t, err)

	n, err := f.svc.Note(ctx, "u1", "foundations")
	require.NoError(t, err)
	assert.Equal(t, "second", n.Body)
	assert.Len(t, f.notes.rows, 1)

	_, err = f.svc.SaveNote(ctx, "u1", "foundations", strings.Repeat("x", maxNoteBodyLength+1))
	_, ok := IsValidation(err)
	assert.True(t, ok)
}

func TestLessonCompletion(t *testing.T) {
	f := newCatalogFixture()
	ctx := context.Background()

	_, err := f.svc.CompleteLesson(ctx, "u1", "l2")
	require.NoError(t, err)
	assert.True(t, f.repo.completed["l2"])
	require.NoError(t, f.svc.UncompleteLesson(ctx, "u1", "l2"))
	assert.False(t, f.repo.completed["l2"])
	assert.Equal(t, []string{TableLessons, TableLessons}, f.pub.tables())
}

func TestPrompts(t *testing.T) {
	f := newCatalogFixture()
	ctx := context.Background()

	v, err := f.svc.Prompts(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, v.Categories, 2)
	assert.Len(t, v.Categories[0].Prompts, 2)
	assert.Equal(t, 1, v.Progress.Done)

	body := "we agreed"
	n, err := f.svc.SavePromptNote(ctx, "u1", DiscussionForm{PromptID: "p2", Body: &body})
	require.NoError(t, err)
	assert.Equal(t, "we agreed", n.Body)
	assert.False(t, n.Discussed)

	yes := true
	n, err = f.svc.SavePromptNote(ctx, "u1", DiscussionForm{PromptID: "p2", Discussed: &yes})
	require.NoError(t, err)
	assert.Equal(t, "we agreed", n.Body, "body is kept when only the flag changes")
	assert.True(t, n.Discussed)
}

func TestResourcesAndFavorites(t *testing.T) {
	f := newCatalogFixture()
	ctx := context.Background()

	all, err := f.svc.Resources(ctx, "u1", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	none, err := f.svc.Resources(ctx, "u1", "podcast")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	require.NoError(t, f.svc.SetFavorite(ctx, "u1", "r1", true))
	require.NoError(t, f.svc.SetFavorite(ctx, "u1", "r1", false))
	assert.False(t, f.repo.favorites["r1"])
	assert.Len(t, f.pub.events, 2)
}
