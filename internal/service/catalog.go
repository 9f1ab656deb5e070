package service

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/atinyakov/NikahPrep/internal/cache"
	"github.com/atinyakov/NikahPrep/internal/finance"
	"github.com/atinyakov/NikahPrep/internal/form"
	"github.com/atinyakov/NikahPrep/internal/models"
	"github.com/atinyakov/NikahPrep/internal/realtime"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Table names of per-user catalog progress.
const (
	TableChecklist   = "checklist_progress"
	TableLessons     = "lesson_progress"
	TableModuleNotes = "module_notes"
	TableDiscussion  = "discussion_notes"
	TableFavorites   = "resource_favorites"
)

const maxNoteBodyLength = 20000

// CatalogRepository reads the shared catalog joined with a user's progress.
type CatalogRepository interface {
	ListChecklist(ctx context.Context, userID string) ([]models.ChecklistEntry, error)
	SetChecklistItem(ctx context.Context, userID, itemID string, completed bool) (models.ChecklistEntry, error)
	ListModules(ctx context.Context, userID string) ([]models.ModuleProgress, error)
	GetModule(ctx context.Context, slug string) (models.Module, error)
	ListLessons(ctx context.Context, userID string, moduleIDs []string) ([]models.Lesson, error)
	CompleteLesson(ctx context.Context, userID, lessonID string) (time.Time, error)
	UncompleteLesson(ctx context.Context, userID, lessonID string) error
	ListPrompts(ctx context.Context, userID string) ([]models.PromptEntry, error)
	ListResources(ctx context.Context, userID, kind string) ([]models.Resource, error)
	SetFavorite(ctx context.Context, userID, resourceID string, favorite bool) error
}

// Renderer converts markdown to HTML.
type Renderer interface {
	Render(source string) (string, error)
}

// CatalogStores groups the per-user note stores.
type CatalogStores struct {
	ModuleNotes form.Store[models.ModuleNote]
	Discussion  form.Store[models.DiscussionNote]
}

// CatalogService serves the checklist, modules, discussion prompts and
// resources together with the caller's progress on them.
type CatalogService struct {
	repo     CatalogRepository
	renderer Renderer
	rendered *cache.Cache[string]
	notes    *form.Binder[models.ModuleNote]
	prompts  *form.Binder[models.DiscussionNote]
	pub      form.Publisher
	log      *zap.Logger
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(
	repo CatalogRepository,
	stores CatalogStores,
	renderer Renderer,
	pub form.Publisher,
	cacheTTL time.Duration,
	log *zap.Logger,
) *CatalogService {
	return &CatalogService{
		repo:     repo,
		renderer: renderer,
		rendered: cache.New[string](0),
		notes: &form.Binder[models.ModuleNote]{
			Table: TableModuleNotes, Store: stores.ModuleNotes, Cache: cache.New[models.ModuleNote](cacheTTL),
			Publisher: pub, Log: log,
			Empty: func(userID, moduleID string) models.ModuleNote {
				return models.ModuleNote{UserID: userID, ModuleID: moduleID}
			},
		},
		prompts: &form.Binder[models.DiscussionNote]{
			Table: TableDiscussion, Store: stores.Discussion, Cache: cache.New[models.DiscussionNote](cacheTTL),
			Publisher: pub, Log: log,
			Empty: func(userID, promptID string) models.DiscussionNote {
				return models.DiscussionNote{UserID: userID, PromptID: promptID}
			},
		},
		pub: pub,
		log: log,
	}
}

// Invalidate drops cached notes named by e. Register it as a broker hook.
func (s *CatalogService) Invalidate(e realtime.Event) {
	s.notes.Invalidate(e)
	s.prompts.Invalidate(e)
}

func (s *CatalogService) publish(ctx context.Context, table, userID, key string, op realtime.Op) {
	if s.pub == nil {
		return
	}
	e := realtime.Event{Table: table, UserID: userID, Key: key, Op: op}
	if err := s.pub.Publish(ctx, e); err != nil {
		s.log.Warn("failed to publish change event", zap.String("table", table), zap.Error(err))
	}
}

// Progress is a done/total count with its percentage.
type Progress struct {
	Done    int             `json:"done"`
	Total   int             `json:"total"`
	Percent decimal.Decimal `json:"percent"`
}

func newProgress(done, total int) Progress {
	return Progress{Done: done, Total: total, Percent: finance.Ratio(done, total)}
}

// ChecklistGroup is the checklist items of one category.
type ChecklistGroup struct {
	Category string                  `json:"category"`
	Items    []models.ChecklistEntry `json:"items"`
}

// ChecklistView is the whole checklist grouped by category in catalog
// order.
type ChecklistView struct {
	Categories []ChecklistGroup `json:"categories"`
	Progress   Progress         `json:"progress"`
}

// Checklist returns the checklist with the user's completion.
func (s *CatalogService) Checklist(ctx context.Context, userID string) (ChecklistView, error) {
	items, err := s.repo.ListChecklist(ctx, userID)
	if err != nil {
		return ChecklistView{}, err
	}

	v := ChecklistView{Categories: []ChecklistGroup{}}
	index := map[string]int{}
	done := 0
	for _, it := range items {
		i, ok := index[it.Category]
		if !ok {
			i = len(v.Categories)
			index[it.Category] = i
			v.Categories = append(v.Categories, ChecklistGroup{Category: it.Category})
		}
		v.Categories[i].Items = append(v.Categories[i].Items, it)
		if it.Completed {
			done++
		}
	}
	v.Progress = newProgress(done, len(items))
	return v, nil
}

// SetChecklistItem marks a checklist item as completed or not.
func (s *CatalogService) SetChecklistItem(ctx context.Context, userID, itemID string, completed bool) (models.ChecklistEntry, error) {
	e, err := s.repo.SetChecklistItem(ctx, userID, itemID, completed)
	if err != nil {
		return models.ChecklistEntry{}, err
	}
	s.publish(ctx, TableChecklist, userID, itemID, realtime.OpUpsert)
	return e, nil
}

// ModuleSummary is a module with the user's lesson progress.
type ModuleSummary struct {
	models.Module
	Progress Progress `json:"progress"`
}

// Modules lists every module with the user's progress.
func (s *CatalogService) Modules(ctx context.Context, userID string) ([]ModuleSummary, error) {
	mods, err := s.repo.ListModules(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]ModuleSummary, 0, len(mods))
	for _, m := range mods {
		out = append(out, ModuleSummary{Module: m.Module, Progress: newProgress(m.LessonsDone, m.LessonsTotal)})
	}
	return out, nil
}

// ModuleView is one module with rendered lessons and the user's note.
type ModuleView struct {
	ModuleSummary
	Note models.ModuleNote `json:"note"`
}

// Module returns the module with the given slug.
func (s *CatalogService) Module(ctx context.Context, userID, slug string) (ModuleView, error) {
	m, err := s.repo.GetModule(ctx, slug)
	if err != nil {
		return ModuleView{}, err
	}
	lessons, err := s.repo.ListLessons(ctx, userID, []string{m.ID})
	if err != nil {
		return ModuleView{}, err
	}

	done := 0
	for i := range lessons {
		html, err := s.render(lessons[i])
		if err != nil {
			return ModuleView{}, err
		}
		lessons[i].HTML = html
		if lessons[i].CompletedAt != nil {
			done++
		}
	}
	m.Lessons = lessons

	note, err := s.notes.Load(ctx, userID, m.ID)
	if err != nil {
		return ModuleView{}, err
	}
	return ModuleView{
		ModuleSummary: ModuleSummary{Module: m, Progress: newProgress(done, len(lessons))},
		Note:          note,
	}, nil
}

// render converts a lesson body, keeping the result per lesson and body.
func (s *CatalogService) render(l models.Lesson) (string, error) {
	key := l.ID + ":" + l.Body
	if html, ok := s.rendered.Get(key); ok {
		return html, nil
	}
	html, err := s.renderer.Render(l.Body)
	if err != nil {
		return "", fmt.Errorf("lesson %s: %w", l.ID, err)
	}
	s.rendered.Set(key, html)
	return html, nil
}

// CompleteLesson marks a lesson as done and returns when it was first
// completed.
func (s *CatalogService) CompleteLesson(ctx context.Context, userID, lessonID string) (time.Time, error) {
	at, err := s.repo.CompleteLesson(ctx, userID, lessonID)
	if err != nil {
		return time.Time{}, err
	}
	s.publish(ctx, TableLessons, userID, lessonID, realtime.OpUpsert)
	return at, nil
}

// UncompleteLesson clears the completion of a lesson.
func (s *CatalogService) UncompleteLesson(ctx context.Context, userID, lessonID string) error {
	if err := s.repo.UncompleteLesson(ctx, userID, lessonID); err != nil {
		return err
	}
	s.publish(ctx, TableLessons, userID, lessonID, realtime.OpDelete)
	return nil
}

// NoteForm replaces the body of the note for a module.
type NoteForm struct {
	ModuleID string
	Body     string
}

// Key implements form.Form.
func (f NoteForm) Key() string { return f.ModuleID }

// Bind implements form.Form.
func (f NoteForm) Bind(current models.ModuleNote) (models.ModuleNote, form.FieldErrors) {
	errs := form.FieldErrors{}
	if utf8.RuneCountInString(f.Body) > maxNoteBodyLength {
		errs.Add("body", fmt.Sprintf("must be at most %d characters", maxNoteBodyLength))
	}
	current.ModuleID = f.ModuleID
	current.Body = f.Body
	return current, errs
}

// Note returns the user's note for the module with the given slug.
func (s *CatalogService) Note(ctx context.Context, userID, slug string) (models.ModuleNote, error) {
	m, err := s.repo.GetModule(ctx, slug)
	if err != nil {
		return models.ModuleNote{}, err
	}
	return s.notes.Load(ctx, userID, m.ID)
}

// SaveNote stores the note for the module with the given slug. The last
// write wins.
func (s *CatalogService) SaveNote(ctx context.Context, userID, slug, body string) (models.ModuleNote, error) {
	m, err := s.repo.GetModule(ctx, slug)
	if err != nil {
		return models.ModuleNote{}, err
	}
	return s.notes.Save(ctx, userID, NoteForm{ModuleID: m.ID, Body: body})
}

// PromptGroup is the discussion prompts of one category.
type PromptGroup struct {
	Category string               `json:"category"`
	Prompts  []models.PromptEntry `json:"prompts"`
}

// PromptsView is every discussion prompt grouped by category.
type PromptsView struct {
	Categories []PromptGroup `json:"categories"`
	Progress   Progress      `json:"progress"`
}

// Prompts returns the discussion prompts with the user's notes. Progress
// counts prompts marked as discussed.
func (s *CatalogService) Prompts(ctx context.Context, userID string) (PromptsView, error) {
	entries, err := s.repo.ListPrompts(ctx, userID)
	if err != nil {
		return PromptsView{}, err
	}

	v := PromptsView{Categories: []PromptGroup{}}
	index := map[string]int{}
	done := 0
	for _, e := range entries {
		i, ok := index[e.Category]
		if !ok {
			i = len(v.Categories)
			index[e.Category] = i
			v.Categories = append(v.Categories, PromptGroup{Category: e.Category})
		}
		v.Categories[i].Prompts = append(v.Categories[i].Prompts, e)
		if e.Note != nil && e.Note.Discussed {
			done++
		}
	}
	v.Progress = newProgress(done, len(entries))
	return v, nil
}

// DiscussionForm updates the note on a prompt. Nil fields keep their
// current value.
type DiscussionForm struct {
	PromptID  string
	Body      *string
	Discussed *bool
}

// Key implements form.Form.
func (f DiscussionForm) Key() string { return f.PromptID }

// Bind implements form.Form.
func (f DiscussionForm) Bind(current models.DiscussionNote) (models.DiscussionNote, form.FieldErrors) {
	errs := form.FieldErrors{}
	current.PromptID = f.PromptID
	if f.Body != nil {
		if utf8.RuneCountInString(*f.Body) > maxNoteBodyLength {
			errs.Add("body", fmt.Sprintf("must be at most %d characters", maxNoteBodyLength))
		}
		current.Body = *f.Body
	}
	if f.Discussed != nil {
		current.Discussed = *f.Discussed
	}
	return current, errs
}

// SavePromptNote stores the user's note on a prompt. Unknown prompts
// yield ErrNotFound.
func (s *CatalogService) SavePromptNote(ctx context.Context, userID string, f DiscussionForm) (models.DiscussionNote, error) {
	return s.prompts.Save(ctx, userID, f)
}

// Resources lists resources, filtered by kind when kind is not empty.
func (s *CatalogService) Resources(ctx context.Context, userID, kind string) ([]models.Resource, error) {
	res, err := s.repo.ListResources(ctx, userID, kind)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = []models.Resource{}
	}
	return res, nil
}

// SetFavorite adds or removes a resource from the user's favorites.
func (s *CatalogService) SetFavorite(ctx context.Context, userID, resourceID string, favorite bool) error {
	if err := s.repo.SetFavorite(ctx, userID, resourceID, favorite); err != nil {
		return err
	}
	op := realtime.OpUpsert
	if !favorite {
		op = realtime.OpDelete
	}
	s.publish(ctx, TableFavorites, userID, resourceID, op)
	return nil
}
