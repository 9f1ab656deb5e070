package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/atinyakov/NikahPrep/internal/cache"
	"github.com/atinyakov/NikahPrep/internal/finance"
	"github.com/atinyakov/NikahPrep/internal/form"
	"github.com/atinyakov/NikahPrep/internal/models"
	"github.com/atinyakov/NikahPrep/internal/money"
	"github.com/atinyakov/NikahPrep/internal/realtime"
	"go.uber.org/zap"
)

// Table names used for cache keys and change events.
const (
	TableBudget  = "budgets"
	TableMahr    = "mahr"
	TableWedding = "wedding_budgets"
	TableGoals   = "savings_goals"
)

// DefaultMahrCurrency is shown before the user picks a currency.
const DefaultMahrCurrency = "USD"

const (
	maxNotesLength    = 2000
	maxGoalNameLength = 100
)

// GoalStore persists savings goals, unique per user by name.
type GoalStore interface {
	form.Store[models.SavingsGoal]
	List(ctx context.Context, userID string) ([]models.SavingsGoal, error)
	Delete(ctx context.Context, userID, name string) error
}

// RecordStores groups the stores of the finance trackers.
type RecordStores struct {
	Budget  form.Store[models.Budget]
	Mahr    form.Store[models.Mahr]
	Wedding form.Store[models.WeddingBudget]
	Goals   GoalStore
}

// RecordService loads and saves the finance trackers of a user and derives
// their summaries.
type RecordService struct {
	budget  *form.Binder[models.Budget]
	mahr    *form.Binder[models.Mahr]
	wedding *form.Binder[models.WeddingBudget]
	goals   *form.Binder[models.SavingsGoal]

	goalStore GoalStore
	notifier  Notifier
	log       *zap.Logger
}

// NewRecordService wires one form.Binder per tracker. Cached rows expire
// after cacheTTL; zero keeps them until invalidated.
func NewRecordService(
	stores RecordStores,
	pub form.Publisher,
	cacheTTL time.Duration,
	notifier Notifier,
	log *zap.Logger,
) *RecordService {
	return &RecordService{
		budget: &form.Binder[models.Budget]{
			Table: TableBudget, Store: stores.Budget, Cache: cache.New[models.Budget](cacheTTL),
			Publisher: pub, Log: log,
			Empty: func(userID, _ string) models.Budget { return models.Budget{UserID: userID} },
		},
		mahr: &form.Binder[models.Mahr]{
			Table: TableMahr, Store: stores.Mahr, Cache: cache.New[models.Mahr](cacheTTL),
			Publisher: pub, Log: log,
			Empty: func(userID, _ string) models.Mahr {
				return models.Mahr{UserID: userID, Currency: DefaultMahrCurrency, Status: models.MahrPending}
			},
		},
		wedding: &form.Binder[models.WeddingBudget]{
			Table: TableWedding, Store: stores.Wedding, Cache: cache.New[models.WeddingBudget](cacheTTL),
			Publisher: pub, Log: log,
			Empty: func(userID, _ string) models.WeddingBudget { return models.WeddingBudget{UserID: userID} },
		},
		goals: &form.Binder[models.SavingsGoal]{
			Table: TableGoals, Store: stores.Goals, Cache: cache.New[models.SavingsGoal](cacheTTL),
			Publisher: pub, Log: log,
			Empty: func(userID, name string) models.SavingsGoal {
				return models.SavingsGoal{UserID: userID, Name: name}
			},
		},
		goalStore: stores.Goals,
		notifier:  notifier,
		log:       log,
	}
}

// Invalidate drops cached rows named by e. Register it as a broker hook.
func (s *RecordService) Invalidate(e realtime.Event) {
	s.budget.Invalidate(e)
	s.mahr.Invalidate(e)
	s.wedding.Invalidate(e)
	s.goals.Invalidate(e)
}

// BudgetView is a budget with its derived totals.
type BudgetView struct {
	Budget  models.Budget  `json:"budget"`
	Summary finance.Budget `json:"summary"`
}

// BudgetForm is raw budget input keyed by column name.
type BudgetForm struct {
	Values form.Values
}

// Key implements form.Form.
func (BudgetForm) Key() string { return "" }

// Bind implements form.Form. Fields absent from the input keep their
// current amounts.
func (f BudgetForm) Bind(current models.Budget) (models.Budget, form.FieldErrors) {
	errs := form.FieldErrors{}
	rejectUnknown(f.Values, fieldNames(current.Fields()), errs)
	f.Values.Amounts(current.Fields(), money.DefaultRange, errs)
	return current, errs
}

// Budget returns the user's budget, zero-valued before the first save.
func (s *RecordService) Budget(ctx context.Context, userID string) (BudgetView, error) {
	b, err := s.budget.Load(ctx, userID, "")
	if err != nil {
		return BudgetView{}, err
	}
	return BudgetView{Budget: b, Summary: finance.SummarizeBudget(b)}, nil
}

// SaveBudget validates and stores budget input.
func (s *RecordService) SaveBudget(ctx context.Context, userID string, values form.Values) (BudgetView, error) {
	b, err := s.budget.Save(ctx, userID, BudgetForm{Values: values})
	if err != nil {
		return BudgetView{}, err
	}
	return BudgetView{Budget: b, Summary: finance.SummarizeBudget(b)}, nil
}

// MahrView is the mahr record with its payment summary.
type MahrView struct {
	Mahr    models.Mahr  `json:"mahr"`
	Summary finance.Mahr `json:"summary"`
}

// MahrForm is raw mahr input.
type MahrForm struct {
	Values form.Values
}

// Key implements form.Form.
func (MahrForm) Key() string { return "" }

// Bind implements form.Form. The status is derived from the amounts and
// the paid amount may not exceed the agreed amount.
func (f MahrForm) Bind(current models.Mahr) (models.Mahr, form.FieldErrors) {
	errs := form.FieldErrors{}
	amounts := []models.Field{
		{Name: "amount", Value: &current.Amount},
		{Name: "amount_paid", Value: &current.AmountPaid},
	}
	rejectUnknown(f.Values, append(fieldNames(amounts), "currency", "notes"), errs)
	f.Values.Amounts(amounts, money.DefaultRange, errs)

	if raw, ok := f.Values["currency"]; ok {
		c := strings.ToUpper(strings.TrimSpace(raw))
		if len(c) != 3 || strings.Trim(c, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") != "" {
			errs.Add("currency", "must be a three-letter currency code")
		} else {
			current.Currency = c
		}
	}
	if raw, ok := f.Values["notes"]; ok {
		if utf8.RuneCountInString(raw) > maxNotesLength {
			errs.Add("notes", fmt.Sprintf("must be at most %d characters", maxNotesLength))
		} else {
			current.Notes = raw
		}
	}
	if current.AmountPaid.GreaterThan(current.Amount) {
		errs.Add("amount_paid", "cannot exceed the mahr amount")
	}
	current.Status = finance.MahrStatus(current.Amount, current.AmountPaid)
	return current, errs
}

// Mahr returns the user's mahr record.
func (s *RecordService) Mahr(ctx context.Context, userID string) (MahrView, error) {
	m, err := s.mahr.Load(ctx, userID, "")
	if err != nil {
		return MahrView{}, err
	}
	return MahrView{Mahr: m, Summary: finance.SummarizeMahr(m)}, nil
}

// SaveMahr validates and stores mahr input.
func (s *RecordService) SaveMahr(ctx context.Context, userID string, values form.Values) (MahrView, error) {
	m, err := s.mahr.Save(ctx, userID, MahrForm{Values: values})
	if err != nil {
		return MahrView{}, err
	}
	return MahrView{Mahr: m, Summary: finance.SummarizeMahr(m)}, nil
}

// WeddingView is the wedding budget with its spend summary.
type WeddingView struct {
	Wedding models.WeddingBudget `json:"wedding"`
	Summary finance.Wedding      `json:"summary"`
}

// WeddingForm is raw wedding budget input keyed by column name.
type WeddingForm struct {
	Values form.Values
}

// Key implements form.Form.
func (WeddingForm) Key() string { return "" }

// Bind implements form.Form.
func (f WeddingForm) Bind(current models.WeddingBudget) (models.WeddingBudget, form.FieldErrors) {
	errs := form.FieldErrors{}
	fields := append([]models.Field{{Name: "total_budget", Value: &current.TotalBudget}}, current.SpendFields()...)
	rejectUnknown(f.Values, fieldNames(fields), errs)
	f.Values.Amounts(fields, money.DefaultRange, errs)
	return current, errs
}

// Wedding returns the user's wedding budget.
func (s *RecordService) Wedding(ctx context.Context, userID string) (WeddingView, error) {
	w, err := s.wedding.Load(ctx, userID, "")
	if err != nil {
		return WeddingView{}, err
	}
	return WeddingView{Wedding: w, Summary: finance.SummarizeWedding(w)}, nil
}

// SaveWedding validates and stores wedding budget input.
func (s *RecordService) SaveWedding(ctx context.Context, userID string, values form.Values) (WeddingView, error) {
	w, err := s.wedding.Save(ctx, userID, WeddingForm{Values: values})
	if err != nil {
		return WeddingView{}, err
	}
	return WeddingView{Wedding: w, Summary: finance.SummarizeWedding(w)}, nil
}

// GoalView is a savings goal with its progress.
type GoalView struct {
	models.SavingsGoal
	Progress finance.Savings `json:"progress"`
}

// GoalsView lists the user's goals with an overview across all of them.
type GoalsView struct {
	Goals    []GoalView              `json:"goals"`
	Overview finance.SavingsOverview `json:"overview"`
}

// SavingsGoalForm is raw input for the goal called Name.
type SavingsGoalForm struct {
	Name   string
	Values form.Values
}

// Key implements form.Form.
func (f SavingsGoalForm) Key() string { return strings.TrimSpace(f.Name) }

// Bind implements form.Form. A goal must be greater than zero.
func (f SavingsGoalForm) Bind(current models.SavingsGoal) (models.SavingsGoal, form.FieldErrors) {
	errs := form.FieldErrors{}
	name := f.Key()
	switch {
	case name == "":
		errs.Add("name", "is required")
	case utf8.RuneCountInString(name) > maxGoalNameLength:
		errs.Add("name", fmt.Sprintf("must be at most %d characters", maxGoalNameLength))
	}
	current.Name = name

	amounts := []models.Field{
		{Name: "goal", Value: &current.Goal},
		{Name: "current", Value: &current.Current},
	}
	rejectUnknown(f.Values, append(fieldNames(amounts), "target_date"), errs)
	f.Values.Amounts(amounts, money.DefaultRange, errs)
	if raw, ok := f.Values["target_date"]; ok {
		date, err := parseDate(raw)
		if err != nil {
			errs.Add("target_date", err.Error())
		} else {
			current.TargetDate = date
		}
	}
	if _, bad := errs["goal"]; !bad && !current.Goal.IsPositive() {
		errs.Add("goal", "must be greater than zero")
	}
	return current, errs
}

func goalView(g models.SavingsGoal) GoalView {
	return GoalView{SavingsGoal: g, Progress: finance.SavingsProgress(g.Goal, g.Current)}
}

// Goals lists the user's savings goals ordered by name.
func (s *RecordService) Goals(ctx context.Context, userID string) (GoalsView, error) {
	goals, err := s.goalStore.List(ctx, userID)
	if err != nil {
		return GoalsView{}, err
	}
	v := GoalsView{Goals: make([]GoalView, 0, len(goals)), Overview: finance.SummarizeSavings(goals)}
	for _, g := range goals {
		v.Goals = append(v.Goals, goalView(g))
	}
	return v, nil
}

// SaveGoal creates or updates the goal called name. Reaching the goal for
// the first time creates a notification.
func (s *RecordService) SaveGoal(ctx context.Context, userID, name string, values form.Values) (GoalView, error) {
	f := SavingsGoalForm{Name: name, Values: values}
	before, err := s.goals.Load(ctx, userID, f.Key())
	if err != nil {
		return GoalView{}, err
	}
	wasComplete := finance.SavingsProgress(before.Goal, before.Current).IsComplete

	g, err := s.goals.Save(ctx, userID, f)
	if err != nil {
		return GoalView{}, err
	}
	v := goalView(g)
	if v.Progress.IsComplete && !wasComplete {
		msg := fmt.Sprintf("You reached your savings goal %q.", g.Name)
		if err := s.notifier.Notify(ctx, userID, models.NotifyGoalReached, msg); err != nil {
			s.log.Warn("failed to notify goal reached", zap.String("user", userID), zap.Error(err))
		}
	}
	return v, nil
}

// DeleteGoal removes the goal called name.
func (s *RecordService) DeleteGoal(ctx context.Context, userID, name string) error {
	name = strings.TrimSpace(name)
	if err := s.goalStore.Delete(ctx, userID, name); err != nil {
		return err
	}
	s.goals.Forget(ctx, userID, name)
	return nil
}

func fieldNames(fields []models.Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

func rejectUnknown(values form.Values, known []string, errs form.FieldErrors) {
	allowed := make(map[string]bool, len(known))
	for _, k := range known {
		allowed[k] = true
	}
	for k := range values {
		if !allowed[k] {
			errs.Add(k, "unknown field")
		}
	}
}

// IsValidation reports whether err carries field errors.
func IsValidation(err error) (form.FieldErrors, bool) {
	var fe form.FieldErrors
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
