package repository

import (
	"database/sql"
	"time"

	"github.com/atinyakov/NikahPrep/internal/models"
)

func fieldNames(fields []models.Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

func fieldPointers(fields []models.Field) []any {
	ptrs := make([]any, len(fields))
	for i, f := range fields {
		ptrs[i] = f.Value
	}
	return ptrs
}

// NewBudgetTable stores one budget per user.
func NewBudgetTable(db *sql.DB) *Table[models.Budget] {
	var probe models.Budget
	return (&Table[models.Budget]{
		DB:      db,
		Name:    "budgets",
		Columns: fieldNames(probe.Fields()),
		Fields:  func(b *models.Budget) []any { return fieldPointers(b.Fields()) },
		Owner:   func(b *models.Budget) *string { return &b.UserID },
		Updated: func(b *models.Budget) *time.Time { return &b.UpdatedAt },
	}).Prepare()
}

// NewMahrTable stores one mahr record per user.
func NewMahrTable(db *sql.DB) *Table[models.Mahr] {
	return (&Table[models.Mahr]{
		DB:      db,
		Name:    "mahr",
		Columns: []string{"amount", "amount_paid", "currency", "notes", "status"},
		Fields: func(m *models.Mahr) []any {
			return []any{&m.Amount, &m.AmountPaid, &m.Currency, &m.Notes, &m.Status}
		},
		Owner:   func(m *models.Mahr) *string { return &m.UserID },
		Updated: func(m *models.Mahr) *time.Time { return &m.UpdatedAt },
	}).Prepare()
}

// NewWeddingBudgetTable stores one wedding budget per user.
func NewWeddingBudgetTable(db *sql.DB) *Table[models.WeddingBudget] {
	var probe models.WeddingBudget
	return (&Table[models.WeddingBudget]{
		DB:      db,
		Name:    "wedding_budgets",
		Columns: append([]string{"total_budget"}, fieldNames(probe.SpendFields())...),
		Fields: func(w *models.WeddingBudget) []any {
			return append([]any{&w.TotalBudget}, fieldPointers(w.SpendFields())...)
		},
		Owner:   func(w *models.WeddingBudget) *string { return &w.UserID },
		Updated: func(w *models.WeddingBudget) *time.Time { return &w.UpdatedAt },
	}).Prepare()
}

// NewSavingsGoalTable stores savings goals keyed by name.
func NewSavingsGoalTable(db *sql.DB) *Table[models.SavingsGoal] {
	return (&Table[models.SavingsGoal]{
		DB:        db,
		Name:      "savings_goals",
		KeyColumn: "name",
		Columns:   []string{"goal", "current", "target_date"},
		Fields: func(g *models.SavingsGoal) []any {
			return []any{&g.Goal, &g.Current, &g.TargetDate}
		},
		Key:     func(g *models.SavingsGoal) *string { return &g.Name },
		Owner:   func(g *models.SavingsGoal) *string { return &g.UserID },
		Updated: func(g *models.SavingsGoal) *time.Time { return &g.UpdatedAt },
	}).Prepare()
}

// NewModuleNoteTable stores one note per user and module.
func NewModuleNoteTable(db *sql.DB) *Table[models.ModuleNote] {
	return (&Table[models.ModuleNote]{
		DB:        db,
		Name:      "module_notes",
		KeyColumn: "module_id",
		Columns:   []string{"body"},
		Fields:    func(n *models.ModuleNote) []any { return []any{&n.Body} },
		Key:       func(n *models.ModuleNote) *string { return &n.ModuleID },
		Owner:     func(n *models.ModuleNote) *string { return &n.UserID },
		Updated:   func(n *models.ModuleNote) *time.Time { return &n.UpdatedAt },
	}).Prepare()
}

// NewDiscussionNoteTable stores one note per user and prompt.
func NewDiscussionNoteTable(db *sql.DB) *Table[models.DiscussionNote] {
	return (&Table[models.DiscussionNote]{
		DB:        db,
		Name:      "discussion_notes",
		KeyColumn: "prompt_id",
		Columns:   []string{"body", "discussed"},
		Fields: func(n *models.DiscussionNote) []any {
			return []any{&n.Body, &n.Discussed}
		},
		Key:     func(n *models.DiscussionNote) *string { return &n.PromptID },
		Owner:   func(n *models.DiscussionNote) *string { return &n.UserID },
		Updated: func(n *models.DiscussionNote) *time.Time { return &n.UpdatedAt },
	}).Prepare()
}
