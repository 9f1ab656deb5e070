// Package finance derives summaries from the finance trackers. Everything
// here is pure arithmetic over decimal amounts.
package finance

import (
	"github.com/atinyakov/NikahPrep/internal/models"
	"github.com/atinyakov/NikahPrep/internal/money"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CategoryShare is an expense category and its share of total expenses.
type CategoryShare struct {
	Name    string          `json:"name"`
	Amount  decimal.Decimal `json:"amount"`
	Percent decimal.Decimal `json:"percent"`
}

// Budget summarizes a monthly budget.
type Budget struct {
	TotalIncome   decimal.Decimal `json:"total_income"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	Surplus       decimal.Decimal `json:"surplus"`
	SavingsRate   decimal.Decimal `json:"savings_rate"`
	Categories    []CategoryShare `json:"categories"`
}

// SummarizeBudget totals incomes and expenses of b. Surplus is negative when
// expenses exceed income.
func SummarizeBudget(b models.Budget) Budget {
	var s Budget
	for _, f := range b.IncomeFields() {
		s.TotalIncome = s.TotalIncome.Add(*f.Value)
	}
	expenses := b.ExpenseFields()
	for _, f := range expenses {
		s.TotalExpenses = s.TotalExpenses.Add(*f.Value)
	}
	s.Surplus = s.TotalIncome.Sub(s.TotalExpenses)
	s.SavingsRate = money.Percent(s.Surplus, s.TotalIncome)

	s.Categories = make([]CategoryShare, 0, len(expenses))
	for _, f := range expenses {
		s.Categories = append(s.Categories, CategoryShare{
			Name:    f.Name,
			Amount:  *f.Value,
			Percent: money.Percent(*f.Value, s.TotalExpenses),
		})
	}
	return s
}

// MahrStatus derives the payment status from the agreed and paid amounts.
func MahrStatus(amount, paid decimal.Decimal) models.MahrStatus {
	switch {
	case !paid.IsPositive():
		return models.MahrPending
	case amount.IsPositive() && paid.GreaterThanOrEqual(amount):
		return models.MahrPaid
	default:
		return models.MahrPartial
	}
}

// Mahr summarizes mahr payment progress.
type Mahr struct {
	Status    models.MahrStatus `json:"status"`
	Remaining decimal.Decimal   `json:"remaining"`
	Progress  decimal.Decimal   `json:"progress"`
}

// SummarizeMahr reports status, remaining amount and percent paid.
func SummarizeMahr(m models.Mahr) Mahr {
	remaining := m.Amount.Sub(m.AmountPaid)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return Mahr{
		Status:    MahrStatus(m.Amount, m.AmountPaid),
		Remaining: remaining,
		Progress:  capped(money.Percent(m.AmountPaid, m.Amount)),
	}
}

// Savings is the progress of one savings goal.
type Savings struct {
	Progress   decimal.Decimal `json:"progress"`
	Remaining  decimal.Decimal `json:"remaining"`
	IsComplete bool            `json:"is_complete"`
}

// SavingsProgress reports how far current is towards goal. The goal is
// complete once current reaches it; progress never exceeds 100.
func SavingsProgress(goal, current decimal.Decimal) Savings {
	remaining := goal.Sub(current)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return Savings{
		Progress:   capped(money.Percent(current, goal)),
		Remaining:  remaining,
		IsComplete: goal.IsPositive() && current.GreaterThanOrEqual(goal),
	}
}

// SavingsOverview aggregates all goals of a user.
type SavingsOverview struct {
	TotalGoal     decimal.Decimal `json:"total_goal"`
	TotalCurrent  decimal.Decimal `json:"total_current"`
	Progress      decimal.Decimal `json:"progress"`
	GoalsTotal    int             `json:"goals_total"`
	GoalsComplete int             `json:"goals_complete"`
}

// SummarizeSavings totals goals. Progress is weighted by goal size.
func SummarizeSavings(goals []models.SavingsGoal) SavingsOverview {
	o := SavingsOverview{GoalsTotal: len(goals)}
	for _, g := range goals {
		o.TotalGoal = o.TotalGoal.Add(g.Goal)
		// Overshooting one goal does not count toward another.
		o.TotalCurrent = o.TotalCurrent.Add(decimal.Min(g.Current, g.Goal))
		if SavingsProgress(g.Goal, g.Current).IsComplete {
			o.GoalsComplete++
		}
	}
	o.Progress = capped(money.Percent(o.TotalCurrent, o.TotalGoal))
	return o
}

// Wedding summarizes wedding spend against the planned total.
type Wedding struct {
	Spent       decimal.Decimal `json:"spent"`
	Remaining   decimal.Decimal `json:"remaining"`
	PercentUsed decimal.Decimal `json:"percent_used"`
	OverBudget  bool            `json:"over_budget"`
}

// SummarizeWedding totals category spends of w.
func SummarizeWedding(w models.WeddingBudget) Wedding {
	var spent decimal.Decimal
	for _, f := range w.SpendFields() {
		spent = spent.Add(*f.Value)
	}
	return Wedding{
		Spent:       spent,
		Remaining:   w.TotalBudget.Sub(spent),
		PercentUsed: money.Percent(spent, w.TotalBudget),
		OverBudget:  spent.GreaterThan(w.TotalBudget),
	}
}

// Ratio returns done/total as a percentage rounded to two places.
func Ratio(done, total int) decimal.Decimal {
	return money.Percent(decimal.NewFromInt(int64(done)), decimal.NewFromInt(int64(total)))
}

func capped(p decimal.Decimal) decimal.Decimal {
	if p.GreaterThan(hundred) {
		return hundred
	}
	return p
}
