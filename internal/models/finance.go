package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Line is a named amount, used for budget categories and exports.
type Line struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// Budget is the monthly household budget, one row per user.
type Budget struct {
	UserID string `json:"-"`

	IncomePrimary decimal.Decimal `json:"income_primary"`
	IncomeSpouse  decimal.Decimal `json:"income_spouse"`
	IncomeOther   decimal.Decimal `json:"income_other"`

	ExpenseHousing        decimal.Decimal `json:"expense_housing"`
	ExpenseUtilities      decimal.Decimal `json:"expense_utilities"`
	ExpenseGroceries      decimal.Decimal `json:"expense_groceries"`
	ExpenseTransportation decimal.Decimal `json:"expense_transportation"`
	ExpenseInsurance      decimal.Decimal `json:"expense_insurance"`
	ExpenseDebt           decimal.Decimal `json:"expense_debt"`
	ExpenseCharity        decimal.Decimal `json:"expense_charity"`
	ExpenseSavings        decimal.Decimal `json:"expense_savings"`
	ExpensePersonal       decimal.Decimal `json:"expense_personal"`
	ExpenseOther          decimal.Decimal `json:"expense_other"`

	UpdatedAt time.Time `json:"updated_at"`
}

// IncomeFields maps column names to the income amounts of b.
func (b *Budget) IncomeFields() []Field {
	return []Field{
		{"income_primary", &b.IncomePrimary},
		{"income_spouse", &b.IncomeSpouse},
		{"income_other", &b.IncomeOther},
	}
}

// ExpenseFields maps column names to the expense amounts of b.
func (b *Budget) ExpenseFields() []Field {
	return []Field{
		{"expense_housing", &b.ExpenseHousing},
		{"expense_utilities", &b.ExpenseUtilities},
		{"expense_groceries", &b.ExpenseGroceries},
		{"expense_transportation", &b.ExpenseTransportation},
		{"expense_insurance", &b.ExpenseInsurance},
		{"expense_debt", &b.ExpenseDebt},
		{"expense_charity", &b.ExpenseCharity},
		{"expense_savings", &b.ExpenseSavings},
		{"expense_personal", &b.ExpensePersonal},
		{"expense_other", &b.ExpenseOther},
	}
}

// Fields returns every amount column of b, incomes first.
func (b *Budget) Fields() []Field {
	return append(b.IncomeFields(), b.ExpenseFields()...)
}

// Field binds a column name to an amount inside a record.
type Field struct {
	Name  string
	Value *decimal.Decimal
}

// Lines copies fields into named amounts.
func Lines(fields []Field) []Line {
	lines := make([]Line, 0, len(fields))
	for _, f := range fields {
		lines = append(lines, Line{Name: f.Name, Amount: *f.Value})
	}
	return lines
}

// MahrStatus is the payment state of the mahr.
type MahrStatus string

const (
	MahrPaid    MahrStatus = "Paid"
	MahrPending MahrStatus = "Pending"
	MahrPartial MahrStatus = "Partial"
)

// Mahr tracks the agreed marriage gift and how much of it was paid.
type Mahr struct {
	UserID     string          `json:"-"`
	Amount     decimal.Decimal `json:"amount"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	Currency   string          `json:"currency"`
	Notes      string          `json:"notes"`
	Status     MahrStatus      `json:"status"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// WeddingBudget is the planned wedding spend, one row per user.
type WeddingBudget struct {
	UserID      string          `json:"-"`
	TotalBudget decimal.Decimal `json:"total_budget"`

	Venue       decimal.Decimal `json:"venue"`
	Catering    decimal.Decimal `json:"catering"`
	Attire      decimal.Decimal `json:"attire"`
	Photography decimal.Decimal `json:"photography"`
	Decor       decimal.Decimal `json:"decor"`
	Invitations decimal.Decimal `json:"invitations"`
	Gifts       decimal.Decimal `json:"gifts"`
	Other       decimal.Decimal `json:"other"`

	UpdatedAt time.Time `json:"updated_at"`
}

// SpendFields maps column names to the category spends of w.
func (w *WeddingBudget) SpendFields() []Field {
	return []Field{
		{"venue", &w.Venue},
		{"catering", &w.Catering},
		{"attire", &w.Attire},
		{"photography", &w.Photography},
		{"decor", &w.Decor},
		{"invitations", &w.Invitations},
		{"gifts", &w.Gifts},
		{"other", &w.Other},
	}
}

// SavingsGoal is a named target, unique per user by name.
type SavingsGoal struct {
	UserID     string          `json:"-"`
	Name       string          `json:"name"`
	Goal       decimal.Decimal `json:"goal"`
	Current    decimal.Decimal `json:"current"`
	TargetDate *time.Time      `json:"target_date,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
