package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/atinyakov/NikahPrep/internal/models"
	"github.com/shopspring/decimal"
)

// ExportHeader is the first row of the finance CSV export.
var ExportHeader = []string{"section", "item", "amount", "detail"}

// ExportCSV writes every finance tracker of the user as CSV rows of
// section, item, amount and detail. Amounts use two decimals without
// thousands separators.
func (s *RecordService) ExportCSV(ctx context.Context, userID string, w io.Writer) error {
	budget, err := s.Budget(ctx, userID)
	if err != nil {
		return err
	}
	mahr, err := s.Mahr(ctx, userID)
	if err != nil {
		return err
	}
	wedding, err := s.Wedding(ctx, userID)
	if err != nil {
		return err
	}
	goals, err := s.Goals(ctx, userID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	row := func(section, item string, amount decimal.Decimal, detail string) {
		_ = cw.Write([]string{section, item, amount.StringFixed(2), detail})
	}

	_ = cw.Write(ExportHeader)
	for _, l := range models.Lines(budget.Budget.Fields()) {
		row("budget", l.Name, l.Amount, "")
	}
	row("budget", "total_income", budget.Summary.TotalIncome, "")
	row("budget", "total_expenses", budget.Summary.TotalExpenses, "")
	row("budget", "surplus", budget.Summary.Surplus, "")

	row("mahr", "amount", mahr.Mahr.Amount, mahr.Mahr.Currency)
	row("mahr", "amount_paid", mahr.Mahr.AmountPaid, string(mahr.Summary.Status))

	row("wedding", "total_budget", wedding.Wedding.TotalBudget, "")
	for _, l := range models.Lines(wedding.Wedding.SpendFields()) {
		row("wedding", l.Name, l.Amount, "")
	}
	row("wedding", "remaining", wedding.Summary.Remaining, "")

	for _, g := range goals.Goals {
		detail := g.Progress.Progress.StringFixed(2) + "%"
		if g.TargetDate != nil {
			detail += " by " + g.TargetDate.Format("2006-01-02")
		}
		row("savings_goal", g.Name, g.Current, detail+" of "+g.Goal.StringFixed(2))
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
