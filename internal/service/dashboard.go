package service

import (
	"context"
	"time"

	"github.com/atinyakov/NikahPrep/internal/finance"
	"github.com/atinyakov/NikahPrep/internal/models"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Dashboard is the landing page overview of a user.
type Dashboard struct {
	Checklist        Progress                `json:"checklist"`
	Modules          Progress                `json:"modules"`
	Discussion       Progress                `json:"discussion"`
	BudgetSurplus    decimal.Decimal         `json:"budget_surplus"`
	Mahr             finance.Mahr            `json:"mahr"`
	Savings          finance.SavingsOverview `json:"savings"`
	WeddingRemaining decimal.Decimal         `json:"wedding_remaining"`
	Unread           int                     `json:"unread_notifications"`
	DaysUntilWedding *int                    `json:"days_until_wedding,omitempty"`
}

// DashboardService assembles the dashboard from the other services.
type DashboardService struct {
	Auth          *AuthService
	Records       *RecordService
	Catalog       *CatalogService
	Notifications *NotificationService

	now func() time.Time
}

// NewDashboardService constructs a DashboardService.
func NewDashboardService(a *AuthService, r *RecordService, c *CatalogService, n *NotificationService) *DashboardService {
	return &DashboardService{Auth: a, Records: r, Catalog: c, Notifications: n, now: time.Now}
}

// Get builds the dashboard of the user. The parts are loaded concurrently
// and the first failure is returned.
func (s *DashboardService) Get(ctx context.Context, userID string) (Dashboard, error) {
	var (
		d       Dashboard
		user    *models.User
		modules []ModuleSummary
	)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		user, err = s.Auth.Profile(ctx, userID)
		return err
	})
	g.Go(func() error {
		v, err := s.Catalog.Checklist(ctx, userID)
		d.Checklist = v.Progress
		return err
	})
	g.Go(func() (err error) {
		modules, err = s.Catalog.Modules(ctx, userID)
		return err
	})
	g.Go(func() error {
		v, err := s.Catalog.Prompts(ctx, userID)
		d.Discussion = v.Progress
		return err
	})
	g.Go(func() error {
		v, err := s.Records.Budget(ctx, userID)
		d.BudgetSurplus = v.Summary.Surplus
		return err
	})
	g.Go(func() error {
		v, err := s.Records.Mahr(ctx, userID)
		d.Mahr = v.Summary
		return err
	})
	g.Go(func() error {
		v, err := s.Records.Goals(ctx, userID)
		d.Savings = v.Overview
		return err
	})
	g.Go(func() error {
		v, err := s.Records.Wedding(ctx, userID)
		d.WeddingRemaining = v.Summary.Remaining
		return err
	})
	g.Go(func() (err error) {
		d.Unread, err = s.Notifications.Unread(ctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}

	done, total := 0, 0
	for _, m := range modules {
		done += m.Progress.Done
		total += m.Progress.Total
	}
	d.Modules = newProgress(done, total)
	d.DaysUntilWedding = daysUntil(user.WeddingDate, s.now())
	return d, nil
}

// daysUntil counts calendar days from now to date. Past dates give
// negative numbers.
func daysUntil(date *time.Time, now time.Time) *int {
	if date == nil {
		return nil
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	n := int(day.Sub(today).Hours() / 24)
	return &n
}
