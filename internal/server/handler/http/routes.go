package http

import (
	"net/http"

	"github.com/atinyakov/NikahPrep/internal/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handlers groups the endpoint handlers mounted by NewRouter.
type Handlers struct {
	Auth      *AuthHandler
	Finance   *FinanceHandler
	Content   *ContentHandler
	Social    *SocialHandler
	Dashboard *DashboardHandler
	Events    *EventsHandler
}

// RouterOptions configures the middleware chain of NewRouter.
type RouterOptions struct {
	// Tokens validates bearer tokens on protected routes.
	Tokens middleware.TokenValidator
	// Metrics records request metrics; Gatherer serves them on /metrics.
	Metrics  *middleware.Metrics
	Gatherer prometheus.Gatherer
	// AllowedOrigins lists the browser origins allowed by CORS. Empty
	// disables CORS headers.
	AllowedOrigins []string
	Log            *zap.Logger
}

// NewRouter constructs and returns an HTTP handler that serves
// the NikahPrep API.
//
// Routes:
//
//	POST   /api/auth/register                 → Auth.Register
//	POST   /api/auth/login                    → Auth.Login
//	POST   /api/auth/refresh                  → Auth.Refresh
//	POST   /api/auth/logout                   → Auth.Logout
//	POST   /api/auth/password-reset           → Auth.RequestPasswordReset
//	POST   /api/auth/password-reset/confirm   → Auth.ResetPassword
//	GET    /api/me, PATCH /api/me, DELETE /api/me
//	GET    /api/dashboard
//	GET    /api/budget, PUT /api/budget
//	GET    /api/mahr, PUT /api/mahr
//	GET    /api/wedding-budget, PUT /api/wedding-budget
//	GET    /api/savings-goals, PUT|DELETE /api/savings-goals/{name}
//	GET    /api/export/finance.csv
//	GET    /api/checklist, PUT /api/checklist/{itemID}
//	GET    /api/modules, GET /api/modules/{slug}
//	GET    /api/modules/{slug}/notes, PUT /api/modules/{slug}/notes
//	PUT    /api/lessons/{id}/complete, DELETE /api/lessons/{id}/complete
//	GET    /api/prompts, PUT /api/prompts/{id}/note
//	GET    /api/resources, PUT|DELETE /api/resources/{id}/favorite
//	GET    /api/couple, DELETE /api/couple
//	POST   /api/couple/invite, POST /api/couple/{id}/accept
//	GET    /api/notifications
//	POST   /api/notifications/{id}/read, POST /api/notifications/read-all
//	GET    /api/events                        → Server-Sent Events
//	GET    /metrics                           → Prometheus metrics
//
// Middleware chain (applied in order):
//  1. RequestID, RealIP and Recoverer from chi
//  2. Metrics and WithRequestLogging
//  3. CORS when origins are configured
//  4. AllowContentType("application/json") on request bodies
//  5. BearerAuth on everything but /api/auth
func NewRouter(h Handlers, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Handler)
	}
	r.Use(middleware.WithRequestLogging(opts.Log))
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Content-Disposition"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		// Only allow request bodies with Content-Type: application/json
		r.Use(chiMiddleware.AllowContentType("application/json"))

		// Public endpoints
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Auth.Register)
			r.Post("/login", h.Auth.Login)
			r.Post("/refresh", h.Auth.Refresh)
			r.Post("/logout", h.Auth.Logout)
			r.Post("/password-reset", h.Auth.RequestPasswordReset)
			r.Post("/password-reset/confirm", h.Auth.ResetPassword)
		})

		// Protected group: requires a valid access token
		r.Group(func(r chi.Router) {
			r.Use(middleware.BearerAuth(opts.Tokens))

			r.Get("/me", h.Auth.Profile)
			r.Patch("/me", h.Auth.UpdateProfile)
			r.Delete("/me", h.Auth.DeleteAccount)

			r.Get("/dashboard", h.Dashboard.Get)
			r.Get("/events", h.Events.Stream)

			r.Get("/budget", h.Finance.GetBudget)
			r.Put("/budget", h.Finance.PutBudget)
			r.Get("/mahr", h.Finance.GetMahr)
			r.Put("/mahr", h.Finance.PutMahr)
			r.Get("/wedding-budget", h.Finance.GetWedding)
			r.Put("/wedding-budget", h.Finance.PutWedding)
			r.Get("/savings-goals", h.Finance.ListGoals)
			r.Put("/savings-goals/{name}", h.Finance.PutGoal)
			r.Delete("/savings-goals/{name}", h.Finance.DeleteGoal)
			r.Get("/export/finance.csv", h.Finance.ExportCSV)

			r.Get("/checklist", h.Content.Checklist)
			r.Put("/checklist/{itemID}", h.Content.SetChecklistItem)
			r.Get("/modules", h.Content.Modules)
			r.Get("/modules/{slug}", h.Content.Module)
			r.Get("/modules/{slug}/notes", h.Content.Note)
			r.Put("/modules/{slug}/notes", h.Content.SaveNote)
			r.Put("/lessons/{id}/complete", h.Content.CompleteLesson)
			r.Delete("/lessons/{id}/complete", h.Content.UncompleteLesson)
			r.Get("/prompts", h.Content.Prompts)
			r.Put("/prompts/{id}/note", h.Content.SavePromptNote)
			r.Get("/resources", h.Content.Resources)
			r.Put("/resources/{id}/favorite", h.Content.AddFavorite)
			r.Delete("/resources/{id}/favorite", h.Content.RemoveFavorite)

			r.Get("/couple", h.Social.Couple)
			r.Delete("/couple", h.Social.Leave)
			r.Post("/couple/invite", h.Social.Invite)
			r.Post("/couple/{id}/accept", h.Social.Accept)
			r.Get("/notifications", h.Social.ListNotifications)
			r.Post("/notifications/read-all", h.Social.MarkAllRead)
			r.Post("/notifications/{id}/read", h.Social.MarkRead)
		})
	})

	return r
}
