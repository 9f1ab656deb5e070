package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atinyakov/NikahPrep/internal/auth"
	"github.com/atinyakov/NikahPrep/internal/form"
	"github.com/atinyakov/NikahPrep/internal/middleware"
	"github.com/atinyakov/NikahPrep/internal/models"
	"github.com/atinyakov/NikahPrep/internal/realtime"
	"github.com/atinyakov/NikahPrep/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAuth struct {
	lastEmail string
	err       error
}

func (f *fakeAuth) Register(_ context.Context, email, name, _ string) (*models.Session, error) {
	f.lastEmail = email
	if f.err != nil {
		return nil, f.err
	}
	return &models.Session{AccessToken: "a", RefreshToken: "r", User: &models.User{ID: "u1", Email: email, DisplayName: name}}, nil
}

func (f *fakeAuth) Login(_ context.Context, email, password string) (*models.Session, error) {
	if password != "password1" {
		return nil, auth.ErrInvalidCredentials
	}
	return &models.Session{AccessToken: "a", RefreshToken: "r", User: &models.User{ID: "u1", Email: email}}, nil
}

func (f *fakeAuth) Refresh(context.Context, string) (*models.Session, error) {
	return nil, auth.ErrInvalidToken
}

func (f *fakeAuth) Logout(context.Context, string) error { return nil }

func (f *fakeAuth) RequestPasswordReset(_ context.Context, email string) error {
	f.lastEmail = email
	return nil
}

func (f *fakeAuth) ResetPassword(context.Context, string, string) error { return nil }

func (f *fakeAuth) Profile(_ context.Context, userID string) (*models.User, error) {
	return &models.User{ID: userID, Email: "alice@example.com", Theme: models.ThemeDark}, nil
}

func (f *fakeAuth) UpdateProfile(_ context.Context, userID string, p service.ProfileUpdate) (*models.User, error) {
	if p.Theme != nil && !models.Theme(*p.Theme).Valid() {
		return nil, form.FieldErrors{"theme": "must be light, dark or system"}
	}
	return &models.User{ID: userID, Theme: models.Theme(*p.Theme)}, nil
}

func (f *fakeAuth) DeleteAccount(context.Context, string) error { return nil }

type fakeRecords struct {
	userID string
	values form.Values
	goal   string
}

func (f *fakeRecords) Budget(_ context.Context, userID string) (service.BudgetView, error) {
	f.userID = userID
	return service.BudgetView{Budget: models.Budget{IncomePrimary: decimal.RequireFromString("1234.5")}}, nil
}

func (f *fakeRecords) SaveBudget(_ context.Context, userID string, values form.Values) (service.BudgetView, error) {
	f.userID, f.values = userID, values
	if values["income_primary"] == "lots" {
		return service.BudgetView{}, form.FieldErrors{"income_primary": "must be a number"}
	}
	return service.BudgetView{}, nil
}

func (f *fakeRecords) Mahr(context.Context, string) (service.MahrView, error) {
	return service.MahrView{}, errors.New("db down")
}

func (f *fakeRecords) SaveMahr(context.Context, string, form.Values) (service.MahrView, error) {
	return service.MahrView{}, nil
}

func (f *fakeRecords) Wedding(context.Context, string) (service.WeddingView, error) {
	return service.WeddingView{}, nil
}

func (f *fakeRecords) SaveWedding(context.Context, string, form.Values) (service.WeddingView, error) {
	return service.WeddingView{}, nil
}

func (f *fakeRecords) Goals(context.Context, string) (service.GoalsView, error) {
	return service.GoalsView{Goals: []service.GoalView{}}, nil
}

func (f *fakeRecords) SaveGoal(_ context.Context, _, name string, values form.Values) (service.GoalView, error) {
	f.goal, f.values = name, values
	return service.GoalView{SavingsGoal: models.SavingsGoal{Name: name}}, nil
}

func (f *fakeRecords) DeleteGoal(_ context.Context, _, name string) error {
	if name != "House" {
		return service.ErrNotFound
	}
	return nil
}

func (f *fakeRecords) ExportCSV(_ context.Context, _ string, w io.Writer) error {
	_, err := io.WriteString(w, "section,item,amount,detail\n")
	return err
}

type fakeCatalog struct {
	completed *bool
	note      service.DiscussionForm
	favorite  *bool
}

func (f *fakeCatalog) Checklist(context.Context, string) (service.ChecklistView, error) {
	return service.ChecklistView{Categories: []service.ChecklistGroup{}}, nil
}

func (f *fakeCatalog) SetChecklistItem(_ context.Context, _, itemID string, completed bool) (models.ChecklistEntry, error) {
	f.completed = &completed
	return models.ChecklistEntry{ChecklistItem: models.ChecklistItem{ID: itemID}, Completed: completed}, nil
}

func (f *fakeCatalog) Modules(context.Context, string) ([]service.ModuleSummary, error) {
	return []service.ModuleSummary{}, nil
}

func (f *fakeCatalog) Module(_ context.Context, _, slug string) (service.ModuleView, error) {
	if slug != "foundations" {
		return service.ModuleView{}, service.ErrNotFound
	}
	return service.ModuleView{}, nil
}

func (f *fakeCatalog) CompleteLesson(context.Context, string, string) (time.Time, error) {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), nil
}

func (f *fakeCatalog) UncompleteLesson(context.Context, string, string) error { return nil }

func (f *fakeCatalog) Note(context.Context, string, string) (models.ModuleNote, error) {
	return models.ModuleNote{}, nil
}

func (f *fakeCatalog) SaveNote(_ context.Context, _, _, body string) (models.ModuleNote, error) {
	return models.ModuleNote{Body: body}, nil
}

func (f *fakeCatalog) Prompts(context.Context, string) (service.PromptsView, error) {
	return service.PromptsView{}, nil
}

func (f *fakeCatalog) SavePromptNote(_ context.Context, _ string, fm service.DiscussionForm) (models.DiscussionNote, error) {
	f.note = fm
	return models.DiscussionNote{PromptID: fm.PromptID}, nil
}

func (f *fakeCatalog) Resources(context.Context, string, string) ([]models.Resource, error) {
	return []models.Resource{}, nil
}

func (f *fakeCatalog) SetFavorite(_ context.Context, _, _ string, favorite bool) error {
	f.favorite = &favorite
	return nil
}

type fakeCouples struct{}

func (fakeCouples) Invite(_ context.Context, userID, email string) (*models.Couple, error) {
	if email == "alice@example.com" {
		return nil, form.FieldErrors{"email": "cannot invite yourself"}
	}
	return &models.Couple{ID: "c1", InviterID: userID, InviteeEmail: email, Status: models.CouplePending}, nil
}

func (fakeCouples) Accept(context.Context, string, string) (*models.Couple, error) {
	return nil, service.ErrForbidden
}

func (fakeCouples) Get(context.Context, string) (service.CoupleView, error) {
	return service.CoupleView{Invites: []models.Couple{}}, nil
}

func (fakeCouples) Leave(context.Context, string) error { return service.ErrNotFound }

type fakeNotifications struct{}

func (fakeNotifications) List(context.Context, string) ([]models.Notification, error) {
	return []models.Notification{{ID: "n1"}}, nil
}

func (fakeNotifications) MarkRead(context.Context, string, string) error { return nil }

func (fakeNotifications) MarkAllRead(context.Context, string) (int64, error) { return 3, nil }

type fakeDashboard struct{}

func (fakeDashboard) Get(context.Context, string) (service.Dashboard, error) {
	return service.Dashboard{Unread: 2}, nil
}

type tokens map[string]string

func (t tokens) Validate(token string) (*auth.Claims, error) {
	id, ok := t[token]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return &auth.Claims{UserID: id, Email: id + "@example.com"}, nil
}

type testServer struct {
	handler http.Handler
	auth    *fakeAuth
	records *fakeRecords
	catalog *fakeCatalog
	broker  *realtime.Broker
}

func newTestServer() *testServer {
	log := zap.NewNop()
	reg := prometheus.NewRegistry()
	ts := &testServer{
		auth:    &fakeAuth{},
		records: &fakeRecords{},
		catalog: &fakeCatalog{},
		broker:  realtime.NewBroker(8, log),
	}
	ts.handler = NewRouter(Handlers{
		Auth:      &AuthHandler{AuthService: ts.auth, Log: log},
		Finance:   &FinanceHandler{Records: ts.records, Log: log},
		Content:   &ContentHandler{Catalog: ts.catalog, Log: log},
		Social:    &SocialHandler{Couples: fakeCouples{}, Notifications: fakeNotifications{}, Log: log},
		Dashboard: &DashboardHandler{Dashboard: fakeDashboard{}, Log: log},
		Events:    &EventsHandler{Broker: ts.broker, Heartbeat: time.Hour, Log: log},
	}, RouterOptions{
		Tokens:         tokens{"good": "alice"},
		Metrics:        middleware.NewMetrics(reg),
		Gatherer:       reg,
		AllowedOrigins: []string{"https://app.example.com"},
		Log:            log,
	})
	return ts
}

func (ts *testServer) do(method, target, body string, authed bool) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer good")
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func TestRoutes_StatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		target   string
		body     string
		authed   bool
		wantCode int
	}{
		{"register", "POST", "/api/auth/register", `{"email":"a@example.com","display_name":"A","password":"password1"}`, false, http.StatusCreated},
		{"register bad json", "POST", "/api/auth/register", `{`, false, http.StatusBadRequest},
		{"register unknown field", "POST", "/api/auth/register", `{"login":"a"}`, false, http.StatusBadRequest},
		{"login ok", "POST", "/api/auth/login", `{"email":"a@example.com","password":"password1"}`, false, http.StatusOK},
		{"login wrong password", "POST", "/api/auth/login", `{"email":"a@example.com","password":"nope"}`, false, http.StatusUnauthorized},
		{"refresh invalid", "POST", "/api/auth/refresh", `{"refresh_token":"old"}`, false, http.StatusUnauthorized},
		{"logout", "POST", "/api/auth/logout", `{"refresh_token":"r"}`, false, http.StatusNoContent},
		{"reset request", "POST", "/api/auth/password-reset", `{"email":"a@example.com"}`, false, http.StatusAccepted},
		{"reset confirm", "POST", "/api/auth/password-reset/confirm", `{"token":"t","password":"password1"}`, false, http.StatusNoContent},
		{"budget needs auth", "GET", "/api/budget", "", false, http.StatusUnauthorized},
		{"budget", "GET", "/api/budget", "", true, http.StatusOK},
		{"mahr store failure", "GET", "/api/mahr", "", true, http.StatusInternalServerError},
		{"wedding", "PUT", "/api/wedding-budget", `{"venue":"100"}`, true, http.StatusOK},
		{"goals", "GET", "/api/savings-goals", "", true, http.StatusOK},
		{"delete goal", "DELETE", "/api/savings-goals/House", "", true, http.StatusNoContent},
		{"delete missing goal", "DELETE", "/api/savings-goals/Boat", "", true, http.StatusNotFound},
		{"module", "GET", "/api/modules/foundations", "", true, http.StatusOK},
		{"missing module", "GET", "/api/modules/nope", "", true, http.StatusNotFound},
		{"checklist needs completed", "PUT", "/api/checklist/c1", `{}`, true, http.StatusBadRequest},
		{"complete lesson", "PUT", "/api/lessons/l1/complete", "", true, http.StatusOK},
		{"uncomplete lesson", "DELETE", "/api/lessons/l1/complete", "", true, http.StatusNoContent},
		{"prompt note needs a field", "PUT", "/api/prompts/p1/note", `{}`, true, http.StatusBadRequest},
		{"invite self", "POST", "/api/couple/invite", `{"email":"alice@example.com"}`, true, http.StatusUnprocessableEntity},
		{"invite", "POST", "/api/couple/invite", `{"email":"b@example.com"}`, true, http.StatusCreated},
		{"accept forbidden", "POST", "/api/couple/c1/accept", "", true, http.StatusForbidden},
		{"leave without couple", "DELETE", "/api/couple", "", true, http.StatusNotFound},
		{"notifications", "GET", "/api/notifications", "", true, http.StatusOK},
		{"mark read", "POST", "/api/notifications/n1/read", "", true, http.StatusNoContent},
		{"dashboard", "GET", "/api/dashboard", "", true, http.StatusOK},
		{"profile", "GET", "/api/me", "", true, http.StatusOK},
		{"delete account", "DELETE", "/api/me", "", true, http.StatusNoContent},
		{"metrics", "GET", "/metrics", "", false, http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer()
			rec := ts.do(tc.method, tc.target, tc.body, tc.authed)
			assert.Equal(t, tc.wantCode, rec.Code, rec.Body.String())
		})
	}
}

func TestRoutes_RejectsNonJSONBody(t *testing.T) {
	ts := newTestServer()
	req := httptest.NewRequest("PUT", "/api/budget", strings.NewReader("income_primary=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestPutBudget_ValuesAndValidation(t *testing.T) {
	ts := newTestServer()

	rec := ts.do("PUT", "/api/budget", `{"income_primary":"1,234.5","income_spouse":800,"income_other":null}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", ts.records.userID)
	assert.Equal(t, form.Values{"income_primary": "1,234.5", "income_spouse": "800", "income_other": ""}, ts.records.values)

	rec = ts.do("PUT", "/api/budget", `{"income_primary":"lots"}`, true)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "validation failed", body.Error)
	assert.Equal(t, "must be a number", body.Fields["income_primary"])

	rec = ts.do("PUT", "/api/budget", `{"income_primary":{"x":1}}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBudget_AmountsAreStrings(t *testing.T) {
	ts := newTestServer()

	rec := ts.do("GET", "/api/budget", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"income_primary":"1234.5"`)
}

func TestPutGoal_UsesPathName(t *testing.T) {
	ts := newTestServer()

	rec := ts.do("PUT", "/api/savings-goals/Umrah%20trip", `{"goal":"3000"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Umrah trip", ts.records.goal)
}

func TestExportCSV(t *testing.T) {
	ts := newTestServer()

	rec := ts.do("GET", "/api/export/finance.csv", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "finance.csv")
	assert.Equal(t, "section,item,amount,detail\n", rec.Body.String())
}

func TestContentMutations(t *testing.T) {
	ts := newTestServer()

	rec := ts.do("PUT", "/api/checklist/c1", `{"completed":false}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, ts.catalog.completed)
	assert.False(t, *ts.catalog.completed)

	rec = ts.do("PUT", "/api/prompts/p1/note", `{"discussed":true}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "p1", ts.catalog.note.PromptID)
	assert.Nil(t, ts.catalog.note.Body)
	require.NotNil(t, ts.catalog.note.Discussed)

	rec = ts.do("DELETE", "/api/resources/r1/favorite", "", true)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, ts.catalog.favorite)
	assert.False(t, *ts.catalog.favorite)
}

func TestUpdateProfile_InvalidTheme(t *testing.T) {
	ts := newTestServer()

	rec := ts.do("PATCH", "/api/me", `{"theme":"neon"}`, true)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"theme"`)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer()
	req := httptest.NewRequest("OPTIONS", "/api/budget", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "PUT")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestEventsStream(t *testing.T) {
	ts := newTestServer()
	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", srv.URL+"/api/events?access_token=good", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)

	require.Eventually(t, func() bool { return ts.broker.Subscribers("alice") == 1 }, time.Second, 10*time.Millisecond)
	ts.broker.Dispatch(realtime.Event{Table: "budgets", UserID: "bob", Op: realtime.OpUpsert})
	ts.broker.Dispatch(realtime.Event{Table: "budgets", UserID: "alice", Op: realtime.OpUpsert})

	var got []string
	for len(got) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line = strings.TrimSpace(line); line != "" {
			got = append(got, line)
		}
	}
	assert.Equal(t, "event: upsert", got[0])
	assert.True(t, strings.HasPrefix(got[1], "data: "), got[1])

	var e realtime.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(got[1], "data: ")), &e))
	assert.Equal(t, "alice", e.UserID)
	assert.Equal(t, "budgets", e.Table)

	cancel()
	require.Eventually(t, func() bool { return ts.broker.Subscribers("alice") == 0 }, time.Second, 10*time.Millisecond)
}
