// Package client is a typed Go client for the NikahPrep API together with
// a cached store for interactive front-ends.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/atinyakov/NikahPrep/internal/client/storage"
	"github.com/atinyakov/NikahPrep/internal/form"
	"github.com/atinyakov/NikahPrep/internal/models"
	"github.com/atinyakov/NikahPrep/internal/realtime"
	"github.com/atinyakov/NikahPrep/internal/service"
	"go.uber.org/zap"
)

// DefaultTimeout bounds every call except the event stream.
const DefaultTimeout = 15 * time.Second

// ErrNotSignedIn is returned by protected calls when the session holds no
// tokens, or when refreshing them failed.
var ErrNotSignedIn = errors.New("not signed in")

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%d: %s", e.Status, e.Message)
	}
	parts := make([]string, 0, len(e.Fields))
	for k, v := range e.Fields {
		parts = append(parts, k+" "+v)
	}
	return fmt.Sprintf("%d: %s (%s)", e.Status, e.Message, strings.Join(parts, "; "))
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// API calls the server on behalf of the session's user. Access tokens are
// refreshed once on a 401 and the rotated pair is saved to the session.
type API struct {
	BaseURL string
	HTTP    *http.Client
	Session *storage.Session
	Timeout time.Duration
	Log     *zap.Logger
}

// NewAPI returns an API using httpClient, or a default client when nil.
func NewAPI(baseURL string, httpClient *http.Client, sess *storage.Session, log *zap.Logger) *API {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &API{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    httpClient,
		Session: sess,
		Timeout: DefaultTimeout,
		Log:     log,
	}
}

// send performs a request and returns the successful response. in is
// encoded as JSON when non-nil. Protected calls carry the access token.
func (a *API) send(ctx context.Context, method, path string, in any, protected bool) (*http.Response, error) {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	resp, err := a.attempt(ctx, method, path, body, protected)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized && protected {
		resp.Body.Close()
		if err := a.refresh(ctx); err != nil {
			return nil, err
		}
		if resp, err = a.attempt(ctx, method, path, body, protected); err != nil {
			return nil, err
		}
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

func (a *API) attempt(ctx context.Context, method, path string, body []byte, protected bool) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if protected {
		access, _ := a.Session.Tokens()
		if access == "" {
			return nil, ErrNotSignedIn
		}
		req.Header.Set("Authorization", "Bearer "+access)
	}
	resp, err := a.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var body struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		apiErr.Message, apiErr.Fields = body.Error, body.Fields
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// call sends a request with the default timeout and decodes a JSON reply
// into out when out is non-nil.
func (a *API) call(ctx context.Context, method, path string, in, out any, protected bool) error {
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}
	resp, err := a.send(ctx, method, path, in, protected)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (a *API) refresh(ctx context.Context) error {
	_, refreshToken := a.Session.Tokens()
	if refreshToken == "" {
		return ErrNotSignedIn
	}
	var sess models.Session
	err := a.call(ctx, http.MethodPost, "/api/auth/refresh", map[string]string{"refresh_token": refreshToken}, &sess, false)
	if err != nil {
		if IsStatus(err, http.StatusUnauthorized) {
			a.Log.Info("session expired")
			if clearErr := a.Session.Clear(); clearErr != nil {
				a.Log.Warn("failed to clear session", zap.Error(clearErr))
			}
			return ErrNotSignedIn
		}
		return err
	}
	return a.store(&sess)
}

func (a *API) store(sess *models.Session) error {
	a.Session.SetTokens(sess.AccessToken, sess.RefreshToken, sess.ExpiresAt)
	if sess.User != nil {
		a.Session.SetUser(sess.User.Email, string(sess.User.Theme))
	}
	return a.Session.Save()
}

// Register creates an account and signs in.
func (a *API) Register(ctx context.Context, email, displayName, password string) (*models.User, error) {
	var sess models.Session
	in := map[string]string{"email": email, "display_name": displayName, "password": password}
	if err := a.call(ctx, http.MethodPost, "/api/auth/register", in, &sess, false); err != nil {
		return nil, err
	}
	return sess.User, a.store(&sess)
}

// Login signs in with email and password.
func (a *API) Login(ctx context.Context, email, password string) (*models.User, error) {
	var sess models.Session
	in := map[string]string{"email": email, "password": password}
	if err := a.call(ctx, http.MethodPost, "/api/auth/login", in, &sess, false); err != nil {
		return nil, err
	}
	return sess.User, a.store(&sess)
}

// Logout revokes the refresh token and clears the session. The session is
// cleared even when the server cannot be reached.
func (a *API) Logout(ctx context.Context) error {
	_, refreshToken := a.Session.Tokens()
	var err error
	if refreshToken != "" {
		err = a.call(ctx, http.MethodPost, "/api/auth/logout", map[string]string{"refresh_token": refreshToken}, nil, false)
	}
	return errors.Join(err, a.Session.Clear())
}

// RequestPasswordReset asks for a reset token to be sent to email.
func (a *API) RequestPasswordReset(ctx context.Context, email string) error {
	return a.call(ctx, http.MethodPost, "/api/auth/password-reset", map[string]string{"email": email}, nil, false)
}

// ResetPassword sets a new password using a reset token.
func (a *API) ResetPassword(ctx context.Context, token, password string) error {
	in := map[string]string{"token": token, "password": password}
	return a.call(ctx, http.MethodPost, "/api/auth/password-reset/confirm", in, nil, false)
}

// Profile returns the signed-in user.
func (a *API) Profile(ctx context.Context) (*models.User, error) {
	var u models.User
	if err := a.call(ctx, http.MethodGet, "/api/me", nil, &u, true); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateProfile changes the fields set in p.
func (a *API) UpdateProfile(ctx context.Context, p service.ProfileUpdate) (*models.User, error) {
	var u models.User
	if err := a.call(ctx, http.MethodPatch, "/api/me", p, &u, true); err != nil {
		return nil, err
	}
	a.Session.SetUser(u.Email, string(u.Theme))
	return &u, a.Session.Save()
}

// Dashboard returns the overview.
func (a *API) Dashboard(ctx context.Context) (service.Dashboard, error) {
	var d service.Dashboard
	if err := a.call(ctx, http.MethodGet, "/api/dashboard", nil, &d, true); err != nil {
		return d, err
	}
	return d, nil
}

// Budget returns the monthly budget.
func (a *API) Budget(ctx context.Context) (service.BudgetView, error) {
	var v service.BudgetView
	if err := a.call(ctx, http.MethodGet, "/api/budget", nil, &v, true); err != nil {
		return v, err
	}
	return v, nil
}

// SaveBudget saves raw budget input keyed by field name.
func (a *API) SaveBudget(ctx context.Context, values form.Values) (service.BudgetView, error) {
	var v service.BudgetView
	if err := a.call(ctx, http.MethodPut, "/api/budget", values, &v, true); err != nil {
		return v, err
	}
	return v, nil
}

// Mahr returns the mahr tracker.
func (a *API) Mahr(ctx context.Context) (service.MahrView, error) {
	var v service.MahrView
	if err := a.call(ctx, http.MethodGet, "/api/mahr", nil, &v, true); err != nil {
		return v, err
	}
	return v, nil
}

// SaveMahr saves raw mahr input.
func (a *API) SaveMahr(ctx context.Context, values form.Values) (service.MahrView, error) {
	var v service.MahrView
	if err := a.call(ctx, http.MethodPut, "/api/mahr", values, &v, true); err != nil {
		return v, err
	}
	return v, nil
}

// Wedding returns the wedding budget.
func (a *API) Wedding(ctx context.Context) (service.WeddingView, error) {
	var v service.WeddingView
	if err := a.call(ctx, http.MethodGet, "/api/wedding-budget", nil, &v, true); err != nil {
		return v, err
	}
	return v, nil
}

// SaveWedding saves raw wedding budget input.
func (a *API) SaveWedding(ctx context.Context, values form.Values) (service.WeddingView, error) {
	var v service.WeddingView
	if err := a.call(ctx, http.MethodPut, "/api/wedding-budget", values, &v, true); err != nil {
		return v, err
	}
	return v, nil
}

// Goals lists the savings goals.
func (a *API) Goals(ctx context.Context) (service.GoalsView, error) {
	var v service.GoalsView
	if err := a.call(ctx, http.MethodGet, "/api/savings-goals", nil, &v, true); err != nil {
		return v, err
	}
	return v, nil
}

// SaveGoal creates or updates the goal called name.
func (a *API) SaveGoal(ctx context.Context, name string, values form.Values) (service.GoalView, error) {
	var v service.GoalView
	if err := a.call(ctx, http.MethodPut, "/api/savings-goals/"+url.PathEscape(name), values, &v, true); err != nil {
		return v, err
	}
	return v, nil
}

// DeleteGoal removes the goal called name.
func (a *API) DeleteGoal(ctx context.Context, name string) error {
	return a.call(ctx, http.MethodDelete, "/api/savings-goals/"+url.PathEscape(name), nil, nil, true)
}

// ExportCSV writes the finance export to w.
func (a *API) ExportCSV(ctx context.Context, w io.Writer) error {
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}
	resp, err := a.send(ctx, http.MethodGet, "/api/export/finance.csv", nil, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(w, resp.Body)
	return err
}

// Checklist returns the checklist grouped by category.
func (a *API) Checklist(ctx context.Context) (service.ChecklistView, error) {
	var v service.ChecklistView
	if err := a.call(ctx, http.MethodGet, "/api/checklist", nil, &v, true); err != nil {
		return v, err
	}
	return v, nil
}

// SetChecklistItem marks an item completed or not.
func (a *API) SetChecklistItem(ctx context.Context, itemID string, completed bool) (models.ChecklistEntry, error) {
	var v models.ChecklistEntry
	in := map[string]bool{"completed": completed}
	if err := a.call(ctx, http.MethodPut, "/api/checklist/"+url.PathEscape(itemID), in, &v, true); err != nil {
		return v, err
	}
	return v, nil
}

// Modules lists the learning modules with progress.
func (a *API) Modules(ctx context.Context) ([]service.ModuleSummary, error) {
	var v []service.ModuleSummary
	if err := a.call(ctx, http.MethodGet, "/api/modules", nil, &v, true); err != nil {
		return v, err
	}
	return v, nil
}

// Module returns one module with its lessons.
func (a *API) Module(ctx context.Context, slug string) (service.ModuleView, error) {
	var v service.ModuleView
	if err := a.call(ctx, http.MethodGet, "/api/modules/"+url.PathEscape(slug), nil, &v, true); err != nil {
		return v, err
	}
	return v, nil
}

// Note returns the user's note on a module.
func (a *API) Note(ctx context.Context, slug string) (models.ModuleNote, error) {
	var v models.ModuleNote
	if err := a.call(ctx, http.MethodGet, "/api/modules/"+url.PathEscape(slug)+"/notes", nil, &v, true); err != nil {
		return v, err
	}
	return v, nil
}

// SaveNote replaces the user's note on a module.
func (a *API) SaveNote(ctx context.Context, slug, body string) (models.ModuleNote, error) {
	var v models.ModuleNote
	in := map[string]string{"body": body}
	if err := a.call(ctx, http.MethodPut, "/api/modules/"+url.PathEscape(slug)+"/notes", in, &v, true); err != nil {
		return v, err
	}
	return v, nil
}

// Notifications lists recent notifications.
func (a *API) Notifications(ctx context.Context) ([]models.Notification, error) {
	var v []models.Notification
	if err := a.call(ctx, http.MethodGet, "/api/notifications", nil, &v, true); err != nil {
		return v, err
	}
	return v, nil
}

// MarkAllRead marks every notification read and returns how many changed.
func (a *API) MarkAllRead(ctx context.Context) (int64, error) {
	var v struct {
		Updated int64 `json:"updated"`
	}
	if err := a.call(ctx, http.MethodPost, "/api/notifications/read-all", nil, &v, true); err != nil {
		return 0, err
	}
	return v.Updated, nil
}

// Events streams change events to fn until ctx is done or the server ends
// the stream. It returns nil when ctx was cancelled.
func (a *API) Events(ctx context.Context, fn func(realtime.Event)) error {
	resp, err := a.send(ctx, http.MethodGet, "/api/events", nil, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var e realtime.Event
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			a.Log.Warn("skipping malformed event", zap.Error(err))
			continue
		}
		fn(e)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("event stream: %w", err)
	}
	return nil
}
