package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atinyakov/NikahPrep/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// dummyHandler is a placeholder that records if it was called and the context it received.
type dummyHandler struct {
	called bool
	ctx    context.Context
}

func (d *dummyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.called = true
	d.ctx = r.Context()
	w.WriteHeader(http.StatusOK)
}

type fakeValidator map[string]*auth.Claims

func (f fakeValidator) Validate(token string) (*auth.Claims, error) {
	c, ok := f[token]
	if !ok {
		return nil, errors.New("bad token")
	}
	return c, nil
}

var validator = fakeValidator{"good": {UserID: "alice", Email: "alice@example.com"}}

func TestBearerAuth(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		header     string
		wantCalled bool
		wantCode   int
	}{
		{"no token", http.MethodGet, "/api/budget", "", false, http.StatusUnauthorized},
		{"wrong scheme", http.MethodGet, "/api/budget", "Basic good", false, http.StatusUnauthorized},
		{"invalid token", http.MethodGet, "/api/budget", "Bearer nope", false, http.StatusUnauthorized},
		{"valid header", http.MethodPut, "/api/budget", "Bearer good", true, http.StatusOK},
		{"lower-case scheme", http.MethodGet, "/api/budget", "bearer good", true, http.StatusOK},
		{"query token on GET", http.MethodGet, "/api/events?access_token=good", "", true, http.StatusOK},
		{"query token on POST", http.MethodPost, "/api/events?access_token=good", "", false, http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dummy := &dummyHandler{}
			h := BearerAuth(validator)(dummy)
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(tc.method, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			h.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantCalled, dummy.called)
			assert.Equal(t, tc.wantCode, rec.Code)
			if tc.wantCalled {
				assert.Equal(t, "alice", GetUserIDFromContext(dummy.ctx))
				assert.Equal(t, "alice@example.com", GetEmailFromContext(dummy.ctx))
			}
		})
	}
}

func TestGetUserIDFromContext(t *testing.T) {
	// no value
	empty := GetUserIDFromContext(context.Background())
	if empty != "" {
		t.Errorf("expected empty string for missing user, got '%s'", empty)
	}
	// with value
	val := GetUserIDFromContext(WithUserID(context.Background(), "bob"))
	if val != "bob" {
		t.Errorf("expected 'bob', got '%s'", val)
	}
}

func TestWithRequestLogging(t *testing.T) {
	var buf bytes.Buffer
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(&buf),
		zapcore.DebugLevel,
	)
	log := zap.New(core)

	h := WithRequestLogging(log)(BearerAuth(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/budget", nil)
	req.Header.Set("Authorization", "Bearer good")
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	assert.Contains(t, out, `"path":"/api/budget"`)
	assert.Contains(t, out, `"status":418`)
	assert.Contains(t, out, `"bytes":15`)
	assert.Contains(t, out, `"user":"alice"`)
	assert.Contains(t, out, `"level":"warn"`)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	r := chi.NewRouter()
	r.Use(m.Handler)
	r.Get("/api/modules/{slug}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, slug := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/modules/"+slug, nil))
	}

	count := testutil.ToFloat64(m.requests.WithLabelValues("/api/modules/{slug}", http.MethodGet, "404"))
	assert.Equal(t, float64(2), count)

	n, err := testutil.GatherAndCount(reg, "nikahprep_http_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
