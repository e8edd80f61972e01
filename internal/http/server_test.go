package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finassist/internal/core"
	"finassist/internal/detector"
	"finassist/internal/services"
	"finassist/internal/store/memory"
	"finassist/internal/telemetry"
)

func history(userID, categoryID string, amounts ...float64) []core.Transaction {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	txs := make([]core.Transaction, len(amounts))
	for i, a := range amounts {
		txs[i] = core.Transaction{
			ID:           fmt.Sprintf("%s-%02d", categoryID, i),
			UserID:       userID,
			CategoryID:   categoryID,
			CategoryName: categoryID,
			Type:         core.Expense,
			Amount:       core.Amount(fmt.Sprintf("%.2f", a)),
			Date:         base.AddDate(0, 0, i).Format("2006-01-02"),
		}
	}
	return txs
}

func newTestServer(t *testing.T, txs []core.Transaction, opts ...Option) *Server {
	t.Helper()
	store := memory.New(txs...)
	svc := services.NewAnomalyService(store, services.WithDetectors(detector.NewWindowDetector()))
	s := NewServer(":0", svc, opts...)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func TestCategoryAnomalies(t *testing.T) {
	s := newTestServer(t, history("u1", "food", 50, 52, 49, 51, 53, 500))

	rec := do(t, s, http.MethodGet, "/users/u1/categories/food/anomalies", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var got core.CategoryResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "food", got.CategoryID)
	require.Len(t, got.Anomalies, 1)
	assert.Equal(t, "food-05", got.Anomalies[0].ID)
	assert.Contains(t, got.Anomalies[0].Reason, "$500.00")
}

func TestCategoryAnomalies_InsufficientData(t *testing.T) {
	s := newTestServer(t, history("u1", "food", 50, 52))

	rec := do(t, s, http.MethodGet, "/users/u1/categories/food/anomalies", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got core.CategoryResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Empty(t, got.Anomalies)
	assert.Equal(t, core.InsufficientDataMessage, got.Message)
}

func TestUserAnomalies(t *testing.T) {
	txs := append(history("u1", "food", 50, 52, 49, 51, 53, 500),
		history("u1", "rent", 1000, 1000, 1000, 1000, 1000, 1000)...)
	s := newTestServer(t, txs)

	rec := do(t, s, http.MethodGet, "/users/u1/anomalies", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got userAnomaliesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "u1", got.UserID)
	require.Len(t, got.Anomalies, 1)
	assert.Equal(t, "food-05", got.Anomalies[0].ID)
}

func TestUserAnomalies_UnknownUserIsEmptyList(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/users/nobody/anomalies", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"userId":"nobody","anomalies":[]}`, rec.Body.String())
}

func TestCheckTransaction(t *testing.T) {
	s := newTestServer(t, history("u1", "food", 50, 52, 49, 51, 53))

	tests := []struct {
		name        string
		body        string
		wantStatus  int
		wantNull    bool
		wantAnomaly bool
	}{
		{
			name:        "flags large amount",
			body:        `{"id":"new","categoryId":"food","type":"expense","amount":500,"date":"2025-02-01"}`,
			wantStatus:  http.StatusOK,
			wantAnomaly: true,
		},
		{
			name:       "typical amount",
			body:       `{"id":"new","categoryId":"food","type":"expense","amount":"51.00","date":"2025-02-01"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "unknown category has no determination",
			body:       `{"id":"new","categoryId":"travel","type":"expense","amount":500,"date":"2025-02-01"}`,
			wantStatus: http.StatusOK,
			wantNull:   true,
		},
		{
			name:       "missing category",
			body:       `{"id":"new","type":"expense","amount":500}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed json",
			body:       `{"id":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "two objects",
			body:       `{"categoryId":"food"}{"categoryId":"food"}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/users/u1/transactions/check", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				var e errorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
				assert.NotEmpty(t, e.Error)
				return
			}

			var got checkResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			if tt.wantNull {
				assert.Nil(t, got.Determination)
				assert.JSONEq(t, `{"determination":null}`, rec.Body.String())
				return
			}
			require.NotNil(t, got.Determination)
			assert.Equal(t, tt.wantAnomaly, got.Determination.IsAnomaly)
			assert.Equal(t, "u1", got.Determination.UserID)
		})
	}
}

func TestCheckTransaction_EmptyBody(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/users/u1/transactions/check", http.NoBody)
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "empty")
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/users/u1/transactions/check", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

type stubService struct {
	err error
}

func (s stubService) DetectAnomaliesForCategory(context.Context, string, string) (core.CategoryResult, error) {
	return core.CategoryResult{}, s.err
}

func (s stubService) DetectAnomaliesForUser(context.Context, string) ([]core.Anomaly, error) {
	return nil, s.err
}

func (s stubService) CheckTransactionForAnomaly(context.Context, string, core.Transaction) (*core.CheckResult, error) {
	return nil, s.err
}

func TestServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"store failure", errors.New("connection refused"), http.StatusInternalServerError},
		{"timeout", fmt.Errorf("detect: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"empty category", core.ErrEmptyCategory, http.StatusBadRequest},
	}

	paths := []struct {
		method, path, body string
	}{
		{http.MethodGet, "/users/u1/anomalies", ""},
		{http.MethodGet, "/users/u1/categories/food/anomalies", ""},
		{http.MethodPost, "/users/u1/transactions/check", `{"categoryId":"food","amount":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(":0", stubService{err: tt.err})
			t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

			for _, p := range paths {
				rec := do(t, s, p.method, p.path, p.body)
				assert.Equal(t, tt.wantStatus, rec.Code, p.path)
				assert.NotContains(t, rec.Body.String(), "connection refused")
			}
		})
	}
}

type deadlineService struct {
	stubService
	deadline chan time.Time
}

func (d deadlineService) DetectAnomaliesForUser(ctx context.Context, _ string) ([]core.Anomaly, error) {
	dl, _ := ctx.Deadline()
	d.deadline <- dl
	return []core.Anomaly{}, nil
}

func TestDetectionTimeoutAppliedToRequestContext(t *testing.T) {
	svc := deadlineService{deadline: make(chan time.Time, 1)}
	s := NewServer(":0", svc, WithDetectionTimeout(5*time.Second))
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	start := time.Now()
	rec := do(t, s, http.MethodGet, "/users/u1/anomalies", "")
	require.Equal(t, http.StatusOK, rec.Code)

	dl := <-svc.deadline
	assert.WithinDuration(t, start.Add(5*time.Second), dl, time.Second)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealthEndpoints(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		s := newTestServer(t, nil, WithReadinessCheck("store", pinger{}))
		assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", "").Code)
		assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/readyz", "").Code)
	})

	t.Run("store down", func(t *testing.T) {
		s := newTestServer(t, nil, WithReadinessCheck("store", pinger{err: errors.New("down")}))
		assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", "").Code)
		assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/readyz", "").Code)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	store := memory.New(history("u1", "food", 50, 52, 49, 51, 53, 500)...)
	svc := services.NewAnomalyService(store,
		services.WithDetectors(detector.NewWindowDetector()),
		services.WithMetrics(metrics))
	s := NewServer(":0", svc, WithGatherer(reg))
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/users/u1/categories/food/anomalies", "").Code)

	rec := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "finassist_")
}

func TestRequestIDPropagated(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/users/u1/anomalies", nil)
	req.Header.Set("X-Request-ID", "req_fixed")
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)

	assert.Equal(t, "req_fixed", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestCheckTransaction_RateLimited(t *testing.T) {
	s := newTestServer(t, nil)
	body := `{"categoryId":"food","amount":1}`

	for i := 0; i < rateLimitRequests; i++ {
		rec := do(t, s, http.MethodPost, "/users/u1/transactions/check", body)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := do(t, s, http.MethodPost, "/users/u1/transactions/check", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Reads are not rate limited.
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/users/u1/anomalies", "").Code)
}
