package statshttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropship-hub/dropship-hub/internal/platform/httpx"
	"github.com/dropship-hub/dropship-hub/internal/shared"
	"github.com/dropship-hub/dropship-hub/internal/stats"
)

type stubService struct {
	report stats.Report
	err    error

	calls     int
	principal stats.Principal
	viewpoint stats.Viewpoint
	dateRange stats.DateRange
}

func (s *stubService) Report(ctx context.Context, p stats.Principal, v stats.Viewpoint, r stats.DateRange) (stats.Report, error) {
	s.calls++
	s.principal, s.viewpoint, s.dateRange = p, v, r
	if s.err != nil {
		return stats.Report{}, s.err
	}
	report := s.report
	report.Viewpoint = v
	return report, nil
}

func sampleReport() stats.Report {
	leads := int64(7)
	return stats.Report{
		From:        "2025-04-01",
		To:          "2025-04-03",
		Counts:      stats.Counts{Transactions: 2, Products: 3, Leads: &leads},
		TotalProfit: "12.3",
		TotalSales:  "99.0",
		SubOrders:   stats.SubOrderStates{Total: 1, Paid: 1},
		Monthly:     []stats.MonthlyPoint{{Month: "Apr", Profit: 12.3, SubOrders: 1}},
		Daily: []stats.DailyPoint{
			{Date: "2025-04-01"},
			{Date: "2025-04-02", SubOrders: 1, Profit: 12.3},
			{Date: "2025-04-03"},
		},
		TopProducts: []stats.TopProduct{{ID: "p1", Name: "Alpha", TotalQuantity: 5}},
		TopSellers:  []stats.TopSeller{{ID: "s1", Name: "Seller", Count: 1}},
	}
}

func newTestRouter(service StatsService, sess *shared.Session) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if sess != nil {
				req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
			}
			next.ServeHTTP(w, req)
		})
	})
	NewHandler(nil, service).MountRoutes(r)
	return r
}

func decodeProblem(t *testing.T, rr *httptest.ResponseRecorder) httpx.ProblemDetail {
	t.Helper()
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	return problem
}

func TestReportRequiresSession(t *testing.T) {
	service := &stubService{report: sampleReport()}
	rr := httptest.NewRecorder()
	newTestRouter(service, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stats/admin", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Zero(t, service.calls)
}

func TestReportReturnsJSON(t *testing.T) {
	service := &stubService{report: sampleReport()}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats/admin?from=2025-04-01&to=2025-04-03", nil)
	newTestRouter(service, shared.NewSession("root", "ADMIN")).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, stats.Principal{UserID: "root", Role: stats.RoleAdmin}, service.principal)
	assert.Equal(t, stats.ViewAdmin, service.viewpoint)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), service.dateRange.From)
	assert.Equal(t, time.Date(2025, 4, 3, 0, 0, 0, 0, time.UTC), service.dateRange.To)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "12.3", body["totalProfit"])
	assert.Len(t, body["daily"], 3)
	assert.Len(t, body["monthly"], 1)
}

func TestReportRejectsMalformedDates(t *testing.T) {
	service := &stubService{report: sampleReport()}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats/seller?from=04/01/2025", nil)
	newTestRouter(service, shared.NewSession("seller-1", "SELLER")).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeProblem(t, rr).Detail, "from")
	assert.Zero(t, service.calls)
}

func TestReportUnknownViewpoint(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(&stubService{}, shared.NewSession("root", "ADMIN")).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stats/warehouse", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestReportMapsServiceErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		detail string
	}{
		{stats.ErrUnauthorized, http.StatusForbidden, stats.ErrUnauthorized.Error()},
		{stats.ErrInvalidRange, http.StatusBadRequest, stats.ErrInvalidRange.Error()},
		{stats.ErrStatsFetch, http.StatusInternalServerError, "stats-fetch-error"},
		{errors.New("boom"), http.StatusInternalServerError, "stats-fetch-error"},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		newTestRouter(&stubService{err: tc.err}, shared.NewSession("seller-1", "SELLER")).
			ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stats/supplier", nil))
		assert.Equal(t, tc.status, rr.Code)
		assert.Equal(t, tc.detail, decodeProblem(t, rr).Detail)
	}
}

func TestReportLogLevelFollowsErrorClass(t *testing.T) {
	cases := []struct {
		err    error
		status int
		level  string
	}{
		{fmt.Errorf("range: %w", stats.ErrInvalidRange), http.StatusBadRequest, `"level":"WARN"`},
		{stats.ErrUnauthorized, http.StatusForbidden, `"level":"WARN"`},
		{stats.ErrStatsFetch, http.StatusInternalServerError, `"level":"ERROR"`},
	}
	for _, tc := range cases {
		var logs bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&logs, nil))
		r := chi.NewRouter()
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				sess := shared.NewSession("seller-1", "SELLER")
				next.ServeHTTP(w, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
			})
		})
		NewHandler(logger, &stubService{err: tc.err}).MountRoutes(r)

		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stats/seller", nil))
		assert.Equal(t, tc.status, rr.Code)
		assert.Contains(t, logs.String(), tc.level, tc.err.Error())
	}
}

func TestCSVExport(t *testing.T) {
	service := &stubService{report: sampleReport()}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats/admin/export.csv", nil)
	newTestRouter(service, shared.NewSession("root", "ADMIN")).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "stats-admin-2025-04-01-2025-04-03.csv")
	body := rr.Body.String()
	assert.Contains(t, body, "Total Profit,12.3")
	assert.Contains(t, body, "2025-04-02,1,12.3")
	assert.Contains(t, body, "1,p1,Alpha,5")
	assert.Contains(t, body, "1,s1,Seller,1")
}

func TestCSVExportIsRateLimited(t *testing.T) {
	router := newTestRouter(&stubService{report: sampleReport()}, shared.NewSession("seller-1", "SELLER"))
	var last int
	for i := 0; i < 11; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stats/seller/export.csv", nil))
		last = rr.Code
		if i < 10 {
			require.Equal(t, http.StatusOK, rr.Code)
		}
	}
	assert.Equal(t, http.StatusTooManyRequests, last)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stats/seller", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
