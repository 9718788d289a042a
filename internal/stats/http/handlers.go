package statshttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dropship-hub/dropship-hub/internal/platform/httpx"
	"github.com/dropship-hub/dropship-hub/internal/shared"
	"github.com/dropship-hub/dropship-hub/internal/stats"
	"github.com/dropship-hub/dropship-hub/internal/stats/export"
)

const (
	dateLayout     = "2006-01-02"
	requestTimeout = 5 * time.Second
)

// StatsService defines the report contract used by the handler.
type StatsService interface {
	Report(ctx context.Context, p stats.Principal, v stats.Viewpoint, r stats.DateRange) (stats.Report, error)
}

// Handler serves dashboard statistics as JSON and CSV.
type Handler struct {
	logger    *slog.Logger
	service   StatsService
	validator *validator.Validate
	csvPool   sync.Pool
	timeout   time.Duration
}

// NewHandler constructs the stats HTTP handler.
func NewHandler(logger *slog.Logger, service StatsService) *Handler {
	h := &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
		timeout:   requestTimeout,
	}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

// WithTimeout overrides the per-request deadline.
func (h *Handler) WithTimeout(d time.Duration) {
	if d > 0 {
		h.timeout = d
	}
}

type rangeFilters struct {
	From string `validate:"omitempty,datetime=2006-01-02"`
	To   string `validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadReport(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadReport(w, r)
	if !ok {
		return
	}

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()

	if err := export.WriteSummaryCSV(buf, report); err != nil {
		h.handleServerError(w, "write summary csv", err)
		return
	}
	buf.WriteString("\n")
	if err := export.WriteMonthlyCSV(buf, report.Monthly); err != nil {
		h.handleServerError(w, "write monthly csv", err)
		return
	}
	buf.WriteString("\n")
	if err := export.WriteDailyCSV(buf, report.Daily); err != nil {
		h.handleServerError(w, "write daily csv", err)
		return
	}
	buf.WriteString("\n")
	if err := export.WriteTopProductsCSV(buf, report.TopProducts); err != nil {
		h.handleServerError(w, "write top products csv", err)
		return
	}
	if report.Viewpoint == stats.ViewAdmin {
		buf.WriteString("\n")
		if err := export.WriteTopSellersCSV(buf, report.TopSellers); err != nil {
			h.handleServerError(w, "write top sellers csv", err)
			return
		}
	}

	filename := fmt.Sprintf("stats-%s-%s-%s.csv", report.Viewpoint, report.From, report.To)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logError("stream csv", err)
	}
}

// loadReport resolves the caller, validates the request and fetches the
// report, writing the error response itself when it fails.
func (h *Handler) loadReport(w http.ResponseWriter, r *http.Request) (stats.Report, bool) {
	viewpoint, err := stats.ParseViewpoint(chi.URLParam(r, "viewpoint"))
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return stats.Report{}, false
	}

	sess, ok := shared.AuthenticatedSession(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return stats.Report{}, false
	}
	principal := stats.Principal{UserID: sess.User(), Role: stats.Role(sess.Role())}

	dateRange, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return stats.Report{}, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	report, err := h.service.Report(ctx, principal, viewpoint, dateRange)
	if err == nil {
		return report, true
	}
	if !stats.IsClientError(err) {
		h.handleServerError(w, "load report", err)
		return stats.Report{}, false
	}
	if h.logger != nil {
		h.logger.Warn("stats request rejected",
			slog.String("viewpoint", string(viewpoint)),
			slog.String("user_id", principal.UserID),
			slog.Any("error", err))
	}
	if errors.Is(err, stats.ErrUnauthorized) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	} else {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	}
	return stats.Report{}, false
}

func (h *Handler) parseFilters(r *http.Request) (stats.DateRange, error) {
	query := r.URL.Query()
	filters := rangeFilters{
		From: strings.TrimSpace(query.Get("from")),
		To:   strings.TrimSpace(query.Get("to")),
	}
	if err := h.validator.Struct(filters); err != nil {
		var fields []string
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) {
			for _, fieldErr := range vErrs {
				fields = append(fields, strings.ToLower(fieldErr.Field()))
			}
		}
		return stats.DateRange{}, fmt.Errorf("invalid %s: expected YYYY-MM-DD", strings.Join(fields, ", "))
	}

	var out stats.DateRange
	if filters.From != "" {
		out.From, _ = time.Parse(dateLayout, filters.From)
	}
	if filters.To != "" {
		out.To, _ = time.Parse(dateLayout, filters.To)
	}
	return out, nil
}

func (h *Handler) handleServerError(w http.ResponseWriter, msg string, err error) {
	h.logError(msg, err)
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", stats.ErrStatsFetch.Error())
}

func (h *Handler) logError(msg string, err error) {
	if h.logger == nil || err == nil {
		return
	}
	h.logger.Error(msg, slog.Any("error", err))
}
