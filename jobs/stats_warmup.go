package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/dropship-hub/dropship-hub/internal/jobs"
	"github.com/dropship-hub/dropship-hub/internal/stats"
)

// warmupPrincipal is the identity used to build the admin report.
const warmupPrincipal = "system:warmup"

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Reporter builds one stats report.
type Reporter interface {
	Report(ctx context.Context, p stats.Principal, v stats.Viewpoint, r stats.DateRange) (stats.Report, error)
}

// ScopeSource lists the scopes with recent activity.
type ScopeSource interface {
	ActiveScopes(ctx context.Context, since time.Time) ([]stats.Scope, error)
}

// StatsWarmupJob pre-populates the stats cache for every active scope.
type StatsWarmupJob struct {
	Stats   Reporter
	Scopes  ScopeSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewStatsWarmupJob wires dependencies for the warmup handler.
func NewStatsWarmupJob(reporter Reporter, scopes ScopeSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *StatsWarmupJob {
	return &StatsWarmupJob{
		Stats:   reporter,
		Scopes:  scopes,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes stats warmup tasks. A failing scope does not stop the
// run; failures are reported together once every scope was attempted.
func (j *StatsWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Stats == nil || j.Scopes == nil {
		return errors.New("stats warmup: handler not configured")
	}
	var payload StatsWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Days <= 0 {
		payload.Days = defaultWarmupDays
	}

	tracker := j.metrics().Track(TaskStatsWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("days", payload.Days))
	logger.Info("starting stats warmup")

	now := j.now()
	window := stats.DateRange{From: now.AddDate(0, 0, -(payload.Days - 1)), To: now}
	// Dashboards open on today's report, which requests carry as an empty range.
	windows := []stats.DateRange{window}
	if payload.Days > 1 {
		windows = append(windows, stats.DateRange{})
	}

	scopes, err := j.Scopes.ActiveScopes(ctx, window.From.Truncate(24*time.Hour))
	if err != nil {
		resultErr = err
		logger.Error("load warmup scopes", slog.Any("error", err))
		return resultErr
	}

	var failures []error
	warmed := make(map[stats.Viewpoint]int)
	for _, scope := range scopes {
		if err := j.warmScope(ctx, scope, windows); err != nil {
			logger.Error("warm scope",
				slog.String("viewpoint", string(scope.Viewpoint)),
				slog.String("user_id", scope.UserID),
				slog.Any("error", err))
			failures = append(failures, err)
			continue
		}
		warmed[scope.Viewpoint]++
	}
	for viewpoint, n := range warmed {
		j.metrics().AddWarmed(string(viewpoint), n)
	}

	resultErr = errors.Join(failures...)
	logger.Info("completed stats warmup",
		slog.Int("scopes", len(scopes)),
		slog.Int("failed", len(failures)),
		slog.Duration("duration", time.Since(now)))
	return resultErr
}

// warmScope builds the scope's report for each window and stops at the
// first failure.
func (j *StatsWarmupJob) warmScope(ctx context.Context, scope stats.Scope, windows []stats.DateRange) error {
	scopeCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	principal := stats.Principal{UserID: scope.UserID, Role: scope.Viewpoint.Role()}
	if principal.UserID == "" {
		principal.UserID = warmupPrincipal
	}
	for _, window := range windows {
		if _, err := j.Stats.Report(scopeCtx, principal, scope.Viewpoint, window); err != nil {
			return err
		}
	}
	return nil
}

func (j *StatsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStatsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskStatsWarmup))
}

func (j *StatsWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *StatsWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
