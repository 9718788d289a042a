package stats

import (
	"context"
	"log/slog"
	"time"
)

// OrderQuery selects orders created inside Period for the scope. When
// RequirePaid is set only orders with at least one paid sub-order match.
type OrderQuery struct {
	Scope       Scope
	Period      Period
	RequirePaid bool
}

// SubOrderQuery selects sub-orders whose parent order falls in Period.
// An empty Status matches every status.
type SubOrderQuery struct {
	Scope  Scope
	Period Period
	Status string
}

// Repository exposes the read queries the aggregator relies on. Orders
// come back with sub-orders, line items and status history loaded.
type Repository interface {
	CountLeads(ctx context.Context) (int64, error)
	CountTransactions(ctx context.Context, scope Scope, period Period) (int64, error)
	CountProducts(ctx context.Context, scope Scope) (int64, error)
	CountUsersByRole(ctx context.Context, role Role) (int64, error)
	CountPickups(ctx context.Context, scope Scope) (int64, error)
	ListOrders(ctx context.Context, q OrderQuery) ([]Order, error)
	ListSubOrders(ctx context.Context, q SubOrderQuery) ([]SubOrder, error)
	ListOrderProducts(ctx context.Context, scope Scope, period Period) ([]OrderProduct, error)
	ProductsByID(ctx context.Context, ids []string) ([]Product, error)
	UsersByID(ctx context.Context, ids []string) ([]User, error)
}

// Service computes dashboard statistics, optionally through the cache.
type Service struct {
	repo    Repository
	cache   *Cache
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewService wires a Repository with a Cache helper. A nil cache disables caching.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache, now: time.Now}
}

// WithLogger sets the logger used for swallowed failures.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	s.logger = logger
	return s
}

// WithMetrics attaches report instrumentation.
func (s *Service) WithMetrics(metrics *Metrics) *Service {
	s.metrics = metrics
	return s
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) *Service {
	if fn != nil {
		s.now = fn
	}
	return s
}

func (s *Service) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
