package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// SubOrderStates partitions the sub-orders of a period. Each sub-order is
// counted once: returned wins over completed, completed over paid.
type SubOrderStates struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Paid      int `json:"paid"`
	Returned  int `json:"returned"`
	Pending   int `json:"pending"`
}

// Report is the payload consumed by the dashboards. TopSellers is only
// filled for the admin viewpoint but always encodes as a list.
type Report struct {
	Viewpoint   Viewpoint      `json:"viewpoint"`
	From        string         `json:"from"`
	To          string         `json:"to"`
	Counts      Counts         `json:"counts"`
	TotalProfit string         `json:"totalProfit"`
	TotalSales  string         `json:"totalSales"`
	SubOrders   SubOrderStates `json:"subOrders"`
	Monthly     []MonthlyPoint `json:"monthly"`
	Daily       []DailyPoint   `json:"daily"`
	TopProducts []TopProduct   `json:"topProducts"`
	TopSellers  []TopSeller    `json:"topSellers"`
}

// AdminStats builds the platform wide report.
func (s *Service) AdminStats(ctx context.Context, p Principal, r DateRange) (Report, error) {
	return s.Report(ctx, p, ViewAdmin, r)
}

// SellerStats builds the report of the calling seller.
func (s *Service) SellerStats(ctx context.Context, p Principal, r DateRange) (Report, error) {
	return s.Report(ctx, p, ViewSeller, r)
}

// SupplierStats builds the report of the calling supplier.
func (s *Service) SupplierStats(ctx context.Context, p Principal, r DateRange) (Report, error) {
	return s.Report(ctx, p, ViewSupplier, r)
}

// Report authorises the caller, then assembles the report for the viewpoint.
// Query failures are logged and collapsed into ErrStatsFetch.
func (s *Service) Report(ctx context.Context, p Principal, v Viewpoint, r DateRange) (Report, error) {
	scope, err := Authorize(p, v)
	if err != nil {
		return Report{}, err
	}
	period, err := NewPeriod(r, s.now())
	if err != nil {
		return Report{}, err
	}

	start := time.Now()
	report, err := s.cachedReport(ctx, scope, period)
	s.metrics.observe(v, time.Since(start), err)
	if err != nil {
		s.log().Error("stats report",
			slog.String("viewpoint", string(v)),
			slog.String("user_id", scope.UserID),
			slog.String("from", period.FromLabel()),
			slog.String("to", period.ToLabel()),
			slog.Any("error", err))
		return Report{}, ErrStatsFetch
	}
	return report, nil
}

func (s *Service) cachedReport(ctx context.Context, scope Scope, period Period) (Report, error) {
	key, err := s.cache.ReportKey(ctx, scope, period, s.now())
	if err != nil {
		return Report{}, err
	}
	return s.cache.Report(ctx, key, func(ctx context.Context) (Report, error) {
		return s.assemble(ctx, scope, period)
	})
}

func (s *Service) assemble(ctx context.Context, scope Scope, period Period) (Report, error) {
	report := Report{
		Viewpoint:  scope.Viewpoint,
		From:       period.FromLabel(),
		To:         period.ToLabel(),
		TopSellers: []TopSeller{},
	}
	var profit, sales decimal.Decimal

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		counts, err := s.FetchBasicCounts(ctx, scope, period)
		if err != nil {
			return err
		}
		report.Counts = counts
		return nil
	})

	g.Go(func() error {
		points, err := s.CalculateMonthlyProfitAndSubOrders(ctx, scope)
		if err != nil {
			return err
		}
		report.Monthly = points
		return nil
	})

	g.Go(func() error {
		points, err := s.CalculateDailyProfitAndSubOrders(ctx, scope, period.LastDays(trailingDays))
		if err != nil {
			return err
		}
		report.Daily = points
		return nil
	})

	g.Go(func() error {
		products, err := s.FetchTopProducts(ctx, scope, period)
		if err != nil {
			return err
		}
		report.TopProducts = products
		return nil
	})

	if scope.Viewpoint == ViewAdmin {
		g.Go(func() error {
			sellers, err := s.FetchTopSellers(ctx, period)
			if err != nil {
				return err
			}
			report.TopSellers = sellers
			return nil
		})
	}

	g.Go(func() error {
		states, err := s.subOrderStates(ctx, scope, period)
		if err != nil {
			return err
		}
		report.SubOrders = states
		return nil
	})

	g.Go(func() error {
		var err error
		profit, sales, err = s.totals(ctx, scope, period)
		return err
	})

	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	report.TotalProfit = formatOne(profit)
	report.TotalSales = formatOne(sales)
	return report, nil
}

func (s *Service) subOrderStates(ctx context.Context, scope Scope, period Period) (SubOrderStates, error) {
	subs, err := s.repo.ListSubOrders(ctx, SubOrderQuery{Scope: scope, Period: period})
	if err != nil {
		return SubOrderStates{}, fmt.Errorf("sub-order states: %w", err)
	}
	var states SubOrderStates
	for _, sub := range subs {
		if !scope.Owns(sub) {
			continue
		}
		states.Total++
		switch {
		case sub.Returned():
			states.Returned++
		case sub.Status == StatusCompleted:
			states.Completed++
		case sub.Status == StatusPaid:
			states.Paid++
		default:
			states.Pending++
		}
	}
	return states, nil
}

// totals sums profit over every owned sub-order of the period's orders,
// regardless of status, plus the orders' gross amounts.
func (s *Service) totals(ctx context.Context, scope Scope, period Period) (decimal.Decimal, decimal.Decimal, error) {
	orders, err := s.repo.ListOrders(ctx, OrderQuery{Scope: scope, Period: period})
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("totals: %w", err)
	}
	profit, sales := decimal.Zero, decimal.Zero
	for _, order := range orders {
		sales = sales.Add(orZero(order.TotalAmount))
		for _, sub := range order.SubOrders {
			if !scope.Owns(sub) {
				continue
			}
			profit = profit.Add(scope.Profit(sub))
		}
	}
	return profit, sales, nil
}

// IsClientError reports whether err stems from the request rather than
// from the data source.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrInvalidRange)
}
