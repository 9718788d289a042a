package stats

import (
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	trailingMonths = 6
	trailingDays   = 10
)

// MonthlyPoint is one month of the trailing profit series.
type MonthlyPoint struct {
	Month     string  `json:"month"`
	Profit    float64 `json:"profit"`
	SubOrders int     `json:"subOrders"`
}

// DailyPoint is one day of the daily profit series.
type DailyPoint struct {
	Date      string  `json:"date"`
	SubOrders int     `json:"subOrders"`
	Profit    float64 `json:"profit"`
}

// CalculateMonthlyProfitAndSubOrders returns the trailing six calendar
// months, oldest first. An order qualifies when any of its sub-orders is
// paid; profit and sub-order counts then cover all of its sub-orders.
func (s *Service) CalculateMonthlyProfitAndSubOrders(ctx context.Context, scope Scope) ([]MonthlyPoint, error) {
	current := startOfMonth(s.now())
	points := make([]MonthlyPoint, trailingMonths)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < trailingMonths; i++ {
		start := current.AddDate(0, -i, 0)
		period := Period{Start: start, End: start.AddDate(0, 1, 0)}
		g.Go(func() error {
			orders, err := s.repo.ListOrders(ctx, OrderQuery{Scope: scope, Period: period, RequirePaid: true})
			if err != nil {
				return fmt.Errorf("monthly orders %s: %w", start.Format("2006-01"), err)
			}
			profit := decimal.Zero
			subOrders := 0
			for _, order := range orders {
				for _, sub := range order.SubOrders {
					if !scope.Owns(sub) {
						continue
					}
					profit = profit.Add(scope.Profit(sub))
					subOrders++
				}
			}
			points[i] = MonthlyPoint{
				Month:     start.Month().String()[:3],
				Profit:    roundOne(profit),
				SubOrders: subOrders,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	slices.Reverse(points)
	return points, nil
}

// CalculateDailyProfitAndSubOrders buckets paid sub-orders by the UTC day
// their order was created and emits every day of the period, zero filled.
// Orders with several paid sub-orders are counted once per day.
func (s *Service) CalculateDailyProfitAndSubOrders(ctx context.Context, scope Scope, period Period) ([]DailyPoint, error) {
	subs, err := s.repo.ListSubOrders(ctx, SubOrderQuery{Scope: scope, Period: period, Status: StatusPaid})
	if err != nil {
		return nil, fmt.Errorf("daily sub-orders: %w", err)
	}

	orders := make(map[string]map[string]struct{})
	profits := make(map[string]decimal.Decimal)
	for _, sub := range subs {
		if !scope.Owns(sub) {
			continue
		}
		day := sub.OrderCreatedAt.UTC().Format(dateLayout)
		if orders[day] == nil {
			orders[day] = make(map[string]struct{})
		}
		orders[day][sub.OrderID] = struct{}{}
		profits[day] = profits[day].Add(scope.Profit(sub))
	}

	points := make([]DailyPoint, 0, period.Days())
	for day := period.Start; day.Before(period.End); day = day.AddDate(0, 0, 1) {
		key := day.Format(dateLayout)
		points = append(points, DailyPoint{
			Date:      key,
			SubOrders: len(orders[key]),
			Profit:    roundOne(profits[key]),
		})
	}
	return points, nil
}
