package stats

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
)

const (
	topN = 5

	unknownProduct = "Unknown Product"
	unknownSeller  = "Unknown Seller"
)

// TopProduct ranks a product by units sold.
type TopProduct struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Media         string `json:"media"`
	TotalQuantity int    `json:"totalQuantity"`
}

// TopSeller ranks a seller by sub-order volume.
type TopSeller struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image"`
	Count int    `json:"count"`
}

type tally struct {
	id    string
	total int
}

// tallies keeps first-seen order so that ties follow the query order.
type tallies struct {
	order  []string
	totals map[string]int
}

func newTallies() *tallies {
	return &tallies{totals: make(map[string]int)}
}

func (t *tallies) add(id string, n int) {
	if _, ok := t.totals[id]; !ok {
		t.order = append(t.order, id)
	}
	t.totals[id] += n
}

func (t *tallies) top(limit int) []tally {
	ranked := make([]tally, 0, len(t.order))
	for _, id := range t.order {
		ranked = append(ranked, tally{id: id, total: t.totals[id]})
	}
	slices.SortStableFunc(ranked, func(a, b tally) int {
		return cmp.Compare(b.total, a.total)
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// FetchTopProducts ranks the scope's products by quantity sold in the period.
// Products that no longer exist are reported under their raw ID.
func (s *Service) FetchTopProducts(ctx context.Context, scope Scope, period Period) ([]TopProduct, error) {
	items, err := s.repo.ListOrderProducts(ctx, scope, period)
	if err != nil {
		return nil, fmt.Errorf("top products: %w", err)
	}
	counter := newTallies()
	for _, item := range items {
		counter.add(item.ProductID, item.Units())
	}
	ranked := counter.top(topN)
	if len(ranked) == 0 {
		return []TopProduct{}, nil
	}

	ids := make([]string, 0, len(ranked))
	for _, r := range ranked {
		ids = append(ids, r.id)
	}
	products, err := s.repo.ProductsByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("top products lookup: %w", err)
	}
	byID := make(map[string]Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	result := make([]TopProduct, 0, len(ranked))
	for _, r := range ranked {
		entry := TopProduct{ID: r.id, Name: unknownProduct, TotalQuantity: r.total}
		if p, ok := byID[r.id]; ok {
			entry.Name = p.Name
			entry.Media = p.Thumbnail()
		}
		result = append(result, entry)
	}
	return result, nil
}

// FetchTopSellers ranks sellers by the number of sub-orders in the period.
func (s *Service) FetchTopSellers(ctx context.Context, period Period) ([]TopSeller, error) {
	subs, err := s.repo.ListSubOrders(ctx, SubOrderQuery{Scope: AdminScope(), Period: period})
	if err != nil {
		return nil, fmt.Errorf("top sellers: %w", err)
	}
	counter := newTallies()
	for _, sub := range subs {
		// Orders without a seller cannot be attributed to anyone.
		if strings.TrimSpace(sub.SellerID) == "" {
			continue
		}
		counter.add(sub.SellerID, 1)
	}
	ranked := counter.top(topN)
	if len(ranked) == 0 {
		return []TopSeller{}, nil
	}

	ids := make([]string, 0, len(ranked))
	for _, r := range ranked {
		ids = append(ids, r.id)
	}
	users, err := s.repo.UsersByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("top sellers lookup: %w", err)
	}
	byID := make(map[string]User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	result := make([]TopSeller, 0, len(ranked))
	for _, r := range ranked {
		entry := TopSeller{ID: r.id, Name: unknownSeller, Count: r.total}
		if u, ok := byID[r.id]; ok {
			entry.Name = u.FullName
			entry.Image = u.Image
		}
		result = append(result, entry)
	}
	return result, nil
}
