package stats

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Counts holds the headline numbers of a dashboard. Fields that do not
// apply to a viewpoint are left nil.
type Counts struct {
	Transactions int64  `json:"transactions"`
	Products     int64  `json:"products"`
	Leads        *int64 `json:"leads,omitempty"`
	Suppliers    *int64 `json:"suppliers,omitempty"`
	Sellers      *int64 `json:"sellers,omitempty"`
	Pickups      *int64 `json:"pickups,omitempty"`
}

// FetchBasicCounts runs the viewpoint specific count queries concurrently.
func (s *Service) FetchBasicCounts(ctx context.Context, scope Scope, period Period) (Counts, error) {
	var counts Counts
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := s.repo.CountTransactions(ctx, scope, period)
		if err != nil {
			return fmt.Errorf("count transactions: %w", err)
		}
		counts.Transactions = n
		return nil
	})
	g.Go(func() error {
		n, err := s.repo.CountProducts(ctx, scope)
		if err != nil {
			return fmt.Errorf("count products: %w", err)
		}
		counts.Products = n
		return nil
	})

	if scope.Viewpoint == ViewAdmin {
		var leads, suppliers, sellers int64
		counts.Leads, counts.Suppliers, counts.Sellers = &leads, &suppliers, &sellers
		g.Go(func() error {
			n, err := s.repo.CountLeads(ctx)
			if err != nil {
				return fmt.Errorf("count leads: %w", err)
			}
			leads = n
			return nil
		})
		g.Go(func() error {
			n, err := s.repo.CountUsersByRole(ctx, RoleSupplier)
			if err != nil {
				return fmt.Errorf("count suppliers: %w", err)
			}
			suppliers = n
			return nil
		})
		g.Go(func() error {
			n, err := s.repo.CountUsersByRole(ctx, RoleSeller)
			if err != nil {
				return fmt.Errorf("count sellers: %w", err)
			}
			sellers = n
			return nil
		})
	} else {
		var pickups int64
		counts.Pickups = &pickups
		g.Go(func() error {
			n, err := s.repo.CountPickups(ctx, scope)
			if err != nil {
				return fmt.Errorf("count pickups: %w", err)
			}
			pickups = n
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Counts{}, err
	}
	return counts, nil
}
