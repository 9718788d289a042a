package stats

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

type fakeTransaction struct {
	userID    string
	createdAt time.Time
}

type fakePickup struct {
	subOrderID string
}

// fakeRepo mirrors the filtering rules of the SQL repository in memory.
type fakeRepo struct {
	orders         []Order
	products       []Product
	users          []User
	sellerProducts map[string][]string
	transactions   []fakeTransaction
	pickups        []fakePickup
	leads          int64
	err            error

	calls atomic.Int64
}

func (f *fakeRepo) touch() error {
	f.calls.Add(1)
	return f.err
}

func inPeriod(t time.Time, p Period) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

func orderInScope(o Order, scope Scope) bool {
	switch scope.Viewpoint {
	case ViewSeller:
		return o.SellerID == scope.UserID
	case ViewSupplier:
		for _, sub := range o.SubOrders {
			if scope.Owns(sub) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

func (f *fakeRepo) CountLeads(ctx context.Context) (int64, error) {
	if err := f.touch(); err != nil {
		return 0, err
	}
	return f.leads, nil
}

func (f *fakeRepo) CountTransactions(ctx context.Context, scope Scope, period Period) (int64, error) {
	if err := f.touch(); err != nil {
		return 0, err
	}
	var n int64
	for _, tx := range f.transactions {
		if !inPeriod(tx.createdAt, period) {
			continue
		}
		if scope.Viewpoint != ViewAdmin && tx.userID != scope.UserID {
			continue
		}
		n++
	}
	return n, nil
}

func (f *fakeRepo) CountProducts(ctx context.Context, scope Scope) (int64, error) {
	if err := f.touch(); err != nil {
		return 0, err
	}
	switch scope.Viewpoint {
	case ViewSeller:
		return int64(len(f.sellerProducts[scope.UserID])), nil
	case ViewSupplier:
		var n int64
		for _, p := range f.products {
			if p.SupplierID == scope.UserID {
				n++
			}
		}
		return n, nil
	default:
		return int64(len(f.products)), nil
	}
}

func (f *fakeRepo) CountUsersByRole(ctx context.Context, role Role) (int64, error) {
	if err := f.touch(); err != nil {
		return 0, err
	}
	var n int64
	for _, u := range f.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) CountPickups(ctx context.Context, scope Scope) (int64, error) {
	if err := f.touch(); err != nil {
		return 0, err
	}
	owned := make(map[string]bool)
	for _, o := range f.orders {
		if !orderInScope(o, scope) {
			continue
		}
		for _, sub := range o.SubOrders {
			if scope.Owns(sub) {
				owned[sub.ID] = true
			}
		}
	}
	var n int64
	for _, p := range f.pickups {
		if owned[p.subOrderID] {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) ListOrders(ctx context.Context, q OrderQuery) ([]Order, error) {
	if err := f.touch(); err != nil {
		return nil, err
	}
	var out []Order
	for _, o := range f.orders {
		if !inPeriod(o.CreatedAt, q.Period) || !orderInScope(o, q.Scope) {
			continue
		}
		if q.RequirePaid {
			paid := false
			for _, sub := range o.SubOrders {
				if sub.Status == StatusPaid {
					paid = true
				}
			}
			if !paid {
				continue
			}
		}
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeRepo) ListSubOrders(ctx context.Context, q SubOrderQuery) ([]SubOrder, error) {
	if err := f.touch(); err != nil {
		return nil, err
	}
	var out []SubOrder
	for _, o := range f.orders {
		if !inPeriod(o.CreatedAt, q.Period) || !orderInScope(o, q.Scope) {
			continue
		}
		for _, sub := range o.SubOrders {
			if q.Status != "" && sub.Status != q.Status {
				continue
			}
			if !q.Scope.Owns(sub) {
				continue
			}
			sub.OrderID = o.ID
			sub.OrderCreatedAt = o.CreatedAt
			sub.SellerID = o.SellerID
			out = append(out, sub)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListOrderProducts(ctx context.Context, scope Scope, period Period) ([]OrderProduct, error) {
	if err := f.touch(); err != nil {
		return nil, err
	}
	linked := make(map[string]bool)
	for _, id := range f.sellerProducts[scope.UserID] {
		linked[id] = true
	}
	var out []OrderProduct
	for _, o := range f.orders {
		if !inPeriod(o.CreatedAt, period) {
			continue
		}
		for _, sub := range o.SubOrders {
			for _, item := range sub.OrderProducts {
				switch scope.Viewpoint {
				case ViewSeller:
					if !linked[item.ProductID] {
						continue
					}
				case ViewSupplier:
					if item.SupplierID != scope.UserID {
						continue
					}
				}
				out = append(out, item)
			}
		}
	}
	return out, nil
}

func (f *fakeRepo) ProductsByID(ctx context.Context, ids []string) ([]Product, error) {
	if err := f.touch(); err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []Product
	for _, p := range f.products {
		if want[p.ID] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) UsersByID(ctx context.Context, ids []string) ([]User, error) {
	if err := f.touch(); err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []User
	for _, u := range f.users {
		if want[u.ID] {
			out = append(out, u)
		}
	}
	return out, nil
}

func money(v string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(v), Valid: true}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
