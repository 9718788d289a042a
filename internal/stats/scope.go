package stats

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Viewpoint selects whose numbers a report shows.
type Viewpoint string

const (
	ViewAdmin    Viewpoint = "admin"
	ViewSeller   Viewpoint = "seller"
	ViewSupplier Viewpoint = "supplier"
)

// ParseViewpoint validates a viewpoint coming from a request path.
func ParseViewpoint(raw string) (Viewpoint, error) {
	switch v := Viewpoint(raw); v {
	case ViewAdmin, ViewSeller, ViewSupplier:
		return v, nil
	default:
		return "", fmt.Errorf("stats: unknown viewpoint %q", raw)
	}
}

// Role returns the user role allowed to read the viewpoint.
func (v Viewpoint) Role() Role {
	switch v {
	case ViewSeller:
		return RoleSeller
	case ViewSupplier:
		return RoleSupplier
	default:
		return RoleAdmin
	}
}

// Principal is the authenticated caller requesting a report.
type Principal struct {
	UserID string
	Role   Role
}

// Scope narrows every query and decides profit attribution. Seller and
// supplier scopes carry the identity they are restricted to.
type Scope struct {
	Viewpoint Viewpoint
	UserID    string
}

// AdminScope covers the whole platform.
func AdminScope() Scope { return Scope{Viewpoint: ViewAdmin} }

// SellerScope restricts queries to one seller.
func SellerScope(id string) Scope { return Scope{Viewpoint: ViewSeller, UserID: id} }

// SupplierScope restricts queries to one supplier.
func SupplierScope(id string) Scope { return Scope{Viewpoint: ViewSupplier, UserID: id} }

// Authorize checks the caller's role against the viewpoint and derives the
// scope the report runs under.
func Authorize(p Principal, v Viewpoint) (Scope, error) {
	if p.UserID == "" || p.Role == "" {
		return Scope{}, ErrUnauthorized
	}
	if p.Role != v.Role() {
		return Scope{}, ErrUnauthorized
	}
	switch v {
	case ViewAdmin:
		return AdminScope(), nil
	case ViewSeller:
		return SellerScope(p.UserID), nil
	case ViewSupplier:
		return SupplierScope(p.UserID), nil
	default:
		return Scope{}, ErrUnauthorized
	}
}

// Owns reports whether the sub-order counts towards this scope. Seller
// filtering happens at order level, so only suppliers need a check here.
func (s Scope) Owns(sub SubOrder) bool {
	if s.Viewpoint != ViewSupplier {
		return true
	}
	for _, item := range sub.OrderProducts {
		if item.SupplierID == s.UserID {
			return true
		}
	}
	return false
}

// Profit selects the share of a sub-order's profit attributed to the scope.
func (s Scope) Profit(sub SubOrder) decimal.Decimal {
	switch s.Viewpoint {
	case ViewSeller:
		return orZero(sub.SellerProfit)
	case ViewSupplier:
		total := decimal.Zero
		for _, item := range sub.OrderProducts {
			if item.SupplierID != s.UserID {
				continue
			}
			total = total.Add(orZero(item.SupplierProfit))
		}
		return total
	default:
		return orZero(sub.PlatformProfit)
	}
}

func (s Scope) token() string {
	if s.UserID == "" {
		return string(s.Viewpoint)
	}
	return string(s.Viewpoint) + ":" + s.UserID
}
