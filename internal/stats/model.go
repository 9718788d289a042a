package stats

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Sub-order status codes assigned by the order management system.
const (
	StatusPaid      = "EC02"
	StatusCompleted = "23"
	// StatusReturned is only ever recorded in the status history.
	StatusReturned = "28"
)

// Role identifies which dashboard a user belongs to.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleSeller   Role = "SELLER"
	RoleSupplier Role = "SUPPLIER"
)

// Order is a customer order split into per-seller/per-supplier sub-orders.
type Order struct {
	ID          string
	CreatedAt   time.Time
	SellerID    string
	TotalAmount decimal.NullDecimal
	SubOrders   []SubOrder
}

// SubOrder carries its own status and profit split. OrderCreatedAt and
// SellerID are copied from the parent order when loaded standalone.
type SubOrder struct {
	ID             string
	OrderID        string
	OrderCreatedAt time.Time
	SellerID       string
	Status         string
	PlatformProfit decimal.NullDecimal
	SellerProfit   decimal.NullDecimal
	OrderProducts  []OrderProduct
	StatusHistory  []StatusChange
}

// StatusChange is one entry of a sub-order status history.
type StatusChange struct {
	Status    string
	ChangedAt time.Time
}

// OrderProduct is a line item of a sub-order.
type OrderProduct struct {
	ID             string
	SubOrderID     string
	ProductID      string
	SupplierID     string
	Quantity       string
	SupplierProfit decimal.NullDecimal
}

// Product holds the display information used by rankings.
type Product struct {
	ID         string
	SupplierID string
	Name       string
	Media      []string
}

// User is the subset of the user record needed for rankings.
type User struct {
	ID       string
	FullName string
	Image    string
	Role     Role
}

// Returned reports whether the sub-order was ever flagged as returned.
func (s SubOrder) Returned() bool {
	for _, change := range s.StatusHistory {
		if change.Status == StatusReturned {
			return true
		}
	}
	return false
}

// Units reads the leading integer of the stored quantity: "3.00" and "3 pcs"
// count as 3, a leading sign is kept, and values without digits count as 0.
func (p OrderProduct) Units() int {
	q := strings.TrimSpace(p.Quantity)
	end := 0
	if end < len(q) && (q[end] == '-' || q[end] == '+') {
		end++
	}
	digits := end
	for end < len(q) && q[end] >= '0' && q[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	n, err := strconv.Atoi(q[:end])
	if err != nil {
		return 0
	}
	return n
}

// Thumbnail returns the first media key or an empty string.
func (p Product) Thumbnail() string {
	if len(p.Media) == 0 {
		return ""
	}
	return p.Media[0]
}

func orZero(v decimal.NullDecimal) decimal.Decimal {
	if !v.Valid {
		return decimal.Zero
	}
	return v.Decimal
}

// roundOne rounds to one decimal place for the numeric series.
func roundOne(v decimal.Decimal) float64 {
	return v.Round(1).InexactFloat64()
}

// formatOne renders a total with exactly one decimal digit.
func formatOne(v decimal.Decimal) string {
	return v.StringFixed(1)
}
