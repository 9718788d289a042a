package statsdb

import (
	"fmt"
	"strings"

	"github.com/dropship-hub/dropship-hub/internal/stats"
)

// filter accumulates WHERE conditions and their positional arguments.
type filter struct {
	conditions []string
	args       []interface{}
}

// arg registers a value and returns its placeholder.
func (f *filter) arg(v interface{}) string {
	f.args = append(f.args, v)
	return fmt.Sprintf("$%d", len(f.args))
}

func (f *filter) where(cond string) {
	f.conditions = append(f.conditions, cond)
}

func (f *filter) clause() string {
	if len(f.conditions) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(f.conditions, " AND ")
}

// supplierOwnsSubOrder matches sub-orders holding at least one line item
// of the supplier's products. subOrder is the SQL expression of the
// sub-order id.
func supplierOwnsSubOrder(subOrder, placeholder string) string {
	return fmt.Sprintf(`EXISTS (
		SELECT 1 FROM order_products sop
		JOIN products sp ON sp.id = sop.product_id
		WHERE sop.sub_order_id = %s AND sp.supplier_id::text = %s)`, subOrder, placeholder)
}

func supplierOwnsOrder(order, placeholder string) string {
	return fmt.Sprintf(`EXISTS (
		SELECT 1 FROM sub_orders sso
		JOIN order_products sop ON sop.sub_order_id = sso.id
		JOIN products sp ON sp.id = sop.product_id
		WHERE sso.order_id = %s AND sp.supplier_id::text = %s)`, order, placeholder)
}

// period restricts created_at of alias to the half-open period.
func (f *filter) period(alias string, p stats.Period) {
	f.where(fmt.Sprintf("%s.created_at >= %s", alias, f.arg(p.Start)))
	f.where(fmt.Sprintf("%s.created_at < %s", alias, f.arg(p.End)))
}

// orderScope narrows orders aliased as alias to the scope.
func (f *filter) orderScope(alias string, scope stats.Scope) {
	switch scope.Viewpoint {
	case stats.ViewSeller:
		f.where(fmt.Sprintf("%s.seller_id::text = %s", alias, f.arg(scope.UserID)))
	case stats.ViewSupplier:
		f.where(supplierOwnsOrder(alias+".id", f.arg(scope.UserID)))
	}
}

// subOrderScope narrows sub-orders aliased as sub joined to orders as order.
func (f *filter) subOrderScope(order, sub string, scope stats.Scope) {
	switch scope.Viewpoint {
	case stats.ViewSeller:
		f.where(fmt.Sprintf("%s.seller_id::text = %s", order, f.arg(scope.UserID)))
	case stats.ViewSupplier:
		f.where(supplierOwnsSubOrder(sub+".id", f.arg(scope.UserID)))
	}
}
