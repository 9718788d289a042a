package statsdb

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dropship-hub/dropship-hub/internal/platform/db"
	"github.com/dropship-hub/dropship-hub/internal/stats"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository reads dashboard data from PostgreSQL.
type Repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

var _ stats.Repository = (*Repository)(nil)

// NewRepository constructs the repository over a pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool}
}

// snapshot runs fn against a repeatable read transaction so that parent
// rows and their relations come from the same snapshot.
func (r *Repository) snapshot(ctx context.Context, fn func(dbtx) error) error {
	if r.pool == nil {
		return fn(r.db)
	}
	return db.WithReadSnapshot(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(tx)
	})
}

func (r *Repository) count(ctx context.Context, query string, args ...interface{}) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *Repository) CountLeads(ctx context.Context) (int64, error) {
	n, err := r.count(ctx, `SELECT COUNT(*) FROM leads`)
	if err != nil {
		return 0, fmt.Errorf("statsdb: count leads: %w", err)
	}
	return n, nil
}

func (r *Repository) CountTransactions(ctx context.Context, scope stats.Scope, period stats.Period) (int64, error) {
	var f filter
	f.period("t", period)
	if scope.Viewpoint != stats.ViewAdmin {
		f.where("t.user_id::text = " + f.arg(scope.UserID))
	}
	n, err := r.count(ctx, "SELECT COUNT(*) FROM transactions t "+f.clause(), f.args...)
	if err != nil {
		return 0, fmt.Errorf("statsdb: count transactions: %w", err)
	}
	return n, nil
}

func (r *Repository) CountProducts(ctx context.Context, scope stats.Scope) (int64, error) {
	var (
		n   int64
		err error
	)
	switch scope.Viewpoint {
	case stats.ViewSeller:
		n, err = r.count(ctx, `SELECT COUNT(*) FROM seller_products WHERE seller_id::text = $1`, scope.UserID)
	case stats.ViewSupplier:
		n, err = r.count(ctx, `SELECT COUNT(*) FROM products WHERE supplier_id::text = $1`, scope.UserID)
	default:
		n, err = r.count(ctx, `SELECT COUNT(*) FROM products`)
	}
	if err != nil {
		return 0, fmt.Errorf("statsdb: count products: %w", err)
	}
	return n, nil
}

func (r *Repository) CountUsersByRole(ctx context.Context, role stats.Role) (int64, error) {
	n, err := r.count(ctx, `SELECT COUNT(*) FROM users WHERE role = $1`, string(role))
	if err != nil {
		return 0, fmt.Errorf("statsdb: count users %s: %w", role, err)
	}
	return n, nil
}

func (r *Repository) CountPickups(ctx context.Context, scope stats.Scope) (int64, error) {
	var f filter
	f.subOrderScope("o", "so", scope)
	query := `SELECT COUNT(*) FROM pickups pk
		JOIN sub_orders so ON so.id = pk.sub_order_id
		JOIN orders o ON o.id = so.order_id ` + f.clause()
	n, err := r.count(ctx, query, f.args...)
	if err != nil {
		return 0, fmt.Errorf("statsdb: count pickups: %w", err)
	}
	return n, nil
}

// ListOrders returns orders with their sub-orders, line items and status
// history loaded.
func (r *Repository) ListOrders(ctx context.Context, q stats.OrderQuery) ([]stats.Order, error) {
	var f filter
	f.period("o", q.Period)
	f.orderScope("o", q.Scope)
	if q.RequirePaid {
		f.where(fmt.Sprintf(`EXISTS (SELECT 1 FROM sub_orders ps WHERE ps.order_id = o.id AND ps.status = %s)`, f.arg(stats.StatusPaid)))
	}
	query := `SELECT o.id::text, COALESCE(o.seller_id::text, ''), o.total_amount::text, o.created_at
		FROM orders o ` + f.clause() + ` ORDER BY o.created_at, o.id`

	var orders []stats.Order
	err := r.snapshot(ctx, func(conn dbtx) error {
		rows, err := conn.Query(ctx, query, f.args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var o stats.Order
			if err := rows.Scan(&o.ID, &o.SellerID, &o.TotalAmount, &o.CreatedAt); err != nil {
				return err
			}
			orders = append(orders, o)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(orders) == 0 {
			return nil
		}

		ids := make([]string, len(orders))
		for i, o := range orders {
			ids[i] = o.ID
		}
		subs, err := loadSubOrders(ctx, conn, ids)
		if err != nil {
			return err
		}
		byOrder := make(map[string][]stats.SubOrder, len(orders))
		for _, sub := range subs {
			byOrder[sub.OrderID] = append(byOrder[sub.OrderID], sub)
		}
		for i := range orders {
			orders[i].SubOrders = byOrder[orders[i].ID]
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("statsdb: list orders: %w", err)
	}
	return orders, nil
}

// ListSubOrders returns sub-orders whose parent order falls in the period,
// denormalising the parent's creation time and seller.
func (r *Repository) ListSubOrders(ctx context.Context, q stats.SubOrderQuery) ([]stats.SubOrder, error) {
	var f filter
	f.period("o", q.Period)
	f.subOrderScope("o", "so", q.Scope)
	if q.Status != "" {
		f.where("so.status = " + f.arg(q.Status))
	}
	query := `SELECT so.id::text, so.order_id::text, o.created_at, COALESCE(o.seller_id::text, ''),
			so.status, so.platform_profit::text, so.seller_profit::text
		FROM sub_orders so
		JOIN orders o ON o.id = so.order_id ` + f.clause() + ` ORDER BY o.created_at, so.id`

	var subs []stats.SubOrder
	err := r.snapshot(ctx, func(conn dbtx) error {
		rows, err := conn.Query(ctx, query, f.args...)
		if err != nil {
			return err
		}
		subs, err = scanSubOrders(rows)
		if err != nil {
			return err
		}
		return attachRelations(ctx, conn, subs)
	})
	if err != nil {
		return nil, fmt.Errorf("statsdb: list sub-orders: %w", err)
	}
	return subs, nil
}

// ListOrderProducts returns the line items sold in the period. Sellers see
// the products linked to their shop, suppliers the products they supply.
func (r *Repository) ListOrderProducts(ctx context.Context, scope stats.Scope, period stats.Period) ([]stats.OrderProduct, error) {
	var f filter
	f.period("o", period)
	switch scope.Viewpoint {
	case stats.ViewSeller:
		f.where("op.product_id IN (SELECT product_id FROM seller_products WHERE seller_id::text = " + f.arg(scope.UserID) + ")")
	case stats.ViewSupplier:
		f.where("p.supplier_id::text = " + f.arg(scope.UserID))
	}
	query := `SELECT op.id::text, op.sub_order_id::text, op.product_id::text, COALESCE(p.supplier_id::text, ''),
			op.quantity::text, op.supplier_profit::text
		FROM order_products op
		JOIN sub_orders so ON so.id = op.sub_order_id
		JOIN orders o ON o.id = so.order_id
		LEFT JOIN products p ON p.id = op.product_id ` + f.clause() + ` ORDER BY o.created_at, op.id`

	rows, err := r.db.Query(ctx, query, f.args...)
	if err != nil {
		return nil, fmt.Errorf("statsdb: list order products: %w", err)
	}
	items, err := scanOrderProducts(rows)
	if err != nil {
		return nil, fmt.Errorf("statsdb: list order products: %w", err)
	}
	return items, nil
}

func (r *Repository) ProductsByID(ctx context.Context, ids []string) ([]stats.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT p.id::text, COALESCE(p.supplier_id::text, ''), COALESCE(p.name, '')
		FROM products p WHERE p.id::text = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("statsdb: products: %w", err)
	}
	defer rows.Close()
	var products []stats.Product
	index := make(map[string]int)
	for rows.Next() {
		var p stats.Product
		if err := rows.Scan(&p.ID, &p.SupplierID, &p.Name); err != nil {
			return nil, fmt.Errorf("statsdb: scan product: %w", err)
		}
		index[p.ID] = len(products)
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("statsdb: products: %w", err)
	}
	rows.Close()

	media, err := r.db.Query(ctx, `SELECT product_id::text, media_key FROM product_media
		WHERE product_id::text = ANY($1) ORDER BY product_id, position`, ids)
	if err != nil {
		return nil, fmt.Errorf("statsdb: product media: %w", err)
	}
	defer media.Close()
	for media.Next() {
		var productID, key string
		if err := media.Scan(&productID, &key); err != nil {
			return nil, fmt.Errorf("statsdb: scan product media: %w", err)
		}
		if i, ok := index[productID]; ok {
			products[i].Media = append(products[i].Media, key)
		}
	}
	if err := media.Err(); err != nil {
		return nil, fmt.Errorf("statsdb: product media: %w", err)
	}
	return products, nil
}

func (r *Repository) UsersByID(ctx context.Context, ids []string) ([]stats.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT id::text, COALESCE(full_name, ''), COALESCE(image, ''), role
		FROM users WHERE id::text = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("statsdb: users: %w", err)
	}
	defer rows.Close()
	var users []stats.User
	for rows.Next() {
		var (
			u    stats.User
			role string
		)
		if err := rows.Scan(&u.ID, &u.FullName, &u.Image, &role); err != nil {
			return nil, fmt.Errorf("statsdb: scan user: %w", err)
		}
		u.Role = stats.Role(role)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("statsdb: users: %w", err)
	}
	return users, nil
}

// ActiveScopes lists the admin scope plus every seller and supplier with
// orders created since the given time. The warmup job iterates it.
func (r *Repository) ActiveScopes(ctx context.Context, since time.Time) ([]stats.Scope, error) {
	scopes := []stats.Scope{stats.AdminScope()}

	sellers, err := r.distinctIDs(ctx, `SELECT DISTINCT o.seller_id::text FROM orders o
		WHERE o.created_at >= $1 AND o.seller_id IS NOT NULL ORDER BY 1`, since)
	if err != nil {
		return nil, fmt.Errorf("statsdb: active sellers: %w", err)
	}
	for _, id := range sellers {
		scopes = append(scopes, stats.SellerScope(id))
	}

	suppliers, err := r.distinctIDs(ctx, `SELECT DISTINCT p.supplier_id::text FROM order_products op
		JOIN sub_orders so ON so.id = op.sub_order_id
		JOIN orders o ON o.id = so.order_id
		JOIN products p ON p.id = op.product_id
		WHERE o.created_at >= $1 AND p.supplier_id IS NOT NULL ORDER BY 1`, since)
	if err != nil {
		return nil, fmt.Errorf("statsdb: active suppliers: %w", err)
	}
	for _, id := range suppliers {
		scopes = append(scopes, stats.SupplierScope(id))
	}
	return scopes, nil
}

func (r *Repository) distinctIDs(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func loadSubOrders(ctx context.Context, conn dbtx, orderIDs []string) ([]stats.SubOrder, error) {
	rows, err := conn.Query(ctx, `SELECT so.id::text, so.order_id::text, o.created_at, COALESCE(o.seller_id::text, ''),
			so.status, so.platform_profit::text, so.seller_profit::text
		FROM sub_orders so
		JOIN orders o ON o.id = so.order_id
		WHERE so.order_id::text = ANY($1) ORDER BY so.order_id, so.id`, orderIDs)
	if err != nil {
		return nil, err
	}
	subs, err := scanSubOrders(rows)
	if err != nil {
		return nil, err
	}
	if err := attachRelations(ctx, conn, subs); err != nil {
		return nil, err
	}
	return subs, nil
}

func scanSubOrders(rows pgx.Rows) ([]stats.SubOrder, error) {
	defer rows.Close()
	var subs []stats.SubOrder
	for rows.Next() {
		var sub stats.SubOrder
		if err := rows.Scan(&sub.ID, &sub.OrderID, &sub.OrderCreatedAt, &sub.SellerID,
			&sub.Status, &sub.PlatformProfit, &sub.SellerProfit); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func scanOrderProducts(rows pgx.Rows) ([]stats.OrderProduct, error) {
	defer rows.Close()
	var items []stats.OrderProduct
	for rows.Next() {
		var (
			item     stats.OrderProduct
			quantity *string
			profit   decimal.NullDecimal
		)
		if err := rows.Scan(&item.ID, &item.SubOrderID, &item.ProductID, &item.SupplierID, &quantity, &profit); err != nil {
			return nil, err
		}
		if quantity != nil {
			item.Quantity = *quantity
		}
		item.SupplierProfit = profit
		items = append(items, item)
	}
	return items, rows.Err()
}

// attachRelations loads line items and status history for subs in place.
func attachRelations(ctx context.Context, conn dbtx, subs []stats.SubOrder) error {
	if len(subs) == 0 {
		return nil
	}
	ids := make([]string, len(subs))
	index := make(map[string]int, len(subs))
	for i, sub := range subs {
		ids[i] = sub.ID
		index[sub.ID] = i
	}

	rows, err := conn.Query(ctx, `SELECT op.id::text, op.sub_order_id::text, op.product_id::text, COALESCE(p.supplier_id::text, ''),
			op.quantity::text, op.supplier_profit::text
		FROM order_products op
		LEFT JOIN products p ON p.id = op.product_id
		WHERE op.sub_order_id::text = ANY($1) ORDER BY op.sub_order_id, op.id`, ids)
	if err != nil {
		return fmt.Errorf("order products: %w", err)
	}
	items, err := scanOrderProducts(rows)
	if err != nil {
		return fmt.Errorf("order products: %w", err)
	}
	for _, item := range items {
		if i, ok := index[item.SubOrderID]; ok {
			subs[i].OrderProducts = append(subs[i].OrderProducts, item)
		}
	}

	history, err := conn.Query(ctx, `SELECT sub_order_id::text, status, created_at
		FROM sub_order_status_history
		WHERE sub_order_id::text = ANY($1) ORDER BY sub_order_id, created_at`, ids)
	if err != nil {
		return fmt.Errorf("status history: %w", err)
	}
	defer history.Close()
	for history.Next() {
		var (
			subID  string
			change stats.StatusChange
		)
		if err := history.Scan(&subID, &change.Status, &change.ChangedAt); err != nil {
			return fmt.Errorf("scan status history: %w", err)
		}
		if i, ok := index[subID]; ok {
			subs[i].StatusHistory = append(subs[i].StatusHistory, change)
		}
	}
	return history.Err()
}
