package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"medstore/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const updateOrderQuery = `
	UPDATE orders SET
		payment_status = :payment_status,
		order_status = :order_status,
		proof_filename = :proof_filename,
		proof_url = :proof_url,
		proof_uploaded_at = :proof_uploaded_at,
		transaction_id = :transaction_id,
		payment_intent_id = :payment_intent_id,
		verified_by = :verified_by,
		verified_at = :verified_at,
		payment_notes = :payment_notes,
		failure_reason = :failure_reason,
		paid_at = :paid_at,
		delivered_at = :delivered_at,
		whatsapp_confirmed = :whatsapp_confirmed,
		whatsapp_confirmed_at = :whatsapp_confirmed_at,
		updated_at = NOW()
	WHERE id = :id`

// NextOrderSequence atomically increments and returns the counter for name and year
func (s *Store) NextOrderSequence(ctx context.Context, name string, year int) (int64, error) {
	var seq int64
	err := s.db.GetContext(ctx, &seq, `
		INSERT INTO counters (name, year, seq) VALUES ($1, $2, 1)
		ON CONFLICT (name, year) DO UPDATE SET seq = counters.seq + 1, updated_at = NOW()
		RETURNING seq`, name, year)
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter %s/%d: %w", name, year, err)
	}
	return seq, nil
}

// CreateOrder inserts an order and its items in one transaction
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO orders (id, order_number, user_id, customer_name, email, phone, address, city,
				total_amount, payment_method, payment_status, order_status, idempotency_key)
			VALUES (:id, :order_number, :user_id, :customer_name, :email, :phone, :address, :city,
				:total_amount, :payment_method, :payment_status, :order_status, :idempotency_key)
			RETURNING created_at, updated_at`

		rows, err := sqlx.NamedQueryContext(ctx, tx, query, order)
		if err != nil {
			return mapWriteErr(err, "order already exists")
		}
		if rows.Next() {
			err = rows.Scan(&order.CreatedAt, &order.UpdatedAt)
		}
		rows.Close()
		if err != nil {
			return err
		}

		for i := range order.Items {
			item := &order.Items[i]
			if item.ID == "" {
				item.ID = uuid.New().String()
			}
			item.OrderID = order.ID
			_, err := tx.ExecContext(ctx, `
				INSERT INTO order_items (id, order_id, product_id, product_name, quantity, unit_price)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				item.ID, item.OrderID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice)
			if err != nil {
				return fmt.Errorf("failed to insert order item: %w", err)
			}
		}
		return nil
	})
}

// GetOrderByID retrieves an order with its items
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "order "+id)
	}
	if err := s.loadItems(ctx, s.db, []*models.Order{&order}); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key.
// Returns nil without error when no order carries the key.
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE idempotency_key = $1", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadItems(ctx, s.db, []*models.Order{&order}); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByPaymentIntentID retrieves the order a card charge belongs to
func (s *Store) GetOrderByPaymentIntentID(ctx context.Context, intentID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE payment_intent_id = $1", intentID)
	if err != nil {
		return nil, notFound(err, "order for payment intent "+intentID)
	}
	if err := s.loadItems(ctx, s.db, []*models.Order{&order}); err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders returns orders newest first
func (s *Store) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.OrderStatus != "" {
		args = append(args, filter.OrderStatus)
		conds = append(conds, fmt.Sprintf("order_status = $%d", len(args)))
	}
	if filter.PaymentStatus != "" {
		args = append(args, filter.PaymentStatus)
		conds = append(conds, fmt.Sprintf("payment_status = $%d", len(args)))
	}

	query := "SELECT * FROM orders"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	orders := []models.Order{}
	if err := s.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, notFound(err, "orders")
	}

	refs := make([]*models.Order, len(orders))
	for i := range orders {
		refs[i] = &orders[i]
	}
	if err := s.loadItems(ctx, s.db, refs); err != nil {
		return nil, err
	}
	return orders, nil
}

// MutateOrder locks the order row, lets fn change it, and writes it back.
// When fn returns an error nothing is written.
func (s *Store) MutateOrder(ctx context.Context, id string, fn func(order *models.Order) error) (*models.Order, error) {
	var out *models.Order
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		order, err := s.lockOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(order); err != nil {
			return err
		}
		if err := updateOrder(ctx, tx, order); err != nil {
			return err
		}
		out = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ConfirmPayment marks the order paid and decrements stock for every line
// as one transaction. The order row and then the product rows are locked in
// id order. An order that is already paid is returned with applied=false
// and nothing changes; a shortage on any line aborts the whole confirmation.
func (s *Store) ConfirmPayment(ctx context.Context, id string, params models.ConfirmPayment) (*models.Order, bool, error) {
	var (
		out     *models.Order
		applied bool
	)

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		order, err := s.lockOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		out = order
		if order.PaymentStatus == models.PaymentStatusPaid {
			return nil
		}

		if err := order.MarkPaid(params); err != nil {
			return err
		}

		var levels []models.StockLevel
		err = tx.SelectContext(ctx, &levels, `
			SELECT id, name, stock FROM products
			WHERE id = ANY($1::uuid[])
			ORDER BY id
			FOR UPDATE`, pq.Array(models.ItemProductIDs(order.Items)))
		if err != nil {
			return fmt.Errorf("failed to lock products: %w", err)
		}

		plan, err := models.PlanStockDecrement(order.Items, levels)
		if err != nil {
			return err
		}

		for _, d := range plan {
			res, err := tx.ExecContext(ctx, `
				UPDATE products SET stock = stock - $1, updated_at = NOW()
				WHERE id = $2 AND stock >= $1`, d.Quantity, d.ProductID)
			if err := expectOne(res, err, "stock for product "+d.ProductID); err != nil {
				return fmt.Errorf("failed to decrement stock: %w", err)
			}
		}

		if err := updateOrder(ctx, tx, order); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, applied, nil
}

// GetDashboardStats aggregates the admin overview figures
func (s *Store) GetDashboardStats(ctx context.Context, lowStockThreshold int) (*models.DashboardStats, error) {
	var stats models.DashboardStats
	err := s.db.GetContext(ctx, &stats, `
		SELECT
			(SELECT COUNT(*) FROM orders) AS total_orders,
			(SELECT COUNT(*) FROM orders WHERE order_status = 'PENDING') AS pending_orders,
			(SELECT COUNT(*) FROM orders WHERE payment_status = 'PAYMENT_PENDING') AS awaiting_payment,
			(SELECT COUNT(*) FROM orders WHERE payment_status = 'PAID') AS paid_orders,
			(SELECT COALESCE(SUM(total_amount), 0) FROM orders WHERE payment_status = 'PAID') AS revenue,
			(SELECT COUNT(*) FROM products) AS total_products,
			(SELECT COUNT(*) FROM products WHERE stock <= $1) AS low_stock_products,
			(SELECT COUNT(*) FROM users) AS total_users,
			(SELECT COUNT(*) FROM complaints WHERE status <> 'resolved') AS open_complaints`,
		lowStockThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to load dashboard stats: %w", err)
	}
	return &stats, nil
}

func (s *Store) lockOrder(ctx context.Context, tx *sqlx.Tx, id string) (*models.Order, error) {
	var order models.Order
	if err := tx.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", id); err != nil {
		return nil, notFound(err, "order "+id)
	}
	if err := s.loadItems(ctx, tx, []*models.Order{&order}); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) loadItems(ctx context.Context, q sqlx.QueryerContext, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	byID := make(map[string]*models.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
		o.Items = []models.OrderItem{}
	}

	var items []models.OrderItem
	err := sqlx.SelectContext(ctx, q, &items,
		"SELECT * FROM order_items WHERE order_id = ANY($1::uuid[]) ORDER BY product_name",
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}

	for _, item := range items {
		if o, ok := byID[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	return nil
}

func updateOrder(ctx context.Context, tx *sqlx.Tx, order *models.Order) error {
	res, err := tx.NamedExecContext(ctx, updateOrderQuery, order)
	if err != nil {
		return mapWriteErr(err, "payment intent already linked to another order")
	}
	if err := expectOne(res, nil, "order "+order.ID); err != nil {
		return err
	}
	order.UpdatedAt = time.Now()
	return nil
}
