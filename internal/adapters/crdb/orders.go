package crdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cinebook/booking/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
)

// InsertOrder persists the order header and its items. Item inserts are
// batched into one round trip. The partial unique index on active
// (showtime_id, seat_id) turns a lost race into a unique violation,
// mapped to domain.ErrConflict by WithTx.
func (r *Repository) InsertOrder(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO orders (number, user_id, payment_method, status, total_price, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, order.Number, order.UserID, order.PaymentMethod, order.Status, order.TotalPrice,
		order.CreatedAt, order.ExpiresAt).Scan(&order.ID)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		snapshot, err := json.Marshal(item.Snapshot)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO order_items (order_id, showtime_id, seat_id, quantity, price, subtotal, status, snapshot)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		`, item.OrderID, item.ShowtimeID, item.SeatID, item.Quantity,
			item.Price, item.Subtotal, item.Status, snapshot).QueryRow(func(row pgx.Row) error {
			return row.Scan(&item.ID)
		})
	}
	return tx.SendBatch(ctx, batch).Close()
}

const orderColumns = `id, number, user_id, payment_method, status, total_price, created_at, expires_at, paid_at`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.Number, &o.UserID, &o.PaymentMethod, &o.Status,
		&o.TotalPrice, &o.CreatedAt, &o.ExpiresAt, &o.PaidAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrap(domain.ErrNotFound, "order")
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *Repository) loadItems(ctx context.Context, q querier, order *domain.Order) error {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, showtime_id, seat_id, quantity, price, subtotal, status, snapshot
		FROM order_items WHERE order_id = $1
		ORDER BY id
	`, order.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		var snapshot []byte
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ShowtimeID, &item.SeatID,
			&item.Quantity, &item.Price, &item.Subtotal, &item.Status, &snapshot); err != nil {
			return err
		}
		if err := json.Unmarshal(snapshot, &item.Snapshot); err != nil {
			return err
		}
		order.Items = append(order.Items, item)
	}
	return rows.Err()
}

func (r *Repository) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE id = $1
	`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, r.pool, order); err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrderForUpdate locks the order row so concurrent transitions (a
// user cancel racing the expiry worker) serialize; only one of them
// observes PENDING.
func (r *Repository) GetOrderForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Order, error) {
	order, err := scanOrder(tx.QueryRow(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE
	`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, tx, order); err != nil {
		return nil, err
	}
	return order, nil
}

type OrderFilter struct {
	UserID int64
	Status domain.OrderStatus
	Limit  int
	Offset int
}

func (r *Repository) ListOrders(ctx context.Context, f OrderFilter) ([]domain.Order, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE ($1 = 0 OR user_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`, f.UserID, string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range orders {
		if err := r.loadItems(ctx, r.pool, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *Repository) UpdateOrderStatus(ctx context.Context, tx pgx.Tx, id int64, status domain.OrderStatus, paidAt *time.Time) error {
	result, err := tx.Exec(ctx, `
		UPDATE orders SET status = $2, paid_at = COALESCE($3, paid_at) WHERE id = $1
	`, id, status, paidAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errors.Wrap(domain.ErrNotFound, "order")
	}
	return nil
}

func (r *Repository) UpdateItemStatuses(ctx context.Context, tx pgx.Tx, orderID int64, status domain.ItemStatus) error {
	_, err := tx.Exec(ctx, `
		UPDATE order_items SET status = $2 WHERE order_id = $1
	`, orderID, status)
	return err
}

// OverduePendingOrders lists PENDING orders whose deadline has passed,
// for the expiry worker's sweep backstop.
func (r *Repository) OverduePendingOrders(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM orders
		WHERE status = 'PENDING' AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
