package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-shop-settlement/internal/apperr"
	"github.com/ariefcatur/go-shop-settlement/internal/payment"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PgStore keeps orders in Postgres. SetStatus locks the row (FOR UPDATE) so
// concurrent admins on the same order are serialized.
type PgStore struct{ DB *pgxpool.Pool }

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const orderColumns = `id, user_email, first_name, last_name, mobile, address, total::text,
	status, payment_method, payment_ref, created_at, updated_at`

func (r *PgStore) Create(ctx context.Context, o *Order) (*Order, error) {
	c, err := prepare(o, time.Now().Truncate(time.Microsecond))
	if err != nil {
		return nil, err
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, user_email, first_name, last_name, mobile, address, total,
		                   status, payment_method, payment_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::text::numeric, $8, $9, $10, $11, $11)`,
		c.ID, c.User, c.FirstName, c.LastName, c.Mobile, c.Address, c.Total.String(),
		string(c.Status), string(c.PaymentMethod), c.PaymentRef, c.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, apperr.Conflict("order or payment reference already exists")
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}

	for i, it := range c.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items(order_id, position, product_id, size, quantity, price, name, image)
			VALUES ($1, $2, $3, $4, $5, $6::text::numeric, $7, $8)`,
			c.ID, i, it.ProductID, it.Size, it.Quantity, it.Price.String(), it.Name, it.Image,
		)
		if err != nil {
			return nil, fmt.Errorf("insert order item %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *PgStore) Get(ctx context.Context, id string) (*Order, error) {
	return loadOrder(ctx, r.DB, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
}

func (r *PgStore) FindByPayment(ctx context.Context, method payment.Method, ref string) (*Order, error) {
	return loadOrder(ctx, r.DB,
		`SELECT `+orderColumns+` FROM orders WHERE payment_method=$1 AND payment_ref=$2 AND payment_ref <> ''`,
		string(method), ref)
}

func (r *PgStore) List(ctx context.Context, f Filter) ([]Order, error) {
	if user, scoped := f.User(); scoped {
		return loadOrders(ctx, r.DB,
			`SELECT `+orderColumns+` FROM orders WHERE user_email=$1 ORDER BY created_at DESC, id DESC`, user)
	}
	return loadOrders(ctx, r.DB, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, id DESC`)
}

func (r *PgStore) Recent(ctx context.Context, n int) ([]Order, error) {
	return loadOrders(ctx, r.DB,
		`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, id DESC LIMIT $1`, n)
}

func (r *PgStore) SetStatus(ctx context.Context, id string, to Status) (*Order, Status, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var s string
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, id).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", apperr.NotFound("order not found")
	}
	if err != nil {
		return nil, "", err
	}
	from := Status(s)
	if !CanTransition(from, to) {
		return nil, from, apperr.InvalidTransition("cannot move order from " + s + " to " + string(to))
	}

	if _, err := tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, id, string(to)); err != nil {
		return nil, from, err
	}
	updated, err := loadOrder(ctx, tx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
	if err != nil {
		return nil, from, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, from, err
	}
	return updated, from, nil
}

func (r *PgStore) Count(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&n)
	return n, err
}

func (r *PgStore) DailySales(ctx context.Context, days int) ([]DailySales, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, SUM(total)::text, COUNT(*)
		FROM orders
		GROUP BY day
		ORDER BY day DESC
		LIMIT $1`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailySales
	for rows.Next() {
		var d DailySales
		var total string
		if err := rows.Scan(&d.Day, &total, &d.Count); err != nil {
			return nil, err
		}
		if d.Total, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("parse daily total %q: %w", total, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var total, status, method string
	if err := row.Scan(&o.ID, &o.User, &o.FirstName, &o.LastName, &o.Mobile, &o.Address, &total,
		&status, &method, &o.PaymentRef, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if o.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("parse total %q: %w", total, err)
	}
	o.Status = Status(status)
	o.PaymentMethod = payment.Method(method)
	return &o, nil
}

func loadOrder(ctx context.Context, q querier, sql string, args ...any) (*Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("order not found")
	}
	if err != nil {
		return nil, err
	}
	items, err := loadItems(ctx, q, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return o, nil
}

func loadOrders(ctx context.Context, q querier, sql string, args ...any) ([]Order, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return []Order{}, nil
	}

	ids := make([]string, len(out))
	for i := range out {
		ids[i] = out[i].ID
	}
	items, err := loadItems(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

func loadItems(ctx context.Context, q querier, orderIDs []string) (map[string][]OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT order_id, product_id, size, quantity, price::text, name, image
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]OrderItem, len(orderIDs))
	for rows.Next() {
		var orderID, price string
		var it OrderItem
		if err := rows.Scan(&orderID, &it.ProductID, &it.Size, &it.Quantity, &price, &it.Name, &it.Image); err != nil {
			return nil, err
		}
		if it.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse item price %q: %w", price, err)
		}
		out[orderID] = append(out[orderID], it)
	}
	return out, rows.Err()
}
