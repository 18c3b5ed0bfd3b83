// Package catalog reads product data for carts and dashboard counts. The
// storefront owns products; this service only reads them.
package catalog

import (
	"context"
	"sync"

	"github.com/ariefcatur/go-shop-settlement/internal/cart"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Reader interface {
	// Products returns the known subset of ids; unknown ids are simply absent.
	Products(ctx context.Context, ids []string) (map[string]cart.Product, error)
	Count(ctx context.Context) (int, error)
}

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Products(ctx context.Context, ids []string) (map[string]cart.Product, error) {
	out := make(map[string]cart.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.DB.Query(ctx, `SELECT id, name, price::text, image FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p cart.Product
		var price string
		if err := rows.Scan(&p.ID, &p.Name, &price, &p.Image); err != nil {
			return nil, err
		}
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (r *Repo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&n)
	return n, err
}

// Upsert is used by seeding and tests.
func (r *Repo) Upsert(ctx context.Context, p cart.Product) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO products(id, name, price, image) VALUES ($1, $2, $3::text::numeric, $4)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, price=EXCLUDED.price, image=EXCLUDED.image`,
		p.ID, p.Name, p.Price.String(), p.Image)
	return err
}

// Memory backs ORDER_STORE=memory.
type Memory struct {
	mu       sync.RWMutex
	products map[string]cart.Product
}

func NewMemory(products ...cart.Product) *Memory {
	m := &Memory{products: make(map[string]cart.Product, len(products))}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *Memory) Put(p cart.Product) {
	m.mu.Lock()
	m.products[p.ID] = p
	m.mu.Unlock()
}

func (m *Memory) Products(_ context.Context, ids []string) (map[string]cart.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]cart.Product, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (m *Memory) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.products), nil
}

// PricesOf adapts a product set to cart.PriceLookup.
func PricesOf(products map[string]cart.Product) cart.Prices {
	prices := make(cart.Prices, len(products))
	for id, p := range products {
		prices[id] = p.Price
	}
	return prices
}
