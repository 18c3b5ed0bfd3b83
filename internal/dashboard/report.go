// Package dashboard computes the admin summary. Every figure is computed
// independently and falls back to zero when its source fails.
package dashboard

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ariefcatur/go-shop-settlement/internal/orders"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	recentOrders = 5
	salesDays    = 7
)

type Counter interface {
	Count(ctx context.Context) (int, error)
}

// OrderSource is the read side of orders.Store the report needs.
type OrderSource interface {
	Counter
	Recent(ctx context.Context, n int) ([]orders.Order, error)
	DailySales(ctx context.Context, days int) ([]orders.DailySales, error)
}

type Report struct {
	TotalOrders   int                 `json:"totalOrders"`
	TotalProducts int                 `json:"totalProducts"`
	TotalUsers    int                 `json:"totalUsers"`
	RecentOrders  []orders.Order      `json:"recentOrders"`
	OrderStats    []orders.DailySales `json:"orderStats"`
	GeneratedAt   time.Time           `json:"generatedAt"`

	// Degraded is set when any figure fell back to its zero value.
	Degraded bool `json:"-"`
}

type Reporter struct {
	orders   OrderSource
	products Counter
	users    Counter
	log      zerolog.Logger
}

func NewReporter(o OrderSource, products, users Counter, log zerolog.Logger) *Reporter {
	return &Reporter{orders: o, products: products, users: users, log: log}
}

// Report never fails; a broken source shows up as a zero figure and a warning.
func (r *Reporter) Report(ctx context.Context) Report {
	rep := Report{
		RecentOrders: []orders.Order{},
		OrderStats:   []orders.DailySales{},
		GeneratedAt:  time.Now().UTC(),
	}

	// each goroutine writes a distinct field; errors are absorbed, so Wait never returns one
	var g errgroup.Group
	var degraded atomic.Bool
	g.Go(func() error {
		rep.TotalOrders = r.count(ctx, "orders", r.orders, &degraded)
		return nil
	})
	g.Go(func() error {
		rep.TotalProducts = r.count(ctx, "products", r.products, &degraded)
		return nil
	})
	g.Go(func() error {
		rep.TotalUsers = r.count(ctx, "users", r.users, &degraded)
		return nil
	})
	g.Go(func() error {
		recent, err := r.orders.Recent(ctx, recentOrders)
		if err != nil {
			r.log.Warn().Err(err).Str("figure", "recentOrders").Msg("dashboard figure degraded")
			degraded.Store(true)
			return nil
		}
		if recent != nil {
			rep.RecentOrders = recent
		}
		return nil
	})
	g.Go(func() error {
		sales, err := r.orders.DailySales(ctx, salesDays)
		if err != nil {
			r.log.Warn().Err(err).Str("figure", "orderStats").Msg("dashboard figure degraded")
			degraded.Store(true)
			return nil
		}
		if sales != nil {
			rep.OrderStats = sales
		}
		return nil
	})
	_ = g.Wait()
	rep.Degraded = degraded.Load()
	return rep
}

func (r *Reporter) count(ctx context.Context, name string, c Counter, degraded *atomic.Bool) int {
	if c == nil {
		return 0
	}
	n, err := c.Count(ctx)
	if err != nil {
		r.log.Warn().Err(err).Str("figure", name).Msg("dashboard figure degraded")
		degraded.Store(true)
		return 0
	}
	return n
}
