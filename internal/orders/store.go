package orders

import (
	"context"

	"github.com/ariefcatur/go-shop-settlement/internal/payment"
)

// Filter selects either every order (admin) or one customer's orders.
type Filter struct {
	user string
	all  bool
}

func AllOrders() Filter { return Filter{all: true} }

func ByUser(email string) Filter { return Filter{user: email} }

// User returns the customer email and whether the filter is customer-scoped.
func (f Filter) User() (string, bool) { return f.user, !f.all }

// Store is the single source of truth for orders. Implementations serialize
// SetStatus per order id and return copies callers may mutate.
type Store interface {
	Create(ctx context.Context, o *Order) (*Order, error)
	Get(ctx context.Context, id string) (*Order, error)
	// List returns newest first.
	List(ctx context.Context, f Filter) ([]Order, error)
	SetStatus(ctx context.Context, id string, to Status) (updated *Order, from Status, err error)
	FindByPayment(ctx context.Context, method payment.Method, ref string) (*Order, error)

	Count(ctx context.Context) (int, error)
	Recent(ctx context.Context, n int) ([]Order, error)
	DailySales(ctx context.Context, days int) ([]DailySales, error)
}
