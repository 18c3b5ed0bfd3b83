package orders

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-shop-settlement/internal/apperr"
	"github.com/ariefcatur/go-shop-settlement/internal/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type memEntry struct {
	order *Order
	seq   int64
}

// MemoryStore keeps orders in process. One mutex covers every order, which
// also serializes SetStatus per id.
type MemoryStore struct {
	mu        sync.RWMutex
	orders    map[string]*memEntry
	byPayment map[string]string
	seq       int64
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:    make(map[string]*memEntry),
		byPayment: make(map[string]string),
		now:       time.Now,
	}
}

// prepare validates and fills server-assigned fields.
func prepare(o *Order, now time.Time) (*Order, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	c := o.clone()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now.UTC()
	}
	c.UpdatedAt = c.CreatedAt
	if c.Status == "" {
		c.Status = InitialStatus(c.PaymentMethod)
	}
	return c, nil
}

func paymentKey(m payment.Method, ref string) string { return string(m) + ":" + ref }

func (s *MemoryStore) Create(_ context.Context, o *Order) (*Order, error) {
	c, err := prepare(o, s.now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[c.ID]; ok {
		return nil, apperr.Conflict("order id already exists")
	}
	if c.PaymentRef != "" {
		key := paymentKey(c.PaymentMethod, c.PaymentRef)
		if _, ok := s.byPayment[key]; ok {
			return nil, apperr.Conflict("payment reference already used")
		}
		s.byPayment[key] = c.ID
	}
	s.seq++
	s.orders[c.ID] = &memEntry{order: c, seq: s.seq}
	return c.clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.orders[id]
	if !ok {
		return nil, apperr.NotFound("order not found")
	}
	return e.order.clone(), nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]Order, error) {
	user, scoped := f.User()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted(func(o *Order) bool { return !scoped || o.User == user }, 0), nil
}

// sorted returns matching orders newest first; limit <= 0 means no limit.
func (s *MemoryStore) sorted(match func(*Order) bool, limit int) []Order {
	entries := make([]*memEntry, 0, len(s.orders))
	for _, e := range s.orders {
		if match(e.order) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.order.CreatedAt.Equal(b.order.CreatedAt) {
			return a.order.CreatedAt.After(b.order.CreatedAt)
		}
		return a.seq > b.seq
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]Order, 0, len(entries))
	for _, e := range entries {
		out = append(out, *e.order.clone())
	}
	return out
}

func (s *MemoryStore) SetStatus(_ context.Context, id string, to Status) (*Order, Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.orders[id]
	if !ok {
		return nil, "", apperr.NotFound("order not found")
	}
	from := e.order.Status
	if !CanTransition(from, to) {
		return nil, from, apperr.InvalidTransition("cannot move order from " + string(from) + " to " + string(to))
	}
	e.order.Status = to
	e.order.UpdatedAt = s.now().UTC()
	return e.order.clone(), from, nil
}

func (s *MemoryStore) FindByPayment(_ context.Context, method payment.Method, ref string) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPayment[paymentKey(method, ref)]
	if !ok {
		return nil, apperr.NotFound("no order for payment reference")
	}
	return s.orders[id].order.clone(), nil
}

func (s *MemoryStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders), nil
}

func (s *MemoryStore) Recent(_ context.Context, n int) ([]Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted(func(*Order) bool { return true }, n), nil
}

func (s *MemoryStore) DailySales(_ context.Context, days int) ([]DailySales, error) {
	s.mu.RLock()
	byDay := map[string]*DailySales{}
	for _, e := range s.orders {
		day := e.order.CreatedAt.UTC().Format(dayLayout)
		d, ok := byDay[day]
		if !ok {
			d = &DailySales{Day: day, Total: decimal.Zero}
			byDay[day] = d
		}
		d.Total = d.Total.Add(e.order.Total)
		d.Count++
	}
	s.mu.RUnlock()

	out := make([]DailySales, 0, len(byDay))
	for _, d := range byDay {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day > out[j].Day })
	if days > 0 && len(out) > days {
		out = out[:days]
	}
	return out, nil
}
