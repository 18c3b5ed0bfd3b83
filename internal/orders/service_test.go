package orders

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ariefcatur/go-shop-settlement/internal/apperr"
	"github.com/ariefcatur/go-shop-settlement/internal/payment"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore wraps MemoryStore to observe writes.
type countingStore struct {
	*MemoryStore
	creates atomic.Int32
}

func (c *countingStore) Create(ctx context.Context, o *Order) (*Order, error) {
	c.creates.Add(1)
	return c.MemoryStore.Create(ctx, o)
}

type fakeVerifier struct {
	conf  payment.Confirmation
	err   error
	calls atomic.Int32
}

func (f *fakeVerifier) Verify(_ context.Context, method payment.Method, ref string) (payment.Confirmation, error) {
	f.calls.Add(1)
	if f.err != nil {
		return payment.Confirmation{}, f.err
	}
	c := f.conf
	c.Method, c.Reference = method, ref
	return c, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	placed  []Order
	changes []Status
}

func (r *recordingNotifier) OrderPlaced(_ context.Context, o Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.placed = append(r.placed, o)
}

func (r *recordingNotifier) StatusChanged(_ context.Context, o Order, from Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, from, o.Status)
}

func newTestService(v Verifier, opts ...Option) (*Service, *countingStore) {
	store := &countingStore{MemoryStore: NewMemoryStore()}
	return NewService(store, v, zerolog.Nop(), opts...), store
}

func placeRequest(method, ref string) PlaceRequest {
	return PlaceRequest{
		User:      "a@x.com",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Mobile:    "5551234",
		Address:   "12 Analytical Way",
		Items: []OrderItem{
			{ProductID: "P1", Size: "M", Quantity: 2, Price: decimal.NewFromInt(20), Name: "Tee"},
		},
		Total:         decimal.NewFromInt(40),
		PaymentMethod: method,
		PaymentRef:    ref,
	}
}

func TestPlace_CashOnDelivery(t *testing.T) {
	v := &fakeVerifier{}
	n := &recordingNotifier{}
	svc, store := newTestService(v, WithNotifier(n))

	o, err := svc.Place(context.Background(), placeRequest("cod", ""))
	require.NoError(t, err)

	assert.Equal(t, StatusPending, o.Status)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "P1", o.Items[0].ProductID)
	assert.True(t, decimal.NewFromInt(40).Equal(o.Total))
	assert.Zero(t, v.calls.Load(), "cash never reaches the verifier")
	assert.EqualValues(t, 1, store.creates.Load())
	require.Len(t, n.placed, 1)
	assert.Equal(t, o.ID, n.placed[0].ID)
}

func TestPlace_StripeSettledIsPaid(t *testing.T) {
	v := &fakeVerifier{conf: payment.Confirmation{State: "succeeded", Settled: true}}
	svc, _ := newTestService(v)

	o, err := svc.Place(context.Background(), placeRequest("stripe", "pi_1"))
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, o.Status)
	assert.Equal(t, "pi_1", o.PaymentRef)
	assert.EqualValues(t, 1, v.calls.Load())
}

func TestPlace_StripeNotSettledWritesNothing(t *testing.T) {
	v := &fakeVerifier{conf: payment.Confirmation{State: "requires_payment_method"}}
	n := &recordingNotifier{}
	svc, store := newTestService(v, WithNotifier(n))

	_, err := svc.Place(context.Background(), placeRequest("stripe", "pi_2"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindPaymentNotSettled, apperr.KindOf(err))
	assert.Zero(t, store.creates.Load())
	assert.Empty(t, n.placed)
}

func TestPlace_RazorpayUnavailableWritesNothing(t *testing.T) {
	v := &fakeVerifier{err: fmt.Errorf("razorpay: %w: dial tcp: timeout", payment.ErrUnavailable)}
	svc, store := newTestService(v)

	_, err := svc.Place(context.Background(), placeRequest("razorpay", "pay_1"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindPaymentUnavailable, apperr.KindOf(err))
	assert.Zero(t, store.creates.Load())
}

func TestPlace_ValidationBeforeVerification(t *testing.T) {
	v := &fakeVerifier{conf: payment.Confirmation{Settled: true}}
	svc, store := newTestService(v)

	req := placeRequest("stripe", "")
	req.FirstName = ""
	req.Items[0].Quantity = 0

	_, err := svc.Place(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.ElementsMatch(t, []string{"firstName", "paymentDetails", "items[0].quantity"}, apperr.FieldsOf(err))
	assert.Zero(t, v.calls.Load())
	assert.Zero(t, store.creates.Load())
}

func TestPlace_RejectsUnknownMethodAndEmptyItems(t *testing.T) {
	svc, _ := newTestService(&fakeVerifier{})
	req := placeRequest("paypal", "")
	req.Items = nil

	_, err := svc.Place(context.Background(), req)
	assert.ElementsMatch(t, []string{"paymentMethod", "items"}, apperr.FieldsOf(err))
}

func TestPlace_TotalMustMatchItems(t *testing.T) {
	svc, store := newTestService(&fakeVerifier{})
	req := placeRequest("cod", "")
	req.Total = decimal.NewFromInt(39)

	_, err := svc.Place(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, []string{"total"}, apperr.FieldsOf(err))
	assert.Zero(t, store.creates.Load())
}

func TestPlace_RejectsAmountsTheStoreCannotHold(t *testing.T) {
	cases := map[string]struct {
		mutate func(*PlaceRequest)
		fields []string
	}{
		"sub-cent price": {
			mutate: func(r *PlaceRequest) {
				r.Items[0].Price = decimal.RequireFromString("0.333")
				r.Items[0].Quantity = 3
				r.Total = decimal.RequireFromString("0.999")
			},
			fields: []string{"items[0].price"},
		},
		"sub-cent total": {
			mutate: func(r *PlaceRequest) {
				r.Total = decimal.RequireFromString("40.001")
			},
			fields: []string{"total"},
		},
		"total out of range": {
			mutate: func(r *PlaceRequest) {
				r.Items[0].Price = decimal.NewFromInt(5_000_000_000)
				r.Total = decimal.NewFromInt(10_000_000_000)
			},
			fields: []string{"total"},
		},
		"quantity out of range": {
			mutate: func(r *PlaceRequest) {
				r.Items[0].Price = decimal.RequireFromString("0.01")
				r.Items[0].Quantity = math.MaxInt32 + 1
				r.Total = decimal.RequireFromString("21474836.48")
			},
			fields: []string{"items[0].quantity"},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc, store := newTestService(&fakeVerifier{})
			req := placeRequest("cod", "")
			tc.mutate(&req)

			_, err := svc.Place(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Equal(t, tc.fields, apperr.FieldsOf(err))
			assert.Zero(t, store.creates.Load())
		})
	}
}

func TestPlace_TrailingZerosAreWholeCents(t *testing.T) {
	svc, _ := newTestService(&fakeVerifier{})
	req := placeRequest("cod", "")
	req.Items[0].Price = decimal.RequireFromString("19.990")
	req.Total = decimal.RequireFromString("39.98")

	o, err := svc.Place(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("39.98").Equal(o.Total))
}

func TestPlace_ProductIDFormat(t *testing.T) {
	svc, _ := newTestService(&fakeVerifier{}, WithProductIDFormat(ObjectIDFormat))

	_, err := svc.Place(context.Background(), placeRequest("cod", ""))
	assert.Equal(t, []string{"items[0].productId"}, apperr.FieldsOf(err))

	req := placeRequest("cod", "")
	req.Items[0].ProductID = "64b7f0c2a1d4e5f6a7b8c9d0"
	_, err = svc.Place(context.Background(), req)
	assert.NoError(t, err)
}

func TestPlace_ItemsAreSnapshotted(t *testing.T) {
	svc, _ := newTestService(&fakeVerifier{})
	req := placeRequest("cod", "")

	o, err := svc.Place(context.Background(), req)
	require.NoError(t, err)

	req.Items[0].Price = decimal.NewFromInt(999)
	got, err := svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(20).Equal(got.Items[0].Price))
}

func TestPlace_ReplayedReferenceReturnsExistingOrder(t *testing.T) {
	v := &fakeVerifier{conf: payment.Confirmation{State: "captured", Settled: true}}
	svc, store := newTestService(v)
	ctx := context.Background()

	first, err := svc.Place(ctx, placeRequest("razorpay", "pay_9"))
	require.NoError(t, err)

	again, err := svc.Place(ctx, placeRequest("razorpay", "pay_9"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.EqualValues(t, 1, store.creates.Load())
	assert.EqualValues(t, 1, v.calls.Load())

	other := placeRequest("razorpay", "pay_9")
	other.User = "b@y.com"
	_, err = svc.Place(ctx, other)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestPlace_ConcurrentSameReferenceYieldsOneOrder(t *testing.T) {
	v := &fakeVerifier{conf: payment.Confirmation{State: "succeeded", Settled: true}}
	svc, store := newTestService(v)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, err := svc.Place(ctx, placeRequest("stripe", "pi_race"))
			if assert.NoError(t, err) {
				ids[i] = o.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	n, _ := store.Count(ctx)
	assert.Equal(t, 1, n)
}

func TestListForUser_Scoped(t *testing.T) {
	svc, _ := newTestService(&fakeVerifier{})
	ctx := context.Background()

	_, err := svc.Place(ctx, placeRequest("cod", ""))
	require.NoError(t, err)

	mine, err := svc.ListForUser(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	theirs, err := svc.ListForUser(ctx, "b@y.com")
	require.NoError(t, err)
	assert.Empty(t, theirs)

	_, err = svc.ListForUser(ctx, "  ")
	assert.Equal(t, []string{"user"}, apperr.FieldsOf(err))

	upper, err := svc.ListForUser(ctx, " A@X.com ")
	require.NoError(t, err)
	assert.Len(t, upper, 1)

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPlace_StoresNormalizedEmail(t *testing.T) {
	svc, _ := newTestService(&fakeVerifier{})
	ctx := context.Background()
	req := placeRequest("cod", "")
	req.User = "  Ada@Example.COM "

	o, err := svc.Place(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", o.User)

	mine, err := svc.ListForUser(ctx, "ada@example.com")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, o.ID, mine[0].ID)
}

func TestGet_Errors(t *testing.T) {
	svc, _ := newTestService(&fakeVerifier{})

	_, err := svc.Get(context.Background(), "")
	assert.Equal(t, []string{"orderId"}, apperr.FieldsOf(err))

	_, err = svc.Get(context.Background(), "nope")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestUpdateStatus(t *testing.T) {
	n := &recordingNotifier{}
	svc, _ := newTestService(&fakeVerifier{}, WithNotifier(n))
	ctx := context.Background()
	o, err := svc.Place(ctx, placeRequest("cod", ""))
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(ctx, o.ID, "in_transit")
	require.NoError(t, err)
	assert.Equal(t, StatusInTransit, updated.Status)
	assert.Equal(t, []Status{StatusPending, StatusInTransit}, n.changes)

	_, err = svc.UpdateStatus(ctx, o.ID, "paid")
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))

	_, err = svc.UpdateStatus(ctx, o.ID, "shipped")
	assert.Equal(t, []string{"status"}, apperr.FieldsOf(err))

	_, err = svc.UpdateStatus(ctx, "missing", "cancelled")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Len(t, n.changes, 2)
}
