package orders

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/ariefcatur/go-shop-settlement/internal/apperr"
	"github.com/ariefcatur/go-shop-settlement/internal/payment"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Verifier confirms settlement with the payment provider.
type Verifier interface {
	Verify(ctx context.Context, method payment.Method, reference string) (payment.Confirmation, error)
}

// Notifier hears about committed changes. Failures are the notifier's to log.
type Notifier interface {
	OrderPlaced(ctx context.Context, o Order)
	StatusChanged(ctx context.Context, o Order, from Status)
}

type Service struct {
	store      Store
	verifier   Verifier
	notifier   Notifier
	productIDs IDFormat
	log        zerolog.Logger
}

type Option func(*Service)

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithProductIDFormat(f IDFormat) Option { return func(s *Service) { s.productIDs = f } }

func NewService(store Store, verifier Verifier, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{store: store, verifier: verifier, productIDs: OpaqueFormat, log: log}
	for _, o := range opts {
		o(s)
	}
	return s
}

type PlaceRequest struct {
	User          string
	FirstName     string
	LastName      string
	Mobile        string
	Address       string
	Items         []OrderItem
	Total         decimal.Decimal
	PaymentMethod string
	PaymentRef    string
}

// Place validates, confirms payment, and only then writes the order. No order
// is written for an unconfirmed payment, and one confirmed reference yields at
// most one order.
func (s *Service) Place(ctx context.Context, req PlaceRequest) (*Order, error) {
	req.PaymentRef = strings.TrimSpace(req.PaymentRef)
	req.User = NormalizeEmail(req.User)
	method, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	if method != payment.MethodCOD {
		if existing, err := s.store.FindByPayment(ctx, method, req.PaymentRef); err == nil {
			return s.replay(existing, req.User)
		} else if apperr.KindOf(err) != apperr.KindNotFound {
			return nil, apperr.Internal("lookup payment reference", err)
		}

		conf, err := s.verifier.Verify(ctx, method, req.PaymentRef)
		switch {
		case errors.Is(err, payment.ErrUnknownMethod):
			return nil, apperr.Validationf("payment method not accepted", "paymentMethod")
		case errors.Is(err, payment.ErrUnavailable):
			return nil, apperr.PaymentUnavailable("payment provider unavailable, try again", err)
		case err != nil:
			return nil, apperr.Internal("verify payment", err)
		case !conf.Settled:
			s.log.Info().Str("method", string(method)).Str("reference", req.PaymentRef).
				Str("state", conf.State).Msg("order rejected: payment not settled")
			return nil, apperr.PaymentNotSettled(string(method) + " payment not completed")
		}
	}

	o := &Order{
		User:          req.User,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Mobile:        req.Mobile,
		Address:       req.Address,
		Items:         append([]OrderItem(nil), req.Items...),
		Total:         req.Total,
		Status:        InitialStatus(method),
		PaymentMethod: method,
	}
	if method != payment.MethodCOD {
		o.PaymentRef = req.PaymentRef
	}

	created, err := s.store.Create(ctx, o)
	if apperr.KindOf(err) == apperr.KindConflict && o.PaymentRef != "" {
		// lost a race with an identical submission
		existing, ferr := s.store.FindByPayment(ctx, method, o.PaymentRef)
		if ferr != nil {
			return nil, apperr.Internal("lookup payment reference", ferr)
		}
		return s.replay(existing, o.User)
	}
	if err != nil {
		if apperr.KindOf(err) == apperr.KindValidation {
			return nil, err
		}
		return nil, apperr.Internal("create order", err)
	}

	s.log.Info().Str("order_id", created.ID).Str("status", string(created.Status)).
		Str("method", string(method)).Str("total", created.Total.String()).Msg("order placed")
	if s.notifier != nil {
		s.notifier.OrderPlaced(ctx, *created)
	}
	return created, nil
}

// replay returns the order already recorded for a payment reference, but only to its owner.
func (s *Service) replay(existing *Order, user string) (*Order, error) {
	if !strings.EqualFold(existing.User, NormalizeEmail(user)) {
		return nil, apperr.Conflict("payment reference already used")
	}
	s.log.Info().Str("order_id", existing.ID).Str("reference", existing.PaymentRef).Msg("order replayed for payment reference")
	return existing, nil
}

func (s *Service) validate(req PlaceRequest) (payment.Method, error) {
	var bad []string
	for _, f := range []struct {
		name, value string
	}{
		{"user", req.User},
		{"firstName", req.FirstName},
		{"lastName", req.LastName},
		{"mobile", req.Mobile},
		{"address", req.Address},
	} {
		if strings.TrimSpace(f.value) == "" {
			bad = append(bad, f.name)
		}
	}

	method, ok := payment.ParseMethod(req.PaymentMethod)
	if !ok {
		bad = append(bad, "paymentMethod")
	} else if method != payment.MethodCOD && strings.TrimSpace(req.PaymentRef) == "" {
		bad = append(bad, "paymentDetails")
	}

	if len(req.Items) == 0 {
		bad = append(bad, "items")
	}
	for i, it := range req.Items {
		if !s.productIDs(it.ProductID) {
			bad = append(bad, itemField(i, "productId"))
		}
		if strings.TrimSpace(it.Size) == "" {
			bad = append(bad, itemField(i, "size"))
		}
		if it.Quantity <= 0 || it.Quantity > MaxQuantity {
			bad = append(bad, itemField(i, "quantity"))
		}
		if !ValidMoney(it.Price) {
			bad = append(bad, itemField(i, "price"))
		}
	}
	if len(bad) > 0 {
		return "", apperr.Validation(bad...)
	}

	if !ValidMoney(req.Total) {
		return "", apperr.Validationf("total must be a positive amount with at most two decimal places", "total")
	}
	if sum := ItemsTotal(req.Items); !sum.Equal(req.Total) {
		return "", apperr.Validationf("total "+req.Total.String()+" does not match items total "+sum.String(), "total")
	}
	return method, nil
}

// NormalizeEmail is the stored form of a customer email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func itemField(i int, name string) string {
	return "items[" + strconv.Itoa(i) + "]." + name
}

func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation("orderId")
	}
	return s.store.Get(ctx, id)
}

// ListAll is the administrator view.
func (s *Service) ListAll(ctx context.Context) ([]Order, error) {
	return s.store.List(ctx, AllOrders())
}

// ListForUser is scoped to one customer; an empty identity never widens to all orders.
func (s *Service) ListForUser(ctx context.Context, email string) ([]Order, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, apperr.Validation("user")
	}
	return s.store.List(ctx, ByUser(email))
}

// UpdateStatus is administrator-only; callers gate access.
func (s *Service) UpdateStatus(ctx context.Context, id, status string) (*Order, error) {
	var bad []string
	if strings.TrimSpace(id) == "" {
		bad = append(bad, "orderId")
	}
	to, ok := ParseStatus(status)
	if !ok {
		bad = append(bad, "status")
	}
	if len(bad) > 0 {
		return nil, apperr.Validation(bad...)
	}

	updated, from, err := s.store.SetStatus(ctx, id, to)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindNotFound, apperr.KindInvalidTransition:
			return nil, err
		}
		return nil, apperr.Internal("update order status", err)
	}

	s.log.Info().Str("order_id", id).Str("from", string(from)).Str("to", string(to)).Msg("order status updated")
	if s.notifier != nil {
		s.notifier.StatusChanged(ctx, *updated, from)
	}
	return updated, nil
}
