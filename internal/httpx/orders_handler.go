package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-shop-settlement/internal/apperr"
	"github.com/ariefcatur/go-shop-settlement/internal/orders"
	"github.com/ariefcatur/go-shop-settlement/internal/payment"
	"github.com/ariefcatur/go-shop-settlement/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/hlog"
	"github.com/shopspring/decimal"
)

// CartClearer empties the server-side cart once its order is placed.
type CartClearer interface {
	Clear(ctx context.Context, cartID string) error
}

type OrdersHandler struct {
	Orders *orders.Service
	Auth   *Auth
	Redis  *redis.Client // tracker cache, optional
	Carts  CartClearer   // optional
	// Limit wraps the create route, optional.
	Limit func(http.Handler) http.Handler
	// TrustClientEmail accepts the email in the body or query when no token is sent.
	TrustClientEmail bool
}

type paymentDetails struct {
	PaymentIntentID        string `json:"paymentIntentId"`
	RazorpayPaymentID      string `json:"razorpayPaymentId"`
	RazorpayPaymentIDSnake string `json:"razorpay_payment_id"`
}

func (d *paymentDetails) reference(method string) string {
	if d == nil {
		return ""
	}
	switch payment.Method(method) {
	case payment.MethodStripe:
		return d.PaymentIntentID
	case payment.MethodRazorpay:
		if d.RazorpayPaymentID != "" {
			return d.RazorpayPaymentID
		}
		return d.RazorpayPaymentIDSnake
	}
	return ""
}

type createOrderReq struct {
	User           string             `json:"user"`
	FirstName      string             `json:"firstName"`
	LastName       string             `json:"lastName"`
	Mobile         string             `json:"mobile"`
	Items          []orders.OrderItem `json:"items"`
	Total          decimal.Decimal    `json:"total"`
	Address        string             `json:"address"`
	PaymentMethod  string             `json:"paymentMethod"`
	PaymentDetails *paymentDetails    `json:"paymentDetails"`
	CartID         string             `json:"cartId"`
}

type updateStatusReq struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	limit := h.Limit
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}
	r.Route("/api/order", func(r chi.Router) {
		r.With(limit).Post("/create", h.createOrder)
		r.With(h.Auth.RequireAdmin).Get("/list", h.listOrders)
		r.Get("/user", h.userOrders)
		r.Get("/detail", h.orderDetail)
		r.With(h.Auth.RequireAdmin).Post("/update-status", h.updateStatus)
	})
}

// identity binds the claimed email to the caller. A valid customer token must
// match it; without a token the claim stands only when client emails are trusted.
func (h *OrdersHandler) identity(r *http.Request, claimed string) (string, error) {
	claims, err := h.Auth.fromRequest(r)
	if err != nil {
		return "", err
	}
	claimed = strings.TrimSpace(claimed)
	if claims == nil {
		if !h.TrustClientEmail {
			return "", apperr.Unauthorized("sign in required")
		}
		return claimed, nil
	}
	if claimed == "" {
		return claims.Email, nil
	}
	if claims.Role != RoleAdmin && !strings.EqualFold(claims.Email, claimed) {
		return "", apperr.Forbidden("user does not match signed-in account")
	}
	return claimed, nil
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := h.identity(r, req.User)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.Orders.Place(ctx, orders.PlaceRequest{
		User:          user,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Mobile:        req.Mobile,
		Address:       req.Address,
		Items:         req.Items,
		Total:         req.Total,
		PaymentMethod: req.PaymentMethod,
		PaymentRef:    req.PaymentDetails.reference(req.PaymentMethod),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	if req.CartID != "" && h.Carts != nil {
		if err := h.Carts.Clear(ctx, req.CartID); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Str("cart_id", req.CartID).Msg("cart not cleared after order")
		}
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "order": o})
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	list, err := h.Orders.ListAll(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "orders": list})
}

func (h *OrdersHandler) userOrders(w http.ResponseWriter, r *http.Request) {
	user, err := h.identity(r, r.URL.Query().Get("user"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	list, err := h.Orders.ListForUser(ctx, user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "orders": list})
}

func (h *OrdersHandler) orderDetail(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(r.URL.Query().Get("orderId"))
	if orderID == "" {
		writeError(w, r, apperr.Validationf("Missing orderId.", "orderId"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) cache
	key := fmt.Sprintf(redisx.KeyOrder, orderID)
	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, key).Bytes(); err == nil && len(s) > 0 {
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": json.RawMessage(s)})
			return
		}
	}

	// 2) store
	o, err := h.Orders.Get(ctx, orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.Redis != nil {
		if b, err := json.Marshal(o); err == nil {
			_ = h.Redis.Set(ctx, key, b, redisx.TTLOrderCache).Err()
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": o})
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.UpdateStatus(ctx, req.OrderID, req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.Redis != nil {
		if err := h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyOrder, o.ID)).Err(); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Str("order_id", o.ID).Msg("tracker cache not dropped")
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Order status updated successfully.",
		"order":   o,
	})
}
