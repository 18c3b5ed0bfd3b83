package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-shop-settlement/internal/apperr"
	"github.com/ariefcatur/go-shop-settlement/internal/cart"
	"github.com/ariefcatur/go-shop-settlement/internal/catalog"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type CartStore interface {
	Load(ctx context.Context, cartID string) (cart.Cart, error)
	Save(ctx context.Context, cartID string, c cart.Cart) error
}

type CartHandler struct {
	Carts   CartStore
	Catalog catalog.Reader
}

type cartItemReq struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Quantity  *int   `json:"quantity"`
}

type cartResp struct {
	Success bool            `json:"success"`
	Cart    cart.Cart       `json:"cart"`
	Count   int             `json:"count"`
	Amount  decimal.Decimal `json:"amount"`
	Items   []cart.Line     `json:"items"`
	Notice  *cart.Notice    `json:"notice,omitempty"`
}

func (h *CartHandler) Register(r chi.Router) {
	r.Route("/api/cart/{cartID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Post("/items", h.add)
		r.Put("/items", h.setQuantity)
		r.Delete("/items", h.remove)
	})
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.Carts.Load(ctx, chi.URLParam(r, "cartID"))
	if err != nil {
		writeError(w, r, apperr.Internal("load cart", err))
		return
	}
	h.respond(ctx, w, r, c, nil)
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	var req cartItemReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	h.mutate(w, r, func(c cart.Cart) (cart.Notice, error) {
		return c.Add(req.ProductID, req.Size, qty)
	})
}

func (h *CartHandler) setQuantity(w http.ResponseWriter, r *http.Request) {
	var req cartItemReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Quantity == nil {
		writeError(w, r, apperr.Validation("quantity"))
		return
	}
	h.mutate(w, r, func(c cart.Cart) (cart.Notice, error) {
		return c.SetQuantity(req.ProductID, req.Size, *req.Quantity)
	})
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	productID, size := strings.TrimSpace(q.Get("productId")), q.Get("size")
	if productID == "" {
		writeError(w, r, apperr.Validation("productId"))
		return
	}
	h.mutate(w, r, func(c cart.Cart) (cart.Notice, error) {
		n, _ := c.Remove(productID, size)
		return n, nil
	})
}

// mutate is load, apply, save. Concurrent writers on one cart id are last-write-wins.
func (h *CartHandler) mutate(w http.ResponseWriter, r *http.Request, apply func(cart.Cart) (cart.Notice, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	cartID := chi.URLParam(r, "cartID")
	c, err := h.Carts.Load(ctx, cartID)
	if err != nil {
		writeError(w, r, apperr.Internal("load cart", err))
		return
	}
	notice, err := apply(c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Carts.Save(ctx, cartID, c); err != nil {
		writeError(w, r, apperr.Internal("save cart", err))
		return
	}

	var np *cart.Notice
	if notice.Kind != "" {
		np = &notice
	}
	h.respond(ctx, w, r, c, np)
}

func (h *CartHandler) respond(ctx context.Context, w http.ResponseWriter, r *http.Request, c cart.Cart, n *cart.Notice) {
	products, err := h.Catalog.Products(ctx, c.ProductIDs())
	if err != nil {
		writeError(w, r, apperr.Internal("load catalog", err))
		return
	}
	items := c.Snapshot(products)
	if items == nil {
		items = []cart.Line{}
	}
	writeJSON(w, http.StatusOK, cartResp{
		Success: true,
		Cart:    c,
		Count:   c.Count(),
		Amount:  c.Amount(catalog.PricesOf(products)),
		Items:   items,
		Notice:  n,
	})
}
