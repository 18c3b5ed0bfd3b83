// Package cart keeps the shopper's product -> size -> quantity selection and
// derives count and amount from it. A Cart is a plain value: callers load it,
// mutate it through the methods below, and persist it wherever they like.
package cart

import (
	"sort"
	"strings"

	"github.com/ariefcatur/go-shop-settlement/internal/apperr"
	"github.com/shopspring/decimal"
)

// Cart maps productID -> size -> quantity. No product has an empty size map and
// no size has a quantity <= 0 after any method returns.
type Cart map[string]map[string]int

type NoticeKind string

const (
	NoticeAdded   NoticeKind = "added"
	NoticeUpdated NoticeKind = "updated"
	NoticeRemoved NoticeKind = "removed"
)

// Notice is the user-visible confirmation a mutation produces.
type Notice struct {
	Kind      NoticeKind `json:"kind"`
	ProductID string     `json:"productId"`
	Size      string     `json:"size"`
	Message   string     `json:"message"`
}

// MaxLineQuantity caps a single (product, size) entry.
const MaxLineQuantity = 10000

func New() Cart { return Cart{} }

// Add increments (productID, size) by qty.
func (c Cart) Add(productID, size string, qty int) (Notice, error) {
	if strings.TrimSpace(size) == "" {
		return Notice{}, apperr.Validationf("please select a size", "size")
	}
	if strings.TrimSpace(productID) == "" {
		return Notice{}, apperr.Validation("productId")
	}
	if qty <= 0 {
		return Notice{}, apperr.Validationf("quantity must be positive", "quantity")
	}
	if qty > MaxLineQuantity-c[productID][size] {
		return Notice{}, apperr.Validationf("quantity exceeds the per-item limit", "quantity")
	}
	sizes, ok := c[productID]
	if !ok {
		sizes = map[string]int{}
		c[productID] = sizes
	}
	sizes[size] += qty
	return Notice{Kind: NoticeAdded, ProductID: productID, Size: size, Message: "Item Added To The Cart"}, nil
}

// Remove deletes the entry; absent entries are a no-op and yield ok=false.
func (c Cart) Remove(productID, size string) (Notice, bool) {
	sizes, ok := c[productID]
	if !ok {
		return Notice{}, false
	}
	if _, ok := sizes[size]; !ok {
		return Notice{}, false
	}
	delete(sizes, size)
	if len(sizes) == 0 {
		delete(c, productID)
	}
	return Notice{Kind: NoticeRemoved, ProductID: productID, Size: size, Message: "Item Removed From The Cart"}, true
}

// SetQuantity overwrites the quantity. Zero removes the entry.
func (c Cart) SetQuantity(productID, size string, qty int) (Notice, error) {
	if qty < 0 {
		return Notice{}, apperr.Validationf("quantity cannot be negative", "quantity")
	}
	if qty > MaxLineQuantity {
		return Notice{}, apperr.Validationf("quantity exceeds the per-item limit", "quantity")
	}
	if qty == 0 {
		c.Remove(productID, size)
		return Notice{Kind: NoticeRemoved, ProductID: productID, Size: size, Message: "Item Removed From The Cart"}, nil
	}
	if strings.TrimSpace(size) == "" {
		return Notice{}, apperr.Validationf("please select a size", "size")
	}
	if strings.TrimSpace(productID) == "" {
		return Notice{}, apperr.Validation("productId")
	}
	sizes, ok := c[productID]
	if !ok {
		sizes = map[string]int{}
		c[productID] = sizes
	}
	sizes[size] = qty
	return Notice{Kind: NoticeUpdated, ProductID: productID, Size: size, Message: "Cart Updated"}, nil
}

func (c Cart) Count() int {
	n := 0
	for _, sizes := range c {
		for _, q := range sizes {
			if q > 0 {
				n += q
			}
		}
	}
	return n
}

// PriceLookup resolves the current unit price of a product.
type PriceLookup interface {
	Price(productID string) (decimal.Decimal, bool)
}

// Prices is a snapshot PriceLookup.
type Prices map[string]decimal.Decimal

func (p Prices) Price(productID string) (decimal.Decimal, bool) {
	d, ok := p[productID]
	return d, ok
}

// Amount sums quantity x price. Products unknown to the lookup contribute zero.
func (c Cart) Amount(lookup PriceLookup) decimal.Decimal {
	total := decimal.Zero
	for productID, sizes := range c {
		price, ok := lookup.Price(productID)
		if !ok {
			continue
		}
		for _, q := range sizes {
			if q > 0 {
				total = total.Add(price.Mul(decimal.NewFromInt(int64(q))))
			}
		}
	}
	return total
}

// ProductIDs lists distinct products in stable order.
func (c Cart) ProductIDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Product is the catalog data a line needs at order time.
type Product struct {
	ID    string
	Name  string
	Price decimal.Decimal
	Image string
}

// Line is one (product, size) row copied out of the catalog.
type Line struct {
	ProductID string          `json:"productId"`
	Size      string          `json:"size"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
}

// Snapshot builds order lines from the cart, skipping products missing from the catalog.
func (c Cart) Snapshot(catalog map[string]Product) []Line {
	var out []Line
	for _, productID := range c.ProductIDs() {
		p, ok := catalog[productID]
		if !ok {
			continue
		}
		sizes := make([]string, 0, len(c[productID]))
		for s := range c[productID] {
			sizes = append(sizes, s)
		}
		sort.Strings(sizes)
		for _, s := range sizes {
			out = append(out, Line{
				ProductID: productID,
				Size:      s,
				Quantity:  c[productID][s],
				Price:     p.Price,
				Name:      p.Name,
				Image:     p.Image,
			})
		}
	}
	return out
}

// Valid reports whether the structural invariant holds. Used for carts loaded from storage.
func (c Cart) Valid() bool {
	for _, sizes := range c {
		if len(sizes) == 0 {
			return false
		}
		for _, q := range sizes {
			if q <= 0 || q > MaxLineQuantity {
				return false
			}
		}
	}
	return true
}

// Normalize drops empty leaves and non-positive quantities and clamps the rest
// to MaxLineQuantity.
func (c Cart) Normalize() {
	for productID, sizes := range c {
		for s, q := range sizes {
			switch {
			case q <= 0:
				delete(sizes, s)
			case q > MaxLineQuantity:
				sizes[s] = MaxLineQuantity
			}
		}
		if len(sizes) == 0 {
			delete(c, productID)
		}
	}
}
