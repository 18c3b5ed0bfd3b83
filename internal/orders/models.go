package orders

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/go-shop-settlement/internal/apperr"
	"github.com/ariefcatur/go-shop-settlement/internal/payment"
	"github.com/shopspring/decimal"
)

// OrderItem is frozen at creation; catalog changes never reach it.
type OrderItem struct {
	ProductID string          `json:"productId"`
	Size      string          `json:"size"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
}

// Money is stored as NUMERIC(12,2) and quantities as INT.
const (
	MoneyScale  = 2
	MaxQuantity = math.MaxInt32
)

var moneyLimit = decimal.New(1, 12-MoneyScale)

// ValidMoney reports whether d is positive, has at most two decimal places and
// fits the money columns.
func ValidMoney(d decimal.Decimal) bool {
	return d.IsPositive() && d.Equal(d.Round(MoneyScale)) && d.LessThan(moneyLimit)
}

func (it OrderItem) Subtotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

type Order struct {
	ID            string          `json:"_id"`
	User          string          `json:"user"` // customer email, no account key
	FirstName     string          `json:"firstName"`
	LastName      string          `json:"lastName"`
	Mobile        string          `json:"mobile"`
	Items         []OrderItem     `json:"items"`
	Total         decimal.Decimal `json:"total"`
	Address       string          `json:"address"`
	Status        Status          `json:"status"`
	PaymentMethod payment.Method  `json:"paymentMethod"`
	PaymentRef    string          `json:"paymentRef,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Validate checks the fields the store requires and names every offender.
func (o *Order) Validate() error {
	var missing []string
	for _, f := range []struct {
		name, value string
	}{
		{"user", o.User},
		{"firstName", o.FirstName},
		{"lastName", o.LastName},
		{"mobile", o.Mobile},
		{"address", o.Address},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(o.Items) == 0 {
		missing = append(missing, "items")
	}
	for i, it := range o.Items {
		prefix := "items[" + strconv.Itoa(i) + "]."
		if strings.TrimSpace(it.ProductID) == "" {
			missing = append(missing, prefix+"productId")
		}
		if it.Quantity <= 0 || it.Quantity > MaxQuantity {
			missing = append(missing, prefix+"quantity")
		}
		if !ValidMoney(it.Price) {
			missing = append(missing, prefix+"price")
		}
	}
	if !ValidMoney(o.Total) {
		missing = append(missing, "total")
	}
	if o.Status != "" && !o.Status.Valid() {
		missing = append(missing, "status")
	}
	if len(missing) > 0 {
		return apperr.Validation(missing...)
	}
	return nil
}

// ItemsTotal is the exact sum of line subtotals.
func ItemsTotal(items []OrderItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Subtotal())
	}
	return sum
}

func (o *Order) clone() *Order {
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	return &c
}

// DailySales is one calendar day (UTC) of the dashboard series.
type DailySales struct {
	Day   string          `json:"_id"` // YYYY-MM-DD
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

const dayLayout = "2006-01-02"
