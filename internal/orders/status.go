package orders

import "github.com/ariefcatur/go-shop-settlement/internal/payment"

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusInTransit Status = "in_transit"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// Backward moves (paid -> pending, in_transit -> paid) are not allowed.
var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusInTransit: true, StatusCancelled: true},
	StatusPaid:      {StatusInTransit: true, StatusCancelled: true},
	StatusInTransit: {StatusDelivered: true, StatusCancelled: true},
	StatusDelivered: {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	return st, st.Valid()
}

// InitialStatus: cash waits for delivery, everything else was confirmed settled.
func InitialStatus(m payment.Method) Status {
	if m == payment.MethodCOD {
		return StatusPending
	}
	return StatusPaid
}
