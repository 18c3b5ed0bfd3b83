package redisx

import "time"

const (
	// Tracker cache: order:{order_id} -> order JSON
	KeyOrder = "order:%s"

	// Dashboard report cache (single key)
	KeyDashboard = "dashboard:stats"

	// Server-side cart: cart:{cart_id} -> cart JSON
	KeyCart = "cart:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLOrderCache = 5 * time.Minute
	TTLCart       = 30 * 24 * time.Hour
	TTLDedup      = 48 * time.Hour
)
