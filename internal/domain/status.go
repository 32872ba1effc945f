package domain

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderPaid      OrderStatus = "PAID"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderExpired   OrderStatus = "EXPIRED"
	OrderFailed    OrderStatus = "FAILED"
)

type ItemStatus string

const (
	ItemPending   ItemStatus = "PENDING"
	ItemConfirmed ItemStatus = "CONFIRMED"
	ItemCancelled ItemStatus = "CANCELLED"
	ItemExpired   ItemStatus = "EXPIRED"
)

var legalEdges = map[OrderStatus][]OrderStatus{
	OrderPending: {OrderPaid, OrderCancelled, OrderExpired},
	OrderPaid:    {OrderCancelled},
	OrderFailed:  {OrderPending},
	// CANCELLED and EXPIRED are terminal.
}

// ParseOrderStatus validates a status string coming from the API surface.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch OrderStatus(s) {
	case OrderPending, OrderPaid, OrderCancelled, OrderExpired, OrderFailed:
		return OrderStatus(s), true
	}
	return "", false
}

// CanTransitionTo reports whether from -> to is a legal status edge.
func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	for _, t := range legalEdges[s] {
		if t == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status has no outgoing edges.
func (s OrderStatus) Terminal() bool {
	return len(legalEdges[s]) == 0
}

// ReleasesCapacity reports whether reaching this status hands the
// order's seats back to the showtime ledger.
func (s OrderStatus) ReleasesCapacity() bool {
	return s == OrderCancelled || s == OrderExpired
}

// ItemStatusFor returns the per-item status that accompanies an order
// transition, or "" when the items are left untouched.
func ItemStatusFor(target OrderStatus) ItemStatus {
	switch target {
	case OrderPaid:
		return ItemConfirmed
	case OrderCancelled, OrderExpired:
		return ItemCancelled
	}
	return ""
}
