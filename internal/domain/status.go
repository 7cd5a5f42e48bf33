package domain

// MapOrderStatus translates a broker order status into the internal trade
// status. Unknown broker statuses map to FAILED so that the poller never
// loops forever on a status it cannot interpret.
func MapOrderStatus(brokerStatus string) TradeStatus {
	switch brokerStatus {
	case "new":
		return TradeStatusNew
	case "accepted", "pending_new":
		return TradeStatusAccepted
	case "partially_filled":
		return TradeStatusPartiallyFilled
	case "filled":
		return TradeStatusFilled
	case "canceled", "pending_cancel", "expired", "stopped":
		return TradeStatusCanceled
	case "rejected":
		return TradeStatusRejected
	case "suspended", "calculated":
		return TradeStatusFailed
	default:
		return TradeStatusFailed
	}
}

// Terminal reports whether the status permits no further transitions.
func (s TradeStatus) Terminal() bool {
	switch s {
	case TradeStatusFilled, TradeStatusCanceled, TradeStatusRejected, TradeStatusFailed:
		return true
	default:
		return false
	}
}
