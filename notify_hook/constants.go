package notifyhook

// Event constants for governance notifications.
const (
	// Seller events
	EventSellerApproved    = "seller.approved"
	EventSellerRejected    = "seller.rejected"
	EventSellerSuspended   = "seller.suspended"
	EventSellerReactivated = "seller.reactivated"

	// Pricing events
	EventCeilingUpdated    = "ceiling.updated"
	EventViolationDetected = "violation.detected"
	EventViolationResolved = "violation.resolved"

	// Procurement events
	EventOrderApproved = "order.approved"
	EventOrderRejected = "order.rejected"

	// Inventory events
	EventLotReceived   = "lot.received"
	EventStockConsumed = "stock.consumed"
	EventLotAdjusted   = "lot.adjusted"
	EventLowStock      = "stock.low"
)

// Topic constants for routing notifications.
const (
	TopicSellers     = "sellers"
	TopicPricing     = "pricing"
	TopicProcurement = "procurement"
	TopicInventory   = "inventory"
)

// Severity levels for notifications.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)
