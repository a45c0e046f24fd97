package enum

// Order lifecycle states live in internal/orderstatus.

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	OrderItemStatusPending    = "PENDING"
	OrderItemStatusInProgress = "IN_PROGRESS"
	OrderItemStatusReady      = "READY"
	OrderItemStatusServed     = "SERVED"
	OrderItemStatusCancelled  = "CANCELLED"
	OrderItemStatusVoided     = "VOIDED"
)

const (
	PrintEventInitial = "INITIAL"
	PrintEventRefill  = "REFILL"
)

const (
	DeviceStatusOnline           = "online"
	DeviceStatusPrinterConnected = "printer_connected"
	DeviceStatusQueuePending     = "queue_pending"
	DeviceStatusQueueFailed      = "queue_failed"
)

// ── Group C: Borderline (CHECK constrained in DB) ──

const (
	DeviceKindTablet = "TABLET"
	DeviceKindRelay  = "RELAY"
)

// ── Group B: Token roles (no DB constraint) ──

const (
	RoleTablet = "TABLET"
	RoleRelay  = "RELAY"
	RoleAdmin  = "ADMIN"
)

// IsOrderItemStatus reports whether s is a valid item status.
func IsOrderItemStatus(s string) bool {
	switch s {
	case OrderItemStatusPending, OrderItemStatusInProgress, OrderItemStatusReady,
		OrderItemStatusServed, OrderItemStatusCancelled, OrderItemStatusVoided:
		return true
	}
	return false
}

// IsDeviceStatus reports whether s is a valid operational device status.
func IsDeviceStatus(s string) bool {
	switch s {
	case DeviceStatusOnline, DeviceStatusPrinterConnected,
		DeviceStatusQueuePending, DeviceStatusQueueFailed:
		return true
	}
	return false
}

// IsDeviceKind reports whether s is a valid device kind.
func IsDeviceKind(s string) bool {
	return s == DeviceKindTablet || s == DeviceKindRelay
}
