package service

import (
	"fmt"
	"strings"

	"github.com/kiwari-pos/orderrelay/internal/apperr"
)

// Errors returned by the services. Handlers map them by kind.
var (
	ErrEmptyItems        = apperr.New(apperr.KindValidation, "EmptyItems", "items are required")
	ErrInvalidQuantity   = apperr.New(apperr.KindValidation, "InvalidQuantity", "quantity must be > 0")
	ErrInvalidPrice      = apperr.New(apperr.KindValidation, "InvalidPrice", "price must be >= 0")
	ErrInvalidGuestCount = apperr.New(apperr.KindValidation, "InvalidGuestCount", "guest_count must be >= 1")
	ErrInvalidDiscount   = apperr.New(apperr.KindValidation, "InvalidDiscount", "discount must be >= 0")
	ErrInvalidMenu       = apperr.New(apperr.KindValidation, "InvalidMenu", "menu_id or name is required")

	ErrDeviceNotAssigned  = apperr.New(apperr.KindValidation, "DeviceNotAssigned", "device is not assigned to a table")
	ErrSessionUnavailable = apperr.New(apperr.KindUnavailable, "SessionUnavailable", "no active pos session")
	ErrDuplicateOrder     = apperr.New(apperr.KindConflict, "DuplicateOrder", "device already has an active order")
	ErrTableLocked        = apperr.New(apperr.KindConflict, "TableLocked", "table already has an active order")
	ErrPosUnavailable     = apperr.New(apperr.KindUnavailable, "PosUnavailable", "pos is unavailable")
	ErrPosRejected        = apperr.New(apperr.KindValidation, "PosRejected", "pos rejected the request")
	ErrOrderNumber        = apperr.New(apperr.KindInternal, "OrderNumberUnavailable", "could not allocate a unique order number")

	ErrOrderNotFound     = apperr.New(apperr.KindNotFound, "OrderNotFound", "order not found")
	ErrBranchMismatch    = apperr.New(apperr.KindForbidden, "BranchMismatch", "resource belongs to another branch")
	ErrSessionMismatch   = apperr.New(apperr.KindForbidden, "SessionMismatch", "order belongs to another pos session")
	ErrOrderNotActive    = apperr.New(apperr.KindValidation, "OrderNotActive", "order is not active")
	ErrOrderNotConfirmed = apperr.New(apperr.KindValidation, "OrderNotConfirmed", "order must be confirmed before a refill")
	ErrItemNotFound      = apperr.New(apperr.KindValidation, "ItemNotFound", "menu item not found")
	ErrCategoryForbidden = apperr.New(apperr.KindValidation, "CategoryNotAllowed", "item category is not refillable")
	ErrInvalidTransition = apperr.New(apperr.KindValidation, "InvalidTransition", "invalid status transition")
	ErrInvalidStatus     = apperr.New(apperr.KindValidation, "InvalidStatus", "unknown order status")

	ErrPrintEventNotFound = apperr.New(apperr.KindNotFound, "PrintEventNotFound", "print event not found")
	ErrErrorTooLong       = apperr.New(apperr.KindValidation, "ErrorTooLong", "error message exceeds 1000 characters")
	ErrInvalidLimit       = apperr.New(apperr.KindValidation, "InvalidLimit", "limit must be >= 0")
	ErrInvalidSince       = apperr.New(apperr.KindValidation, "InvalidSince", "since must be an RFC 3339 timestamp")
	ErrInvalidPrintedAt   = apperr.New(apperr.KindValidation, "InvalidPrintedAt", "printed_at must be an RFC 3339 timestamp")
	ErrInvalidEventType   = apperr.New(apperr.KindValidation, "InvalidEventType", "event_type must be INITIAL or REFILL")

	ErrDeviceNotFound      = apperr.New(apperr.KindNotFound, "DeviceNotFound", "device not found")
	ErrDeviceConflict      = apperr.New(apperr.KindConflict, "DeviceConflict", "device uuid or ip address already registered")
	ErrInvalidDeviceKind   = apperr.New(apperr.KindValidation, "InvalidDeviceKind", "kind must be TABLET or RELAY")
	ErrInvalidDeviceStatus = apperr.New(apperr.KindValidation, "InvalidDeviceStatus", "unknown device status")
	ErrInvalidDevice       = apperr.New(apperr.KindValidation, "InvalidDevice", "name and secret are required")
	ErrDeviceMismatch      = apperr.New(apperr.KindForbidden, "DeviceMismatch", "caller is not the claimed device")
	ErrUUIDImmutable       = apperr.New(apperr.KindInvariant, "UUIDImmutable", "device uuid cannot change")
	ErrInvalidCredentials  = apperr.New(apperr.KindUnauthorized, "InvalidCredentials", "invalid device credentials")
)

// OrphanError reports a POS order whose local record could not be written.
// The external id must reach the caller for reconciliation.
type OrphanError struct {
	ExternalOrderID int64
	Err             error
}

func (e *OrphanError) Error() string {
	return fmt.Sprintf("pos order %d created but local write failed: %v", e.ExternalOrderID, e.Err)
}

func (e *OrphanError) Unwrap() error { return e.Err }

// ItemProblem describes one rejected refill item.
type ItemProblem struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// ItemValidationError carries every rejected item of a refill. It matches
// ErrItemNotFound when any item failed to resolve, ErrCategoryForbidden
// otherwise.
type ItemValidationError struct {
	Problems []ItemProblem
	notFound bool
}

func (e *ItemValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = fmt.Sprintf("item[%d] %s: %s", p.Index, p.Name, p.Reason)
	}
	return "refill rejected: " + strings.Join(parts, "; ")
}

func (e *ItemValidationError) Unwrap() error {
	if e.notFound {
		return ErrItemNotFound
	}
	return ErrCategoryForbidden
}
