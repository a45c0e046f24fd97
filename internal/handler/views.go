package handler

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/orderrelay/internal/database"
)

type orderResponse struct {
	ID                int64               `json:"id"`
	ExternalOrderID   *int64              `json:"external_order_id"`
	ExternalCheckID   *int64              `json:"external_check_id"`
	OrderNumber       string              `json:"order_number"`
	BranchID          int64               `json:"branch_id"`
	DeviceID          int64               `json:"device_id"`
	TableID           int64               `json:"table_id"`
	SessionID         *string             `json:"session_id"`
	TerminalSessionID int64               `json:"terminal_session_id"`
	GuestCount        int32               `json:"guest_count"`
	Subtotal          string              `json:"subtotal"`
	Tax               string              `json:"tax"`
	Discount          string              `json:"discount"`
	Total             string              `json:"total"`
	Status            string              `json:"status"`
	IsPrinted         bool                `json:"is_printed"`
	PrintedAt         *time.Time          `json:"printed_at"`
	PrintedBy         *string             `json:"printed_by"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
	Items             []orderItemResponse `json:"items,omitempty"`
	PrintEvent        *printEventResponse `json:"print_event,omitempty"`
}

type orderItemResponse struct {
	ID            int64   `json:"id"`
	MenuID        int64   `json:"menu_id"`
	OrderedMenuID *int64  `json:"ordered_menu_id"`
	ItemIndex     int32   `json:"item_index"`
	SeatNumber    *int32  `json:"seat_number"`
	Quantity      int32   `json:"quantity"`
	UnitPrice     string  `json:"unit_price"`
	Subtotal      string  `json:"subtotal"`
	Tax           string  `json:"tax"`
	Total         string  `json:"total"`
	IsRefill      bool    `json:"is_refill"`
	Note          *string `json:"note"`
	Status        string  `json:"status"`
}

type printEventResponse struct {
	ID                     int64           `json:"id"`
	OrderID                int64           `json:"order_id"`
	EventType              string          `json:"event_type"`
	Meta                   json.RawMessage `json:"meta"`
	IsAcknowledged         bool            `json:"is_acknowledged"`
	AcknowledgedAt         *time.Time      `json:"acknowledged_at"`
	AcknowledgedByDeviceID *int64          `json:"acknowledged_by_device_id"`
	PrinterID              *string         `json:"printer_id"`
	PrinterName            *string         `json:"printer_name"`
	Attempts               int32           `json:"attempts"`
	LastError              *string         `json:"last_error"`
	CreatedAt              time.Time       `json:"created_at"`
}

type deviceResponse struct {
	ID          int64      `json:"id"`
	UUID        uuid.UUID  `json:"uuid"`
	BranchID    int64      `json:"branch_id"`
	TableID     *int64     `json:"table_id"`
	Kind        string     `json:"kind"`
	Name        string     `json:"name"`
	IPAddress   *string    `json:"ip_address"`
	Status      string     `json:"status"`
	LastSeenAt  *time.Time `json:"last_seen_at"`
	AppVersion  *string    `json:"app_version"`
	PrinterID   *string    `json:"printer_id"`
	PrinterName *string    `json:"printer_name"`
}

func toOrderResponse(o database.Order) orderResponse {
	return orderResponse{
		ID:                o.ID,
		ExternalOrderID:   int8Ptr(o.ExternalOrderID),
		ExternalCheckID:   int8Ptr(o.ExternalCheckID),
		OrderNumber:       o.OrderNumber,
		BranchID:          o.BranchID,
		DeviceID:          o.DeviceID,
		TableID:           o.TableID,
		SessionID:         textPtr(o.SessionID),
		TerminalSessionID: o.TerminalSessionID,
		GuestCount:        o.GuestCount,
		Subtotal:          numericToString(o.Subtotal),
		Tax:               numericToString(o.Tax),
		Discount:          numericToString(o.Discount),
		Total:             numericToString(o.Total),
		Status:            o.Status,
		IsPrinted:         o.IsPrinted,
		PrintedAt:         timePtr(o.PrintedAt),
		PrintedBy:         textPtr(o.PrintedBy),
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}

func toOrderItemResponses(items []database.OrderItem) []orderItemResponse {
	resp := make([]orderItemResponse, len(items))
	for i, it := range items {
		resp[i] = orderItemResponse{
			ID:            it.ID,
			MenuID:        it.MenuID,
			OrderedMenuID: int8Ptr(it.OrderedMenuID),
			ItemIndex:     it.ItemIndex,
			SeatNumber:    int4Ptr(it.SeatNumber),
			Quantity:      it.Quantity,
			UnitPrice:     numericToString(it.UnitPrice),
			Subtotal:      numericToString(it.Subtotal),
			Tax:           numericToString(it.Tax),
			Total:         numericToString(it.Total),
			IsRefill:      it.IsRefill,
			Note:          textPtr(it.Note),
			Status:        it.Status,
		}
	}
	return resp
}

func toPrintEventResponse(e database.PrintEvent) printEventResponse {
	meta := json.RawMessage(e.Meta)
	if len(meta) == 0 {
		meta = json.RawMessage(`{}`)
	}
	return printEventResponse{
		ID:                     e.ID,
		OrderID:                e.OrderID,
		EventType:              e.EventType,
		Meta:                   meta,
		IsAcknowledged:         e.IsAcknowledged,
		AcknowledgedAt:         timePtr(e.AcknowledgedAt),
		AcknowledgedByDeviceID: int8Ptr(e.AcknowledgedByDeviceID),
		PrinterID:              textPtr(e.PrinterID),
		PrinterName:            textPtr(e.PrinterName),
		Attempts:               e.Attempts,
		LastError:              textPtr(e.LastError),
		CreatedAt:              e.CreatedAt,
	}
}

func toDeviceResponse(d database.Device) deviceResponse {
	return deviceResponse{
		ID:          d.ID,
		UUID:        d.UUID,
		BranchID:    d.BranchID,
		TableID:     int8Ptr(d.TableID),
		Kind:        d.Kind,
		Name:        d.Name,
		IPAddress:   textPtr(d.IPAddress),
		Status:      d.Status,
		LastSeenAt:  timePtr(d.LastSeenAt),
		AppVersion:  textPtr(d.AppVersion),
		PrinterID:   textPtr(d.PrinterID),
		PrinterName: textPtr(d.PrinterName),
	}
}
