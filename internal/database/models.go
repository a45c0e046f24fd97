package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Branch struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DiningTable struct {
	ID        int64              `json:"id"`
	BranchID  int64              `json:"branch_id"`
	Name      string             `json:"name"`
	IsLocked  bool               `json:"is_locked"`
	LockedAt  pgtype.Timestamptz `json:"locked_at"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

type Device struct {
	ID          int64              `json:"id"`
	UUID        uuid.UUID          `json:"uuid"`
	BranchID    int64              `json:"branch_id"`
	TableID     pgtype.Int8        `json:"table_id"`
	Kind        string             `json:"kind"`
	Name        string             `json:"name"`
	SecretHash  string             `json:"secret_hash"`
	IPAddress   pgtype.Text        `json:"ip_address"`
	Status      string             `json:"status"`
	LastSeenAt  pgtype.Timestamptz `json:"last_seen_at"`
	AppVersion  pgtype.Text        `json:"app_version"`
	PrinterID   pgtype.Text        `json:"printer_id"`
	PrinterName pgtype.Text        `json:"printer_name"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

type Order struct {
	ID                int64              `json:"id"`
	ExternalOrderID   pgtype.Int8        `json:"external_order_id"`
	ExternalCheckID   pgtype.Int8        `json:"external_check_id"`
	OrderSequence     int32              `json:"order_sequence"`
	OrderNumber       string             `json:"order_number"`
	BranchID          int64              `json:"branch_id"`
	DeviceID          int64              `json:"device_id"`
	TableID           int64              `json:"table_id"`
	SessionID         pgtype.Text        `json:"session_id"`
	TerminalSessionID int64              `json:"terminal_session_id"`
	GuestCount        int32              `json:"guest_count"`
	Subtotal          pgtype.Numeric     `json:"subtotal"`
	Tax               pgtype.Numeric     `json:"tax"`
	Discount          pgtype.Numeric     `json:"discount"`
	Total             pgtype.Numeric     `json:"total"`
	Status            string             `json:"status"`
	IsPrinted         bool               `json:"is_printed"`
	PrintedAt         pgtype.Timestamptz `json:"printed_at"`
	PrintedBy         pgtype.Text        `json:"printed_by"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

type OrderItem struct {
	ID            int64          `json:"id"`
	OrderID       int64          `json:"order_id"`
	MenuID        int64          `json:"menu_id"`
	OrderedMenuID pgtype.Int8    `json:"ordered_menu_id"`
	ItemIndex     int32          `json:"item_index"`
	SeatNumber    pgtype.Int4    `json:"seat_number"`
	Quantity      int32          `json:"quantity"`
	UnitPrice     pgtype.Numeric `json:"unit_price"`
	Subtotal      pgtype.Numeric `json:"subtotal"`
	Tax           pgtype.Numeric `json:"tax"`
	Discount      pgtype.Numeric `json:"discount"`
	Total         pgtype.Numeric `json:"total"`
	IsRefill      bool           `json:"is_refill"`
	Note          pgtype.Text    `json:"note"`
	Status        string         `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

type PrintEvent struct {
	ID                     int64              `json:"id"`
	OrderID                int64              `json:"order_id"`
	EventType              string             `json:"event_type"`
	Meta                   []byte             `json:"meta"`
	IsAcknowledged         bool               `json:"is_acknowledged"`
	AcknowledgedAt         pgtype.Timestamptz `json:"acknowledged_at"`
	AcknowledgedByDeviceID pgtype.Int8        `json:"acknowledged_by_device_id"`
	PrinterID              pgtype.Text        `json:"printer_id"`
	PrinterName            pgtype.Text        `json:"printer_name"`
	Attempts               int32              `json:"attempts"`
	LastError              pgtype.Text        `json:"last_error"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

type PosOrphan struct {
	ID              int64              `json:"id"`
	ExternalOrderID int64              `json:"external_order_id"`
	DeviceID        int64              `json:"device_id"`
	BranchID        int64              `json:"branch_id"`
	Reason          string             `json:"reason"`
	ResolvedAt      pgtype.Timestamptz `json:"resolved_at"`
	CreatedAt       time.Time          `json:"created_at"`
}
