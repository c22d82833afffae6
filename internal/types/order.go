package types

import "time"

// Status is deliberately an open string: the server is free to introduce
// new statuses and we pass them through untouched.
type Status string

const (
	PendingStatus   Status = "pending"
	PreparingStatus Status = "preparing"
	ReadyStatus     Status = "ready"
	CompletedStatus Status = "completed"
)

type OrderItem struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Image    string  `json:"image,omitempty"`
}

// Order is the unit of synchronization. A logical order can be addressed by
// any of three identifiers: the locally assigned key (LocalID), the
// server-assigned identifier (ServerID) and the human-facing order number.
type Order struct {
	LocalID     int64       `json:"localId,omitempty" db:"local_id"`
	ServerID    string      `json:"_id,omitempty" db:"server_id"`
	OrderNumber string      `json:"orderNumber" db:"order_number"`
	Status      Status      `json:"status" db:"status"`
	Items       []OrderItem `json:"items"`
	Total       float64     `json:"total" db:"total"`
	Timestamp   time.Time   `json:"timestamp" db:"created_at"`
	Synced      bool        `json:"synced" db:"synced"`
	Dirty       bool        `json:"dirty" db:"dirty"`
	RetryCount  int         `json:"-" db:"retry_count"`
}

type Product struct {
	ID       string  `json:"_id,omitempty"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Category string  `json:"category,omitempty"`
	Image    string  `json:"image,omitempty"`
}

type Stats struct {
	TotalOrders   int     `json:"totalOrders"`
	TodayOrders   int     `json:"todayOrders"`
	TodayRevenue  float64 `json:"todayRevenue"`
	PendingOrders int     `json:"pendingOrders"`
}
