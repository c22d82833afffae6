package store

import "fmt"

type OrderNotFoundError struct {
	LocalID     int64
	ServerID    string
	OrderNumber string
}

func (e *OrderNotFoundError) Error() string {
	if e.LocalID != 0 {
		return fmt.Sprintf("Order with local id %d not found", e.LocalID)
	}
	if e.ServerID != "" {
		return fmt.Sprintf("Order with server id %s not found", e.ServerID)
	}
	return fmt.Sprintf("Order with number %s not found", e.OrderNumber)
}
