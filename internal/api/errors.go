package api

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotExists   = errors.New("Order not exists")
	ErrProductNotExists = errors.New("Product not exists")
)

// StatusError carries the HTTP status of a failed request so the retry
// classifiers can tell transient failures from permanent ones.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Unexpected status %d: %s", e.Code, e.Body)
}

func (e *StatusError) StatusCode() int {
	return e.Code
}
