package models

import "errors"

var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	// ErrDurableWrite marks a notification that could not be appended to the log
	// and therefore was never pushed.
	ErrDurableWrite = errors.New("notification log write failed")
)

// Response is the JSON shape returned by every REST endpoint
type Response struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
