// Package model defines the core domain types for the booking service.
package model

import "time"

// Slot is a reservable time window returned by availability computation.
// End is nil for capacity-style items that have no end time.
type Slot struct {
	Start    time.Time  `json:"start"`
	End      *time.Time `json:"end,omitempty"`
	ItemID   string     `json:"bookableItemId"`
	ItemName string     `json:"bookableItemName"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
