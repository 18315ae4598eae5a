package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outbox event types.
const (
	EventUserCreated      = "USER_CREATED"
	EventBookingConfirmed = "BOOKING_CONFIRMED"
	EventBookingCancelled = "BOOKING_CANCELLED"
)

// OutboxStatus is a state in the outbox delivery lifecycle.
type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "PENDING"
	OutboxProcessing OutboxStatus = "PROCESSING"
	OutboxCompleted  OutboxStatus = "COMPLETED"
	OutboxFailed     OutboxStatus = "FAILED"
)

func (s OutboxStatus) IsValid() bool {
	switch s {
	case OutboxPending, OutboxProcessing, OutboxCompleted, OutboxFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether s -> next is a legal delivery step.
func (s OutboxStatus) CanTransitionTo(next OutboxStatus) bool {
	switch s {
	case OutboxPending:
		return next == OutboxProcessing
	case OutboxProcessing:
		return next == OutboxCompleted || next == OutboxPending || next == OutboxFailed
	default:
		return false
	}
}

// OutboxEvent is a durable record of something that must be communicated
// externally.
type OutboxEvent struct {
	ID          uuid.UUID       `json:"id"`
	EventType   string          `json:"eventType"`
	Payload     json.RawMessage `json:"payload"`
	Recipient   *string         `json:"recipientAddress,omitempty"`
	Status      OutboxStatus    `json:"status"`
	RetryCount  int             `json:"retryCount"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	ProcessedAt *time.Time      `json:"processedAt,omitempty"`
	LastError   *string         `json:"lastError,omitempty"`
}

// NewOutboxEvent serializes payload and returns a PENDING event. An empty
// recipient is stored as NULL.
func NewOutboxEvent(eventType string, payload any, recipient string, now time.Time) (*OutboxEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	event := &OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   raw,
		Status:    OutboxPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if recipient != "" {
		event.Recipient = &recipient
	}
	return event, nil
}

// RecipientAddress returns the recipient or "" when none was recorded.
func (e *OutboxEvent) RecipientAddress() string {
	if e.Recipient == nil {
		return ""
	}
	return *e.Recipient
}
