package outbox

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Shivanand-hulikatti/bookable/internal/model"
)

// ErrUnknownEventType is returned by BuildMessage for event types it has no
// template for.
var ErrUnknownEventType = errors.New("unknown outbox event type")

// Message is the rendered notification for an outbox event.
type Message struct {
	Subject string
	Body    string
}

// BuildMessage renders the notification for event.
func BuildMessage(event *model.OutboxEvent) (Message, error) {
	switch event.EventType {
	case model.EventUserCreated:
		var p model.UserCreatedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return Message{}, fmt.Errorf("decode %s payload: %w", event.EventType, err)
		}
		return Message{
			Subject: fmt.Sprintf("Welcome to Our Platform, %s!", p.Username),
			Body: fmt.Sprintf("Dear %s,\n\nWelcome to our platform! We're excited to have you onboard.\n\nBest regards,\nYour Team",
				p.Username),
		}, nil

	case model.EventBookingConfirmed:
		var b model.BookingSnapshot
		if err := json.Unmarshal(event.Payload, &b); err != nil {
			return Message{}, fmt.Errorf("decode %s payload: %w", event.EventType, err)
		}
		return Message{
			Subject: "Booking Confirmed: " + b.BookableItemName,
			Body: fmt.Sprintf("Dear %s,\n\nYour booking for '%s' on %s is confirmed. Booking ID: %s\n\nThank you!",
				b.Username, b.BookableItemName, b.BookingDate.Format("2006-01-02 15:04 MST"), b.ID),
		}, nil

	case model.EventBookingCancelled:
		var b model.BookingSnapshot
		if err := json.Unmarshal(event.Payload, &b); err != nil {
			return Message{}, fmt.Errorf("decode %s payload: %w", event.EventType, err)
		}
		return Message{
			Subject: "Booking Cancelled: " + b.BookableItemName,
			Body: fmt.Sprintf("Dear %s,\n\nYour booking for '%s' on %s has been successfully cancelled. Booking ID: %s\n\nWe hope to see you again soon.",
				b.Username, b.BookableItemName, b.BookingDate.Format("2006-01-02 15:04 MST"), b.ID),
		}, nil

	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownEventType, event.EventType)
	}
}
