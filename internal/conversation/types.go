// Package conversation routes coalesced inbound messages through an ordered
// predicate chain to the handler that answers them.
package conversation

import (
	"context"
	"time"

	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/booking"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/clinic"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/whatsapp"
	"github.com/google/uuid"
)

// EventType classifies an inbound webhook message.
type EventType string

const (
	EventText      EventType = "text"
	EventButton    EventType = "button"
	EventVoice     EventType = "voice"
	EventLocation  EventType = "location"
	EventFormReply EventType = "form_reply"
)

// InboundEvent is one webhook message, immutable once received. EventID
// deduplicates re-deliveries.
type InboundEvent struct {
	EventID       string    `json:"event_id"`
	ClinicID      string    `json:"clinic_id"`
	Phone         string    `json:"phone"`
	Type          EventType `json:"type"`
	Text          string    `json:"text,omitempty"`
	MessageID     string    `json:"message_id,omitempty"`
	ContactName   string    `json:"contact_name,omitempty"`
	ButtonPayload string    `json:"button_payload,omitempty"`
	MediaID       string    `json:"media_id,omitempty"`
	MimeType      string    `json:"mime_type,omitempty"`
	ReceivedAt    time.Time `json:"received_at"`
}

// IdentityKey scopes state, buffering, and locking to (clinic, phone).
func (e InboundEvent) IdentityKey() string {
	return e.ClinicID + ":" + e.Phone
}

// MessageRequest is one coalesced unit of work handed to the router: the
// combined text of a debounced batch plus the first message's metadata.
type MessageRequest struct {
	ClinicID      string
	Phone         string
	MessageID     string
	Text          string
	ContactName   string
	ButtonPayload string
}

// Sender is the outbound message surface handlers use. *whatsapp.Client
// satisfies it.
type Sender interface {
	SendText(ctx context.Context, to, body string) (*whatsapp.SendResult, error)
	SendButtons(ctx context.Context, to, body string, buttons []whatsapp.Button) (*whatsapp.SendResult, error)
	SendList(ctx context.Context, to, body, buttonLabel string, sections []whatsapp.ListSection) (*whatsapp.SendResult, error)
}

// IntentResolver is the opaque general-response collaborator the default
// delegate path calls.
type IntentResolver interface {
	Resolve(ctx context.Context, req MessageRequest, state *State) (string, error)
}

// bookingEngine is the subset of booking.Service the handlers call.
type bookingEngine interface {
	Book(ctx context.Context, req booking.BookRequest) (*booking.BookResult, error)
	Cancel(ctx context.Context, apptID uuid.UUID) error
	Reschedule(ctx context.Context, apptID uuid.UUID, newDate, newTime string) (*booking.BookResult, error)
	PendingAppointment(ctx context.Context, clinicID, phone string) (*booking.Appointment, error)
	FreeSlots(ctx context.Context, clinicID, professionalID, date string) ([]booking.Slot, error)
	DepositAmountCents(ctx context.Context, clinicID, professionalID string) int64
}

// clinicDirectory resolves clinic profiles. *clinic.Store satisfies it.
type clinicDirectory interface {
	Get(ctx context.Context, clinicID string) (*clinic.Profile, error)
}

// OperatorNotifier alerts a human that the bot stepped aside.
type OperatorNotifier interface {
	NotifyEscalation(ctx context.Context, clinicName, patientPhone, reason string, transcript []string) error
}
