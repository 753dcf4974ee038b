// Package booking allocates appointment slots with at-most-one active
// reservation per (professional, date, time), tracks payment holds with
// automatic expiry, and schedules appointment reminders.
package booking

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSlotConflict is returned when a slot is already held or booked.
	// Callers offer alternative slots instead of retrying the same one.
	ErrSlotConflict = errors.New("booking: slot not available")
	// ErrHoldExpired is returned when confirming payment on a lapsed hold.
	ErrHoldExpired = errors.New("booking: hold expired")
	// ErrHoldPaid is returned when releasing a hold whose payment already
	// landed. The slot and appointment are left untouched.
	ErrHoldPaid = errors.New("booking: hold already paid")
	// ErrNotFound is returned for unknown appointments or holds.
	ErrNotFound = errors.New("booking: not found")
)

// SlotStatus is the occupancy state of a time slot.
type SlotStatus string

const (
	SlotFree   SlotStatus = "free"
	SlotHeld   SlotStatus = "held"
	SlotBooked SlotStatus = "booked"
)

// Slot is one bookable (professional, date, time) unit. Date is "2006-01-02"
// and Time is "15:04", both in the clinic's local timezone.
type Slot struct {
	ClinicID       string
	ProfessionalID string
	Date           string
	Time           string
	DurationMin    int
	Status         SlotStatus
}

// AppointmentStatus follows the appointment through its lifecycle.
// Appointments are never deleted; cancellations are a status transition.
type AppointmentStatus string

const (
	StatusAwaitingConfirmation AppointmentStatus = "awaiting_confirmation"
	StatusConfirmed            AppointmentStatus = "confirmed"
	StatusCancelled            AppointmentStatus = "cancelled"
	StatusCompleted            AppointmentStatus = "completed"
	StatusNoShow               AppointmentStatus = "no_show"
)

// Appointment is a patient's reservation of a slot.
type Appointment struct {
	ID             uuid.UUID
	ClinicID       string
	Phone          string
	ProfessionalID string
	Date           string
	Time           string
	StartsAt       time.Time
	Status         AppointmentStatus
	Reminder24Sent bool
	Reminder2Sent  bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Hold is a time-limited reservation pending payment confirmation. Unpaid
// holds past ExpiresAt are swept and their slot returns to free.
type Hold struct {
	ID             uuid.UUID
	AppointmentID  uuid.UUID
	ClinicID       string
	ProfessionalID string
	Date           string
	Time           string
	AmountCents    int64
	CreatedAt      time.Time
	ExpiresAt      time.Time
	Paid           bool
	Expired        bool
}

// BookRequest asks for a slot reservation.
type BookRequest struct {
	ClinicID       string
	Phone          string
	ProfessionalID string
	Date           string
	Time           string
	DurationMin    int
	// RequireDeposit routes through free→held with a payment hold instead of
	// booking directly.
	RequireDeposit bool
	DepositCents   int64
}

// BookResult is the outcome of a successful booking.
type BookResult struct {
	Appointment *Appointment
	// Hold is set only when the booking required a deposit.
	Hold *Hold
}

// ReminderKind distinguishes the two reminder instants per appointment.
type ReminderKind string

const (
	Reminder24h ReminderKind = "24h"
	Reminder2h  ReminderKind = "2h"
)

// Reminder is one due reminder for an appointment.
type Reminder struct {
	Appointment Appointment
	Kind        ReminderKind
	// At is the instant the reminder was scheduled for.
	At time.Time
}

// ParseStartsAt combines the slot date and time in the given location.
func ParseStartsAt(date, timeOfDay string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation("2006-01-02 15:04", date+" "+timeOfDay, loc)
}
