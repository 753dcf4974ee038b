package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/pkg/logging"
)

var bookingTracer = otel.Tracer("gendei.internal.booking")

// Store is the persistence surface the service needs. *Repository satisfies
// it; tests inject stubs.
type Store interface {
	EnsureSlot(ctx context.Context, slot Slot) error
	TransitionSlot(ctx context.Context, clinicID, professionalID, date, timeOfDay string, from, to SlotStatus) error
	ListFreeSlots(ctx context.Context, clinicID, professionalID, date string) ([]Slot, error)

	InsertAppointment(ctx context.Context, appt *Appointment) error
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) error
	FindPendingAppointment(ctx context.Context, clinicID, phone string, now time.Time) (*Appointment, error)
	ListUpcomingConfirmed(ctx context.Context, now, until time.Time) ([]Appointment, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, kind ReminderKind) error

	InsertHold(ctx context.Context, hold *Hold) error
	GetHold(ctx context.Context, id uuid.UUID) (*Hold, error)
	MarkHoldPaid(ctx context.Context, id uuid.UUID) error
	MarkHoldExpired(ctx context.Context, id uuid.UUID) (bool, error)
	ListExpiredHolds(ctx context.Context, now time.Time) ([]Hold, error)
	ListActiveHolds(ctx context.Context, clinicID string) ([]Hold, error)

	ProfessionalPrice(ctx context.Context, clinicID, professionalID string) (string, bool, error)
	ClinicPrice(ctx context.Context, clinicID string) (string, bool, error)
	ClinicDefaultPrice(ctx context.Context, clinicID string) (string, bool, error)
}

// Service is the slot booking engine.
type Service struct {
	store               Store
	holdTTL             time.Duration
	defaultDepositCents int64
	loc                 *time.Location
	logger              *logging.Logger
	now                 func() time.Time
}

// Option customizes the booking service.
type Option func(*Service)

// WithHoldTTL bounds how long an unpaid hold keeps its slot.
func WithHoldTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.holdTTL = ttl
		}
	}
}

// WithDefaultDepositCents sets the system fallback deposit amount.
func WithDefaultDepositCents(cents int64) Option {
	return func(s *Service) {
		if cents > 0 {
			s.defaultDepositCents = cents
		}
	}
}

// WithLocation sets the timezone slot dates and times are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService constructs the booking engine.
func NewService(store Store, logger *logging.Logger, opts ...Option) *Service {
	if store == nil {
		panic("booking: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		store:               store,
		holdTTL:             15 * time.Minute,
		defaultDepositCents: 5000,
		loc:                 time.UTC,
		logger:              logger,
		now:                 func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Book reserves a slot. With RequireDeposit the slot goes free→held and a
// payment hold is created; otherwise free→booked directly. A slot that is not
// free yields ErrSlotConflict so the caller can offer alternatives.
func (s *Service) Book(ctx context.Context, req BookRequest) (*BookResult, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("gendei.clinic_id", req.ClinicID),
		attribute.String("gendei.professional_id", req.ProfessionalID),
		attribute.Bool("gendei.deposit", req.RequireDeposit),
	)

	startsAt, err := ParseStartsAt(req.Date, req.Time, s.loc)
	if err != nil {
		return nil, fmt.Errorf("booking: invalid slot time %q %q: %w", req.Date, req.Time, err)
	}

	slot := Slot{
		ClinicID:       req.ClinicID,
		ProfessionalID: req.ProfessionalID,
		Date:           req.Date,
		Time:           req.Time,
		DurationMin:    req.DurationMin,
	}
	if err := s.store.EnsureSlot(ctx, slot); err != nil {
		return nil, err
	}

	target := SlotBooked
	status := StatusConfirmed
	if req.RequireDeposit {
		target = SlotHeld
		status = StatusAwaitingConfirmation
	}
	if err := s.store.TransitionSlot(ctx, req.ClinicID, req.ProfessionalID, req.Date, req.Time, SlotFree, target); err != nil {
		span.RecordError(err)
		return nil, err
	}

	appt := &Appointment{
		ID:             uuid.New(),
		ClinicID:       req.ClinicID,
		Phone:          req.Phone,
		ProfessionalID: req.ProfessionalID,
		Date:           req.Date,
		Time:           req.Time,
		StartsAt:       startsAt,
		Status:         status,
	}
	if err := s.store.InsertAppointment(ctx, appt); err != nil {
		s.revertSlot(ctx, req, target)
		span.RecordError(err)
		return nil, err
	}

	result := &BookResult{Appointment: appt}
	if req.RequireDeposit {
		amount := req.DepositCents
		if amount <= 0 {
			amount = s.DepositAmountCents(ctx, req.ClinicID, req.ProfessionalID)
		}
		now := s.now()
		hold := &Hold{
			ID:             uuid.New(),
			AppointmentID:  appt.ID,
			ClinicID:       req.ClinicID,
			ProfessionalID: req.ProfessionalID,
			Date:           req.Date,
			Time:           req.Time,
			AmountCents:    amount,
			CreatedAt:      now,
			ExpiresAt:      now.Add(s.holdTTL),
		}
		if err := s.store.InsertHold(ctx, hold); err != nil {
			s.revertSlot(ctx, req, target)
			if cancelErr := s.store.UpdateAppointmentStatus(ctx, appt.ID, StatusCancelled); cancelErr != nil {
				s.logger.Error("failed to cancel appointment after hold failure", "error", cancelErr, "appointment_id", appt.ID)
			}
			span.RecordError(err)
			return nil, err
		}
		result.Hold = hold
	}

	s.logger.Info("slot booked",
		"clinic_id", req.ClinicID,
		"professional_id", req.ProfessionalID,
		"date", req.Date,
		"time", req.Time,
		"appointment_id", appt.ID,
		"deposit", req.RequireDeposit,
	)
	return result, nil
}

// revertSlot undoes a CAS transition after a later step failed. Best effort:
// the hold-expiry sweep is the backstop for leaked held slots.
func (s *Service) revertSlot(ctx context.Context, req BookRequest, from SlotStatus) {
	if err := s.store.TransitionSlot(ctx, req.ClinicID, req.ProfessionalID, req.Date, req.Time, from, SlotFree); err != nil {
		s.logger.Error("failed to revert slot transition", "error", err,
			"clinic_id", req.ClinicID, "date", req.Date, "time", req.Time)
	}
}

// ConfirmPayment promotes a paid hold: hold marked paid, slot held→booked,
// appointment confirmed. Idempotent for already-paid holds.
func (s *Service) ConfirmPayment(ctx context.Context, holdID uuid.UUID) (*Appointment, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.confirm_payment")
	defer span.End()

	hold, err := s.store.GetHold(ctx, holdID)
	if err != nil {
		return nil, err
	}
	if hold.Paid {
		return s.store.GetAppointment(ctx, hold.AppointmentID)
	}
	if hold.Expired {
		return nil, ErrHoldExpired
	}

	if err := s.store.MarkHoldPaid(ctx, holdID); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.store.TransitionSlot(ctx, hold.ClinicID, hold.ProfessionalID, hold.Date, hold.Time, SlotHeld, SlotBooked); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.store.UpdateAppointmentStatus(ctx, hold.AppointmentID, StatusConfirmed); err != nil {
		return nil, err
	}

	s.logger.Info("payment confirmed", "hold_id", holdID, "appointment_id", hold.AppointmentID)
	return s.store.GetAppointment(ctx, hold.AppointmentID)
}

// ReleaseHold frees the slot of an unpaid hold and cancels its appointment.
func (s *Service) ReleaseHold(ctx context.Context, holdID uuid.UUID) error {
	hold, err := s.store.GetHold(ctx, holdID)
	if err != nil {
		return err
	}
	return s.release(ctx, hold)
}

func (s *Service) release(ctx context.Context, hold *Hold) error {
	expired, err := s.store.MarkHoldExpired(ctx, hold.ID)
	if err != nil {
		return err
	}
	if !expired {
		// The payment landed after the hold was listed; the slot stays
		// booked and the appointment stays confirmed.
		s.logger.Info("hold release skipped, payment landed first", "hold_id", hold.ID)
		return ErrHoldPaid
	}
	if err := s.store.TransitionSlot(ctx, hold.ClinicID, hold.ProfessionalID, hold.Date, hold.Time, SlotHeld, SlotFree); err != nil {
		// The slot may already have moved on; the hold is still dead.
		s.logger.Warn("hold release could not free slot", "error", err, "hold_id", hold.ID)
	}
	if err := s.store.UpdateAppointmentStatus(ctx, hold.AppointmentID, StatusCancelled); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	s.logger.Info("hold released", "hold_id", hold.ID, "appointment_id", hold.AppointmentID)
	return nil
}

// ExpireHolds sweeps unpaid holds past their deadline, returning reclaimed
// slots to free. Per-hold failures are logged and the sweep continues.
func (s *Service) ExpireHolds(ctx context.Context, now time.Time) (int, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.expire_holds")
	defer span.End()

	holds, err := s.store.ListExpiredHolds(ctx, now)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	released := 0
	for i := range holds {
		if err := s.release(ctx, &holds[i]); err != nil {
			if !errors.Is(err, ErrHoldPaid) {
				s.logger.Error("failed to release expired hold", "error", err, "hold_id", holds[i].ID)
			}
			continue
		}
		released++
	}
	if released > 0 {
		s.logger.Info("expired holds swept", "released", released)
	}
	return released, nil
}

// Cancel cancels an appointment and frees its slot.
func (s *Service) Cancel(ctx context.Context, apptID uuid.UUID) error {
	appt, err := s.store.GetAppointment(ctx, apptID)
	if err != nil {
		return err
	}
	if appt.Status == StatusCancelled {
		return nil
	}
	if err := s.store.UpdateAppointmentStatus(ctx, apptID, StatusCancelled); err != nil {
		return err
	}
	if err := s.freeSlot(ctx, appt); err != nil {
		s.logger.Warn("cancel could not free slot", "error", err, "appointment_id", apptID)
	}
	s.logger.Info("appointment cancelled", "appointment_id", apptID)
	return nil
}

func (s *Service) freeSlot(ctx context.Context, appt *Appointment) error {
	err := s.store.TransitionSlot(ctx, appt.ClinicID, appt.ProfessionalID, appt.Date, appt.Time, SlotBooked, SlotFree)
	if errors.Is(err, ErrSlotConflict) {
		return s.store.TransitionSlot(ctx, appt.ClinicID, appt.ProfessionalID, appt.Date, appt.Time, SlotHeld, SlotFree)
	}
	return err
}

// Reschedule books the new slot first, then cancels the old appointment, so a
// conflict on the new slot leaves the original untouched.
func (s *Service) Reschedule(ctx context.Context, apptID uuid.UUID, newDate, newTime string) (*BookResult, error) {
	appt, err := s.store.GetAppointment(ctx, apptID)
	if err != nil {
		return nil, err
	}
	result, err := s.Book(ctx, BookRequest{
		ClinicID:       appt.ClinicID,
		Phone:          appt.Phone,
		ProfessionalID: appt.ProfessionalID,
		Date:           newDate,
		Time:           newTime,
	})
	if err != nil {
		return nil, err
	}
	if err := s.Cancel(ctx, apptID); err != nil {
		s.logger.Error("reschedule booked new slot but failed to cancel old", "error", err,
			"old_appointment_id", apptID, "new_appointment_id", result.Appointment.ID)
	}
	return result, nil
}

// MarkCompleted records that the appointment happened.
func (s *Service) MarkCompleted(ctx context.Context, apptID uuid.UUID) error {
	return s.store.UpdateAppointmentStatus(ctx, apptID, StatusCompleted)
}

// MarkNoShow records that the patient did not show up.
func (s *Service) MarkNoShow(ctx context.Context, apptID uuid.UUID) error {
	return s.store.UpdateAppointmentStatus(ctx, apptID, StatusNoShow)
}

// PendingAppointment returns the patient's next active appointment, or nil.
func (s *Service) PendingAppointment(ctx context.Context, clinicID, phone string) (*Appointment, error) {
	appt, err := s.store.FindPendingAppointment(ctx, clinicID, phone, s.now())
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return appt, err
}

// FreeSlots lists open slots for a professional on a date.
func (s *Service) FreeSlots(ctx context.Context, clinicID, professionalID, date string) ([]Slot, error) {
	return s.store.ListFreeSlots(ctx, clinicID, professionalID, date)
}

// ActiveHolds lists a clinic's live holds for operator inspection.
func (s *Service) ActiveHolds(ctx context.Context, clinicID string) ([]Hold, error) {
	return s.store.ListActiveHolds(ctx, clinicID)
}
