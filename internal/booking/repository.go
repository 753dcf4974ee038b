package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides persistence for slots, holds, and appointments.
type Repository struct {
	db querier
}

// NewRepository creates a repository backed by pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("booking: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithQuerier allows injecting mocks for tests.
func NewRepositoryWithQuerier(q querier) *Repository {
	if q == nil {
		panic("booking: querier required")
	}
	return &Repository{db: q}
}

// EnsureSlot creates the slot row as free if it does not exist yet. Slot rows
// are materialized lazily on first booking attempt.
func (r *Repository) EnsureSlot(ctx context.Context, slot Slot) error {
	query := `
		INSERT INTO slots (clinic_id, professional_id, slot_date, slot_time, duration_min, status)
		VALUES ($1, $2, $3, $4, $5, 'free')
		ON CONFLICT (clinic_id, professional_id, slot_date, slot_time) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query, slot.ClinicID, slot.ProfessionalID, slot.Date, slot.Time, slot.DurationMin); err != nil {
		return fmt.Errorf("booking: ensure slot: %w", err)
	}
	return nil
}

// TransitionSlot moves a slot between occupancy states with a compare-and-set.
// Zero rows affected means the slot was not in the expected state; two
// concurrent booking attempts cannot both win.
func (r *Repository) TransitionSlot(ctx context.Context, clinicID, professionalID, date, timeOfDay string, from, to SlotStatus) error {
	query := `
		UPDATE slots SET status = $6, updated_at = now()
		WHERE clinic_id = $1 AND professional_id = $2 AND slot_date = $3 AND slot_time = $4 AND status = $5
	`
	ct, err := r.db.Exec(ctx, query, clinicID, professionalID, date, timeOfDay, string(from), string(to))
	if err != nil {
		return fmt.Errorf("booking: transition slot: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrSlotConflict
	}
	return nil
}

// ListFreeSlots returns open slots for a professional on a date, in time order.
func (r *Repository) ListFreeSlots(ctx context.Context, clinicID, professionalID, date string) ([]Slot, error) {
	query := `
		SELECT clinic_id, professional_id, slot_date, slot_time, duration_min, status
		FROM slots
		WHERE clinic_id = $1 AND professional_id = $2 AND slot_date = $3 AND status = 'free'
		ORDER BY slot_time
	`
	rows, err := r.db.Query(ctx, query, clinicID, professionalID, date)
	if err != nil {
		return nil, fmt.Errorf("booking: list free slots: %w", err)
	}
	defer rows.Close()

	var slots []Slot
	for rows.Next() {
		var s Slot
		var status string
		if err := rows.Scan(&s.ClinicID, &s.ProfessionalID, &s.Date, &s.Time, &s.DurationMin, &status); err != nil {
			return nil, fmt.Errorf("booking: scan slot: %w", err)
		}
		s.Status = SlotStatus(status)
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// InsertAppointment persists a new appointment row.
func (r *Repository) InsertAppointment(ctx context.Context, appt *Appointment) error {
	query := `
		INSERT INTO appointments (id, clinic_id, phone, professional_id, slot_date, slot_time, starts_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		appt.ID, appt.ClinicID, appt.Phone, appt.ProfessionalID,
		appt.Date, appt.Time, appt.StartsAt, string(appt.Status),
	)
	if err != nil {
		return fmt.Errorf("booking: insert appointment: %w", err)
	}
	return nil
}

// GetAppointment loads an appointment by id.
func (r *Repository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	query := appointmentSelect + ` WHERE id = $1`
	appt, err := scanAppointment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("booking: load appointment: %w", err)
	}
	return appt, nil
}

// UpdateAppointmentStatus transitions an appointment's lifecycle status.
func (r *Repository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) error {
	query := `UPDATE appointments SET status = $2, updated_at = now() WHERE id = $1`
	ct, err := r.db.Exec(ctx, query, id, string(status))
	if err != nil {
		return fmt.Errorf("booking: update appointment status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindPendingAppointment returns the patient's next confirmed or
// awaiting-confirmation appointment, or ErrNotFound.
func (r *Repository) FindPendingAppointment(ctx context.Context, clinicID, phone string, now time.Time) (*Appointment, error) {
	query := appointmentSelect + `
		WHERE clinic_id = $1 AND phone = $2
		  AND status IN ('confirmed', 'awaiting_confirmation')
		  AND starts_at > $3
		ORDER BY starts_at
		LIMIT 1
	`
	appt, err := scanAppointment(r.db.QueryRow(ctx, query, clinicID, phone, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("booking: find pending appointment: %w", err)
	}
	return appt, nil
}

// ListUpcomingConfirmed returns confirmed appointments starting before the
// horizon, for reminder eligibility checks.
func (r *Repository) ListUpcomingConfirmed(ctx context.Context, now, until time.Time) ([]Appointment, error) {
	query := appointmentSelect + `
		WHERE status = 'confirmed' AND starts_at > $1 AND starts_at <= $2
		ORDER BY starts_at
	`
	rows, err := r.db.Query(ctx, query, now, until)
	if err != nil {
		return nil, fmt.Errorf("booking: list upcoming: %w", err)
	}
	defer rows.Close()

	var appts []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("booking: scan appointment: %w", err)
		}
		appts = append(appts, *appt)
	}
	return appts, rows.Err()
}

// MarkReminderSent flips the sent flag for one reminder kind.
func (r *Repository) MarkReminderSent(ctx context.Context, id uuid.UUID, kind ReminderKind) error {
	column := "reminder_24h_sent"
	if kind == Reminder2h {
		column = "reminder_2h_sent"
	}
	query := `UPDATE appointments SET ` + column + ` = TRUE, updated_at = now() WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("booking: mark reminder sent: %w", err)
	}
	return nil
}

// InsertHold persists a payment hold.
func (r *Repository) InsertHold(ctx context.Context, hold *Hold) error {
	query := `
		INSERT INTO holds (id, appointment_id, clinic_id, professional_id, slot_date, slot_time, amount_cents, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		hold.ID, hold.AppointmentID, hold.ClinicID, hold.ProfessionalID,
		hold.Date, hold.Time, hold.AmountCents, hold.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("booking: insert hold: %w", err)
	}
	return nil
}

// GetHold loads a hold by id.
func (r *Repository) GetHold(ctx context.Context, id uuid.UUID) (*Hold, error) {
	query := holdSelect + ` WHERE id = $1`
	hold, err := scanHold(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("booking: load hold: %w", err)
	}
	return hold, nil
}

// MarkHoldPaid marks a hold paid unless it was already swept.
func (r *Repository) MarkHoldPaid(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE holds SET paid = TRUE WHERE id = $1 AND NOT expired`
	ct, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("booking: mark hold paid: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrHoldExpired
	}
	return nil
}

// MarkHoldExpired records that the hold was released. A payment landing
// between the sweep's listing and this update wins: the guard leaves paid
// holds alone and the caller must not touch the slot or appointment.
func (r *Repository) MarkHoldExpired(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `UPDATE holds SET expired = TRUE WHERE id = $1 AND NOT paid`
	ct, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("booking: mark hold expired: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// ListExpiredHolds returns unpaid holds past their deadline that were not
// swept yet.
func (r *Repository) ListExpiredHolds(ctx context.Context, now time.Time) ([]Hold, error) {
	query := holdSelect + ` WHERE expires_at < $1 AND NOT paid AND NOT expired`
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("booking: list expired holds: %w", err)
	}
	defer rows.Close()

	var holds []Hold
	for rows.Next() {
		hold, err := scanHold(rows)
		if err != nil {
			return nil, fmt.Errorf("booking: scan hold: %w", err)
		}
		holds = append(holds, *hold)
	}
	return holds, rows.Err()
}

// ListActiveHolds returns unpaid, unexpired holds for operator inspection.
func (r *Repository) ListActiveHolds(ctx context.Context, clinicID string) ([]Hold, error) {
	query := holdSelect + ` WHERE clinic_id = $1 AND NOT paid AND NOT expired ORDER BY expires_at`
	rows, err := r.db.Query(ctx, query, clinicID)
	if err != nil {
		return nil, fmt.Errorf("booking: list active holds: %w", err)
	}
	defer rows.Close()

	var holds []Hold
	for rows.Next() {
		hold, err := scanHold(rows)
		if err != nil {
			return nil, fmt.Errorf("booking: scan hold: %w", err)
		}
		holds = append(holds, *hold)
	}
	return holds, rows.Err()
}

// ProfessionalPrice returns the price of a service linked to the professional.
// Prices are stored as raw legacy text and normalized by the caller.
func (r *Repository) ProfessionalPrice(ctx context.Context, clinicID, professionalID string) (string, bool, error) {
	query := `
		SELECT price FROM services
		WHERE clinic_id = $1 AND professional_id = $2 AND price IS NOT NULL AND price <> ''
		ORDER BY created_at
		LIMIT 1
	`
	return r.priceQuery(ctx, query, clinicID, professionalID)
}

// ClinicPrice returns any priced service of the clinic.
func (r *Repository) ClinicPrice(ctx context.Context, clinicID string) (string, bool, error) {
	query := `
		SELECT price FROM services
		WHERE clinic_id = $1 AND price IS NOT NULL AND price <> ''
		ORDER BY created_at
		LIMIT 1
	`
	return r.priceQuery(ctx, query, clinicID)
}

// ClinicDefaultPrice returns the clinic's default price setting.
func (r *Repository) ClinicDefaultPrice(ctx context.Context, clinicID string) (string, bool, error) {
	query := `SELECT value FROM clinic_settings WHERE clinic_id = $1 AND key = 'default_price'`
	return r.priceQuery(ctx, query, clinicID)
}

func (r *Repository) priceQuery(ctx context.Context, query string, args ...any) (string, bool, error) {
	var raw string
	if err := r.db.QueryRow(ctx, query, args...).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("booking: price lookup: %w", err)
	}
	return raw, raw != "", nil
}

const appointmentSelect = `
	SELECT id, clinic_id, phone, professional_id, slot_date, slot_time, starts_at,
	       status, reminder_24h_sent, reminder_2h_sent, created_at, updated_at
	FROM appointments
`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var appt Appointment
	var status string
	if err := row.Scan(
		&appt.ID, &appt.ClinicID, &appt.Phone, &appt.ProfessionalID,
		&appt.Date, &appt.Time, &appt.StartsAt, &status,
		&appt.Reminder24Sent, &appt.Reminder2Sent, &appt.CreatedAt, &appt.UpdatedAt,
	); err != nil {
		return nil, err
	}
	appt.Status = AppointmentStatus(status)
	return &appt, nil
}

const holdSelect = `
	SELECT id, appointment_id, clinic_id, professional_id, slot_date, slot_time,
	       amount_cents, created_at, expires_at, paid, expired
	FROM holds
`

func scanHold(row pgx.Row) (*Hold, error) {
	var hold Hold
	if err := row.Scan(
		&hold.ID, &hold.AppointmentID, &hold.ClinicID, &hold.ProfessionalID,
		&hold.Date, &hold.Time, &hold.AmountCents, &hold.CreatedAt,
		&hold.ExpiresAt, &hold.Paid, &hold.Expired,
	); err != nil {
		return nil, err
	}
	return &hold, nil
}
