package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore implements Store with the same compare-and-set semantics the SQL
// repository gets from conditional UPDATEs.
type memStore struct {
	mu           sync.Mutex
	slots        map[string]SlotStatus
	appts        map[uuid.UUID]*Appointment
	holds        map[uuid.UUID]*Hold
	profPrice    string
	clinicPrice  string
	defaultPrice string
}

func newMemStore() *memStore {
	return &memStore{
		slots: make(map[string]SlotStatus),
		appts: make(map[uuid.UUID]*Appointment),
		holds: make(map[uuid.UUID]*Hold),
	}
}

func slotKeyOf(clinicID, professionalID, date, timeOfDay string) string {
	return clinicID + "|" + professionalID + "|" + date + "|" + timeOfDay
}

func (m *memStore) EnsureSlot(_ context.Context, slot Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := slotKeyOf(slot.ClinicID, slot.ProfessionalID, slot.Date, slot.Time)
	if _, ok := m.slots[key]; !ok {
		m.slots[key] = SlotFree
	}
	return nil
}

func (m *memStore) TransitionSlot(_ context.Context, clinicID, professionalID, date, timeOfDay string, from, to SlotStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := slotKeyOf(clinicID, professionalID, date, timeOfDay)
	if m.slots[key] != from {
		return ErrSlotConflict
	}
	m.slots[key] = to
	return nil
}

func (m *memStore) ListFreeSlots(_ context.Context, clinicID, professionalID, date string) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var free []Slot
	for key, status := range m.slots {
		if status == SlotFree {
			free = append(free, Slot{ClinicID: clinicID, ProfessionalID: professionalID, Date: date, Time: key})
		}
	}
	return free, nil
}

func (m *memStore) InsertAppointment(_ context.Context, appt *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *appt
	m.appts[appt.ID] = &cp
	return nil
}

func (m *memStore) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *appt
	return &cp, nil
}

func (m *memStore) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, status AppointmentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.appts[id]
	if !ok {
		return ErrNotFound
	}
	appt.Status = status
	return nil
}

func (m *memStore) FindPendingAppointment(_ context.Context, clinicID, phone string, now time.Time) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *Appointment
	for _, appt := range m.appts {
		if appt.ClinicID != clinicID || appt.Phone != phone {
			continue
		}
		if appt.Status != StatusConfirmed && appt.Status != StatusAwaitingConfirmation {
			continue
		}
		if !appt.StartsAt.After(now) {
			continue
		}
		if best == nil || appt.StartsAt.Before(best.StartsAt) {
			best = appt
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *memStore) ListUpcomingConfirmed(_ context.Context, now, until time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, appt := range m.appts {
		if appt.Status == StatusConfirmed && appt.StartsAt.After(now) && !appt.StartsAt.After(until) {
			out = append(out, *appt)
		}
	}
	return out, nil
}

func (m *memStore) MarkReminderSent(_ context.Context, id uuid.UUID, kind ReminderKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.appts[id]
	if !ok {
		return ErrNotFound
	}
	if kind == Reminder24h {
		appt.Reminder24Sent = true
	} else {
		appt.Reminder2Sent = true
	}
	return nil
}

func (m *memStore) InsertHold(_ context.Context, hold *Hold) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *hold
	m.holds[hold.ID] = &cp
	return nil
}

func (m *memStore) GetHold(_ context.Context, id uuid.UUID) (*Hold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hold, ok := m.holds[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *hold
	return &cp, nil
}

func (m *memStore) MarkHoldPaid(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	hold, ok := m.holds[id]
	if !ok || hold.Expired {
		return ErrHoldExpired
	}
	hold.Paid = true
	return nil
}

func (m *memStore) MarkHoldExpired(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hold, ok := m.holds[id]
	if !ok || hold.Paid {
		return false, nil
	}
	hold.Expired = true
	return true, nil
}

func (m *memStore) ListExpiredHolds(_ context.Context, now time.Time) ([]Hold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Hold
	for _, hold := range m.holds {
		if hold.ExpiresAt.Before(now) && !hold.Paid && !hold.Expired {
			out = append(out, *hold)
		}
	}
	return out, nil
}

func (m *memStore) ListActiveHolds(_ context.Context, clinicID string) ([]Hold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Hold
	for _, hold := range m.holds {
		if hold.ClinicID == clinicID && !hold.Paid && !hold.Expired {
			out = append(out, *hold)
		}
	}
	return out, nil
}

func (m *memStore) ProfessionalPrice(context.Context, string, string) (string, bool, error) {
	return m.profPrice, m.profPrice != "", nil
}

func (m *memStore) ClinicPrice(context.Context, string) (string, bool, error) {
	return m.clinicPrice, m.clinicPrice != "", nil
}

func (m *memStore) ClinicDefaultPrice(context.Context, string) (string, bool, error) {
	return m.defaultPrice, m.defaultPrice != "", nil
}

func (m *memStore) slotStatus(clinicID, professionalID, date, timeOfDay string) SlotStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots[slotKeyOf(clinicID, professionalID, date, timeOfDay)]
}

func baseRequest() BookRequest {
	return BookRequest{
		ClinicID:       "clinic-1",
		Phone:          "+5511999990000",
		ProfessionalID: "prof-1",
		Date:           "2026-09-10",
		Time:           "14:00",
		DurationMin:    30,
	}
}

func TestBookDirectNoDeposit(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	result, err := svc.Book(ctx, baseRequest())
	require.NoError(t, err)
	require.NotNil(t, result.Appointment)
	assert.Nil(t, result.Hold)
	assert.Equal(t, StatusConfirmed, result.Appointment.Status)
	assert.Equal(t, SlotBooked, store.slotStatus("clinic-1", "prof-1", "2026-09-10", "14:00"))
}

func TestBookWithDepositCreatesHold(t *testing.T) {
	store := newMemStore()
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	svc := NewService(store, nil,
		WithHoldTTL(15*time.Minute),
		withClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	req := baseRequest()
	req.RequireDeposit = true
	req.DepositCents = 7500
	result, err := svc.Book(ctx, req)
	require.NoError(t, err)

	require.NotNil(t, result.Hold)
	assert.Equal(t, int64(7500), result.Hold.AmountCents)
	assert.Equal(t, now.Add(15*time.Minute), result.Hold.ExpiresAt)
	assert.Equal(t, StatusAwaitingConfirmation, result.Appointment.Status)
	assert.Equal(t, SlotHeld, store.slotStatus("clinic-1", "prof-1", "2026-09-10", "14:00"))
}

func TestBookConflictThenAlternative(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	_, err := svc.Book(ctx, baseRequest())
	require.NoError(t, err)

	// Same slot again: conflict, never a silent overwrite.
	_, err = svc.Book(ctx, baseRequest())
	require.ErrorIs(t, err, ErrSlotConflict)

	// The caller picks another slot with the same professional.
	alt := baseRequest()
	alt.Time = "15:00"
	result, err := svc.Book(ctx, alt)
	require.NoError(t, err)
	assert.Equal(t, "15:00", result.Appointment.Time)
}

func TestConcurrentBookingAtMostOneWins(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Book(ctx, baseRequest())
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, ErrSlotConflict)
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent booking may succeed")
}

func TestConfirmPaymentPromotesHold(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	req := baseRequest()
	req.RequireDeposit = true
	result, err := svc.Book(ctx, req)
	require.NoError(t, err)

	appt, err := svc.ConfirmPayment(ctx, result.Hold.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, appt.Status)
	assert.Equal(t, SlotBooked, store.slotStatus("clinic-1", "prof-1", "2026-09-10", "14:00"))

	// Confirming again is idempotent.
	appt, err = svc.ConfirmPayment(ctx, result.Hold.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, appt.Status)
}

func TestExpireHoldsFreesSlot(t *testing.T) {
	store := newMemStore()
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	svc := NewService(store, nil,
		WithHoldTTL(15*time.Minute),
		withClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	req := baseRequest()
	req.RequireDeposit = true
	result, err := svc.Book(ctx, req)
	require.NoError(t, err)

	// Before expiry nothing is swept.
	released, err := svc.ExpireHolds(ctx, now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, released)

	released, err = svc.ExpireHolds(ctx, now.Add(16*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, released)
	assert.Equal(t, SlotFree, store.slotStatus("clinic-1", "prof-1", "2026-09-10", "14:00"))

	appt, err := store.GetAppointment(ctx, result.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, appt.Status, "expired hold must not leave a live appointment")

	// A lapsed hold can no longer be paid.
	_, err = svc.ConfirmPayment(ctx, result.Hold.ID)
	assert.ErrorIs(t, err, ErrHoldExpired)
}

// listRaceStore lets a payment land in the window between the sweep listing
// a hold and releasing it.
type listRaceStore struct {
	*memStore
	afterList func()
}

func (s *listRaceStore) ListExpiredHolds(ctx context.Context, now time.Time) ([]Hold, error) {
	holds, err := s.memStore.ListExpiredHolds(ctx, now)
	if s.afterList != nil {
		s.afterList()
	}
	return holds, err
}

func TestExpireHoldsKeepsPaidAppointment(t *testing.T) {
	store := &listRaceStore{memStore: newMemStore()}
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	svc := NewService(store, nil,
		WithHoldTTL(15*time.Minute),
		withClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	req := baseRequest()
	req.RequireDeposit = true
	result, err := svc.Book(ctx, req)
	require.NoError(t, err)

	store.afterList = func() {
		store.afterList = nil
		_, err := svc.ConfirmPayment(ctx, result.Hold.ID)
		require.NoError(t, err)
	}

	released, err := svc.ExpireHolds(ctx, now.Add(16*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, released, "a paid hold must not count as released")

	appt, err := store.GetAppointment(ctx, result.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, appt.Status, "payment won the race; sweep must not cancel")
	assert.Equal(t, SlotBooked, store.slotStatus("clinic-1", "prof-1", "2026-09-10", "14:00"))

	// Explicitly releasing a paid hold is refused the same way.
	require.ErrorIs(t, svc.ReleaseHold(ctx, result.Hold.ID), ErrHoldPaid)
}

func TestCancelFreesSlot(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	result, err := svc.Book(ctx, baseRequest())
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, result.Appointment.ID))
	assert.Equal(t, SlotFree, store.slotStatus("clinic-1", "prof-1", "2026-09-10", "14:00"))

	// Freed slot is bookable again.
	_, err = svc.Book(ctx, baseRequest())
	require.NoError(t, err)
}

func TestRescheduleConflictLeavesOriginal(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	original, err := svc.Book(ctx, baseRequest())
	require.NoError(t, err)

	taken := baseRequest()
	taken.Time = "16:00"
	taken.Phone = "+5511888880000"
	_, err = svc.Book(ctx, taken)
	require.NoError(t, err)

	_, err = svc.Reschedule(ctx, original.Appointment.ID, "2026-09-10", "16:00")
	require.ErrorIs(t, err, ErrSlotConflict)

	appt, err := store.GetAppointment(ctx, original.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, appt.Status)
	assert.Equal(t, SlotBooked, store.slotStatus("clinic-1", "prof-1", "2026-09-10", "14:00"))
}

func TestRescheduleMovesAppointment(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	original, err := svc.Book(ctx, baseRequest())
	require.NoError(t, err)

	result, err := svc.Reschedule(ctx, original.Appointment.ID, "2026-09-11", "09:00")
	require.NoError(t, err)
	assert.Equal(t, "2026-09-11", result.Appointment.Date)

	old, err := store.GetAppointment(ctx, original.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, old.Status)
	assert.Equal(t, SlotFree, store.slotStatus("clinic-1", "prof-1", "2026-09-10", "14:00"))
	assert.Equal(t, SlotBooked, store.slotStatus("clinic-1", "prof-1", "2026-09-11", "09:00"))
}

func TestPendingAppointmentLookup(t *testing.T) {
	store := newMemStore()
	future := time.Now().UTC().Add(48 * time.Hour)
	svc := NewService(store, nil)
	ctx := context.Background()

	pending, err := svc.PendingAppointment(ctx, "clinic-1", "+5511999990000")
	require.NoError(t, err)
	assert.Nil(t, pending, "no appointment yet")

	req := baseRequest()
	req.Date = future.Format("2006-01-02")
	req.Time = "10:00"
	_, err = svc.Book(ctx, req)
	require.NoError(t, err)

	pending, err = svc.PendingAppointment(ctx, "clinic-1", "+5511999990000")
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, req.Date, pending.Date)
}

func TestDueRemindersWindowAndFlags(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil)
	ctx := context.Background()
	now := time.Date(2026, 9, 9, 14, 0, 0, 0, time.UTC)

	// Starts exactly 24h from now.
	appt := &Appointment{
		ID:       uuid.New(),
		ClinicID: "clinic-1",
		Phone:    "+5511999990000",
		StartsAt: now.Add(24 * time.Hour),
		Status:   StatusConfirmed,
	}
	require.NoError(t, store.InsertAppointment(ctx, appt))

	due, err := svc.DueReminders(ctx, now, 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, Reminder24h, due[0].Kind)

	// Once marked sent it never re-fires.
	require.NoError(t, svc.MarkReminderSent(ctx, due[0]))
	due, err = svc.DueReminders(ctx, now, 10*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, due)

	// At T-2h the second reminder becomes eligible.
	due, err = svc.DueReminders(ctx, appt.StartsAt.Add(-2*time.Hour), 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, Reminder2h, due[0].Kind)

	// Outside the tolerance window nothing is due.
	due, err = svc.DueReminders(ctx, appt.StartsAt.Add(-90*time.Minute), 10*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, due)
}
