package conversation

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/booking"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/clinic"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/whatsapp"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/pkg/logging"
)

type memStateStore struct {
	mu     sync.Mutex
	states map[string]*State
}

func newMemStateStore() *memStateStore {
	return &memStateStore{states: make(map[string]*State)}
}

func stateKey(clinicID, phone string) string {
	return clinicID + ":" + phone
}

func (m *memStateStore) Get(_ context.Context, clinicID, phone string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[stateKey(clinicID, phone)]; ok {
		cp := *st
		if st.Waiting != nil {
			cp.Waiting = make(map[string]string, len(st.Waiting))
			for k, v := range st.Waiting {
				cp.Waiting[k] = v
			}
		}
		return &cp, nil
	}
	return &State{ClinicID: clinicID, Phone: phone}, nil
}

func (m *memStateStore) Save(_ context.Context, state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *state
	m.states[stateKey(state.ClinicID, state.Phone)] = &cp
	return nil
}

func (m *memStateStore) Clear(_ context.Context, clinicID, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[stateKey(clinicID, phone)]; ok {
		st.State = StateNone
		st.Waiting = nil
	}
	return nil
}

func (m *memStateStore) SetHumanUntil(_ context.Context, clinicID, phone string, until *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := stateKey(clinicID, phone)
	st, ok := m.states[key]
	if !ok {
		st = &State{ClinicID: clinicID, Phone: phone}
		m.states[key] = st
	}
	st.HumanUntil = until
	return nil
}

func (m *memStateStore) current(clinicID, phone string) *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[stateKey(clinicID, phone)]
}

type stubEngine struct {
	mu          sync.Mutex
	pending     *booking.Appointment
	bookErrs    []error
	slotTimes   []string
	deposit     int64
	bookCalls   []booking.BookRequest
	cancelled   []uuid.UUID
	rescheduled []string
}

func (s *stubEngine) Book(_ context.Context, req booking.BookRequest) (*booking.BookResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookCalls = append(s.bookCalls, req)
	if len(s.bookErrs) > 0 {
		err := s.bookErrs[0]
		s.bookErrs = s.bookErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	result := &booking.BookResult{
		Appointment: &booking.Appointment{
			ID:             uuid.New(),
			ClinicID:       req.ClinicID,
			Phone:          req.Phone,
			ProfessionalID: req.ProfessionalID,
			Date:           req.Date,
			Time:           req.Time,
			Status:         booking.StatusConfirmed,
		},
	}
	if req.RequireDeposit {
		result.Appointment.Status = booking.StatusAwaitingConfirmation
		result.Hold = &booking.Hold{
			ID:            uuid.New(),
			AppointmentID: result.Appointment.ID,
			AmountCents:   8000,
			ExpiresAt:     time.Now().Add(15 * time.Minute),
		}
	}
	return result, nil
}

func (s *stubEngine) Cancel(_ context.Context, apptID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, apptID)
	return nil
}

func (s *stubEngine) Reschedule(_ context.Context, apptID uuid.UUID, newDate, newTime string) (*booking.BookResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rescheduled = append(s.rescheduled, apptID.String()+"|"+newDate+"|"+newTime)
	return &booking.BookResult{
		Appointment: &booking.Appointment{
			ID:     apptID,
			Date:   newDate,
			Time:   newTime,
			Status: booking.StatusConfirmed,
		},
	}, nil
}

func (s *stubEngine) PendingAppointment(context.Context, string, string) (*booking.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending, nil
}

func (s *stubEngine) FreeSlots(_ context.Context, clinicID, professionalID, date string) ([]booking.Slot, error) {
	times := s.slotTimes
	if times == nil {
		times = []string{"09:00"}
	}
	slots := make([]booking.Slot, 0, len(times))
	for _, tm := range times {
		slots = append(slots, booking.Slot{
			ClinicID:       clinicID,
			ProfessionalID: professionalID,
			Date:           date,
			Time:           tm,
			Status:         booking.SlotFree,
		})
	}
	return slots, nil
}

func (s *stubEngine) DepositAmountCents(context.Context, string, string) int64 {
	if s.deposit > 0 {
		return s.deposit
	}
	return 8000
}

type stubDirectory struct {
	profile *clinic.Profile
	err     error
}

func (s *stubDirectory) Get(context.Context, string) (*clinic.Profile, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.profile, nil
}

type sentButtons struct {
	body    string
	buttons []whatsapp.Button
}

type sentList struct {
	body     string
	label    string
	sections []whatsapp.ListSection
}

type stubSender struct {
	mu      sync.Mutex
	texts   []string
	buttons []sentButtons
	lists   []sentList
}

func (s *stubSender) SendText(_ context.Context, _, body string) (*whatsapp.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, body)
	return &whatsapp.SendResult{MessageID: "wamid.test"}, nil
}

func (s *stubSender) SendButtons(_ context.Context, _, body string, buttons []whatsapp.Button) (*whatsapp.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buttons = append(s.buttons, sentButtons{body: body, buttons: buttons})
	return &whatsapp.SendResult{MessageID: "wamid.test"}, nil
}

func (s *stubSender) SendList(_ context.Context, _, body, label string, sections []whatsapp.ListSection) (*whatsapp.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists = append(s.lists, sentList{body: body, label: label, sections: sections})
	return &whatsapp.SendResult{MessageID: "wamid.test"}, nil
}

func (s *stubSender) sendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.texts) + len(s.buttons) + len(s.lists)
}

type stubResolver struct {
	answer string
	err    error
	calls  int
}

func (s *stubResolver) Resolve(context.Context, MessageRequest, *State) (string, error) {
	s.calls++
	return s.answer, s.err
}

type stubNotifier struct {
	clinicName string
	phone      string
	reason     string
	transcript []string
	calls      int
}

func (s *stubNotifier) NotifyEscalation(_ context.Context, clinicName, patientPhone, reason string, transcript []string) error {
	s.calls++
	s.clinicName = clinicName
	s.phone = patientPhone
	s.reason = reason
	s.transcript = transcript
	return nil
}

func testProfile() *clinic.Profile {
	return &clinic.Profile{
		ID:       "clinic-1",
		Name:     "Clínica Bem Estar",
		Address:  "Rua das Flores, 100",
		City:     "São Paulo",
		State:    "SP",
		Phone:    "+5511999990000",
		Timezone: "America/Sao_Paulo",
		Professionals: []clinic.Professional{
			{ID: "prof-1", Name: "Dra. Ana Souza", Specialty: "Dermatologia"},
		},
	}
}

type routerFixture struct {
	router   *Router
	states   *memStateStore
	engine   *stubEngine
	dir      *stubDirectory
	sender   *stubSender
	resolver *stubResolver
}

func newRouterFixture(t *testing.T, opts ...RouterOption) *routerFixture {
	t.Helper()
	f := &routerFixture{
		states:   newMemStateStore(),
		engine:   &stubEngine{},
		dir:      &stubDirectory{profile: testProfile()},
		sender:   &stubSender{},
		resolver: &stubResolver{answer: "resposta geral"},
	}
	f.router = NewRouter(f.states, f.engine, f.dir, f.sender, f.resolver, logging.Default(), opts...)
	return f
}

func request(text, payload string) MessageRequest {
	return MessageRequest{
		ClinicID:      "clinic-1",
		Phone:         "+5511988887777",
		MessageID:     "wamid.in",
		Text:          text,
		ButtonPayload: payload,
	}
}

func TestRouteGreetingSendsMenu(t *testing.T) {
	f := newRouterFixture(t)

	if err := f.router.Route(context.Background(), request("oi", "")); err != nil {
		t.Fatalf("route failed: %v", err)
	}

	if len(f.sender.buttons) != 1 {
		t.Fatalf("expected one button message, got %d", len(f.sender.buttons))
	}
	sent := f.sender.buttons[0]
	if !strings.Contains(sent.body, "Clínica Bem Estar") {
		t.Fatalf("expected greeting to mention the clinic, got %q", sent.body)
	}
	ids := []string{sent.buttons[0].ID, sent.buttons[1].ID, sent.buttons[2].ID}
	want := []string{buttonMenuSchedule, buttonMenuFAQ, buttonMenuHuman}
	for i, id := range ids {
		if id != want[i] {
			t.Fatalf("button %d: expected %q, got %q", i, want[i], id)
		}
	}
	if st := f.states.current("clinic-1", "+5511988887777"); st != nil && st.State != StateNone {
		t.Fatalf("greeting must not start a flow, state is %q", st.State)
	}
	if f.resolver.calls != 0 {
		t.Fatalf("greeting should not reach the delegate")
	}
}

func TestRouteTakeoverSilencesBot(t *testing.T) {
	f := newRouterFixture(t)
	until := time.Now().Add(time.Hour)
	if err := f.states.SetHumanUntil(context.Background(), "clinic-1", "+5511988887777", &until); err != nil {
		t.Fatalf("set takeover: %v", err)
	}

	if err := f.router.Route(context.Background(), request("oi", "")); err != nil {
		t.Fatalf("route failed: %v", err)
	}

	if n := f.sender.sendCount(); n != 0 {
		t.Fatalf("expected silence during takeover, got %d sends", n)
	}
	if f.resolver.calls != 0 {
		t.Fatalf("delegate must not run during takeover")
	}
}

func TestRouteConfirmYesWithoutPendingFallsThrough(t *testing.T) {
	f := newRouterFixture(t)

	if err := f.router.Route(context.Background(), request("", buttonConfirmYes)); err != nil {
		t.Fatalf("route failed: %v", err)
	}

	if f.resolver.calls != 1 {
		t.Fatalf("expected fall-through to delegate, resolver calls = %d", f.resolver.calls)
	}
	if len(f.engine.cancelled) != 0 {
		t.Fatalf("nothing should be cancelled")
	}
}

func TestRouteConfirmCancelCancelsPending(t *testing.T) {
	f := newRouterFixture(t)
	apptID := uuid.New()
	f.engine.pending = &booking.Appointment{
		ID:   apptID,
		Date: "2026-09-10",
		Time: "14:00",
	}

	if err := f.router.Route(context.Background(), request("", buttonConfirmCancel)); err != nil {
		t.Fatalf("route failed: %v", err)
	}

	if len(f.engine.cancelled) != 1 || f.engine.cancelled[0] != apptID {
		t.Fatalf("expected pending appointment cancelled, got %v", f.engine.cancelled)
	}
	if len(f.sender.texts) != 1 || !strings.Contains(f.sender.texts[0], "cancelada") {
		t.Fatalf("expected cancellation reply, got %v", f.sender.texts)
	}
}

func TestRouteMenuScheduleSingleProfessional(t *testing.T) {
	f := newRouterFixture(t)

	if err := f.router.Route(context.Background(), request("", buttonMenuSchedule)); err != nil {
		t.Fatalf("route failed: %v", err)
	}

	st := f.states.current("clinic-1", "+5511988887777")
	if st == nil || st.State != StateAwaitingSlot {
		t.Fatalf("expected state awaiting_slot, got %+v", st)
	}
	if st.WaitingValue(waitingProfessionalID) != "prof-1" {
		t.Fatalf("expected professional preselected, got %q", st.WaitingValue(waitingProfessionalID))
	}
	if len(f.sender.lists) != 1 {
		t.Fatalf("expected one slot list, got %d", len(f.sender.lists))
	}
	firstRow := f.sender.lists[0].sections[0].Rows[0]
	if !strings.HasPrefix(firstRow.ID, slotPayloadPrefix) {
		t.Fatalf("slot row id %q missing prefix", firstRow.ID)
	}
}

func TestRouteMenuScheduleMultipleProfessionals(t *testing.T) {
	f := newRouterFixture(t)
	f.dir.profile.Professionals = append(f.dir.profile.Professionals,
		clinic.Professional{ID: "prof-2", Name: "Dr. Bruno Lima", Specialty: "Ortopedia"})

	if err := f.router.Route(context.Background(), request("quero agendar", "")); err != nil {
		t.Fatalf("route failed: %v", err)
	}

	st := f.states.current("clinic-1", "+5511988887777")
	if st == nil || st.State != StateAwaitingProfessional {
		t.Fatalf("expected state awaiting_professional, got %+v", st)
	}
	if len(f.sender.lists) != 1 {
		t.Fatalf("expected professional list, got %d lists", len(f.sender.lists))
	}
	rows := f.sender.lists[0].sections[0].Rows
	if len(rows) != 2 || rows[0].ID != "prof_prof-1" || rows[1].ID != "prof_prof-2" {
		t.Fatalf("unexpected professional rows %+v", rows)
	}
}

func TestRouteSlotSelectionWithoutDepositBooksDirectly(t *testing.T) {
	f := newRouterFixture(t)
	seedState(t, f, &State{
		ClinicID: "clinic-1",
		Phone:    "+5511988887777",
		State:    StateAwaitingSlot,
		Waiting:  map[string]string{waitingProfessionalID: "prof-1"},
	})

	if err := f.router.Route(context.Background(), request("", "slot_2026-09-10_14:00")); err != nil {
		t.Fatalf("route failed: %v", err)
	}

	if len(f.engine.bookCalls) != 1 {
		t.Fatalf("expected one booking, got %d", len(f.engine.bookCalls))
	}
	call := f.engine.bookCalls[0]
	if call.Date != "2026-09-10" || call.Time != "14:00" || call.RequireDeposit {
		t.Fatalf("unexpected booking request %+v", call)
	}
	st := f.states.current("clinic-1", "+5511988887777")
	if st.State != StateNone {
		t.Fatalf("expected state cleared after booking, got %q", st.State)
	}
	if len(f.sender.texts) != 1 || !strings.Contains(f.sender.texts[0], "confirmada") {
		t.Fatalf("expected confirmation reply, got %v", f.sender.texts)
	}
}

func TestRouteSlotSelectionWithDepositAsksPaymentType(t *testing.T) {
	f := newRouterFixture(t)
	f.dir.profile.RequireDeposit = true
	seedState(t, f, &State{
		ClinicID: "clinic-1",
		Phone:    "+5511988887777",
		State:    StateAwaitingSlot,
		Waiting:  map[string]string{waitingProfessionalID: "prof-1"},
	})

	if err := f.router.Route(context.Background(), request("", "slot_2026-09-10_14:00")); err != nil {
		t.Fatalf("route failed: %v", err)
	}

	if len(f.engine.bookCalls) != 0 {
		t.Fatalf("booking must wait for the payment answers")
	}
	st := f.states.current("clinic-1", "+5511988887777")
	if st.State != StateAwaitingPaymentType {
		t.Fatalf("expected awaiting_payment_type, got %q", st.State)
	}
	if len(f.sender.buttons) != 1 {
		t.Fatalf("expected payment type buttons, got %d", len(f.sender.buttons))
	}
	btns := f.sender.buttons[0].buttons
	if btns[0].ID != buttonTypeInsurance || btns[1].ID != buttonTypePrivate {
		t.Fatalf("unexpected payment type buttons %+v", btns)
	}
}

func TestRoutePaymentMethodBooksWithHold(t *testing.T) {
	f := newRouterFixture(t)
	seedState(t, f, &State{
		ClinicID: "clinic-1",
		Phone:    "+5511988887777",
		State:    StateAwaitingPaymentMethod,
		Waiting: map[string]string{
			waitingProfessionalID: "prof-1",
			waitingSlotDate:       "2026-09-10",
			waitingSlotTime:       "14:00",
		},
	})

	if err := f.router.Route(context.Background(), request("", buttonPayPix)); err != nil {
		t.Fatalf("route failed: %v", err)
	}

	if len(f.engine.bookCalls) != 1 || !f.engine.bookCalls[0].RequireDeposit {
		t.Fatalf("expected deposit booking, got %+v", f.engine.bookCalls)
	}
	if len(f.sender.texts) != 1 {
		t.Fatalf("expected hold reply, got %v", f.sender.texts)
	}
	reply := f.sender.texts[0]
	if !strings.Contains(reply, "R$ 80,00") || !strings.Contains(reply, "PIX") {
		t.Fatalf("expected hold amount and method in reply, got %q", reply)
	}
	if st := f.states.current("clinic-1", "+5511988887777"); st.State != StateNone {
		t.Fatalf("expected state cleared, got %q", st.State)
	}
}

func TestRouteTypedPaymentKeywordWhileAwaiting(t *testing.T) {
	f := newRouterFixture(t)
	seedState(t, f, &State{
		ClinicID: "clinic-1",
		Phone:    "+5511988887777",
		State:    StateAwaitingPaymentType,
		Waiting: map[string]string{
			waitingProfessionalID: "prof-1",
			waitingSlotDate:       "2026-09-10",
			waitingSlotTime:       "14:00",
		},
	})

	if err := f.router.Route(context.Background(), request("pode ser particular", "")); err != nil {
		t.Fatalf("route failed: %v", err)
	}

	st := f.states.current("clinic-1", "+5511988887777")
	if st.State != StateAwaitingPaymentMethod {
		t.Fatalf("expected typed answer to advance the flow, state %q", st.State)
	}
	if f.resolver.calls != 0 {
		t.Fatalf("typed payment answer must not reach delegate")
	}
	btns := f.sender.buttons[0].buttons
	if btns[0].ID != buttonPayPix || btns[1].ID != buttonPayCard {
		t.Fatalf("unexpected payment method buttons %+v", btns)
	}
}

func TestRouteConflictOffersAlternatives(t *testing.T) {
	f := newRouterFixture(t)
	f.engine.bookErrs = []error{booking.ErrSlotConflict}
	seedState(t, f, &State{
		ClinicID: "clinic-1",
		Phone:    "+5511988887777",
		State:    StateAwaitingSlot,
		Waiting:  map[string]string{waitingProfessionalID: "prof-1"},
	})

	if err := f.router.Route(context.Background(), request("", "slot_2026-09-10_14:00")); err != nil {
		t.Fatalf("route failed: %v", err)
	}

	if len(f.sender.lists) != 1 {
		t.Fatalf("expected alternative slot list after conflict, got %d lists", len(f.sender.lists))
	}
	if !strings.Contains(f.sender.lists[0].body, "acabou de ser reservado") {
		t.Fatalf("expected conflict apology, got %q", f.sender.lists[0].body)
	}
	st := f.states.current("clinic-1", "+5511988887777")
	if st.State != StateAwaitingSlot {
		t.Fatalf("expected flow back to slot choice, got %q", st.State)
	}
	if st.WaitingValue(waitingSlotDate) != "" {
		t.Fatalf("stale slot must be dropped from waiting context")
	}
}

func TestRouteEscalationSetsTakeoverAndNotifies(t *testing.T) {
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	notifier := &stubNotifier{}
	f := newRouterFixture(t,
		WithOperatorNotifier(notifier),
		WithTakeoverTTL(4*time.Hour),
		withRouterClock(func() time.Time { return now }),
	)

	if err := f.router.Route(context.Background(), request("quero falar com um atendente", "")); err != nil {
		t.Fatalf("route failed: %v", err)
	}

	st := f.states.current("clinic-1", "+5511988887777")
	if st == nil || st.HumanUntil == nil {
		t.Fatalf("expected takeover flag set")
	}
	if !st.HumanUntil.Equal(now.Add(4 * time.Hour)) {
		t.Fatalf("expected takeover until %v, got %v", now.Add(4*time.Hour), st.HumanUntil)
	}
	if notifier.calls != 1 {
		t.Fatalf("expected operator notification, got %d", notifier.calls)
	}
	if notifier.clinicName != "Clínica Bem Estar" || notifier.phone != "+5511988887777" {
		t.Fatalf("unexpected notification target %q %q", notifier.clinicName, notifier.phone)
	}
	if len(f.sender.texts) != 1 || !strings.Contains(f.sender.texts[0], "atendente") {
		t.Fatalf("expected handoff reply, got %v", f.sender.texts)
	}
}

func TestRouteAddressQuestion(t *testing.T) {
	f := newRouterFixture(t)

	if err := f.router.Route(context.Background(), request("qual o endereço de vocês?", "")); err != nil {
		t.Fatalf("route failed: %v", err)
	}

	if len(f.sender.texts) != 1 {
		t.Fatalf("expected address reply, got %v", f.sender.texts)
	}
	if !strings.Contains(f.sender.texts[0], "Rua das Flores, 100") {
		t.Fatalf("expected the clinic address, got %q", f.sender.texts[0])
	}
	if f.resolver.calls != 0 {
		t.Fatalf("address question must not reach delegate")
	}
}

func TestRouteAppointmentButtonWithoutPending(t *testing.T) {
	f := newRouterFixture(t)

	if err := f.router.Route(context.Background(), request("", buttonApptCancel)); err != nil {
		t.Fatalf("route failed: %v", err)
	}

	if len(f.sender.texts) != 1 || !strings.Contains(f.sender.texts[0], "Não encontrei") {
		t.Fatalf("expected not-found reply, got %v", f.sender.texts)
	}
	if len(f.engine.cancelled) != 0 {
		t.Fatalf("nothing to cancel without a pending appointment")
	}
}

func TestRouteRescheduleSkipsPaymentQuestions(t *testing.T) {
	f := newRouterFixture(t)
	f.dir.profile.RequireDeposit = true
	apptID := uuid.New()
	f.engine.pending = &booking.Appointment{
		ID:             apptID,
		ProfessionalID: "prof-1",
		Date:           "2026-09-10",
		Time:           "14:00",
	}

	if err := f.router.Route(context.Background(), request("", buttonApptReschedule)); err != nil {
		t.Fatalf("route failed: %v", err)
	}
	st := f.states.current("clinic-1", "+5511988887777")
	if st.State != StateAwaitingSlot || st.WaitingValue(waitingRescheduleID) != apptID.String() {
		t.Fatalf("expected reschedule flow armed, got %+v", st)
	}

	if err := f.router.Route(context.Background(), request("", "slot_2026-09-12_10:00")); err != nil {
		t.Fatalf("route failed: %v", err)
	}

	if len(f.engine.rescheduled) != 1 {
		t.Fatalf("expected one reschedule, got %v", f.engine.rescheduled)
	}
	want := apptID.String() + "|2026-09-12|10:00"
	if f.engine.rescheduled[0] != want {
		t.Fatalf("expected %q, got %q", want, f.engine.rescheduled[0])
	}
	if len(f.engine.bookCalls) != 0 {
		t.Fatalf("reschedule must not open a new booking")
	}
	if len(f.sender.buttons) != 0 {
		t.Fatalf("payment questions must be skipped on reschedule, got %d button messages", len(f.sender.buttons))
	}
}

func TestRouteDefaultDelegates(t *testing.T) {
	f := newRouterFixture(t)
	f.resolver.answer = "Atendemos de segunda a sexta, das 8h às 18h."

	if err := f.router.Route(context.Background(), request("vocês atendem aos sábados?", "")); err != nil {
		t.Fatalf("route failed: %v", err)
	}

	if f.resolver.calls != 1 {
		t.Fatalf("expected delegate call, got %d", f.resolver.calls)
	}
	if len(f.sender.texts) != 1 || f.sender.texts[0] != f.resolver.answer {
		t.Fatalf("expected delegate answer relayed, got %v", f.sender.texts)
	}
}

func seedState(t *testing.T, f *routerFixture, state *State) {
	t.Helper()
	if err := f.states.Save(context.Background(), state); err != nil {
		t.Fatalf("seed state: %v", err)
	}
}
