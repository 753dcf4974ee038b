package conversation

import (
	"context"
	"strings"
	"time"

	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/pkg/logging"
)

// Button payload ids. The webhook relays these verbatim, so they are part of
// the wire contract with the message templates.
const (
	buttonMenuSchedule = "menu_schedule"
	buttonMenuFAQ      = "menu_faq"
	buttonMenuHuman    = "menu_human"

	buttonApptReschedule = "appt_reschedule"
	buttonApptCancel     = "appt_cancel"
	buttonApptQuestion   = "appt_question"
	buttonApptPayment    = "appt_payment"

	buttonPayPix        = "pay_pix"
	buttonPayCard       = "pay_card"
	buttonTypeInsurance = "type_insurance"
	buttonTypePrivate   = "type_private"

	buttonConfirmYes    = "confirm_yes"
	buttonConfirmCancel = "confirm_cancel"

	professionalPayloadPrefix = "prof_"
	slotPayloadPrefix         = "slot_"
)

type stateStore interface {
	Get(ctx context.Context, clinicID, phone string) (*State, error)
	Save(ctx context.Context, state *State) error
	Clear(ctx context.Context, clinicID, phone string) error
	SetHumanUntil(ctx context.Context, clinicID, phone string, until *time.Time) error
}

// Router decides which handler answers a coalesced message. Routing is
// priority-ordered pattern matching over (takeover flag, persisted state,
// button payload, normalized text); the ordering is load-bearing, urgent
// cases short-circuit routine ones.
type Router struct {
	states      stateStore
	engine      bookingEngine
	clinics     clinicDirectory
	sender      Sender
	resolver    IntentResolver
	notifier    OperatorNotifier
	transcript  *TranscriptStore
	takeoverTTL time.Duration
	logger      *logging.Logger
	now         func() time.Time
}

// RouterOption customizes the router.
type RouterOption func(*Router)

// WithTakeoverTTL bounds how long the human-takeover flag silences the bot.
func WithTakeoverTTL(ttl time.Duration) RouterOption {
	return func(r *Router) {
		if ttl > 0 {
			r.takeoverTTL = ttl
		}
	}
}

// WithOperatorNotifier wires escalation notifications.
func WithOperatorNotifier(notifier OperatorNotifier) RouterOption {
	return func(r *Router) {
		r.notifier = notifier
	}
}

// WithTranscriptStore wires the rolling transcript used in escalation emails.
func WithTranscriptStore(store *TranscriptStore) RouterOption {
	return func(r *Router) {
		r.transcript = store
	}
}

func withRouterClock(now func() time.Time) RouterOption {
	return func(r *Router) {
		r.now = now
	}
}

// NewRouter constructs the conversation router.
func NewRouter(states stateStore, engine bookingEngine, clinics clinicDirectory, sender Sender, resolver IntentResolver, logger *logging.Logger, opts ...RouterOption) *Router {
	if states == nil {
		panic("conversation: state store cannot be nil")
	}
	if engine == nil {
		panic("conversation: booking engine cannot be nil")
	}
	if clinics == nil {
		panic("conversation: clinic directory cannot be nil")
	}
	if sender == nil {
		panic("conversation: sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	r := &Router{
		states:      states,
		engine:      engine,
		clinics:     clinics,
		sender:      sender,
		resolver:    resolver,
		takeoverTTL: 12 * time.Hour,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route dispatches one coalesced message. First match wins; handlers own
// state transitions and outbound text.
func (r *Router) Route(ctx context.Context, msg MessageRequest) error {
	state, err := r.states.Get(ctx, msg.ClinicID, msg.Phone)
	if err != nil {
		return err
	}
	if msg.ContactName != "" && state.ContactName == "" {
		state.ContactName = msg.ContactName
		if err := r.states.Save(ctx, state); err != nil {
			r.logger.Warn("failed to record contact name", "error", err, "phone", msg.Phone)
		}
	}

	r.appendTranscript(ctx, msg, "patient", msg.Text)

	// 1. Human takeover: the bot stays silent.
	if state.HumanActive(r.now()) {
		r.logger.Debug("human takeover active, skipping automated processing",
			"clinic_id", msg.ClinicID, "phone", msg.Phone)
		return nil
	}

	// 2. Reminder confirmation buttons, only with a pending appointment.
	if msg.ButtonPayload == buttonConfirmYes || msg.ButtonPayload == buttonConfirmCancel {
		appt, err := r.engine.PendingAppointment(ctx, msg.ClinicID, msg.Phone)
		if err != nil {
			return err
		}
		if appt != nil {
			return r.handleReminderResponse(ctx, msg, state, appt)
		}
		// No pending appointment: fall through to the delegate path.
	}

	// 3. Greeting menu buttons.
	switch msg.ButtonPayload {
	case buttonMenuSchedule:
		return r.handleScheduling(ctx, msg, state)
	case buttonMenuFAQ:
		return r.handleFAQ(ctx, msg, state)
	case buttonMenuHuman:
		return r.handleEscalation(ctx, msg, state, "paciente escolheu atendimento humano")
	}

	// 4. Appointment management buttons.
	switch msg.ButtonPayload {
	case buttonApptReschedule, buttonApptCancel, buttonApptQuestion, buttonApptPayment:
		return r.handleAppointmentButton(ctx, msg, state)
	}

	// 5. Payment type/method buttons.
	switch msg.ButtonPayload {
	case buttonTypeInsurance, buttonTypePrivate:
		return r.handlePaymentType(ctx, msg, state, msg.ButtonPayload)
	case buttonPayPix, buttonPayCard:
		return r.handlePaymentMethod(ctx, msg, state, msg.ButtonPayload)
	}

	// Mid-scheduling selection buttons ride on the persisted state.
	if strings.HasPrefix(msg.ButtonPayload, professionalPayloadPrefix) && state.State == StateAwaitingProfessional {
		return r.handleProfessionalSelected(ctx, msg, state)
	}
	if strings.HasPrefix(msg.ButtonPayload, slotPayloadPrefix) && state.State == StateAwaitingSlot {
		return r.handleSlotSelected(ctx, msg, state)
	}

	// 6. Typed answers while awaiting a payment choice.
	if state.State == StateAwaitingPaymentType {
		if payload := paymentTypeFromText(msg.Text); payload != "" {
			return r.handlePaymentType(ctx, msg, state, payload)
		}
	}
	if state.State == StateAwaitingPaymentMethod {
		if payload := paymentMethodFromText(msg.Text); payload != "" {
			return r.handlePaymentMethod(ctx, msg, state, payload)
		}
	}

	// 7. Frustration and explicit human requests.
	if escalate, reason := wantsHuman(msg.Text); escalate {
		return r.handleEscalation(ctx, msg, state, reason)
	}

	// 8. Patient offering to share their location.
	if wantsToShareLocation(msg.Text) {
		return r.handleLocationShareRequest(ctx, msg)
	}

	// 9. Address questions.
	if asksForAddress(msg.Text) {
		return r.handleAddress(ctx, msg)
	}

	// 10. Simple greeting.
	if isSimpleGreeting(msg.Text) {
		return r.handleGreeting(ctx, msg, state)
	}

	// 11. Appointment-management free text stays open-ended.
	if hasAppointmentIntent(msg.Text) {
		return r.handleDelegate(ctx, msg, state)
	}

	// 12. Scheduling intent.
	if hasSchedulingIntent(msg.Text) {
		return r.handleScheduling(ctx, msg, state)
	}

	// 13. Default.
	return r.handleDelegate(ctx, msg, state)
}

func (r *Router) appendTranscript(ctx context.Context, msg MessageRequest, role, body string) {
	if r.transcript == nil || strings.TrimSpace(body) == "" {
		return
	}
	err := r.transcript.Append(ctx, msg.ClinicID, msg.Phone, TranscriptMessage{
		Role: role,
		Body: body,
	})
	if err != nil {
		r.logger.Warn("failed to append transcript", "error", err, "phone", msg.Phone)
	}
}

func (r *Router) reply(ctx context.Context, msg MessageRequest, body string) error {
	if _, err := r.sender.SendText(ctx, msg.Phone, body); err != nil {
		return err
	}
	r.appendTranscript(ctx, msg, "assistant", body)
	return nil
}
