package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/booking"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/whatsapp"
)

// Waiting-context keys the scheduling flow carries between messages.
const (
	waitingProfessionalID = "professional_id"
	waitingSlotDate       = "slot_date"
	waitingSlotTime       = "slot_time"
	waitingRescheduleID   = "reschedule_id"
	waitingPaymentMethod  = "payment_method"
)

const slotListDays = 7

func (r *Router) handleScheduling(ctx context.Context, msg MessageRequest, state *State) error {
	profile, err := r.clinics.Get(ctx, msg.ClinicID)
	if err != nil {
		return err
	}
	if len(profile.Professionals) == 0 {
		return r.reply(ctx, msg, "Nossa agenda online ainda não está disponível. Um atendente pode ajudar a marcar sua consulta.")
	}

	// With a single professional there is nothing to choose.
	if len(profile.Professionals) == 1 {
		pro := profile.Professionals[0]
		state.State = StateAwaitingSlot
		state.Waiting = map[string]string{waitingProfessionalID: pro.ID}
		if err := r.states.Save(ctx, state); err != nil {
			return err
		}
		return r.sendSlotList(ctx, msg, pro.ID, fmt.Sprintf("Vamos agendar com %s! Escolha um horário:", pro.Name))
	}

	rows := make([]whatsapp.ListRow, 0, len(profile.Professionals))
	for _, pro := range profile.Professionals {
		rows = append(rows, whatsapp.ListRow{
			ID:          professionalPayloadPrefix + pro.ID,
			Title:       pro.Name,
			Description: pro.Specialty,
		})
		if len(rows) == 10 {
			break
		}
	}
	state.State = StateAwaitingProfessional
	state.Waiting = nil
	if err := r.states.Save(ctx, state); err != nil {
		return err
	}
	sections := []whatsapp.ListSection{{Title: "Profissionais", Rows: rows}}
	if _, err := r.sender.SendList(ctx, msg.Phone, "Com quem você gostaria de se consultar?", "Escolher", sections); err != nil {
		return err
	}
	r.appendTranscript(ctx, msg, "assistant", "Com quem você gostaria de se consultar?")
	return nil
}

func (r *Router) handleProfessionalSelected(ctx context.Context, msg MessageRequest, state *State) error {
	professionalID := strings.TrimPrefix(msg.ButtonPayload, professionalPayloadPrefix)
	if professionalID == "" {
		return r.handleScheduling(ctx, msg, state)
	}
	state.State = StateAwaitingSlot
	if state.Waiting == nil {
		state.Waiting = map[string]string{}
	}
	state.Waiting[waitingProfessionalID] = professionalID
	if err := r.states.Save(ctx, state); err != nil {
		return err
	}
	return r.sendSlotList(ctx, msg, professionalID, "Ótimo! Agora escolha um horário:")
}

// sendSlotList offers free slots over the coming days as a list message,
// grouped by date.
func (r *Router) sendSlotList(ctx context.Context, msg MessageRequest, professionalID, body string) error {
	loc := r.clinicLocation(ctx, msg.ClinicID)
	today := r.now().In(loc)

	var sections []whatsapp.ListSection
	total := 0
	for day := 1; day <= slotListDays && total < 10; day++ {
		date := today.AddDate(0, 0, day).Format("2006-01-02")
		slots, err := r.engine.FreeSlots(ctx, msg.ClinicID, professionalID, date)
		if err != nil {
			return err
		}
		if len(slots) == 0 {
			continue
		}
		section := whatsapp.ListSection{Title: formatDateBR(date)}
		for _, slot := range slots {
			if total == 10 {
				break
			}
			section.Rows = append(section.Rows, whatsapp.ListRow{
				ID:    slotPayloadPrefix + date + "_" + slot.Time,
				Title: slot.Time,
			})
			total++
		}
		sections = append(sections, section)
	}

	if total == 0 {
		return r.reply(ctx, msg, "Não encontrei horários livres nos próximos dias. 😕 Quer que eu chame um atendente para verificar outras opções?")
	}
	if _, err := r.sender.SendList(ctx, msg.Phone, body, "Ver horários", sections); err != nil {
		return err
	}
	r.appendTranscript(ctx, msg, "assistant", body)
	return nil
}

func (r *Router) handleSlotSelected(ctx context.Context, msg MessageRequest, state *State) error {
	date, timeOfDay, ok := parseSlotPayload(msg.ButtonPayload)
	if !ok {
		return r.reply(ctx, msg, "Não reconheci esse horário. Pode escolher de novo na lista?")
	}
	professionalID := state.WaitingValue(waitingProfessionalID)
	if professionalID == "" {
		return r.handleScheduling(ctx, msg, state)
	}

	// Reschedules skip the payment questions: the original booking already
	// settled them.
	if rescheduleID := state.WaitingValue(waitingRescheduleID); rescheduleID != "" {
		return r.finishReschedule(ctx, msg, state, rescheduleID, date, timeOfDay)
	}

	if state.Waiting == nil {
		state.Waiting = map[string]string{}
	}
	state.Waiting[waitingSlotDate] = date
	state.Waiting[waitingSlotTime] = timeOfDay

	profile, err := r.clinics.Get(ctx, msg.ClinicID)
	if err != nil {
		return err
	}
	if !profile.RequireDeposit {
		return r.bookDirect(ctx, msg, state)
	}

	state.State = StateAwaitingPaymentType
	if err := r.states.Save(ctx, state); err != nil {
		return err
	}
	buttons := []whatsapp.Button{
		{ID: buttonTypeInsurance, Title: "Convênio"},
		{ID: buttonTypePrivate, Title: "Particular"},
	}
	body := fmt.Sprintf("Horário %s às %s selecionado! O atendimento será por convênio ou particular?", formatDateBR(date), timeOfDay)
	if _, err := r.sender.SendButtons(ctx, msg.Phone, body, buttons); err != nil {
		return err
	}
	r.appendTranscript(ctx, msg, "assistant", body)
	return nil
}

func (r *Router) handlePaymentType(ctx context.Context, msg MessageRequest, state *State, payload string) error {
	if state.WaitingValue(waitingSlotDate) == "" {
		// Payment answer with no slot in flight: restart the flow.
		return r.handleScheduling(ctx, msg, state)
	}

	switch payload {
	case buttonTypeInsurance:
		// Insurance appointments carry no deposit.
		return r.bookDirect(ctx, msg, state)
	case buttonTypePrivate:
		state.State = StateAwaitingPaymentMethod
		if err := r.states.Save(ctx, state); err != nil {
			return err
		}
		buttons := []whatsapp.Button{
			{ID: buttonPayPix, Title: "PIX"},
			{ID: buttonPayCard, Title: "Cartão"},
		}
		body := "Para garantir o horário pedimos um sinal. Como prefere pagar?"
		if _, err := r.sender.SendButtons(ctx, msg.Phone, body, buttons); err != nil {
			return err
		}
		r.appendTranscript(ctx, msg, "assistant", body)
		return nil
	}
	return nil
}

func (r *Router) handlePaymentMethod(ctx context.Context, msg MessageRequest, state *State, payload string) error {
	professionalID := state.WaitingValue(waitingProfessionalID)
	date := state.WaitingValue(waitingSlotDate)
	timeOfDay := state.WaitingValue(waitingSlotTime)
	if professionalID == "" || date == "" || timeOfDay == "" {
		return r.handleScheduling(ctx, msg, state)
	}

	result, err := r.engine.Book(ctx, booking.BookRequest{
		ClinicID:       msg.ClinicID,
		Phone:          msg.Phone,
		ProfessionalID: professionalID,
		Date:           date,
		Time:           timeOfDay,
		RequireDeposit: true,
	})
	if errors.Is(err, booking.ErrSlotConflict) {
		return r.offerAlternatives(ctx, msg, state, professionalID)
	}
	if err != nil {
		return err
	}

	if err := r.states.Clear(ctx, msg.ClinicID, msg.Phone); err != nil {
		r.logger.Warn("failed to clear state after booking", "error", err, "phone", msg.Phone)
	}

	method := "PIX"
	if payload == buttonPayCard {
		method = "cartão"
	}
	minutes := int(time.Until(result.Hold.ExpiresAt).Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return r.reply(ctx, msg, fmt.Sprintf(
		"Quase lá! Reservei %s às %s. Para confirmar, faça o pagamento do sinal de %s via %s em até %d minutos. Assim que recebermos, sua consulta estará garantida. ✅",
		formatDateBR(date), timeOfDay, formatCentsBR(result.Hold.AmountCents), method, minutes,
	))
}

func (r *Router) bookDirect(ctx context.Context, msg MessageRequest, state *State) error {
	professionalID := state.WaitingValue(waitingProfessionalID)
	date := state.WaitingValue(waitingSlotDate)
	timeOfDay := state.WaitingValue(waitingSlotTime)

	result, err := r.engine.Book(ctx, booking.BookRequest{
		ClinicID:       msg.ClinicID,
		Phone:          msg.Phone,
		ProfessionalID: professionalID,
		Date:           date,
		Time:           timeOfDay,
	})
	if errors.Is(err, booking.ErrSlotConflict) {
		return r.offerAlternatives(ctx, msg, state, professionalID)
	}
	if err != nil {
		return err
	}

	if err := r.states.Clear(ctx, msg.ClinicID, msg.Phone); err != nil {
		r.logger.Warn("failed to clear state after booking", "error", err, "phone", msg.Phone)
	}
	return r.reply(ctx, msg, fmt.Sprintf(
		"Prontinho! Sua consulta está confirmada para %s às %s. Você vai receber um lembrete antes. Até lá! ✅",
		formatDateBR(result.Appointment.Date), result.Appointment.Time,
	))
}

func (r *Router) finishReschedule(ctx context.Context, msg MessageRequest, state *State, rescheduleID, date, timeOfDay string) error {
	apptID, err := uuid.Parse(rescheduleID)
	if err != nil {
		return r.handleScheduling(ctx, msg, state)
	}
	result, err := r.engine.Reschedule(ctx, apptID, date, timeOfDay)
	if errors.Is(err, booking.ErrSlotConflict) {
		return r.offerAlternatives(ctx, msg, state, state.WaitingValue(waitingProfessionalID))
	}
	if err != nil {
		return err
	}
	if err := r.states.Clear(ctx, msg.ClinicID, msg.Phone); err != nil {
		r.logger.Warn("failed to clear state after reschedule", "error", err, "phone", msg.Phone)
	}
	return r.reply(ctx, msg, fmt.Sprintf(
		"Remarcado! Sua consulta agora é %s às %s. ✅",
		formatDateBR(result.Appointment.Date), result.Appointment.Time,
	))
}

// offerAlternatives follows a slot conflict: the slot was taken between
// listing and booking, so apologize and re-offer what is still free.
func (r *Router) offerAlternatives(ctx context.Context, msg MessageRequest, state *State, professionalID string) error {
	state.State = StateAwaitingSlot
	if state.Waiting != nil {
		delete(state.Waiting, waitingSlotDate)
		delete(state.Waiting, waitingSlotTime)
	}
	if err := r.states.Save(ctx, state); err != nil {
		return err
	}
	return r.sendSlotList(ctx, msg, professionalID,
		"Poxa, esse horário acabou de ser reservado. 😕 Estes ainda estão livres:")
}

func (r *Router) clinicLocation(ctx context.Context, clinicID string) *time.Location {
	profile, err := r.clinics.Get(ctx, clinicID)
	if err != nil || profile.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(profile.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func parseSlotPayload(payload string) (date, timeOfDay string, ok bool) {
	rest := strings.TrimPrefix(payload, slotPayloadPrefix)
	parts := strings.SplitN(rest, "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
