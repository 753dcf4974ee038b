package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/booking"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/whatsapp"
)

func (r *Router) handleGreeting(ctx context.Context, msg MessageRequest, state *State) error {
	greeting := "Olá! 👋 Sou o assistente da clínica."
	if name := firstName(state.ContactName); name != "" {
		greeting = fmt.Sprintf("Olá, %s! 👋 Sou o assistente da clínica.", name)
	}
	if profile, err := r.clinics.Get(ctx, msg.ClinicID); err == nil && profile.Name != "" {
		greeting = strings.Replace(greeting, "da clínica", "da "+profile.Name, 1)
	}

	buttons := []whatsapp.Button{
		{ID: buttonMenuSchedule, Title: "Agendar consulta"},
		{ID: buttonMenuFAQ, Title: "Informações"},
		{ID: buttonMenuHuman, Title: "Falar com atendente"},
	}
	if _, err := r.sender.SendButtons(ctx, msg.Phone, greeting+" Como posso ajudar?", buttons); err != nil {
		return err
	}
	r.appendTranscript(ctx, msg, "assistant", greeting)
	return nil
}

func (r *Router) handleFAQ(ctx context.Context, msg MessageRequest, _ *State) error {
	profile, err := r.clinics.Get(ctx, msg.ClinicID)
	if err != nil {
		r.logger.Warn("failed to load clinic profile for FAQ", "error", err, "clinic_id", msg.ClinicID)
		return r.reply(ctx, msg, "No momento não consegui carregar as informações da clínica. Tente novamente em instantes.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "ℹ️ *%s*\n", profile.Name)
	if loc := profile.Location(); loc != "" {
		fmt.Fprintf(&b, "📍 %s\n", loc)
	}
	if profile.Phone != "" {
		fmt.Fprintf(&b, "📞 %s\n", profile.Phone)
	}
	if len(profile.Services) > 0 {
		b.WriteString("\nServiços:\n")
		for _, svc := range profile.Services {
			if svc.Price != "" {
				fmt.Fprintf(&b, "• %s — %s\n", svc.Name, svc.Price)
			} else {
				fmt.Fprintf(&b, "• %s\n", svc.Name)
			}
		}
	}
	b.WriteString("\nPara agendar, é só me dizer \"quero marcar uma consulta\". 😉")
	return r.reply(ctx, msg, b.String())
}

func (r *Router) handleEscalation(ctx context.Context, msg MessageRequest, state *State, reason string) error {
	until := r.now().Add(r.takeoverTTL)
	if err := r.states.SetHumanUntil(ctx, msg.ClinicID, msg.Phone, &until); err != nil {
		return err
	}

	if r.notifier != nil {
		clinicName := msg.ClinicID
		if profile, err := r.clinics.Get(ctx, msg.ClinicID); err == nil {
			clinicName = profile.Name
		}
		var lines []string
		if r.transcript != nil {
			lines = r.transcript.RecentLines(ctx, msg.ClinicID, msg.Phone, 10)
		}
		if err := r.notifier.NotifyEscalation(ctx, clinicName, msg.Phone, reason, lines); err != nil {
			// The patient-facing handoff message matters more than the alert.
			r.logger.Error("failed to notify operator about escalation", "error", err, "phone", msg.Phone)
		}
	}

	r.logger.Info("conversation escalated to human",
		"clinic_id", msg.ClinicID, "phone", msg.Phone, "reason", reason)
	return r.reply(ctx, msg, "Entendi! Vou chamar um atendente da nossa equipe para continuar a conversa. Aguarde um instante, por favor. 🙏")
}

func (r *Router) handleLocationShareRequest(ctx context.Context, msg MessageRequest) error {
	return r.reply(ctx, msg, "Claro! Toque no clipe 📎 e escolha \"Localização\" para compartilhar onde você está.")
}

func (r *Router) handleAddress(ctx context.Context, msg MessageRequest) error {
	profile, err := r.clinics.Get(ctx, msg.ClinicID)
	if err != nil {
		r.logger.Warn("failed to load clinic profile for address", "error", err, "clinic_id", msg.ClinicID)
		return r.reply(ctx, msg, "Não consegui localizar o endereço agora. Tente novamente em instantes.")
	}
	loc := profile.Location()
	if loc == "" {
		return r.reply(ctx, msg, "Ainda não temos o endereço cadastrado. Um atendente pode ajudar com essa informação.")
	}
	return r.reply(ctx, msg, fmt.Sprintf("📍 Estamos em %s. Até logo!", loc))
}

func (r *Router) handleReminderResponse(ctx context.Context, msg MessageRequest, _ *State, appt *booking.Appointment) error {
	switch msg.ButtonPayload {
	case buttonConfirmYes:
		return r.reply(ctx, msg, fmt.Sprintf(
			"Perfeito! Sua consulta em %s às %s está confirmada. Até lá! ✅",
			formatDateBR(appt.Date), appt.Time,
		))
	case buttonConfirmCancel:
		if err := r.engine.Cancel(ctx, appt.ID); err != nil {
			return err
		}
		return r.reply(ctx, msg, fmt.Sprintf(
			"Tudo bem, sua consulta de %s às %s foi cancelada. Quando quiser remarcar, é só me chamar.",
			formatDateBR(appt.Date), appt.Time,
		))
	}
	return nil
}

func (r *Router) handleAppointmentButton(ctx context.Context, msg MessageRequest, state *State) error {
	appt, err := r.engine.PendingAppointment(ctx, msg.ClinicID, msg.Phone)
	if err != nil {
		return err
	}
	if appt == nil {
		return r.reply(ctx, msg, "Não encontrei nenhuma consulta agendada para este número. Quer marcar uma? É só me dizer. 🙂")
	}

	switch msg.ButtonPayload {
	case buttonApptCancel:
		if err := r.engine.Cancel(ctx, appt.ID); err != nil {
			return err
		}
		return r.reply(ctx, msg, fmt.Sprintf(
			"Sua consulta de %s às %s foi cancelada. O horário foi liberado.",
			formatDateBR(appt.Date), appt.Time,
		))
	case buttonApptReschedule:
		state.State = StateAwaitingSlot
		state.Waiting = map[string]string{
			waitingProfessionalID: appt.ProfessionalID,
			waitingRescheduleID:   appt.ID.String(),
		}
		if err := r.states.Save(ctx, state); err != nil {
			return err
		}
		return r.sendSlotList(ctx, msg, appt.ProfessionalID,
			fmt.Sprintf("Vamos remarcar sua consulta de %s às %s. Escolha um novo horário:", formatDateBR(appt.Date), appt.Time))
	case buttonApptPayment:
		amount := r.engine.DepositAmountCents(ctx, msg.ClinicID, appt.ProfessionalID)
		return r.reply(ctx, msg, fmt.Sprintf(
			"Sua consulta de %s às %s está aguardando o pagamento do sinal de %s. Assim que o pagamento for confirmado, o horário fica garantido.",
			formatDateBR(appt.Date), appt.Time, formatCentsBR(amount),
		))
	case buttonApptQuestion:
		return r.handleDelegate(ctx, msg, state)
	}
	return nil
}

func (r *Router) handleDelegate(ctx context.Context, msg MessageRequest, state *State) error {
	if r.resolver == nil {
		return r.reply(ctx, msg, "Posso ajudar com agendamentos, informações da clínica e suas consultas. O que você precisa?")
	}
	answer, err := r.resolver.Resolve(ctx, msg, state)
	if err != nil {
		return fmt.Errorf("conversation: intent resolver: %w", err)
	}
	if strings.TrimSpace(answer) == "" {
		return nil
	}
	return r.reply(ctx, msg, answer)
}

func firstName(full string) string {
	full = strings.TrimSpace(full)
	if full == "" {
		return ""
	}
	if idx := strings.IndexByte(full, ' '); idx > 0 {
		return full[:idx]
	}
	return full
}

// formatDateBR renders "2026-09-10" as "10/09". Unparseable input passes
// through unchanged.
func formatDateBR(date string) string {
	parts := strings.Split(date, "-")
	if len(parts) != 3 {
		return date
	}
	return parts[2] + "/" + parts[1]
}

func formatCentsBR(cents int64) string {
	reais := cents / 100
	rest := cents % 100
	return fmt.Sprintf("R$ %d,%02d", reais, rest)
}
