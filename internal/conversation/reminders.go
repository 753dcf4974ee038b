package conversation

import (
	"context"
	"fmt"

	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/booking"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/whatsapp"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/pkg/logging"
)

// ReminderNotifier delivers due appointment reminders over WhatsApp with
// confirm/cancel quick replies. The router treats the patient's tap as a
// reminder response.
type ReminderNotifier struct {
	sender Sender
	logger *logging.Logger
}

func NewReminderNotifier(sender Sender, logger *logging.Logger) *ReminderNotifier {
	if sender == nil {
		panic("conversation: sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ReminderNotifier{sender: sender, logger: logger}
}

// SendReminder implements booking.ReminderSender.
func (n *ReminderNotifier) SendReminder(ctx context.Context, reminder booking.Reminder) error {
	appt := reminder.Appointment

	var body string
	switch reminder.Kind {
	case booking.Reminder2h:
		body = fmt.Sprintf("⏰ Sua consulta é daqui a pouco, às %s. Você confirma presença?", appt.Time)
	default:
		body = fmt.Sprintf("📅 Lembrete: você tem uma consulta amanhã, dia %s às %s. Você confirma presença?",
			formatDateBR(appt.Date), appt.Time)
	}

	buttons := []whatsapp.Button{
		{ID: buttonConfirmYes, Title: "Confirmo ✅"},
		{ID: buttonConfirmCancel, Title: "Preciso cancelar"},
	}
	if _, err := n.sender.SendButtons(ctx, appt.Phone, body, buttons); err != nil {
		return fmt.Errorf("conversation: send reminder: %w", err)
	}

	n.logger.Info("reminder sent",
		"clinic_id", appt.ClinicID, "phone", appt.Phone,
		"appointment_id", appt.ID, "kind", string(reminder.Kind))
	return nil
}
