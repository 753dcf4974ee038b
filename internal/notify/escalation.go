package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/pkg/logging"
)

// EscalationNotifier alerts a clinic operator that a conversation was handed
// off to a human.
type EscalationNotifier struct {
	sender        EmailSender
	operatorEmail string
	logger        *logging.Logger
}

// NewEscalationNotifier creates a notifier. With no sender or operator email
// configured it degrades to log-only.
func NewEscalationNotifier(sender EmailSender, operatorEmail string, logger *logging.Logger) *EscalationNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &EscalationNotifier{
		sender:        sender,
		operatorEmail: strings.TrimSpace(operatorEmail),
		logger:        logger,
	}
}

// NotifyEscalation emails the operator about a conversation that needs a
// human. Transcript lines are the most recent exchanges, oldest first.
func (n *EscalationNotifier) NotifyEscalation(ctx context.Context, clinicName, patientPhone, reason string, transcript []string) error {
	if n.sender == nil || n.operatorEmail == "" {
		n.logger.Info("escalation notifier not configured, logging only",
			"clinic", clinicName, "phone", patientPhone, "reason", reason)
		return nil
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Um paciente pediu atendimento humano.\n\n")
	fmt.Fprintf(&body, "Clínica: %s\n", clinicName)
	fmt.Fprintf(&body, "Telefone: %s\n", patientPhone)
	fmt.Fprintf(&body, "Motivo: %s\n", reason)
	fmt.Fprintf(&body, "Horário: %s\n", time.Now().Format("02/01/2006 15:04"))
	if len(transcript) > 0 {
		body.WriteString("\nÚltimas mensagens:\n")
		for _, line := range transcript {
			fmt.Fprintf(&body, "  %s\n", line)
		}
	}

	msg := EmailMessage{
		To:      n.operatorEmail,
		Subject: fmt.Sprintf("[Gendei] Atendimento humano solicitado — %s", patientPhone),
		Body:    body.String(),
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: escalation email: %w", err)
	}
	return nil
}
