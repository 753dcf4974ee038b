package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/pkg/logging"
)

var (
	priceKeywords = []string{
		"preço", "preco", "valor", "quanto custa", "quanto fica", "quanto é", "quanto e", "tabela",
	}
	serviceKeywords = []string{
		"serviço", "servico", "procedimento", "tratamento", "vocês fazem", "voces fazem", "atendem",
	}
	professionalKeywords = []string{
		"profissional", "profissionais", "médic", "medic", "doutor", "doutora", "dr.", "dra", "especialidade",
	}
)

// ProfileResolver answers free-form questions from the clinic's directory
// profile. It is deliberately template-based; anything it cannot ground in
// the profile gets a short orientation reply instead of a guess.
type ProfileResolver struct {
	clinics clinicDirectory
	logger  *logging.Logger
}

func NewProfileResolver(clinics clinicDirectory, logger *logging.Logger) *ProfileResolver {
	if clinics == nil {
		panic("conversation: clinic directory cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ProfileResolver{clinics: clinics, logger: logger}
}

// Resolve implements IntentResolver.
func (p *ProfileResolver) Resolve(ctx context.Context, req MessageRequest, _ *State) (string, error) {
	profile, err := p.clinics.Get(ctx, req.ClinicID)
	if err != nil {
		p.logger.Warn("failed to load clinic profile for resolver", "error", err, "clinic_id", req.ClinicID)
		return fallbackAnswer, nil
	}

	text := normalizeText(req.Text)
	switch {
	case containsAny(text, priceKeywords), containsAny(text, serviceKeywords):
		if len(profile.Services) == 0 {
			return fallbackAnswer, nil
		}
		var b strings.Builder
		b.WriteString("Estes são os nossos serviços:\n")
		for _, svc := range profile.Services {
			if svc.Price != "" {
				fmt.Fprintf(&b, "• %s — %s\n", svc.Name, svc.Price)
			} else {
				fmt.Fprintf(&b, "• %s\n", svc.Name)
			}
		}
		b.WriteString("\nQuer agendar algum deles?")
		return b.String(), nil
	case containsAny(text, professionalKeywords):
		if len(profile.Professionals) == 0 {
			return fallbackAnswer, nil
		}
		var b strings.Builder
		b.WriteString("Nossa equipe:\n")
		for _, prof := range profile.Professionals {
			if prof.Specialty != "" {
				fmt.Fprintf(&b, "• %s — %s\n", prof.Name, prof.Specialty)
			} else {
				fmt.Fprintf(&b, "• %s\n", prof.Name)
			}
		}
		b.WriteString("\nPosso ver os horários disponíveis para você.")
		return b.String(), nil
	}
	return fallbackAnswer, nil
}

const fallbackAnswer = "Posso ajudar com agendamentos, informações da clínica e suas consultas. O que você precisa?"
