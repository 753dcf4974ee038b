package conversation

import (
	"regexp"
	"strings"
)

// Keyword matching is case-insensitive substring on a trimmed, lower-cased
// copy. No stemming or fuzzy matching: false negatives fall through to the
// delegate path instead of guessing.

func normalizeText(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

var greetings = []string{
	"oi", "olá", "ola", "oie", "bom dia", "boa tarde", "boa noite",
	"e aí", "e ai", "hello", "hi", "hey",
}

// isSimpleGreeting matches short salutations. Longer messages that merely
// open with a greeting carry real intent and are not treated as greetings.
func isSimpleGreeting(text string) bool {
	norm := normalizeText(strings.Trim(text, "!?.,"))
	if norm == "" || len([]rune(norm)) > 25 {
		return false
	}
	for _, g := range greetings {
		if norm == g || strings.HasPrefix(norm, g+" ") || strings.HasPrefix(norm, g+",") {
			return true
		}
	}
	return false
}

var schedulingKeywords = []string{
	"agendar", "marcar", "consulta", "horário", "horario", "agenda",
	"disponibilidade", "atendimento", "vaga",
}

func hasSchedulingIntent(text string) bool {
	return containsAny(normalizeText(text), schedulingKeywords)
}

var appointmentKeywords = []string{
	"minha consulta", "meu horário", "meu horario", "cancelar", "remarcar",
	"desmarcar", "confirmar consulta", "meu agendamento",
}

func hasAppointmentIntent(text string) bool {
	return containsAny(normalizeText(text), appointmentKeywords)
}

var humanKeywords = []string{
	"falar com humano", "falar com atendente", "falar com alguém",
	"falar com alguem", "atendente", "atendimento humano", "pessoa de verdade",
	"quero falar com",
}

var frustrationKeywords = []string{
	"não entendeu", "nao entendeu", "não entende", "nao entende",
	"robô burro", "robo burro", "que saco", "não aguento", "nao aguento",
	"péssimo", "pessimo", "horrível", "horrivel", "ridículo", "ridiculo",
}

// wantsHuman detects explicit human requests and frustration heuristics.
func wantsHuman(text string) (bool, string) {
	norm := normalizeText(text)
	if containsAny(norm, humanKeywords) {
		return true, "paciente pediu atendente"
	}
	if containsAny(norm, frustrationKeywords) {
		return true, "sinais de frustração detectados"
	}
	return false, ""
}

var locationShareKeywords = []string{
	"enviar minha localização", "enviar minha localizacao",
	"mandar minha localização", "mandar minha localizacao",
	"compartilhar localização", "compartilhar localizacao",
}

func wantsToShareLocation(text string) bool {
	return containsAny(normalizeText(text), locationShareKeywords)
}

var addressKeywords = []string{
	"endereço", "endereco", "onde fica", "onde vocês ficam", "onde voces ficam",
	"localização", "localizacao", "como chegar", "qual o endereço",
}

var addressPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)onde\s+(fica|estão|estao|é|e)\b`),
	regexp.MustCompile(`(?i)qual\s+(o\s+)?endere`),
}

func asksForAddress(text string) bool {
	norm := normalizeText(text)
	if containsAny(norm, addressKeywords) {
		return true
	}
	for _, re := range addressPatterns {
		if re.MatchString(norm) {
			return true
		}
	}
	return false
}

// Payment keywords resolve typed answers in the awaiting_payment_* states for
// users who type instead of tapping buttons.

func paymentTypeFromText(text string) string {
	norm := normalizeText(text)
	switch {
	case strings.Contains(norm, "convênio") || strings.Contains(norm, "convenio") || strings.Contains(norm, "plano"):
		return buttonTypeInsurance
	case strings.Contains(norm, "particular"):
		return buttonTypePrivate
	}
	return ""
}

func paymentMethodFromText(text string) string {
	norm := normalizeText(text)
	switch {
	case strings.Contains(norm, "pix"):
		return buttonPayPix
	case strings.Contains(norm, "cartão") || strings.Contains(norm, "cartao") || strings.Contains(norm, "crédito") || strings.Contains(norm, "credito"):
		return buttonPayCard
	}
	return ""
}

func containsAny(norm string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(norm, kw) {
			return true
		}
	}
	return false
}
