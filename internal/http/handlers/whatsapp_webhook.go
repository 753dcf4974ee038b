package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/clinic"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/conversation"
	observemetrics "github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/observability/metrics"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/pkg/logging"
)

type inboundPublisher interface {
	EnqueueInbound(ctx context.Context, event conversation.InboundEvent) error
}

type processedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

type clinicResolver interface {
	ClinicIDByWhatsAppNumber(ctx context.Context, phoneNumberID string) (string, error)
}

// WhatsAppWebhookHandler receives WhatsApp Cloud webhooks: the GET
// hub-challenge handshake and POSTed message batches. Messages are classified,
// deduplicated, and enqueued; the webhook always acknowledges so the provider
// never retries into a processing failure.
type WhatsAppWebhookHandler struct {
	publisher   inboundPublisher
	processed   processedTracker
	clinics     clinicResolver
	appSecret   string
	verifyToken string
	hardened    bool
	logger      *logging.Logger
	metrics     *observemetrics.MessagingMetrics
}

type WhatsAppWebhookConfig struct {
	Publisher   inboundPublisher
	Processed   processedTracker
	Clinics     clinicResolver
	AppSecret   string
	VerifyToken string
	Hardened    bool
	Logger      *logging.Logger
	Metrics     *observemetrics.MessagingMetrics
}

func NewWhatsAppWebhookHandler(cfg WhatsAppWebhookConfig) *WhatsAppWebhookHandler {
	if cfg.Publisher == nil {
		panic("handlers: publisher cannot be nil")
	}
	if cfg.Clinics == nil {
		panic("handlers: clinic resolver cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &WhatsAppWebhookHandler{
		publisher:   cfg.Publisher,
		processed:   cfg.Processed,
		clinics:     cfg.Clinics,
		appSecret:   cfg.AppSecret,
		verifyToken: cfg.VerifyToken,
		hardened:    cfg.Hardened,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
}

// HandleVerify answers the platform's subscription handshake.
func (h *WhatsAppWebhookHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || h.verifyToken == "" || q.Get("hub.verify_token") != h.verifyToken {
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(q.Get("hub.challenge")))
}

// HandleEvents processes a webhook delivery. Per-message failures are logged
// and skipped; the response is 200 with {"status":"ok"} whenever the payload
// was authentic and parseable.
func (h *WhatsAppWebhookHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if code, err := h.verifySignature(r.Header.Get("X-Hub-Signature-256"), body); err != nil {
		h.logger.Warn("webhook signature rejected", "error", err)
		http.Error(w, err.Error(), code)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			h.dispatchValue(r.Context(), change.Value)
		}
	}

	if h.metrics != nil {
		h.metrics.ObserveWebhookLatency("messages", time.Since(start).Seconds())
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// verifySignature checks the sha256 HMAC over the raw body. Missing secret is
// a deploy error in hardened mode and a warning otherwise.
func (h *WhatsAppWebhookHandler) verifySignature(header string, body []byte) (int, error) {
	if h.appSecret == "" {
		if h.hardened {
			return http.StatusInternalServerError, errors.New("webhook secret not configured")
		}
		h.logger.Warn("webhook secret not configured, accepting unsigned request")
		return 0, nil
	}
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return http.StatusUnauthorized, errors.New("missing signature")
	}
	want, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return http.StatusUnauthorized, errors.New("malformed signature")
	}
	mac := hmac.New(sha256.New, []byte(h.appSecret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), want) {
		return http.StatusUnauthorized, errors.New("invalid signature")
	}
	return 0, nil
}

func (h *WhatsAppWebhookHandler) dispatchValue(ctx context.Context, value webhookValue) {
	if len(value.Messages) == 0 {
		return
	}
	clinicID, err := h.clinics.ClinicIDByWhatsAppNumber(ctx, value.Metadata.PhoneNumberID)
	if err != nil {
		if errors.Is(err, clinic.ErrNotFound) {
			h.logger.Warn("webhook for unknown number", "phone_number_id", value.Metadata.PhoneNumberID)
			return
		}
		h.logger.Error("clinic lookup failed", "error", err, "phone_number_id", value.Metadata.PhoneNumberID)
		return
	}

	names := contactNames(value.Contacts)
	for _, msg := range value.Messages {
		event, ok := classifyMessage(clinicID, msg, names)
		if !ok {
			h.logger.Debug("skipping unsupported message type", "type", msg.Type, "message_id", msg.ID)
			continue
		}
		if h.metrics != nil {
			h.metrics.ObserveInbound(string(event.Type))
		}
		if h.alreadyProcessed(ctx, event.EventID) {
			h.logger.Debug("skipping already-processed event", "event_id", event.EventID)
			continue
		}
		publishCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := h.publisher.EnqueueInbound(publishCtx, event); err != nil {
			h.logger.Error("failed to enqueue inbound event", "error", err, "event_id", event.EventID)
		}
		cancel()
	}
}

// alreadyProcessed fails open: a dedup-store outage must not drop messages,
// the worker re-checks before routing.
func (h *WhatsAppWebhookHandler) alreadyProcessed(ctx context.Context, eventID string) bool {
	if h.processed == nil {
		return false
	}
	processed, err := h.processed.AlreadyProcessed(ctx, "whatsapp", eventID)
	if err != nil {
		h.logger.Warn("processed lookup failed, enqueueing anyway", "error", err, "event_id", eventID)
		return false
	}
	return processed
}

func classifyMessage(clinicID string, msg webhookMessage, names map[string]string) (conversation.InboundEvent, bool) {
	event := conversation.InboundEvent{
		EventID:     msg.ID,
		ClinicID:    clinicID,
		Phone:       normalizePhone(msg.From),
		MessageID:   msg.ID,
		ContactName: names[msg.From],
		ReceivedAt:  timestampOf(msg.Timestamp),
	}
	if event.EventID == "" {
		event.EventID = ulid.Make().String()
	}

	switch msg.Type {
	case "text":
		event.Type = conversation.EventText
		event.Text = msg.Text.Body
	case "interactive":
		event.Type = conversation.EventButton
		switch msg.Interactive.Type {
		case "button_reply":
			event.ButtonPayload = msg.Interactive.ButtonReply.ID
			event.Text = msg.Interactive.ButtonReply.Title
		case "list_reply":
			event.ButtonPayload = msg.Interactive.ListReply.ID
			event.Text = msg.Interactive.ListReply.Title
		case "nfm_reply":
			event.Type = conversation.EventFormReply
			event.Text = msg.Interactive.NFMReply.ResponseJSON
		default:
			return event, false
		}
	case "button":
		// Template quick-reply buttons arrive as a separate type.
		event.Type = conversation.EventButton
		event.ButtonPayload = msg.Button.Payload
		event.Text = msg.Button.Text
	case "audio":
		event.Type = conversation.EventVoice
		event.MediaID = msg.Audio.ID
		event.MimeType = msg.Audio.MimeType
	case "location":
		event.Type = conversation.EventLocation
		event.Text = fmt.Sprintf("%f,%f", msg.Location.Latitude, msg.Location.Longitude)
	default:
		return event, false
	}
	return event, true
}

func contactNames(contacts []webhookContact) map[string]string {
	names := make(map[string]string, len(contacts))
	for _, c := range contacts {
		if c.Profile.Name != "" {
			names[c.WaID] = c.Profile.Name
		}
	}
	return names
}

func normalizePhone(waID string) string {
	waID = strings.TrimSpace(waID)
	if waID == "" || strings.HasPrefix(waID, "+") {
		return waID
	}
	return "+" + waID
}

func timestampOf(unix string) time.Time {
	secs, err := strconv.ParseInt(unix, 10, 64)
	if err != nil {
		return time.Now().UTC()
	}
	return time.Unix(secs, 0).UTC()
}

type webhookPayload struct {
	Object string         `json:"object"`
	Entry  []webhookEntry `json:"entry"`
}

type webhookEntry struct {
	ID      string          `json:"id"`
	Changes []webhookChange `json:"changes"`
}

type webhookChange struct {
	Field string       `json:"field"`
	Value webhookValue `json:"value"`
}

type webhookValue struct {
	Metadata struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []webhookContact `json:"contacts"`
	Messages []webhookMessage `json:"messages"`
}

type webhookContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type webhookMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      struct {
		Body string `json:"body"`
	} `json:"text"`
	Interactive struct {
		Type        string `json:"type"`
		ButtonReply struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply"`
		NFMReply struct {
			ResponseJSON string `json:"response_json"`
		} `json:"nfm_reply"`
	} `json:"interactive"`
	Button struct {
		Payload string `json:"payload"`
		Text    string `json:"text"`
	} `json:"button"`
	Audio struct {
		ID       string `json:"id"`
		MimeType string `json:"mime_type"`
		Voice    bool   `json:"voice"`
	} `json:"audio"`
	Location struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
