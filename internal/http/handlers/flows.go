package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/booking"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/clinic"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/flows"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/pkg/logging"
)

type flowBookingEngine interface {
	Book(ctx context.Context, req booking.BookRequest) (*booking.BookResult, error)
	FreeSlots(ctx context.Context, clinicID, professionalID, date string) ([]booking.Slot, error)
}

type flowClinicDirectory interface {
	Get(ctx context.Context, clinicID string) (*clinic.Profile, error)
}

// FlowsHandler serves the WhatsApp Flows data-exchange endpoint. Requests
// arrive encrypted per the envelope protocol; the response must reuse the
// request's session key. Plaintext requests are a development convenience and
// rejected in hardened mode.
type FlowsHandler struct {
	crypter  *flows.Crypter
	tokens   *flows.TokenCodec
	engine   flowBookingEngine
	clinics  flowClinicDirectory
	hardened bool
	logger   *logging.Logger
}

type FlowsConfig struct {
	Crypter  *flows.Crypter
	Tokens   *flows.TokenCodec
	Engine   flowBookingEngine
	Clinics  flowClinicDirectory
	Hardened bool
	Logger   *logging.Logger
}

func NewFlowsHandler(cfg FlowsConfig) *FlowsHandler {
	if cfg.Tokens == nil {
		panic("handlers: token codec cannot be nil")
	}
	if cfg.Engine == nil {
		panic("handlers: booking engine cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &FlowsHandler{
		crypter:  cfg.Crypter,
		tokens:   cfg.Tokens,
		engine:   cfg.Engine,
		clinics:  cfg.Clinics,
		hardened: cfg.Hardened,
		logger:   cfg.Logger,
	}
}

type flowRequest struct {
	Version   string            `json:"version"`
	Action    string            `json:"action"`
	Screen    string            `json:"screen"`
	FlowToken string            `json:"flow_token"`
	Data      map[string]string `json:"data"`
}

type flowResponse struct {
	Version string         `json:"version"`
	Screen  string         `json:"screen,omitempty"`
	Data    map[string]any `json:"data"`
}

// HandleExchange processes one flow request. A decrypt failure answers 421 so
// the platform re-fetches the public key; every in-flow failure is reported
// on the flow screen, never as an HTTP error.
func (h *FlowsHandler) HandleExchange(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	var env flows.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	var payload []byte
	var sess flows.Session
	encrypted := env.Encrypted()
	if encrypted {
		if h.crypter == nil {
			http.Error(w, "encryption not configured", http.StatusInternalServerError)
			return
		}
		payload, sess, err = h.crypter.Decrypt(env)
		if err != nil {
			h.logger.Warn("flow decrypt failed", "error", err)
			http.Error(w, "decrypt failed", http.StatusMisdirectedRequest)
			return
		}
	} else {
		if h.hardened {
			http.Error(w, "plaintext flow rejected", http.StatusBadRequest)
			return
		}
		payload = body
	}

	var req flowRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		http.Error(w, "invalid flow payload", http.StatusBadRequest)
		return
	}

	resp := h.process(r, req)

	if !encrypted {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	plain, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	sealed, err := h.crypter.Encrypt(plain, sess)
	if err != nil {
		h.logger.Error("flow response encrypt failed", "error", err)
		http.Error(w, "encrypt failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sealed))
}

func (h *FlowsHandler) process(r *http.Request, req flowRequest) flowResponse {
	switch req.Action {
	case "ping":
		return flowResponse{Version: req.Version, Data: map[string]any{"status": "active"}}
	case "INIT":
		return h.initScreen(r, req)
	case "data_exchange":
		return h.submit(r, req)
	default:
		return errorScreen(req, "Ação não reconhecida.")
	}
}

func (h *FlowsHandler) initScreen(r *http.Request, req flowRequest) flowResponse {
	claims, err := h.tokens.Verify(req.FlowToken)
	if err != nil {
		h.logger.Warn("flow token rejected", "error", err)
		return errorScreen(req, "Sessão expirada. Volte para a conversa e tente de novo.")
	}

	var professionals []map[string]any
	if h.clinics != nil {
		if profile, err := h.clinics.Get(r.Context(), claims.ClinicID); err == nil {
			for _, pro := range profile.Professionals {
				professionals = append(professionals, map[string]any{
					"id":    pro.ID,
					"title": pro.Name,
				})
			}
		}
	}
	return flowResponse{
		Version: req.Version,
		Screen:  "SCHEDULE",
		Data:    map[string]any{"professionals": professionals},
	}
}

func (h *FlowsHandler) submit(r *http.Request, req flowRequest) flowResponse {
	claims, err := h.tokens.Verify(req.FlowToken)
	if err != nil {
		h.logger.Warn("flow token rejected", "error", err)
		return errorScreen(req, "Sessão expirada. Volte para a conversa e tente de novo.")
	}

	professionalID := req.Data["professional_id"]
	date := req.Data["date"]
	slotTime := req.Data["time"]
	if professionalID == "" || date == "" || slotTime == "" {
		return errorScreen(req, "Preencha todos os campos para agendar.")
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	result, err := h.engine.Book(ctx, booking.BookRequest{
		ClinicID:       claims.ClinicID,
		Phone:          claims.Phone,
		ProfessionalID: professionalID,
		Date:           date,
		Time:           slotTime,
	})
	if errors.Is(err, booking.ErrSlotConflict) {
		return errorScreen(req, "Esse horário acabou de ser reservado. Escolha outro, por favor.")
	}
	if err != nil {
		h.logger.Error("flow booking failed", "error", err, "clinic_id", claims.ClinicID)
		return errorScreen(req, "Não foi possível concluir o agendamento agora. Tente novamente.")
	}

	return flowResponse{
		Version: req.Version,
		Screen:  "SUCCESS",
		Data: map[string]any{
			"date": result.Appointment.Date,
			"time": result.Appointment.Time,
		},
	}
}

func errorScreen(req flowRequest, message string) flowResponse {
	screen := req.Screen
	if screen == "" {
		screen = "SCHEDULE"
	}
	return flowResponse{
		Version: req.Version,
		Screen:  screen,
		Data:    map[string]any{"error_message": message},
	}
}
