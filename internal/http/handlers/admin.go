package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/booking"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/conversation"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/pkg/logging"
)

type takeoverStore interface {
	SetHumanUntil(ctx context.Context, clinicID, phone string, until *time.Time) error
}

type holdInspector interface {
	ActiveHolds(ctx context.Context, clinicID string) ([]booking.Hold, error)
	ExpireHolds(ctx context.Context, now time.Time) (int, error)
}

type transcriptReader interface {
	Recent(ctx context.Context, clinicID, phone string, n int) ([]conversation.TranscriptMessage, error)
}

// AdminHandler exposes operator endpoints: human-takeover toggling, live hold
// inspection, and a manual hold sweep. All routes sit behind the admin JWT.
type AdminHandler struct {
	states      takeoverStore
	holds       holdInspector
	transcripts transcriptReader
	takeoverTTL time.Duration
	logger      *logging.Logger
}

type AdminConfig struct {
	States      takeoverStore
	Holds       holdInspector
	Transcripts transcriptReader
	TakeoverTTL time.Duration
	Logger      *logging.Logger
}

func NewAdminHandler(cfg AdminConfig) *AdminHandler {
	if cfg.States == nil {
		panic("handlers: state store cannot be nil")
	}
	if cfg.Holds == nil {
		panic("handlers: booking engine cannot be nil")
	}
	if cfg.TakeoverTTL <= 0 {
		cfg.TakeoverTTL = 12 * time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &AdminHandler{
		states:      cfg.States,
		holds:       cfg.Holds,
		transcripts: cfg.Transcripts,
		takeoverTTL: cfg.TakeoverTTL,
		logger:      cfg.Logger,
	}
}

type takeoverRequest struct {
	ClinicID string `json:"clinic_id"`
	Phone    string `json:"phone"`
	Enabled  bool   `json:"enabled"`
	// Hours overrides the default takeover duration when enabling.
	Hours int `json:"hours,omitempty"`
}

// HandleTakeover enables or disables the human-takeover flag for one
// conversation.
func (h *AdminHandler) HandleTakeover(w http.ResponseWriter, r *http.Request) {
	var req takeoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.ClinicID == "" || req.Phone == "" {
		http.Error(w, "clinic_id and phone are required", http.StatusBadRequest)
		return
	}

	var until *time.Time
	if req.Enabled {
		ttl := h.takeoverTTL
		if req.Hours > 0 {
			ttl = time.Duration(req.Hours) * time.Hour
		}
		t := time.Now().UTC().Add(ttl)
		until = &t
	}
	if err := h.states.SetHumanUntil(r.Context(), req.ClinicID, req.Phone, until); err != nil {
		h.logger.Error("failed to set takeover flag", "error", err, "clinic_id", req.ClinicID, "phone", req.Phone)
		http.Error(w, "failed to update takeover", http.StatusInternalServerError)
		return
	}
	h.logger.Info("takeover flag updated",
		"clinic_id", req.ClinicID, "phone", req.Phone, "enabled", req.Enabled)

	resp := map[string]any{"status": "ok", "enabled": req.Enabled}
	if until != nil {
		resp["until"] = until.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleTranscript returns the recent transcript for a conversation so the
// operator sees context before taking over.
func (h *AdminHandler) HandleTranscript(w http.ResponseWriter, r *http.Request) {
	if h.transcripts == nil {
		http.Error(w, "transcripts not configured", http.StatusServiceUnavailable)
		return
	}
	clinicID := r.URL.Query().Get("clinic_id")
	phone := r.URL.Query().Get("phone")
	if clinicID == "" || phone == "" {
		http.Error(w, "clinic_id and phone are required", http.StatusBadRequest)
		return
	}
	messages, err := h.transcripts.Recent(r.Context(), clinicID, phone, 50)
	if err != nil {
		h.logger.Error("failed to load transcript", "error", err, "clinic_id", clinicID, "phone", phone)
		http.Error(w, "failed to load transcript", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// HandleListHolds lists a clinic's unpaid, unexpired holds.
func (h *AdminHandler) HandleListHolds(w http.ResponseWriter, r *http.Request) {
	clinicID := r.URL.Query().Get("clinic_id")
	if clinicID == "" {
		http.Error(w, "clinic_id is required", http.StatusBadRequest)
		return
	}
	holds, err := h.holds.ActiveHolds(r.Context(), clinicID)
	if err != nil {
		h.logger.Error("failed to list holds", "error", err, "clinic_id", clinicID)
		http.Error(w, "failed to list holds", http.StatusInternalServerError)
		return
	}
	type holdView struct {
		ID             string    `json:"id"`
		AppointmentID  string    `json:"appointment_id"`
		ProfessionalID string    `json:"professional_id"`
		Date           string    `json:"date"`
		Time           string    `json:"time"`
		AmountCents    int64     `json:"amount_cents"`
		ExpiresAt      time.Time `json:"expires_at"`
	}
	views := make([]holdView, 0, len(holds))
	for _, hold := range holds {
		views = append(views, holdView{
			ID:             hold.ID.String(),
			AppointmentID:  hold.AppointmentID.String(),
			ProfessionalID: hold.ProfessionalID,
			Date:           hold.Date,
			Time:           hold.Time,
			AmountCents:    hold.AmountCents,
			ExpiresAt:      hold.ExpiresAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"holds": views})
}

// HandleSweep runs an immediate expired-hold sweep instead of waiting for the
// worker ticker.
func (h *AdminHandler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	released, err := h.holds.ExpireHolds(r.Context(), time.Now().UTC())
	if err != nil {
		h.logger.Error("manual sweep failed", "error", err)
		http.Error(w, "sweep failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "released": released})
}
