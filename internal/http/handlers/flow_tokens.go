package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/pkg/logging"
)

type flowTokenIssuer interface {
	Issue(clinicID, phone, extra string) (string, error)
}

// FlowTokenHandler mints session tokens for outbound Flow messages. The
// template sender embeds the token in the flow_token parameter so the
// exchange endpoint can recover (clinic, phone) from submissions.
type FlowTokenHandler struct {
	tokens flowTokenIssuer
	logger *logging.Logger
}

func NewFlowTokenHandler(tokens flowTokenIssuer, logger *logging.Logger) *FlowTokenHandler {
	if tokens == nil {
		panic("handlers: token codec cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FlowTokenHandler{tokens: tokens, logger: logger}
}

type flowTokenRequest struct {
	ClinicID string `json:"clinic_id"`
	Phone    string `json:"phone"`
	Extra    string `json:"extra,omitempty"`
}

// HandleMint issues a token binding (clinic, phone) to a flow session.
func (h *FlowTokenHandler) HandleMint(w http.ResponseWriter, r *http.Request) {
	var req flowTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.ClinicID == "" || req.Phone == "" {
		http.Error(w, "clinic_id and phone are required", http.StatusBadRequest)
		return
	}

	token, err := h.tokens.Issue(req.ClinicID, req.Phone, req.Extra)
	if err != nil {
		h.logger.Error("failed to issue flow token", "error", err, "clinic_id", req.ClinicID)
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"flow_token": token})
}
