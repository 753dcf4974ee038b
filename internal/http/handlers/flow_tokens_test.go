package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/flows"
)

func TestFlowTokenMintRoundTrip(t *testing.T) {
	codec := flows.NewTokenCodec("flow-secret", false)
	handler := NewFlowTokenHandler(codec, nil)

	req := httptest.NewRequest(http.MethodPost, "/internal/flows/token",
		strings.NewReader(`{"clinic_id":"clinic-1","phone":"+5511988887777"}`))
	rec := httptest.NewRecorder()
	handler.HandleMint(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		FlowToken string `json:"flow_token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	claims, err := codec.Verify(resp.FlowToken)
	if err != nil {
		t.Fatalf("minted token must verify: %v", err)
	}
	if claims.ClinicID != "clinic-1" || claims.Phone != "+5511988887777" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestFlowTokenMintRequiresIdentity(t *testing.T) {
	handler := NewFlowTokenHandler(flows.NewTokenCodec("flow-secret", false), nil)

	req := httptest.NewRequest(http.MethodPost, "/internal/flows/token",
		strings.NewReader(`{"clinic_id":"clinic-1"}`))
	rec := httptest.NewRecorder()
	handler.HandleMint(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestFlowTokenMintSecretRequired(t *testing.T) {
	// Hardened codecs without a secret refuse legacy issuance.
	handler := NewFlowTokenHandler(flows.NewTokenCodec("", false), nil)

	req := httptest.NewRequest(http.MethodPost, "/internal/flows/token",
		strings.NewReader(`{"clinic_id":"clinic-1","phone":"+5511988887777"}`))
	rec := httptest.NewRecorder()
	handler.HandleMint(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
