package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/booking"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/clinic"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/conversation"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/flows"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/http/handlers"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/pkg/logging"
)

type noopPublisher struct{}

func (noopPublisher) EnqueueInbound(context.Context, conversation.InboundEvent) error { return nil }

type noopProcessed struct{}

func (noopProcessed) AlreadyProcessed(context.Context, string, string) (bool, error) {
	return false, nil
}

type noopClinicResolver struct{}

func (noopClinicResolver) ClinicIDByWhatsAppNumber(context.Context, string) (string, error) {
	return "", clinic.ErrNotFound
}

type noopTakeoverStore struct{}

func (noopTakeoverStore) SetHumanUntil(context.Context, string, string, *time.Time) error {
	return nil
}

type noopHoldInspector struct{}

func (noopHoldInspector) ActiveHolds(context.Context, string) ([]booking.Hold, error) {
	return nil, nil
}

func (noopHoldInspector) ExpireHolds(context.Context, time.Time) (int, error) { return 0, nil }

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	logger := logging.Default()
	webhook := handlers.NewWhatsAppWebhookHandler(handlers.WhatsAppWebhookConfig{
		Publisher:   noopPublisher{},
		Processed:   noopProcessed{},
		Clinics:     noopClinicResolver{},
		VerifyToken: "verify-me",
		Logger:      logger,
	})
	admin := handlers.NewAdminHandler(handlers.AdminConfig{
		States: noopTakeoverStore{},
		Holds:  noopHoldInspector{},
		Logger: logger,
	})

	cfg := &Config{
		Logger:           logger,
		WhatsAppWebhook:  webhook,
		FlowTokenHandler: handlers.NewFlowTokenHandler(flows.NewTokenCodec("flow-secret", false), logger),
		AdminHandler:     admin,
		HealthHandler:    handlers.NewHealthHandler(nil, nil),
		AdminAuthSecret:  "admin-secret",
		InternalToken:    "internal-secret",
	}

	return New(cfg)
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterWebhookVerifyChallenge(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet,
		"/webhooks/whatsapp/?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=42", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if rr.Body.String() != "42" {
		t.Errorf("expected challenge echo, got %q", rr.Body.String())
	}
}

func TestRouterAdminRequiresToken(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/holds?clinic_id=clinic-1", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
}

func TestRouterInternalSweepRequiresSharedToken(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/internal/holds/sweep", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/internal/holds/sweep", nil)
	req.Header.Set("X-Internal-Token", "internal-secret")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
}

func TestRouterInternalFlowTokenMint(t *testing.T) {
	router := newTestRouter(t)
	body := `{"clinic_id":"clinic-1","phone":"+5511988887777"}`

	req := httptest.NewRequest(http.MethodPost, "/internal/flows/token", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status %d without token, got %d", http.StatusForbidden, rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/internal/flows/token", strings.NewReader(body))
	req.Header.Set("X-Internal-Token", "internal-secret")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode mint response: %v", err)
	}
	if resp["flow_token"] == "" {
		t.Error("expected a minted flow token")
	}
}
