package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/booking"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/conversation"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/pkg/logging"
)

type stubTakeoverStore struct {
	clinicID string
	phone    string
	until    *time.Time
	calls    int
	err      error
}

func (s *stubTakeoverStore) SetHumanUntil(_ context.Context, clinicID, phone string, until *time.Time) error {
	s.calls++
	s.clinicID = clinicID
	s.phone = phone
	s.until = until
	return s.err
}

type stubHoldInspector struct {
	holds    []booking.Hold
	released int
	swept    bool
	err      error
}

func (s *stubHoldInspector) ActiveHolds(_ context.Context, clinicID string) ([]booking.Hold, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.holds, nil
}

func (s *stubHoldInspector) ExpireHolds(_ context.Context, _ time.Time) (int, error) {
	s.swept = true
	if s.err != nil {
		return 0, s.err
	}
	return s.released, nil
}

type stubTranscriptReader struct {
	messages []conversation.TranscriptMessage
}

func (s *stubTranscriptReader) Recent(_ context.Context, _, _ string, _ int) ([]conversation.TranscriptMessage, error) {
	return s.messages, nil
}

func newAdminHandler(states *stubTakeoverStore, holds *stubHoldInspector, transcripts transcriptReader) *AdminHandler {
	return NewAdminHandler(AdminConfig{
		States:      states,
		Holds:       holds,
		Transcripts: transcripts,
		Logger:      logging.Default(),
	})
}

func TestAdminTakeoverEnable(t *testing.T) {
	states := &stubTakeoverStore{}
	h := newAdminHandler(states, &stubHoldInspector{}, nil)

	body := `{"clinic_id":"clinic-1","phone":"+5511988887777","enabled":true,"hours":4}`
	rr := httptest.NewRecorder()
	h.HandleTakeover(rr, httptest.NewRequest(http.MethodPost, "/admin/takeover", strings.NewReader(body)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if states.calls != 1 || states.clinicID != "clinic-1" || states.phone != "+5511988887777" {
		t.Fatalf("unexpected store call: %+v", states)
	}
	if states.until == nil {
		t.Fatalf("expected takeover deadline to be set")
	}
	remaining := time.Until(*states.until)
	if remaining < 3*time.Hour+59*time.Minute || remaining > 4*time.Hour+time.Minute {
		t.Fatalf("expected ~4h takeover, got %s", remaining)
	}
}

func TestAdminTakeoverDisableClearsDeadline(t *testing.T) {
	until := time.Now().Add(time.Hour)
	states := &stubTakeoverStore{until: &until}
	h := newAdminHandler(states, &stubHoldInspector{}, nil)

	body := `{"clinic_id":"clinic-1","phone":"+5511988887777","enabled":false}`
	rr := httptest.NewRecorder()
	h.HandleTakeover(rr, httptest.NewRequest(http.MethodPost, "/admin/takeover", strings.NewReader(body)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if states.until != nil {
		t.Fatalf("expected deadline cleared, got %v", states.until)
	}
}

func TestAdminTakeoverRequiresIdentity(t *testing.T) {
	states := &stubTakeoverStore{}
	h := newAdminHandler(states, &stubHoldInspector{}, nil)

	rr := httptest.NewRecorder()
	h.HandleTakeover(rr, httptest.NewRequest(http.MethodPost, "/admin/takeover", strings.NewReader(`{"enabled":true}`)))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if states.calls != 0 {
		t.Fatalf("store should not be called")
	}
}

func TestAdminListHolds(t *testing.T) {
	expires := time.Date(2026, 9, 10, 14, 15, 0, 0, time.UTC)
	holds := &stubHoldInspector{holds: []booking.Hold{{
		ID:             uuid.New(),
		AppointmentID:  uuid.New(),
		ClinicID:       "clinic-1",
		ProfessionalID: "prof-1",
		Date:           "2026-09-10",
		Time:           "14:00",
		AmountCents:    8000,
		ExpiresAt:      expires,
	}}}
	h := newAdminHandler(&stubTakeoverStore{}, holds, nil)

	rr := httptest.NewRecorder()
	h.HandleListHolds(rr, httptest.NewRequest(http.MethodGet, "/admin/holds?clinic_id=clinic-1", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		Holds []struct {
			ProfessionalID string `json:"professional_id"`
			Date           string `json:"date"`
			Time           string `json:"time"`
			AmountCents    int64  `json:"amount_cents"`
		} `json:"holds"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Holds) != 1 {
		t.Fatalf("expected one hold, got %d", len(resp.Holds))
	}
	got := resp.Holds[0]
	if got.ProfessionalID != "prof-1" || got.Date != "2026-09-10" || got.Time != "14:00" || got.AmountCents != 8000 {
		t.Fatalf("unexpected hold view: %+v", got)
	}
}

func TestAdminSweepReportsReleasedCount(t *testing.T) {
	holds := &stubHoldInspector{released: 3}
	h := newAdminHandler(&stubTakeoverStore{}, holds, nil)

	rr := httptest.NewRecorder()
	h.HandleSweep(rr, httptest.NewRequest(http.MethodPost, "/admin/sweep", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !holds.swept {
		t.Fatalf("sweep not invoked")
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["released"] != float64(3) {
		t.Fatalf("expected released=3, got %v", resp["released"])
	}
}

func TestAdminTranscript(t *testing.T) {
	reader := &stubTranscriptReader{messages: []conversation.TranscriptMessage{
		{Role: "patient", Body: "oi", Timestamp: time.Now()},
		{Role: "assistant", Body: "Olá!", Timestamp: time.Now()},
	}}
	h := newAdminHandler(&stubTakeoverStore{}, &stubHoldInspector{}, reader)

	rr := httptest.NewRecorder()
	h.HandleTranscript(rr, httptest.NewRequest(http.MethodGet, "/admin/transcript?clinic_id=clinic-1&phone=%2B5511988887777", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		Messages []conversation.TranscriptMessage `json:"messages"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Messages) != 2 || resp.Messages[0].Role != "patient" {
		t.Fatalf("unexpected transcript: %+v", resp.Messages)
	}
}

func TestAdminTranscriptUnconfigured(t *testing.T) {
	h := newAdminHandler(&stubTakeoverStore{}, &stubHoldInspector{}, nil)

	rr := httptest.NewRecorder()
	h.HandleTranscript(rr, httptest.NewRequest(http.MethodGet, "/admin/transcript?clinic_id=clinic-1&phone=x", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
