package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/pkg/logging"
)

func internalProtected(token string, hardened bool) http.Handler {
	return InternalToken(token, hardened, logging.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestInternalTokenAcceptsMatch(t *testing.T) {
	handler := internalProtected("s3cret", true)
	req := httptest.NewRequest(http.MethodPost, "/internal/sweep", nil)
	req.Header.Set("X-Internal-Token", "s3cret")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestInternalTokenRejectsMismatch(t *testing.T) {
	handler := internalProtected("s3cret", true)
	req := httptest.NewRequest(http.MethodPost, "/internal/sweep", nil)
	req.Header.Set("X-Internal-Token", "wrong")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestInternalTokenUnconfiguredHardenedFailsClosed(t *testing.T) {
	handler := internalProtected("", true)
	req := httptest.NewRequest(http.MethodPost, "/internal/sweep", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 in hardened mode, got %d", rr.Code)
	}
}

func TestInternalTokenUnconfiguredAllowsWhenNotHardened(t *testing.T) {
	handler := internalProtected("", false)
	req := httptest.NewRequest(http.MethodPost, "/internal/sweep", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 in permissive mode, got %d", rr.Code)
	}
}
