package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.Hardened {
		t.Error("Hardened should default to false")
	}
	if cfg.BufferWindow != 6*time.Second {
		t.Errorf("BufferWindow = %s, want 6s", cfg.BufferWindow)
	}
	if cfg.HoldTTL != 15*time.Minute {
		t.Errorf("HoldTTL = %s, want 15m", cfg.HoldTTL)
	}
	if cfg.WorkerCount != 2 {
		t.Errorf("WorkerCount = %d, want 2", cfg.WorkerCount)
	}
	if !cfg.AllowLegacyFlowTokens {
		t.Error("legacy flow tokens should default on outside hardened mode")
	}
}

func TestLegacyFlowTokensOffWhenHardened(t *testing.T) {
	t.Setenv("HARDENED", "true")
	if cfg := Load(); cfg.AllowLegacyFlowTokens {
		t.Error("hardened deployments must not accept legacy tokens by default")
	}

	t.Setenv("ALLOW_LEGACY_FLOW_TOKENS", "true")
	if cfg := Load(); !cfg.AllowLegacyFlowTokens {
		t.Error("explicit ALLOW_LEGACY_FLOW_TOKENS=true must win")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HARDENED", "true")
	t.Setenv("BUFFER_WINDOW", "2s")
	t.Setenv("DEFAULT_DEPOSIT_CENTS", "2500")
	t.Setenv("SEND_RATE_PER_SECOND", "5.5")

	cfg := Load()

	if !cfg.Hardened {
		t.Error("HARDENED=true not honored")
	}
	if cfg.BufferWindow != 2*time.Second {
		t.Errorf("BufferWindow = %s, want 2s", cfg.BufferWindow)
	}
	if cfg.DefaultDepositCents != 2500 {
		t.Errorf("DefaultDepositCents = %d, want 2500", cfg.DefaultDepositCents)
	}
	if cfg.SendRatePerSecond != 5.5 {
		t.Errorf("SendRatePerSecond = %v, want 5.5", cfg.SendRatePerSecond)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("WORKER_COUNT", "not-a-number")
	t.Setenv("HOLD_TTL", "soon")

	cfg := Load()

	if cfg.WorkerCount != 2 {
		t.Errorf("malformed WORKER_COUNT should fall back to default, got %d", cfg.WorkerCount)
	}
	if cfg.HoldTTL != 15*time.Minute {
		t.Errorf("malformed HOLD_TTL should fall back to default, got %s", cfg.HoldTTL)
	}
}
