package env

import "testing"

func TestIsLocal(t *testing.T) {
	t.Setenv("ENVIRONMENT", "LOCAL")
	if !IsLocal() {
		t.Error("expected IsLocal() to be true for ENVIRONMENT=LOCAL")
	}

	t.Setenv("ENVIRONMENT", "production")
	if IsLocal() {
		t.Error("expected IsLocal() to be false for ENVIRONMENT=production")
	}
}

func TestIsDebug(t *testing.T) {
	t.Setenv("LOG_LEVEL", "Debug")
	if !IsDebug() {
		t.Error("expected IsDebug() to be true")
	}
	t.Setenv("LOG_LEVEL", "info")
	if IsDebug() {
		t.Error("expected IsDebug() to be false")
	}
}
