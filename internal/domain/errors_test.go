package domain

import (
	"strings"
	"testing"
	"time"
)

func TestStartupErrorIncludesDiagnostics(t *testing.T) {
	err := &StartupError{
		Addr:        "127.0.0.1:18789",
		Timeout:     180 * time.Second,
		Diagnostics: "panic: missing config",
	}
	if !strings.Contains(err.Error(), "panic: missing config") {
		t.Errorf("falta el diagnóstico en el mensaje: %q", err.Error())
	}
}

func TestStartupErrorWithoutDiagnosticsKeepsTimeoutAsCause(t *testing.T) {
	err := &StartupError{Addr: "127.0.0.1:18789", Timeout: 180 * time.Second}
	msg := err.Error()
	if strings.Contains(msg, "captured stderr") {
		t.Errorf("el mensaje no debe mencionar diagnóstico cuando no se obtuvo ninguno: %q", msg)
	}
	if !strings.Contains(msg, "127.0.0.1:18789") {
		t.Errorf("el mensaje debe nombrar la dirección sondeada: %q", msg)
	}
}
