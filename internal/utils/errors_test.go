package utils

import (
	"errors"
	"io/fs"
	"strings"
	"testing"
	"time"
)

func TestAppErrorMatchesKindAndCause(t *testing.T) {
	err := NewAppError("decision.Save", ErrIO, "write artifact", fs.ErrPermission)

	if !errors.Is(err, ErrIO) {
		t.Fatalf("expected ErrIO kind")
	}
	if !errors.Is(err, fs.ErrPermission) {
		t.Fatalf("expected cause to be reachable")
	}
	if errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unexpected kind match")
	}
	if !strings.Contains(err.Error(), "decision.Save") {
		t.Fatalf("expected op in message: %s", err)
	}
}

func TestInvalidInput(t *testing.T) {
	err := InvalidInput("evaluation.RegressionMetrics", "length mismatch: %d != %d", 3, 2)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if !strings.Contains(err.Error(), "3 != 2") {
		t.Fatalf("unexpected message: %s", err)
	}
}

func TestFormatISOHasOffset(t *testing.T) {
	ts := time.Date(2025, 3, 4, 5, 6, 7, 8000, time.FixedZone("CAT", 2*3600))
	got := FormatISO(ts)
	if got != "2025-03-04T03:06:07.000008+00:00" {
		t.Fatalf("unexpected timestamp %s", got)
	}
	parsed, err := ParseRFC3339(got)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !parsed.Equal(ts) {
		t.Fatalf("round trip mismatch: %v vs %v", parsed, ts)
	}
}
