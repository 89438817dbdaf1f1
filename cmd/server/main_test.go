package main

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerParsesLevel(t *testing.T) {
	if got := newLogger("debug").GetLevel(); got != zerolog.DebugLevel {
		t.Fatalf("level = %v, want debug", got)
	}
	if got := newLogger("warn").GetLevel(); got != zerolog.WarnLevel {
		t.Fatalf("level = %v, want warn", got)
	}
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	if got := newLogger("verbose").GetLevel(); got != zerolog.InfoLevel {
		t.Fatalf("unknown level = %v, want info fallback", got)
	}
	if got := newLogger("").GetLevel(); got != zerolog.InfoLevel {
		t.Fatalf("empty level = %v, want info fallback", got)
	}
}
