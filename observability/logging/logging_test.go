package logging

import (
	"log/slog"
	"testing"
)

func TestReplaceAttrRenamesAndMasks(t *testing.T) {
	if got := replaceAttr(nil, slog.String(slog.MessageKey, "hi")); got.Key != "message" {
		t.Fatalf("message key not renamed: %s", got.Key)
	}
	if got := replaceAttr(nil, slog.Any(slog.LevelKey, slog.LevelWarn)); got.Value.String() != "WARN" || got.Key != "severity" {
		t.Fatalf("unexpected level attr %s=%s", got.Key, got.Value)
	}
	if got := replaceAttr(nil, slog.String("Authorization", "Bearer abc")); got.Value.String() != RedactedValue {
		t.Fatalf("authorization not masked: %s", got.Value)
	}
	if got := replaceAttr(nil, slog.String("asset", "USDC-123456")); got.Value.String() != "USDC-123456" {
		t.Fatalf("plain attribute altered: %s", got.Value)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
