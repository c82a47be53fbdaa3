package config

import (
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

// TestSlogLevel tests LogLevel to slog.Level mapping.
func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{level: "debug", want: slog.LevelDebug},
		{level: "info", want: slog.LevelInfo},
		{level: "warn", want: slog.LevelWarn},
		{level: "error", want: slog.LevelError},
		{level: "WARN", want: slog.LevelWarn},
		{level: "", want: slog.LevelInfo},
		{level: "verbose", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		cfg := &Config{LogLevel: tt.level}
		if got := cfg.SlogLevel(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

// TestQualifiedModelName tests provider prefixing of model names.
func TestQualifiedModelName(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		model    string
		want     string
	}{
		{name: "openai bare name", provider: ProviderOpenAI, model: "gpt-4o", want: "openai/gpt-4o"},
		{name: "gemini bare name", provider: ProviderGemini, model: "gemini-2.5-flash", want: "googleai/gemini-2.5-flash"},
		{name: "already qualified", provider: ProviderOpenAI, model: "openai/gpt-4o-mini", want: "openai/gpt-4o-mini"},
		{name: "unknown provider defaults to openai", provider: "", model: "gpt-4o", want: "openai/gpt-4o"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Provider: tt.provider, ModelName: tt.model}
			if got := cfg.QualifiedModelName(); got != tt.want {
				t.Errorf("QualifiedModelName() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestMarshalJSONMasksPassword tests that sensitive fields never appear in
// serialized configuration.
func TestMarshalJSONMasksPassword(t *testing.T) {
	cfg := &Config{
		Provider:         ProviderOpenAI,
		PostgresPassword: "super-secret-password",
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("json.Marshal() unexpected error: %v", err)
	}

	if strings.Contains(string(data), "super-secret-password") {
		t.Error("serialized config contains the plaintext password")
	}
	if !strings.Contains(string(data), "********") {
		t.Error("serialized config does not contain the mask")
	}
}

// TestMarshalJSONEmptyPassword tests that an empty password stays empty
// rather than being masked.
func TestMarshalJSONEmptyPassword(t *testing.T) {
	data, err := json.Marshal(&Config{Provider: ProviderOpenAI})
	if err != nil {
		t.Fatalf("json.Marshal() unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() unexpected error: %v", err)
	}
	if decoded["postgres_password"] != "" {
		t.Errorf("postgres_password = %v, want empty string", decoded["postgres_password"])
	}
}
