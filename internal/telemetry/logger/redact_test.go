package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func newJSONLogger(t *testing.T) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return l, &buf
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var logEntry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("Failed to parse JSON log: %v", err)
	}
	return logEntry
}

func TestRedactSensitive_SensitiveKeyName(t *testing.T) {
	l, buf := newJSONLogger(t)

	tests := []struct {
		key   string
		value string
	}{
		{"passphrase", "pw1"},
		{"password", "mysecret123"},
		{"new_password", "hunter2"},
		{"master_key", "00112233"},
		{"salt", "abcd"},
		{"plaintext", "alice:s3cr3t"},
		{"credential", "cred123"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			buf.Reset()
			l.Info("test", tt.key, tt.value)

			val, ok := decode(t, buf)[tt.key].(string)
			if !ok {
				t.Fatalf("Expected %s field in log", tt.key)
			}
			if val != redactedValue {
				t.Errorf("Key %q should be redacted, got %q", tt.key, val)
			}
		})
	}
}

func TestRedactSensitive_Bytes(t *testing.T) {
	l, buf := newJSONLogger(t)

	l.Info("derived", "key", []byte{1, 2, 3})

	if got := decode(t, buf)["key"]; got != redactedValue {
		t.Errorf("byte slice under key = %v, want redacted", got)
	}
}

func TestRedactSensitive_NormalValues(t *testing.T) {
	l, buf := newJSONLogger(t)

	l.Info("record added", "record_id", 3, "label", "github", "vault", "/tmp/v.db")

	entry := decode(t, buf)
	if entry["label"] != "github" {
		t.Errorf("label should not be redacted, got %v", entry["label"])
	}
	if entry["vault"] != "/tmp/v.db" {
		t.Errorf("vault should not be redacted, got %v", entry["vault"])
	}
	if entry["record_id"] != float64(3) {
		t.Errorf("record_id should not be redacted, got %v", entry["record_id"])
	}
}

func TestRedactSensitive_EmptyValueKept(t *testing.T) {
	a := redactSensitive(slog.String("password", ""))
	if a.Value.String() != "" {
		t.Errorf("empty password = %q, want empty", a.Value.String())
	}
}

func TestRedactSensitive_Group(t *testing.T) {
	l, buf := newJSONLogger(t)

	l.Info("unlock", slog.Group("request", slog.String("passphrase", "pw1"), slog.String("path", "v.db")))

	group, ok := decode(t, buf)["request"].(map[string]any)
	if !ok {
		t.Fatal("expected request group")
	}
	if group["passphrase"] != redactedValue {
		t.Errorf("grouped passphrase = %v, want redacted", group["passphrase"])
	}
	if group["path"] != "v.db" {
		t.Errorf("grouped path = %v, want v.db", group["path"])
	}
}

func TestIsSensitiveKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"passphrase", true},
		{"PASSWORD", true},
		{"api_key", true},
		{"nonce", true},
		{"label", false},
		{"record_id", false},
		{"vault", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := IsSensitiveKey(tt.key); got != tt.want {
				t.Errorf("IsSensitiveKey(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}
