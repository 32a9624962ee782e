package logger

import (
	"errors"
	"testing"
)

func TestSanitizer_Sanitize(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "password",
			input:    "login with password=secret123",
			expected: "login with password=***",
		},
		{
			name:     "bearer token",
			input:    "Authorization: Bearer eyJhbGc...",
			expected: "Authorization: bearer ***",
		},
		{
			name:     "windows user path",
			input:    "copy C:\\Users\\john\\Documents\\file.txt",
			expected: "copy ***:\\Users\\***\\Documents\\file.txt",
		},
		{
			name:     "unix home path",
			input:    "target /home/john/backup",
			expected: "target /home/***/backup",
		},
		{
			name:     "macos home path",
			input:    "source /Users/jane/Pictures",
			expected: "source /Users/***/Pictures",
		},
		{
			name:     "file name with at sign",
			input:    "copy_file me@host.txt",
			expected: "copy_file me@host.txt",
		},
		{
			name:     "no sensitive data",
			input:    "normal log message",
			expected: "normal log message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := s.Sanitize(tt.input); result != tt.expected {
				t.Errorf("Sanitize() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestSanitizer_SanitizeArgs(t *testing.T) {
	s := NewSanitizer()

	result := s.SanitizeArgs([]any{
		"password", "secret123",
		"root", "/home/john/data",
		"error", errors.New("open /home/john/data/x: permission denied"),
		"count", 42,
	})

	if len(result) != 8 {
		t.Fatalf("expected 8 args, got %d", len(result))
	}
	if result[1] != "s***3" {
		t.Errorf("password not masked: %v", result[1])
	}
	if result[3] != "/home/***/data" {
		t.Errorf("home directory not masked: %v", result[3])
	}
	if result[5] != "open /home/***/data/x: permission denied" {
		t.Errorf("error value not sanitized: %v", result[5])
	}
	if result[7] != 42 {
		t.Errorf("non-string value changed: %v", result[7])
	}
}

func TestSanitizer_SanitizeArgs_OddLength(t *testing.T) {
	s := NewSanitizer()

	result := s.SanitizeArgs([]any{"path", "a.txt", "dangling"})
	if len(result) != 3 || result[2] != "dangling" {
		t.Errorf("unexpected result %v", result)
	}
}

func TestSanitizer_AddRule(t *testing.T) {
	s := NewSanitizer()

	if err := s.AddRule(`/mnt/[^/]+`, "/mnt/***"); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}

	expected := "target /mnt/***/photos"
	if result := s.Sanitize("target /mnt/nas01/photos"); result != expected {
		t.Errorf("Expected %q, got %q", expected, result)
	}

	if err := s.AddRule(`(`, "x"); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestMaskValue(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"ab", "***"},
		{"abc", "a***"},
		{"abcdefgh", "a***"},
		{"abcdefghi", "a***i"},
		{"verylongpassword", "v***d"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := maskValue(tt.input); result != tt.expected {
				t.Errorf("maskValue(%s) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestIsSensitiveKey(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"password", true},
		{"user_password", true},
		{"PASSWORD", true},
		{"token", true},
		{"api_key", true},
		{"path", false},
		{"run_id", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := isSensitiveKey(tt.input); result != tt.expected {
				t.Errorf("isSensitiveKey(%s) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}
