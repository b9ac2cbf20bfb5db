package passgen

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		classes []string
	}{
		{"default", DefaultOptions(), []string{Lower, Upper, Digits, Symbols}},
		{"no symbols", Options{Length: 12}, []string{Lower, Upper, Digits}},
		{"minimum", Options{Length: MinLength, Symbols: true}, []string{Lower, Upper, Digits, Symbols}},
		{"long", Options{Length: 256, Symbols: true}, []string{Lower, Upper, Digits, Symbols}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pw, err := Generate(tt.opts)
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			if len(pw) != tt.opts.Length {
				t.Errorf("len = %d, want %d", len(pw), tt.opts.Length)
			}
			allowed := strings.Join(tt.classes, "")
			for _, r := range pw {
				if !strings.ContainsRune(allowed, r) {
					t.Errorf("unexpected character %q in %q", r, pw)
				}
			}
			for _, c := range tt.classes {
				if !strings.ContainsAny(pw, c) {
					t.Errorf("%q has no character from %q", pw, c)
				}
			}
		})
	}
}

func TestGenerate_Length(t *testing.T) {
	for _, n := range []int{-1, 0, MinLength - 1, MaxLength + 1} {
		if _, err := Generate(Options{Length: n}); !errors.Is(err, ErrLength) {
			t.Errorf("Generate(length %d) error = %v, want ErrLength", n, err)
		}
	}
}

func TestGenerate_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		pw, err := Generate(DefaultOptions())
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if seen[pw] {
			t.Fatalf("Generate() produced duplicate %q", pw)
		}
		seen[pw] = true
	}
}

func TestScore(t *testing.T) {
	if got := Score("password"); got > 1 {
		t.Errorf("Score(password) = %d, want <= 1", got)
	}
	pw, err := Generate(Options{Length: 32, Symbols: true})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got := Score(pw); got < 3 {
		t.Errorf("Score(%q) = %d, want >= 3", pw, got)
	}
}

func BenchmarkGenerate(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Generate(DefaultOptions())
	}
}
