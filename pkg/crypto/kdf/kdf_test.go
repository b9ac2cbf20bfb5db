package kdf

import (
	"bytes"
	"errors"
	"testing"
)

// fastParams satisfies DefaultFloor while keeping tests quick.
var fastParams = Params{Time: 1, MemoryKiB: 8 * 1024, Threads: 1, KeyLen: KeyLength}

func TestDerive_Deterministic(t *testing.T) {
	salt := bytes.Repeat([]byte{0x5a}, SaltLength)

	k1, err := Derive([]byte("pw1"), salt, fastParams)
	if err != nil {
		t.Fatalf("Derive() error = %v", err)
	}
	k2, err := Derive([]byte("pw1"), salt, fastParams)
	if err != nil {
		t.Fatalf("Derive() error = %v", err)
	}

	if !bytes.Equal(k1, k2) {
		t.Error("Derive() is not deterministic")
	}
	if len(k1) != KeyLength {
		t.Errorf("Derive() key length = %d, want %d", len(k1), KeyLength)
	}
}

func TestDerive_Distinct(t *testing.T) {
	salt := bytes.Repeat([]byte{0x5a}, SaltLength)
	otherSalt := bytes.Repeat([]byte{0xa5}, SaltLength)

	base, _ := Derive([]byte("pw1"), salt, fastParams)
	otherPass, _ := Derive([]byte("pw2"), salt, fastParams)
	otherSaltKey, _ := Derive([]byte("pw1"), otherSalt, fastParams)

	if bytes.Equal(base, otherPass) {
		t.Error("distinct passphrases produced the same key")
	}
	if bytes.Equal(base, otherSaltKey) {
		t.Error("distinct salts produced the same key")
	}
}

func TestDerive_Floor(t *testing.T) {
	salt := bytes.Repeat([]byte{1}, SaltLength)

	tests := []struct {
		name   string
		params Params
		salt   []byte
	}{
		{"zero time", Params{Time: 0, MemoryKiB: 8192, Threads: 1, KeyLen: 32}, salt},
		{"low memory", Params{Time: 1, MemoryKiB: 1024, Threads: 1, KeyLen: 32}, salt},
		{"zero threads", Params{Time: 1, MemoryKiB: 8192, Threads: 0, KeyLen: 32}, salt},
		{"short key", Params{Time: 1, MemoryKiB: 8192, Threads: 1, KeyLen: 16}, salt},
		{"short salt", fastParams, []byte("salt")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := Derive([]byte("pw"), tt.salt, tt.params)
			if !errors.Is(err, ErrInvalidParameters) {
				t.Errorf("Derive() error = %v, want ErrInvalidParameters", err)
			}
			if key != nil {
				t.Error("Derive() returned key alongside error")
			}
		})
	}
}

func TestDerive_Ceiling(t *testing.T) {
	salt := bytes.Repeat([]byte{1}, SaltLength)

	tests := []struct {
		name   string
		params Params
	}{
		{"huge memory", Params{Time: 1, MemoryKiB: 0xFFFFFFFF, Threads: 1, KeyLen: 32}},
		{"many passes", Params{Time: 1 << 20, MemoryKiB: 8192, Threads: 1, KeyLen: 32}},
		{"many threads", Params{Time: 1, MemoryKiB: 8192, Threads: 255, KeyLen: 32}},
		{"long key", Params{Time: 1, MemoryKiB: 8192, Threads: 1, KeyLen: 1 << 16}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := DeriveWithFloor([]byte("pw"), salt, tt.params, DefaultFloor)
			if !errors.Is(err, ErrCostTooHigh) {
				t.Errorf("DeriveWithFloor() error = %v, want ErrCostTooHigh", err)
			}
			if key != nil {
				t.Error("DeriveWithFloor() returned key alongside error")
			}
		})
	}
}

func TestDeriveWithFloor_Custom(t *testing.T) {
	strict := DefaultFloor
	strict.Time = 2

	salt := bytes.Repeat([]byte{1}, SaltLength)
	if _, err := DeriveWithFloor([]byte("pw"), salt, fastParams, strict); !errors.Is(err, ErrInvalidParameters) {
		t.Errorf("DeriveWithFloor() error = %v, want ErrInvalidParameters", err)
	}
}

func TestDefaultParams_AboveFloor(t *testing.T) {
	salt, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt() error = %v", err)
	}
	if err := DefaultFloor.Check(DefaultParams(), salt); err != nil {
		t.Errorf("DefaultParams() below floor: %v", err)
	}
	if err := DefaultCeiling.Check(DefaultParams()); err != nil {
		t.Errorf("DefaultParams() above ceiling: %v", err)
	}
}

func TestNewSalt(t *testing.T) {
	s1, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt() error = %v", err)
	}
	s2, _ := NewSalt()

	if len(s1) != SaltLength {
		t.Errorf("NewSalt() length = %d, want %d", len(s1), SaltLength)
	}
	if bytes.Equal(s1, s2) {
		t.Error("NewSalt() returned identical salts")
	}
}

func TestSubkey(t *testing.T) {
	master := bytes.Repeat([]byte{7}, KeyLength)

	a, err := Subkey(master, "records", 32)
	if err != nil {
		t.Fatalf("Subkey() error = %v", err)
	}
	b, _ := Subkey(master, "records", 32)
	c, _ := Subkey(master, "other", 32)

	if !bytes.Equal(a, b) {
		t.Error("Subkey() is not deterministic")
	}
	if bytes.Equal(a, c) {
		t.Error("Subkey() ignores info")
	}
	if bytes.Equal(a, master) {
		t.Error("Subkey() returned the master key")
	}

	if _, err := Subkey(master[:8], "records", 32); !errors.Is(err, ErrKeyTooShort) {
		t.Errorf("Subkey(short) error = %v, want ErrKeyTooShort", err)
	}
}

func TestZero(t *testing.T) {
	b := []byte{1, 2, 3}
	Zero(b)
	if !bytes.Equal(b, []byte{0, 0, 0}) {
		t.Errorf("Zero() left %v", b)
	}
}

func BenchmarkDerive_Default(b *testing.B) {
	salt := bytes.Repeat([]byte{1}, SaltLength)
	for i := 0; i < b.N; i++ {
		Derive([]byte("benchmark passphrase"), salt, DefaultParams())
	}
}
