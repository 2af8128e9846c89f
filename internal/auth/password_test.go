package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestNewPasswordService_Cost(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultCost}, // BCRYPT_COST unset
		{3, DefaultCost},
		{32, DefaultCost},
		{bcrypt.MinCost, bcrypt.MinCost},
		{12, 12},
	}
	for _, tt := range tests {
		if got := NewPasswordService(tt.in).cost; got != tt.want {
			t.Errorf("NewPasswordService(%d).cost = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestHash_UsesConfiguredCost(t *testing.T) {
	hash, err := NewPasswordService(5).Hash("admin")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		t.Fatalf("stored value is not a bcrypt hash: %v", err)
	}
	if cost != 5 {
		t.Errorf("cost = %d, want 5", cost)
	}
}

func TestHash_Salted(t *testing.T) {
	ps := NewPasswordService(bcrypt.MinCost)

	a, _ := ps.Hash("admin")
	b, _ := ps.Hash("admin")
	if a == b {
		t.Error("two hashes of one password are identical")
	}
}

func TestHash_LengthLimit(t *testing.T) {
	ps := NewPasswordService(bcrypt.MinCost)

	if _, err := ps.Hash(strings.Repeat("a", 72)); err != nil {
		t.Errorf("72 bytes: %v", err)
	}
	if _, err := ps.Hash(strings.Repeat("a", 73)); err == nil {
		t.Error("73 bytes were accepted")
	}
	// The limit is in bytes: 25 three-byte runes are 75 bytes.
	if _, err := ps.Hash(strings.Repeat("€", 25)); err == nil {
		t.Error("75 bytes of multi-byte runes were accepted")
	}
}

func TestVerify(t *testing.T) {
	ps := NewPasswordService(bcrypt.MinCost)

	hash, err := ps.Hash("s3cret pass")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	tests := []struct {
		name     string
		hash     string
		password string
		wantErr  error // nil means success; errAny means any non-mismatch error
	}{
		{"correct", hash, "s3cret pass", nil},
		{"wrong", hash, "s3cret-pass", ErrInvalidPassword},
		{"case matters", hash, "S3CRET PASS", ErrInvalidPassword},
		{"empty", hash, "", ErrInvalidPassword},
		{"corrupt hash", "not-a-bcrypt-hash", "s3cret pass", errAny},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ps.Verify(tt.hash, tt.password)
			switch tt.wantErr {
			case nil:
				if err != nil {
					t.Errorf("Verify() = %v, want nil", err)
				}
			case errAny:
				if err == nil || errors.Is(err, ErrInvalidPassword) {
					t.Errorf("Verify() = %v, want a non-mismatch error", err)
				}
			default:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Verify() = %v, want %v", err, tt.wantErr)
				}
			}
		})
	}
}

var errAny = errors.New("any error")
