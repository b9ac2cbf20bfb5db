package passgen

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/nbutton23/zxcvbn-go"
)

// Length limits.
const (
	DefaultLength = 20
	MinLength     = 4
	MaxLength     = 1024
)

// Character classes.
const (
	Lower   = "abcdefghijklmnopqrstuvwxyz"
	Upper   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	Digits  = "0123456789"
	Symbols = "!#$%&*+-=?@^_~"
)

// ErrLength is returned for lengths outside [MinLength, MaxLength].
var ErrLength = errors.New("passgen: invalid length")

// Options controls generation.
type Options struct {
	Length  int
	Symbols bool
}

// DefaultOptions returns DefaultLength with symbols enabled.
func DefaultOptions() Options {
	return Options{Length: DefaultLength, Symbols: true}
}

// Generate returns a random password.
func Generate(opts Options) (string, error) {
	if opts.Length < MinLength || opts.Length > MaxLength {
		return "", fmt.Errorf("%w: %d not in [%d, %d]", ErrLength, opts.Length, MinLength, MaxLength)
	}

	classes := []string{Lower, Upper, Digits}
	if opts.Symbols {
		classes = append(classes, Symbols)
	}
	var all string
	for _, c := range classes {
		all += c
	}

	out := make([]byte, opts.Length)
	for i, c := range classes {
		b, err := pick(c)
		if err != nil {
			return "", err
		}
		out[i] = b
	}
	for i := len(classes); i < len(out); i++ {
		b, err := pick(all)
		if err != nil {
			return "", err
		}
		out[i] = b
	}
	if err := shuffle(out); err != nil {
		return "", err
	}
	return string(out), nil
}

// Score returns the zxcvbn strength score (0-4) of password.
func Score(password string) int {
	return zxcvbn.PasswordStrength(password, nil).Score
}

func pick(set string) (byte, error) {
	n, err := randInt(len(set))
	if err != nil {
		return 0, err
	}
	return set[n], nil
}

// shuffle is a Fisher-Yates shuffle so the guaranteed characters do not
// sit at fixed positions.
func shuffle(b []byte) error {
	for i := len(b) - 1; i > 0; i-- {
		j, err := randInt(i + 1)
		if err != nil {
			return err
		}
		b[i], b[j] = b[j], b[i]
	}
	return nil
}

func randInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("passgen: read random: %w", err)
	}
	return int(v.Int64()), nil
}
