package runner

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultMaxInputSize bounds one user message in bytes.
const DefaultMaxInputSize = 4096

// EnvMaxInputSize overrides DefaultMaxInputSize when set to a positive integer.
const EnvMaxInputSize = "DDIALOG_MAX_INPUT_SIZE"

var (
	ErrInputTooLarge = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8   = errors.New("input contains invalid UTF-8 sequences")
)

// Sanitizer prepares raw user text for recognition.
type Sanitizer struct {
	MaxSize int
}

// NewSanitizer returns a Sanitizer honoring EnvMaxInputSize.
func NewSanitizer() Sanitizer {
	s := Sanitizer{MaxSize: DefaultMaxInputSize}
	if v, err := strconv.Atoi(os.Getenv(EnvMaxInputSize)); err == nil && v > 0 {
		s.MaxSize = v
	}
	return s
}

// Clean rejects oversized or malformed text, drops terminal control
// sequences and composes accents (NFC) so decomposed input matches number words.
// Oversized input is rejected, never truncated.
func (s Sanitizer) Clean(text string) (string, error) {
	if len(text) > s.MaxSize {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(text), s.MaxSize)
	}
	if !utf8.ValidString(text) {
		return "", ErrInvalidUTF8
	}

	text = strings.Map(func(r rune) rune {
		switch {
		case r == '\n', r == '\t', r == '\r':
			return r
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, text)

	return norm.NFC.String(text), nil
}

// SanitizeInput cleans text with a Sanitizer built from the environment.
func SanitizeInput(text string) (string, error) {
	return NewSanitizer().Clean(text)
}
