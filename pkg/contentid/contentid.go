// Package contentid generates the short typed identifiers used for history
// entries.
//
// ID format: <type:2>-<base62_ts:4><base62_rand:4>, 11 characters in total.
//
//   - mt = analysis of a media payload (uploaded file or recording)
//   - tr = analysis of a pasted or loaded transcript
//
// The timestamp component is microseconds since the epoch modulo 62^4, so ids
// created close together sort near each other; the random component keeps them
// unique.
package contentid

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"
)

// Type is the two-letter prefix of an id.
type Type string

const (
	TypeMeeting    Type = "mt"
	TypeTranscript Type = "tr"
)

const (
	idLength       = 11
	base62Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	base62Max      = 62 * 62 * 62 * 62
)

var (
	ErrInvalidFormat = errors.New("invalid content ID format")
	ErrInvalidType   = errors.New("invalid content type")
)

// Valid reports whether t is a known prefix.
func (t Type) Valid() bool {
	return t == TypeMeeting || t == TypeTranscript
}

// New returns a fresh id of type t.
func New(t Type) (string, error) {
	return NewAt(t, time.Now())
}

// NewAt returns a fresh id of type t using now for the timestamp component.
func NewAt(t Type, now time.Time) (string, error) {
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidType, string(t))
	}
	ts := encodeBase62(uint64(now.UnixMicro()) % base62Max)
	rnd, err := randomBase62(4)
	if err != nil {
		return "", fmt.Errorf("generating id: %w", err)
	}
	return string(t) + "-" + ts + rnd, nil
}

// Parse validates id and returns its type.
func Parse(id string) (Type, error) {
	if len(id) != idLength {
		return "", fmt.Errorf("%w: expected %d characters, got %d", ErrInvalidFormat, idLength, len(id))
	}
	if id[2] != '-' {
		return "", fmt.Errorf("%w: missing dash at position 2", ErrInvalidFormat)
	}
	t := Type(id[:2])
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown type %q", ErrInvalidType, id[:2])
	}
	if !isBase62(id[3:]) {
		return "", fmt.Errorf("%w: suffix contains invalid characters", ErrInvalidFormat)
	}
	return t, nil
}

// IsValid reports whether id parses.
func IsValid(id string) bool {
	_, err := Parse(id)
	return err == nil
}

func encodeBase62(n uint64) string {
	out := make([]byte, 4)
	for i := 3; i >= 0; i-- {
		out[i] = base62Alphabet[n%62]
		n /= 62
	}
	return string(out)
}

// randomBase62 draws n characters with rejection sampling so every character
// is equally likely: bytes >= 248 are discarded (248 = 4*62).
func randomBase62(n int) (string, error) {
	const maxUnbiased = 248
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b < maxUnbiased && len(out) < n {
				out = append(out, base62Alphabet[b%62])
			}
		}
	}
	return string(out), nil
}

func isBase62(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		default:
			return false
		}
	}
	return true
}
