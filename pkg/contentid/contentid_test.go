package contentid

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	for _, typ := range []Type{TypeMeeting, TypeTranscript} {
		t.Run(string(typ), func(t *testing.T) {
			id, err := New(typ)
			if err != nil {
				t.Fatalf("New(%q) error = %v", typ, err)
			}
			if !strings.HasPrefix(id, string(typ)+"-") {
				t.Errorf("New(%q) = %q, want prefix %q", typ, id, string(typ)+"-")
			}
			if len(id) != idLength {
				t.Errorf("New(%q) length = %d, want %d", typ, len(id), idLength)
			}
			if !isBase62(id[3:]) {
				t.Errorf("New(%q) suffix %q is not base62", typ, id[3:])
			}
		})
	}
}

func TestNew_UnknownType(t *testing.T) {
	if _, err := New("em"); !errors.Is(err, ErrInvalidType) {
		t.Errorf("New(em) error = %v, want ErrInvalidType", err)
	}
}

func TestNew_Uniqueness(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 5000; i++ {
		id, err := NewAt(TypeMeeting, now)
		if err != nil {
			t.Fatal(err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestNewAt_TimestampComponent(t *testing.T) {
	now := time.UnixMicro(62*62 + 1)
	id, err := NewAt(TypeTranscript, now)
	if err != nil {
		t.Fatal(err)
	}
	if got := id[3:7]; got != "0101" {
		t.Errorf("timestamp component = %q, want %q", got, "0101")
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		id      string
		want    Type
		wantErr error
	}{
		{"mt-ABCD1234", TypeMeeting, nil},
		{"tr-zzzzzzzz", TypeTranscript, nil},
		{"mt-1234567", "", ErrInvalidFormat},
		{"mt-123456789", "", ErrInvalidFormat},
		{"mt_12345678", "", ErrInvalidFormat},
		{"em-12345678", "", ErrInvalidType},
		{"tr-1234-678", "", ErrInvalidFormat},
	}
	for _, tc := range tests {
		t.Run(tc.id, func(t *testing.T) {
			got, err := Parse(tc.id)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Errorf("Parse(%q) error = %v, want %v", tc.id, err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tc.id, err)
			}
			if got != tc.want {
				t.Errorf("Parse(%q) = %q, want %q", tc.id, got, tc.want)
			}
			if !IsValid(tc.id) {
				t.Errorf("IsValid(%q) = false", tc.id)
			}
		})
	}
}
