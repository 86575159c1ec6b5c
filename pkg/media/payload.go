// Package media builds the payloads sent to the meeting-assistant backend:
// files picked from disk and microphone recordings encoded to FLAC.
package media

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Kind is the media category a payload is validated and uploaded as.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// ParseKind parses "audio" or "video" (case-insensitive).
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindAudio:
		return KindAudio, nil
	case KindVideo:
		return KindVideo, nil
	}
	return "", fmt.Errorf("invalid media kind %q (must be audio or video)", s)
}

func (k Kind) String() string {
	return string(k)
}

// Payload is an immutable media body ready for upload.
type Payload struct {
	kind Kind
	name string
	mime string
	data []byte
}

// NewPayload returns a payload holding a copy of data.
func NewPayload(kind Kind, name, mimeType string, data []byte) *Payload {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Payload{kind: kind, name: name, mime: mimeType, data: buf}
}

func (p *Payload) Kind() Kind        { return p.kind }
func (p *Payload) Name() string      { return p.name }
func (p *Payload) MIME() string      { return p.mime }
func (p *Payload) Size() int64       { return int64(len(p.data)) }
func (p *Payload) Reader() io.Reader { return bytes.NewReader(p.data) }

// Bytes returns a copy of the payload body.
func (p *Payload) Bytes() []byte {
	buf := make([]byte, len(p.data))
	copy(buf, p.data)
	return buf
}
