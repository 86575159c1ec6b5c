// Package history keeps the analyses produced by this CLI so they can be
// listed, shown again and re-exported later. Entries live in one of three
// backends selected by configuration: a YAML file, Redis or PostgreSQL.
package history

import (
	"fmt"
	"time"

	"github.com/otherjamesbrown/minutes-cli/client"
	"github.com/otherjamesbrown/minutes-cli/pkg/contentid"
)

// Source records how the analysed content reached the server.
type Source string

const (
	SourceUpload     Source = "upload"
	SourceRecording  Source = "recording"
	SourceTranscript Source = "transcript"
)

// ParseSource validates a source name.
func ParseSource(s string) (Source, error) {
	switch src := Source(s); src {
	case SourceUpload, SourceRecording, SourceTranscript:
		return src, nil
	default:
		return "", fmt.Errorf("unknown history source %q", s)
	}
}

// Entry is one stored analysis.
type Entry struct {
	ID         string                `json:"id" yaml:"id"`
	CreatedAt  time.Time             `json:"created_at" yaml:"created_at"`
	Source     Source                `json:"source" yaml:"source"`
	Filename   string                `json:"filename,omitempty" yaml:"filename,omitempty"`
	Transcript string                `json:"transcript" yaml:"transcript"`
	Analysis   client.AnalysisResult `json:"analysis" yaml:"analysis"`
}

// NewEntry builds an entry with a fresh id: tr- for transcripts, mt- for
// uploaded or recorded media.
func NewEntry(source Source, filename, transcript string, analysis client.AnalysisResult, now time.Time) (*Entry, error) {
	if _, err := ParseSource(string(source)); err != nil {
		return nil, err
	}
	typ := contentid.TypeMeeting
	if source == SourceTranscript {
		typ = contentid.TypeTranscript
	}
	id, err := contentid.NewAt(typ, now)
	if err != nil {
		return nil, err
	}
	return &Entry{
		ID:         id,
		CreatedAt:  now.UTC(),
		Source:     source,
		Filename:   filename,
		Transcript: transcript,
		Analysis:   analysis,
	}, nil
}
