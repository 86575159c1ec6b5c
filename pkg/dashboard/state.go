package dashboard

import (
	"github.com/otherjamesbrown/minutes-cli/client"
	"github.com/otherjamesbrown/minutes-cli/pkg/media"
)

// Phase is the stage of the current upload attempt.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseInProgress
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseInProgress:
		return "in_progress"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	}
	return "idle"
}

// UploadState tracks one upload attempt. Percent never decreases within an
// attempt; Reason is set when Phase is PhaseFailed.
type UploadState struct {
	Phase   Phase  `json:"phase" yaml:"phase"`
	Percent int    `json:"percent" yaml:"percent"`
	Reason  string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Snapshot is a consistent copy of the dashboard state.
type Snapshot struct {
	Upload     UploadState            `json:"upload" yaml:"upload"`
	Result     *client.AnalysisResult `json:"result,omitempty" yaml:"result,omitempty"`
	Transcript string                 `json:"transcript,omitempty" yaml:"transcript,omitempty"`
	Filename   string                 `json:"filename,omitempty" yaml:"filename,omitempty"`
	Kind       media.Kind             `json:"kind,omitempty" yaml:"kind,omitempty"`
	HistoryID  string                 `json:"history_id,omitempty" yaml:"history_id,omitempty"`
	Recording  bool                   `json:"recording" yaml:"recording"`
	Busy       bool                   `json:"busy" yaml:"busy"`
}

func copyResult(r *client.AnalysisResult) *client.AnalysisResult {
	if r == nil {
		return nil
	}
	return &client.AnalysisResult{
		Summary:     r.Summary,
		ActionItems: append([]string{}, r.ActionItems...),
		Decisions:   append([]string{}, r.Decisions...),
		NextSteps:   append([]string{}, r.NextSteps...),
	}
}
