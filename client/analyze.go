package client

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	mferrors "github.com/otherjamesbrown/minutes-cli/pkg/errors"
	"github.com/otherjamesbrown/minutes-cli/pkg/observability"
)

// MinTranscriptLength is the shortest transcript (in characters, after
// trimming) the server is asked to analyze.
const MinTranscriptLength = 50

// ValidateTranscript trims text and checks it locally. It returns the
// trimmed transcript.
func ValidateTranscript(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", mferrors.New(mferrors.KindTranscriptTooShort, "Please enter a transcript to analyze")
	}
	if utf8.RuneCountInString(trimmed) < MinTranscriptLength {
		return "", mferrors.New(mferrors.KindTranscriptTooShort,
			"Please provide a more detailed transcript (at least 50 characters)")
	}
	return trimmed, nil
}

// AnalyzeTranscript asks the server to analyze a pasted transcript. Short
// transcripts are rejected without a network call.
func (c *Client) AnalyzeTranscript(ctx context.Context, text string) (*TranscriptAnalysis, error) {
	trimmed, err := ValidateTranscript(text)
	if err != nil {
		return nil, err
	}

	ctx, span := c.tracer.StartAnalyzeSpan(ctx, utf8.RuneCountInString(trimmed))
	defer span.End()
	helper := observability.NewSpanHelper(span)

	body, err := json.Marshal(map[string]string{"transcript": trimmed})
	if err != nil {
		return nil, err
	}

	result, err := c.analyze(ctx, body)
	if err != nil {
		k, _ := mferrors.KindOf(err)
		helper.SetError(err, string(k), mferrors.IsRetryable(k))
		return nil, err
	}
	helper.SetSuccess()
	return result, nil
}

func (c *Client) analyze(ctx context.Context, body []byte) (*TranscriptAnalysis, error) {
	resp, err := c.sendJSON(ctx, EndpointAnalyze, body, true)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, statusError(mferrors.KindAnalysisFailed, resp, mferrors.Description(mferrors.KindAnalysisFailed))
	}
	return ParseTranscriptAnalysis(resp.body)
}
