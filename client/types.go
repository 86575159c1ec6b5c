package client

import (
	"encoding/json"
	"fmt"

	mferrors "github.com/otherjamesbrown/minutes-cli/pkg/errors"
)

// AnalysisResult is the structured summary of one meeting.
type AnalysisResult struct {
	Summary     string   `json:"summary" yaml:"summary"`
	ActionItems []string `json:"action_items" yaml:"action_items"`
	Decisions   []string `json:"decisions" yaml:"decisions"`
	NextSteps   []string `json:"next_steps" yaml:"next_steps"`
}

// AnalysisBundle is the response to a media upload.
type AnalysisBundle struct {
	Transcript string          `json:"transcript" yaml:"transcript"`
	Analysis   *AnalysisResult `json:"analysis" yaml:"analysis"`
	Filename   string          `json:"filename,omitempty" yaml:"filename,omitempty"`
	FileType   string          `json:"file_type,omitempty" yaml:"file_type,omitempty"`
}

// TranscriptAnalysis is the response to a transcript analysis.
type TranscriptAnalysis struct {
	Analysis *AnalysisResult `json:"analysis" yaml:"analysis"`
	// Note is set when the server fell back to a basic analysis.
	Note string `json:"note,omitempty" yaml:"note,omitempty"`
}

// User is the authenticated account.
type User struct {
	Username string `json:"username" yaml:"username"`
	Email    string `json:"email" yaml:"email"`
	Avatar   string `json:"avatar,omitempty" yaml:"avatar,omitempty"`
}

// HealthStatus is the response of the health endpoint.
type HealthStatus struct {
	API       string `json:"api" yaml:"api"`
	AIService string `json:"ai_service" yaml:"ai_service"`
}

// Healthy reports whether the API answered healthy.
func (h *HealthStatus) Healthy() bool {
	return h != nil && h.API == "healthy"
}

// fields is a decoded JSON object whose members are checked one at a time.
type fields map[string]json.RawMessage

func malformed(format string, args ...any) error {
	return &mferrors.Error{
		Kind: mferrors.KindMalformedResponse,
		Err:  fmt.Errorf(format, args...),
	}
}

func decodeObject(data []byte) (fields, error) {
	var obj fields
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, malformed("response is not a JSON object: %v", err)
	}
	if obj == nil {
		return nil, malformed("response is null")
	}
	return obj, nil
}

func (f fields) has(name string) bool {
	raw, ok := f[name]
	return ok && string(raw) != "null"
}

func (f fields) requiredString(name string) (string, error) {
	if !f.has(name) {
		return "", malformed("missing %q", name)
	}
	return f.optionalString(name)
}

func (f fields) optionalString(name string) (string, error) {
	if !f.has(name) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(f[name], &s); err != nil {
		return "", malformed("%q is not a string", name)
	}
	return s, nil
}

func (f fields) optionalStrings(name string) ([]string, error) {
	if !f.has(name) {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal(f[name], &out); err != nil {
		return nil, malformed("%q is not a list of strings", name)
	}
	return out, nil
}

func (f fields) object(name string) (fields, error) {
	if !f.has(name) {
		return nil, malformed("missing %q", name)
	}
	var obj fields
	if err := json.Unmarshal(f[name], &obj); err != nil {
		return nil, malformed("%q is not an object", name)
	}
	return obj, nil
}

func parseAnalysis(obj fields) (*AnalysisResult, error) {
	var (
		result AnalysisResult
		err    error
	)
	if result.Summary, err = obj.optionalString("summary"); err != nil {
		return nil, err
	}
	if result.ActionItems, err = obj.optionalStrings("action_items"); err != nil {
		return nil, err
	}
	if result.Decisions, err = obj.optionalStrings("decisions"); err != nil {
		return nil, err
	}
	if result.NextSteps, err = obj.optionalStrings("next_steps"); err != nil {
		return nil, err
	}
	return &result, nil
}

// ParseAnalysisBundle parses an upload response. The transcript must be a
// string and the analysis an object; anything else is MalformedResponse.
func ParseAnalysisBundle(data []byte) (*AnalysisBundle, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return nil, err
	}

	bundle := &AnalysisBundle{}
	if bundle.Transcript, err = obj.requiredString("transcript"); err != nil {
		return nil, err
	}
	analysis, err := obj.object("analysis")
	if err != nil {
		return nil, err
	}
	if bundle.Analysis, err = parseAnalysis(analysis); err != nil {
		return nil, err
	}
	if bundle.Filename, err = obj.optionalString("filename"); err != nil {
		return nil, err
	}
	if bundle.FileType, err = obj.optionalString("file_type"); err != nil {
		return nil, err
	}
	return bundle, nil
}

// ParseTranscriptAnalysis parses an analyze-transcript response.
func ParseTranscriptAnalysis(data []byte) (*TranscriptAnalysis, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return nil, err
	}
	analysis, err := obj.object("analysis")
	if err != nil {
		return nil, err
	}
	out := &TranscriptAnalysis{}
	if out.Analysis, err = parseAnalysis(analysis); err != nil {
		return nil, err
	}
	if out.Note, err = obj.optionalString("note"); err != nil {
		return nil, err
	}
	return out, nil
}

func parseUser(data []byte) (*User, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return nil, err
	}
	u, err := obj.object("user")
	if err != nil {
		return nil, err
	}
	user := &User{}
	if user.Username, err = u.requiredString("username"); err != nil {
		return nil, err
	}
	if user.Email, err = u.optionalString("email"); err != nil {
		return nil, err
	}
	if user.Avatar, err = u.optionalString("avatar"); err != nil {
		return nil, err
	}
	return user, nil
}

func parseHealth(data []byte) (*HealthStatus, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return nil, err
	}
	h := &HealthStatus{}
	if h.API, err = obj.requiredString("api"); err != nil {
		return nil, err
	}
	if h.AIService, err = obj.optionalString("ai_service"); err != nil {
		return nil, err
	}
	return h, nil
}

// errorDetail extracts a FastAPI-style {"detail": "..."} message. Validation
// errors carry a list of {msg} objects; the first msg is used.
func errorDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(body, &payload) != nil || len(payload.Detail) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(payload.Detail, &s) == nil {
		return s
	}
	var list []struct {
		Msg string `json:"msg"`
	}
	if json.Unmarshal(payload.Detail, &list) == nil && len(list) > 0 {
		return list[0].Msg
	}
	return ""
}
