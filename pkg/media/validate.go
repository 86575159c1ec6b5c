package media

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	mferrors "github.com/otherjamesbrown/minutes-cli/pkg/errors"
)

// MaxFileSize is the largest payload the backend accepts.
const MaxFileSize = 50 * 1024 * 1024

// Causes attached to InvalidFile errors from ValidateFile.
var (
	ErrFileTooLarge    = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
)

var allowedExtensions = map[Kind][]string{
	KindAudio: {"mp3", "wav", "m4a", "flac", "ogg", "aac", "webm"},
	KindVideo: {"mp4", "avi", "mov", "mkv", "wmv", "flv"},
}

// AllowedExtensions returns the accepted extensions for kind, without dots.
func AllowedExtensions(kind Kind) []string {
	exts := allowedExtensions[kind]
	out := make([]string, len(exts))
	copy(out, exts)
	return out
}

// ValidateFile checks a candidate file against the size limit and the
// allow-list for kind. It never touches the network.
func ValidateFile(name, mimeType string, size int64, kind Kind) error {
	exts, ok := allowedExtensions[kind]
	if !ok {
		return mferrors.Newf(mferrors.KindInvalidFile, "Unknown media kind %q.", kind)
	}
	if size > MaxFileSize {
		return mferrors.Wrap(mferrors.KindInvalidFile, "Please select a file smaller than 50MB.", ErrFileTooLarge)
	}
	if !matchesKind(name, mimeType, kind, exts) {
		return mferrors.Wrap(mferrors.KindInvalidFile, fmt.Sprintf("Please select a valid %s file.", kind), ErrUnsupportedType)
	}
	return nil
}

func matchesKind(name, mimeType string, kind Kind, exts []string) bool {
	lowerName := strings.ToLower(name)
	mimeType = strings.ToLower(mimeType)
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	for _, ext := range exts {
		if mimeType == string(kind)+"/"+ext {
			return true
		}
		if strings.HasSuffix(lowerName, "."+ext) {
			return true
		}
	}
	return false
}

// DetectMIME returns the MIME type registered for name's extension, if any.
func DetectMIME(name string) string {
	return mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
}

// LoadFile validates the file at path and reads it into a payload. The size
// check runs on the stat result so oversized files are never read.
func LoadFile(path string, kind Kind) (*Payload, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, mferrors.Wrap(mferrors.KindInvalidFile, fmt.Sprintf("Cannot read %s", path), err)
	}
	if info.IsDir() {
		return nil, mferrors.Newf(mferrors.KindInvalidFile, "%s is a directory.", path)
	}

	name := filepath.Base(path)
	mimeType := DetectMIME(name)
	if err := ValidateFile(name, mimeType, info.Size(), kind); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, mferrors.Wrap(mferrors.KindInvalidFile, fmt.Sprintf("Cannot read %s", path), err)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	p := &Payload{kind: kind, name: name, mime: mimeType, data: data}
	return p, nil
}
