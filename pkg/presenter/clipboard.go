package presenter

import (
	"fmt"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/otherjamesbrown/minutes-cli/client"
)

// clipboardWrite is replaced in tests.
var clipboardWrite = clipboard.WriteAll

// PlainText renders the analysis without styling, for the clipboard.
func PlainText(result *client.AnalysisResult) string {
	return strings.TrimSpace(RenderString(result, RenderOptions{})) + "\n"
}

// CopyToClipboard places the plain-text analysis on the system clipboard.
func CopyToClipboard(result *client.AnalysisResult) error {
	if result == nil {
		return fmt.Errorf("no analysis to copy")
	}
	if clipboard.Unsupported {
		return fmt.Errorf("clipboard is not available on this system")
	}
	if err := clipboardWrite(PlainText(result)); err != nil {
		return fmt.Errorf("copying to clipboard: %w", err)
	}
	return nil
}
