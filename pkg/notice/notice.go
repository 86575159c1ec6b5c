// Package notice delivers short user-facing notifications (the terminal
// equivalent of toasts) from the session guard and the dashboard.
package notice

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Level is the severity of a notice.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	}
	return "info"
}

// Notice is one notification.
type Notice struct {
	Level   Level
	Title   string
	Message string
}

// String renders "Title: Message", or whichever half is set.
func (n Notice) String() string {
	switch {
	case n.Title == "":
		return n.Message
	case n.Message == "":
		return n.Title
	}
	return n.Title + ": " + n.Message
}

// Notifier receives notices.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// Discard drops every notice.
var Discard Notifier = NotifierFunc(func(Notice) {})

var (
	titleStyles = map[Level]lipgloss.Style{
		LevelInfo:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		LevelSuccess: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		LevelWarning: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
		LevelError:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
	}
	messageStyle = lipgloss.NewStyle().Faint(true)
)

// WriterNotifier prints notices, one per line. Styling is applied only when
// Styled is set (the writer is a terminal).
type WriterNotifier struct {
	mu     sync.Mutex
	w      io.Writer
	styled bool
}

// NewWriterNotifier returns a notifier printing to w.
func NewWriterNotifier(w io.Writer, styled bool) *WriterNotifier {
	return &WriterNotifier{w: w, styled: styled}
}

func (wn *WriterNotifier) Notify(n Notice) {
	wn.mu.Lock()
	defer wn.mu.Unlock()

	if !wn.styled {
		fmt.Fprintln(wn.w, n.String())
		return
	}
	line := titleStyles[n.Level].Render(n.Title)
	if n.Message != "" {
		if n.Title != "" {
			line += " "
		}
		line += messageStyle.Render(n.Message)
	}
	fmt.Fprintln(wn.w, line)
}

// Recorder keeps every notice it receives, in order.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

// Notices returns a copy of the received notices.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

// Last returns the most recent notice.
func (r *Recorder) Last() (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return Notice{}, false
	}
	return r.notices[len(r.notices)-1], true
}
