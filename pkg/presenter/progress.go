package presenter

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/otherjamesbrown/minutes-cli/client"
)

// Progress receives upload percentages in order. Finish is called once, after
// the last update.
type Progress interface {
	Update(percent int)
	Finish(ok bool)
}

type progressMsg int

type finishMsg struct{ ok bool }

// uploadProgressModel draws a progress bar fed by progressMsg and finishMsg.
type uploadProgressModel struct {
	bar     progress.Model
	label   string
	percent int
	done    bool
	failed  bool
}

func newUploadProgressModel(label string) uploadProgressModel {
	return uploadProgressModel{
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		label: label,
	}
}

func (m uploadProgressModel) Init() tea.Cmd {
	return nil
}

func (m uploadProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressMsg:
		if int(msg) > m.percent {
			m.percent = int(msg)
		}
		return m, nil
	case finishMsg:
		m.done = true
		m.failed = !msg.ok
		return m, tea.Quit
	}
	return m, nil
}

func (m uploadProgressModel) View() string {
	if m.done {
		if m.failed {
			return ""
		}
		return fmt.Sprintf("%s %s\n", m.label, m.bar.ViewAs(1))
	}
	return fmt.Sprintf("%s %s", m.label, m.bar.ViewAs(float64(m.percent)/100))
}

// ProgressBar is a terminal progress bar. Updates are delivered to the
// bubbletea program, which redraws on its own goroutine.
type ProgressBar struct {
	program *tea.Program
	done    chan struct{}
	once    sync.Once
}

// StartProgressBar starts drawing on out. Canceling ctx removes the bar.
func StartProgressBar(ctx context.Context, out io.Writer, label string) *ProgressBar {
	b := &ProgressBar{
		program: tea.NewProgram(
			newUploadProgressModel(label),
			tea.WithInput(nil),
			tea.WithOutput(out),
			tea.WithContext(ctx),
		),
		done: make(chan struct{}),
	}
	go func() {
		defer close(b.done)
		_, _ = b.program.Run()
	}()
	return b
}

func (b *ProgressBar) Update(percent int) {
	b.program.Send(progressMsg(percent))
}

// Finish stops the bar and waits for the final frame. A failed upload
// leaves no bar behind.
func (b *ProgressBar) Finish(ok bool) {
	b.once.Do(func() {
		b.program.Send(finishMsg{ok: ok})
		<-b.done
	})
}

// LineProgress writes one line per progress step of at least Step percent,
// for output that is not a terminal.
type LineProgress struct {
	out   io.Writer
	label string
	step  int
	last  int
}

// NewLineProgress returns a LineProgress printing to out.
func NewLineProgress(out io.Writer, label string, step int) *LineProgress {
	if step <= 0 {
		step = 1
	}
	return &LineProgress{out: out, label: label, step: step, last: -step}
}

func (p *LineProgress) Update(percent int) {
	if percent-p.last >= p.step || (percent == client.CompletePercent && p.last != percent) {
		fmt.Fprintf(p.out, "%s %d%%\n", p.label, percent)
		p.last = percent
	}
}

func (p *LineProgress) Finish(bool) {}
