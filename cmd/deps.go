// Package cmd provides CLI commands for the minutes tool.
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/otherjamesbrown/minutes-cli/client"
	"github.com/otherjamesbrown/minutes-cli/config"
	"github.com/otherjamesbrown/minutes-cli/credentials"
	"github.com/otherjamesbrown/minutes-cli/pkg/logging"
	"github.com/otherjamesbrown/minutes-cli/pkg/media"
	"github.com/otherjamesbrown/minutes-cli/pkg/notice"
	"github.com/otherjamesbrown/minutes-cli/pkg/observability"
	"github.com/otherjamesbrown/minutes-cli/pkg/session"
)

// Deps holds the dependencies shared by all commands.
type Deps struct {
	Config     *config.CLIConfig
	LoadConfig func() (*config.CLIConfig, error)

	Logger  logging.Logger
	Metrics *observability.ClientMetrics
	Tracer  *observability.Tracer

	In     io.Reader
	Out    io.Writer
	ErrOut io.Writer

	// Interactive is set when stdin is a terminal.
	Interactive bool
	// Styled is set when stdout is a terminal.
	Styled bool

	NewCredentialStore func() (*credentials.Store, error)
	NewAudioContext    func() (media.AudioContext, error)
	ReadPassword       func(prompt string) (string, error)
	Now                func() time.Time

	// ClientOptions, when set, is the starting point for the HTTP client
	// options (tests use it to shorten retries).
	ClientOptions func() *client.ClientOptions

	inputOnce sync.Once
	input     *lineReader
}

func (d *Deps) config() (*config.CLIConfig, error) {
	if d.Config != nil {
		return d.Config, nil
	}
	if d.LoadConfig == nil {
		d.Config = config.DefaultConfig()
		return d.Config, nil
	}
	cfg, err := d.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	d.Config = cfg
	return cfg, nil
}

func (d *Deps) logger() logging.Logger {
	if d.Logger == nil {
		return logging.NewNopLogger()
	}
	return d.Logger
}

func (d *Deps) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

func (d *Deps) notifier() notice.Notifier {
	return notice.NewWriterNotifier(d.ErrOut, d.Styled)
}

// lineReader reads lines from the command input on demand. At most one read
// is outstanding; a line read for a consumer that stopped waiting (the Enter
// wait of `record` after its time limit) goes to the next consumer, so the
// input is never read by two goroutines at once.
type lineReader struct {
	r *bufio.Reader

	mu      sync.Mutex
	pending chan inputLine
}

type inputLine struct {
	text string
	err  error
}

// next returns the channel the next line will arrive on, starting a read if
// none is outstanding.
func (l *lineReader) next() <-chan inputLine {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending == nil {
		ch := make(chan inputLine, 1)
		l.pending = ch
		go func() {
			text, err := l.r.ReadString('\n')
			ch <- inputLine{text: text, err: err}
		}()
	}
	return l.pending
}

// take waits for the next line and marks it consumed.
func (l *lineReader) take() inputLine {
	ch := l.next()
	line := <-ch
	l.consumed(ch)
	return line
}

func (l *lineReader) consumed(ch <-chan inputLine) {
	l.mu.Lock()
	if l.pending == ch {
		l.pending = nil
	}
	l.mu.Unlock()
}

func (d *Deps) lines() *lineReader {
	d.inputOnce.Do(func() {
		d.input = &lineReader{r: bufio.NewReader(d.In)}
	})
	return d.input
}

// readLine reads one line from the command input, without the newline.
func (d *Deps) readLine(prompt string) (string, error) {
	fmt.Fprint(d.ErrOut, prompt)
	line := d.lines().take()
	if line.err != nil && (!errors.Is(line.err, io.EOF) || line.text == "") {
		return "", fmt.Errorf("reading input: %w", line.err)
	}
	return strings.TrimSpace(line.text), nil
}

func (d *Deps) readPassword(prompt string) (string, error) {
	if d.ReadPassword != nil && d.Interactive {
		return d.ReadPassword(prompt)
	}
	return d.readLine(prompt)
}

func readTerminalPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}

// App is a connected client with its session and guard.
type App struct {
	Config   *config.CLIConfig
	Client   *client.Client
	Session  *session.Manager
	Notifier notice.Notifier
	Logger   logging.Logger
	Metrics  *observability.ClientMetrics

	deps *Deps
	nav  *pendingNavigator
}

// Connect builds the API client, restores the stored session and installs the
// session guard.
func (d *Deps) Connect(ctx context.Context) (*App, error) {
	cfg, err := d.config()
	if err != nil {
		return nil, err
	}
	logger := d.logger()

	opts := client.DefaultOptions()
	if d.ClientOptions != nil {
		opts = d.ClientOptions()
	}
	opts.Logger = logger
	opts.Metrics = d.Metrics
	opts.Tracer = d.Tracer
	c, err := client.ConnectFromConfig(cfg, opts)
	if err != nil {
		return nil, err
	}

	sessionOpts := []session.Option{session.WithLogger(logger)}
	if d.NewCredentialStore != nil {
		store, err := d.NewCredentialStore()
		if err != nil {
			logger.Warn("Credential store unavailable; the session will not be remembered", logging.Err(err))
		} else {
			sessionOpts = append(sessionOpts, session.WithStore(store))
		}
	}

	app := &App{
		Config:   cfg,
		Client:   c,
		Session:  session.NewManager(c, sessionOpts...),
		Notifier: d.notifier(),
		Logger:   logger,
		Metrics:  d.Metrics,
		deps:     d,
	}
	app.nav = &pendingNavigator{next: &session.CLINavigator{
		Out:         d.ErrOut,
		Interactive: d.Interactive,
		Login:       func(ctx context.Context) error { return app.loginPrompt(ctx, "") },
	}}
	guard := session.NewGuard(app.Session, app.Notifier, app.nav, logger)
	c.SetUnauthorizedHandler(guard.AuthRequired)
	app.Session.Restore()
	return app, nil
}

// finish runs any navigation the guard requested during the command and
// returns err marked as reported when a notice already described it.
func (a *App) finish(ctx context.Context, err error) error {
	if navErr := a.nav.Flush(ctx); navErr != nil {
		a.Logger.Warn("Login after rejected session failed", logging.Err(navErr))
	}
	if err == nil {
		return nil
	}
	return reported(err)
}

// loginPrompt asks for the password (and username when empty), logs in and
// reports the outcome as a notice.
func (a *App) loginPrompt(ctx context.Context, username string) error {
	var err error
	if username == "" {
		if username, err = a.deps.readLine("Username: "); err != nil {
			return err
		}
	}
	password, err := a.deps.readPassword("Password: ")
	if err != nil {
		return err
	}
	return a.login(ctx, username, password)
}

func (a *App) login(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return errors.New("username and password are required")
	}
	user, err := a.Session.Login(ctx, username, password)
	if err != nil {
		title := "Login Failed"
		if isNetworkError(err) {
			title = "Connection Error"
		}
		a.Notifier.Notify(notice.Notice{Level: notice.LevelError, Title: title, Message: errorMessage(err)})
		if user == nil {
			return reported(err)
		}
		// Logged in, but the session could not be saved.
		a.Logger.Warn("Session not persisted", logging.Err(err))
		return nil
	}
	a.Notifier.Notify(notice.Notice{
		Level:   notice.LevelSuccess,
		Title:   "Welcome back!",
		Message: "Successfully logged in as " + user.Username,
	})
	return nil
}

// pendingNavigator holds the route the guard asked for until the running
// command has stopped drawing, then hands it to the terminal navigator.
type pendingNavigator struct {
	mu    sync.Mutex
	route string
	next  session.Navigator
}

func (p *pendingNavigator) Navigate(_ context.Context, route string) error {
	p.mu.Lock()
	p.route = route
	p.mu.Unlock()
	return nil
}

// Flush navigates to the pending route, if any.
func (p *pendingNavigator) Flush(ctx context.Context) error {
	p.mu.Lock()
	route := p.route
	p.route = ""
	p.mu.Unlock()
	if route == "" {
		return nil
	}
	return p.next.Navigate(ctx, route)
}

func (d *Deps) credentialStore() (*credentials.Store, error) {
	if d.NewCredentialStore == nil {
		return nil, credentials.ErrNoCredentials
	}
	return d.NewCredentialStore()
}
