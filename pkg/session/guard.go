package session

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/otherjamesbrown/minutes-cli/pkg/logging"
	"github.com/otherjamesbrown/minutes-cli/pkg/notice"
)

// Routes the guard can send the user to.
const (
	RouteLogin     = "/login"
	RouteDashboard = "/dashboard"
)

// AuthRequiredNotice is shown whenever the server rejects the session.
var AuthRequiredNotice = notice.Notice{
	Level:   notice.LevelError,
	Title:   "Authentication Required",
	Message: "Please log in to continue",
}

// Navigator moves the user to another part of the application.
type Navigator interface {
	Navigate(ctx context.Context, route string) error
}

// Guard handles rejected sessions.
type Guard struct {
	session   *Manager
	notifier  notice.Notifier
	navigator Navigator
	logger    logging.Logger
}

// NewGuard returns a guard for m.
func NewGuard(m *Manager, notifier notice.Notifier, navigator Navigator, logger logging.Logger) *Guard {
	if notifier == nil {
		notifier = notice.Discard
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Guard{session: m, notifier: notifier, navigator: navigator, logger: logger}
}

// AuthRequired destroys the session, tells the user, and navigates to the
// login route. It has the signature of client.UnauthorizedFunc.
func (g *Guard) AuthRequired(ctx context.Context) {
	g.logger.WithContext(ctx).Info("Session rejected by server")
	g.session.Destroy()
	g.notifier.Notify(AuthRequiredNotice)
	if g.navigator == nil {
		return
	}
	if err := g.navigator.Navigate(ctx, RouteLogin); err != nil {
		g.logger.WithContext(ctx).Warn("Navigation failed", logging.F("route", RouteLogin), logging.Err(err))
	}
}

// CLINavigator maps routes onto terminal actions. The login route prints the
// login command and, when Interactive is set, runs Login in place. It is safe
// for concurrent use; concurrent logins are not serialized.
type CLINavigator struct {
	Out         io.Writer
	Interactive bool
	Login       func(ctx context.Context) error

	mu      sync.Mutex
	visited []string
}

// Visited returns every route navigated to, in order.
func (n *CLINavigator) Visited() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.visited...)
}

func (n *CLINavigator) Navigate(ctx context.Context, route string) error {
	n.mu.Lock()
	n.visited = append(n.visited, route)
	n.mu.Unlock()
	switch route {
	case RouteLogin:
		if n.Interactive && n.Login != nil {
			return n.Login(ctx)
		}
		if n.Out != nil {
			fmt.Fprintln(n.Out, "Run 'minutes auth login' to sign in, then try again.")
		}
		return nil
	case RouteDashboard:
		return nil
	}
	return fmt.Errorf("unknown route %q", route)
}
