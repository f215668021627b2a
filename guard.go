package sessionx

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultAppTitle is the platform name appended to every page title.
const DefaultAppTitle = "AI Code Review Platform"

// Action is the outcome of a guard check.
type Action int

const (
	// Proceed lets the target view render.
	Proceed Action = iota
	// Redirect sends navigation to Decision.Target instead.
	Redirect
)

// String implements fmt.Stringer.
func (a Action) String() string {
	if a == Redirect {
		return "redirect"
	}
	return "proceed"
}

// Decision is the guard's verdict for one navigation intent.
type Decision struct {
	Action Action
	Target string
	Title  string
	// Reason is set on redirects caused by a missing or stale session.
	Reason ErrorCode
}

// TitleSink receives the page title computed on every navigation.
type TitleSink interface {
	SetTitle(title string)
}

// TitleFunc adapts a function to TitleSink.
type TitleFunc func(title string)

// SetTitle implements TitleSink.
func (f TitleFunc) SetTitle(title string) { f(title) }

// TitleRecorder keeps the most recent title.
type TitleRecorder struct {
	mu    sync.Mutex
	title string
}

// SetTitle implements TitleSink.
func (r *TitleRecorder) SetTitle(title string) {
	r.mu.Lock()
	r.title = title
	r.mu.Unlock()
}

// Title returns the last title set.
func (r *TitleRecorder) Title() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.title
}

// Guard decides, before a view renders, whether navigation may proceed.
type Guard struct {
	manager   *Manager
	notifier  Notifier
	titles    TitleSink
	logger    *slog.Logger
	appTitle  string
	loginPath string
	homePath  string
}

// GuardOption customises a Guard.
type GuardOption func(*Guard)

// WithGuardNotifier sets the sink for "please log in" warnings.
func WithGuardNotifier(n Notifier) GuardOption {
	return func(g *Guard) {
		if n != nil {
			g.notifier = n
		}
	}
}

// WithTitleSink sets where page titles are delivered.
func WithTitleSink(t TitleSink) GuardOption {
	return func(g *Guard) {
		if t != nil {
			g.titles = t
		}
	}
}

// WithAppTitle overrides DefaultAppTitle.
func WithAppTitle(title string) GuardOption {
	return func(g *Guard) {
		if title != "" {
			g.appTitle = title
		}
	}
}

// WithGuardPaths overrides the login page and the landing page used for
// already authenticated users.
func WithGuardPaths(login, home string) GuardOption {
	return func(g *Guard) {
		if login != "" {
			g.loginPath = normalizePath(login)
		}
		if home != "" {
			g.homePath = normalizePath(home)
		}
	}
}

// WithGuardLogger sets the structured logger.
func WithGuardLogger(l *slog.Logger) GuardOption {
	return func(g *Guard) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGuard returns a guard consulting manager.
func NewGuard(manager *Manager, opts ...GuardOption) *Guard {
	g := &Guard{
		manager:   manager,
		notifier:  nopNotifier{},
		titles:    TitleFunc(func(string) {}),
		logger:    slog.Default(),
		appTitle:  DefaultAppTitle,
		loginPath: LoginPath,
		homePath:  DashboardPath,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// LoginPath returns the path unauthenticated navigation is sent to.
func (g *Guard) LoginPath() string {
	return g.loginPath
}

// PageTitle composes the displayed title for a route title.
func (g *Guard) PageTitle(routeTitle string) string {
	if routeTitle == "" {
		return g.appTitle
	}
	return routeTitle + " - " + g.appTitle
}

// Check evaluates one navigation from -> to. The page title is set whatever
// the outcome.
func (g *Guard) Check(ctx context.Context, to, from Location) Decision {
	d := Decision{Action: Proceed, Title: g.PageTitle(to.Route.Title)}
	g.titles.SetTitle(d.Title)

	snap := g.manager.Peek()
	hasToken := snap.Token != ""
	expired := hasToken && g.manager.Validator().IsExpired(snap.Token)

	switch {
	case to.Route.RequiresAuth && !hasToken:
		d.Action, d.Target, d.Reason = Redirect, g.loginPath, ErrCodeUnauthenticated
		g.notifier.Notify(ctx, SeverityWarning, DefaultMessage(ErrCodeUnauthenticated))

	case to.Route.RequiresAuth && expired:
		if err := g.manager.Invalidate(ctx, "expired token on guarded navigation"); err != nil {
			g.logger.WarnContext(ctx, "clear expired credential", "error", err)
		}
		d.Action, d.Target, d.Reason = Redirect, g.loginPath, ErrCodeExpired
		g.notifier.Notify(ctx, SeverityWarning, DefaultMessage(ErrCodeExpired))

	case !to.Route.RequiresAuth && to.Path == g.loginPath && hasToken && !expired:
		d.Action, d.Target = Redirect, g.homePath
	}

	g.logger.DebugContext(ctx, "navigation guard",
		"from", from.Path,
		"to", to.Path,
		"action", d.Action.String(),
		"target", d.Target,
	)
	return d
}
