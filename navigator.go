package sessionx

import (
	"context"
	"fmt"
	"sync"
)

const defaultMaxRedirects = 10

// Navigation is the result of one navigation intent.
type Navigation struct {
	Requested string
	Location  Location
	// Redirects lists every path that was left for another, in order.
	Redirects []string
	Session   Snapshot
	// Reason is set when the guard turned the navigation away because the
	// session was missing or stale.
	Reason ErrorCode
}

// Redirected reports whether the view that rendered is not the one asked for.
func (n Navigation) Redirected() bool {
	return len(n.Redirects) > 0
}

// Context binds the session the navigation was allowed with into ctx.
func (n Navigation) Context(ctx context.Context) context.Context {
	return BindSession(ctx, n.Session)
}

// Navigator resolves navigation intents one at a time: route redirects
// first, then the guard on the final route, then any guard redirect.
type Navigator struct {
	mu      sync.Mutex
	router  *Router
	guard   *Guard
	manager *Manager
	current Location
	maxHops int
}

// NewNavigator returns a navigator over router and guard.
func NewNavigator(router *Router, guard *Guard) *Navigator {
	return &Navigator{
		router:  router,
		guard:   guard,
		manager: guard.manager,
		maxHops: defaultMaxRedirects,
	}
}

// Current returns the location of the last completed navigation.
func (n *Navigator) Current() Location {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// Push navigates to path. The guard decision is complete before Push
// returns, so the caller renders only the final location.
func (n *Navigator) Push(ctx context.Context, path string) (Navigation, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	nav := Navigation{Requested: path}
	target := path
	for hop := 0; ; hop++ {
		if hop > n.maxHops {
			return nav, fmt.Errorf("%w: %v", ErrRedirectLoop, nav.Redirects)
		}
		loc, err := n.router.Match(target)
		if err != nil {
			return nav, err
		}
		if loc.Route.Redirect != "" {
			nav.Redirects = append(nav.Redirects, loc.Path)
			target = loc.Route.Redirect
			continue
		}

		d := n.guard.Check(ctx, loc, n.current)
		if d.Reason != "" {
			nav.Reason = d.Reason
		}
		if d.Action == Redirect {
			nav.Redirects = append(nav.Redirects, loc.Path)
			target = d.Target
			continue
		}

		n.current = loc
		nav.Location = loc
		nav.Session = n.manager.Peek()
		return nav, nil
	}
}
