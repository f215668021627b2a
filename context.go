package sessionx

import "context"

type (
	sessionKey struct{}
	silentKey  struct{}
)

// BindSession stores the session snapshot a navigation was allowed with, for
// the view that renders after it.
func BindSession(ctx context.Context, snap Snapshot) context.Context {
	return context.WithValue(ctx, sessionKey{}, snap)
}

// SessionFromContext retrieves a snapshot previously stored with BindSession.
func SessionFromContext(ctx context.Context) (Snapshot, bool) {
	if ctx == nil {
		return Snapshot{}, false
	}
	snap, ok := ctx.Value(sessionKey{}).(Snapshot)
	return snap, ok
}

// Silent marks calls made with ctx as internal: their failures are returned
// to the caller but not routed to the client's FailureHandler.
func Silent(ctx context.Context) context.Context {
	return context.WithValue(ctx, silentKey{}, true)
}

// IsSilent reports whether ctx was marked with Silent.
func IsSilent(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(silentKey{}).(bool)
	return v
}
