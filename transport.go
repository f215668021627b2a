package sessionx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// RequestIDHeader carries a per-call identifier for server-side correlation.
const RequestIDHeader = "X-Request-Id"

// bearerTransport attaches the stored credential to every outbound request.
// A missing credential, or one that cannot be read, sends the request
// unauthenticated instead of failing it.
type bearerTransport struct {
	base   http.RoundTripper
	source func(ctx context.Context) oauth2.TokenSource
	logger *slog.Logger
}

func newBearerTransport(base http.RoundTripper, store *CredentialStore, logger *slog.Logger) *bearerTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &bearerTransport{
		base: base,
		source: func(ctx context.Context) oauth2.TokenSource {
			return StoreTokenSource(ctx, store)
		},
		logger: logger,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	out := req.Clone(ctx)
	if out.Header.Get(RequestIDHeader) == "" {
		out.Header.Set(RequestIDHeader, uuid.NewString())
	}

	tok, err := t.source(ctx).Token()
	switch {
	case err == nil && tok.AccessToken != "":
		tok.SetAuthHeader(out)
	case err != nil && !IsUnauthorized(err):
		t.logger.WarnContext(ctx, "credential unavailable, sending unauthenticated", "error", err)
	}
	return t.base.RoundTrip(out)
}
