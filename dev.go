package sessionx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const (
	defaultDevIssuer = "crctl.dev"
	defaultDevTTL    = 24 * time.Hour
)

// DevAuthenticator signs sessions locally so the client can be driven
// without a backend. Any non-empty username is accepted; the password is
// ignored.
type DevAuthenticator struct {
	Issuer string
	Key    []byte
	TTL    time.Duration
	// Now returns the current instant. Nil means time.Now.
	Now func() time.Time
	// Store, when set, lets WhoAmI answer for a session minted by an
	// earlier process.
	Store *CredentialStore

	mu      sync.Mutex
	current Profile
}

// DefaultDevAuthenticator returns a dev authenticator with a random signing
// key and a 24h session lifetime.
func DefaultDevAuthenticator() *DevAuthenticator {
	return &DevAuthenticator{
		Issuer: defaultDevIssuer,
		Key:    []byte(uuid.NewString()),
		TTL:    defaultDevTTL,
	}
}

// Login implements Authenticator.
func (d *DevAuthenticator) Login(_ context.Context, creds Credentials) (*LoginResult, error) {
	if creds.Username == "" {
		return nil, withMessage(ErrCodeDomain, "Username and password are required", nil)
	}
	now := d.now()
	ttl := d.TTL
	if ttl <= 0 {
		ttl = defaultDevTTL
	}
	issuer := d.Issuer
	if issuer == "" {
		issuer = defaultDevIssuer
	}

	tok, err := jwt.NewBuilder().
		Subject(creds.Username).
		Issuer(issuer).
		IssuedAt(now).
		Expiration(now.Add(ttl)).
		Claim("username", creds.Username).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build dev token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, d.Key))
	if err != nil {
		return nil, fmt.Errorf("sign dev token: %w", err)
	}

	profile := Profile{
		"userId":   creds.Username,
		"username": creds.Username,
		"nickname": creds.Username,
		"role":     "dev",
	}
	d.mu.Lock()
	d.current = profile.Clone()
	d.mu.Unlock()
	return &LoginResult{Token: string(signed), Profile: profile, Message: "dev session"}, nil
}

// WhoAmI implements Authenticator.
func (d *DevAuthenticator) WhoAmI(ctx context.Context) (Profile, error) {
	d.mu.Lock()
	current := d.current.Clone()
	d.mu.Unlock()
	if current != nil {
		return current, nil
	}
	if d.Store == nil {
		return nil, newError(ErrCodeUnauthorized, nil)
	}
	claims, err := InspectToken(d.Store.Token(ctx))
	if err != nil || claims.Username == "" {
		return nil, newError(ErrCodeUnauthorized, err)
	}
	return Profile{
		"userId":   claims.Subject,
		"username": claims.Username,
		"nickname": claims.Username,
		"role":     "dev",
	}, nil
}

// Revoke implements Revoker.
func (d *DevAuthenticator) Revoke(context.Context) error {
	d.mu.Lock()
	d.current = nil
	d.mu.Unlock()
	return nil
}

func (d *DevAuthenticator) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
