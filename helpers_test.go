package sessionx

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret-key-for-hs256-signing")

// mintToken signs an HS256 token the way the user service does.
func mintToken(t *testing.T, username string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":      "42",
		"username": username,
		"iat":      time.Now().Unix(),
	}
	if !exp.IsZero() {
		claims["exp"] = exp.Unix()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// payloadToken builds a three-segment token around a raw JSON payload.
func payloadToken(payload string) string {
	return "a." + base64.RawURLEncoding.EncodeToString([]byte(payload)) + ".s"
}

func fixedClock(unix int64) func() time.Time {
	return func() time.Time { return time.Unix(unix, 0) }
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type notification struct {
	Severity Severity
	Message  string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (r *recordingNotifier) Notify(_ context.Context, severity Severity, message string) {
	r.mu.Lock()
	r.sent = append(r.sent, notification{Severity: severity, Message: message})
	r.mu.Unlock()
}

func (r *recordingNotifier) all() []notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notification(nil), r.sent...)
}

type fakeAuth struct {
	mu        sync.Mutex
	result    *LoginResult
	loginErr  error
	profile   Profile
	whoErr    error
	whoCalls  int
	revokeErr error
	revoked   int
	block     chan struct{}
}

func (f *fakeAuth) Login(context.Context, Credentials) (*LoginResult, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.result, nil
}

func (f *fakeAuth) WhoAmI(context.Context) (Profile, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.whoCalls++
	if f.whoErr != nil {
		return nil, f.whoErr
	}
	return f.profile.Clone(), nil
}

func (f *fakeAuth) Revoke(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked++
	return f.revokeErr
}

// unreadableMedium fails every read.
type unreadableMedium struct {
	*MemoryMedium
	err error
}

func (m *unreadableMedium) Get(context.Context, string) (string, bool, error) {
	return "", false, m.err
}

// failingMedium fails every write after the first allowedWrites.
type failingMedium struct {
	*MemoryMedium
	mu            sync.Mutex
	allowedWrites int
	err           error
}

func (m *failingMedium) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	if m.allowedWrites <= 0 {
		m.mu.Unlock()
		return m.err
	}
	m.allowedWrites--
	m.mu.Unlock()
	return m.MemoryMedium.Set(ctx, key, value)
}
