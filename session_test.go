package sessionx

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestManager(t *testing.T, medium Medium, auth Authenticator, now int64) (*Manager, *CredentialStore, *recordingNotifier) {
	t.Helper()
	store := NewCredentialStore(medium, discardLogger())
	notes := &recordingNotifier{}
	m := NewManager(context.Background(), store, auth,
		WithValidator(TokenValidator{Now: fixedClock(now)}),
		WithNotifier(notes),
		WithLogger(discardLogger()),
	)
	return m, store, notes
}

func TestManager_LoginPersistsCredential(t *testing.T) {
	ctx := context.Background()
	token := payloadToken(`{"exp":1900000000}`)
	auth := &fakeAuth{result: &LoginResult{Token: token, Profile: Profile{"username": "alice"}}}
	m, store, notes := newTestManager(t, NewMemoryMedium(), auth, 1800000000)

	res, err := m.Login(ctx, Credentials{Username: "alice", Password: "secret"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Token != token {
		t.Fatalf("unexpected result token %q", res.Token)
	}

	cred, ok := store.Get(ctx)
	if !ok || cred.Token != token || cred.Profile["username"] != "alice" {
		t.Fatalf("store after login: %+v ok=%v", cred, ok)
	}
	snap := m.Snapshot(ctx)
	if !snap.Authenticated || snap.Token != token || snap.Profile.String() != "alice" {
		t.Fatalf("snapshot after login: %+v", snap)
	}
	sent := notes.all()
	if len(sent) != 1 || sent[0].Severity != SeveritySuccess {
		t.Fatalf("expected one success notification, got %+v", sent)
	}
}

func TestManager_LoginFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	wantErr := withMessage(ErrCodeDomain, "bad password", nil)
	m, store, notes := newTestManager(t, NewMemoryMedium(), &fakeAuth{loginErr: wantErr}, 1800000000)

	_, err := m.Login(ctx, Credentials{Username: "alice", Password: "nope"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected collaborator error, got %v", err)
	}
	if m.Authenticated(ctx) {
		t.Fatal("failed login authenticated the session")
	}
	if _, ok := store.Get(ctx); ok {
		t.Fatal("failed login wrote the store")
	}
	if len(notes.all()) != 0 {
		t.Fatal("manager must not notify on collaborator failure")
	}
}

func TestManager_LoginWithoutTokenIsDomainError(t *testing.T) {
	m, _, _ := newTestManager(t, NewMemoryMedium(), &fakeAuth{result: &LoginResult{}}, 1800000000)
	_, err := m.Login(context.Background(), Credentials{Username: "alice"})
	if !errorHasCode(err, ErrCodeDomain) || !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected domain error wrapping ErrEmptyToken, got %v", err)
	}
}

func TestManager_LoginStoreFailureKeepsPreviousSession(t *testing.T) {
	ctx := context.Background()
	oldToken := payloadToken(`{"exp":1900000000,"n":1}`)
	medium := &failingMedium{MemoryMedium: NewMemoryMedium(), allowedWrites: 2, err: errors.New("disk full")}
	_ = NewCredentialStore(medium, discardLogger()).Set(ctx, oldToken, Profile{"username": "old"})

	auth := &fakeAuth{result: &LoginResult{Token: payloadToken(`{"exp":1900000000,"n":2}`), Profile: Profile{"username": "new"}}}
	m, store, _ := newTestManager(t, medium, auth, 1800000000)

	if _, err := m.Login(ctx, Credentials{Username: "new"}); !errorHasCode(err, ErrCodeStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if snap := m.Peek(); snap.Token != oldToken || snap.Profile.String() != "old" {
		t.Fatalf("memory changed after failed write: %+v", snap)
	}
	if cred, _ := store.Get(ctx); cred.Token != oldToken {
		t.Fatalf("store token changed: %q", cred.Token)
	}
}

func TestManager_HydratesFreshToken(t *testing.T) {
	ctx := context.Background()
	medium := NewMemoryMedium()
	token := payloadToken(`{"exp":1900000000}`)
	_ = NewCredentialStore(medium, discardLogger()).Set(ctx, token, Profile{"nickname": "Alice"})

	m, _, _ := newTestManager(t, medium, nil, 1800000000)
	snap := m.Snapshot(ctx)
	if !snap.Authenticated || snap.Token != token || snap.Profile.String() != "Alice" {
		t.Fatalf("hydrated snapshot: %+v", snap)
	}
}

func TestManager_HydrateKeepsExpiredTokenUntilRead(t *testing.T) {
	ctx := context.Background()
	medium := NewMemoryMedium()
	_ = NewCredentialStore(medium, discardLogger()).Set(ctx, scenarioToken, Profile{"username": "alice"})

	m, store, notes := newTestManager(t, medium, nil, 1800000000)
	if got := m.Peek().Token; got != scenarioToken {
		t.Fatalf("hydration dropped the stored token: %q", got)
	}
	if len(notes.all()) != 0 {
		t.Fatal("hydration must be silent")
	}

	if m.Snapshot(ctx).Authenticated {
		t.Fatal("expired token reported authenticated")
	}
	if _, ok := store.Get(ctx); ok {
		t.Fatal("expired token left in store")
	}
	if medium.Len() != 0 {
		t.Fatalf("medium still holds %d keys", medium.Len())
	}
	if len(notes.all()) != 0 {
		t.Fatal("dropping an expired token must be silent")
	}
}

func TestManager_SnapshotRevalidatesExpiry(t *testing.T) {
	ctx := context.Background()
	now := int64(1699999990)
	store := NewCredentialStore(NewMemoryMedium(), discardLogger())
	_ = store.Set(ctx, scenarioToken, Profile{})
	m := NewManager(ctx, store, nil,
		WithValidator(TokenValidator{Now: func() time.Time { return time.Unix(now, 0) }}),
		WithLogger(discardLogger()),
	)
	if !m.Authenticated(ctx) {
		t.Fatal("token should be fresh before exp")
	}

	now = 1700000001
	if m.Authenticated(ctx) {
		t.Fatal("token should be dropped once expired")
	}
	if _, ok := store.Get(ctx); ok {
		t.Fatal("expired token left in store")
	}
}

func TestManager_LogoutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	auth := &fakeAuth{result: &LoginResult{Token: payloadToken(`{"exp":1900000000}`), Profile: Profile{"username": "alice"}}}
	m, store, _ := newTestManager(t, NewMemoryMedium(), auth, 1800000000)
	if _, err := m.Login(ctx, Credentials{Username: "alice"}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := m.Logout(ctx); err != nil {
			t.Fatalf("Logout #%d: %v", i+1, err)
		}
		if snap := m.Snapshot(ctx); snap.Authenticated || snap.Token != "" || snap.Profile != nil {
			t.Fatalf("Logout #%d left state %+v", i+1, snap)
		}
		if _, ok := store.Get(ctx); ok {
			t.Fatalf("Logout #%d left the store populated", i+1)
		}
	}
	if auth.revoked != 1 {
		t.Fatalf("server-side logout called %d times, want 1", auth.revoked)
	}
}

func TestManager_LogoutIgnoresRevokeFailure(t *testing.T) {
	ctx := context.Background()
	auth := &fakeAuth{
		result:    &LoginResult{Token: payloadToken(`{"exp":1900000000}`)},
		revokeErr: errors.New("connection refused"),
	}
	m, store, _ := newTestManager(t, NewMemoryMedium(), auth, 1800000000)
	_, _ = m.Login(ctx, Credentials{Username: "alice"})

	if err := m.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, ok := store.Get(ctx); ok {
		t.Fatal("store not cleared after failed revoke")
	}
}

func TestManager_RefreshProfileKeepsToken(t *testing.T) {
	ctx := context.Background()
	token := payloadToken(`{"exp":1900000000}`)
	auth := &fakeAuth{
		result:  &LoginResult{Token: token, Profile: Profile{"username": "alice"}},
		profile: Profile{"username": "alice", "nickname": "Alice Liddell"},
	}
	m, store, _ := newTestManager(t, NewMemoryMedium(), auth, 1800000000)
	_, _ = m.Login(ctx, Credentials{Username: "alice"})

	profile, err := m.RefreshProfile(ctx)
	if err != nil {
		t.Fatalf("RefreshProfile: %v", err)
	}
	if profile.String() != "Alice Liddell" {
		t.Fatalf("unexpected profile %v", profile)
	}
	cred, _ := store.Get(ctx)
	if cred.Token != token || cred.Profile.String() != "Alice Liddell" {
		t.Fatalf("store after refresh: %+v", cred)
	}
}

func TestManager_RefreshProfileErrorKeepsSession(t *testing.T) {
	ctx := context.Background()
	auth := &fakeAuth{
		result: &LoginResult{Token: payloadToken(`{"exp":1900000000}`)},
		whoErr: withMessage(ErrCodeTransport, "", errors.New("timeout")),
	}
	m, _, _ := newTestManager(t, NewMemoryMedium(), auth, 1800000000)
	_, _ = m.Login(ctx, Credentials{Username: "alice"})

	if _, err := m.RefreshProfile(ctx); !errorHasCode(err, ErrCodeTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if !m.Authenticated(ctx) {
		t.Fatal("a failed refresh alone must not end the session")
	}
}

func TestManager_RefreshProfileCollapsesConcurrentCalls(t *testing.T) {
	ctx := context.Background()
	auth := &fakeAuth{
		result:  &LoginResult{Token: payloadToken(`{"exp":1900000000}`)},
		profile: Profile{"username": "alice"},
		block:   make(chan struct{}),
	}
	m, _, _ := newTestManager(t, NewMemoryMedium(), auth, 1800000000)
	_, _ = m.Login(ctx, Credentials{Username: "alice"})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.RefreshProfile(ctx); err != nil {
				t.Errorf("RefreshProfile: %v", err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(auth.block)
	wg.Wait()

	auth.mu.Lock()
	calls := auth.whoCalls
	auth.mu.Unlock()
	if calls < 1 || calls > 5 {
		t.Fatalf("unexpected call count %d", calls)
	}
}

type ctxAuth struct{}

func (ctxAuth) Login(context.Context, Credentials) (*LoginResult, error) {
	return &LoginResult{Token: payloadToken(`{"exp":1900000000}`)}, nil
}

func (ctxAuth) WhoAmI(ctx context.Context) (Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Profile{"username": "alice"}, nil
}

func TestManager_RefreshProfileSurvivesCallerCancel(t *testing.T) {
	m, _, _ := newTestManager(t, NewMemoryMedium(), ctxAuth{}, 1800000000)
	if _, err := m.Login(context.Background(), Credentials{Username: "alice"}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	profile, err := m.RefreshProfile(ctx)
	if err != nil {
		t.Fatalf("RefreshProfile with cancelled caller: %v", err)
	}
	if profile.String() != "alice" {
		t.Fatalf("unexpected profile %v", profile)
	}
}

func TestManager_RefreshProfileWithoutSession(t *testing.T) {
	auth := &fakeAuth{profile: Profile{"username": "ghost"}}
	m, store, _ := newTestManager(t, NewMemoryMedium(), auth, 1800000000)
	if _, err := m.RefreshProfile(context.Background()); !errorHasCode(err, ErrCodeUnauthenticated) {
		t.Fatalf("expected unauthenticated error, got %v", err)
	}
	if _, ok := store.Get(context.Background()); ok {
		t.Fatal("profile refresh without a session wrote the store")
	}
}

func TestManager_NoAuthenticator(t *testing.T) {
	m, _, _ := newTestManager(t, NewMemoryMedium(), nil, 1800000000)
	if _, err := m.Login(context.Background(), Credentials{}); !errors.Is(err, ErrNoAuthenticator) {
		t.Fatalf("Login: %v", err)
	}
	if _, err := m.RefreshProfile(context.Background()); !errors.Is(err, ErrNoAuthenticator) {
		t.Fatalf("RefreshProfile: %v", err)
	}
	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("Logout without authenticator: %v", err)
	}
}
