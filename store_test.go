package sessionx

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
)

func TestCredentialStore_SetGetClear(t *testing.T) {
	ctx := context.Background()
	store := NewCredentialStore(NewMemoryMedium(), discardLogger())

	if _, ok := store.Get(ctx); ok {
		t.Fatal("empty store reported a credential")
	}
	profile := Profile{"username": "alice", "userId": float64(7)}
	if err := store.Set(ctx, "tok", profile); err != nil {
		t.Fatalf("Set: %v", err)
	}
	cred, ok := store.Get(ctx)
	if !ok || cred.Token != "tok" {
		t.Fatalf("Get after Set: %+v ok=%v", cred, ok)
	}
	if cred.Profile["username"] != "alice" || cred.Profile["userId"] != float64(7) {
		t.Fatalf("profile not round-tripped: %v", cred.Profile)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok := store.Get(ctx); ok {
		t.Fatal("credential survived Clear")
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
}

func TestCredentialStore_EmptyTokenRejected(t *testing.T) {
	store := NewCredentialStore(NewMemoryMedium(), discardLogger())
	err := store.Set(context.Background(), "", Profile{})
	if !errorHasCode(err, ErrCodeStorage) || !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected storage error wrapping ErrEmptyToken, got %v", err)
	}
}

func TestCredentialStore_CorruptProfileFallsBack(t *testing.T) {
	ctx := context.Background()
	medium := NewMemoryMedium()
	_ = medium.Set(ctx, KeyToken, "tok")
	_ = medium.Set(ctx, KeyProfile, "{not json")

	cred, ok := NewCredentialStore(medium, discardLogger()).Get(ctx)
	if !ok || cred.Token != "tok" {
		t.Fatalf("token lost: %+v", cred)
	}
	if cred.Profile == nil || len(cred.Profile) != 0 {
		t.Fatalf("expected empty profile, got %v", cred.Profile)
	}
}

func TestCredentialStore_ProfileWrittenBeforeToken(t *testing.T) {
	ctx := context.Background()
	medium := &failingMedium{MemoryMedium: NewMemoryMedium(), allowedWrites: 1, err: errors.New("disk full")}
	store := NewCredentialStore(medium, discardLogger())

	if err := store.Set(ctx, "tok", Profile{"username": "alice"}); err == nil {
		t.Fatal("expected token write to fail")
	}
	if _, ok := store.Get(ctx); ok {
		t.Fatal("a failed Set must not leave a token behind")
	}
}

func TestFileMedium_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	path := "/home/alice/.config/crctl/credentials.json"

	first := NewCredentialStore(NewFileMediumFs(fs, path), discardLogger())
	if err := first.Set(ctx, "tok", Profile{"nickname": "Alice"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	info, err := fs.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != credentialsFileMode {
		t.Fatalf("file mode = %v, want %v", perm, credentialsFileMode)
	}

	second := NewCredentialStore(NewFileMediumFs(fs, path), discardLogger())
	cred, ok := second.Get(ctx)
	if !ok || cred.Token != "tok" || cred.Profile.String() != "Alice" {
		t.Fatalf("credential not restored: %+v ok=%v", cred, ok)
	}

	if err := second.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if exists, _ := afero.Exists(fs, path); exists {
		t.Fatal("empty credentials file should be removed")
	}
}

func TestFileMedium_LeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	m := NewFileMediumFs(fs, "/cfg/credentials.json")
	for i := 0; i < 3; i++ {
		if err := m.Set(ctx, KeyToken, "tok"); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	entries, err := afero.ReadDir(fs, "/cfg")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "credentials.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("unexpected files: %v", names)
	}
}

func TestFileMedium_CorruptDocumentReadsAsError(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	path := "/cfg/credentials.json"
	if err := afero.WriteFile(fs, path, []byte("garbage"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	m := NewFileMediumFs(fs, path)
	if _, _, err := m.Get(ctx, KeyToken); err == nil {
		t.Fatal("expected decode error")
	}
	if _, ok := NewCredentialStore(m, discardLogger()).Get(ctx); ok {
		t.Fatal("corrupt document must read as no credential")
	}
	if err := m.Set(ctx, KeyToken, "tok"); err != nil {
		t.Fatalf("Set over corrupt document: %v", err)
	}
	if v, ok, err := m.Get(ctx, KeyToken); err != nil || !ok || v != "tok" {
		t.Fatalf("Get after rewrite: %q %v %v", v, ok, err)
	}
}

func TestRedisMedium_RoundTrip(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewCredentialStore(NewRedisMedium(client, "test"), discardLogger())
	if _, ok := store.Get(ctx); ok {
		t.Fatal("empty redis reported a credential")
	}
	if err := store.Set(ctx, "tok", Profile{"username": "alice"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, _ := srv.Get("test:token"); got != "tok" {
		t.Fatalf("redis token key = %q", got)
	}
	if !srv.Exists("test:userInfo") {
		t.Fatal("profile key missing")
	}

	cred, ok := store.Get(ctx)
	if !ok || cred.Token != "tok" || cred.Profile.String() != "alice" {
		t.Fatalf("Get: %+v ok=%v", cred, ok)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if srv.Exists("test:token") || srv.Exists("test:userInfo") {
		t.Fatal("keys survived Clear")
	}
}

func TestRedisMedium_FromURL(t *testing.T) {
	srv := miniredis.RunT(t)
	m, err := NewRedisMediumFromURL("redis://"+srv.Addr()+"/0", "")
	if err != nil {
		t.Fatalf("NewRedisMediumFromURL: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })

	ctx := context.Background()
	if err := m.Set(ctx, KeyToken, "tok"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, _ := srv.Get("crctl:token"); got != "tok" {
		t.Fatalf("default prefix not applied: %q", got)
	}
	if _, err := NewRedisMediumFromURL("://bad", ""); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRedisMedium_ReadFailureIsSafe(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	store := NewCredentialStore(NewRedisMedium(client, ""), discardLogger())

	srv.Close()
	if _, ok := store.Get(context.Background()); ok {
		t.Fatal("unreachable redis must read as no credential")
	}
}
