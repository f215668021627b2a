package sessionx

import (
	"context"
	"testing"
)

func TestStoreTokenSource(t *testing.T) {
	ctx := context.Background()
	store := NewCredentialStore(NewMemoryMedium(), discardLogger())
	src := StoreTokenSource(ctx, store)

	if _, err := src.Token(); !errorHasCode(err, ErrCodeUnauthenticated) {
		t.Fatalf("empty store: %v", err)
	}

	if err := store.Set(ctx, scenarioToken, Profile{}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	tok, err := src.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok.AccessToken != scenarioToken || tok.Type() != "Bearer" {
		t.Fatalf("unexpected token %+v", tok)
	}
	if tok.Expiry.Unix() != 1700000000 {
		t.Fatalf("expiry = %v", tok.Expiry)
	}

	noExp := payloadToken(`{"sub":"1"}`)
	_ = store.Set(ctx, noExp, Profile{})
	if tok, _ := src.Token(); !tok.Expiry.IsZero() {
		t.Fatalf("token without exp got expiry %v", tok.Expiry)
	}
}
