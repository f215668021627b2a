package sessionx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Profile describes the authenticated principal. Its shape is defined by the
// server.
type Profile map[string]any

// String returns the first non-empty display field of the profile.
func (p Profile) String() string {
	for _, key := range []string{"nickname", "username", "email"} {
		if v, ok := p[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Clone returns a shallow copy of the profile.
func (p Profile) Clone() Profile {
	if p == nil {
		return nil
	}
	out := make(Profile, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Credential is the persisted session: a bearer token and the profile it
// was issued for.
type Credential struct {
	Token   string
	Profile Profile
}

// CredentialStore persists the session token and user profile on a Medium.
// Reads never fail: storage errors are logged and resolve to an empty
// result.
type CredentialStore struct {
	medium Medium
	logger *slog.Logger
}

// NewCredentialStore returns a store on medium. A nil logger falls back to
// slog.Default.
func NewCredentialStore(medium Medium, logger *slog.Logger) *CredentialStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialStore{medium: medium, logger: logger}
}

// Get returns the stored credential, or false when no token is stored or
// the medium cannot be read.
func (s *CredentialStore) Get(ctx context.Context) (Credential, bool) {
	token, found, err := s.medium.Get(ctx, KeyToken)
	if err != nil {
		s.logger.WarnContext(ctx, "credential store read failed", "error", err)
		return Credential{}, false
	}
	if !found || token == "" {
		return Credential{}, false
	}

	cred := Credential{Token: token, Profile: Profile{}}
	raw, found, err := s.medium.Get(ctx, KeyProfile)
	if err != nil {
		s.logger.WarnContext(ctx, "profile read failed", "error", err)
		return cred, true
	}
	if found && raw != "" {
		var profile Profile
		if err := json.Unmarshal([]byte(raw), &profile); err != nil {
			s.logger.WarnContext(ctx, "stored profile is not valid JSON", "error", err)
			return cred, true
		}
		if profile != nil {
			cred.Profile = profile
		}
	}
	return cred, true
}

// Token returns the stored token or the empty string.
func (s *CredentialStore) Token(ctx context.Context) string {
	cred, _ := s.Get(ctx)
	return cred.Token
}

// Set replaces the stored credential. The profile is written before the
// token so no reader sees a token without its profile.
func (s *CredentialStore) Set(ctx context.Context, token string, profile Profile) error {
	if token == "" {
		return newError(ErrCodeStorage, ErrEmptyToken)
	}
	if err := s.SetProfile(ctx, profile); err != nil {
		return err
	}
	if err := s.medium.Set(ctx, KeyToken, token); err != nil {
		return newError(ErrCodeStorage, fmt.Errorf("write token: %w", err))
	}
	return nil
}

// SetProfile replaces the stored profile and leaves the token as is.
func (s *CredentialStore) SetProfile(ctx context.Context, profile Profile) error {
	if profile == nil {
		profile = Profile{}
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return newError(ErrCodeStorage, fmt.Errorf("encode profile: %w", err))
	}
	if err := s.medium.Set(ctx, KeyProfile, string(data)); err != nil {
		return newError(ErrCodeStorage, fmt.Errorf("write profile: %w", err))
	}
	return nil
}

// Clear removes both the token and the profile.
func (s *CredentialStore) Clear(ctx context.Context) error {
	if err := s.medium.Delete(ctx, KeyToken, KeyProfile); err != nil {
		return newError(ErrCodeStorage, fmt.Errorf("clear credentials: %w", err))
	}
	return nil
}
