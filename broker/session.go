package broker

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"
)

// Credential is an opaque venue session token with a known validity
// window. Credentials are immutable; refresh produces a new complete
// record.
type Credential struct {
	Token        string
	RefreshToken string
	FeedToken    string
	IssuedAt     time.Time
	Validity     time.Duration
}

// ExpiresAt returns the end of the validity window.
func (c Credential) ExpiresAt() time.Time {
	return c.IssuedAt.Add(c.Validity)
}

// FreshFor reports whether the credential remains valid for at least
// the given buffer past now.
func (c Credential) FreshFor(now time.Time, buffer time.Duration) bool {
	return c.Token != "" && now.Add(buffer).Before(c.ExpiresAt())
}

// Expired reports whether the validity window has fully elapsed.
func (c Credential) Expired(now time.Time) bool {
	return c.Token == "" || !now.Before(c.ExpiresAt())
}

// CredentialSource mints or refreshes credentials, typically by logging
// into the venue. prev carries the refresh token when one is held.
type CredentialSource interface {
	Refresh(ctx context.Context, prev Credential) (Credential, error)
}

// ErrNoCredential is returned when no usable credential exists and the
// source cannot produce one.
var ErrNoCredential = errors.New("broker: no valid credential available")

// SessionManager keeps one live credential per account, refreshed
// proactively before expiry. Readers take the current record without
// locking; refresh publishes a complete new record atomically, so a
// reader never observes a partial mutation. If refresh fails the
// previously-known-good credential stays in place; the manager never
// leaves the engine with no credential while one is still valid.
type SessionManager struct {
	source CredentialSource
	buffer time.Duration
	now    func() time.Time

	cur atomic.Pointer[Credential]
}

// NewSessionManager creates a manager refreshing when within buffer of
// expiry.
func NewSessionManager(source CredentialSource, buffer time.Duration) *SessionManager {
	return &SessionManager{source: source, buffer: buffer, now: time.Now}
}

// Current returns the held credential, which may be stale.
func (m *SessionManager) Current() (Credential, bool) {
	if c := m.cur.Load(); c != nil {
		return *c, true
	}
	return Credential{}, false
}

// Ensure returns a credential safe to use now. It refreshes proactively
// inside the expiry buffer; on refresh failure it falls back to the
// last-known-good credential unless that one has fully expired, in
// which case it fails closed.
func (m *SessionManager) Ensure(ctx context.Context) (Credential, error) {
	now := m.now()

	if c := m.cur.Load(); c != nil && c.FreshFor(now, m.buffer) {
		return *c, nil
	}

	var prev Credential
	if c := m.cur.Load(); c != nil {
		prev = *c
	}

	fresh, err := m.source.Refresh(ctx, prev)
	if err != nil {
		if prev.Token != "" && !prev.Expired(now) {
			log.Printf("[WARN] session refresh failed, keeping last-known-good credential: %v", err)
			return prev, nil
		}
		return Credential{}, errors.Join(ErrNoCredential, err)
	}

	m.cur.Store(&fresh)
	return fresh, nil
}
