package credential

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pysugar/calendar-nexus/internal/auth/provider"
	"github.com/pysugar/calendar-nexus/internal/db/models"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// SkewBuffer is the safety margin subtracted from token expiry; a token
// within this margin of expiring is refreshed proactively.
const SkewBuffer = 5 * time.Minute

var (
	// ErrReauthRequired means the refresh token is dead (or absent) and the
	// tenant must re-run the authorization handshake.
	ErrReauthRequired = errors.New("re-authorization required")

	// ErrTransientRefresh wraps a refresh failure that is not terminal;
	// callers may retry with backoff.
	ErrTransientRefresh = errors.New("transient refresh failure")
)

// Refresher is the slice of the remote OAuth client the manager needs.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*provider.TokenSet, error)
}

// Manager keeps per-tenant credentials valid, refreshing on demand.
// Concurrent Acquire calls for the same tenant are collapsed into a single
// remote refresh via singleflight.
type Manager struct {
	store  *Store
	client Refresher
	group  singleflight.Group
}

// NewManager creates a credential lifecycle manager.
func NewManager(store *Store, client Refresher) *Manager {
	return &Manager{store: store, client: client}
}

// Acquire returns a currently-valid access token for the tenant, refreshing
// transparently when the stored token is within SkewBuffer of expiry.
func (m *Manager) Acquire(ctx context.Context, tenantID string) (string, error) {
	cred, err := m.store.Load(ctx, tenantID)
	if err != nil {
		return "", err
	}

	// A nil expiry means the provider issued a non-expiring token.
	if cred.ExpiresAt == nil || time.Now().Add(SkewBuffer).Before(*cred.ExpiresAt) {
		return cred.AccessToken, nil
	}

	return m.refresh(ctx, tenantID)
}

// refresh performs the remote refresh grant and persists the result. All
// concurrent callers for one tenant share a single in-flight refresh.
func (m *Manager) refresh(ctx context.Context, tenantID string) (string, error) {
	// The flight is shared with followers whose contexts may still be live;
	// it must not die with the leader's cancellation.
	flightCtx := context.WithoutCancel(ctx)
	token, err, _ := m.group.Do(tenantID, func() (interface{}, error) {
		// Re-load inside the flight: a racing caller may have refreshed and
		// persisted already.
		cred, err := m.store.Load(flightCtx, tenantID)
		if err != nil {
			return "", err
		}
		if cred.ExpiresAt == nil || time.Now().Add(SkewBuffer).Before(*cred.ExpiresAt) {
			return cred.AccessToken, nil
		}
		if cred.RefreshToken == "" {
			return "", ErrReauthRequired
		}

		tokens, err := m.client.Refresh(flightCtx, cred.RefreshToken)
		if err != nil {
			if isInvalidGrant(err) {
				// Terminal: the refresh token is revoked or expired. The
				// stored row is kept intact for diagnostics.
				log.Printf("[Credential] Refresh token dead for tenant %s: %v", tenantID, err)
				return "", ErrReauthRequired
			}
			return "", fmt.Errorf("%w: %v", ErrTransientRefresh, err)
		}

		if err := m.persistRefreshed(flightCtx, cred, tokens); err != nil {
			return "", err
		}
		log.Printf("[Credential] Refreshed token for tenant %s (expires: %s)", tenantID, tokens.Expiry.Format(time.RFC3339))
		return tokens.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

// persistRefreshed writes the refreshed triple in one atomic upsert. The
// refresh token is replaced only when the provider rotated it (RFC 6749).
func (m *Manager) persistRefreshed(ctx context.Context, cred *models.Credential, tokens *provider.TokenSet) error {
	refreshToken := cred.RefreshToken
	if tokens.RefreshToken != "" && tokens.RefreshToken != cred.RefreshToken {
		log.Printf("[Credential] Rotating refresh token for tenant %s", cred.TenantID)
		refreshToken = tokens.RefreshToken
	}

	expiry := tokens.Expiry
	return m.store.Save(ctx, &models.Credential{
		TenantID:     cred.TenantID,
		AccessToken:  tokens.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    &expiry,
	})
}

// PersistExchanged stores the tokens obtained from a code exchange, directly
// overwriting whatever credential the tenant had. Used by the handshake, not
// the refresh path: an absent refresh token here means the provider withheld
// it and the previous one (if any) must be retained.
func (m *Manager) PersistExchanged(ctx context.Context, tenantID string, tokens *provider.TokenSet) error {
	return persistExchanged(ctx, m.store, tenantID, tokens)
}

// PersistExchangedTx is PersistExchanged running inside an existing
// transaction, so the handshake can commit tenant, channel link and
// credential as one write.
func (m *Manager) PersistExchangedTx(ctx context.Context, tx *gorm.DB, tenantID string, tokens *provider.TokenSet) error {
	return persistExchanged(ctx, NewStore(tx), tenantID, tokens)
}

func persistExchanged(ctx context.Context, store *Store, tenantID string, tokens *provider.TokenSet) error {
	refreshToken := tokens.RefreshToken
	if refreshToken == "" {
		if prev, err := store.Load(ctx, tenantID); err == nil {
			refreshToken = prev.RefreshToken
		}
	}

	expiry := tokens.Expiry
	cred := &models.Credential{
		TenantID:     tenantID,
		AccessToken:  tokens.AccessToken,
		RefreshToken: refreshToken,
	}
	if !expiry.IsZero() {
		cred.ExpiresAt = &expiry
	}
	return store.Save(ctx, cred)
}

// isInvalidGrant reports whether a refresh error is in the invalid-grant
// class, meaning the refresh token itself is dead.
func isInvalidGrant(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	permanentMarkers := []string{
		"invalid_grant",
		"invalid_client",
		"unauthorized_client",
		"token has been expired or revoked",
		"revoked",
	}
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
