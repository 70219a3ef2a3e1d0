package handshake

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pysugar/calendar-nexus/internal/auth/credential"
	"github.com/pysugar/calendar-nexus/internal/auth/provider"
	"github.com/pysugar/calendar-nexus/internal/db/models"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Tenant{},
		&models.Credential{},
		&models.PendingAuthorization{},
		&models.ChannelLink{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

type fakeProvider struct {
	exchangeErr error
	identityErr error
	revoked     []string
	exchanged   []string
	tokens      provider.TokenSet
	identity    provider.Identity
}

func (f *fakeProvider) ExchangeCode(ctx context.Context, code string) (*provider.TokenSet, error) {
	f.exchanged = append(f.exchanged, code)
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	tokens := f.tokens
	return &tokens, nil
}

func (f *fakeProvider) Refresh(ctx context.Context, refreshToken string) (*provider.TokenSet, error) {
	return nil, errors.New("not used in handshake tests")
}

func (f *fakeProvider) FetchIdentity(ctx context.Context, accessToken string) (*provider.Identity, error) {
	if f.identityErr != nil {
		return nil, f.identityErr
	}
	ident := f.identity
	return &ident, nil
}

func (f *fakeProvider) Revoke(ctx context.Context, accessToken string) error {
	f.revoked = append(f.revoked, accessToken)
	return nil
}

func newTestHandshake(t *testing.T, db *gorm.DB, client *fakeProvider) *Handshake {
	t.Helper()
	oauthConfig := &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:8086/oauth/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://provider.example/auth",
			TokenURL: "https://provider.example/token",
		},
	}
	creds := credential.NewManager(credential.NewStore(db), client)
	return New(db, client, creds, oauthConfig, NewStateCodec("state-secret", SessionTTL))
}

func defaultFakeProvider() *fakeProvider {
	return &fakeProvider{
		tokens: provider.TokenSet{
			AccessToken:  "access",
			RefreshToken: "refresh",
			Expiry:       time.Now().Add(time.Hour),
		},
		identity: provider.Identity{ID: "g-123", Email: "owner@example.com", DisplayName: "Owner"},
	}
}

// stateFromAuthURL pulls the signed state back out of the authorization URL.
func stateFromAuthURL(t *testing.T, authURL string) string {
	t.Helper()
	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	state := u.Query().Get("state")
	if state == "" {
		t.Fatalf("auth url carries no state: %s", authURL)
	}
	return state
}

func TestInitiate_CreatesPendingAuthorization(t *testing.T) {
	db := newTestDB(t)
	h := newTestHandshake(t, db, defaultFakeProvider())

	authURL, err := h.Initiate(context.Background(), "chat-1")
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	if got := u.Query().Get("access_type"); got != "offline" {
		t.Fatalf("expected offline access, got %q", got)
	}

	var pending models.PendingAuthorization
	if err := db.First(&pending, "channel_id = ?", "chat-1").Error; err != nil {
		t.Fatalf("pending row missing: %v", err)
	}
	if pending.SessionToken == "" || !pending.ExpiresAt.After(time.Now()) {
		t.Fatalf("pending row malformed: %+v", pending)
	}
	if pending.ConsumedAt != nil {
		t.Fatalf("fresh pending row must not be consumed")
	}
}

func TestHandleCallback_ChannelFlowResolves(t *testing.T) {
	db := newTestDB(t)
	client := defaultFakeProvider()
	h := newTestHandshake(t, db, client)

	authURL, err := h.Initiate(context.Background(), "chat-1")
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	state := stateFromAuthURL(t, authURL)

	result, err := h.HandleCallback(context.Background(), "code-1", state)
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if !result.Created || result.Email != "owner@example.com" {
		t.Fatalf("unexpected result: %+v", result)
	}

	var tenant models.Tenant
	if err := db.First(&tenant, "id = ?", result.TenantID).Error; err != nil {
		t.Fatalf("tenant missing: %v", err)
	}
	if tenant.PrincipalKind != models.PrincipalChannelLinked {
		t.Fatalf("expected channel-linked tenant, got %q", tenant.PrincipalKind)
	}

	var link models.ChannelLink
	if err := db.First(&link, "channel_id = ?", "chat-1").Error; err != nil {
		t.Fatalf("channel link missing: %v", err)
	}
	if link.TenantID != result.TenantID {
		t.Fatalf("link points at wrong tenant: %+v", link)
	}

	var cred models.Credential
	if err := db.First(&cred, "tenant_id = ?", result.TenantID).Error; err != nil {
		t.Fatalf("credential missing: %v", err)
	}
	if cred.AccessToken != "access" || cred.RefreshToken != "refresh" {
		t.Fatalf("credential mismatch: %+v", cred)
	}

	var pending models.PendingAuthorization
	if err := db.First(&pending, "channel_id = ?", "chat-1").Error; err != nil {
		t.Fatalf("pending row missing: %v", err)
	}
	if pending.ConsumedAt == nil || pending.ResolvedTenantID != result.TenantID {
		t.Fatalf("pending row not resolved: %+v", pending)
	}
}

func TestHandleCallback_SecondCallbackRejected(t *testing.T) {
	db := newTestDB(t)
	h := newTestHandshake(t, db, defaultFakeProvider())

	authURL, err := h.Initiate(context.Background(), "chat-1")
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	state := stateFromAuthURL(t, authURL)

	if _, err := h.HandleCallback(context.Background(), "code-1", state); err != nil {
		t.Fatalf("first callback: %v", err)
	}

	// A duplicated browser reload must not double-create a tenant.
	_, err = h.HandleCallback(context.Background(), "code-1", state)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}

	var count int64
	db.Model(&models.Tenant{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected one tenant, got %d", count)
	}
}

func TestHandleCallback_ExpiredSessionRejected(t *testing.T) {
	db := newTestDB(t)
	h := newTestHandshake(t, db, defaultFakeProvider())

	authURL, err := h.Initiate(context.Background(), "chat-1")
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	state := stateFromAuthURL(t, authURL)

	// Session past expiry is rejected even with a matching token.
	if err := db.Model(&models.PendingAuthorization{}).
		Where("channel_id = ?", "chat-1").
		Update("expires_at", time.Now().Add(-time.Minute)).Error; err != nil {
		t.Fatalf("age session: %v", err)
	}

	_, err = h.HandleCallback(context.Background(), "code-1", state)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestHandleCallback_InvalidState(t *testing.T) {
	db := newTestDB(t)
	h := newTestHandshake(t, db, defaultFakeProvider())

	_, err := h.HandleCallback(context.Background(), "code-1", "garbage")
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestHandleCallback_ExchangeFailure(t *testing.T) {
	db := newTestDB(t)
	client := defaultFakeProvider()
	client.exchangeErr = errors.New("code already redeemed")
	h := newTestHandshake(t, db, client)

	authURL, err := h.Initiate(context.Background(), "chat-1")
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	state := stateFromAuthURL(t, authURL)

	_, err = h.HandleCallback(context.Background(), "code-1", state)
	if !errors.Is(err, ErrProviderExchangeFailed) {
		t.Fatalf("expected ErrProviderExchangeFailed, got %v", err)
	}

	// No partial tenant or credential state may remain.
	var tenants, creds int64
	db.Model(&models.Tenant{}).Count(&tenants)
	db.Model(&models.Credential{}).Count(&creds)
	if tenants != 0 || creds != 0 {
		t.Fatalf("partial state left behind: %d tenants, %d credentials", tenants, creds)
	}
}

func TestHandleCallback_DirectFlowReusesTenant(t *testing.T) {
	db := newTestDB(t)
	client := defaultFakeProvider()
	h := newTestHandshake(t, db, client)

	existing := models.Tenant{
		ID:            "t-existing",
		ProviderID:    "g-123",
		Email:         "old@example.com",
		PrincipalKind: models.PrincipalDirect,
		DisplayName:   "Old Name",
	}
	if err := db.Create(&existing).Error; err != nil {
		t.Fatalf("seed tenant: %v", err)
	}

	authURL, err := h.InitiateDirect(context.Background(), "t-existing")
	if err != nil {
		t.Fatalf("initiate direct: %v", err)
	}
	state := stateFromAuthURL(t, authURL)

	result, err := h.HandleCallback(context.Background(), "code-1", state)
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if result.Created {
		t.Fatalf("expected tenant reuse, got created")
	}
	if result.TenantID != "t-existing" {
		t.Fatalf("expected existing tenant id, got %q", result.TenantID)
	}

	var tenant models.Tenant
	if err := db.First(&tenant, "id = ?", "t-existing").Error; err != nil {
		t.Fatalf("tenant missing: %v", err)
	}
	if tenant.DisplayName != "Owner" || tenant.Email != "owner@example.com" {
		t.Fatalf("display metadata not refreshed: %+v", tenant)
	}
	// Principal kind is not rewritten on reuse.
	if tenant.PrincipalKind != models.PrincipalDirect {
		t.Fatalf("principal kind changed: %q", tenant.PrincipalKind)
	}
}

func TestDisconnect_RemovesTenantState(t *testing.T) {
	db := newTestDB(t)
	client := defaultFakeProvider()
	h := newTestHandshake(t, db, client)

	authURL, err := h.Initiate(context.Background(), "chat-1")
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	result, err := h.HandleCallback(context.Background(), "code-1", stateFromAuthURL(t, authURL))
	if err != nil {
		t.Fatalf("callback: %v", err)
	}

	if err := h.Disconnect(context.Background(), result.TenantID); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	if len(client.revoked) != 1 || client.revoked[0] != "access" {
		t.Fatalf("expected access token revoked, got %v", client.revoked)
	}

	var tenants, creds, links int64
	db.Model(&models.Tenant{}).Count(&tenants)
	db.Model(&models.Credential{}).Count(&creds)
	db.Model(&models.ChannelLink{}).Count(&links)
	if tenants != 0 || creds != 0 || links != 0 {
		t.Fatalf("state left after disconnect: %d/%d/%d", tenants, creds, links)
	}
}
