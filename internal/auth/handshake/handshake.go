// Package handshake implements the authorization-code flow that establishes
// or refreshes a tenant's delegated credential. A handshake moves through
// INITIATED -> CALLBACK_RECEIVED -> RESOLVED; expiry and provider failures
// are terminal and require a fresh initiate.
package handshake

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pysugar/calendar-nexus/internal/auth/credential"
	"github.com/pysugar/calendar-nexus/internal/auth/provider"
	"github.com/pysugar/calendar-nexus/internal/db/models"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionTTL is how long an initiated handshake stays claimable.
const SessionTTL = 30 * time.Minute

var (
	// ErrSessionExpired means the pending authorization is expired, already
	// consumed, or never existed. Covers stale and replayed callbacks alike.
	ErrSessionExpired = errors.New("authorization session expired or already used")

	// ErrProviderExchangeFailed means the code exchange itself errored, e.g.
	// an already-used authorization code.
	ErrProviderExchangeFailed = errors.New("provider token exchange failed")
)

// Result describes a completed handshake.
type Result struct {
	TenantID    string
	Email       string
	DisplayName string
	Created     bool // true when a new tenant was created
}

// Handshake drives the authorization flow for both principal kinds.
type Handshake struct {
	db     *gorm.DB
	client provider.Client
	creds  *credential.Manager
	oauth  *oauth2.Config
	state  *StateCodec
}

// New creates a handshake service.
func New(db *gorm.DB, client provider.Client, creds *credential.Manager, oauth *oauth2.Config, state *StateCodec) *Handshake {
	return &Handshake{db: db, client: client, creds: creds, oauth: oauth, state: state}
}

// Initiate starts a channel-flow handshake: it records a single-use pending
// authorization and returns the provider authorization URL carrying the
// signed state.
func (h *Handshake) Initiate(ctx context.Context, channelID string) (string, error) {
	sessionToken := uuid.New().String()

	pending := models.PendingAuthorization{
		ChannelID:    channelID,
		SessionToken: sessionToken,
		ExpiresAt:    time.Now().Add(SessionTTL),
	}
	if err := h.db.WithContext(ctx).Create(&pending).Error; err != nil {
		return "", fmt.Errorf("failed to record pending authorization: %w", err)
	}

	state, err := h.state.Encode(State{
		Flow:         FlowChannel,
		ChannelID:    channelID,
		SessionToken: sessionToken,
	})
	if err != nil {
		return "", err
	}

	return h.authCodeURL(state), nil
}

// InitiateDirect starts a handshake for an already-resolvable direct
// principal. No pending row is needed; the state carries the tenant id.
func (h *Handshake) InitiateDirect(ctx context.Context, tenantID string) (string, error) {
	state, err := h.state.Encode(State{Flow: FlowDirect, TenantID: tenantID})
	if err != nil {
		return "", err
	}
	return h.authCodeURL(state), nil
}

func (h *Handshake) authCodeURL(state string) string {
	// Offline access plus forced approval so the provider reissues a
	// refresh token on re-consent.
	return h.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// HandleCallback completes a handshake from the provider redirect. Tenant,
// credential and channel link are committed in one transaction; a duplicate
// callback for the same session fails with ErrSessionExpired.
func (h *Handshake) HandleCallback(ctx context.Context, code, stateBlob string) (*Result, error) {
	state, err := h.state.Decode(stateBlob)
	if err != nil {
		return nil, err
	}

	if state.Flow == FlowChannel {
		if err := h.claimPending(ctx, state.ChannelID, state.SessionToken); err != nil {
			return nil, err
		}
	}

	tokens, err := h.client.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderExchangeFailed, err)
	}

	ident, err := h.client.FetchIdentity(ctx, tokens.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch remote identity: %w", err)
	}

	var result Result
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tenant, created, err := h.upsertTenant(tx, state, ident)
		if err != nil {
			return err
		}
		result = Result{
			TenantID:    tenant.ID,
			Email:       ident.Email,
			DisplayName: ident.DisplayName,
			Created:     created,
		}

		if state.Flow == FlowChannel {
			link := models.ChannelLink{ChannelID: state.ChannelID, TenantID: tenant.ID}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "channel_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"tenant_id", "updated_at"}),
			}).Create(&link).Error; err != nil {
				return err
			}

			// Stamp the consumed row resolved; purely a receipt, the sweep
			// deletes it later.
			if err := tx.Model(&models.PendingAuthorization{}).
				Where("channel_id = ? AND session_token = ?", state.ChannelID, state.SessionToken).
				Update("resolved_tenant_id", tenant.ID).Error; err != nil {
				return err
			}
		}

		return h.creds.PersistExchangedTx(ctx, tx, tenant.ID, tokens)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Handshake] Resolved tenant %s (%s, created=%v)", result.TenantID, result.Email, result.Created)
	return &result, nil
}

// claimPending consumes the pending authorization exactly once. The
// conditional update is the atomicity guard: two racing callbacks cannot
// both see RowsAffected == 1.
func (h *Handshake) claimPending(ctx context.Context, channelID, sessionToken string) error {
	now := time.Now()
	res := h.db.WithContext(ctx).Model(&models.PendingAuthorization{}).
		Where("channel_id = ? AND session_token = ? AND expires_at > ? AND consumed_at IS NULL",
			channelID, sessionToken, now).
		Update("consumed_at", now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSessionExpired
	}
	return nil
}

func (h *Handshake) upsertTenant(tx *gorm.DB, state *State, ident *provider.Identity) (*models.Tenant, bool, error) {
	var tenant models.Tenant
	err := tx.First(&tenant, "provider_id = ?", ident.ID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		kind := models.PrincipalDirect
		if state.Flow == FlowChannel {
			kind = models.PrincipalChannelLinked
		}
		tenant = models.Tenant{
			ID:            uuid.New().String(),
			ProviderID:    ident.ID,
			Email:         ident.Email,
			PrincipalKind: kind,
			DisplayName:   ident.DisplayName,
		}
		if err := tx.Create(&tenant).Error; err != nil {
			return nil, false, err
		}
		return &tenant, true, nil
	case err != nil:
		return nil, false, err
	default:
		// Existing tenant: reuse the id, refresh display metadata only.
		tenant.Email = ident.Email
		tenant.DisplayName = ident.DisplayName
		if err := tx.Save(&tenant).Error; err != nil {
			return nil, false, err
		}
		return &tenant, false, nil
	}
}

// Disconnect revokes the tenant's access token (best effort) and removes
// credential, channel link and tenant row.
func (h *Handshake) Disconnect(ctx context.Context, tenantID string) error {
	store := credential.NewStore(h.db)
	if cred, err := store.Load(ctx, tenantID); err == nil {
		if err := h.client.Revoke(ctx, cred.AccessToken); err != nil {
			log.Printf("[Handshake] Revoke failed for tenant %s: %v", tenantID, err)
		}
	}

	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Credential{}, "tenant_id = ?", tenantID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.ChannelLink{}, "tenant_id = ?", tenantID).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Tenant{}, "id = ?", tenantID).Error
	})
}
