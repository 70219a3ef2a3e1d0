package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/pysugar/calendar-nexus/internal/db/models"
	"gorm.io/gorm"
)

var (
	// ErrInvalidPrincipal means the bearer token failed signature or expiry
	// verification.
	ErrInvalidPrincipal = errors.New("invalid principal token")

	// ErrUnknownTenant means the token verified but names a tenant that no
	// longer exists.
	ErrUnknownTenant = errors.New("unknown tenant")

	// ErrChannelNotLinked means no tenant is linked to the channel id yet.
	// Not a hard failure: callers should offer the handshake path.
	ErrChannelNotLinked = errors.New("channel not linked to a tenant")
)

// Principal is the caller-presented identity before resolution. Exactly one
// variant is set.
type Principal struct {
	BearerToken string
	ChannelID   string
}

// Resolved is the canonical identity a principal maps to.
type Resolved struct {
	TenantID      string
	PrincipalKind string
}

// Resolver maps inbound principals to canonical tenant ids. Pure lookup, no
// side effects.
type Resolver struct {
	db     *gorm.DB
	issuer *TokenIssuer
}

// NewResolver creates an identity resolver.
func NewResolver(db *gorm.DB, issuer *TokenIssuer) *Resolver {
	return &Resolver{db: db, issuer: issuer}
}

// Resolve determines the tenant behind a principal.
func (r *Resolver) Resolve(ctx context.Context, p Principal) (*Resolved, error) {
	switch {
	case p.BearerToken != "":
		return r.resolveBearer(ctx, p.BearerToken)
	case p.ChannelID != "":
		return r.resolveChannel(ctx, p.ChannelID)
	default:
		return nil, ErrInvalidPrincipal
	}
}

func (r *Resolver) resolveBearer(ctx context.Context, token string) (*Resolved, error) {
	tenantID, err := r.issuer.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrincipal, err)
	}

	var tenant models.Tenant
	err = r.db.WithContext(ctx).First(&tenant, "id = ?", tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownTenant
	}
	if err != nil {
		return nil, err
	}

	return &Resolved{TenantID: tenant.ID, PrincipalKind: models.PrincipalDirect}, nil
}

func (r *Resolver) resolveChannel(ctx context.Context, channelID string) (*Resolved, error) {
	var link models.ChannelLink
	err := r.db.WithContext(ctx).First(&link, "channel_id = ?", channelID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChannelNotLinked
	}
	if err != nil {
		return nil, err
	}

	return &Resolved{TenantID: link.TenantID, PrincipalKind: models.PrincipalChannelLinked}, nil
}
