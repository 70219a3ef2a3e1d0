package credential

import (
	"context"
	"errors"
	"time"

	"github.com/pysugar/calendar-nexus/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNoCredential is returned when a tenant has no stored credential; the
// tenant must run the authorization handshake first.
var ErrNoCredential = errors.New("no credential stored for tenant")

// Store persists the per-tenant credential triple. All writes replace the
// whole {access_token, refresh_token, expiry} row at once so a cancelled or
// failed refresh never leaves a partially updated credential behind.
type Store struct {
	db *gorm.DB
}

// NewStore creates a credential store backed by the given database.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Load returns the stored credential for a tenant, or ErrNoCredential.
func (s *Store) Load(ctx context.Context, tenantID string) (*models.Credential, error) {
	var cred models.Credential
	err := s.db.WithContext(ctx).First(&cred, "tenant_id = ?", tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoCredential
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// Save upserts the full credential row keyed by tenant id in a single write.
func (s *Store) Save(ctx context.Context, cred *models.Credential) error {
	cred.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "expires_at", "updated_at"}),
	}).Create(cred).Error
}

// Delete removes a tenant's credential. Missing rows are not an error.
func (s *Store) Delete(ctx context.Context, tenantID string) error {
	return s.db.WithContext(ctx).Delete(&models.Credential{}, "tenant_id = ?", tenantID).Error
}
