package models

import "time"

// Credential stores the delegated OAuth grant for one tenant.
// Exactly one row per tenant; overwritten in place on refresh, never
// append-only. RefreshToken may be empty if the provider withheld it.
type Credential struct {
	TenantID     string `gorm:"primaryKey"`
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
