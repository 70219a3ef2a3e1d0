package models

import "time"

// Principal kinds stored on a tenant row.
const (
	PrincipalDirect        = "direct"
	PrincipalChannelLinked = "channel-linked"
)

// Tenant is the canonical identity under which calendar access is authorized.
// Created the first time a principal completes the authorization handshake;
// deleted only on explicit disconnect.
type Tenant struct {
	ID            string `gorm:"primaryKey"` // UUID
	ProviderID    string `gorm:"uniqueIndex"`
	Email         string
	PrincipalKind string
	DisplayName   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
