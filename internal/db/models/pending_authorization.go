package models

import "time"

// PendingAuthorization binds an external-channel identifier to an in-flight
// handshake. Rows are single-use receipts: a callback claims the row by
// setting ConsumedAt, and a periodic sweep deletes rows past ExpiresAt.
type PendingAuthorization struct {
	ID               uint   `gorm:"primaryKey"`
	ChannelID        string `gorm:"index:idx_channel_session"`
	SessionToken     string `gorm:"index:idx_channel_session"`
	ExpiresAt        time.Time
	ConsumedAt       *time.Time
	ResolvedTenantID string
	CreatedAt        time.Time
}
