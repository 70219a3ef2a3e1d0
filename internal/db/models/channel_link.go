package models

import "time"

// ChannelLink maps an external messaging-channel identifier to a tenant.
// At most one tenant per channel id.
type ChannelLink struct {
	ChannelID string `gorm:"primaryKey"`
	TenantID  string `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
