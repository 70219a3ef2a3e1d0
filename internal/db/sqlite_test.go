package db

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pysugar/calendar-nexus/internal/db/models"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := database.AutoMigrate(
		&models.Tenant{},
		&models.Credential{},
		&models.PendingAuthorization{},
		&models.ChannelLink{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return database
}

func TestSweepPendingAuthorizations(t *testing.T) {
	database := newTestDB(t)
	now := time.Now()

	rows := []models.PendingAuthorization{
		{ChannelID: "live", SessionToken: "s1", ExpiresAt: now.Add(10 * time.Minute)},
		{ChannelID: "stale", SessionToken: "s2", ExpiresAt: now.Add(-time.Minute)},
		{ChannelID: "older", SessionToken: "s3", ExpiresAt: now.Add(-time.Hour)},
	}
	for i := range rows {
		if err := database.Create(&rows[i]).Error; err != nil {
			t.Fatalf("seed row: %v", err)
		}
	}

	swept, err := SweepPendingAuthorizations(database, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 2 {
		t.Fatalf("expected 2 rows swept, got %d", swept)
	}

	var remaining []models.PendingAuthorization
	if err := database.Find(&remaining).Error; err != nil {
		t.Fatalf("list remaining: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ChannelID != "live" {
		t.Fatalf("wrong rows survived: %+v", remaining)
	}
}

func TestSweepPendingAuthorizations_EmptyTable(t *testing.T) {
	database := newTestDB(t)

	swept, err := SweepPendingAuthorizations(database, time.Now())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 0 {
		t.Fatalf("expected nothing swept, got %d", swept)
	}
}
