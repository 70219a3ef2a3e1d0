package db

import (
	"log"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pysugar/calendar-nexus/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SweepInterval is how often expired pending authorizations are deleted.
const SweepInterval = 10 * time.Minute

// InitDB initializes the SQLite database connection and runs migrations.
func InitDB(dbPath string) (*gorm.DB, error) {
	database, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// Auto-migrate all models
	if err := database.AutoMigrate(
		&models.Tenant{},
		&models.Credential{},
		&models.PendingAuthorization{},
		&models.ChannelLink{},
	); err != nil {
		return nil, err
	}

	return database, nil
}

// SweepPendingAuthorizations deletes handshake rows past their expiry.
// Returns the number of rows removed.
func SweepPendingAuthorizations(database *gorm.DB, now time.Time) (int64, error) {
	res := database.Where("expires_at <= ?", now).Delete(&models.PendingAuthorization{})
	return res.RowsAffected, res.Error
}

// StartSweepLoop runs SweepPendingAuthorizations periodically in the
// background.
func StartSweepLoop(database *gorm.DB) {
	ticker := time.NewTicker(SweepInterval)
	go func() {
		for range ticker.C {
			n, err := SweepPendingAuthorizations(database, time.Now())
			if err != nil {
				log.Printf("[DB] Pending authorization sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("[DB] Swept %d expired pending authorizations", n)
			}
		}
	}()
	log.Printf("[DB] Pending authorization sweep started (interval: %s)", SweepInterval)
}
