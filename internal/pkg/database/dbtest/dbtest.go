// Package dbtest opens throwaway SQLite databases carrying the production
// schema. Only test code imports it.
package dbtest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sbsbridge/claimbridge/app/models"
	"github.com/sbsbridge/claimbridge/internal/pkg/database"
)

// Open returns a migrated in-memory database private to t.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

// SeedCatalog inserts active catalog entries. prices maps code to base price.
func SeedCatalog(t *testing.T, db *gorm.DB, prices map[string]string) {
	t.Helper()
	for code, price := range prices {
		require.NoError(t, db.Create(&models.CatalogEntry{
			CanonicalCode: code,
			Description:   code,
			BasePrice:     decimal.RequireFromString(price),
			Currency:      "SAR",
			IsActive:      true,
		}).Error)
	}
}

// SeedFacility inserts a facility with its tier markup.
func SeedFacility(t *testing.T, db *gorm.DB, facilityID uint, tier int, markup string) {
	t.Helper()
	require.NoError(t, db.Save(&models.PricingTier{
		Tier:             tier,
		MarkupPercentage: decimal.RequireFromString(markup),
	}).Error)
	require.NoError(t, db.Create(&models.Facility{
		FacilityID: facilityID,
		Name:       fmt.Sprintf("Facility %d", facilityID),
		Tier:       tier,
		IsActive:   true,
	}).Error)
}
