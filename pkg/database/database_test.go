package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestGetPoolStats(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetMaxIdleConns(2)

	t.Run("reflects configured pool limits", func(t *testing.T) {
		stats, err := GetPoolStats(db)
		require.NoError(t, err)
		assert.Equal(t, 5, stats.MaxOpenConnections)
	})

	t.Run("counts connections after use", func(t *testing.T) {
		var one int
		require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)

		stats, err := GetPoolStats(db)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, stats.OpenConnections, 1)
		assert.Equal(t, stats.OpenConnections, stats.InUse+stats.Idle)
	})
}
