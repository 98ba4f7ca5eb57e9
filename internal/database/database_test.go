package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tianzhicdev/dogetionary-sub008/internal/models"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name   string
		dbPath string
	}{
		{"in-memory database", ":memory:"},
		{"file database in nested dir", filepath.Join(t.TempDir(), "nested", "videos.db")},
		{"empty path falls back to memory", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, err := Initialize(tt.dbPath, false)
			require.NoError(t, err)
			require.NotNil(t, conn)
			assert.NoError(t, conn.HealthCheck())
			assert.NoError(t, conn.Close())
		})
	}
}

func TestDB_HealthCheck(t *testing.T) {
	var nilDB *DB
	assert.Error(t, nilDB.HealthCheck())

	conn, err := Initialize(":memory:", false)
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	assert.Error(t, conn.HealthCheck(), "HealthCheck should fail after database is closed")
}

func TestOpen_MigratesSchema(t *testing.T) {
	conn, err := Open(":memory:", false)
	require.NoError(t, err)
	defer conn.Close()

	for _, table := range []string{"videos", "word_video_mappings"} {
		var count int64
		err := conn.DB.Raw("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count).Error
		require.NoError(t, err)
		assert.Equal(t, int64(1), count, table)
	}
}

func TestDB_Transaction(t *testing.T) {
	conn, err := Open(":memory:", false)
	require.NoError(t, err)
	defer conn.Close()

	t.Run("rollback on error", func(t *testing.T) {
		err := conn.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&models.Video{Name: "a", Format: "mp4", Data: []byte{1}}).Error; err != nil {
				return err
			}
			return tx.Create(&models.Video{Name: "a", Format: "mp4", Data: []byte{2}}).Error
		})
		assert.Error(t, err)

		var count int64
		conn.Model(&models.Video{}).Count(&count)
		assert.Zero(t, count)
	})

	t.Run("commit", func(t *testing.T) {
		err := conn.Transaction(func(tx *gorm.DB) error {
			return tx.Create(&models.Video{Name: "b", Format: "mp4", Data: []byte{1}}).Error
		})
		require.NoError(t, err)

		var count int64
		conn.Model(&models.Video{}).Count(&count)
		assert.Equal(t, int64(1), count)
	})
}
