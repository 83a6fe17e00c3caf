package app

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ofertalabs/waboard/config"
	"github.com/ofertalabs/waboard/internal/domain"
	"github.com/ofertalabs/waboard/pkg/common"
)

func newTestApp(t *testing.T) *Application {
	db, err := gorm.Open(
		sqlite.Open(filepath.Join(t.TempDir(), "waboard.db")),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)},
	)
	require.NoError(t, err)
	cfg := *config.DefaultAppConfig
	a := NewApplication(&cfg)
	a.OverrideDB(db)
	require.NoError(t, a.MigrateDB(false))
	return a
}

func TestWriteOpLogAssignsID(t *testing.T) {
	a := newTestApp(t)
	a.WriteOpLog("maria", "10.0.0.1", "login", "dashboard login")

	var logs []domain.SysOprLog
	require.NoError(t, a.DB().Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.NotZero(t, logs[0].ID)
	assert.Equal(t, "maria", logs[0].OprName)
	assert.Equal(t, "login", logs[0].OptAction)
}

func TestCheckSettingsSeedsOnce(t *testing.T) {
	a := newTestApp(t)
	a.checkSettings()
	a.checkSettings()

	var count int64
	a.DB().Model(&domain.SysConfig{}).Count(&count)
	assert.Equal(t, int64(len(defaultSettings)), count)

	var sc domain.SysConfig
	require.NoError(t, a.DB().Where("type = ? and name = ?", "hub", "ResumeEnabled").First(&sc).Error)
	assert.Equal(t, common.ENABLED, sc.Value)
	assert.NotZero(t, sc.ID)
}

func TestHubResumeEnabledSetting(t *testing.T) {
	a := newTestApp(t)
	a.checkSettings()
	assert.True(t, a.hubResumeEnabled())

	a.DB().Model(&domain.SysConfig{}).
		Where("type = ? and name = ?", "hub", "ResumeEnabled").
		Update("value", common.DISABLED)
	assert.False(t, a.hubResumeEnabled())
}
