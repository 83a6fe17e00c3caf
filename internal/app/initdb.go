package app

import (
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/ofertalabs/waboard/internal/domain"
	"github.com/ofertalabs/waboard/pkg/common"
)

const defaultOplogRetentionDays = 90

// settings seeded into sys_config on first boot. Values are editable in the
// database afterwards.
var defaultSettings = []domain.SysConfig{
	{Sort: 1, Type: "system", Name: "OplogRetentionDays", Value: "90", Remark: "Days to keep audit log rows"},
	{Sort: 2, Type: "hub", Name: "ResumeEnabled", Value: common.ENABLED, Remark: "Enable the periodic hub resume job"},
}

func (a *Application) checkSettings() {
	for _, s := range defaultSettings {
		var count int64
		a.gormDB.Model(&domain.SysConfig{}).
			Where("type = ? and name = ?", s.Type, s.Name).
			Count(&count)
		if count == 0 {
			s.ID = common.UUIDint64()
			s.CreatedAt = time.Now()
			s.UpdatedAt = time.Now()
			if err := a.gormDB.Create(&s).Error; err != nil {
				zap.L().Error("failed to seed setting",
					zap.String("type", s.Type), zap.String("name", s.Name), zap.Error(err))
			} else {
				zap.L().Info("initialized setting",
					zap.String("type", s.Type), zap.String("name", s.Name), zap.String("default", s.Value))
			}
		}
	}
}

func (a *Application) settingString(category, name string) string {
	var sc domain.SysConfig
	if err := a.gormDB.Where("type = ? and name = ?", category, name).First(&sc).Error; err != nil {
		return ""
	}
	return sc.Value
}

// hubResumeEnabled reads the hub/ResumeEnabled setting; anything but an
// explicit disable keeps the resume job running.
func (a *Application) hubResumeEnabled() bool {
	return a.settingString("hub", "ResumeEnabled") != common.DISABLED
}

func (a *Application) oplogRetentionDays() int {
	days := cast.ToInt(a.settingString("system", "OplogRetentionDays"))
	if days <= 0 {
		days = defaultOplogRetentionDays
	}
	return days
}
