package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ofertalabs/waboard/internal/domain"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (a *Application) initJob() {
	loc, _ := time.LoadLocation(a.appConfig.System.Location)
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))

	var err error
	_, err = a.sched.AddFunc("@every 30s", func() {
		a.SchedHubResumeTask()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	_, err = a.sched.AddFunc("@daily", func() {
		a.SchedClearExpireData()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	a.sched.Start()
}

// SchedHubResumeTask re-establishes the hub connection after a silent
// teardown. While connected it does nothing.
func (a *Application) SchedHubResumeTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()
	if a.hubManager == nil || !a.hubResumeEnabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	a.hubManager.Resume(ctx)
}

// SchedClearExpireData trims old audit log rows.
func (a *Application) SchedClearExpireData() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()
	idays := a.oplogRetentionDays()
	a.gormDB.
		Where("opt_time < ? ", time.Now().
			Add(-time.Hour*24*time.Duration(idays))).Delete(domain.SysOprLog{})
}
