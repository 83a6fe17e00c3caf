package app

import (
	"context"
	"net/http"
	"os"
	"runtime/debug"
	"time"
	_ "time/tzdata"

	"github.com/panjf2000/ants/v2"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"

	"github.com/ofertalabs/waboard/config"
	"github.com/ofertalabs/waboard/internal/backend"
	"github.com/ofertalabs/waboard/internal/domain"
	"github.com/ofertalabs/waboard/internal/hub"
	"github.com/ofertalabs/waboard/internal/whatsapp"
	"github.com/ofertalabs/waboard/pkg/common"
)

const defaultPoolSize = 64

type Application struct {
	appConfig *config.AppConfig
	gormDB    *gorm.DB
	sched     *cron.Cron

	backendClient *backend.Client
	graphService  *whatsapp.Service
	hubManager    *hub.Manager
	workerPool    *ants.Pool
}

// Ensure Application implements all interfaces
var (
	_ DBProvider      = (*Application)(nil)
	_ ConfigProvider  = (*Application)(nil)
	_ BackendProvider = (*Application)(nil)
	_ HubProvider     = (*Application)(nil)
	_ GraphProvider   = (*Application)(nil)
	_ PoolProvider    = (*Application)(nil)
	_ AppContext      = (*Application)(nil)
)

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) DB() *gorm.DB {
	return a.gormDB
}

// OverrideDB replaces the application's database handle (used in tests).
func (a *Application) OverrideDB(db *gorm.DB) {
	a.gormDB = db
}

func (a *Application) Backend() *backend.Client {
	return a.backendClient
}

func (a *Application) Graph() *whatsapp.Service {
	return a.graphService
}

func (a *Application) Hub() *hub.Manager {
	return a.hubManager
}

func (a *Application) Pool() *ants.Pool {
	return a.workerPool
}

// Scheduler returns the cron scheduler
func (a *Application) Scheduler() *cron.Cron {
	return a.sched
}

func (a *Application) Init(cfg *config.AppConfig) {
	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
	} else {
		time.Local = loc
	}

	// Initialize zap logger
	var zapConfig zap.Config
	if cfg.Logger.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	zapConfig.OutputPaths = []string{"stdout"}
	if cfg.Logger.FileEnable {
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, cfg.Logger.Filename)
	}

	// Build logger with file rotation if enabled
	var logger *zap.Logger
	if cfg.Logger.FileEnable {
		lumberJackLogger := &lumberjack.Logger{
			Filename:   cfg.Logger.Filename,
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
			Compress:   false,
		}

		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(lumberJackLogger),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		logger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	} else {
		logger, err = zapConfig.Build(zap.AddCaller(), zap.AddCallerSkip(1))
		if err != nil {
			panic(err)
		}
	}

	zap.ReplaceGlobals(logger)

	// Initialize database connection
	if cfg.Database.Type == "" {
		cfg.Database.Type = "sqlite"
	}
	a.gormDB = getDatabase(cfg.Database, cfg.System.Workdir)
	zap.S().Infof("Database connection successful, type: %s", cfg.Database.Type)

	if err := a.MigrateDB(false); err != nil {
		zap.S().Errorf("database migration failed: %v", err)
	}

	go func() {
		time.Sleep(3 * time.Second)
		a.checkSettings()
	}()

	a.workerPool, err = ants.NewPool(defaultPoolSize, ants.WithNonblocking(true))
	if err != nil {
		zap.S().Errorf("worker pool init failed: %v", err)
	}

	a.backendClient = backend.NewClient(cfg)
	a.graphService = whatsapp.NewService(cfg)

	heartbeat := time.Duration(cfg.Hub.HeartbeatSec) * time.Second
	a.hubManager = hub.NewManager(a.backendClient, hub.NewWebsocketDialer(&http.Client{Timeout: 10 * time.Second}), heartbeat)

	a.initJob()
}

// ConnectHub tries the initial hub establishment. Failure is reported, not
// fatal; views fall back to polling and the resume job keeps trying.
func (a *Application) ConnectHub(ctx context.Context) error {
	return a.hubManager.EnsureConnected(ctx)
}

func (a *Application) MigrateDB(track bool) (err error) {
	defer func() {
		if err1 := recover(); err1 != nil {
			if os.Getenv("GO_DEGUB_TRACE") != "" {
				debug.PrintStack()
			}
			err2, ok := err1.(error)
			if ok {
				err = err2
				zap.S().Error(err2.Error())
			}
		}
	}()
	if track {
		if err := a.gormDB.Debug().Migrator().AutoMigrate(domain.Tables...); err != nil {
			zap.S().Error(err)
		}
	} else {
		if err := a.gormDB.Migrator().AutoMigrate(domain.Tables...); err != nil {
			zap.S().Error(err)
		}
	}
	return nil
}

func (a *Application) DropAll() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
}

func (a *Application) InitDb() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
	err := a.gormDB.Migrator().AutoMigrate(domain.Tables...)
	if err != nil {
		zap.S().Error(err)
	}
}

// WriteOpLog records one dashboard action in the audit log.
func (a *Application) WriteOpLog(username, ip, action, desc string) {
	if a.gormDB == nil {
		return
	}
	if err := a.gormDB.Create(&domain.SysOprLog{
		ID:        common.UUIDint64(),
		OprName:   username,
		OprIp:     ip,
		OptAction: action,
		OptDesc:   desc,
		OptTime:   time.Now(),
	}).Error; err != nil {
		zap.L().Warn("oplog write failed", zap.Error(err))
	}
}

// Release releases application resources
func (a *Application) Release() {
	if a.sched != nil {
		a.sched.Stop()
	}
	if a.hubManager != nil {
		a.hubManager.Close()
	}
	if a.workerPool != nil {
		a.workerPool.Release()
	}
	_ = zap.L().Sync()
}
