package app

import (
	"github.com/panjf2000/ants/v2"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/ofertalabs/waboard/config"
	"github.com/ofertalabs/waboard/internal/backend"
	"github.com/ofertalabs/waboard/internal/hub"
	"github.com/ofertalabs/waboard/internal/whatsapp"
)

// DBProvider provides database access
type DBProvider interface {
	DB() *gorm.DB
}

// ConfigProvider provides application configuration
type ConfigProvider interface {
	Config() *config.AppConfig
}

// BackendProvider provides the conversations REST client
type BackendProvider interface {
	Backend() *backend.Client
}

// HubProvider provides the shared realtime hub connection
type HubProvider interface {
	Hub() *hub.Manager
}

// GraphProvider provides the WhatsApp Cloud API client
type GraphProvider interface {
	Graph() *whatsapp.Service
}

// PoolProvider provides the shared worker pool
type PoolProvider interface {
	Pool() *ants.Pool
}

// SchedulerProvider provides task scheduling capability
type SchedulerProvider interface {
	Scheduler() *cron.Cron
}

// AppContext combines all provider interfaces for full application context
// Services should depend on specific providers or this combined interface
type AppContext interface {
	DBProvider
	ConfigProvider
	BackendProvider
	HubProvider
	GraphProvider
	PoolProvider
	SchedulerProvider

	// Application lifecycle methods
	MigrateDB(track bool) error
	InitDb()
	DropAll()
	// WriteOpLog records one dashboard action in the audit log
	WriteOpLog(username, ip, action, desc string)
}
