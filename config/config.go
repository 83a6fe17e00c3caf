package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v2"
)

type SysConfig struct {
	Appid    string `yaml:"appid" json:"appid"`
	Location string `yaml:"location" json:"location"`
	Workdir  string `yaml:"workdir" json:"workdir"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

type WebConfig struct {
	Host   string `yaml:"host" json:"host"`
	Port   int    `yaml:"port" json:"port"`
	Secret string `yaml:"secret" json:"secret"`
}

type DBConfig struct {
	Type     string `yaml:"type" json:"type"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Name     string `yaml:"name" json:"name"`
	User     string `yaml:"user" json:"user"`
	Passwd   string `yaml:"passwd" json:"passwd"`
	MaxConn  int    `yaml:"max_conn" json:"max_conn"`
	IdleConn int    `yaml:"idle_conn" json:"idle_conn"`
}

// BackendConfig points at the external conversations REST API. The hub URL is
// derived from BaseURL unless HubURL overrides it.
type BackendConfig struct {
	BaseURL  string `yaml:"base_url" json:"base_url"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	HubURL   string `yaml:"hub_url" json:"hub_url"`
	Insecure bool   `yaml:"insecure" json:"insecure"`
}

type WhatsAppConfig struct {
	Token         string `yaml:"token" json:"token"`
	Version       string `yaml:"version" json:"version"`
	PhoneNumberID string `yaml:"phone_number_id" json:"phone_number_id"`
	BusinessID    string `yaml:"business_id" json:"business_id"`
}

type HubConfig struct {
	HeartbeatSec int `yaml:"heartbeat_sec" json:"heartbeat_sec"`
	PollSec      int `yaml:"poll_sec" json:"poll_sec"`
}

type LogConfig struct {
	Mode       string `yaml:"mode" json:"mode"`
	FileEnable bool   `yaml:"file_enable" json:"file_enable"`
	Filename   string `yaml:"filename" json:"filename"`
}

type AppConfig struct {
	System   SysConfig      `yaml:"system" json:"system"`
	Web      WebConfig      `yaml:"web" json:"web"`
	Database DBConfig       `yaml:"database" json:"database"`
	Backend  BackendConfig  `yaml:"backend" json:"backend"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp" json:"whatsapp"`
	Hub      HubConfig      `yaml:"hub" json:"hub"`
	Logger   LogConfig      `yaml:"logger" json:"logger"`
}

var DefaultAppConfig = &AppConfig{
	System: SysConfig{
		Appid:    "waboard",
		Location: "America/Sao_Paulo",
		Workdir:  "/var/waboard",
		Debug:    true,
	},
	Web: WebConfig{
		Host:   "0.0.0.0",
		Port:   1820,
		Secret: "9b6de5cc-waboard-0991-dashboard",
	},
	Database: DBConfig{
		Type:     "sqlite",
		Host:     "127.0.0.1",
		Port:     5432,
		Name:     "waboard",
		User:     "postgres",
		MaxConn:  100,
		IdleConn: 10,
	},
	WhatsApp: WhatsAppConfig{
		Version: "v24.0",
	},
	Hub: HubConfig{
		HeartbeatSec: 15,
		PollSec:      5,
	},
	Logger: LogConfig{
		Mode:       "development",
		FileEnable: false,
		Filename:   "/var/waboard/waboard.log",
	},
}

func setEnvValue(name string, val *string) {
	if evalue := os.Getenv(name); evalue != "" {
		*val = evalue
	}
}

func setEnvBoolValue(name string, val *bool) {
	if evalue := os.Getenv(name); evalue != "" {
		*val = evalue == "true" || evalue == "1" || evalue == "on"
	}
}

func setEnvIntValue(name string, val *int) {
	if evalue := os.Getenv(name); evalue != "" {
		*val = cast.ToInt(evalue)
	}
}

// LoadConfig reads the YAML file when it exists and then applies WABOARD_*
// environment overrides on top.
func LoadConfig(cfile string) *AppConfig {
	if cfile == "" {
		cfile = "waboard.yml"
	}
	cfg := new(AppConfig)
	*cfg = *DefaultAppConfig
	if _, err := os.Stat(cfile); err == nil {
		data, err := os.ReadFile(cfile)
		if err == nil {
			_ = yaml.Unmarshal(data, cfg)
		}
	}

	setEnvValue("WABOARD_SYSTEM_WORKDIR", &cfg.System.Workdir)
	setEnvBoolValue("WABOARD_SYSTEM_DEBUG", &cfg.System.Debug)

	setEnvValue("WABOARD_WEB_HOST", &cfg.Web.Host)
	setEnvIntValue("WABOARD_WEB_PORT", &cfg.Web.Port)
	setEnvValue("WABOARD_WEB_SECRET", &cfg.Web.Secret)

	setEnvValue("WABOARD_DB_TYPE", &cfg.Database.Type)
	setEnvValue("WABOARD_DB_HOST", &cfg.Database.Host)
	setEnvIntValue("WABOARD_DB_PORT", &cfg.Database.Port)
	setEnvValue("WABOARD_DB_NAME", &cfg.Database.Name)
	setEnvValue("WABOARD_DB_USER", &cfg.Database.User)
	setEnvValue("WABOARD_DB_PWD", &cfg.Database.Passwd)

	setEnvValue("EXTERNAL_API_BASE_URL", &cfg.Backend.BaseURL)
	setEnvValue("EXTERNAL_API_USERNAME", &cfg.Backend.Username)
	setEnvValue("EXTERNAL_API_PASSWORD", &cfg.Backend.Password)
	setEnvValue("EXTERNAL_API_HUB_URL", &cfg.Backend.HubURL)
	setEnvBoolValue("ALLOW_INSECURE_TLS", &cfg.Backend.Insecure)

	setEnvValue("WHATSAPP_ACCESS_TOKEN", &cfg.WhatsApp.Token)
	setEnvValue("WHATSAPP_API_VERSION", &cfg.WhatsApp.Version)
	setEnvValue("WHATSAPP_PHONE_NUMBER_ID", &cfg.WhatsApp.PhoneNumberID)
	setEnvValue("WHATSAPP_BUSINESS_ID", &cfg.WhatsApp.BusinessID)

	return cfg
}

// InitDirs ensures the workdir layout exists.
func (c *AppConfig) InitDirs() {
	_ = os.MkdirAll(filepath.Join(c.System.Workdir, "logs"), 0755)
	_ = os.MkdirAll(filepath.Join(c.System.Workdir, "data"), 0755)
}
