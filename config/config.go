package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

type SysConfig struct {
	Appid    string `yaml:"appid" json:"appid"`
	Location string `yaml:"location" json:"location"`
	Workdir  string `yaml:"workdir" json:"workdir"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

type WebConfig struct {
	Host      string `yaml:"host" json:"host"`
	Port      int    `yaml:"port" json:"port"`
	Secret    string `yaml:"secret" json:"secret"`
	JwtExpire int    `yaml:"jwt_expire" json:"jwt_expire"` // hours
}

type DBConfig struct {
	Type     string `yaml:"type" json:"type"` // postgres or sqlite
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Name     string `yaml:"name" json:"name"`
	User     string `yaml:"user" json:"user"`
	Passwd   string `yaml:"passwd" json:"passwd"`
	MaxConn  int    `yaml:"max_conn" json:"max_conn"`
	IdleConn int    `yaml:"idle_conn" json:"idle_conn"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

type SmtpConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	From     string `yaml:"from" json:"from"`
}

type LoggerConfig struct {
	Mode       string `yaml:"mode" json:"mode"` // development or production
	FileEnable bool   `yaml:"file_enable" json:"file_enable"`
	Filename   string `yaml:"filename" json:"filename"`
}

type AppConfig struct {
	System   SysConfig    `yaml:"system" json:"system"`
	Web      WebConfig    `yaml:"web" json:"web"`
	Database DBConfig     `yaml:"database" json:"database"`
	Smtp     SmtpConfig   `yaml:"smtp" json:"smtp"`
	Logger   LoggerConfig `yaml:"logger" json:"logger"`
}

var DefaultAppConfig = &AppConfig{
	System: SysConfig{
		Appid:    "salonbook",
		Location: "Asia/Shanghai",
		Workdir:  "/var/salonbook",
		Debug:    true,
	},
	Web: WebConfig{
		Host:      "0.0.0.0",
		Port:      1816,
		Secret:    "9b6de5cc-salonbook-b24b-520e1235c321",
		JwtExpire: 24,
	},
	Database: DBConfig{
		Type:     "postgres",
		Host:     "127.0.0.1",
		Port:     5432,
		Name:     "salonbook",
		User:     "postgres",
		Passwd:   "root",
		MaxConn:  100,
		IdleConn: 10,
	},
	Logger: LoggerConfig{
		Mode:       "development",
		FileEnable: true,
		Filename:   "/var/salonbook/salonbook.log",
	},
}

func (c *AppConfig) GetLogDir() string {
	return filepath.Join(c.System.Workdir, "logs")
}

func (c *AppConfig) GetDataDir() string {
	return filepath.Join(c.System.Workdir, "data")
}

func (c *AppConfig) InitDirs() {
	_ = os.MkdirAll(c.GetLogDir(), 0o755)
	_ = os.MkdirAll(c.GetDataDir(), 0o755)
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
		var ival int
		if _, err := fmt.Sscanf(evalue, "%d", &ival); err == nil {
			*val = ival
		}
	}
}

// LoadConfig reads configuration from cfile, falling back to defaults, and
// applies SALONBOOK_* environment overrides last.
func LoadConfig(cfile string) *AppConfig {
	cfg := DefaultAppConfig
	if cfile != "" {
		if data, err := os.ReadFile(cfile); err == nil {
			cfg = new(AppConfig)
			if err := yaml.Unmarshal(data, cfg); err != nil {
				panic(fmt.Errorf("config parse %s: %w", cfile, err))
			}
		}
	}

	setEnvValue("SALONBOOK_SYSTEM_WORKDIR", &cfg.System.Workdir)
	setEnvValue("SALONBOOK_SYSTEM_LOCATION", &cfg.System.Location)
	setEnvBoolValue("SALONBOOK_SYSTEM_DEBUG", &cfg.System.Debug)

	setEnvValue("SALONBOOK_WEB_HOST", &cfg.Web.Host)
	setEnvValue("SALONBOOK_WEB_SECRET", &cfg.Web.Secret)
	setEnvIntValue("SALONBOOK_WEB_PORT", &cfg.Web.Port)

	setEnvValue("SALONBOOK_DB_TYPE", &cfg.Database.Type)
	setEnvValue("SALONBOOK_DB_HOST", &cfg.Database.Host)
	setEnvIntValue("SALONBOOK_DB_PORT", &cfg.Database.Port)
	setEnvValue("SALONBOOK_DB_NAME", &cfg.Database.Name)
	setEnvValue("SALONBOOK_DB_USER", &cfg.Database.User)
	setEnvValue("SALONBOOK_DB_PWD", &cfg.Database.Passwd)
	setEnvBoolValue("SALONBOOK_DB_DEBUG", &cfg.Database.Debug)

	setEnvValue("SALONBOOK_SMTP_HOST", &cfg.Smtp.Host)
	setEnvIntValue("SALONBOOK_SMTP_PORT", &cfg.Smtp.Port)
	setEnvValue("SALONBOOK_SMTP_USERNAME", &cfg.Smtp.Username)
	setEnvValue("SALONBOOK_SMTP_PASSWORD", &cfg.Smtp.Password)
	setEnvValue("SALONBOOK_SMTP_FROM", &cfg.Smtp.From)

	setEnvValue("SALONBOOK_LOGGER_MODE", &cfg.Logger.Mode)
	setEnvBoolValue("SALONBOOK_LOGGER_FILE_ENABLE", &cfg.Logger.FileEnable)
	setEnvValue("SALONBOOK_LOGGER_FILENAME", &cfg.Logger.Filename)

	return cfg
}
