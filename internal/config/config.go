package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/inmobium/crm-messaging/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const ConfigTagName = "env"
const ConfigDefaultTagName = "default"

var config *Config

// Config holds every env-sourced value the process needs. Only this struct
// may be used to read configuration; no direct os.Getenv access elsewhere.
// Runtime behavior toggles (verify token, auto-create flags, fallback
// template) live in the settings table, not here.
type Config struct {
	AppEnv      string `env:"APP_ENV" default:"dev"`
	AppName     string `env:"APP_NAME" default:"crm_messaging"`
	AppDebug    bool   `env:"APP_DEBUG" default:"1"`
	AppTimezone string `env:"APP_TIMEZONE" default:"America/Argentina/Buenos_Aires"`

	HttpListenAddr string `env:"HTTP_LISTEN_ADDR" validation:"mustExists"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	RedisEnable             bool   `env:"REDIS_ENABLE"`
	RedisAddr               string `env:"REDIS_ADDR"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX"`

	PromNamespace string `env:"PROM_NAMESPACE"`

	MigrationsDir string `env:"MIGRATIONS_DIR" default:"migrations"`

	MetaGraphBaseURL   string        `env:"META_GRAPH_BASE_URL" default:"https://graph.facebook.com"`
	MetaGraphVersion   string        `env:"META_GRAPH_VERSION" default:"v20.0"`
	MetaAccessToken    string        `env:"META_ACCESS_TOKEN"`
	MetaSendTimeout    time.Duration `env:"META_SEND_TIMEOUT" default:"30s"`
	MetaSendMaxRetries int           `env:"META_SEND_MAX_RETRIES" default:"0"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.New("failed to load configuration file " + path + " error: " + err.Error())
		}
	}

	_, err = env.UnmarshalFromEnviron(c)
	if err != nil {
		return errors.New("failed to map env variables to Configuration object " + " error: " + err.Error())
	}

	config = c
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

// Set replaces the process config. Tests use it to avoid touching the
// environment.
func Set(c *Config) {
	config = c
}
