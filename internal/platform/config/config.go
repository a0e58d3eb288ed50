// Package config handles environment-based configuration loading.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	HTTP struct {
		Addr string `default:":8080"`
	}
	Log struct {
		Level string `default:"info"`
	}
	DB struct {
		URL             string        `required:"true"`
		MaxIdleConns    int           `default:"2"`
		MaxOpenConns    int           `default:"10"`
		ConnMaxLifetime time.Duration `default:"1h"`
		ConnMaxIdleTime time.Duration `default:"0"`
		PingTimeout     time.Duration `default:"5s"`
	}
	Redis struct {
		Addr     string `default:"localhost:6379"`
		Password string `default:""`
		CacheDB  int    `default:"0"`
		QueueDB  int    `default:"1"`
	}
	Cache struct {
		IssueListTTL time.Duration `default:"60s"`
	}
	Security struct {
		AdminKey string `required:"true"`
	}
	Workers struct {
		Notify struct {
			Stream   string `default:"issue_events"`
			Group    string `default:"notify_group"`
			Consumer string `default:"notify_consumer"`
			URL      string `default:"http://localhost:9090/notifications"`
		}
		OutboxRelay struct {
			Stream string `default:"issue_events"`
		}
	}
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("CIVIC", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
