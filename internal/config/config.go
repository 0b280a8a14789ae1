package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "PAYMENT"

type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Inventory InventoryConfig `mapstructure:"inventory"`
	Events    EventsConfig    `mapstructure:"events"`
	Store     StoreConfig     `mapstructure:"store"`
}

type ServiceConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type AuthConfig struct {
	Secret string `mapstructure:"secret"`
}

type InventoryConfig struct {
	Scheme  string        `mapstructure:"scheme"`
	Host    string        `mapstructure:"host"`
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
	// Simulate serves the stock check and consumes payment-completed in-process.
	Simulate     bool `mapstructure:"simulate"`
	SeedQuantity int  `mapstructure:"seed_quantity"`
}

type EventsConfig struct {
	Driver        string `mapstructure:"driver"`
	NATSURL       string `mapstructure:"nats_url"`
	ConsumerGroup string `mapstructure:"consumer_group"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "payment-service")
	v.SetDefault("service.env", "dev")
	v.SetDefault("log.level", "info")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("auth.secret", "")
	v.SetDefault("inventory.scheme", "http")
	v.SetDefault("inventory.host", "inventory-service")
	v.SetDefault("inventory.path", "/inventory/validate")
	v.SetDefault("inventory.timeout", 5*time.Second)
	v.SetDefault("inventory.simulate", false)
	v.SetDefault("inventory.seed_quantity", 100)
	v.SetDefault("events.driver", "memory")
	v.SetDefault("events.nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("events.consumer_group", "payment-service")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")
}

// Load reads defaults, then the optional YAML file at path, then PAYMENT_* environment
// variables (PAYMENT_INVENTORY_HOST overrides inventory.host).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Auth.Secret == "" {
		errs = append(errs, errors.New("auth.secret is required"))
	}
	switch c.Events.Driver {
	case "memory":
	case "nats":
		if c.Events.NATSURL == "" {
			errs = append(errs, errors.New("events.nats_url is required for the nats driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("events.driver %q is not one of memory, nats", c.Events.Driver))
	}
	switch c.Store.Driver {
	case "memory":
	case "postgres", "sqlite":
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for the %s driver", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not one of memory, postgres, sqlite", c.Store.Driver))
	}
	if !c.Inventory.Simulate && c.Inventory.Host == "" {
		errs = append(errs, errors.New("inventory.host is required unless inventory.simulate is set"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
