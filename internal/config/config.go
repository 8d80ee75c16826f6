package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config конфигурация сервиса витрины
type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	SeedCatalog bool   `yaml:"seed_catalog"`
	Cart        Cart   `yaml:"cart"`
	Store       Store  `yaml:"store"`
}

// Cart параметры движка корзины
type Cart struct {
	Key string `yaml:"key"`
}

// Store носитель состояния корзины
type Store struct {
	Driver     string        `yaml:"driver"`
	Dir        string        `yaml:"dir"`
	SQLitePath string        `yaml:"sqlite_path"`
	RedisAddr  string        `yaml:"redis_addr"`
	RedisTTL   time.Duration `yaml:"redis_ttl"`
}

// Default значения по умолчанию: in-memory носитель, демо-каталог
func Default() Config {
	return Config{
		HTTPAddr:    ":9091",
		LogLevel:    "info",
		LogFormat:   "json",
		SeedCatalog: true,
		Cart:        Cart{Key: "cart"},
		Store: Store{
			Driver:     DriverMemory,
			Dir:        "./data",
			SQLitePath: "./data/storefront.db",
			RedisAddr:  "localhost:6379",
		},
	}
}

// Load собирает конфигурацию: значения по умолчанию, затем YAML-файл из
// STOREFRONT_CONFIG (если задан), затем переменные окружения.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("STOREFRONT_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %q: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.HTTPAddr = getEnv("STOREFRONT_ADDR", c.HTTPAddr)
	c.LogLevel = getEnv("STOREFRONT_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("STOREFRONT_LOG_FORMAT", c.LogFormat)
	c.Cart.Key = getEnv("STOREFRONT_CART_KEY", c.Cart.Key)
	c.Store.Driver = strings.ToLower(getEnv("STOREFRONT_STORE_DRIVER", c.Store.Driver))
	c.Store.Dir = getEnv("STOREFRONT_STORE_DIR", c.Store.Dir)
	c.Store.SQLitePath = getEnv("STOREFRONT_SQLITE_PATH", c.Store.SQLitePath)
	c.Store.RedisAddr = getEnv("STOREFRONT_REDIS_ADDR", c.Store.RedisAddr)

	if v := os.Getenv("STOREFRONT_REDIS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("STOREFRONT_REDIS_TTL: %w", err)
		}
		c.Store.RedisTTL = d
	}
	if v := os.Getenv("STOREFRONT_SEED_CATALOG"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("STOREFRONT_SEED_CATALOG: %w", err)
		}
		c.SeedCatalog = b
	}
	return nil
}

// Validate проверяет согласованность значений
func (c Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	if c.Cart.Key == "" {
		errs = append(errs, errors.New("cart.key is required"))
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverFile:
		if c.Store.Dir == "" {
			errs = append(errs, errors.New("store.dir is required for the file driver"))
		}
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required for the sqlite driver"))
		}
	case DriverRedis:
		if c.Store.RedisAddr == "" {
			errs = append(errs, errors.New("store.redis_addr is required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if c.Store.RedisTTL < 0 {
		errs = append(errs, errors.New("store.redis_ttl must not be negative"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
