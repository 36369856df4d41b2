package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"github.com/SGNL-ai/stockfile/pkg/logging"
)

const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
)

var envVarRegex = regexp.MustCompile(`^\$\{([^}]+)\}$`)

type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Inventory InventoryConfig `yaml:"inventory"`
	Backup    BackupConfig    `yaml:"backup"`
	Logging   logging.Config  `yaml:"logging"`
	Auth      AuthConfig      `yaml:"auth"`
	CORS      CORSConfig      `yaml:"cors"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type StorageConfig struct {
	Driver   string `yaml:"driver"`
	FilePath string `yaml:"filePath"`
	DBPath   string `yaml:"dbPath"`
}

type InventoryConfig struct {
	VATRate        string `yaml:"vatRate"`
	DefaultPerPage int    `yaml:"defaultPerPage"`
}

type BackupConfig struct {
	Dir             string `yaml:"dir"`
	Schedule        string `yaml:"schedule"`
	MaxBackups      int    `yaml:"maxBackups"`
	LowStockReport  string `yaml:"lowStockReport"`
	DisableSchedule bool   `yaml:"disableSchedule"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret"`
	Issuer    string `yaml:"issuer"`
}

func (a AuthConfig) Enabled() bool {
	return a.JWTSecret != ""
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// VAT returns the parsed VAT rate; Validate guarantees it parses.
func (c *AppConfig) VAT() decimal.Decimal {
	return decimal.RequireFromString(c.Inventory.VATRate)
}

func Default() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Addr:            "127.0.0.1:5000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Driver:   StorageFile,
			FilePath: "data/stock.json",
			DBPath:   "data/stock.db",
		},
		Inventory: InventoryConfig{
			VATRate:        "0.20",
			DefaultPerPage: 10,
		},
		Backup: BackupConfig{
			Dir:            "data/backups",
			Schedule:       "@daily",
			MaxBackups:     10,
			LowStockReport: "@every 1h",
		},
		Logging: logging.Config{
			Level:    "info",
			Encoding: "json",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
	}
}

// LoadDotEnv loads a .env file when present.
func LoadDotEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error loading .env file: %w", err)
	}

	return nil
}

// GetAppConfig reads the YAML config at path on top of the defaults. An empty
// path uses defaults and environment overrides only.
func GetAppConfig(path string) (*AppConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.UnmarshalStrict(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal YAML configuration: %w", err)
		}
	}

	if err := resolveEnvVariables(cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *AppConfig) {
	overrides := map[string]*string{
		"STOCK_FILE_PATH":      &cfg.Storage.FilePath,
		"STOCK_STORAGE_DRIVER": &cfg.Storage.Driver,
		"STOCK_DB_PATH":        &cfg.Storage.DBPath,
		"STOCK_LISTEN_ADDR":    &cfg.Server.Addr,
		"STOCK_BACKUP_DIR":     &cfg.Backup.Dir,
		"STOCK_JWT_SECRET":     &cfg.Auth.JWTSecret,
		"LOG_LEVEL":            &cfg.Logging.Level,
	}

	for key, field := range overrides {
		if value, ok := os.LookupEnv(key); ok && value != "" {
			*field = value
		}
	}
}

func (c *AppConfig) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server address must not be empty")
	}

	switch c.Storage.Driver {
	case StorageFile:
		if c.Storage.FilePath == "" {
			return errors.New("storage filePath must be set for the file driver")
		}
	case StorageSQLite:
		if c.Storage.DBPath == "" {
			return errors.New("storage dbPath must be set for the sqlite driver")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}

	vat, err := decimal.NewFromString(c.Inventory.VATRate)
	if err != nil {
		return fmt.Errorf("invalid VAT rate %q: %v", c.Inventory.VATRate, err)
	}

	if vat.IsNegative() || vat.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("VAT rate must be in [0, 1), got %s", c.Inventory.VATRate)
	}

	if c.Inventory.DefaultPerPage < 1 || c.Inventory.DefaultPerPage > 100 {
		return fmt.Errorf("defaultPerPage must be between 1 and 100, got %d", c.Inventory.DefaultPerPage)
	}

	if c.Backup.MaxBackups < 1 {
		return errors.New("backup maxBackups must be at least 1")
	}

	if !c.Backup.DisableSchedule {
		for _, spec := range []string{c.Backup.Schedule, c.Backup.LowStockReport} {
			if spec == "" {
				continue
			}

			if _, err := cron.ParseStandard(spec); err != nil {
				return fmt.Errorf("invalid schedule %q: %v", spec, err)
			}
		}
	}

	if c.Auth.Enabled() && len(c.Auth.JWTSecret) < 16 {
		return errors.New("auth jwtSecret must be at least 16 characters")
	}

	return nil
}

func resolveEnvVariablesUtil(v reflect.Value) error {
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)

		switch field.Kind() {
		case reflect.String:
			resolved, err := resolveEnvString(field.String())
			if err != nil {
				return err
			}

			field.SetString(resolved)
		case reflect.Slice:
			if field.Type().Elem().Kind() != reflect.String {
				continue
			}

			for j := 0; j < field.Len(); j++ {
				resolved, err := resolveEnvString(field.Index(j).String())
				if err != nil {
					return err
				}

				field.Index(j).SetString(resolved)
			}
		case reflect.Struct:
			if err := resolveEnvVariablesUtil(field); err != nil {
				return err
			}
		}
	}

	return nil
}

func resolveEnvString(value string) (string, error) {
	matches := envVarRegex.FindStringSubmatch(strings.TrimSpace(value))
	if len(matches) < 2 {
		return value, nil
	}

	envValue, exists := os.LookupEnv(matches[1])
	if !exists {
		return "", fmt.Errorf("environment variable %s not set", matches[1])
	}

	return envValue, nil
}

func resolveEnvVariables(cfg *AppConfig) error {
	return resolveEnvVariablesUtil(reflect.ValueOf(cfg))
}
