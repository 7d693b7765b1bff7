package config

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v9"
)

const (
	StoreSheets = "sheets"
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

type Config struct {
	Port         string `env:"PORT" envDefault:"8080"`
	StoreBackend string `env:"STORE_BACKEND" envDefault:"sheets"`
	Timezone     string `env:"TIMEZONE" envDefault:"Asia/Tokyo"`

	SheetID               string `env:"SHEET_ID"`
	SheetName             string `env:"SHEET_NAME" envDefault:"sheet1"`
	GoogleCredentialsFile string `env:"GOOGLE_CREDENTIALS_FILE"`

	DBUser                 string `env:"DB_USER"`
	DBPassword             string `env:"DB_PASSWORD"`
	DBHost                 string `env:"DB_HOST"` // e.g. tcp(host:3306) or unix(/cloudsql/instance)
	DBName                 string `env:"DB_NAME"`
	DBPort                 string `env:"DB_PORT" envDefault:"3306"`
	InstanceConnectionName string `env:"INSTANCE_CONNECTION_NAME"`

	FirebaseProjectID string `env:"FIREBASE_PROJECT_ID"`
	StorageBucket     string `env:"STORAGE_BUCKET"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM" envDefault:"noreply@fleamarket.local"`

	AdminUIDs       []string `env:"ADMIN_UIDS" envSeparator:","`
	WriteRatePerMin int      `env:"WRITE_RATE_PER_MIN" envDefault:"30"`

	GitSHA    string `env:"GIT_SHA"`
	BuildTime string `env:"BUILD_TIME"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the selected store backend has what it needs.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreSheets:
		if c.SheetID == "" {
			return fmt.Errorf("SHEET_ID is required for store backend %q", c.StoreBackend)
		}
	case StoreMySQL:
		if !c.HasDB() {
			return fmt.Errorf("DB_USER, DB_HOST and DB_NAME are required for store backend %q", c.StoreBackend)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.WriteRatePerMin < 0 {
		return fmt.Errorf("WRITE_RATE_PER_MIN must not be negative")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return nil
}

// HasDB reports whether MySQL connection settings are present.
func (c *Config) HasDB() bool {
	return c.DBUser != "" && c.DBHost != "" && c.DBName != ""
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
