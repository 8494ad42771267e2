package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"labovik/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig         `yaml:"app"`
	Database   DatabaseConfig    `yaml:"database"`
	Redis      RedisConfig       `yaml:"redis"`
	Monitoring MonitoringConfig  `yaml:"monitoring"`
	Logging    LoggingConfig     `yaml:"logging"`
	API        APIConfig         `yaml:"api"`
	Policy     PolicyConfig      `yaml:"policy"`
	Resources  []models.Resource `yaml:"resources"`
	Budgets    []BudgetSeed      `yaml:"budgets"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// PolicyConfig задает политики движка бронирования.
type PolicyConfig struct {
	LabCutoffHours       int `yaml:"lab_cutoff_hours"`
	EquipmentCutoffHours int `yaml:"equipment_cutoff_hours"`
	MaxBookingDays       int `yaml:"max_booking_days"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
	LockWaitMillis       int `yaml:"lock_wait_millis"`
}

// LockWait возвращает таймаут захвата блокировки ресурса.
func (p PolicyConfig) LockWait() time.Duration {
	return time.Duration(p.LockWaitMillis) * time.Millisecond
}

// SweepInterval возвращает период фонового поиска неявок.
func (p PolicyConfig) SweepInterval() time.Duration {
	return time.Duration(p.SweepIntervalSeconds) * time.Second
}

// BudgetSeed describes one budget account created at startup.
type BudgetSeed struct {
	Scope        string  `yaml:"scope"`
	Category     string  `yaml:"category"`
	FiscalPeriod string  `yaml:"fiscal_period"`
	Allocated    float64 `yaml:"allocated"`
	PeriodStart  string  `yaml:"period_start"` // YYYY-MM-DD
	PeriodEnd    string  `yaml:"period_end"`
}

func (s BudgetSeed) Key() models.AccountKey {
	return models.AccountKey{Scope: s.Scope, Category: s.Category, FiscalPeriod: s.FiscalPeriod}
}

func Load(configPath string) (*Config, error) {
	// Загружаем .env файл если существует
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if err := ValidateResources(c.Resources); err != nil {
		return err
	}

	return ValidateBudgets(c.Budgets)
}

func ValidateResources(resources []models.Resource) error {
	seen := make(map[string]bool)
	for _, r := range resources {
		if r.ID == "" {
			return fmt.Errorf("resource %q has empty id", r.Name)
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate resource id: %s", r.ID)
		}
		seen[r.ID] = true

		if r.Kind != models.KindLab && r.Kind != models.KindEquipmentUnit {
			return fmt.Errorf("resource %s has unknown kind %q", r.ID, r.Kind)
		}
		if r.HourlyRate < 0 {
			return fmt.Errorf("resource %s has negative hourly rate", r.ID)
		}
		for _, w := range r.Hours {
			if w.Weekday < 0 || w.Weekday > 6 {
				return fmt.Errorf("resource %s has invalid weekday %d", r.ID, w.Weekday)
			}
			if _, err := time.Parse("15:04", w.Open); err != nil {
				return fmt.Errorf("resource %s has invalid open time %q", r.ID, w.Open)
			}
			if _, err := time.Parse("15:04", w.Close); err != nil {
				return fmt.Errorf("resource %s has invalid close time %q", r.ID, w.Close)
			}
		}
	}
	return nil
}

func ValidateBudgets(budgets []BudgetSeed) error {
	seen := make(map[string]bool)
	for _, b := range budgets {
		key := b.Key().String()
		if b.Scope == "" || b.Category == "" || b.FiscalPeriod == "" {
			return fmt.Errorf("budget %q has empty key component", key)
		}
		if seen[key] {
			return fmt.Errorf("duplicate budget account: %s", key)
		}
		seen[key] = true

		if b.Allocated < 0 {
			return fmt.Errorf("budget %s has negative allocation", key)
		}
		start, err := time.Parse("2006-01-02", b.PeriodStart)
		if err != nil {
			return fmt.Errorf("budget %s has invalid period_start %q", key, b.PeriodStart)
		}
		end, err := time.Parse("2006-01-02", b.PeriodEnd)
		if err != nil {
			return fmt.Errorf("budget %s has invalid period_end %q", key, b.PeriodEnd)
		}
		if !start.Before(end) {
			return fmt.Errorf("budget %s period_start must precede period_end", key)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	// Policy defaults
	if c.Policy.LabCutoffHours == 0 {
		c.Policy.LabCutoffHours = models.DefaultLabCutoffHours
	}
	if c.Policy.EquipmentCutoffHours == 0 {
		c.Policy.EquipmentCutoffHours = models.DefaultEquipmentCutoffHours
	}
	if c.Policy.MaxBookingDays == 0 {
		c.Policy.MaxBookingDays = models.DefaultMaxBookingDays
	}
	if c.Policy.SweepIntervalSeconds == 0 {
		c.Policy.SweepIntervalSeconds = models.DefaultSweepIntervalSeconds
	}
	if c.Policy.LockWaitMillis == 0 {
		c.Policy.LockWaitMillis = models.DefaultLockWaitMillis
	}
}
