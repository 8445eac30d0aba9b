package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"booking-reconciler/internal/balance"
	"booking-reconciler/internal/domain"
)

// Config represents the application configuration
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	JWT            JWTConfig            `yaml:"jwt"`
	Cron           CronConfig           `yaml:"cron"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	CORS           CORSConfig           `yaml:"cors"`
	Redis          RedisConfig          `yaml:"redis"`
	SendGrid       SendGridConfig       `yaml:"sendgrid"`
	FCM            FCMConfig            `yaml:"fcm"`
	Log            LogConfig            `yaml:"log"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation"`
	Scheduler      SchedulerConfig      `yaml:"scheduler"`
}

// ServerConfig contains HTTP and gRPC listener settings
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "postgres" or "memory"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// JWTConfig contains admin token settings
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// CronConfig holds the bcrypt hash of the shared cron secret
type CronConfig struct {
	SecretHash string `yaml:"secret_hash"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// RedisConfig points at the run lock store. An empty address keeps the lock
// in process.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SendGridConfig contains alert email settings
type SendGridConfig struct {
	APIKey          string   `yaml:"api_key"`
	FromEmail       string   `yaml:"from_email"`
	FromName        string   `yaml:"from_name"`
	AlertRecipients []string `yaml:"alert_recipients"`
	MinSeverity     string   `yaml:"min_severity"`
}

// FCMConfig enables push notifications to an on-call topic through Firebase
// Cloud Messaging. An empty credentials file disables push.
type FCMConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	ProjectID       string `yaml:"project_id"`
	Topic           string `yaml:"topic"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// SeverityBreakpoints are the low/medium/high upper bounds in currency units.
type SeverityBreakpoints struct {
	Low    string `yaml:"low"`
	Medium string `yaml:"medium"`
	High   string `yaml:"high"`
}

// ReconciliationConfig holds every reconciliation threshold. Amounts are
// decimal strings so they never pass through a float.
type ReconciliationConfig struct {
	Epsilon              string              `yaml:"epsilon"`
	AutoCorrectThreshold string              `yaml:"auto_correct_threshold"`
	SeverityBreakpoints  SeverityBreakpoints `yaml:"severity_breakpoints"`
	BatchLimit           int                 `yaml:"batch_limit"`
	Workers              int                 `yaml:"workers"`
	RunTimeout           time.Duration       `yaml:"run_timeout"`
	AllowNegativeBalance bool                `yaml:"allow_negative_balance"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	ReconcileBalances string `yaml:"reconcile_balances"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies environment overrides and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables if present
	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_DRIVER"); val != "" {
		c.Database.Driver = val
	}
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// Secrets
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}
	if val := os.Getenv("CRON_SECRET_HASH"); val != "" {
		c.Cron.SecretHash = val
	}
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.SendGrid.APIKey = val
	}
	if val := os.Getenv("FCM_CREDENTIALS_FILE"); val != "" {
		c.FCM.CredentialsFile = val
	}

	// Redis
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		c.Redis.Addr = val
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		c.Redis.Password = val
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	// Reconciliation
	if val := os.Getenv("RECONCILE_AUTO_CORRECT_THRESHOLD"); val != "" {
		c.Reconciliation.AutoCorrectThreshold = val
	}

	// Set defaults for log if not configured
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid and fills in defaults
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid grpc port: %d", c.Server.GRPCPort)
	}

	// Database validation
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	default:
		return fmt.Errorf("unknown database driver: %q", c.Database.Driver)
	}

	// JWT validation
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}

	if c.Cron.SecretHash != "" && !strings.HasPrefix(c.Cron.SecretHash, "$2") {
		return fmt.Errorf("cron secret_hash must be a bcrypt hash")
	}

	// Rate limit defaults
	if c.RateLimit.RequestsPerMinute <= 0 {
		c.RateLimit.RequestsPerMinute = 60
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 10
	}

	// SendGrid
	if c.SendGrid.MinSeverity == "" {
		c.SendGrid.MinSeverity = string(domain.SeverityHigh)
	}
	if _, err := domain.ParseSeverity(c.SendGrid.MinSeverity); err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if c.SendGrid.APIKey != "" && c.SendGrid.FromEmail == "" {
		return fmt.Errorf("sendgrid from_email is required when api_key is set")
	}
	if c.SendGrid.FromName == "" {
		c.SendGrid.FromName = "Booking Reconciler"
	}

	// FCM
	if c.FCM.CredentialsFile != "" && c.FCM.Topic == "" {
		c.FCM.Topic = "reconciliation-alerts"
	}

	// Reconciliation defaults
	r := &c.Reconciliation
	if r.Epsilon == "" {
		r.Epsilon = "0.01"
	}
	if r.AutoCorrectThreshold == "" {
		r.AutoCorrectThreshold = "0.01"
	}
	if r.SeverityBreakpoints.Low == "" {
		r.SeverityBreakpoints.Low = "1"
	}
	if r.SeverityBreakpoints.Medium == "" {
		r.SeverityBreakpoints.Medium = "10"
	}
	if r.SeverityBreakpoints.High == "" {
		r.SeverityBreakpoints.High = "100"
	}
	if r.BatchLimit <= 0 {
		r.BatchLimit = 1000
	}
	if r.Workers <= 0 {
		r.Workers = 4
	}
	if r.RunTimeout <= 0 {
		r.RunTimeout = 10 * time.Minute
	}
	if _, err := c.ReconciliationPolicy(); err != nil {
		return err
	}

	// Scheduler defaults
	if c.Scheduler.ReconcileBalances == "" {
		c.Scheduler.ReconcileBalances = "0 0 3 * * *" // 3 AM UTC
	}

	return nil
}

// ReconciliationPolicy builds the thresholds the classifier and the
// auto-correction policy compare against.
func (c *Config) ReconciliationPolicy() (balance.Policy, error) {
	r := c.Reconciliation
	parse := func(name, val string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(val)
		if err != nil {
			return decimal.Zero, fmt.Errorf("reconciliation %s: %q is not a decimal", name, val)
		}
		return domain.RoundMoney(d), nil
	}

	var p balance.Policy
	var err error
	if p.Epsilon, err = parse("epsilon", r.Epsilon); err != nil {
		return p, err
	}
	if p.AutoCorrectThreshold, err = parse("auto_correct_threshold", r.AutoCorrectThreshold); err != nil {
		return p, err
	}
	if p.Breakpoints.Low, err = parse("severity_breakpoints.low", r.SeverityBreakpoints.Low); err != nil {
		return p, err
	}
	if p.Breakpoints.Medium, err = parse("severity_breakpoints.medium", r.SeverityBreakpoints.Medium); err != nil {
		return p, err
	}
	if p.Breakpoints.High, err = parse("severity_breakpoints.high", r.SeverityBreakpoints.High); err != nil {
		return p, err
	}
	p.AllowNegative = r.AllowNegativeBalance
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("reconciliation: %w", err)
	}
	return p, nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetGRPCAddress returns the gRPC health server address
func (c *Config) GetGRPCAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GRPCPort)
}
