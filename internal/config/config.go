package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	DatabaseURL    string   `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32    `mapstructure:"DB_MIN_CONNS"`
	DefaultClinic  string   `mapstructure:"DEFAULT_CLINIC"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	AuthSigningKey string   `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string   `mapstructure:"AUTH_ISSUER"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`
	MigrationsDir  string   `mapstructure:"MIGRATIONS_DIR"`

	// Background maintenance
	RedisURL          string `mapstructure:"REDIS_URL"`
	JobsQueue         string `mapstructure:"JOBS_QUEUE"`
	JobsConcurrency   int    `mapstructure:"JOBS_CONCURRENCY"`
	LinkageRepairCron string `mapstructure:"LINKAGE_REPAIR_CRON"`
	AuditCron         string `mapstructure:"AUDIT_CRON"`

	// Appointment status intake
	KafkaBrokers          []string `mapstructure:"KAFKA_BROKERS"`
	KafkaAppointmentTopic string   `mapstructure:"KAFKA_APPOINTMENT_TOPIC"`
	KafkaGroupID          string   `mapstructure:"KAFKA_GROUP_ID"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DEFAULT_CLINIC",
	"CORS_ORIGINS", "AUTH_SIGNING_KEY", "AUTH_ISSUER", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"MIGRATIONS_DIR", "REDIS_URL", "JOBS_QUEUE", "JOBS_CONCURRENCY", "LINKAGE_REPAIR_CRON",
	"AUDIT_CRON", "KAFKA_BROKERS", "KAFKA_APPOINTMENT_TOPIC", "KAFKA_GROUP_ID",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DEFAULT_CLINIC", "main")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("AUTH_ISSUER", "endoflow")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("JOBS_QUEUE", "toothchart")
	v.SetDefault("JOBS_CONCURRENCY", 2)
	v.SetDefault("LINKAGE_REPAIR_CRON", "*/15 * * * *")
	v.SetDefault("AUDIT_CRON", "30 2 * * *")
	v.SetDefault("KAFKA_APPOINTMENT_TOPIC", "appointments.status")
	v.SetDefault("KAFKA_GROUP_ID", "endoflow-toothchart")

	for _, k := range keys {
		v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers, v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ENV=development, bearer tokens are not verified and every request acts as admin.")
	}

	return cfg, nil
}

// splitList re-reads comma-separated env values so entries come out trimmed.
func splitList(parsed []string, raw string) []string {
	if raw == "" {
		return parsed
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// JobsEnabled reports whether the scheduled maintenance worker can run.
func (c *Config) JobsEnabled() bool {
	return c.RedisURL != ""
}

// EventsEnabled reports whether appointment events should be consumed.
func (c *Config) EventsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Validate refuses configurations that would run without authentication or
// with schedules asynq cannot register.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if c.AuthSigningKey == "" {
			return fmt.Errorf("AUTH_SIGNING_KEY is required when ENV=%q", c.Env)
		}
		if len(c.AuthSigningKey) < 32 {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes, got %d", len(c.AuthSigningKey))
		}
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.JobsEnabled() {
		if strings.TrimSpace(c.JobsQueue) == "" {
			return fmt.Errorf("JOBS_QUEUE must not be empty")
		}
		if c.JobsConcurrency < 1 {
			return fmt.Errorf("JOBS_CONCURRENCY must be at least 1, got %d", c.JobsConcurrency)
		}
		for name, spec := range map[string]string{
			"LINKAGE_REPAIR_CRON": c.LinkageRepairCron,
			"AUDIT_CRON":          c.AuditCron,
		} {
			if spec == "" {
				continue
			}
			if _, err := cron.ParseStandard(spec); err != nil {
				return fmt.Errorf("%s is not a valid cron spec: %w", name, err)
			}
		}
	}
	if c.EventsEnabled() && c.KafkaAppointmentTopic == "" {
		return fmt.Errorf("KAFKA_APPOINTMENT_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}
