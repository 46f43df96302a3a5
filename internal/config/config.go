package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"

	"github.com/oncoclinic/infusion/internal/domain/capacity"
	"github.com/oncoclinic/infusion/internal/domain/duration"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	DatabaseURL    string   `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	AuthSigningKey string   `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string   `mapstructure:"AUTH_AUDIENCE"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`
	MetricsEnabled bool     `mapstructure:"METRICS_ENABLED"`

	ClinicTimezone string `mapstructure:"CLINIC_TIMEZONE"`
	ClinicOpensAt  string `mapstructure:"CLINIC_OPENS_AT"`
	ClinicClosesAt string `mapstructure:"CLINIC_CLOSES_AT"`
	ClinicWeekdays string `mapstructure:"CLINIC_WEEKDAYS"`

	CapacityConsultations     int `mapstructure:"CAPACITY_CONSULTATIONS"`
	CapacityProcedures        int `mapstructure:"CAPACITY_PROCEDURES"`
	CapacityInfusionRapid     int `mapstructure:"CAPACITY_INFUSION_RAPID"`
	CapacityInfusionMedium    int `mapstructure:"CAPACITY_INFUSION_MEDIUM"`
	CapacityInfusionLong      int `mapstructure:"CAPACITY_INFUSION_LONG"`
	CapacityInfusionExtraLong int `mapstructure:"CAPACITY_INFUSION_EXTRA_LONG"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "CORS_ORIGINS",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"METRICS_ENABLED", "CLINIC_TIMEZONE", "CLINIC_OPENS_AT", "CLINIC_CLOSES_AT", "CLINIC_WEEKDAYS",
	"CAPACITY_CONSULTATIONS", "CAPACITY_PROCEDURES", "CAPACITY_INFUSION_RAPID",
	"CAPACITY_INFUSION_MEDIUM", "CAPACITY_INFUSION_LONG", "CAPACITY_INFUSION_EXTRA_LONG",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("CLINIC_TIMEZONE", "America/Sao_Paulo")
	v.SetDefault("CLINIC_OPENS_AT", "07:00")
	v.SetDefault("CLINIC_CLOSES_AT", "19:00")
	v.SetDefault("CLINIC_WEEKDAYS", "1,2,3,4,5")
	v.SetDefault("CAPACITY_CONSULTATIONS", 40)
	v.SetDefault("CAPACITY_PROCEDURES", 20)
	v.SetDefault("CAPACITY_INFUSION_RAPID", 12)
	v.SetDefault("CAPACITY_INFUSION_MEDIUM", 8)
	v.SetDefault("CAPACITY_INFUSION_LONG", 6)
	v.SetDefault("CAPACITY_INFUSION_EXTRA_LONG", 3)

	for _, k := range keys {
		v.BindEnv(k)
	}

	// A missing .env is fine; the environment may carry everything.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location resolves CLINIC_TIMEZONE, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c.ClinicTimezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Weekdays parses CLINIC_WEEKDAYS ("1,2,3,4,5", Sunday = 0).
func (c *Config) Weekdays() ([]time.Weekday, error) {
	var out []time.Weekday
	seen := map[int]bool{}
	for _, p := range splitList(c.ClinicWeekdays) {
		d, err := strconv.Atoi(p)
		if err != nil || d < 0 || d > 6 {
			return nil, fmt.Errorf("CLINIC_WEEKDAYS: invalid weekday %q (use 0=Sunday..6=Saturday)", p)
		}
		if !seen[d] {
			seen[d] = true
			out = append(out, time.Weekday(d))
		}
	}
	return out, nil
}

// Capacity builds the daily capacity configuration for the evaluator.
func (c *Config) Capacity() (capacity.Config, error) {
	days, err := c.Weekdays()
	if err != nil {
		return capacity.Config{}, err
	}
	return capacity.Config{
		Consultations: c.CapacityConsultations,
		Procedures:    c.CapacityProcedures,
		Infusion: map[duration.Bucket]int{
			duration.Rapid:     c.CapacityInfusionRapid,
			duration.Medium:    c.CapacityInfusionMedium,
			duration.Long:      c.CapacityInfusionLong,
			duration.ExtraLong: c.CapacityInfusionExtraLong,
		},
		OpensAt:  c.ClinicOpensAt,
		ClosesAt: c.ClinicClosesAt,
		Weekdays: days,
	}, nil
}

// Validate checks that the configuration is safe to run. Outside
// development a signing key is mandatory so bearer tokens are enforced.
func (c *Config) Validate() error {
	if !c.IsDev() && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY of at least 32 bytes is required when ENV=%q", c.Env)
	}
	if _, err := time.LoadLocation(c.ClinicTimezone); err != nil {
		return fmt.Errorf("CLINIC_TIMEZONE: %w", err)
	}

	opens, ok := duration.ParseClock(c.ClinicOpensAt)
	if !ok {
		return fmt.Errorf("CLINIC_OPENS_AT must be HH:MM, got %q", c.ClinicOpensAt)
	}
	closes, ok := duration.ParseClock(c.ClinicClosesAt)
	if !ok {
		return fmt.Errorf("CLINIC_CLOSES_AT must be HH:MM, got %q", c.ClinicClosesAt)
	}
	if opens >= closes {
		return fmt.Errorf("CLINIC_OPENS_AT (%s) must be before CLINIC_CLOSES_AT (%s)", c.ClinicOpensAt, c.ClinicClosesAt)
	}

	if _, err := c.Weekdays(); err != nil {
		return err
	}

	limits := map[string]int{
		"CAPACITY_CONSULTATIONS":       c.CapacityConsultations,
		"CAPACITY_PROCEDURES":          c.CapacityProcedures,
		"CAPACITY_INFUSION_RAPID":      c.CapacityInfusionRapid,
		"CAPACITY_INFUSION_MEDIUM":     c.CapacityInfusionMedium,
		"CAPACITY_INFUSION_LONG":       c.CapacityInfusionLong,
		"CAPACITY_INFUSION_EXTRA_LONG": c.CapacityInfusionExtraLong,
	}
	for _, k := range keys {
		if v, ok := limits[k]; ok && v < 0 {
			return fmt.Errorf("%s must not be negative, got %d", k, v)
		}
	}
	return nil
}
