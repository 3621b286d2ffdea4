package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/prepstack/attempt-service/internal/models"
)

// Config is the full service configuration, loaded once at startup.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Casdoor   CasdoorConfig
	Engine    EngineConfig
	Analytics AnalyticsConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	Environment     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	LogLevel        slog.Level
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN builds the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
}

type CasdoorConfig struct {
	Endpoint     string
	ClientID     string
	ClientSecret string
	Certificate  string
	Organization string
	Application  string
}

// EngineConfig tunes the anti-cheat monitor. Severity weights, the event-type
// vocabulary, and the escalation thresholds are deployment configuration, not
// hard-coded constants.
type EngineConfig struct {
	// SeverityWeights maps a severity label to its score contribution.
	SeverityWeights map[models.CheatSeverity]int

	// SeverityByType classifies known violation types. Unknown types fall
	// back to DefaultSeverity.
	SeverityByType  map[string]models.CheatSeverity
	DefaultSeverity models.CheatSeverity

	// Escalation thresholds on the cumulative cheating score.
	FlaggedThreshold   int
	TerminateThreshold int
}

// AnalyticsConfig tunes the recommendation thresholds of the analytics
// generator.
type AnalyticsConfig struct {
	// Accuracy (percent) below which a "review fundamentals" suggestion
	// is surfaced.
	LowAccuracyThreshold float64

	// Per-subject accuracy (percent) below which the subject is called out.
	WeakSubjectThreshold float64

	// A question taking longer than this many seconds counts as slow.
	SlowQuestionSeconds int

	// Number of slow questions above which a time-management suggestion
	// is surfaced.
	SlowQuestionCountThreshold int
}

// DefaultEngineConfig returns the severity table used when no overrides are
// configured: low=1, medium=3, high=5; flagged at 5, terminated at 10.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		SeverityWeights: map[models.CheatSeverity]int{
			models.SeverityLow:    1,
			models.SeverityMedium: 3,
			models.SeverityHigh:   5,
		},
		SeverityByType: map[string]models.CheatSeverity{
			"tab_switch":          models.SeverityLow,
			"window_blur":         models.SeverityLow,
			"copy_attempt":        models.SeverityMedium,
			"paste_attempt":       models.SeverityMedium,
			"right_click":         models.SeverityLow,
			"fullscreen_exit":     models.SeverityMedium,
			"devtools_open":       models.SeverityHigh,
			"multiple_faces":      models.SeverityHigh,
			"no_face_detected":    models.SeverityMedium,
			"screen_share":        models.SeverityHigh,
			"external_monitor":    models.SeverityHigh,
			"suspicious_network":  models.SeverityMedium,
			"identity_mismatch":   models.SeverityHigh,
			"prohibited_software": models.SeverityHigh,
		},
		DefaultSeverity:    models.SeverityMedium,
		FlaggedThreshold:   5,
		TerminateThreshold: 10,
	}
}

// DefaultAnalyticsConfig returns the recommendation thresholds used when no
// overrides are configured.
func DefaultAnalyticsConfig() AnalyticsConfig {
	return AnalyticsConfig{
		LowAccuracyThreshold:       50,
		WeakSubjectThreshold:       40,
		SlowQuestionSeconds:        120,
		SlowQuestionCountThreshold: 5,
	}
}

// LoadConfig reads configuration from the environment, with .env support for
// local development.
func LoadConfig() (*Config, error) {
	// Missing .env is fine in deployed environments
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			Environment:     getEnv("ENVIRONMENT", "development"),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			LogLevel:        parseLogLevel(getEnv("LOG_LEVEL", "info")),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "attempt_service"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Brokers: splitAndTrim(getEnv("KAFKA_BROKERS", "localhost:9092")),
		},
		Casdoor: CasdoorConfig{
			Endpoint:     getEnv("CASDOOR_ENDPOINT", ""),
			ClientID:     getEnv("CASDOOR_CLIENT_ID", ""),
			ClientSecret: getEnv("CASDOOR_CLIENT_SECRET", ""),
			Certificate:  getEnv("CASDOOR_CERTIFICATE", ""),
			Organization: getEnv("CASDOOR_ORGANIZATION", ""),
			Application:  getEnv("CASDOOR_APPLICATION", ""),
		},
		Engine:    DefaultEngineConfig(),
		Analytics: DefaultAnalyticsConfig(),
	}

	// Threshold overrides
	cfg.Engine.FlaggedThreshold = getEnvInt("CHEAT_FLAGGED_THRESHOLD", cfg.Engine.FlaggedThreshold)
	cfg.Engine.TerminateThreshold = getEnvInt("CHEAT_TERMINATE_THRESHOLD", cfg.Engine.TerminateThreshold)
	cfg.Analytics.LowAccuracyThreshold = getEnvFloat("ANALYTICS_LOW_ACCURACY", cfg.Analytics.LowAccuracyThreshold)
	cfg.Analytics.WeakSubjectThreshold = getEnvFloat("ANALYTICS_WEAK_SUBJECT", cfg.Analytics.WeakSubjectThreshold)
	cfg.Analytics.SlowQuestionSeconds = getEnvInt("ANALYTICS_SLOW_QUESTION_SECONDS", cfg.Analytics.SlowQuestionSeconds)
	cfg.Analytics.SlowQuestionCountThreshold = getEnvInt("ANALYTICS_SLOW_QUESTION_COUNT", cfg.Analytics.SlowQuestionCountThreshold)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Engine.FlaggedThreshold <= 0 {
		return fmt.Errorf("flagged threshold must be positive")
	}
	if c.Engine.TerminateThreshold <= c.Engine.FlaggedThreshold {
		return fmt.Errorf("terminate threshold must exceed flagged threshold")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
