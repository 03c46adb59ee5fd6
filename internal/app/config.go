package app

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/homehero/pulse/internal/logger"
	"github.com/homehero/pulse/internal/utils"
)

type Config struct {
	ServiceName       string
	Environment       string
	Port              string
	JWTSecretKey      string
	AllowOrigins      []string
	ReportTimezone    string
	AnalyticsCacheTTL time.Duration
	TrendThreshold    float64
	AttributionWindow time.Duration
	IngestQueueSize   int
	RetentionDays     int
	ReportLocation    *time.Location
}

// fileConfig mirrors the optional CONFIG_FILE yaml. Environment variables
// always win over file values.
type fileConfig struct {
	ServiceName           string   `yaml:"service_name"`
	Environment           string   `yaml:"environment"`
	Port                  string   `yaml:"port"`
	JWTSecretKey          string   `yaml:"jwt_secret_key"`
	AllowOrigins          []string `yaml:"allow_origins"`
	ReportTimezone        string   `yaml:"report_timezone"`
	AnalyticsCacheTTLSecs int      `yaml:"analytics_cache_ttl_seconds"`
	TrendThreshold        float64  `yaml:"trend_threshold"`
	AttributionWindowDays int      `yaml:"attribution_window_days"`
	IngestQueueSize       int      `yaml:"ingest_queue_size"`
	RetentionDays         int      `yaml:"retention_days"`
}

func LoadConfig(log *logger.Logger) Config {
	var file fileConfig
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Warn("Could not read config file, falling back to env", "path", path, "error", err)
		} else if err := yaml.Unmarshal(raw, &file); err != nil {
			log.Warn("Could not parse config file, falling back to env", "path", path, "error", err)
		}
	}

	cfg := Config{
		ServiceName:       utils.GetEnv("SERVICE_NAME", fallback(file.ServiceName, "pulse"), log),
		Environment:       utils.GetEnv("APP_ENV", fallback(file.Environment, "development"), log),
		Port:              utils.GetEnv("PORT", fallback(file.Port, "8080"), log),
		JWTSecretKey:      utils.GetEnv("JWT_SECRET_KEY", fallback(file.JWTSecretKey, "defaultsecret"), log),
		ReportTimezone:    utils.GetEnv("REPORT_TIMEZONE", fallback(file.ReportTimezone, "UTC"), log),
		AnalyticsCacheTTL: time.Duration(utils.GetEnvAsInt("ANALYTICS_CACHE_TTL", fallbackInt(file.AnalyticsCacheTTLSecs, 300), log)) * time.Second,
		TrendThreshold:    utils.GetEnvAsFloat("TREND_THRESHOLD", fallbackFloat(file.TrendThreshold, 0.05), log),
		AttributionWindow: time.Duration(utils.GetEnvAsInt("ATTRIBUTION_WINDOW_DAYS", fallbackInt(file.AttributionWindowDays, 30), log)) * 24 * time.Hour,
		IngestQueueSize:   utils.GetEnvAsInt("INGEST_QUEUE_SIZE", fallbackInt(file.IngestQueueSize, 256), log),
		// 0 disables retention pruning entirely.
		RetentionDays: utils.GetEnvAsInt("RETENTION_DAYS", file.RetentionDays, log),
	}

	if origins := utils.GetEnv("ALLOW_ORIGINS", "", log); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowOrigins = append(cfg.AllowOrigins, origin)
			}
		}
	} else {
		cfg.AllowOrigins = file.AllowOrigins
	}

	loc, err := time.LoadLocation(cfg.ReportTimezone)
	if err != nil {
		log.Warn("Unknown report timezone, using UTC", "timezone", cfg.ReportTimezone, "error", err)
		loc = time.UTC
	}
	cfg.ReportLocation = loc

	return cfg
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func fallbackInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func fallbackFloat(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}
