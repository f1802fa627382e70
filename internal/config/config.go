// Package config loads process configuration from the environment with
// an optional config.yaml overlay. Strategy defaults loaded here are the
// process-wide values callers can override per request.
package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

// RollingDefaults holds the default strategy parameter values for the
// rolling short PUT selection. Each value can be overridden per call.
type RollingDefaults struct {
	DeltaMin     float64 `yaml:"delta_min"`
	DeltaMax     float64 `yaml:"delta_max"`
	BandWindow   float64 `yaml:"band_window"`
	CreditMinPct float64 `yaml:"credit_min_pct"`
	CreditMaxPct float64 `yaml:"credit_max_pct"`
}

// Config is the resolved process configuration.
type Config struct {
	// Server settings
	Port string

	// Data provider settings
	Provider     string // "", "tradier", "yahoo" or "synthetic"
	TradierToken string

	// CORS origins allowed to call the API
	AllowedOrigins []string

	// Logging verbosity: 0=errors, 1=info, 2=debug, 3=trace
	Verbosity int

	// One-shot report output directory
	ReportDir string

	// Strategy defaults
	Rolling RollingDefaults
}

type yamlConfig struct {
	Port           string          `yaml:"port"`
	Provider       string          `yaml:"provider"`
	TradierToken   string          `yaml:"tradier_token"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	Verbosity      *int            `yaml:"verbosity"`
	ReportDir      string          `yaml:"report_dir"`
	Rolling        RollingDefaults `yaml:"rolling"`
}

// Load resolves configuration from the environment, then applies any
// config.yaml overlay for values the environment did not set.
func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		Provider:     getEnv("DATA_PROVIDER", ""),
		TradierToken: getEnv("TRADIER_API_KEY", ""),
		AllowedOrigins: getEnvStringSlice("ALLOWED_ORIGINS", []string{
			"http://localhost:5173",
			"http://127.0.0.1:5173",
		}),
		Verbosity: getEnvInt("VERBOSITY", 1),
		ReportDir: getEnv("REPORT_DIR", "./out"),
		Rolling: RollingDefaults{
			DeltaMin:     getEnvFloat("ROLLING_DELTA_MIN", 0.20),
			DeltaMax:     getEnvFloat("ROLLING_DELTA_MAX", 0.25),
			BandWindow:   getEnvFloat("ROLLING_BAND_WINDOW", 0.00),
			CreditMinPct: getEnvFloat("ROLLING_CREDIT_MIN_PCT", 0.006),
			CreditMaxPct: getEnvFloat("ROLLING_CREDIT_MAX_PCT", 0.008),
		},
	}

	if yamlCfg := loadYAMLConfig(); yamlCfg != nil {
		if yamlCfg.Port != "" && os.Getenv("PORT") == "" {
			cfg.Port = yamlCfg.Port
		}
		if yamlCfg.Provider != "" && os.Getenv("DATA_PROVIDER") == "" {
			cfg.Provider = yamlCfg.Provider
		}
		if yamlCfg.TradierToken != "" && os.Getenv("TRADIER_API_KEY") == "" {
			cfg.TradierToken = yamlCfg.TradierToken
		}
		if len(yamlCfg.AllowedOrigins) > 0 && os.Getenv("ALLOWED_ORIGINS") == "" {
			cfg.AllowedOrigins = yamlCfg.AllowedOrigins
		}
		if yamlCfg.Verbosity != nil && os.Getenv("VERBOSITY") == "" {
			cfg.Verbosity = *yamlCfg.Verbosity
		}
		if yamlCfg.ReportDir != "" && os.Getenv("REPORT_DIR") == "" {
			cfg.ReportDir = yamlCfg.ReportDir
		}

		if yamlCfg.Rolling.DeltaMin > 0 && os.Getenv("ROLLING_DELTA_MIN") == "" {
			cfg.Rolling.DeltaMin = yamlCfg.Rolling.DeltaMin
		}
		if yamlCfg.Rolling.DeltaMax > 0 && os.Getenv("ROLLING_DELTA_MAX") == "" {
			cfg.Rolling.DeltaMax = yamlCfg.Rolling.DeltaMax
		}
		if yamlCfg.Rolling.BandWindow > 0 && os.Getenv("ROLLING_BAND_WINDOW") == "" {
			cfg.Rolling.BandWindow = yamlCfg.Rolling.BandWindow
		}
		if yamlCfg.Rolling.CreditMinPct > 0 && os.Getenv("ROLLING_CREDIT_MIN_PCT") == "" {
			cfg.Rolling.CreditMinPct = yamlCfg.Rolling.CreditMinPct
		}
		if yamlCfg.Rolling.CreditMaxPct > 0 && os.Getenv("ROLLING_CREDIT_MAX_PCT") == "" {
			cfg.Rolling.CreditMaxPct = yamlCfg.Rolling.CreditMaxPct
		}
	}

	return cfg
}

func loadYAMLConfig() *yamlConfig {
	data, err := os.ReadFile("config.yaml")
	if err != nil {
		// no config.yaml - environment values stand
		return nil
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		// unparsable config.yaml - environment values stand
		return nil
	}

	return &yamlCfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
