package config

import (
	"fmt"
	"strings"
)

// Quality levels accepted by REMBG_QUALITY.
const (
	QualityUltra    = "ultra"
	QualityHigh     = "high"
	QualityBalanced = "balanced"
)

// App is the full environment surface of the wava process.
//
// Per-request API keys submitted with a job override the corresponding
// environment values; the environment is the fallback, not the only source.
type App struct {
	Host string `env:"WAVA_HOST" envDefault:"127.0.0.1"`
	Port int    `env:"PORT" envDefault:"8000"`

	GeminiAPIKey   string `env:"GEMINI_API_KEY"`
	ReplicateToken string `env:"REPLICATE_TOKEN"`

	FacebookAppID     string `env:"FACEBOOK_APP_ID"`
	FacebookAppSecret string `env:"FACEBOOK_APP_SECRET"`
	ThreadsAppID      string `env:"THREADS_APP_ID"`
	ThreadsAppSecret  string `env:"THREADS_APP_SECRET"`
	GoogleClientID    string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	NaverClientID     string `env:"NAVER_CLIENT_ID"`
	NaverClientSecret string `env:"NAVER_CLIENT_SECRET"`

	RembgQuality string `env:"REMBG_QUALITY" envDefault:"high"`
	// Accepted for .env compatibility; the Replicate removal path has no
	// local post-process step.
	RembgPostProcess bool `env:"REMBG_POST_PROCESS" envDefault:"false"`

	DBPath      string `env:"WAVA_DB_PATH" envDefault:"data/wava.db"`
	FrontendDir string `env:"WAVA_FRONTEND_DIR" envDefault:"."`
	StateSecret string `env:"WAVA_STATE_SECRET"`
}

// LoadApp parses and validates the process environment.
func LoadApp() (App, error) {
	var cfg App
	if err := ParseEnv(&cfg); err != nil {
		return App{}, err
	}
	cfg.RembgQuality = strings.ToLower(strings.TrimSpace(cfg.RembgQuality))
	switch cfg.RembgQuality {
	case QualityUltra, QualityHigh, QualityBalanced:
	case "":
		cfg.RembgQuality = QualityHigh
	default:
		return App{}, fmt.Errorf("REMBG_QUALITY must be one of ultra, high, balanced; got %q", cfg.RembgQuality)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return App{}, fmt.Errorf("PORT must be in 1..65535; got %d", cfg.Port)
	}
	return cfg, nil
}

// Addr returns the host:port listen address.
func (a App) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}
