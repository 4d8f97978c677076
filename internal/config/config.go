package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration options for the daemon.
type Config struct {
	Addr      string
	AuthToken string
	StateDir  string
	LogLevel  string

	// TickCron is the driver's tick interval as a 5-field cron expression.
	// A deployment parameter, not part of the engine's contract.
	TickCron string

	UseUTC        bool
	ShutdownGrace time.Duration

	// Mode selects which operator surfaces to run: http, mcp or both.
	Mode string
}

const (
	defaultAddr          = "0.0.0.0:7070"
	defaultLogLevel      = "info"
	defaultTickCron      = "* * * * *"
	defaultShutdownGrace = 5 * time.Second
	defaultMode          = "http"
)

func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		lower := strings.ToLower(val)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// Parse builds the configuration from CLI flags, environment variables and an
// optional .env file, in that priority order.
func Parse() (*Config, error) {
	envFiles := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, "taskauto", ".env"))
	}
	_ = godotenv.Load(envFiles...) // optional

	cfg := &Config{
		Addr:          getEnvString("TASKAUTO_ADDR", defaultAddr),
		AuthToken:     getEnvString("TASKAUTO_AUTH_TOKEN", ""),
		StateDir:      getEnvString("TASKAUTO_STATE_DIR", ""),
		LogLevel:      getEnvString("TASKAUTO_LOG_LEVEL", defaultLogLevel),
		TickCron:      getEnvString("TASKAUTO_TICK_CRON", defaultTickCron),
		UseUTC:        getEnvBool("TASKAUTO_USE_UTC", false),
		ShutdownGrace: getEnvDuration("TASKAUTO_SHUTDOWN_GRACE", defaultShutdownGrace),
		Mode:          getEnvString("TASKAUTO_MODE", defaultMode),
	}

	var addr, logLevel, stateDir, tickCron, mode string
	var useUTC bool
	var shutdownGrace time.Duration

	flag.StringVar(&addr, "addr", "", "HTTP listen address (overrides env)")
	flag.StringVar(&stateDir, "state-dir", "", "Directory to store the database")
	flag.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&tickCron, "tick-cron", "", "Tick interval as a 5-field cron expression")
	flag.BoolVar(&useUTC, "use-utc", false, "Use UTC for cadence evaluation instead of system local time")
	flag.DurationVar(&shutdownGrace, "shutdown-grace", 0, "Grace period when shutting down")
	flag.StringVar(&mode, "mode", "", "Operator surface: http, mcp or both")

	flag.Parse()

	if addr != "" {
		cfg.Addr = addr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if stateDir != "" {
		cfg.StateDir = stateDir
	}
	if tickCron != "" {
		cfg.TickCron = tickCron
	}
	if mode != "" {
		cfg.Mode = mode
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "use-utc":
			cfg.UseUTC = useUTC
		case "shutdown-grace":
			cfg.ShutdownGrace = shutdownGrace
		}
	})

	switch cfg.Mode {
	case "http", "mcp", "both":
	default:
		return nil, fmt.Errorf("invalid mode %q: must be http, mcp or both", cfg.Mode)
	}

	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default state dir: %w", err)
		}
		cfg.StateDir = dir
	}

	return cfg, nil
}

func defaultStateDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(baseDir, "taskauto")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}
