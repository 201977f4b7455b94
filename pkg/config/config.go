package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/felixgeelhaar/modkernel/internal/kernel"
	"github.com/felixgeelhaar/modkernel/internal/modhost"
	"github.com/felixgeelhaar/modkernel/pkg/observability"
)

// Config holds the kernel process configuration.
type Config struct {
	// Application
	Env       string
	LogLevel  string
	LogFormat string
	LogFile   string

	// Main loop
	TickRate time.Duration
	MaxTicks uint64

	// Modules and object types
	ModulePaths         []string
	SchemaPath          string
	KeepGlobalsOnUnload bool

	// Task circuit breakers
	BreakerEnabled   bool
	BreakerThreshold uint32
	BreakerTimeout   time.Duration
}

// Load loads configuration from environment variables, reading a .env file
// first when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	breaker := kernel.DefaultBreakerConfig()
	cfg := &Config{
		Env:       getEnv(observability.EnvKernelEnv, "development"),
		LogLevel:  getEnv(observability.EnvLogLevel, "info"),
		LogFormat: getEnv(observability.EnvLogFormat, ""),
		LogFile:   getEnv(observability.EnvLogFile, ""),

		TickRate: getDurationEnv("KERNEL_TICK_RATE", 16*time.Millisecond),
		MaxTicks: getUint64Env("KERNEL_MAX_TICKS", 0),

		ModulePaths:         getPathListEnv(modhost.ModulePathEnv),
		SchemaPath:          getEnv("KERNEL_SCHEMA_PATH", ""),
		KeepGlobalsOnUnload: getBoolEnv("KERNEL_KEEP_GLOBALS_ON_UNLOAD", false),

		BreakerEnabled:   getBoolEnv("KERNEL_BREAKER_ENABLED", breaker.Enabled),
		BreakerThreshold: uint32(getIntEnv("KERNEL_BREAKER_THRESHOLD", int(breaker.FailureThreshold))),
		BreakerTimeout:   getDurationEnv("KERNEL_BREAKER_TIMEOUT", breaker.Timeout),
	}
	if len(cfg.ModulePaths) == 0 {
		cfg.ModulePaths = modhost.DefaultSearchPaths()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings the kernel cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("KERNEL_TICK_RATE must be positive, got %s", c.TickRate))
	}
	if c.BreakerEnabled && c.BreakerThreshold == 0 {
		errs = append(errs, errors.New("KERNEL_BREAKER_THRESHOLD must be at least 1"))
	}
	if c.BreakerEnabled && c.BreakerTimeout <= 0 {
		errs = append(errs, fmt.Errorf("KERNEL_BREAKER_TIMEOUT must be positive, got %s", c.BreakerTimeout))
	}
	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Kernel returns the kernel configuration.
func (c *Config) Kernel() kernel.Config {
	kc := kernel.DefaultConfig()
	kc.Breaker.Enabled = c.BreakerEnabled
	kc.Breaker.FailureThreshold = c.BreakerThreshold
	kc.Breaker.Timeout = c.BreakerTimeout
	return kc
}

// Host returns the module host options.
func (c *Config) Host() modhost.Options {
	return modhost.Options{KeepGlobalsOnUnload: c.KeepGlobalsOnUnload}
}

// Log returns the logger configuration.
func (c *Config) Log() observability.LogConfig {
	lc := observability.DefaultLogConfig()
	if c.IsProduction() {
		lc = observability.ProductionLogConfig()
	}
	lc.Level = observability.LogLevel(c.LogLevel)
	if c.LogFormat != "" {
		lc.Format = observability.LogFormat(c.LogFormat)
	}
	lc.File = c.LogFile
	return lc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getUint64Env(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseUint(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getPathListEnv(key string) []string {
	var paths []string
	for _, p := range filepath.SplitList(os.Getenv(key)) {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}
