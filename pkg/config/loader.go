package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Initialize loads, validates, and returns ready-to-use runtime options.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Overlay a .env file (if present) onto the process environment
//  2. Start from built-in defaults
//  3. Merge the YAML file (if present) on top
//  4. Apply environment overrides (SWARMD_* variables)
//  5. Clamp bounded options and validate the rest
func Initialize(_ context.Context, configPath string) (*RuntimeOptions, error) {
	log := slog.With("config_path", configPath)
	log.Info("Initializing configuration")

	// .env is optional; a missing file is not an error.
	if err := godotenv.Load(); err == nil {
		log.Debug("Loaded .env overlay")
	}

	opts := Defaults()

	if configPath != "" {
		if err := loadYAML(configPath, &opts); err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
	}

	applyEnvOverrides(&opts)
	opts.Normalize()

	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	if strings.Contains(opts.ArcadeDB.User, ":") {
		log.Warn("ArcadeDB username contains a colon; HTTP basic auth cannot encode it",
			"user", opts.ArcadeDB.User)
	}

	log.Info("Configuration initialized successfully",
		"workers", opts.WorkerPoolSize,
		"reviewers", opts.ReviewerPoolSize,
		"adapters", len(opts.Adapters),
		"arcadedb_enabled", opts.ArcadeDB.Enabled,
		"sandbox_level", opts.SandboxLevel)

	return &opts, nil
}

func loadYAML(path string, target *RuntimeOptions) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand ${VAR} references so secrets can stay out of the file.
	data = []byte(os.ExpandEnv(string(data)))

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return nil
}

// applyEnvOverrides lets deployment environments override the file without
// editing it. Only operationally relevant knobs are exposed this way.
func applyEnvOverrides(opts *RuntimeOptions) {
	if v := os.Getenv("SWARMD_LISTEN_ADDR"); v != "" {
		opts.ListenAddr = v
	}
	if v := os.Getenv("SWARMD_WORKSPACE"); v != "" {
		opts.WorkspacePath = v
	}
	if v := os.Getenv("SWARMD_ARCADEDB_URL"); v != "" {
		opts.ArcadeDB.URL = v
	}
	if v := os.Getenv("SWARMD_ARCADEDB_DATABASE"); v != "" {
		opts.ArcadeDB.Database = v
	}
	if v := os.Getenv("SWARMD_ARCADEDB_USER"); v != "" {
		opts.ArcadeDB.User = v
	}
	if v := os.Getenv("SWARMD_ARCADEDB_PASSWORD"); v != "" {
		opts.ArcadeDB.Password = v
	}
	if v := os.Getenv("SWARMD_ARCADEDB_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			opts.ArcadeDB.Enabled = b
		}
	}
	if v := os.Getenv("SWARMD_SANDBOX_LEVEL"); v != "" {
		opts.SandboxLevel = SandboxLevel(v)
	}
	if v := os.Getenv("SWARMD_SANDBOX_MODE"); v != "" {
		opts.SandboxMode = v
	}
	if v := os.Getenv("SWARMD_MAX_CLI_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.MaxCliConcurrency = n
		}
	}
}
