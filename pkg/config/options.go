// Package config loads and validates the immutable RuntimeOptions that every
// component receives through its constructor.
package config

import "fmt"

// Pool and concurrency bounds.
const (
	MinPoolSize       = 1
	MaxPoolSize       = 16
	MinCliConcurrency = 1
	MaxCliConcurrency = 32
	MinRoleTimeoutSec = 5
	MaxRoleTimeoutSec = 900

	DefaultMaxRetries           = 2
	DefaultHeartbeatSec         = 15
	DefaultRoleTimeoutSec       = 300
	DefaultMemoryBootstrapLimit = 20
	DefaultListenAddr           = ":8710"
)

// Sandbox degradation modes: auto degrades to the strongest enforceable
// level, strict refuses to start below the requested one.
const (
	SandboxModeAuto   = "auto"
	SandboxModeStrict = "strict"
)

// DefaultContainerImage is used when no container image is configured.
const DefaultContainerImage = "alpine:3"

// SandboxLevel selects how adapter commands are isolated.
type SandboxLevel string

// Sandbox levels, strongest last. Unavailable levels degrade downward.
const (
	SandboxBareCli     SandboxLevel = "bare"
	SandboxOsSandboxed SandboxLevel = "os"
	SandboxContainer   SandboxLevel = "container"
)

// AdapterSpec declares one external CLI adapter.
type AdapterSpec struct {
	ID                     string            `yaml:"id"`
	ProbeCommand           string            `yaml:"probe_command"`
	ProbeArgs              []string          `yaml:"probe_args"`
	ExecuteCommand         string            `yaml:"execute_command"`
	ExecuteArgs            []string          `yaml:"execute_args"`
	RejectOutputSubstrings []string          `yaml:"reject_output_substrings"`
	IsInternal             bool              `yaml:"is_internal"`
	ModelFlag              string            `yaml:"model_flag,omitempty"`
	ModelEnvVar            string            `yaml:"model_env_var,omitempty"`
	ReasoningFlag          string            `yaml:"reasoning_flag,omitempty"`
	ReasoningEnvVar        string            `yaml:"reasoning_env_var,omitempty"`
	ModeFlag               string            `yaml:"mode_flag,omitempty"`
	Env                    map[string]string `yaml:"env,omitempty"`
}

// ArcadeDBOptions configures the document-store backend.
type ArcadeDBOptions struct {
	Enabled          bool   `yaml:"enabled"`
	URL              string `yaml:"url"`
	Database         string `yaml:"database"`
	User             string `yaml:"user"`
	Password         string `yaml:"password"`
	AutoCreateSchema bool   `yaml:"auto_create_schema"`
}

// RoleModel binds a role to a model id and optional reasoning effort.
type RoleModel struct {
	Model     string `yaml:"model"`
	Reasoning string `yaml:"reasoning,omitempty"`
}

// RuntimeOptions is the full, immutable runtime configuration. Every option
// that influences behavior is enumerated here; components never read the
// environment directly.
type RuntimeOptions struct {
	SandboxMode         string       `yaml:"sandbox_mode"`
	SandboxLevel        SandboxLevel `yaml:"sandbox_level"`
	SandboxAllowedHosts []string     `yaml:"sandbox_allowed_hosts"`

	// SandboxContainerTemplate, when set, replaces the built-in container
	// wrapper argument list; {{command}}, {{args}} and {{args_joined}} are
	// substituted at wrap time.
	SandboxContainerImage    string   `yaml:"sandbox_container_image"`
	SandboxContainerTemplate []string `yaml:"sandbox_container_template"`

	WorkerPoolSize    int `yaml:"worker_pool_size"`
	ReviewerPoolSize  int `yaml:"reviewer_pool_size"`
	MaxCliConcurrency int `yaml:"max_cli_concurrency"`

	CliAdapterOrder             []string      `yaml:"cli_adapter_order"`
	Adapters                    []AdapterSpec `yaml:"adapters"`
	RoleExecutionTimeoutSeconds int           `yaml:"role_execution_timeout_seconds"`

	MemoryBootstrapEnabled bool `yaml:"memory_bootstrap_enabled"`
	MemoryBootstrapLimit   int  `yaml:"memory_bootstrap_limit"`

	ArcadeDB ArcadeDBOptions `yaml:"arcadedb"`

	RoleModelMapping map[string]RoleModel `yaml:"role_model_mapping"`
	APIProviderOrder []string             `yaml:"api_provider_order"`

	MaxRetries   int `yaml:"max_retries"`
	HeartbeatSec int `yaml:"heartbeat_sec"`

	AutoSubmitDemoTask  bool   `yaml:"auto_submit_demo_task"`
	DemoTaskTitle       string `yaml:"demo_task_title"`
	DemoTaskDescription string `yaml:"demo_task_description"`

	WorkspacePath string `yaml:"workspace_path"`
	ListenAddr    string `yaml:"listen_addr"`
}

// Defaults returns options with every default applied. Loading merges the
// YAML file and environment on top of this.
func Defaults() RuntimeOptions {
	return RuntimeOptions{
		SandboxMode:                 SandboxModeAuto,
		SandboxLevel:                SandboxOsSandboxed,
		SandboxContainerImage:       DefaultContainerImage,
		WorkerPoolSize:              4,
		ReviewerPoolSize:            2,
		MaxCliConcurrency:           4,
		RoleExecutionTimeoutSeconds: DefaultRoleTimeoutSec,
		MemoryBootstrapLimit:        DefaultMemoryBootstrapLimit,
		MaxRetries:                  DefaultMaxRetries,
		HeartbeatSec:                DefaultHeartbeatSec,
		DemoTaskTitle:               "Demo: add a --version flag",
		DemoTaskDescription:         "Add a --version flag to the sample CLI and verify the output.",
		ListenAddr:                  DefaultListenAddr,
		ArcadeDB: ArcadeDBOptions{
			URL:              "http://localhost:2480",
			Database:         "swarm",
			AutoCreateSchema: true,
		},
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Normalize clamps every bounded option into its valid range.
func (o *RuntimeOptions) Normalize() {
	o.WorkerPoolSize = clampInt(o.WorkerPoolSize, MinPoolSize, MaxPoolSize)
	o.ReviewerPoolSize = clampInt(o.ReviewerPoolSize, MinPoolSize, MaxPoolSize)
	o.MaxCliConcurrency = clampInt(o.MaxCliConcurrency, MinCliConcurrency, MaxCliConcurrency)
	o.RoleExecutionTimeoutSeconds = clampInt(o.RoleExecutionTimeoutSeconds, MinRoleTimeoutSec, MaxRoleTimeoutSec)
	if o.MaxRetries < 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.HeartbeatSec <= 0 {
		o.HeartbeatSec = DefaultHeartbeatSec
	}
	if o.MemoryBootstrapLimit <= 0 {
		o.MemoryBootstrapLimit = DefaultMemoryBootstrapLimit
	}
	if o.SandboxMode == "" {
		o.SandboxMode = SandboxModeAuto
	}
	if o.SandboxContainerImage == "" {
		o.SandboxContainerImage = DefaultContainerImage
	}
}

// Validate checks options that cannot be repaired by clamping.
func (o *RuntimeOptions) Validate() error {
	switch o.SandboxLevel {
	case SandboxBareCli, SandboxOsSandboxed, SandboxContainer:
	default:
		return fmt.Errorf("%w: sandbox_level %q", ErrInvalidOption, o.SandboxLevel)
	}
	switch o.SandboxMode {
	case "", SandboxModeAuto, SandboxModeStrict:
	default:
		return fmt.Errorf("%w: sandbox_mode %q", ErrInvalidOption, o.SandboxMode)
	}
	if o.ArcadeDB.Enabled {
		if o.ArcadeDB.URL == "" {
			return fmt.Errorf("%w: arcadedb.url is required when arcadedb.enabled", ErrInvalidOption)
		}
		if o.ArcadeDB.Database == "" {
			return fmt.Errorf("%w: arcadedb.database is required when arcadedb.enabled", ErrInvalidOption)
		}
	}
	ids := make(map[string]struct{}, len(o.Adapters))
	for _, a := range o.Adapters {
		if a.ID == "" {
			return fmt.Errorf("%w: adapter with empty id", ErrInvalidOption)
		}
		if _, dup := ids[a.ID]; dup {
			return fmt.Errorf("%w: duplicate adapter id %q", ErrInvalidOption, a.ID)
		}
		ids[a.ID] = struct{}{}
		if !a.IsInternal && a.ExecuteCommand == "" {
			return fmt.Errorf("%w: adapter %q has no execute_command", ErrInvalidOption, a.ID)
		}
	}
	return nil
}
