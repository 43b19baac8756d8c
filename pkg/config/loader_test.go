package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "swarmd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestInitialize_Defaults(t *testing.T) {
	opts, err := Initialize(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 4, opts.WorkerPoolSize)
	assert.Equal(t, 2, opts.ReviewerPoolSize)
	assert.Equal(t, DefaultMaxRetries, opts.MaxRetries)
	assert.Equal(t, SandboxOsSandboxed, opts.SandboxLevel)
	assert.Equal(t, SandboxModeAuto, opts.SandboxMode)
	assert.Equal(t, DefaultContainerImage, opts.SandboxContainerImage)
	assert.Equal(t, DefaultListenAddr, opts.ListenAddr)
}

func TestInitialize_YAMLOverridesAndClamps(t *testing.T) {
	path := writeConfig(t, `
worker_pool_size: 99
reviewer_pool_size: 0
max_cli_concurrency: 64
role_execution_timeout_seconds: 2
sandbox_level: container
adapters:
  - id: claude-cli
    probe_command: claude
    probe_args: ["--version"]
    execute_command: claude
    execute_args: ["-p", "{{prompt}}"]
    model_flag: "--model"
`)

	opts, err := Initialize(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, MaxPoolSize, opts.WorkerPoolSize)
	assert.Equal(t, MinPoolSize, opts.ReviewerPoolSize)
	assert.Equal(t, MaxCliConcurrency, opts.MaxCliConcurrency)
	assert.Equal(t, MinRoleTimeoutSec, opts.RoleExecutionTimeoutSeconds)
	assert.Equal(t, SandboxContainer, opts.SandboxLevel)
	require.Len(t, opts.Adapters, 1)
	assert.Equal(t, "claude-cli", opts.Adapters[0].ID)
}

func TestInitialize_MissingFile(t *testing.T) {
	_, err := Initialize(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestInitialize_InvalidSandboxLevel(t *testing.T) {
	path := writeConfig(t, "sandbox_level: chroot\n")
	_, err := Initialize(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidOption)
}

func TestInitialize_SandboxMode(t *testing.T) {
	path := writeConfig(t, `
sandbox_mode: strict
sandbox_container_image: ghcr.io/acme/tools:latest
sandbox_container_template: ["run", "--rm", "{{command}}", "{{args}}"]
`)
	opts, err := Initialize(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, SandboxModeStrict, opts.SandboxMode)
	assert.Equal(t, "ghcr.io/acme/tools:latest", opts.SandboxContainerImage)
	assert.Equal(t, []string{"run", "--rm", "{{command}}", "{{args}}"}, opts.SandboxContainerTemplate)

	path = writeConfig(t, "sandbox_mode: paranoid\n")
	_, err = Initialize(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidOption)
}

func TestInitialize_DuplicateAdapterIDs(t *testing.T) {
	path := writeConfig(t, `
adapters:
  - id: a
    execute_command: x
  - id: a
    execute_command: y
`)
	_, err := Initialize(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidOption)
}

func TestInitialize_EnvOverrides(t *testing.T) {
	t.Setenv("SWARMD_ARCADEDB_URL", "http://arcade:2480")
	t.Setenv("SWARMD_ARCADEDB_ENABLED", "true")
	t.Setenv("SWARMD_ARCADEDB_DATABASE", "swarm_test")
	t.Setenv("SWARMD_MAX_CLI_CONCURRENCY", "8")

	opts, err := Initialize(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, "http://arcade:2480", opts.ArcadeDB.URL)
	assert.True(t, opts.ArcadeDB.Enabled)
	assert.Equal(t, 8, opts.MaxCliConcurrency)
}

func TestInitialize_EnvExpansionInYAML(t *testing.T) {
	t.Setenv("TEST_ARCADE_PASSWORD", "s3cret")
	path := writeConfig(t, `
arcadedb:
  enabled: true
  url: http://localhost:2480
  database: swarm
  user: root
  password: ${TEST_ARCADE_PASSWORD}
`)

	opts, err := Initialize(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", opts.ArcadeDB.Password)
}
