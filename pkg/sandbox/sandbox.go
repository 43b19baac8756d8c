// Package sandbox wraps adapter command lines in one of three isolation
// levels: bare execution, an OS-native sandbox, or an external container
// runtime. A requested level that cannot be enforced on this host degrades
// downward to the strongest available one.
package sandbox

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/agentswarm/swarmd/pkg/config"
)

// ErrSandboxUnavailable is returned in strict mode when the requested level
// cannot be enforced on this host.
var ErrSandboxUnavailable = errors.New("requested sandbox level unavailable")

// Command is a fully resolved command line ready to spawn.
type Command struct {
	Path string
	Args []string
}

// Wrapper rewrites command lines for the effective sandbox level.
type Wrapper struct {
	requested config.SandboxLevel
	effective config.SandboxLevel

	workspace    string
	allowedHosts []string

	// containerTemplate is the wrapper command line for the container
	// level; {{command}}, {{args}} and {{args_joined}} are substituted.
	containerCommand  string
	containerImage    string
	containerTemplate []string

	logger *slog.Logger
}

// lookPath is swapped in tests to simulate host capabilities.
var lookPath = exec.LookPath

// New resolves the effective sandbox level for this host and returns a
// wrapper. In auto mode degradation walks Container → OsSandboxed → BareCli
// and stops at the first enforceable level; strict mode errors instead of
// degrading. An empty workspace defaults to the process working directory.
func New(opts *config.RuntimeOptions, logger *slog.Logger) (*Wrapper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	workspace := opts.WorkspacePath
	if workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			wd = "."
		}
		workspace = wd
	}
	image := opts.SandboxContainerImage
	if image == "" {
		image = config.DefaultContainerImage
	}
	w := &Wrapper{
		requested:         opts.SandboxLevel,
		workspace:         workspace,
		allowedHosts:      opts.SandboxAllowedHosts,
		containerImage:    image,
		containerTemplate: opts.SandboxContainerTemplate,
		logger:            logger.With("component", "sandbox"),
	}
	w.effective = w.resolve(opts.SandboxLevel)
	if w.effective != w.requested {
		if opts.SandboxMode == config.SandboxModeStrict {
			return nil, fmt.Errorf("%w: %s requested, strongest enforceable is %s",
				ErrSandboxUnavailable, w.requested, w.effective)
		}
		w.logger.Warn("Sandbox level degraded",
			"requested", w.requested,
			"effective", w.effective)
	}
	return w, nil
}

// Level returns the effective sandbox level.
func (w *Wrapper) Level() config.SandboxLevel { return w.effective }

func (w *Wrapper) resolve(level config.SandboxLevel) config.SandboxLevel {
	for {
		switch level {
		case config.SandboxContainer:
			if cmd := w.detectContainerRuntime(); cmd != "" {
				w.containerCommand = cmd
				if len(w.containerTemplate) == 0 {
					w.containerTemplate = w.defaultContainerTemplate()
				}
				return config.SandboxContainer
			}
			level = config.SandboxOsSandboxed
		case config.SandboxOsSandboxed:
			if w.osIsolatorAvailable() {
				return config.SandboxOsSandboxed
			}
			level = config.SandboxBareCli
		default:
			return config.SandboxBareCli
		}
	}
}

func (w *Wrapper) detectContainerRuntime() string {
	for _, candidate := range []string{"podman", "docker"} {
		if _, err := lookPath(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func (w *Wrapper) osIsolatorAvailable() bool {
	switch runtime.GOOS {
	case "darwin":
		_, err := lookPath("sandbox-exec")
		return err == nil
	case "linux":
		_, err := lookPath("bwrap")
		return err == nil
	default:
		return false
	}
}

// Wrap rewrites the command for the effective level. BareCli passes the
// command through unmodified.
func (w *Wrapper) Wrap(cmd Command) Command {
	switch w.effective {
	case config.SandboxContainer:
		return w.wrapContainer(cmd)
	case config.SandboxOsSandboxed:
		return w.wrapOS(cmd)
	default:
		return cmd
	}
}

func (w *Wrapper) wrapOS(cmd Command) Command {
	if runtime.GOOS == "darwin" {
		return Command{
			Path: "sandbox-exec",
			Args: append([]string{"-p", w.seatbeltProfile(), cmd.Path}, cmd.Args...),
		}
	}
	// Linux: user-namespace isolation with the workspace bind-mounted
	// read-write. Hostname-level egress is not enforceable here; allowed
	// hosts are advisory only.
	args := []string{
		"--ro-bind", "/", "/",
		"--bind", w.workspace, w.workspace,
		"--bind", "/tmp", "/tmp",
		"--dev", "/dev",
		"--proc", "/proc",
		"--die-with-parent",
	}
	if len(w.allowedHosts) == 0 {
		args = append(args, "--unshare-net")
	}
	args = append(args, cmd.Path)
	args = append(args, cmd.Args...)
	return Command{Path: "bwrap", Args: args}
}

// seatbeltProfile denies writes outside the workspace and /tmp, and denies
// network unless allowed hosts are listed. Per-host filtering is not
// expressible in the profile language; listed hosts open network wholesale.
func (w *Wrapper) seatbeltProfile() string {
	var b strings.Builder
	b.WriteString("(version 1)\n(allow default)\n")
	b.WriteString("(deny file-write*)\n")
	fmt.Fprintf(&b, "(allow file-write* (subpath %q) (subpath \"/tmp\") (subpath \"/private/tmp\"))\n", w.workspace)
	if len(w.allowedHosts) == 0 {
		b.WriteString("(deny network*)\n")
	}
	return b.String()
}

func (w *Wrapper) defaultContainerTemplate() []string {
	args := []string{
		"run", "--rm", "-i",
		"-v", w.workspace + ":" + w.workspace + ":rw",
		"-w", w.workspace,
	}
	if len(w.allowedHosts) == 0 {
		args = append(args, "--network", "none")
	} else {
		// No per-host filter at this layer; listed hosts open bridge
		// networking wholesale.
		args = append(args, "--network", "bridge")
	}
	return append(args, w.containerImage, "{{command}}", "{{args}}")
}

func (w *Wrapper) wrapContainer(cmd Command) Command {
	out := make([]string, 0, len(w.containerTemplate)+len(cmd.Args))
	for _, tok := range w.containerTemplate {
		switch tok {
		case "{{command}}":
			out = append(out, cmd.Path)
		case "{{args}}":
			out = append(out, cmd.Args...)
		case "{{args_joined}}":
			out = append(out, strings.Join(cmd.Args, " "))
		default:
			out = append(out, tok)
		}
	}
	return Command{Path: w.containerCommand, Args: out}
}
