package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/agentswarm/swarmd/pkg/sandbox"
)

// gracefulKillWait is how long a child gets to exit after SIGTERM before the
// whole process group is killed.
const gracefulKillWait = 3 * time.Second

// ErrExecutionTimeout marks a role attempt that exceeded its deadline.
var ErrExecutionTimeout = errors.New("execution timeout")

type processResult struct {
	stdout   string
	stderr   string
	exitCode int
}

// runProcess spawns the command with stdout/stderr captured concurrently
// (waiting before draining the pipes would deadlock on full pipe buffers),
// the working directory set to the workspace, and the merged environment.
// On context expiry the main process is signalled first; if it does not exit
// within gracefulKillWait the entire process group is killed.
func runProcess(ctx context.Context, cmd sandbox.Command, workdir string, env map[string]string) (processResult, error) {
	child := exec.Command(cmd.Path, cmd.Args...)
	child.Dir = workdir
	child.Env = mergedEnv(env)
	// Own process group so a tree kill reaches grandchildren.
	child.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := child.StdoutPipe()
	if err != nil {
		return processResult{}, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := child.StderrPipe()
	if err != nil {
		return processResult{}, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := child.Start(); err != nil {
		return processResult{}, fmt.Errorf("start %s: %w", cmd.Path, err)
	}

	var outBuf, errBuf bytes.Buffer
	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		_, _ = outBuf.ReadFrom(stdout)
	}()
	go func() {
		defer readers.Done()
		_, _ = errBuf.ReadFrom(stderr)
	}()

	done := make(chan error, 1)
	go func() {
		readers.Wait()
		done <- child.Wait()
	}()

	select {
	case waitErr := <-done:
		return collect(&outBuf, &errBuf, waitErr), nil
	case <-ctx.Done():
		terminate(child)
		<-done
		return processResult{stdout: outBuf.String(), stderr: errBuf.String()}, ErrExecutionTimeout
	}
}

// terminate signals the main process, waits briefly, then kills the group.
func terminate(child *exec.Cmd) {
	if child.Process == nil {
		return
	}
	_ = child.Process.Signal(syscall.SIGTERM)

	deadline := time.After(gracefulKillWait)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-deadline:
			// Negative pid addresses the whole process group.
			_ = syscall.Kill(-child.Process.Pid, syscall.SIGKILL)
			return
		case <-tick.C:
			if child.ProcessState != nil || child.Process.Signal(syscall.Signal(0)) != nil {
				return
			}
		}
	}
}

func collect(outBuf, errBuf *bytes.Buffer, waitErr error) processResult {
	res := processResult{stdout: outBuf.String(), stderr: errBuf.String()}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.exitCode = exitErr.ExitCode()
		} else {
			res.exitCode = -1
		}
	}
	return res
}

func mergedEnv(extra map[string]string) []string {
	if len(extra) == 0 {
		return os.Environ()
	}
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}
