// Package exec provides the host-side implementations of the runner
// ports: local process spawning and the Docker Engine API client.
package exec

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/Relicjamin-jv/wolf/internal/core/ports"

	"go.uber.org/zap"
)

// ProcessExecutor spawns app processes through /bin/sh so run_cmd can
// be a full shell command line, matching how app entries are written.
type ProcessExecutor struct {
	logger *zap.SugaredLogger
}

func NewProcessExecutor(logger *zap.SugaredLogger) *ProcessExecutor {
	return &ProcessExecutor{logger: logger}
}

func (e *ProcessExecutor) Start(ctx context.Context, cmd string, env []string, workDir string) (ports.Process, error) {
	command := exec.Command("/bin/sh", "-c", cmd)
	command.Dir = workDir
	command.Env = append(os.Environ(), env...)
	command.Stdout = os.Stdout
	command.Stderr = os.Stderr
	// Own process group so Kill reaches the whole tree.
	command.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := command.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %q: %w", cmd, err)
	}

	e.logger.Debugw("process started", "cmd", cmd, "pid", command.Process.Pid)
	return &process{cmd: command}, nil
}

type process struct {
	cmd *exec.Cmd
}

func (p *process) PID() int {
	return p.cmd.Process.Pid
}

func (p *process) Wait(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- p.cmd.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *process) Kill() error {
	// Negative pid signals the process group.
	return syscall.Kill(-p.cmd.Process.Pid, syscall.SIGTERM)
}
