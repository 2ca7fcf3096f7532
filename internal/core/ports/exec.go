package ports

import "context"

// Process is a handle to a spawned app process.
type Process interface {
	PID() int
	// Wait blocks until the process exits or ctx is cancelled.
	Wait(ctx context.Context) error
	Kill() error
}

// ProcessExecutor spawns local processes on behalf of a runner. The
// actual exec/syscall layer is provided by the host integration.
type ProcessExecutor interface {
	Start(ctx context.Context, cmd string, env []string, workDir string) (Process, error)
}

// ContainerSpec is everything a container runner needs to create
// the app container.
type ContainerSpec struct {
	Name    string
	Image   string
	Mounts  []string
	Env     []string
	Devices []string
	Ports   []string
}

// ContainerClient talks to the container engine on behalf of a runner.
type ContainerClient interface {
	Create(ctx context.Context, spec ContainerSpec) (string, error)
	Start(ctx context.Context, containerID string) error
	Stop(ctx context.Context, containerID string) error
	Remove(ctx context.Context, containerID string) error
	// Wait blocks until the container exits or ctx is cancelled.
	Wait(ctx context.Context, containerID string) error
}
