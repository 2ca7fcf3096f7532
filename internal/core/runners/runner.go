// Package runners provides the closed set of app-launch strategies:
// a local process, a container, or a child session piggy-backing on an
// already active one. Adding a launch mechanism means adding one more
// variant here; every dispatch site goes through Factory.FromConfig.
package runners

import (
	"fmt"

	"github.com/Relicjamin-jv/wolf/internal/core/domain"
	"github.com/Relicjamin-jv/wolf/internal/core/events"
	"github.com/Relicjamin-jv/wolf/internal/core/ports"
	"go.uber.org/zap"
)

// Factory builds Runner variants, injecting the host-integration
// collaborators they delegate to. The exec/engine syscall layer itself
// lives outside this module.
type Factory struct {
	executor  ports.ProcessExecutor
	container ports.ContainerClient
	logger    *zap.SugaredLogger
}

func NewFactory(executor ports.ProcessExecutor, container ports.ContainerClient, logger *zap.SugaredLogger) *Factory {
	return &Factory{
		executor:  executor,
		container: container,
		logger:    logger,
	}
}

// FromConfig constructs the Runner variant matching the tagged config.
// An unknown tag means the config is structurally invalid: the app
// entry is unusable and construction fails.
func (f *Factory) FromConfig(cfg events.RunnerConfig, bus *events.Bus) (events.Runner, error) {
	switch cfg.Type {
	case events.RunnerTypeProcess:
		return NewRunProcess(bus, f.executor, cfg.RunCmd, f.logger), nil
	case events.RunnerTypeDocker:
		return NewRunDocker(bus, f.container, cfg, f.logger), nil
	case events.RunnerTypeChildSession:
		return NewRunChildSession(bus, cfg.ParentSessionID, f.logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownRunnerType, cfg.Type)
	}
}
