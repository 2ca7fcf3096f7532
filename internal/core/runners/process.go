package runners

import (
	"context"
	"fmt"
	"sort"

	"github.com/Relicjamin-jv/wolf/internal/core/domain"
	"github.com/Relicjamin-jv/wolf/internal/core/events"
	"github.com/Relicjamin-jv/wolf/internal/core/ports"
	"go.uber.org/zap"
)

// RunProcess launches the app as a local child process. The process
// lifetime is tied to the session: a StopStreamEvent kills it, and the
// process exiting on its own stops the session.
type RunProcess struct {
	bus      *events.Bus
	executor ports.ProcessExecutor
	runCmd   string
	logger   *zap.SugaredLogger
}

func NewRunProcess(bus *events.Bus, executor ports.ProcessExecutor, runCmd string, logger *zap.SugaredLogger) *RunProcess {
	return &RunProcess{
		bus:      bus,
		executor: executor,
		runCmd:   runCmd,
		logger:   logger,
	}
}

func (r *RunProcess) Run(ctx context.Context,
	sessionID domain.SessionID,
	appStateFolder string,
	pluggedDevices *events.DeviceQueue,
	virtualInputs []string,
	paths []events.PathMapping,
	env map[string]string,
	renderNode string) error {

	fullEnv := flattenEnv(env)
	fullEnv = append(fullEnv, "WOLF_RENDER_NODE="+renderNode)

	proc, err := r.executor.Start(ctx, r.runCmd, fullEnv, appStateFolder)
	if err != nil {
		return fmt.Errorf("failed to start process %q: %w", r.runCmd, err)
	}

	r.logger.Infow("app process started",
		"session_id", sessionID,
		"cmd", r.runCmd,
		"pid", proc.PID(),
	)

	stopReg := events.Subscribe(r.bus, func(ev *events.StopStreamEvent) error {
		if ev.SessionID != sessionID {
			return nil
		}
		return proc.Kill()
	})

	go func() {
		if err := proc.Wait(ctx); err != nil {
			r.logger.Debugw("app process exited", "session_id", sessionID, "error", err)
		}
		r.bus.Unsubscribe(stopReg)
		// The app is gone: stop the session too.
		r.bus.Publish(&events.StopStreamEvent{SessionID: sessionID})
	}()

	return nil
}

func (r *RunProcess) Serialize() events.RunnerConfig {
	return events.RunnerConfig{
		Type:   events.RunnerTypeProcess,
		RunCmd: r.runCmd,
	}
}

func flattenEnv(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(env))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
