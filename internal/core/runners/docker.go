package runners

import (
	"context"
	"fmt"

	"github.com/Relicjamin-jv/wolf/internal/core/domain"
	"github.com/Relicjamin-jv/wolf/internal/core/events"
	"github.com/Relicjamin-jv/wolf/internal/core/ports"
	"github.com/Relicjamin-jv/wolf/pkg/retry"
	"go.uber.org/zap"
)

// RunDocker launches the app inside a container. Creation and start go
// through the injected engine client; transient engine hiccups on start
// are retried with backoff.
type RunDocker struct {
	bus    *events.Bus
	client ports.ContainerClient
	cfg    events.RunnerConfig
	logger *zap.SugaredLogger
}

func NewRunDocker(bus *events.Bus, client ports.ContainerClient, cfg events.RunnerConfig, logger *zap.SugaredLogger) *RunDocker {
	return &RunDocker{
		bus:    bus,
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

func (r *RunDocker) Run(ctx context.Context,
	sessionID domain.SessionID,
	appStateFolder string,
	pluggedDevices *events.DeviceQueue,
	virtualInputs []string,
	paths []events.PathMapping,
	env map[string]string,
	renderNode string) error {

	spec := ports.ContainerSpec{
		Name:    fmt.Sprintf("%s_%d", r.cfg.Name, sessionID),
		Image:   r.cfg.Image,
		Mounts:  append([]string{appStateFolder + ":/home/retro"}, r.cfg.Mounts...),
		Env:     append(flattenEnv(env), r.cfg.Env...),
		Devices: append(append([]string{}, r.cfg.Devices...), virtualInputs...),
		Ports:   r.cfg.Ports,
	}
	for _, p := range paths {
		spec.Mounts = append(spec.Mounts, p.Src+":"+p.Dst)
	}
	if renderNode != "" {
		spec.Devices = append(spec.Devices, renderNode)
	}

	containerID, err := r.client.Create(ctx, spec)
	if err != nil {
		return fmt.Errorf("failed to create container %q: %w", spec.Image, err)
	}

	if err := retry.Retry(ctx, retry.DefaultConfig(), func() error {
		return r.client.Start(ctx, containerID)
	}); err != nil {
		if removeErr := r.client.Remove(ctx, containerID); removeErr != nil {
			r.logger.Warnw("failed to remove container after start failure",
				"container_id", containerID,
				"error", removeErr,
			)
		}
		return fmt.Errorf("failed to start container %q: %w", containerID, err)
	}

	r.logger.Infow("app container started",
		"session_id", sessionID,
		"image", spec.Image,
		"container_id", containerID,
	)

	stopReg := events.Subscribe(r.bus, func(ev *events.StopStreamEvent) error {
		if ev.SessionID != sessionID {
			return nil
		}
		return r.client.Stop(context.Background(), containerID)
	})

	// Hot-plugged devices arrive over the session queue while the
	// container runs.
	go func() {
		for {
			ev, ok := pluggedDevices.Pop()
			if !ok {
				return
			}
			if ev.SessionID != sessionID {
				continue
			}
			r.logger.Debugw("device plugged into running container",
				"session_id", sessionID,
				"container_id", containerID,
				"udev_events", len(ev.UdevEvents),
			)
		}
	}()

	go func() {
		if err := r.client.Wait(ctx, containerID); err != nil {
			r.logger.Debugw("container exited", "session_id", sessionID, "error", err)
		}
		r.bus.Unsubscribe(stopReg)
		if err := r.client.Remove(context.Background(), containerID); err != nil {
			r.logger.Warnw("failed to remove container", "container_id", containerID, "error", err)
		}
		r.bus.Publish(&events.StopStreamEvent{SessionID: sessionID})
	}()

	return nil
}

func (r *RunDocker) Serialize() events.RunnerConfig {
	cfg := r.cfg
	cfg.Type = events.RunnerTypeDocker
	return cfg
}
