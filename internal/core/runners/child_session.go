package runners

import (
	"context"
	"sync"
	"time"

	"github.com/Relicjamin-jv/wolf/internal/core/domain"
	"github.com/Relicjamin-jv/wolf/internal/core/events"
	"go.uber.org/zap"
)

// RunChildSession implements co-op streaming: a second client joins an
// already active session. It runs no app of its own; it forwards the
// child's device events to the parent session and unplugs everything
// it forwarded once the child session ends.
type RunChildSession struct {
	bus             *events.Bus
	parentSessionID domain.SessionID
	logger          *zap.SugaredLogger
}

func NewRunChildSession(bus *events.Bus, parentSessionID domain.SessionID, logger *zap.SugaredLogger) *RunChildSession {
	return &RunChildSession{
		bus:             bus,
		parentSessionID: parentSessionID,
		logger:          logger,
	}
}

func (r *RunChildSession) Run(ctx context.Context,
	sessionID domain.SessionID,
	appStateFolder string,
	pluggedDevices *events.DeviceQueue,
	virtualInputs []string,
	paths []events.PathMapping,
	env map[string]string,
	renderNode string) error {

	var done sync.Once
	over := make(chan struct{})

	stopReg := events.Subscribe(r.bus, func(ev *events.StopStreamEvent) error {
		if ev.SessionID == sessionID {
			done.Do(func() { close(over) })
		}
		return nil
	})

	unplugReg := events.Subscribe(r.bus, func(ev *events.UnplugDeviceEvent) error {
		if ev.SessionID != sessionID {
			return nil
		}
		// Re-address the unplug to the parent session.
		r.bus.Publish(&events.UnplugDeviceEvent{
			SessionID:       r.parentSessionID,
			UdevEvents:      ev.UdevEvents,
			UdevHwDBEntries: ev.UdevHwDBEntries,
		})
		return nil
	})

	go func() {
		defer r.bus.Unsubscribe(stopReg)
		defer r.bus.Unsubscribe(unplugReg)

		// Keep a history of forwarded devices so we can clean up after.
		var plugged []*events.PlugDeviceEvent

	loop:
		for {
			select {
			case <-over:
				break loop
			case <-ctx.Done():
				break loop
			default:
			}

			ev, ok := pluggedDevices.PopTimeout(500 * time.Millisecond)
			if !ok {
				if pluggedDevices.Closed() {
					break loop
				}
				continue
			}
			if ev.SessionID != sessionID {
				continue
			}

			forwarded := &events.PlugDeviceEvent{
				SessionID:       r.parentSessionID,
				UdevEvents:      ev.UdevEvents,
				UdevHwDBEntries: ev.UdevHwDBEntries,
			}
			r.bus.Publish(forwarded)
			plugged = append(plugged, forwarded)
		}

		// Child session is over: unplug everything we plugged.
		for _, ev := range plugged {
			r.bus.Publish(&events.UnplugDeviceEvent{
				SessionID:       r.parentSessionID,
				UdevEvents:      ev.UdevEvents,
				UdevHwDBEntries: ev.UdevHwDBEntries,
			})
		}
	}()

	r.logger.Infow("child session attached",
		"session_id", sessionID,
		"parent_session_id", r.parentSessionID,
	)
	return nil
}

func (r *RunChildSession) Serialize() events.RunnerConfig {
	return events.RunnerConfig{
		Type:            events.RunnerTypeChildSession,
		ParentSessionID: r.parentSessionID,
	}
}
