package sessions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Relicjamin-jv/wolf/internal/core/domain"
	"github.com/Relicjamin-jv/wolf/internal/core/events"
	"github.com/Relicjamin-jv/wolf/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDevice struct {
	nodes []string

	mu     sync.Mutex
	closed bool
}

func (d *fakeDevice) DeviceNodes() []string { return d.nodes }

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDevice) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type fakeDisplay struct {
	fakeDevice
	env []string
}

func (d *fakeDisplay) EnvVars() []string { return d.env }

// fakeRunner records the launch arguments it was handed.
type fakeRunner struct {
	mu            sync.Mutex
	runs          int
	ctx           context.Context
	sessionID     domain.SessionID
	stateFolder   string
	virtualInputs []string
	env           map[string]string
	renderNode    string
	err           error
}

func (r *fakeRunner) Run(ctx context.Context,
	sessionID domain.SessionID,
	appStateFolder string,
	pluggedDevices *events.DeviceQueue,
	virtualInputs []string,
	paths []events.PathMapping,
	env map[string]string,
	renderNode string) error {

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.runs++
	r.ctx = ctx
	r.sessionID = sessionID
	r.stateFolder = appStateFolder
	r.virtualInputs = virtualInputs
	r.env = env
	r.renderNode = renderNode
	return nil
}

func (r *fakeRunner) Serialize() events.RunnerConfig {
	return events.RunnerConfig{Type: events.RunnerTypeProcess}
}

type countingMetrics struct {
	mu      sync.Mutex
	started int
	stopped int
	runners []string
}

func (m *countingMetrics) SessionStarted() {
	m.mu.Lock()
	m.started++
	m.mu.Unlock()
}

func (m *countingMetrics) SessionStopped(d time.Duration) {
	m.mu.Lock()
	m.stopped++
	m.mu.Unlock()
}

func (m *countingMetrics) RunnerStarted(runnerType string) {
	m.mu.Lock()
	m.runners = append(m.runners, runnerType)
	m.mu.Unlock()
}

func newTestManager(t *testing.T) (*Manager, *events.Bus, *countingMetrics) {
	t.Helper()
	bus := events.NewBus(zap.NewNop().Sugar())
	metrics := &countingMetrics{}
	m := NewManager(bus, zap.NewNop().Sugar(), metrics)
	t.Cleanup(m.Close)
	return m, bus, metrics
}

func testApp(runner events.Runner) *events.App {
	return &events.App{
		ID:         "1",
		Title:      "Steam",
		RenderNode: "/dev/dri/renderD128",
		Runner:     runner,
	}
}

func createSession(t *testing.T, m *Manager, app *events.App, clientIP string) *events.StreamSession {
	t.Helper()
	session, err := m.Create(CreateParams{
		App:               app,
		ClientIP:          clientIP,
		AppStateFolder:    "/tmp/state",
		DisplayMode:       domain.DisplayMode{Width: 1920, Height: 1080, RefreshRate: 60},
		AudioChannelCount: 2,
		VideoStreamPort:   48100,
		AudioStreamPort:   48200,
	})
	require.NoError(t, err)
	return session
}

func TestCreate_RegistersSession(t *testing.T) {
	m, _, metrics := newTestManager(t)

	session := createSession(t, m, testApp(&fakeRunner{}), "10.0.0.2")
	require.NotZero(t, session.SessionID)
	assert.Len(t, session.AESKey, 32, "AES key is 16 bytes hex encoded")
	assert.Len(t, session.AESIV, 32)

	got, ok := m.Get(session.SessionID)
	require.True(t, ok)
	assert.Same(t, session, got)

	state, err := m.SessionState(session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StateCreated, state)
	assert.Equal(t, 1, metrics.started)
}

func TestCreate_UniqueSessionIDs(t *testing.T) {
	m, _, _ := newTestManager(t)

	seen := map[domain.SessionID]bool{}
	for i := 0; i < 20; i++ {
		session := createSession(t, m, testApp(&fakeRunner{}), "10.0.0.2")
		assert.False(t, seen[session.SessionID], "session id reused")
		seen[session.SessionID] = true
	}
	assert.Len(t, m.List(), 20)
}

func TestDuplicateSessionRejected(t *testing.T) {
	bus := events.NewBus(zap.NewNop().Sugar(), events.WithErrorHandler(func(eventType events.EventType, err error) {
		assert.True(t, errors.Is(err, domain.ErrDuplicateSession))
	}))
	m := NewManager(bus, zap.NewNop().Sugar(), nil)
	defer m.Close()

	session := createSession(t, m, testApp(&fakeRunner{}), "10.0.0.2")
	// Replaying the same session event must not clobber the registry.
	bus.Publish(session)
	assert.Len(t, m.List(), 1)
}

func TestLifecycleTransitions(t *testing.T) {
	m, bus, _ := newTestManager(t)
	session := createSession(t, m, testApp(&fakeRunner{}), "10.0.0.2")
	id := session.SessionID

	mustState := func(want State) {
		t.Helper()
		state, err := m.SessionState(id)
		require.NoError(t, err)
		assert.Equal(t, want, state)
	}

	// Negotiation starts when the first media session appears.
	bus.Publish(&events.VideoSession{SessionID: id})
	mustState(StateNegotiating)
	bus.Publish(&events.AudioSession{SessionID: id})
	mustState(StateNegotiating)

	// The client's first ping proves media is flowing.
	bus.Publish(&events.RTPVideoPingEvent{ClientIP: "10.0.0.2"})
	mustState(StateActive)

	bus.Publish(&events.PauseStreamEvent{SessionID: id})
	mustState(StatePaused)

	// A paused session ignores activity markers.
	bus.Publish(&events.RTPAudioPingEvent{ClientIP: "10.0.0.2"})
	mustState(StatePaused)

	bus.Publish(&events.ResumeStreamEvent{SessionID: id})
	mustState(StateActive)

	bus.Publish(&events.StopStreamEvent{SessionID: id})
	_, err := m.SessionState(id)
	assert.True(t, errors.Is(err, domain.ErrSessionNotFound))
}

func TestIDRRequestMarksActive(t *testing.T) {
	m, bus, _ := newTestManager(t)
	session := createSession(t, m, testApp(&fakeRunner{}), "10.0.0.2")

	bus.Publish(&events.IDRRequestEvent{SessionID: session.SessionID})
	state, err := m.SessionState(session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StateActive, state)
}

func TestPingForUnknownIPIgnored(t *testing.T) {
	m, bus, _ := newTestManager(t)
	session := createSession(t, m, testApp(&fakeRunner{}), "10.0.0.2")

	bus.Publish(&events.RTPVideoPingEvent{ClientIP: "192.168.1.50"})
	state, err := m.SessionState(session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StateCreated, state)
}

func TestPauseKeepsDevicesAndKeys(t *testing.T) {
	m, bus, _ := newTestManager(t)
	session := createSession(t, m, testApp(&fakeRunner{}), "10.0.0.2")
	id := session.SessionID

	mouse := &fakeDevice{nodes: []string{"/dev/input/event3"}}
	_, err := session.Mouse.GetOrCreate(func() (ports.Mouse, error) { return mouse, nil })
	require.NoError(t, err)
	aesKey := session.AESKey

	bus.Publish(&events.VideoSession{SessionID: id})
	bus.Publish(&events.IDRRequestEvent{SessionID: id})
	bus.Publish(&events.PauseStreamEvent{SessionID: id})

	// Pause must not tear anything down.
	assert.False(t, mouse.isClosed())
	_, populated := session.Mouse.Get()
	assert.True(t, populated)
	assert.Equal(t, aesKey, session.AESKey)
}

func TestStopTearsDownDevices(t *testing.T) {
	m, bus, metrics := newTestManager(t)
	session := createSession(t, m, testApp(&fakeRunner{}), "10.0.0.2")
	id := session.SessionID

	display := &fakeDisplay{fakeDevice: fakeDevice{nodes: []string{"/dev/wl0"}}}
	mouse := &fakeDevice{nodes: []string{"/dev/input/event3"}}
	pad := &fakeDevice{nodes: []string{"/dev/input/js0"}}

	_, err := session.WaylandDisplay.GetOrCreate(func() (ports.WaylandDisplay, error) { return display, nil })
	require.NoError(t, err)
	_, err = session.Mouse.GetOrCreate(func() (ports.Mouse, error) { return mouse, nil })
	require.NoError(t, err)
	require.NoError(t, session.Joypads.Set(0, pad))

	queue, err := m.DeviceQueue(id)
	require.NoError(t, err)

	// A per-session registration must be dropped before devices die.
	var lateEvents int
	reg := events.Subscribe(bus, func(ev *events.IDRRequestEvent) error {
		lateEvents++
		return nil
	})
	require.NoError(t, m.TrackRegistration(id, reg))

	bus.Publish(&events.StopStreamEvent{SessionID: id})

	assert.True(t, display.isClosed())
	assert.True(t, mouse.isClosed())
	assert.True(t, pad.isClosed())
	assert.True(t, queue.Closed())

	// Device slots are terminal after teardown.
	_, err = session.Mouse.GetOrCreate(func() (ports.Mouse, error) { return &fakeDevice{}, nil })
	assert.Error(t, err)

	bus.Publish(&events.IDRRequestEvent{SessionID: id})
	assert.Zero(t, lateEvents, "tracked registration must be unsubscribed at teardown")

	_, ok := m.Get(id)
	assert.False(t, ok)
	assert.Equal(t, 1, metrics.stopped)
}

func TestStopUnknownSessionIgnored(t *testing.T) {
	_, bus, metrics := newTestManager(t)
	bus.Publish(&events.StopStreamEvent{SessionID: 12345})
	assert.Zero(t, metrics.stopped)
}

func TestPlugDeviceRouting(t *testing.T) {
	m, bus, _ := newTestManager(t)
	first := createSession(t, m, testApp(&fakeRunner{}), "10.0.0.2")
	second := createSession(t, m, testApp(&fakeRunner{}), "10.0.0.3")

	queue, err := m.DeviceQueue(first.SessionID)
	require.NoError(t, err)

	bus.Publish(&events.PlugDeviceEvent{
		SessionID:  first.SessionID,
		UdevEvents: []map[string]string{{"DEVNAME": "/dev/input/event9"}},
	})

	ev, ok := queue.Pop()
	require.True(t, ok)
	assert.Equal(t, first.SessionID, ev.SessionID)

	otherQueue, err := m.DeviceQueue(second.SessionID)
	require.NoError(t, err)
	assert.Zero(t, otherQueue.Len(), "device events must not leak across sessions")
}

func TestStartApp(t *testing.T) {
	m, _, metrics := newTestManager(t)
	runner := &fakeRunner{}
	session := createSession(t, m, testApp(runner), "10.0.0.2")

	display := &fakeDisplay{
		fakeDevice: fakeDevice{nodes: []string{"/dev/wl0"}},
		env:        []string{"WAYLAND_DISPLAY=wayland-1"},
	}
	mouse := &fakeDevice{nodes: []string{"/dev/input/event3"}}
	_, err := session.WaylandDisplay.GetOrCreate(func() (ports.WaylandDisplay, error) { return display, nil })
	require.NoError(t, err)
	_, err = session.Mouse.GetOrCreate(func() (ports.Mouse, error) { return mouse, nil })
	require.NoError(t, err)

	require.NoError(t, m.StartApp(session.SessionID))

	assert.Equal(t, 1, runner.runs)
	assert.Equal(t, session.SessionID, runner.sessionID)
	assert.Equal(t, "/tmp/state", runner.stateFolder)
	assert.Contains(t, runner.virtualInputs, "/dev/wl0")
	assert.Contains(t, runner.virtualInputs, "/dev/input/event3")
	assert.Equal(t, "wayland-1", runner.env["WAYLAND_DISPLAY"])
	assert.Equal(t, "/dev/dri/renderD128", runner.renderNode)
	assert.Equal(t, []string{events.RunnerTypeProcess}, metrics.runners)
}

func TestStartApp_Errors(t *testing.T) {
	m, _, _ := newTestManager(t)

	err := m.StartApp(999)
	assert.True(t, errors.Is(err, domain.ErrSessionNotFound))

	session := createSession(t, m, testApp(nil), "10.0.0.2")
	err = m.StartApp(session.SessionID)
	assert.Error(t, err, "an app without a runner cannot be started")

	failing := &fakeRunner{err: errors.New("exec failed")}
	session = createSession(t, m, testApp(failing), "10.0.0.3")
	err = m.StartApp(session.SessionID)
	assert.Error(t, err)
}

func TestStartApp_ContextBoundToSession(t *testing.T) {
	m, bus, _ := newTestManager(t)
	runner := &fakeRunner{}
	session := createSession(t, m, testApp(runner), "10.0.0.2")

	require.NoError(t, m.StartApp(session.SessionID))
	require.NotNil(t, runner.ctx)

	// The launch context must outlive whoever triggered the launch; a
	// healthy session keeps its app running indefinitely.
	assert.NoError(t, runner.ctx.Err(), "launch context must stay live while the session runs")

	bus.Publish(&events.StopStreamEvent{SessionID: session.SessionID})
	select {
	case <-runner.ctx.Done():
	default:
		t.Fatal("teardown must cancel the launch context")
	}
}
