// Package sessions tracks every active StreamSession and drives its
// lifecycle state machine off bus events. Collaborators never call each
// other across the session boundary; everything goes through the bus.
package sessions

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Relicjamin-jv/wolf/internal/core/domain"
	"github.com/Relicjamin-jv/wolf/internal/core/events"
	"github.com/Relicjamin-jv/wolf/pkg/crypto"
	"github.com/Relicjamin-jv/wolf/pkg/tsqueue"
	"go.uber.org/zap"
)

// State is the lifecycle state of one stream session.
type State string

const (
	StateCreated     State = "created"
	StateNegotiating State = "negotiating"
	StateActive      State = "active"
	StatePaused      State = "paused"
	StateStopped     State = "stopped"
)

// Metrics receives lifecycle notifications; the prometheus collector
// implements it. A nil Metrics is valid.
type Metrics interface {
	SessionStarted()
	SessionStopped(duration time.Duration)
	RunnerStarted(runnerType string)
}

type activeSession struct {
	session *events.StreamSession
	devices *events.DeviceQueue
	started time.Time

	// bounds the runner and its goroutines; cancelled at teardown
	ctx    context.Context
	cancel context.CancelFunc

	mu              sync.Mutex
	state           State
	videoNegotiated bool
	audioNegotiated bool

	// per-session bus registrations, dropped first at teardown
	regs []*events.Registration
}

// Manager owns the registry of currently active sessions. The registry
// is a copy-on-write map behind an atomic pointer so readers iterate a
// stable snapshot while session start/stop serialize on a mutex.
type Manager struct {
	bus     *events.Bus
	logger  *zap.SugaredLogger
	metrics Metrics

	writeMu  sync.Mutex
	sessions atomic.Pointer[map[domain.SessionID]*activeSession]

	regs []*events.Registration
}

func NewManager(bus *events.Bus, logger *zap.SugaredLogger, metrics Metrics) *Manager {
	m := &Manager{
		bus:     bus,
		logger:  logger,
		metrics: metrics,
	}
	empty := map[domain.SessionID]*activeSession{}
	m.sessions.Store(&empty)
	m.subscribe()
	return m
}

func (m *Manager) subscribe() {
	m.regs = append(m.regs,
		events.Subscribe(m.bus, m.onStreamSession),
		events.Subscribe(m.bus, m.onVideoSession),
		events.Subscribe(m.bus, m.onAudioSession),
		events.Subscribe(m.bus, m.onIDRRequest),
		events.Subscribe(m.bus, m.onVideoPing),
		events.Subscribe(m.bus, m.onAudioPing),
		events.Subscribe(m.bus, m.onPauseStream),
		events.Subscribe(m.bus, m.onResumeStream),
		events.Subscribe(m.bus, m.onStopStream),
		events.Subscribe(m.bus, m.onPlugDevice),
	)
}

// Close drops the manager's bus subscriptions. Active sessions are left
// untouched; stop them first via StopStreamEvent.
func (m *Manager) Close() {
	for _, reg := range m.regs {
		m.bus.Unsubscribe(reg)
	}
	m.regs = nil
}

// CreateParams fixes everything a session needs at creation time.
type CreateParams struct {
	App               *events.App
	ClientIP          string
	AppStateFolder    string
	DisplayMode       domain.DisplayMode
	AudioChannelCount int
	VideoStreamPort   uint16
	AudioStreamPort   uint16
}

// Create builds a StreamSession with fresh encryption material and a
// session id unique among the currently active sessions, then publishes
// it on the bus. The manager registers it through its own subscription,
// like any other subscriber would observe it.
func (m *Manager) Create(params CreateParams) (*events.StreamSession, error) {
	aesKey, err := crypto.Random(16)
	if err != nil {
		return nil, fmt.Errorf("failed to generate AES key: %w", err)
	}
	aesIV, err := crypto.Random(16)
	if err != nil {
		return nil, fmt.Errorf("failed to generate AES IV: %w", err)
	}

	sessionID, err := m.newSessionID()
	if err != nil {
		return nil, err
	}

	session := events.NewStreamSession(m.bus, params.App, sessionID, params.ClientIP)
	session.DisplayMode = params.DisplayMode
	session.AudioChannelCount = params.AudioChannelCount
	session.AppStateFolder = params.AppStateFolder
	session.AESKey = crypto.StrToHex(aesKey)
	session.AESIV = crypto.StrToHex(aesIV)
	session.VideoStreamPort = params.VideoStreamPort
	session.AudioStreamPort = params.AudioStreamPort

	m.bus.Publish(session)
	return session, nil
}

// Get returns the session with the given id, if it is still active.
func (m *Manager) Get(sessionID domain.SessionID) (*events.StreamSession, bool) {
	active, ok := (*m.sessions.Load())[sessionID]
	if !ok {
		return nil, false
	}
	return active.session, true
}

// List returns a snapshot of the active sessions.
func (m *Manager) List() []*events.StreamSession {
	snapshot := *m.sessions.Load()
	out := make([]*events.StreamSession, 0, len(snapshot))
	for _, active := range snapshot {
		out = append(out, active.session)
	}
	return out
}

// SessionState returns the lifecycle state of an active session.
func (m *Manager) SessionState(sessionID domain.SessionID) (State, error) {
	active, ok := (*m.sessions.Load())[sessionID]
	if !ok {
		return StateStopped, fmt.Errorf("%w: %d", domain.ErrSessionNotFound, sessionID)
	}
	active.mu.Lock()
	defer active.mu.Unlock()
	return active.state, nil
}

// DeviceQueue returns the hot-plug queue feeding an active session.
func (m *Manager) DeviceQueue(sessionID domain.SessionID) (*events.DeviceQueue, error) {
	active, ok := (*m.sessions.Load())[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrSessionNotFound, sessionID)
	}
	return active.devices, nil
}

// TrackRegistration ties a bus registration to a session so teardown
// drops it before any resource is destroyed.
func (m *Manager) TrackRegistration(sessionID domain.SessionID, reg *events.Registration) error {
	active, ok := (*m.sessions.Load())[sessionID]
	if !ok {
		return fmt.Errorf("%w: %d", domain.ErrSessionNotFound, sessionID)
	}
	active.mu.Lock()
	active.regs = append(active.regs, reg)
	active.mu.Unlock()
	return nil
}

// StartApp launches the session's app through its runner, handing it
// the session device queue and whatever virtual devices have been
// populated so far. Invoked exactly once per session start; launch
// errors propagate to the caller, which decides whether to abort.
// The runner gets a context that lives as long as the session itself,
// not as long as whichever caller triggered the launch; teardown
// cancels it.
func (m *Manager) StartApp(sessionID domain.SessionID) error {
	active, ok := (*m.sessions.Load())[sessionID]
	if !ok {
		return fmt.Errorf("%w: %d", domain.ErrSessionNotFound, sessionID)
	}

	session := active.session
	if session.App == nil || session.App.Runner == nil {
		return fmt.Errorf("session %d has no runnable app", sessionID)
	}

	var virtualInputs []string
	env := map[string]string{}

	if display, populated := session.WaylandDisplay.Get(); populated {
		virtualInputs = append(virtualInputs, display.DeviceNodes()...)
		for _, kv := range display.EnvVars() {
			if k, v, found := strings.Cut(kv, "="); found {
				env[k] = v
			}
		}
	}
	if mouse, populated := session.Mouse.Get(); populated {
		virtualInputs = append(virtualInputs, mouse.DeviceNodes()...)
	}
	if keyboard, populated := session.Keyboard.Get(); populated {
		virtualInputs = append(virtualInputs, keyboard.DeviceNodes()...)
	}
	for _, pad := range session.Joypads.Snapshot() {
		virtualInputs = append(virtualInputs, pad.DeviceNodes()...)
	}

	err := session.App.Runner.Run(active.ctx,
		sessionID,
		session.AppStateFolder,
		active.devices,
		virtualInputs,
		nil,
		env,
		session.App.RenderNode,
	)
	if err != nil {
		return fmt.Errorf("failed to run app %q: %w", session.App.Title, err)
	}
	if m.metrics != nil {
		m.metrics.RunnerStarted(session.App.Runner.Serialize().Type)
	}
	return nil
}

func (m *Manager) onStreamSession(session *events.StreamSession) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	current := *m.sessions.Load()
	if _, exists := current[session.SessionID]; exists {
		return fmt.Errorf("%w: %d", domain.ErrDuplicateSession, session.SessionID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	next := copySessions(current)
	next[session.SessionID] = &activeSession{
		session: session,
		devices: tsqueue.New[*events.PlugDeviceEvent](),
		started: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
		state:   StateCreated,
	}
	m.sessions.Store(&next)

	if m.metrics != nil {
		m.metrics.SessionStarted()
	}
	m.logger.Infow("stream session created",
		"session_id", session.SessionID,
		"client_ip", session.ClientIP,
		"app", session.App.Title,
	)
	return nil
}

func (m *Manager) onVideoSession(video *events.VideoSession) error {
	active, ok := (*m.sessions.Load())[video.SessionID]
	if !ok {
		return fmt.Errorf("video session for unknown stream session %d", video.SessionID)
	}

	active.mu.Lock()
	defer active.mu.Unlock()
	active.videoNegotiated = true
	if active.state == StateCreated {
		active.state = StateNegotiating
	}
	return nil
}

func (m *Manager) onAudioSession(audio *events.AudioSession) error {
	active, ok := (*m.sessions.Load())[audio.SessionID]
	if !ok {
		return fmt.Errorf("audio session for unknown stream session %d", audio.SessionID)
	}

	active.mu.Lock()
	defer active.mu.Unlock()
	active.audioNegotiated = true
	if active.state == StateCreated {
		active.state = StateNegotiating
	}
	return nil
}

func (m *Manager) onIDRRequest(ev *events.IDRRequestEvent) error {
	active, ok := (*m.sessions.Load())[ev.SessionID]
	if !ok {
		return nil
	}
	m.markActive(active)
	return nil
}

func (m *Manager) onVideoPing(ev *events.RTPVideoPingEvent) error {
	m.markActiveByIP(ev.ClientIP)
	return nil
}

func (m *Manager) onAudioPing(ev *events.RTPAudioPingEvent) error {
	m.markActiveByIP(ev.ClientIP)
	return nil
}

// markActiveByIP resolves ping events, which carry no session id, to
// the session of the pinging client.
func (m *Manager) markActiveByIP(clientIP string) {
	for _, active := range *m.sessions.Load() {
		if active.session.ClientIP == clientIP {
			m.markActive(active)
			return
		}
	}
}

func (m *Manager) markActive(active *activeSession) {
	active.mu.Lock()
	defer active.mu.Unlock()
	if active.state == StateCreated || active.state == StateNegotiating {
		active.state = StateActive
	}
}

func (m *Manager) onPauseStream(ev *events.PauseStreamEvent) error {
	active, ok := (*m.sessions.Load())[ev.SessionID]
	if !ok {
		return nil
	}

	// Pausing keeps negotiated ports, keys and device slots intact.
	active.mu.Lock()
	defer active.mu.Unlock()
	if active.state == StateActive {
		active.state = StatePaused
	}
	return nil
}

func (m *Manager) onResumeStream(ev *events.ResumeStreamEvent) error {
	active, ok := (*m.sessions.Load())[ev.SessionID]
	if !ok {
		return nil
	}

	active.mu.Lock()
	defer active.mu.Unlock()
	if active.state == StatePaused {
		active.state = StateActive
	}
	return nil
}

func (m *Manager) onPlugDevice(ev *events.PlugDeviceEvent) error {
	active, ok := (*m.sessions.Load())[ev.SessionID]
	if !ok {
		return nil
	}
	if err := active.devices.Push(ev); err != nil {
		// Queue already closed: session is tearing down, drop the event.
		m.logger.Debugw("dropping device event for stopping session",
			"session_id", ev.SessionID,
		)
	}
	return nil
}

func (m *Manager) onStopStream(ev *events.StopStreamEvent) error {
	m.writeMu.Lock()
	current := *m.sessions.Load()
	active, ok := current[ev.SessionID]
	if !ok {
		m.writeMu.Unlock()
		return nil
	}

	next := copySessions(current)
	delete(next, ev.SessionID)
	m.sessions.Store(&next)
	m.writeMu.Unlock()

	m.teardown(active)

	if m.metrics != nil {
		m.metrics.SessionStopped(time.Since(active.started))
	}
	m.logger.Infow("stream session stopped", "session_id", ev.SessionID)
	return nil
}

// teardown releases everything a session owns. Subscriptions go first
// so no per-session handler fires once teardown has begun, then the
// device queue wakes its blocked consumers, then the virtual devices
// are destroyed in order: wayland display, pointer and keyboard,
// joypads, pen and touch. The runner context is cancelled last, after
// the stop handlers have had their chance to kill the app.
func (m *Manager) teardown(active *activeSession) {
	active.mu.Lock()
	active.state = StateStopped
	regs := active.regs
	active.regs = nil
	active.mu.Unlock()

	for _, reg := range regs {
		m.bus.Unsubscribe(reg)
	}

	active.devices.Close()

	session := active.session
	if display, ok := session.WaylandDisplay.Destroy(); ok {
		m.closeDevice("wayland_display", session.SessionID, display)
	}
	if mouse, ok := session.Mouse.Destroy(); ok {
		m.closeDevice("mouse", session.SessionID, mouse)
	}
	if keyboard, ok := session.Keyboard.Destroy(); ok {
		m.closeDevice("keyboard", session.SessionID, keyboard)
	}
	for _, pad := range session.Joypads.Destroy() {
		m.closeDevice("joypad", session.SessionID, pad)
	}
	if pen, ok := session.PenTablet.Destroy(); ok {
		m.closeDevice("pen_tablet", session.SessionID, pen)
	}
	if touch, ok := session.TouchScreen.Destroy(); ok {
		m.closeDevice("touch_screen", session.SessionID, touch)
	}

	active.cancel()
}

func (m *Manager) closeDevice(kind string, sessionID domain.SessionID, device interface{ Close() error }) {
	if device == nil {
		return
	}
	if err := device.Close(); err != nil {
		m.logger.Warnw("failed to close virtual device",
			"kind", kind,
			"session_id", sessionID,
			"error", err,
		)
	}
}

// newSessionID draws random ids until one is unique among the active
// sessions. Ids become reusable once their session has been torn down.
func (m *Manager) newSessionID() (domain.SessionID, error) {
	for attempt := 0; attempt < 16; attempt++ {
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("failed to generate session id: %w", err)
		}
		id := domain.SessionID(binary.BigEndian.Uint64(buf[:]))
		if _, taken := (*m.sessions.Load())[id]; !taken && id != 0 {
			return id, nil
		}
	}
	return 0, fmt.Errorf("failed to allocate a unique session id")
}

func copySessions(current map[domain.SessionID]*activeSession) map[domain.SessionID]*activeSession {
	next := make(map[domain.SessionID]*activeSession, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	return next
}
