package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/Relicjamin-jv/wolf/internal/core/domain"
	"github.com/Relicjamin-jv/wolf/internal/core/events"
	"github.com/Relicjamin-jv/wolf/internal/core/runners"
	"github.com/Relicjamin-jv/wolf/internal/core/sessions"
	"github.com/Relicjamin-jv/wolf/internal/core/state"
	"github.com/Relicjamin-jv/wolf/internal/infrastructure/middleware"
	"github.com/Relicjamin-jv/wolf/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingRunner satisfies events.Runner without touching the host.
type recordingRunner struct {
	runs int
	ctx  context.Context
	fail bool
}

func (r *recordingRunner) Run(ctx context.Context,
	sessionID domain.SessionID,
	appStateFolder string,
	pluggedDevices *events.DeviceQueue,
	virtualInputs []string,
	paths []events.PathMapping,
	env map[string]string,
	renderNode string) error {
	if r.fail {
		return assert.AnError
	}
	r.runs++
	r.ctx = ctx
	return nil
}

func (r *recordingRunner) Serialize() events.RunnerConfig {
	return events.RunnerConfig{Type: events.RunnerTypeProcess, RunCmd: "steam"}
}

type sessionTestEnv struct {
	router  *gin.Engine
	state   *state.Config
	manager *sessions.Manager
	bus     *events.Bus
}

func newSessionTestEnv(t *testing.T, apps ...*events.App) *sessionTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop().Sugar()

	bus := events.NewBus(log)
	factory := runners.NewFactory(nil, nil, log)
	stateCfg, err := state.LoadOrDefault("", bus, factory, log)
	require.NoError(t, err)
	stateCfg.ReloadApps(apps)

	manager := sessions.NewManager(bus, log, nil)
	t.Cleanup(manager.Close)

	handler := NewSessionHandler(stateCfg, manager, bus, config.DefaultConfig(), log)

	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(log))
	handler.SetupRoutes(router.Group("/api/v1"))

	return &sessionTestEnv{router: router, state: stateCfg, manager: manager, bus: bus}
}

func (env *sessionTestEnv) do(t *testing.T, method, path string, body gin.H) (*httptest.ResponseRecorder, gin.H) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	env.router.ServeHTTP(w, req)

	out := gin.H{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func TestSessionHandler_ListApps(t *testing.T) {
	env := newSessionTestEnv(t,
		&events.App{ID: "1", Title: "Steam", Runner: &recordingRunner{}},
		&events.App{ID: "2", Title: "Firefox", SupportHDR: true},
	)

	w, resp := env.do(t, http.MethodGet, "/api/v1/apps", nil)
	require.Equal(t, http.StatusOK, w.Code)
	apps := resp["apps"].([]interface{})
	require.Len(t, apps, 2)
	first := apps[0].(map[string]interface{})
	assert.Equal(t, "Steam", first["title"])
	assert.Equal(t, events.RunnerTypeProcess, first["runner"])
}

func TestSessionHandler_CreateAndStopSession(t *testing.T) {
	runner := &recordingRunner{}
	env := newSessionTestEnv(t, &events.App{ID: "1", Title: "Steam", Runner: runner})

	w, resp := env.do(t, http.MethodPost, "/api/v1/sessions", gin.H{
		"app_id":    "1",
		"client_ip": "10.0.0.2",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, 1, runner.runs)

	session := resp["session"].(map[string]interface{})
	sessionID := session["session_id"].(string)
	require.NotEmpty(t, sessionID)
	assert.Equal(t, "Steam", session["app_title"])
	assert.Equal(t, string(sessions.StateCreated), session["state"])
	require.Len(t, env.manager.List(), 1)

	w, _ = env.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/stop", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Empty(t, env.manager.List(), "stop must tear the session down")
}

func TestSessionHandler_CreateSession_SurvivesRequestContextCancel(t *testing.T) {
	runner := &recordingRunner{}
	env := newSessionTestEnv(t, &events.App{ID: "1", Title: "Steam", Runner: runner})

	var stops []*events.StopStreamEvent
	events.Subscribe(env.bus, func(ev *events.StopStreamEvent) error {
		stops = append(stops, ev)
		return nil
	})

	payload, err := json.Marshal(gin.H{"app_id": "1", "client_ip": "10.0.0.2"})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, "/api/v1/sessions", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// The server cancels the request context once the response is
	// written; the app must keep running regardless.
	cancel()
	require.NotNil(t, runner.ctx)
	assert.NoError(t, runner.ctx.Err(), "app lifetime must not be tied to the request")
	assert.Empty(t, stops, "a healthy session must not be stopped by the request ending")
	assert.Len(t, env.manager.List(), 1)
}

func TestSessionHandler_CreateSession_UnknownApp(t *testing.T) {
	env := newSessionTestEnv(t)

	w, _ := env.do(t, http.MethodPost, "/api/v1/sessions", gin.H{
		"app_id":    "404",
		"client_ip": "10.0.0.2",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionHandler_CreateSession_LaunchFailureTearsDown(t *testing.T) {
	env := newSessionTestEnv(t, &events.App{ID: "1", Title: "Steam", Runner: &recordingRunner{fail: true}})

	w, _ := env.do(t, http.MethodPost, "/api/v1/sessions", gin.H{
		"app_id":    "1",
		"client_ip": "10.0.0.2",
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, env.manager.List(), "a session whose app failed to launch must not linger")
}

func TestSessionHandler_PauseResume(t *testing.T) {
	env := newSessionTestEnv(t, &events.App{ID: "1", Title: "Steam", Runner: &recordingRunner{}})

	_, resp := env.do(t, http.MethodPost, "/api/v1/sessions", gin.H{
		"app_id":    "1",
		"client_ip": "10.0.0.2",
	})
	sessionID := resp["session"].(map[string]interface{})["session_id"].(string)
	id, err := strconv.ParseUint(sessionID, 10, 64)
	require.NoError(t, err)

	// Reach Active through bus events, like the media collaborators do.
	env.bus.Publish(&events.VideoSession{SessionID: domain.SessionID(id)})
	env.bus.Publish(&events.IDRRequestEvent{SessionID: domain.SessionID(id)})

	w, _ := env.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/pause", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	state, err := env.manager.SessionState(domain.SessionID(id))
	require.NoError(t, err)
	assert.Equal(t, sessions.StatePaused, state)

	w, _ = env.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/resume", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	state, err = env.manager.SessionState(domain.SessionID(id))
	require.NoError(t, err)
	assert.Equal(t, sessions.StateActive, state)
}

func TestSessionHandler_UnknownSession(t *testing.T) {
	env := newSessionTestEnv(t)

	w, _ := env.do(t, http.MethodGet, "/api/v1/sessions/12345", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/v1/sessions/12345/stop", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/v1/sessions/not-a-number", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionHandler_UnpairClient(t *testing.T) {
	env := newSessionTestEnv(t)
	require.NoError(t, env.state.Pair(domain.PairedClient{ID: "c1", Name: "Phone", ClientCert: "cert"}))

	w, _ := env.do(t, http.MethodDelete, "/api/v1/clients/c1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, env.state.PairedClients())

	w, _ = env.do(t, http.MethodDelete, "/api/v1/clients/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
