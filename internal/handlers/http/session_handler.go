package http

import (
	"net/http"
	"strconv"

	"github.com/Relicjamin-jv/wolf/internal/core/domain"
	"github.com/Relicjamin-jv/wolf/internal/core/events"
	"github.com/Relicjamin-jv/wolf/internal/core/sessions"
	"github.com/Relicjamin-jv/wolf/internal/core/state"
	"github.com/Relicjamin-jv/wolf/pkg/config"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionHandler exposes the admin view over apps, paired clients and
// active sessions. All state changes go through the bus or the config
// store; the handler never touches session internals directly.
type SessionHandler struct {
	state   *state.Config
	manager *sessions.Manager
	bus     *events.Bus
	cfg     *config.Config
	logger  *zap.SugaredLogger
}

func NewSessionHandler(
	stateCfg *state.Config,
	manager *sessions.Manager,
	bus *events.Bus,
	cfg *config.Config,
	logger *zap.SugaredLogger,
) *SessionHandler {
	return &SessionHandler{
		state:   stateCfg,
		manager: manager,
		bus:     bus,
		cfg:     cfg,
		logger:  logger,
	}
}

func (h *SessionHandler) SetupRoutes(group *gin.RouterGroup) {
	group.GET("/apps", h.ListApps)
	group.GET("/clients", h.ListClients)
	group.DELETE("/clients/:id", h.UnpairClient)

	group.GET("/sessions", h.ListSessions)
	group.GET("/sessions/:id", h.GetSession)
	group.POST("/sessions", h.CreateSession)
	group.POST("/sessions/:id/stop", h.StopSession)
	group.POST("/sessions/:id/pause", h.PauseSession)
	group.POST("/sessions/:id/resume", h.ResumeSession)
}

func (h *SessionHandler) ListApps(c *gin.Context) {
	apps := h.state.Apps()
	out := make([]gin.H, 0, len(apps))
	for _, app := range apps {
		entry := gin.H{
			"id":          string(app.ID),
			"title":       app.Title,
			"support_hdr": app.SupportHDR,
		}
		if app.Runner != nil {
			entry["runner"] = app.Runner.Serialize().Type
		}
		out = append(out, entry)
	}
	c.JSON(http.StatusOK, gin.H{"apps": out})
}

func (h *SessionHandler) ListClients(c *gin.Context) {
	clients := h.state.PairedClients()
	out := make([]gin.H, 0, len(clients))
	for _, client := range clients {
		out = append(out, gin.H{
			"id":   string(client.ID),
			"name": client.Name,
		})
	}
	c.JSON(http.StatusOK, gin.H{"clients": out})
}

func (h *SessionHandler) UnpairClient(c *gin.Context) {
	clientID := domain.ClientID(c.Param("id"))

	for _, client := range h.state.PairedClients() {
		if client.ID == clientID {
			h.state.Unpair(client)
			h.logger.Infow("client unpaired", "client_id", clientID)
			c.JSON(http.StatusOK, gin.H{"status": "unpaired"})
			return
		}
	}
	c.Error(domain.ErrClientNotFound)
}

func (h *SessionHandler) ListSessions(c *gin.Context) {
	active := h.manager.List()
	out := make([]gin.H, 0, len(active))
	for _, session := range active {
		out = append(out, h.sessionJSON(session))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}

	session, found := h.manager.Get(sessionID)
	if !found {
		c.Error(domain.ErrSessionNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": h.sessionJSON(session)})
}

func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req struct {
		AppID             string `json:"app_id" binding:"required"`
		ClientIP          string `json:"client_ip" binding:"required"`
		Width             int    `json:"width"`
		Height            int    `json:"height"`
		RefreshRate       int    `json:"refresh_rate"`
		AudioChannelCount int    `json:"audio_channel_count"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	app, err := h.state.GetAppByID(domain.AppID(req.AppID))
	if err != nil {
		c.Error(err)
		return
	}

	if req.Width == 0 {
		req.Width = 1920
	}
	if req.Height == 0 {
		req.Height = 1080
	}
	if req.RefreshRate == 0 {
		req.RefreshRate = 60
	}
	if req.AudioChannelCount == 0 {
		req.AudioChannelCount = 2
	}

	session, err := h.manager.Create(sessions.CreateParams{
		App:            app,
		ClientIP:       req.ClientIP,
		AppStateFolder: h.cfg.Paths.AppStateFolder,
		DisplayMode: domain.DisplayMode{
			Width:       req.Width,
			Height:      req.Height,
			RefreshRate: req.RefreshRate,
		},
		AudioChannelCount: req.AudioChannelCount,
		VideoStreamPort:   h.cfg.Streaming.VideoPortBase,
		AudioStreamPort:   h.cfg.Streaming.AudioPortBase,
	})
	if err != nil {
		c.Error(err)
		return
	}

	if err := h.manager.StartApp(session.SessionID); err != nil {
		// The session exists but its app failed to launch; tear it down.
		h.bus.Publish(&events.StopStreamEvent{SessionID: session.SessionID})
		c.Error(err)
		return
	}

	h.logger.Infow("session created via admin api",
		"session_id", session.SessionID,
		"app_id", req.AppID,
		"client_ip", req.ClientIP,
	)
	c.JSON(http.StatusCreated, gin.H{"session": h.sessionJSON(session)})
}

func (h *SessionHandler) StopSession(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	if _, found := h.manager.Get(sessionID); !found {
		c.Error(domain.ErrSessionNotFound)
		return
	}

	h.bus.Publish(&events.StopStreamEvent{SessionID: sessionID})
	c.JSON(http.StatusAccepted, gin.H{"status": "stopping"})
}

func (h *SessionHandler) PauseSession(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	if _, found := h.manager.Get(sessionID); !found {
		c.Error(domain.ErrSessionNotFound)
		return
	}

	h.bus.Publish(&events.PauseStreamEvent{SessionID: sessionID})
	c.JSON(http.StatusAccepted, gin.H{"status": "pausing"})
}

func (h *SessionHandler) ResumeSession(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	if _, found := h.manager.Get(sessionID); !found {
		c.Error(domain.ErrSessionNotFound)
		return
	}

	h.bus.Publish(&events.ResumeStreamEvent{SessionID: sessionID})
	c.JSON(http.StatusAccepted, gin.H{"status": "resuming"})
}

func (h *SessionHandler) sessionID(c *gin.Context) (domain.SessionID, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return 0, false
	}
	return domain.SessionID(id), true
}

func (h *SessionHandler) sessionJSON(session *events.StreamSession) gin.H {
	out := gin.H{
		"session_id":          strconv.FormatUint(uint64(session.SessionID), 10),
		"client_ip":           session.ClientIP,
		"display_mode":        session.DisplayMode,
		"audio_channel_count": session.AudioChannelCount,
		"video_stream_port":   session.VideoStreamPort,
		"audio_stream_port":   session.AudioStreamPort,
	}
	if session.App != nil {
		out["app_id"] = string(session.App.ID)
		out["app_title"] = session.App.Title
	}
	if state, err := h.manager.SessionState(session.SessionID); err == nil {
		out["state"] = string(state)
	}
	return out
}
