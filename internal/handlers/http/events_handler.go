package http

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Relicjamin-jv/wolf/internal/core/events"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// sendQueueSize bounds the per-subscriber backlog. A subscriber that
// falls further behind than this gets dropped.
const sendQueueSize = 64

// feedMessage is one bus event rendered for websocket subscribers.
type feedMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// feedClient is one websocket subscriber. All writes go through its
// send channel so a stalled connection never blocks a bus publish.
type feedClient struct {
	conn *websocket.Conn
	send chan feedMessage
}

// EventsHandler fans bus events out to websocket subscribers so UIs can
// react to pairing prompts and session lifecycle changes without
// polling. Subscribers are read-only; inbound messages are discarded.
type EventsHandler struct {
	bus    *events.Bus
	logger *zap.SugaredLogger

	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	mu    sync.Mutex
	conns map[*feedClient]struct{}

	regs []*events.Registration
}

func NewEventsHandler(bus *events.Bus, logger *zap.SugaredLogger) *EventsHandler {
	h := &EventsHandler{
		bus:          bus,
		logger:       logger,
		pingInterval: 30 * time.Second,
		readTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
		conns:        make(map[*feedClient]struct{}),
	}
	h.subscribe()
	return h
}

func (h *EventsHandler) subscribe() {
	h.regs = append(h.regs,
		events.Subscribe(h.bus, func(ev *events.PairSignal) error {
			h.broadcast(events.EventPair, gin.H{"client_ip": ev.ClientIP, "host_ip": ev.HostIP})
			return nil
		}),
		events.Subscribe(h.bus, func(session *events.StreamSession) error {
			payload := gin.H{
				"session_id": strconv.FormatUint(uint64(session.SessionID), 10),
				"client_ip":  session.ClientIP,
			}
			if session.App != nil {
				payload["app_title"] = session.App.Title
			}
			h.broadcast(events.EventStreamSession, payload)
			return nil
		}),
		events.Subscribe(h.bus, func(ev *events.VideoSession) error {
			h.broadcast(events.EventVideoSession, sessionIDPayload(uint64(ev.SessionID)))
			return nil
		}),
		events.Subscribe(h.bus, func(ev *events.AudioSession) error {
			h.broadcast(events.EventAudioSession, sessionIDPayload(uint64(ev.SessionID)))
			return nil
		}),
		events.Subscribe(h.bus, func(ev *events.PauseStreamEvent) error {
			h.broadcast(events.EventPauseStream, sessionIDPayload(uint64(ev.SessionID)))
			return nil
		}),
		events.Subscribe(h.bus, func(ev *events.ResumeStreamEvent) error {
			h.broadcast(events.EventResumeStream, sessionIDPayload(uint64(ev.SessionID)))
			return nil
		}),
		events.Subscribe(h.bus, func(ev *events.StopStreamEvent) error {
			h.broadcast(events.EventStopStream, sessionIDPayload(uint64(ev.SessionID)))
			return nil
		}),
		events.Subscribe(h.bus, func(ev *events.PlugDeviceEvent) error {
			h.broadcast(events.EventPlugDevice, sessionIDPayload(uint64(ev.SessionID)))
			return nil
		}),
		events.Subscribe(h.bus, func(ev *events.UnplugDeviceEvent) error {
			h.broadcast(events.EventUnplugDevice, sessionIDPayload(uint64(ev.SessionID)))
			return nil
		}),
	)
}

func sessionIDPayload(id uint64) gin.H {
	return gin.H{"session_id": strconv.FormatUint(id, 10)}
}

// Close drops the bus subscriptions and disconnects every subscriber.
func (h *EventsHandler) Close() {
	for _, reg := range h.regs {
		h.bus.Unsubscribe(reg)
	}
	h.regs = nil

	h.mu.Lock()
	for client := range h.conns {
		close(client.send)
	}
	h.conns = make(map[*feedClient]struct{})
	h.mu.Unlock()
}

func (h *EventsHandler) SetupRoutes(group *gin.RouterGroup) {
	group.GET("/events", h.HandleWebSocket)
}

func (h *EventsHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	client := &feedClient{conn: conn, send: make(chan feedMessage, sendQueueSize)}
	h.mu.Lock()
	h.conns[client] = struct{}{}
	subscriberCount := len(h.conns)
	h.mu.Unlock()

	h.logger.Infow("event feed subscriber connected",
		"remote_addr", conn.RemoteAddr().String(),
		"subscribers", subscriberCount,
	)

	go h.writePump(client)

	// The feed is one-way, but we still must consume control frames and
	// detect disconnects.
	conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debugw("event feed read error", "error", err)
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	}

	h.remove(client)
	h.logger.Infow("event feed subscriber disconnected",
		"remote_addr", conn.RemoteAddr().String(),
	)
}

// writePump is the only goroutine writing to the connection. It drains
// the send channel and keeps the connection alive with pings; a closed
// send channel tells it the subscriber was dropped.
func (h *EventsHandler) writePump(client *feedClient) {
	pingTicker := time.NewTicker(h.pingInterval)
	defer pingTicker.Stop()
	defer client.conn.Close()

	for {
		select {
		case msg, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := client.conn.WriteJSON(msg); err != nil {
				h.remove(client)
				return
			}
		case <-pingTicker.C:
			client.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(client)
				return
			}
		}
	}
}

func (h *EventsHandler) remove(client *feedClient) {
	h.mu.Lock()
	if _, ok := h.conns[client]; ok {
		delete(h.conns, client)
		close(client.send)
	}
	h.mu.Unlock()
}

// broadcast enqueues one message for every subscriber. It never blocks
// on the network: a subscriber whose queue is full is dropped so one
// stalled websocket cannot delay bus publishes.
func (h *EventsHandler) broadcast(eventType events.EventType, payload interface{}) {
	msg := feedMessage{Type: string(eventType), Payload: payload}

	h.mu.Lock()
	for client := range h.conns {
		select {
		case client.send <- msg:
		default:
			h.logger.Debugw("dropping stalled event feed subscriber")
			delete(h.conns, client)
			close(client.send)
		}
	}
	h.mu.Unlock()
}
