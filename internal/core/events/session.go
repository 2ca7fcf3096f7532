package events

import (
	"github.com/Relicjamin-jv/wolf/internal/core/domain"
	"github.com/Relicjamin-jv/wolf/internal/core/ports"
)

// StreamSession is the root aggregate for one connected client, alive
// for the lifetime of one stream. It is published on the bus right
// after pairing and app selection so the RTSP, control, audio and video
// threads can start working.
//
// The StreamSession is the sole long-lived owner of the virtual device
// slots; subsystem goroutines hold shared references whose validity
// ends at session teardown.
type StreamSession struct {
	DisplayMode       domain.DisplayMode
	AudioChannelCount int

	Bus *Bus
	App *App

	AppStateFolder string

	// GCM encryption keys for the control channel.
	AESKey string
	AESIV  string

	SessionID domain.SessionID
	ClientIP  string

	VideoStreamPort uint16
	AudioStreamPort uint16

	// Virtual device slots, populated lazily during the session and
	// destroyed on stream end.
	WaylandDisplay *Slot[ports.WaylandDisplay]
	Mouse          *Slot[ports.Mouse]
	Keyboard       *Slot[ports.Keyboard]
	Joypads        *JoypadMap
	PenTablet      *Slot[ports.PenTablet]
	TouchScreen    *Slot[ports.TouchScreen]
}

func (*StreamSession) Type() EventType { return EventStreamSession }

// NewStreamSession builds a session with all device slots empty.
func NewStreamSession(bus *Bus, app *App, sessionID domain.SessionID, clientIP string) *StreamSession {
	return &StreamSession{
		Bus:            bus,
		App:            app,
		SessionID:      sessionID,
		ClientIP:       clientIP,
		WaylandDisplay: NewSlot[ports.WaylandDisplay](),
		Mouse:          NewSlot[ports.Mouse](),
		Keyboard:       NewSlot[ports.Keyboard](),
		Joypads:        NewJoypadMap(),
		PenTablet:      NewSlot[ports.PenTablet](),
		TouchScreen:    NewSlot[ports.TouchScreen](),
	}
}
