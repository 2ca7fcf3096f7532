// Package events defines the closed catalog of event payloads that
// flow between the streaming subsystems, together with the typed bus
// carrying them. The bus is the only communication path across the
// session boundary; no subsystem calls another one directly.
package events

import (
	"github.com/Relicjamin-jv/wolf/internal/core/domain"
	"github.com/Relicjamin-jv/wolf/internal/core/pairing"
)

// EventType discriminates the payload types carried by the bus.
type EventType string

const (
	EventPair          EventType = "pair"
	EventPlugDevice    EventType = "plug_device"
	EventUnplugDevice  EventType = "unplug_device"
	EventStreamSession EventType = "stream_session"
	EventVideoSession  EventType = "video_session"
	EventAudioSession  EventType = "audio_session"
	EventIDRRequest    EventType = "idr_request"
	EventPauseStream   EventType = "pause_stream"
	EventResumeStream  EventType = "resume_stream"
	EventStopStream    EventType = "stop_stream"
	EventRTPVideoPing  EventType = "rtp_video_ping"
	EventRTPAudioPing  EventType = "rtp_audio_ping"
)

// Event is implemented by every payload in the catalog. Payloads are
// published as pointers and treated as immutable after publish.
type Event interface {
	Type() EventType
}

// PairSignal asks the front end for the PIN of a pairing attempt. The
// front end resolves Pin; the pairing flow blocks only on that promise.
type PairSignal struct {
	ClientIP string
	HostIP   string
	Pin      *pairing.Promise[string]
}

func (*PairSignal) Type() EventType { return EventPair }

// HwDBEntry is one udev hardware database record for a plugged device.
type HwDBEntry struct {
	Key    string
	Values []string
}

// PlugDeviceEvent announces a hot-plugged device for a session.
type PlugDeviceEvent struct {
	SessionID       domain.SessionID
	UdevEvents      []map[string]string
	UdevHwDBEntries []HwDBEntry
}

func (*PlugDeviceEvent) Type() EventType { return EventPlugDevice }

// UnplugDeviceEvent announces a device removal for a session.
type UnplugDeviceEvent struct {
	SessionID       domain.SessionID
	UdevEvents      []map[string]string
	UdevHwDBEntries []HwDBEntry
}

func (*UnplugDeviceEvent) Type() EventType { return EventUnplugDevice }

// VideoSession is the video negotiation result derived from a
// StreamSession after the RTSP parameter exchange. It is created once,
// never mutated, and not retained by the core after dispatch.
type VideoSession struct {
	DisplayMode domain.DisplayMode
	GstPipeline string

	SessionID domain.SessionID

	Port      uint16
	TimeoutMS int

	PacketSize                    int
	FramesWithInvalidRefThreshold int
	FecPercentage                 int
	MinRequiredFecPackets         int
	BitrateKbps                   int64
	SlicesPerFrame                int

	ColorRange domain.ColorRange
	ColorSpace domain.ColorSpace

	ClientIP string
}

func (*VideoSession) Type() EventType { return EventVideoSession }

// AudioSession is the audio counterpart of VideoSession.
type AudioSession struct {
	GstPipeline string

	SessionID domain.SessionID

	EncryptAudio bool
	AESKey       string
	AESIV        string

	Port     uint16
	ClientIP string

	PacketDuration int
	AudioMode      domain.AudioMode
}

func (*AudioSession) Type() EventType { return EventAudioSession }

// IDRRequestEvent asks the video pipeline to produce an IDR frame.
type IDRRequestEvent struct {
	SessionID domain.SessionID
}

func (*IDRRequestEvent) Type() EventType { return EventIDRRequest }

type PauseStreamEvent struct {
	SessionID domain.SessionID
}

func (*PauseStreamEvent) Type() EventType { return EventPauseStream }

type ResumeStreamEvent struct {
	SessionID domain.SessionID
}

func (*ResumeStreamEvent) Type() EventType { return EventResumeStream }

// StopStreamEvent tears the session down; it is accepted in any state.
type StopStreamEvent struct {
	SessionID domain.SessionID
}

func (*StopStreamEvent) Type() EventType { return EventStopStream }

// RTPVideoPingEvent is the client's video port ping.
type RTPVideoPingEvent struct {
	ClientIP   string
	ClientPort uint16
}

func (*RTPVideoPingEvent) Type() EventType { return EventRTPVideoPing }

// RTPAudioPingEvent is the client's audio port ping.
type RTPAudioPingEvent struct {
	ClientIP   string
	ClientPort uint16
}

func (*RTPAudioPingEvent) Type() EventType { return EventRTPAudioPing }
