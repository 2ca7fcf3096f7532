package domain

// SessionID uniquely identifies a stream session among all currently
// active sessions. IDs become eligible for reuse only after teardown.
type SessionID uint64

// ClientID uniquely identifies a paired client.
type ClientID string

// AppID uniquely identifies a launchable application.
type AppID string

// DisplayMode describes the negotiated output resolution and refresh rate.
type DisplayMode struct {
	Width       int
	Height      int
	RefreshRate int
}

// ColorRange is the video color range negotiated over RTSP.
type ColorRange string

const (
	ColorRangeJPEG ColorRange = "JPEG"
	ColorRangeMPEG ColorRange = "MPEG"
)

// ColorSpace is the video color space negotiated over RTSP.
type ColorSpace string

const (
	ColorSpaceBT601  ColorSpace = "BT601"
	ColorSpaceBT709  ColorSpace = "BT709"
	ColorSpaceBT2020 ColorSpace = "BT2020"
)

// AudioMode describes the negotiated audio layout.
type AudioMode struct {
	Channels       int
	Streams        int
	CoupledStreams int
	SpeakerMapping []string
	BitrateKbps    int
}

// ControllerType hints which kind of virtual joypad should be created
// for a session of a given app.
type ControllerType string

const (
	ControllerAuto     ControllerType = "AUTO"
	ControllerXbox     ControllerType = "XBOX"
	ControllerPS       ControllerType = "PS"
	ControllerNintendo ControllerType = "NINTENDO"
)
