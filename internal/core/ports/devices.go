package ports

// VirtualDevice is the minimal contract every virtual input/output
// device driver exposes to the core. The driver layer itself lives
// outside this module; the core only tracks lifecycles.
type VirtualDevice interface {
	// DeviceNodes returns the /dev paths backing this device, used to
	// mount them into the app's environment.
	DeviceNodes() []string
	Close() error
}

// WaylandDisplay is the virtual compositor attached to a session.
type WaylandDisplay interface {
	VirtualDevice
	// EnvVars returns the environment needed by clients of this display
	// (WAYLAND_DISPLAY and friends).
	EnvVars() []string
}

type Mouse interface {
	VirtualDevice
}

type Keyboard interface {
	VirtualDevice
}

type Joypad interface {
	VirtualDevice
}

type PenTablet interface {
	VirtualDevice
}

type TouchScreen interface {
	VirtualDevice
}
