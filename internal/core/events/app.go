package events

import (
	"context"

	"github.com/Relicjamin-jv/wolf/internal/core/domain"
	"github.com/Relicjamin-jv/wolf/pkg/tsqueue"
)

// DeviceQueue carries hot-plug device events from the host watcher to
// one session's consumer.
type DeviceQueue = tsqueue.Queue[*PlugDeviceEvent]

// PathMapping maps a host path into the app's environment.
type PathMapping struct {
	Src string
	Dst string
}

// Runner types understood by RunnerConfig.
const (
	RunnerTypeProcess      = "process"
	RunnerTypeDocker       = "docker"
	RunnerTypeChildSession = "child_session"
)

// RunnerConfig is the on-disk representation of a Runner: a tagged
// union discriminated by Type. It must round-trip through
// runners.FromConfig.
type RunnerConfig struct {
	Type string `toml:"type" json:"type"`

	// Type == "process"
	RunCmd string `toml:"run_cmd,omitempty" json:"run_cmd,omitempty"`

	// Type == "docker"
	Name    string   `toml:"name,omitempty" json:"name,omitempty"`
	Image   string   `toml:"image,omitempty" json:"image,omitempty"`
	Mounts  []string `toml:"mounts,omitempty" json:"mounts,omitempty"`
	Env     []string `toml:"env,omitempty" json:"env,omitempty"`
	Devices []string `toml:"devices,omitempty" json:"devices,omitempty"`
	Ports   []string `toml:"ports,omitempty" json:"ports,omitempty"`

	// Type == "child_session"
	ParentSessionID domain.SessionID `toml:"parent_session_id,omitempty" json:"parent_session_id,omitempty"`
}

// Runner starts the actual app bound to a session. Run is invoked
// exactly once per session start; implementations spawn their work and
// return control (or fail), they never block indefinitely. Process and
// container kill timeouts are the caller's decision, via ctx.
type Runner interface {
	Run(ctx context.Context,
		sessionID domain.SessionID,
		appStateFolder string,
		pluggedDevices *DeviceQueue,
		virtualInputs []string,
		paths []PathMapping,
		env map[string]string,
		renderNode string) error

	Serialize() RunnerConfig
}

// App is a launchable application definition. Read-only during normal
// operation; replaced wholesale on config reload.
type App struct {
	ID    domain.AppID
	Title string
	Icon  string

	SupportHDR bool

	H264GstPipeline string
	HevcGstPipeline string
	AV1GstPipeline  string
	OpusGstPipeline string

	RenderNode string

	StartVirtualCompositor bool
	JoypadType             domain.ControllerType

	Runner Runner
}
