package state

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/Relicjamin-jv/wolf/internal/core/domain"
	"github.com/Relicjamin-jv/wolf/internal/core/events"
	"github.com/Relicjamin-jv/wolf/internal/core/runners"
	"github.com/Relicjamin-jv/wolf/pkg/validation"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const configVersion = 2

type tomlConfig struct {
	ConfigVersion int          `toml:"config_version"`
	UUID          string       `toml:"uuid"`
	Hostname      string       `toml:"hostname"`
	Apps          []tomlApp    `toml:"apps"`
	PairedClients []tomlClient `toml:"paired_clients"`
}

type tomlApp struct {
	ID    string `toml:"id"`
	Title string `toml:"title"`
	Icon  string `toml:"icon,omitempty"`

	SupportHDR bool `toml:"support_hdr"`

	H264GstPipeline string `toml:"h264_gst_pipeline,omitempty"`
	HevcGstPipeline string `toml:"hevc_gst_pipeline,omitempty"`
	AV1GstPipeline  string `toml:"av1_gst_pipeline,omitempty"`
	OpusGstPipeline string `toml:"opus_gst_pipeline,omitempty"`

	RenderNode string `toml:"render_node,omitempty"`

	StartVirtualCompositor bool   `toml:"start_virtual_compositor"`
	JoypadType             string `toml:"joypad_type,omitempty"`

	Runner events.RunnerConfig `toml:"runner"`
}

type tomlClient struct {
	ID         string `toml:"id"`
	Name       string `toml:"name,omitempty"`
	ClientCert string `toml:"client_cert"`
}

// LoadOrDefault loads the configuration from the given TOML source.
// An absent source yields built-in defaults: empty apps, empty paired
// clients and a fresh host UUID.
func LoadOrDefault(source string, bus *events.Bus, factory *runners.Factory, logger *zap.SugaredLogger) (*Config, error) {
	cfg := &Config{
		UUID:     uuid.NewString(),
		Hostname: "Wolf",
		source:   source,
		logger:   logger,
	}
	emptyApps := []*events.App{}
	emptyClients := []domain.PairedClient{}
	cfg.apps.Store(&emptyApps)
	cfg.pairedClients.Store(&emptyClients)

	data, err := os.ReadFile(source)
	if err != nil {
		if os.IsNotExist(err) || source == "" {
			logger.Infow("config file not found, using defaults", "source", source)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var parsed tomlConfig
	if err := toml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if parsed.UUID != "" {
		cfg.UUID = parsed.UUID
	}
	if parsed.Hostname != "" {
		cfg.Hostname = parsed.Hostname
	}

	apps := make([]*events.App, 0, len(parsed.Apps))
	for _, entry := range parsed.Apps {
		app, err := appFromTOML(entry, bus, factory)
		if err != nil {
			// Structurally invalid entry: unusable, skip it.
			logger.Errorw("failed to load app entry",
				"title", entry.Title,
				"error", err,
			)
			continue
		}
		apps = append(apps, app)
	}
	cfg.apps.Store(&apps)

	clients := make([]domain.PairedClient, 0, len(parsed.PairedClients))
	for _, entry := range parsed.PairedClients {
		clients = append(clients, domain.PairedClient{
			ID:         domain.ClientID(entry.ID),
			Name:       entry.Name,
			ClientCert: entry.ClientCert,
		})
	}
	cfg.pairedClients.Store(&clients)

	logger.Infow("config loaded",
		"source", source,
		"apps", len(apps),
		"paired_clients", len(clients),
	)
	return cfg, nil
}

func appFromTOML(entry tomlApp, bus *events.Bus, factory *runners.Factory) (*events.App, error) {
	if err := validation.ValidateAppEntry(entry.ID, entry.Title, entry.Runner.Type); err != nil {
		return nil, err
	}

	runner, err := factory.FromConfig(entry.Runner, bus)
	if err != nil {
		return nil, err
	}

	joypadType := domain.ControllerType(entry.JoypadType)
	if entry.JoypadType == "" {
		joypadType = domain.ControllerAuto
	}

	return &events.App{
		ID:                     domain.AppID(entry.ID),
		Title:                  entry.Title,
		Icon:                   entry.Icon,
		SupportHDR:             entry.SupportHDR,
		H264GstPipeline:        entry.H264GstPipeline,
		HevcGstPipeline:        entry.HevcGstPipeline,
		AV1GstPipeline:         entry.AV1GstPipeline,
		OpusGstPipeline:        entry.OpusGstPipeline,
		RenderNode:             entry.RenderNode,
		StartVirtualCompositor: entry.StartVirtualCompositor,
		JoypadType:             joypadType,
		Runner:                 runner,
	}, nil
}

// save writes the current snapshots back to the TOML source. Called
// with writeMu held. A config without a source is memory only.
func (c *Config) save() error {
	if c.source == "" {
		return nil
	}

	out := tomlConfig{
		ConfigVersion: configVersion,
		UUID:          c.UUID,
		Hostname:      c.Hostname,
	}

	for _, app := range *c.apps.Load() {
		entry := tomlApp{
			ID:                     string(app.ID),
			Title:                  app.Title,
			Icon:                   app.Icon,
			SupportHDR:             app.SupportHDR,
			H264GstPipeline:        app.H264GstPipeline,
			HevcGstPipeline:        app.HevcGstPipeline,
			AV1GstPipeline:         app.AV1GstPipeline,
			OpusGstPipeline:        app.OpusGstPipeline,
			RenderNode:             app.RenderNode,
			StartVirtualCompositor: app.StartVirtualCompositor,
			JoypadType:             string(app.JoypadType),
		}
		if app.Runner != nil {
			entry.Runner = app.Runner.Serialize()
		}
		out.Apps = append(out.Apps, entry)
	}

	for _, client := range *c.pairedClients.Load() {
		out.PairedClients = append(out.PairedClients, tomlClient{
			ID:         string(client.ID),
			Name:       client.Name,
			ClientCert: client.ClientCert,
		})
	}

	file, err := os.Create(c.source)
	if err != nil {
		return fmt.Errorf("failed to open config file for writing: %w", err)
	}
	defer file.Close()

	if err := toml.NewEncoder(file).Encode(out); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
