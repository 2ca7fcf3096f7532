// Package state owns the durable process-wide configuration: the list
// of launchable apps and the list of paired clients. Both collections
// are copy-on-write snapshots behind an atomically swapped pointer, so
// readers iterate a stable view with no lock held while rare writers
// serialize on a mutex, build a new collection and publish it whole.
package state

import (
	"fmt"

	"sync"
	"sync/atomic"

	"github.com/Relicjamin-jv/wolf/internal/core/domain"
	"github.com/Relicjamin-jv/wolf/internal/core/events"
	"github.com/Relicjamin-jv/wolf/pkg/crypto"
	"go.uber.org/zap"
)

// Config is the process-wide aggregate. Loaded once at startup, then
// mutated only through Pair, Unpair and ReloadApps.
type Config struct {
	UUID     string
	Hostname string

	apps          atomic.Pointer[[]*events.App]
	pairedClients atomic.Pointer[[]domain.PairedClient]

	// serializes writers; readers never take it
	writeMu sync.Mutex

	source string
	logger *zap.SugaredLogger
}

// Apps returns the current immutable snapshot of app definitions.
func (c *Config) Apps() []*events.App {
	return *c.apps.Load()
}

// PairedClients returns the current immutable snapshot of paired clients.
func (c *Config) PairedClients() []domain.PairedClient {
	return *c.pairedClients.Load()
}

// Pair atomically appends a paired client. Readers observe either the
// pre- or post-pair collection in full, never a partial update.
func (c *Config) Pair(client domain.PairedClient) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	current := *c.pairedClients.Load()
	for _, existing := range current {
		if existing.ClientCert == client.ClientCert {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateClient, client.ID)
		}
	}

	next := make([]domain.PairedClient, len(current), len(current)+1)
	copy(next, current)
	next = append(next, client)
	c.pairedClients.Store(&next)

	if err := c.save(); err != nil {
		c.logger.Errorw("failed to persist paired clients", "error", err)
	}
	return nil
}

// Unpair atomically removes a client by identity. Removing an unknown
// client is a no-op.
func (c *Config) Unpair(client domain.PairedClient) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	current := *c.pairedClients.Load()
	next := make([]domain.PairedClient, 0, len(current))
	for _, existing := range current {
		if existing.ID == client.ID {
			continue
		}
		next = append(next, existing)
	}
	c.pairedClients.Store(&next)

	if err := c.save(); err != nil {
		c.logger.Errorw("failed to persist paired clients", "error", err)
	}
}

// GetClientViaSSL scans the current snapshot of paired clients and
// returns the first whose stored certificate verifies the given client
// certificate. No match is not an error; callers must branch on ok.
func (c *Config) GetClientViaSSL(clientCertPEM string) (domain.PairedClient, bool) {
	clientCert, err := crypto.CertFromPEM(clientCertPEM)
	if err != nil {
		c.logger.Debugw("failed to parse client certificate", "error", err)
		return domain.PairedClient{}, false
	}

	for _, paired := range *c.pairedClients.Load() {
		pairedCert, err := crypto.CertFromPEM(paired.ClientCert)
		if err != nil {
			c.logger.Debugw("failed to parse stored certificate",
				"client_id", paired.ID,
				"error", err,
			)
			continue
		}
		if err := crypto.VerifyCert(pairedCert, clientCert); err != nil {
			c.logger.Debugw("x509 certificate verification error", "error", err)
			continue
		}
		return paired, true
	}
	return domain.PairedClient{}, false
}

// GetAppByID resolves an app for launch. Existence is assumed here, so
// a missing id fails loudly instead of substituting a default.
func (c *Config) GetAppByID(appID domain.AppID) (*events.App, error) {
	for _, app := range *c.apps.Load() {
		if app.ID == appID {
			return app, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrAppNotFound, appID)
}

// ReloadApps replaces the app collection wholesale.
func (c *Config) ReloadApps(apps []*events.App) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	next := make([]*events.App, len(apps))
	copy(next, apps)
	c.apps.Store(&next)
}
