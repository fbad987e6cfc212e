// Package driver implements the top-level driver controller: it owns the
// domain registry, the VM identifier allocator, the command serialization
// queue, and the configuration, and it exposes the domain lifecycle
// operations.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/javanstorm/vfdriver/internal/config"
	"github.com/javanstorm/vfdriver/internal/dispatch"
	"github.com/javanstorm/vfdriver/internal/domain"
	"github.com/javanstorm/vfdriver/internal/domainxml"
	"github.com/javanstorm/vfdriver/internal/registry"
	"github.com/javanstorm/vfdriver/pkg/hypervisor"
)

var (
	ErrNotConfigured = errors.New("driver: not configured")
	ErrDomainRunning = errors.New("driver: domain is running")
)

// Driver is the process-wide controller.
type Driver struct {
	engine  hypervisor.Engine
	domains *registry.Registry

	// nextVMID is the only lock-free shared field; identifiers are
	// monotonic and never reused within a process lifetime.
	nextVMID atomic.Uint64

	// commands orders lifecycle operations issued by administrators.
	// Engine notifications arrive on their own delivery context and do not
	// pass through it. Created by InitConfiguration and closed by
	// DestroyConfiguration; non-nil exactly while the driver is configured.
	commands *dispatch.Queue

	// cfg and xmlopt are immutable after InitConfiguration.
	cfg    *config.Config
	xmlopt *domainxml.Option
}

var _ domain.Controller = (*Driver)(nil)

// New creates a driver for the given engine. InitConfiguration must be
// called before any domain operation.
func New(engine hypervisor.Engine) *Driver {
	return &Driver{
		engine:  engine,
		domains: registry.New(),
	}
}

// Engine returns the host engine.
func (d *Driver) Engine() hypervisor.Engine { return d.engine }

// AllocateVMID returns a fresh, strictly increasing machine identifier. Safe
// for concurrent use; never blocks.
func (d *Driver) AllocateVMID() uint64 {
	return d.nextVMID.Add(1)
}

// OpTimeout returns the engine confirmation timeout.
func (d *Driver) OpTimeout() time.Duration {
	if d.cfg == nil {
		return hypervisor.DefaultOpTimeout
	}
	return d.cfg.OpTimeout()
}

// Config returns the driver configuration, or nil before InitConfiguration.
func (d *Driver) Config() *config.Config { return d.cfg }

// InitConfiguration resolves and creates the configuration, state, and nvram
// directories, then reloads persisted domain definitions. Failure leaves the
// driver unconfigured; it is fatal to startup.
func (d *Driver) InitConfiguration(cfg *config.Config) error {
	if d.cfg != nil {
		return fmt.Errorf("%w: already configured", config.ErrConfiguration)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	d.cfg = cfg
	d.xmlopt = domainxml.NewOption(cfg.StateDir)

	if err := d.reloadDomains(); err != nil {
		d.cfg = nil
		d.xmlopt = nil
		return err
	}
	d.commands = dispatch.NewQueue("driver-commands")

	slog.Info("Driver configured.", "base", cfg.BaseDir, "domains", d.domains.Len())
	return nil
}

// DestroyConfiguration releases configuration resources at driver shutdown.
// It must not be called while any domain is running. The driver can be
// configured again afterwards with InitConfiguration.
func (d *Driver) DestroyConfiguration() error {
	if d.cfg == nil {
		return nil
	}
	for _, dom := range d.domains.List() {
		if s := dom.State(); s != domain.StateDefined && s != domain.StateStopped {
			return fmt.Errorf("%w: %q is %s", ErrDomainRunning, dom.Name(), s)
		}
	}
	d.commands.Close()
	d.commands = nil
	d.cfg = nil
	d.xmlopt = nil
	return nil
}

// reloadDomains restores defined domains from the config directory. Runtime
// state is restored as a null placeholder; machine handles never survive a
// restart. Definitions load into a fresh registry swapped in on success, so
// a failed reload leaves no partial membership behind.
func (d *Driver) reloadDomains() error {
	entries, err := os.ReadDir(d.cfg.ConfigDir)
	if err != nil {
		return fmt.Errorf("%w: read config dir: %v", config.ErrConfiguration, err)
	}

	loaded := registry.New()
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".xml") {
			continue
		}
		path := filepath.Join(d.cfg.ConfigDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%w: read %s: %v", config.ErrConfiguration, path, err)
		}
		cfg, err := domainxml.Parse(data)
		if err != nil {
			slog.Warn("Skipping unparsable domain definition.", "path", path, "err", err)
			continue
		}
		if err := loaded.Add(domain.New(cfg)); err != nil {
			return err
		}
	}

	d.domains = loaded
	return nil
}

// Define registers a new domain from its XML description and persists it.
func (d *Driver) Define(xml []byte) (*domain.Domain, error) {
	if d.cfg == nil {
		return nil, ErrNotConfigured
	}

	cfg, err := domainxml.Parse(xml)
	if err != nil {
		return nil, err
	}

	dom := domain.New(cfg)
	if err := d.domains.Add(dom); err != nil {
		return nil, err
	}

	out, err := cfg.Marshal()
	if err != nil {
		_ = d.domains.Remove(dom)
		return nil, err
	}
	if err := os.WriteFile(d.cfg.DomainConfigPath(cfg.Name), out, 0644); err != nil {
		_ = d.domains.Remove(dom)
		return nil, fmt.Errorf("persist domain %q: %w", cfg.Name, err)
	}

	slog.Info("Domain defined.", "domain", cfg.Name, "uuid", cfg.UUID)
	return dom, nil
}

// Undefine removes a stopped domain from the registry and from disk.
func (d *Driver) Undefine(name string) error {
	if d.cfg == nil {
		return ErrNotConfigured
	}

	dom, ok := d.domains.FindByName(name)
	if !ok {
		return fmt.Errorf("%w: name %q", registry.ErrNotFound, name)
	}
	if s := dom.State(); s != domain.StateDefined && s != domain.StateStopped {
		return fmt.Errorf("%w: %q is %s", ErrDomainRunning, name, s)
	}

	if err := d.domains.Remove(dom); err != nil {
		return err
	}
	if err := os.Remove(d.cfg.DomainConfigPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove domain definition: %w", err)
	}
	if err := d.xmlopt.RemovePrivateData(name); err != nil {
		return err
	}

	slog.Info("Domain undefined.", "domain", name)
	return nil
}

// StartDomain boots a defined domain. Ordered through the command queue.
func (d *Driver) StartDomain(ctx context.Context, name string) error {
	if d.cfg == nil {
		return ErrNotConfigured
	}
	dom, ok := d.domains.FindByName(name)
	if !ok {
		return fmt.Errorf("%w: name %q", registry.ErrNotFound, name)
	}

	var err error
	d.commands.Sync(func() {
		err = dom.Start(ctx, d)
		if err != nil {
			return
		}
		saveErr := d.xmlopt.SavePrivateData(name, &domainxml.PrivateData{
			VMID:         dom.VMID(),
			DisplayPorts: dom.DisplayPorts(),
		})
		if saveErr != nil {
			slog.Warn("Failed to persist runtime placeholder.", "domain", name, "err", saveErr)
		}
	})
	return err
}

// StopDomain gracefully stops a domain. Stopping a domain that is not
// running succeeds as a no-op. Ordered through the command queue.
func (d *Driver) StopDomain(ctx context.Context, name string) error {
	if d.cfg == nil {
		return ErrNotConfigured
	}
	dom, ok := d.domains.FindByName(name)
	if !ok {
		return fmt.Errorf("%w: name %q", registry.ErrNotFound, name)
	}

	var err error
	d.commands.Sync(func() {
		err = dom.Stop(ctx, domain.StopReasonAdmin)
		if err != nil {
			return
		}
		if rmErr := d.xmlopt.RemovePrivateData(name); rmErr != nil {
			slog.Warn("Failed to remove runtime placeholder.", "domain", name, "err", rmErr)
		}
	})
	return err
}

// Lookup returns a domain by name.
func (d *Driver) Lookup(name string) (*domain.Domain, error) {
	dom, ok := d.domains.FindByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: name %q", registry.ErrNotFound, name)
	}
	return dom, nil
}

// List returns all known domains sorted by name.
func (d *Driver) List() []*domain.Domain {
	return d.domains.List()
}
