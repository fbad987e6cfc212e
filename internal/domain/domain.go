// Package domain owns the per-domain lifecycle state machine. A Domain
// reconciles administrator commands, guest-initiated shutdowns, and engine
// error callbacks into one consistent state under a single per-domain lock.
package domain

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/javanstorm/vfdriver/internal/dispatch"
	"github.com/javanstorm/vfdriver/internal/display"
	"github.com/javanstorm/vfdriver/internal/domainxml"
	"github.com/javanstorm/vfdriver/pkg/hypervisor"
)

var (
	ErrInvalidTransition = errors.New("domain: invalid lifecycle transition")
	ErrStartFailed       = errors.New("domain: start failed")
)

// Controller is the driver-side surface the lifecycle needs. Runtime state
// holds it as a plain reference, never an owner: the controller outlives
// every domain and its teardown must not wait on one.
type Controller interface {
	Engine() hypervisor.Engine
	AllocateVMID() uint64
	OpTimeout() time.Duration
}

// Domain is one orchestrator-managed virtual machine: its identity, its
// description, and (while running) its runtime state.
type Domain struct {
	name string
	id   uuid.UUID

	mu      sync.Mutex
	config  *domainxml.Config
	state   State
	lastErr error
	runtime *runtimeState
	done    chan struct{}
}

// runtimeState is the per-domain private data that exists only while the
// domain is running or transitioning. Torn down synchronously with full-stop
// completion.
type runtimeState struct {
	vmid         uint64
	machine      hypervisor.Machine
	displayQueue *dispatch.Queue
	displays     []*display.Endpoint
	delegate     *machineDelegate
	driver       Controller
}

// New creates a defined domain.
func New(cfg *domainxml.Config) *Domain {
	return &Domain{
		name:   cfg.Name,
		id:     cfg.UUID,
		config: cfg,
		state:  StateDefined,
	}
}

// Name returns the domain's name.
func (d *Domain) Name() string { return d.name }

// UUID returns the domain's UUID.
func (d *Domain) UUID() uuid.UUID { return d.id }

// Config returns the domain's description.
func (d *Domain) Config() *domainxml.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config
}

// SetConfig replaces the description. Takes effect on the next start.
func (d *Domain) SetConfig(cfg *domainxml.Config) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config = cfg
}

// State returns the current lifecycle state.
func (d *Domain) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// LastError returns the error recorded by the last error-induced stop, or
// nil. Cleared by the next successful start.
func (d *Domain) LastError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

// Done returns a channel closed when the current machine instance has fully
// stopped. For a domain that is not running, the returned channel is already
// closed.
func (d *Domain) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return d.done
}

// VMID returns the identifier of the current machine instance, or 0 when the
// domain is not running.
func (d *Domain) VMID() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.runtime == nil {
		return 0
	}
	return d.runtime.vmid
}

// DisplayPorts returns the ports of the active display endpoints.
func (d *Domain) DisplayPorts() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.runtime == nil {
		return nil
	}
	ports := make([]uint32, 0, len(d.runtime.displays))
	for _, ep := range d.runtime.displays {
		ports = append(ports, ep.Port())
	}
	return ports
}
