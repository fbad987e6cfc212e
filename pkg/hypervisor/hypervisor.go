// Package hypervisor abstracts the host virtualization engine behind a
// start/stop/delegate contract. Platform backends (macOS
// Virtualization.framework, Linux KVM) satisfy the Engine interface.
package hypervisor

import (
	"context"
	"runtime"
	"time"
)

// DefaultOpTimeout bounds how long a caller should wait for the engine to
// confirm a start or stop before treating the operation as failed.
const DefaultOpTimeout = 30 * time.Second

// Engine creates running machines from configuration.
type Engine interface {
	// Validate checks whether the configuration is acceptable to this engine.
	Validate(ctx context.Context, cfg *MachineConfig) error

	// Start boots a machine from cfg and returns its runtime handle once the
	// engine confirms the guest is running. The delegate receives
	// asynchronous stop notifications for the returned machine until it
	// stops. Start never returns a handle for a machine that failed to boot.
	Start(ctx context.Context, cfg *MachineConfig, delegate Delegate) (Machine, error)

	// Info returns engine metadata.
	Info() Info

	// Capabilities returns what guest features the engine supports.
	Capabilities() Capabilities
}

// Machine is the runtime handle of one started virtual machine.
type Machine interface {
	// Stop asks the guest to shut down and waits for the engine to confirm
	// the machine is fully stopped. Returns ErrNotRunning if the machine has
	// already stopped.
	Stop(ctx context.Context) error

	// Kill tears the machine down immediately, without guest cooperation.
	Kill(ctx context.Context) error
}

// Delegate receives asynchronous stop notifications from the engine.
// Notifications are delivered on the engine's own goroutine, never on the
// caller's; implementations must do their own locking.
type Delegate interface {
	// GuestDidStopVirtualMachine reports that the guest shut itself down.
	GuestDidStopVirtualMachine(m Machine)

	// DidStopWithError reports that the machine stopped because of an
	// engine-side failure.
	DidStopWithError(m Machine, err error)
}

// DisplayAttacher is implemented by machines that can stream their graphical
// display over a network connection. Backends without remote display support
// simply do not implement it.
type DisplayAttacher interface {
	AttachDisplay(conn Conn) error
}

// Conn is the subset of net.Conn the display attachment needs.
type Conn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Info contains engine metadata.
type Info struct {
	Name    string // "vz" or "kvm"
	Version string
	Arch    string // "arm64" or "amd64"
}

// Capabilities describes engine feature support.
type Capabilities struct {
	Networking    bool // virtio-net or similar
	Storage       bool // virtio-blk or similar
	RemoteDisplay bool // machine handles implement DisplayAttacher
}

// SupportedPlatform returns true if the current platform has an engine
// backend compiled in.
func SupportedPlatform() bool {
	switch runtime.GOOS {
	case "darwin", "linux":
		return true
	default:
		return false
	}
}
