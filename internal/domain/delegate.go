package domain

import (
	"context"
	"sync"

	"github.com/javanstorm/vfdriver/pkg/hypervisor"
)

// machineDelegate receives asynchronous stop notifications from the engine
// for one machine instance and forwards them as classified stop transitions.
// It holds the domain its events affect and a non-owning controller
// reference; it is a dispatch target, not a data holder.
type machineDelegate struct {
	domain *Domain
	driver Controller

	mu       sync.Mutex
	detached bool
}

var _ hypervisor.Delegate = (*machineDelegate)(nil)

// GuestDidStopVirtualMachine handles a guest-initiated shutdown.
func (md *machineDelegate) GuestDidStopVirtualMachine(_ hypervisor.Machine) {
	md.stopForReason(StopReasonGuest, nil)
}

// DidStopWithError handles an error-induced stop. The error is recorded as
// the domain's last error by the stop transition; there is no synchronous
// caller to propagate it to.
func (md *machineDelegate) DidStopWithError(_ hypervisor.Machine, err error) {
	md.stopForReason(StopReasonError, err)
}

// stopForReason serializes through the domain's lock before mutating state.
// Whichever notification arrives first wins; later arrivals, and arrivals
// after an administrative stop already completed, find a stopped domain and
// no-op.
func (md *machineDelegate) stopForReason(reason StopReason, cause error) {
	if md.isDetached() {
		return
	}
	md.deliver(reason, cause)
}

// deliver applies the stop under the domain's lock. The detached flag is
// re-checked after acquiring d.mu: detach happens with that lock held, so a
// notification that passed the fast path and then lost the lock to an
// administrative stop (and possibly a restart) finds the flag set here and
// must not touch the successor machine.
func (md *machineDelegate) deliver(reason StopReason, cause error) {
	d := md.domain
	d.mu.Lock()
	defer d.mu.Unlock()
	if md.isDetached() {
		return
	}
	_ = d.stopLocked(context.Background(), reason, cause)
}

func (md *machineDelegate) isDetached() bool {
	md.mu.Lock()
	defer md.mu.Unlock()
	return md.detached
}

// detach severs the delegate once its machine handle is released. Called
// with the domain lock held.
func (md *machineDelegate) detach() {
	md.mu.Lock()
	md.detached = true
	md.mu.Unlock()
}
