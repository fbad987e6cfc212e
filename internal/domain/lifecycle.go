package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/javanstorm/vfdriver/internal/dispatch"
	"github.com/javanstorm/vfdriver/internal/display"
	"github.com/javanstorm/vfdriver/pkg/hypervisor"
)

// Start boots the domain's machine. Allowed only from the defined or stopped
// states. On failure the domain keeps its prior state; no half-constructed
// runtime survives.
func (d *Domain) Start(ctx context.Context, ctl Controller) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateDefined && d.state != StateStopped {
		return fmt.Errorf("%w: cannot start domain %q in state %s", ErrInvalidTransition, d.name, d.state)
	}
	if d.runtime != nil {
		// At most one live machine handle per domain.
		return fmt.Errorf("%w: domain %q already has a machine", ErrInvalidTransition, d.name)
	}

	prev := d.state
	d.state = StateStarting

	rt := &runtimeState{
		vmid:   ctl.AllocateVMID(),
		driver: ctl,
	}
	delegate := &machineDelegate{domain: d, driver: ctl}

	startCtx, cancel := context.WithTimeout(ctx, ctl.OpTimeout())
	defer cancel()

	machine, err := ctl.Engine().Start(startCtx, d.config.MachineConfig(), delegate)
	if err != nil {
		d.state = prev
		return fmt.Errorf("%w: domain %q: %v", ErrStartFailed, d.name, err)
	}

	rt.machine = machine
	rt.delegate = delegate
	rt.displayQueue = dispatch.NewQueue("display-" + d.name)

	if err := d.startDisplays(rt); err != nil {
		// Roll back: endpoints that did start are stopped before the
		// machine handle is torn down.
		for _, ep := range rt.displays {
			ep.Stop()
		}
		rt.displayQueue.Close()
		killCtx, killCancel := context.WithTimeout(context.Background(), ctl.OpTimeout())
		defer killCancel()
		_ = machine.Kill(killCtx)
		delegate.detach()
		d.state = prev
		return fmt.Errorf("%w: domain %q: %v", ErrStartFailed, d.name, err)
	}

	d.runtime = rt
	d.state = StateRunning
	d.lastErr = nil
	d.done = make(chan struct{})

	slog.Info("Domain started.", "domain", d.name, "vmid", rt.vmid, "displays", len(rt.displays))
	return nil
}

// startDisplays creates, binds, and starts one endpoint per requested port.
func (d *Domain) startDisplays(rt *runtimeState) error {
	for _, port := range d.config.VNCPorts {
		ep, err := display.NewEndpoint(port, rt.displayQueue)
		if err != nil {
			return err
		}
		if err := ep.Bind(rt.machine); err != nil {
			ep.Stop()
			return err
		}
		if err := ep.Start(); err != nil {
			ep.Stop()
			return err
		}
		rt.displays = append(rt.displays, ep)
	}
	return nil
}

// Stop shuts the domain's machine down for reason. Stopping a domain that is
// not running is a silent no-op: lifecycle notifications race administrative
// stops, and the loser of that race must not surface a spurious failure.
func (d *Domain) Stop(ctx context.Context, reason StopReason) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopLocked(ctx, reason, nil)
}

// stopLocked drives the stop transition. The caller must hold d.mu; both the
// administrative path and the delegate notification paths funnel here, so
// whichever arrives first wins and the second finds no machine to stop.
//
// cause is the engine error payload for error-induced stops; nil otherwise.
func (d *Domain) stopLocked(ctx context.Context, reason StopReason, cause error) error {
	if d.runtime == nil || d.runtime.machine == nil {
		return nil
	}
	if d.state != StateRunning && d.state != StateStarting {
		return nil
	}

	d.state = StateStopping
	rt := d.runtime

	// Display endpoints stop before the machine handle they reference is
	// released. Ordered and synchronous.
	for _, ep := range rt.displays {
		ep.Stop()
		ep.Unbind()
	}

	if reason == StopReasonAdmin {
		stopCtx, cancel := context.WithTimeout(ctx, rt.driver.OpTimeout())
		defer cancel()
		err := rt.machine.Stop(stopCtx)
		if errors.Is(err, hypervisor.ErrNotRunning) {
			// The machine beat us to it (a racing guest or error stop);
			// that is confirmation, not failure.
			err = nil
		}
		if err != nil {
			// The engine did not confirm in time: force teardown and
			// classify the stop as error-induced.
			killCtx, killCancel := context.WithTimeout(context.Background(), rt.driver.OpTimeout())
			defer killCancel()
			_ = rt.machine.Kill(killCtx)
			reason = StopReasonError
			cause = err
		}
	}

	if reason == StopReasonError {
		d.lastErr = cause
	}

	rt.delegate.detach()
	rt.displayQueue.Close()
	rt.machine = nil
	rt.displays = nil
	d.runtime = nil
	d.state = StateStopped
	if d.done != nil {
		close(d.done)
		d.done = nil
	}

	if cause != nil {
		slog.Info("Domain stopped.", "domain", d.name, "reason", reason.String(), "err", cause)
	} else {
		slog.Info("Domain stopped.", "domain", d.name, "reason", reason.String())
	}
	return nil
}
