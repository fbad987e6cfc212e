// Package testutil provides common test helpers, chiefly a fake host engine
// whose stop notifications can be triggered from tests.
package testutil

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"sync"
	"testing"

	"github.com/javanstorm/vfdriver/pkg/hypervisor"
)

// FreePort returns a TCP port that was free at call time.
func FreePort(t *testing.T) uint32 {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("allocate free port: %v", err)
	}
	defer ln.Close()
	return uint32(ln.Addr().(*net.TCPAddr).Port)
}

// MachineXML returns a minimal domain description for tests.
func MachineXML(name, uuid string, vncPorts ...uint32) []byte {
	doc := fmt.Sprintf(`<domain type="vf">
  <name>%s</name>
  <uuid>%s</uuid>
  <vcpu>2</vcpu>
  <memory unit="MiB">512</memory>
  <os>
    <type>hvm</type>
    <kernel>/boot/vmlinuz-test</kernel>
    <cmdline>console=hvc0</cmdline>
  </os>
  <devices>
`, name, uuid)
	for _, p := range vncPorts {
		doc += fmt.Sprintf("    <graphics type=\"vnc\" port=\"%d\"/>\n", p)
	}
	doc += "  </devices>\n</domain>\n"
	return []byte(doc)
}

// FakeEngine implements hypervisor.Engine in memory and records a trace of
// machine events.
type FakeEngine struct {
	mu       sync.Mutex
	trace    []string
	machines []*FakeMachine

	// StartErr, if set, makes Start fail.
	StartErr error
}

var _ hypervisor.Engine = (*FakeEngine)(nil)

// NewFakeEngine creates an engine with no machines.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{}
}

func (e *FakeEngine) Validate(ctx context.Context, cfg *hypervisor.MachineConfig) error {
	return cfg.Validate()
}

func (e *FakeEngine) Start(ctx context.Context, cfg *hypervisor.MachineConfig, delegate hypervisor.Delegate) (hypervisor.Machine, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.StartErr != nil {
		return nil, e.StartErr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &FakeMachine{engine: e, delegate: delegate}
	e.machines = append(e.machines, m)
	e.record("machine.start")
	return m, nil
}

func (e *FakeEngine) Info() hypervisor.Info {
	return hypervisor.Info{Name: "fake", Version: "0.0.0", Arch: runtime.GOARCH}
}

func (e *FakeEngine) Capabilities() hypervisor.Capabilities {
	return hypervisor.Capabilities{Networking: true, Storage: true, RemoteDisplay: true}
}

// Trace returns the recorded machine events in order.
func (e *FakeEngine) Trace() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.trace...)
}

// Machines returns every machine the engine ever started, in start order.
func (e *FakeEngine) Machines() []*FakeMachine {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*FakeMachine(nil), e.machines...)
}

// LastMachine returns the most recently started machine.
func (e *FakeEngine) LastMachine(t *testing.T) *FakeMachine {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.machines) == 0 {
		t.Fatal("fake engine has no machines")
	}
	return e.machines[len(e.machines)-1]
}

func (e *FakeEngine) record(event string) {
	e.trace = append(e.trace, event)
}

// FakeMachine is an in-memory machine handle. Guest-initiated and
// error-induced stops are triggered from tests via GuestStop and Crash; they
// deliver delegate notifications on their own goroutine, like a real engine.
type FakeMachine struct {
	engine   *FakeEngine
	delegate hypervisor.Delegate

	mu      sync.Mutex
	stopped bool

	// OnStop, if set, runs inside Stop before the machine is marked
	// stopped. Tests use it to observe ordering.
	OnStop func()

	// StopErr, if set, makes Stop fail without stopping the machine.
	StopErr error
}

var _ hypervisor.Machine = (*FakeMachine)(nil)
var _ hypervisor.DisplayAttacher = (*FakeMachine)(nil)

func (m *FakeMachine) Stop(ctx context.Context) error {
	if m.OnStop != nil {
		m.OnStop()
	}
	if m.StopErr != nil {
		return m.StopErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return hypervisor.ErrNotRunning
	}
	m.stopped = true

	m.engine.mu.Lock()
	m.engine.record("machine.stop")
	m.engine.mu.Unlock()
	return nil
}

func (m *FakeMachine) Kill(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return hypervisor.ErrNotRunning
	}
	m.stopped = true

	m.engine.mu.Lock()
	m.engine.record("machine.kill")
	m.engine.mu.Unlock()
	return nil
}

// AttachDisplay accepts and immediately finishes a display attachment.
func (m *FakeMachine) AttachDisplay(conn hypervisor.Conn) error {
	m.engine.mu.Lock()
	m.engine.record("machine.attach-display")
	m.engine.mu.Unlock()
	return nil
}

// Engine returns the engine that started this machine.
func (m *FakeMachine) Engine() *FakeEngine {
	return m.engine
}

// Stopped reports whether the machine has stopped.
func (m *FakeMachine) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// GuestStop simulates a guest-initiated shutdown: the machine stops and the
// delegate is notified asynchronously. Wait on the returned channel for the
// notification to be fully processed.
func (m *FakeMachine) GuestStop() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.mu.Lock()
		if m.stopped {
			m.mu.Unlock()
			return
		}
		m.stopped = true
		m.mu.Unlock()

		m.engine.mu.Lock()
		m.engine.record("machine.guest-stop")
		m.engine.mu.Unlock()

		m.delegate.GuestDidStopVirtualMachine(m)
	}()
	return done
}

// Crash simulates an error-induced stop with the given error payload.
func (m *FakeMachine) Crash(err error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.mu.Lock()
		if m.stopped {
			m.mu.Unlock()
			return
		}
		m.stopped = true
		m.mu.Unlock()

		m.engine.mu.Lock()
		m.engine.record("machine.crash")
		m.engine.mu.Unlock()

		m.delegate.DidStopWithError(m, err)
	}()
	return done
}
