package domain_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javanstorm/vfdriver/internal/domain"
	"github.com/javanstorm/vfdriver/internal/domainxml"
	"github.com/javanstorm/vfdriver/internal/testutil"
	"github.com/javanstorm/vfdriver/pkg/hypervisor"
)

// fakeController satisfies domain.Controller without a full driver.
type fakeController struct {
	engine *testutil.FakeEngine
	vmid   atomic.Uint64
}

func (c *fakeController) Engine() hypervisor.Engine { return c.engine }
func (c *fakeController) AllocateVMID() uint64      { return c.vmid.Add(1) }
func (c *fakeController) OpTimeout() time.Duration  { return 5 * time.Second }

func newTestDomain(t *testing.T, vncPorts ...uint32) (*domain.Domain, *fakeController) {
	t.Helper()
	cfg, err := domainxml.Parse(testutil.MachineXML("alpha", uuid.NewString(), vncPorts...))
	require.NoError(t, err)
	return domain.New(cfg), &fakeController{engine: testutil.NewFakeEngine()}
}

func TestStartTransitionsToRunning(t *testing.T) {
	d, ctl := newTestDomain(t)

	require.NoError(t, d.Start(context.Background(), ctl))

	assert.Equal(t, domain.StateRunning, d.State())
	assert.EqualValues(t, 1, d.VMID())
	assert.NoError(t, d.LastError())
}

func TestStartWhileRunningIsInvalid(t *testing.T) {
	d, ctl := newTestDomain(t)
	require.NoError(t, d.Start(context.Background(), ctl))

	err := d.Start(context.Background(), ctl)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	// State unchanged, machine untouched.
	assert.Equal(t, domain.StateRunning, d.State())
	assert.Len(t, ctl.engine.Machines(), 1)
}

func TestStartFailureLeavesPriorState(t *testing.T) {
	d, ctl := newTestDomain(t)
	ctl.engine.StartErr = errors.New("invalid resource allocation")

	err := d.Start(context.Background(), ctl)
	require.ErrorIs(t, err, domain.ErrStartFailed)

	assert.Equal(t, domain.StateDefined, d.State())
	assert.EqualValues(t, 0, d.VMID())
}

func TestStopDefinedDomainIsNoop(t *testing.T) {
	d, _ := newTestDomain(t)

	require.NoError(t, d.Stop(context.Background(), domain.StopReasonAdmin))
	assert.Equal(t, domain.StateDefined, d.State())
}

func TestStopIsIdempotent(t *testing.T) {
	d, ctl := newTestDomain(t)
	require.NoError(t, d.Start(context.Background(), ctl))

	require.NoError(t, d.Stop(context.Background(), domain.StopReasonAdmin))
	require.NoError(t, d.Stop(context.Background(), domain.StopReasonAdmin))

	assert.Equal(t, domain.StateStopped, d.State())
}

func TestGuestInitiatedShutdown(t *testing.T) {
	d, ctl := newTestDomain(t)
	require.NoError(t, d.Start(context.Background(), ctl))
	require.Equal(t, domain.StateRunning, d.State())

	m := ctl.engine.LastMachine(t)
	<-m.GuestStop()

	assert.Equal(t, domain.StateStopped, d.State())
	assert.NoError(t, d.LastError())
	assert.True(t, m.Stopped())
}

func TestErrorInducedStopRecordsLastError(t *testing.T) {
	d, ctl := newTestDomain(t)
	require.NoError(t, d.Start(context.Background(), ctl))

	m := ctl.engine.LastMachine(t)
	<-m.Crash(errors.New("device-fault"))

	assert.Equal(t, domain.StateStopped, d.State())
	require.Error(t, d.LastError())
	assert.Contains(t, d.LastError().Error(), "device-fault")
}

func TestLastErrorClearedOnRestart(t *testing.T) {
	d, ctl := newTestDomain(t)
	require.NoError(t, d.Start(context.Background(), ctl))
	<-ctl.engine.LastMachine(t).Crash(errors.New("device-fault"))
	require.Error(t, d.LastError())

	require.NoError(t, d.Start(context.Background(), ctl))
	assert.NoError(t, d.LastError())
	assert.EqualValues(t, 2, d.VMID())
}

func TestConcurrentStopsReleaseHandleOnce(t *testing.T) {
	d, ctl := newTestDomain(t)
	require.NoError(t, d.Start(context.Background(), ctl))
	m := ctl.engine.LastMachine(t)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := d.Stop(context.Background(), domain.StopReasonAdmin); err != nil {
			t.Errorf("admin stop: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		<-m.GuestStop()
	}()
	go func() {
		defer wg.Done()
		<-m.Crash(errors.New("late crash"))
	}()
	wg.Wait()

	assert.Equal(t, domain.StateStopped, d.State())

	// Exactly one stop event: the machine was released once, not leaked and
	// not double-released.
	stops := 0
	for _, ev := range ctl.engine.Trace() {
		switch ev {
		case "machine.stop", "machine.kill", "machine.guest-stop", "machine.crash":
			stops++
		}
	}
	assert.Equal(t, 1, stops, "trace: %v", ctl.engine.Trace())
}

func TestDisplaysStopBeforeHandleRelease(t *testing.T) {
	port1 := testutil.FreePort(t)
	port2 := testutil.FreePort(t)
	d, ctl := newTestDomain(t, port1, port2)

	require.NoError(t, d.Start(context.Background(), ctl))
	assert.ElementsMatch(t, []uint32{port1, port2}, d.DisplayPorts())

	// Both listeners are up while running.
	for _, port := range []uint32{port1, port2} {
		conn, err := net.Dial("tcp", fmt.Sprintf("localhost:%d", port))
		require.NoError(t, err, "port %d should accept while running", port)
		conn.Close()
	}

	// The stop order contract: when the engine is told to stop the machine,
	// every endpoint must already be down.
	m := ctl.engine.LastMachine(t)
	m.OnStop = func() {
		for _, port := range []uint32{port1, port2} {
			conn, err := net.Dial("tcp", fmt.Sprintf("localhost:%d", port))
			if err == nil {
				conn.Close()
				t.Errorf("port %d still accepting at machine stop", port)
			}
		}
	}

	require.NoError(t, d.Stop(context.Background(), domain.StopReasonAdmin))
	assert.Equal(t, domain.StateStopped, d.State())
	assert.Empty(t, d.DisplayPorts())
}

func TestDisplayPortConflictFailsStart(t *testing.T) {
	port := testutil.FreePort(t)
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	require.NoError(t, err)
	defer ln.Close()

	d, ctl := newTestDomain(t, port)
	err = d.Start(context.Background(), ctl)
	require.ErrorIs(t, err, domain.ErrStartFailed)

	// No half-constructed runtime: the machine that did boot is torn down.
	assert.Equal(t, domain.StateDefined, d.State())
	assert.True(t, ctl.engine.LastMachine(t).Stopped())
}

func TestStuckStopForcesKillAndClassifiesError(t *testing.T) {
	d, ctl := newTestDomain(t)
	require.NoError(t, d.Start(context.Background(), ctl))

	m := ctl.engine.LastMachine(t)
	m.StopErr = errors.New("guest unresponsive")

	require.NoError(t, d.Stop(context.Background(), domain.StopReasonAdmin))

	assert.Equal(t, domain.StateStopped, d.State())
	require.Error(t, d.LastError())
	assert.Contains(t, ctl.engine.Trace(), "machine.kill")
}

func TestDoneSignalsStop(t *testing.T) {
	d, ctl := newTestDomain(t)
	require.NoError(t, d.Start(context.Background(), ctl))

	done := d.Done()
	select {
	case <-done:
		t.Fatal("done closed while running")
	default:
	}

	<-ctl.engine.LastMachine(t).GuestStop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("done not closed after stop")
	}
}
