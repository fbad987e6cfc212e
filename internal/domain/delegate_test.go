package domain

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javanstorm/vfdriver/internal/domainxml"
	"github.com/javanstorm/vfdriver/internal/testutil"
	"github.com/javanstorm/vfdriver/pkg/hypervisor"
)

type stubController struct {
	engine *testutil.FakeEngine
	vmid   atomic.Uint64
}

func (c *stubController) Engine() hypervisor.Engine { return c.engine }
func (c *stubController) AllocateVMID() uint64      { return c.vmid.Add(1) }
func (c *stubController) OpTimeout() time.Duration  { return 5 * time.Second }

// A notification goroutine can pass the delegate's fast-path detached check,
// then lose the domain lock to an administrative stop followed by a restart.
// When it finally delivers, it belongs to the old machine instance and must
// not stop the successor.
func TestStaleNotificationDoesNotStopSuccessor(t *testing.T) {
	cfg, err := domainxml.Parse(testutil.MachineXML("alpha", uuid.NewString()))
	require.NoError(t, err)

	d := New(cfg)
	ctl := &stubController{engine: testutil.NewFakeEngine()}
	require.NoError(t, d.Start(context.Background(), ctl))

	d.mu.Lock()
	stale := d.runtime.delegate
	d.mu.Unlock()

	// The notification is in flight: past the fast path, not yet holding
	// the domain lock. Meanwhile an admin stop and a restart complete.
	require.NoError(t, d.Stop(context.Background(), StopReasonAdmin))
	require.NoError(t, d.Start(context.Background(), ctl))
	require.Equal(t, StateRunning, d.State())

	stale.deliver(StopReasonGuest, nil)

	assert.Equal(t, StateRunning, d.State(), "stale guest notification stopped the successor")
	assert.False(t, ctl.engine.LastMachine(t).Stopped())

	stale.deliver(StopReasonError, errors.New("late device fault"))

	assert.Equal(t, StateRunning, d.State(), "stale error notification stopped the successor")
	assert.NoError(t, d.LastError())
	assert.EqualValues(t, 2, d.VMID())
}
