//go:build linux

package hypervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	hypeos "github.com/c35s/hype/os/linux"
	"github.com/c35s/hype/virtio"
	"github.com/c35s/hype/vmm"
)

// kvmEngine implements Engine using Linux KVM via hype.
type kvmEngine struct{}

// NewEngine creates a KVM-based engine for Linux.
func NewEngine() (Engine, error) {
	// Check if /dev/kvm exists and is accessible
	if _, err := os.Stat("/dev/kvm"); err != nil {
		return nil, fmt.Errorf("kvmEngine: /dev/kvm not accessible: %w", err)
	}
	return &kvmEngine{}, nil
}

func (e *kvmEngine) Info() Info {
	return Info{
		Name:    "kvm",
		Version: "1.0.0",
		Arch:    runtime.GOARCH,
	}
}

func (e *kvmEngine) Capabilities() Capabilities {
	return Capabilities{
		Networking:    false, // hype lacks virtio-net
		Storage:       true,
		RemoteDisplay: false,
	}
}

func (e *kvmEngine) Validate(ctx context.Context, cfg *MachineConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := os.Stat(cfg.Kernel); err != nil {
		return fmt.Errorf("kvmEngine: kernel not found: %w", err)
	}
	return nil
}

func (e *kvmEngine) Start(ctx context.Context, cfg *MachineConfig, delegate Delegate) (Machine, error) {
	if err := e.Validate(ctx, cfg); err != nil {
		return nil, err
	}

	kernel, err := os.ReadFile(cfg.Kernel)
	if err != nil {
		return nil, fmt.Errorf("kvmEngine: read kernel: %w", err)
	}

	var initrd []byte
	if cfg.Initrd != "" {
		initrd, err = os.ReadFile(cfg.Initrd)
		if err != nil {
			return nil, fmt.Errorf("kvmEngine: read initrd: %w", err)
		}
	}

	hypeCfg := vmm.Config{
		MemSize: cfg.MemoryMB * 1024 * 1024,
		Loader: &hypeos.Loader{
			Kernel:  kernel,
			Initrd:  initrd,
			Cmdline: cfg.Cmdline,
		},
	}

	var diskFile *os.File
	if cfg.DiskPath != "" {
		diskFile, err = os.OpenFile(cfg.DiskPath, os.O_RDWR, 0)
		if err != nil {
			return nil, fmt.Errorf("kvmEngine: open disk: %w", err)
		}
		hypeCfg.Devices = append(hypeCfg.Devices, &virtio.BlockDevice{
			Storage: &virtio.FileStorage{File: diskFile},
		})
	}

	vm, err := vmm.New(hypeCfg)
	if err != nil {
		if diskFile != nil {
			diskFile.Close()
		}
		return nil, fmt.Errorf("kvmEngine: create VM: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m := &kvmMachine{
		delegate: delegate,
		cancel:   cancel,
		diskFile: diskFile,
		stopped:  make(chan struct{}),
	}

	// Run the machine in the background. hype has no distinct "running"
	// confirmation: the VCPU loop either starts or Run returns immediately.
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		m.finish(vm.Run(runCtx))
	}()

	return m, nil
}

// kvmMachine is the runtime handle of one hype VM.
type kvmMachine struct {
	delegate Delegate
	cancel   context.CancelFunc
	diskFile *os.File

	mu      sync.Mutex
	done    bool
	stopped chan struct{}
}

// finish records the machine exit and delivers exactly one delegate
// notification. Cancellation is an intentional stop, not an error.
func (m *kvmMachine) finish(err error) {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return
	}
	m.done = true
	m.mu.Unlock()

	if m.diskFile != nil {
		m.diskFile.Close()
	}
	close(m.stopped)

	if err != nil && !errors.Is(err, context.Canceled) {
		m.delegate.DidStopWithError(m, err)
	} else {
		m.delegate.GuestDidStopVirtualMachine(m)
	}
}

func (m *kvmMachine) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.mu.Unlock()

	// hype offers no guest-cooperative shutdown channel; cancelling the run
	// context is the stop request.
	m.cancel()

	select {
	case <-m.stopped:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("kvmEngine: wait for stop: %w", ctx.Err())
	}
}

func (m *kvmMachine) Kill(ctx context.Context) error {
	return m.Stop(ctx)
}
