//go:build darwin

package hypervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"sync"

	"github.com/Code-Hex/vz/v3"
)

// vzEngine implements Engine using macOS Virtualization.framework.
type vzEngine struct{}

// NewEngine creates a vz-based engine for macOS.
func NewEngine() (Engine, error) {
	return &vzEngine{}, nil
}

func (e *vzEngine) Info() Info {
	return Info{
		Name:    "vz",
		Version: "1.0.0",
		Arch:    runtime.GOARCH,
	}
}

func (e *vzEngine) Capabilities() Capabilities {
	return Capabilities{
		Networking:    true,
		Storage:       true,
		RemoteDisplay: false, // VNC serving is not exposed by the public framework API
	}
}

func (e *vzEngine) Validate(ctx context.Context, cfg *MachineConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	vmCfg, err := buildConfiguration(cfg)
	if err != nil {
		return err
	}
	ok, err := vmCfg.Validate()
	if !ok || err != nil {
		return fmt.Errorf("vzEngine: invalid configuration: %w", err)
	}
	return nil
}

func (e *vzEngine) Start(ctx context.Context, cfg *MachineConfig, delegate Delegate) (Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	vmCfg, err := buildConfiguration(cfg)
	if err != nil {
		return nil, err
	}

	ok, err := vmCfg.Validate()
	if !ok || err != nil {
		return nil, fmt.Errorf("vzEngine: invalid configuration: %w", err)
	}

	vm, err := vz.NewVirtualMachine(vmCfg)
	if err != nil {
		return nil, fmt.Errorf("vzEngine: create VM: %w", err)
	}

	if err := vm.Start(); err != nil {
		return nil, fmt.Errorf("vzEngine: start VM: %w", err)
	}

	m := &vzMachine{
		vm:       vm,
		delegate: delegate,
		stopped:  make(chan struct{}),
	}

	// Wait for the framework to confirm the guest is running before handing
	// out the machine handle.
	changed := vm.StateChangedNotify()
	for {
		select {
		case <-ctx.Done():
			_ = vm.Stop()
			return nil, ErrStartTimeout
		case <-changed:
		}
		switch vm.State() {
		case vz.VirtualMachineStateRunning:
			go m.monitor(changed)
			return m, nil
		case vz.VirtualMachineStateStopped, vz.VirtualMachineStateError:
			return nil, fmt.Errorf("vzEngine: machine stopped during start")
		}
	}
}

// vzMachine is the runtime handle of one Virtualization.framework VM.
type vzMachine struct {
	vm       *vz.VirtualMachine
	delegate Delegate

	mu      sync.Mutex
	done    bool
	stopped chan struct{}
}

// monitor watches framework state changes and delivers exactly one delegate
// notification when the machine leaves the running state.
func (m *vzMachine) monitor(changed <-chan vz.VirtualMachineState) {
	for range changed {
		switch m.vm.State() {
		case vz.VirtualMachineStateStopped:
			m.finish(nil)
			return
		case vz.VirtualMachineStateError:
			m.finish(errors.New("vzEngine: machine entered error state"))
			return
		}
	}
}

func (m *vzMachine) finish(cause error) {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return
	}
	m.done = true
	m.mu.Unlock()
	close(m.stopped)

	if cause != nil {
		m.delegate.DidStopWithError(m, cause)
	} else {
		m.delegate.GuestDidStopVirtualMachine(m)
	}
}

func (m *vzMachine) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.mu.Unlock()

	canStop, err := m.vm.CanRequestStop()
	if err != nil {
		return fmt.Errorf("vzEngine: check can stop: %w", err)
	}
	if canStop {
		ok, err := m.vm.RequestStop()
		if err != nil || !ok {
			return fmt.Errorf("vzEngine: request stop failed: %w", err)
		}
	} else if err := m.vm.Stop(); err != nil {
		return fmt.Errorf("vzEngine: force stop: %w", err)
	}

	select {
	case <-m.stopped:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("vzEngine: wait for stop: %w", ctx.Err())
	}
}

func (m *vzMachine) Kill(ctx context.Context) error {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.mu.Unlock()

	if err := m.vm.Stop(); err != nil {
		return fmt.Errorf("vzEngine: force stop: %w", err)
	}

	select {
	case <-m.stopped:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("vzEngine: wait for stop: %w", ctx.Err())
	}
}

// buildConfiguration translates a MachineConfig into a framework VM
// configuration.
func buildConfiguration(cfg *MachineConfig) (*vz.VirtualMachineConfiguration, error) {
	bootLoader, err := vz.NewLinuxBootLoader(cfg.Kernel,
		vz.WithCommandLine(cfg.Cmdline),
		vz.WithInitrd(cfg.Initrd),
	)
	if err != nil {
		return nil, fmt.Errorf("vzEngine: create boot loader: %w", err)
	}

	vmCfg, err := vz.NewVirtualMachineConfiguration(
		bootLoader,
		uint(cfg.CPUs),
		uint64(cfg.MemoryMB)*1024*1024,
	)
	if err != nil {
		return nil, fmt.Errorf("vzEngine: create VM config: %w", err)
	}

	platform, err := vz.NewGenericPlatformConfiguration()
	if err != nil {
		return nil, fmt.Errorf("vzEngine: create platform config: %w", err)
	}
	vmCfg.SetPlatformVirtualMachineConfiguration(platform)

	if cfg.EnableNetwork {
		natAttachment, err := vz.NewNATNetworkDeviceAttachment()
		if err != nil {
			return nil, fmt.Errorf("vzEngine: create NAT attachment: %w", err)
		}

		netConfig, err := vz.NewVirtioNetworkDeviceConfiguration(natAttachment)
		if err != nil {
			return nil, fmt.Errorf("vzEngine: create network config: %w", err)
		}

		var macAddr *vz.MACAddress
		if cfg.MACAddress != "" {
			hwAddr, err := net.ParseMAC(cfg.MACAddress)
			if err != nil {
				return nil, fmt.Errorf("vzEngine: parse MAC address: %w", err)
			}
			macAddr, err = vz.NewMACAddress(hwAddr)
			if err != nil {
				return nil, fmt.Errorf("vzEngine: create MAC address: %w", err)
			}
		} else {
			macAddr, err = vz.NewRandomLocallyAdministeredMACAddress()
			if err != nil {
				return nil, fmt.Errorf("vzEngine: generate random MAC: %w", err)
			}
		}
		netConfig.SetMACAddress(macAddr)

		vmCfg.SetNetworkDevicesVirtualMachineConfiguration([]*vz.VirtioNetworkDeviceConfiguration{netConfig})
	}

	if cfg.DiskPath != "" {
		diskAttachment, err := vz.NewDiskImageStorageDeviceAttachment(cfg.DiskPath, false)
		if err != nil {
			return nil, fmt.Errorf("vzEngine: create disk attachment: %w", err)
		}
		blockDevice, err := vz.NewVirtioBlockDeviceConfiguration(diskAttachment)
		if err != nil {
			return nil, fmt.Errorf("vzEngine: create block device: %w", err)
		}
		vmCfg.SetStorageDevicesVirtualMachineConfiguration([]vz.StorageDeviceConfiguration{blockDevice})
	}

	return vmCfg, nil
}
