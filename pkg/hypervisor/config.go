package hypervisor

// MachineConfig holds the resources and boot material for one machine.
type MachineConfig struct {
	// CPUs is the number of virtual CPUs.
	CPUs int

	// MemoryMB is the amount of memory in megabytes.
	MemoryMB int

	// Kernel is the path to the Linux kernel image.
	Kernel string

	// Initrd is the path to the initial ramdisk (optional).
	Initrd string

	// Cmdline is the kernel command line.
	Cmdline string

	// DiskPath is the path to the root disk image (optional).
	DiskPath string

	// EnableNetwork attaches a NAT network device.
	EnableNetwork bool

	// MACAddress is an optional custom MAC address.
	// If empty, a random locally-administered MAC is generated.
	MACAddress string
}

// Validate performs basic validation of the configuration.
func (c *MachineConfig) Validate() error {
	if c.CPUs < 1 {
		return ErrInvalidCPUCount
	}
	if c.MemoryMB < 128 {
		return ErrInsufficientMemory
	}
	if c.Kernel == "" {
		return ErrMissingKernel
	}
	return nil
}
