// Package domainxml encodes and decodes domain descriptions. Descriptions
// use the libvirt domain XML schema; only the fields the driver acts on are
// carried into Config.
package domainxml

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"libvirt.org/go/libvirtxml"

	"github.com/javanstorm/vfdriver/pkg/hypervisor"
)

var (
	ErrMissingName = errors.New("domainxml: domain name is required")
	ErrBadUUID     = errors.New("domainxml: invalid domain UUID")
)

// Config is a parsed domain description.
type Config struct {
	Name     string
	UUID     uuid.UUID
	VCPUs    int
	MemoryMB int

	Kernel  string
	Initrd  string
	Cmdline string

	DiskPath string

	EnableNetwork bool
	MACAddress    string

	// VNCPorts lists the remote-display listen ports requested by the
	// description, one endpoint per port.
	VNCPorts []uint32
}

// Parse decodes a libvirt-style domain XML document.
func Parse(data []byte) (*Config, error) {
	var doc libvirtxml.Domain
	if err := doc.Unmarshal(string(data)); err != nil {
		return nil, fmt.Errorf("domainxml: parse: %w", err)
	}

	if doc.Name == "" {
		return nil, ErrMissingName
	}

	cfg := &Config{Name: doc.Name}

	if doc.UUID == "" {
		cfg.UUID = uuid.New()
	} else {
		id, err := uuid.Parse(doc.UUID)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadUUID, doc.UUID)
		}
		cfg.UUID = id
	}

	if doc.VCPU != nil {
		cfg.VCPUs = int(doc.VCPU.Value)
	}
	if doc.Memory != nil {
		cfg.MemoryMB = memoryMB(doc.Memory.Value, doc.Memory.Unit)
	}

	if doc.OS != nil {
		cfg.Kernel = doc.OS.Kernel
		cfg.Initrd = doc.OS.Initrd
		cfg.Cmdline = doc.OS.Cmdline
	}

	if doc.Devices != nil {
		for _, disk := range doc.Devices.Disks {
			if disk.Source != nil && disk.Source.File != nil {
				cfg.DiskPath = disk.Source.File.File
				break
			}
		}
		for _, iface := range doc.Devices.Interfaces {
			cfg.EnableNetwork = true
			if iface.MAC != nil && cfg.MACAddress == "" {
				cfg.MACAddress = iface.MAC.Address
			}
		}
		for _, g := range doc.Devices.Graphics {
			if g.VNC != nil && g.VNC.Port > 0 {
				cfg.VNCPorts = append(cfg.VNCPorts, uint32(g.VNC.Port))
			}
		}
	}

	return cfg, nil
}

// Marshal encodes the config back into a domain XML document.
func (c *Config) Marshal() ([]byte, error) {
	doc := libvirtxml.Domain{
		Type: "vf",
		Name: c.Name,
		UUID: c.UUID.String(),
		VCPU: &libvirtxml.DomainVCPU{Value: uint(c.VCPUs)},
		Memory: &libvirtxml.DomainMemory{
			Value: uint(c.MemoryMB),
			Unit:  "MiB",
		},
		OS: &libvirtxml.DomainOS{
			Type:    &libvirtxml.DomainOSType{Type: "hvm"},
			Kernel:  c.Kernel,
			Initrd:  c.Initrd,
			Cmdline: c.Cmdline,
		},
		Devices: &libvirtxml.DomainDeviceList{},
	}

	if c.DiskPath != "" {
		doc.Devices.Disks = []libvirtxml.DomainDisk{{
			Device: "disk",
			Source: &libvirtxml.DomainDiskSource{
				File: &libvirtxml.DomainDiskSourceFile{File: c.DiskPath},
			},
			Target: &libvirtxml.DomainDiskTarget{Dev: "vda", Bus: "virtio"},
		}}
	}

	if c.EnableNetwork {
		iface := libvirtxml.DomainInterface{
			Source: &libvirtxml.DomainInterfaceSource{
				User: &libvirtxml.DomainInterfaceSourceUser{},
			},
		}
		if c.MACAddress != "" {
			iface.MAC = &libvirtxml.DomainInterfaceMAC{Address: c.MACAddress}
		}
		doc.Devices.Interfaces = []libvirtxml.DomainInterface{iface}
	}

	for _, port := range c.VNCPorts {
		doc.Devices.Graphics = append(doc.Devices.Graphics, libvirtxml.DomainGraphic{
			VNC: &libvirtxml.DomainGraphicVNC{Port: int(port)},
		})
	}

	out, err := doc.Marshal()
	if err != nil {
		return nil, fmt.Errorf("domainxml: marshal: %w", err)
	}
	return []byte(out), nil
}

// MachineConfig translates the description into the engine's configuration.
func (c *Config) MachineConfig() *hypervisor.MachineConfig {
	return &hypervisor.MachineConfig{
		CPUs:          c.VCPUs,
		MemoryMB:      c.MemoryMB,
		Kernel:        c.Kernel,
		Initrd:        c.Initrd,
		Cmdline:       c.Cmdline,
		DiskPath:      c.DiskPath,
		EnableNetwork: c.EnableNetwork,
		MACAddress:    c.MACAddress,
	}
}

func memoryMB(value uint, unit string) int {
	switch unit {
	case "", "KiB", "k":
		return int(value / 1024)
	case "MiB", "M":
		return int(value)
	case "GiB", "G":
		return int(value * 1024)
	case "b", "bytes":
		return int(value / (1024 * 1024))
	default:
		return int(value / 1024)
	}
}
