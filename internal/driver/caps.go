package driver

import "github.com/javanstorm/vfdriver/pkg/hypervisor"

// Capabilities is the static description of supported guest configurations
// advertised to the orchestrator.
type Capabilities struct {
	Host   HostCapability
	Guests []GuestCapability
}

// HostCapability describes the host side of the driver.
type HostCapability struct {
	Arch   string
	Engine string
}

// GuestCapability describes one supported guest configuration.
type GuestCapability struct {
	Arch          string
	OSType        string
	Networking    bool
	Storage       bool
	RemoteDisplay bool
}

// CapsInit builds the capability advertisement for an engine. Pure: it reads
// engine metadata and holds no state.
func CapsInit(e hypervisor.Engine) *Capabilities {
	info := e.Info()
	caps := e.Capabilities()

	return &Capabilities{
		Host: HostCapability{
			Arch:   info.Arch,
			Engine: info.Name,
		},
		Guests: []GuestCapability{
			{
				Arch:          info.Arch,
				OSType:        "hvm",
				Networking:    caps.Networking,
				Storage:       caps.Storage,
				RemoteDisplay: caps.RemoteDisplay,
			},
		},
	}
}
