package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javanstorm/vfdriver/internal/driver"
)

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "Show supported guest configurations",
	RunE:  runCapabilities,
}

func runCapabilities(cmd *cobra.Command, args []string) error {
	engine, err := newEngine()
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	caps := driver.CapsInit(engine)
	fmt.Printf("Host:  %s (%s)\n", caps.Host.Engine, caps.Host.Arch)
	for _, g := range caps.Guests {
		fmt.Printf("Guest: arch=%s type=%s network=%t storage=%t display=%t\n",
			g.Arch, g.OSType, g.Networking, g.Storage, g.RemoteDisplay)
	}
	return nil
}
