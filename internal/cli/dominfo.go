package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dominfoCmd = &cobra.Command{
	Use:   "dominfo <name>",
	Short: "Show a domain's configuration and state",
	Args:  cobra.ExactArgs(1),
	RunE:  runDominfo,
}

func runDominfo(cmd *cobra.Command, args []string) error {
	drv, err := newDriver()
	if err != nil {
		return err
	}

	dom, err := drv.Lookup(args[0])
	if err != nil {
		return err
	}

	cfg := dom.Config()
	fmt.Printf("Name:       %s\n", dom.Name())
	fmt.Printf("UUID:       %s\n", dom.UUID())
	fmt.Printf("State:      %s\n", dom.State())
	fmt.Printf("VCPUs:      %d\n", cfg.VCPUs)
	fmt.Printf("Memory:     %d MiB\n", cfg.MemoryMB)
	fmt.Printf("Kernel:     %s\n", cfg.Kernel)
	if cfg.DiskPath != "" {
		fmt.Printf("Disk:       %s\n", cfg.DiskPath)
	}
	if len(cfg.VNCPorts) > 0 {
		fmt.Printf("VNC ports:  %v\n", cfg.VNCPorts)
	}
	if err := dom.LastError(); err != nil {
		fmt.Printf("Last error: %v\n", err)
	}
	return nil
}
