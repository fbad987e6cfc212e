package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Start a defined domain and run it in the foreground",
	Long: `Start a defined domain against the host engine and block until it stops.
The domain stops when the guest shuts down, the engine reports an error, or
the process receives SIGINT/SIGTERM (which triggers a graceful stop).`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	name := args[0]

	drv, err := newDriver()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := drv.StartDomain(ctx, name); err != nil {
		return err
	}

	dom, err := drv.Lookup(name)
	if err != nil {
		return err
	}

	fmt.Printf("Domain '%s' running (vmid %d)\n", name, dom.VMID())
	if ports := dom.DisplayPorts(); len(ports) > 0 {
		fmt.Printf("  Display ports: %v\n", ports)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		fmt.Printf("\nReceived %s, stopping domain...\n", sig)
		if err := drv.StopDomain(context.Background(), name); err != nil {
			return err
		}
	case <-dom.Done():
	}

	if err := dom.LastError(); err != nil {
		return fmt.Errorf("domain '%s' stopped with error: %w", name, err)
	}
	fmt.Printf("Domain '%s' stopped\n", name)
	return nil
}
