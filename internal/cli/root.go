// Package cli provides the command-line interface for the vf driver.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javanstorm/vfdriver/internal/config"
	"github.com/javanstorm/vfdriver/internal/driver"
	"github.com/javanstorm/vfdriver/internal/logging"
	"github.com/javanstorm/vfdriver/pkg/hypervisor"
)

var rootCmd = &cobra.Command{
	Use:   "vfdriver",
	Short: "vfdriver - manage virtual machines on the host virtualization engine",
	Long: `vfdriver bridges libvirt-style domain definitions to the host's
virtualization engine (Virtualization.framework on macOS, KVM on Linux).

Domains are defined from XML descriptions, started and stopped against the
engine, and expose VNC listeners for remote display access.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch cmd.Name() {
		case "version", "completion":
			return nil
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := logging.Configure(cfg.LogLevel); err != nil {
			return err
		}
		loadedConfig = cfg
		return nil
	},
}

// loadedConfig is set by the root PersistentPreRunE for commands that need
// the driver.
var loadedConfig *config.Config

// newEngine is a hook so tests can run commands against a fake engine.
var newEngine = hypervisor.NewEngine

// newDriver builds and configures a driver against the platform engine.
func newDriver() (*driver.Driver, error) {
	engine, err := newEngine()
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	drv := driver.New(engine)
	if err := drv.InitConfiguration(loadedConfig); err != nil {
		return nil, err
	}
	return drv, nil
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("command failed: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(defineCmd)
	rootCmd.AddCommand(undefineCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(dominfoCmd)
	rootCmd.AddCommand(capabilitiesCmd)
}
