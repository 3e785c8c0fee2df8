package cmd

import (
	"github.com/jandubois/checks/internal/checks"
	"github.com/jandubois/checks/internal/checks/systemd"
	"github.com/spf13/cobra"
)

var systemdCmd = &cobra.Command{
	Use:     "systemd",
	Short:   "Check systemd service units",
	GroupID: servicesGroupID,
}

var systemdInstalledCmd = &cobra.Command{
	Use:   "installed",
	Short: "Report whether systemctl is present (1/0)",
	Args:  cobra.NoArgs,
	RunE:  serviceOp(systemd.Run, checks.OpInstalled, ""),
}

var systemdRunningCmd = &cobra.Command{
	Use:   "running",
	Short: "Report whether the service manager answers (1/0, 2 if not installed)",
	Args:  cobra.NoArgs,
	RunE:  serviceOp(systemd.Run, checks.OpRunning, ""),
}

var systemdDiscoveryCmd = &cobra.Command{
	Use:   "discovery [filter]",
	Short: "Discover service units as an LLD document",
	Args:  cobra.MaximumNArgs(1),
	RunE:  serviceOp(systemd.Run, checks.OpDiscovery, ""),
}

var systemdStatusCmd = &cobra.Command{
	Use:   "status <unit>",
	Short: "Report the active state of one unit",
	Args:  cobra.ExactArgs(1),
	RunE:  serviceOp(systemd.Run, checks.OpStatus, ""),
}

func init() {
	systemdCmd.AddCommand(systemdInstalledCmd)
	systemdCmd.AddCommand(systemdRunningCmd)
	systemdCmd.AddCommand(systemdDiscoveryCmd)
	systemdCmd.AddCommand(systemdStatusCmd)
	rootCmd.AddCommand(systemdCmd)
}
