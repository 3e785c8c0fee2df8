package cmd

import (
	"github.com/jandubois/checks/internal/checks"
	"github.com/jandubois/checks/internal/checks/diskio"
	"github.com/spf13/cobra"
)

var diskioCmd = &cobra.Command{
	Use:     "diskio",
	Short:   "Check block device I/O",
	GroupID: servicesGroupID,
}

var diskioInstalledCmd = &cobra.Command{
	Use:   "installed",
	Short: "Report whether kernel disk stats are available (1/0)",
	Args:  cobra.NoArgs,
	RunE:  serviceOp(diskio.Run, checks.OpInstalled, ""),
}

var diskioRunningCmd = &cobra.Command{
	Use:   "running",
	Short: "Report whether kernel disk stats are readable (1/0, 2 if absent)",
	Args:  cobra.NoArgs,
	RunE:  serviceOp(diskio.Run, checks.OpRunning, ""),
}

var diskioDiscoveryCmd = &cobra.Command{
	Use:   "discovery [filter]",
	Short: "Discover block devices as an LLD document",
	Args:  cobra.MaximumNArgs(1),
	RunE:  serviceOp(diskio.Run, checks.OpDiscovery, ""),
}

var diskioBpsCmd = &cobra.Command{
	Use:   "bps <device>",
	Short: "Report bytes per second for one device",
	Args:  cobra.ExactArgs(1),
	RunE:  serviceOp(diskio.Run, checks.OpMetric, "bps"),
}

var diskioIopsCmd = &cobra.Command{
	Use:   "iops <device>",
	Short: "Report I/O operations per second for one device",
	Args:  cobra.ExactArgs(1),
	RunE:  serviceOp(diskio.Run, checks.OpMetric, "iops"),
}

var diskioUtilCmd = &cobra.Command{
	Use:   "util <device>",
	Short: "Report percent of time the device was busy",
	Args:  cobra.ExactArgs(1),
	RunE:  serviceOp(diskio.Run, checks.OpMetric, "util"),
}

func init() {
	diskioCmd.AddCommand(diskioInstalledCmd)
	diskioCmd.AddCommand(diskioRunningCmd)
	diskioCmd.AddCommand(diskioDiscoveryCmd)
	diskioCmd.AddCommand(diskioBpsCmd)
	diskioCmd.AddCommand(diskioIopsCmd)
	diskioCmd.AddCommand(diskioUtilCmd)
	rootCmd.AddCommand(diskioCmd)
}
