package cmd

import (
	"github.com/jandubois/checks/internal/checks"
	"github.com/jandubois/checks/internal/checks/ntp"
	"github.com/spf13/cobra"
)

var ntpCmd = &cobra.Command{
	Use:     "ntp",
	Short:   "Check clock synchronization",
	GroupID: servicesGroupID,
}

var ntpInstalledCmd = &cobra.Command{
	Use:   "installed",
	Short: "Report whether chronyc or ntpq is present (1/0)",
	Args:  cobra.NoArgs,
	RunE:  serviceOp(ntp.Run, checks.OpInstalled, ""),
}

var ntpRunningCmd = &cobra.Command{
	Use:   "running",
	Short: "Report whether a time daemon answers (1/0, 2 if not installed)",
	Args:  cobra.NoArgs,
	RunE:  serviceOp(ntp.Run, checks.OpRunning, ""),
}

var ntpOffsetCmd = &cobra.Command{
	Use:   "offset",
	Short: "Report the clock offset from the time source, in seconds",
	Args:  cobra.NoArgs,
	RunE:  serviceOp(ntp.Run, checks.OpMetric, "offset"),
}

var ntpEpochCmd = &cobra.Command{
	Use:   "epoch",
	Short: "Report the current Unix time",
	Args:  cobra.NoArgs,
	RunE:  serviceOp(ntp.Run, checks.OpMetric, "epoch"),
}

func init() {
	ntpCmd.AddCommand(ntpInstalledCmd)
	ntpCmd.AddCommand(ntpRunningCmd)
	ntpCmd.AddCommand(ntpOffsetCmd)
	ntpCmd.AddCommand(ntpEpochCmd)
	rootCmd.AddCommand(ntpCmd)
}
