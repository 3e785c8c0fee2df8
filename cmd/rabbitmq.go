package cmd

import (
	"github.com/jandubois/checks/internal/checks"
	"github.com/jandubois/checks/internal/checks/rabbitmq"
	"github.com/spf13/cobra"
)

var rabbitmqCmd = &cobra.Command{
	Use:     "rabbitmq",
	Short:   "Check a RabbitMQ broker",
	GroupID: servicesGroupID,
}

var rabbitmqInstalledCmd = &cobra.Command{
	Use:   "installed",
	Short: "Report whether rabbitmqctl is present (1/0)",
	Args:  cobra.NoArgs,
	RunE:  serviceOp(rabbitmq.Run, checks.OpInstalled, ""),
}

var rabbitmqRunningCmd = &cobra.Command{
	Use:   "running",
	Short: "Report whether the broker answers (1/0, 2 if not installed)",
	Args:  cobra.NoArgs,
	RunE:  serviceOp(rabbitmq.Run, checks.OpRunning, ""),
}

var rabbitmqDiscoveryCmd = &cobra.Command{
	Use:   "discovery [filter]",
	Short: "Discover vhost/queue pairs as an LLD document",
	Args:  cobra.MaximumNArgs(1),
	RunE:  serviceOp(rabbitmq.Run, checks.OpDiscovery, ""),
}

var rabbitmqStatusCmd = &cobra.Command{
	Use:   "status <vhost> <queue>",
	Short: "Report the message depth of one queue",
	Args:  cobra.ExactArgs(2),
	RunE:  serviceOp(rabbitmq.Run, checks.OpStatus, ""),
}

func init() {
	rabbitmqDiscoveryCmd.Flags().Int("ttl", 0, "Cache the enumeration for this many seconds (0 disables)")
	rabbitmqStatusCmd.Flags().Int("ttl", 0, "Accept a cached enumeration up to this many seconds old")

	rabbitmqCmd.AddCommand(rabbitmqInstalledCmd)
	rabbitmqCmd.AddCommand(rabbitmqRunningCmd)
	rabbitmqCmd.AddCommand(rabbitmqDiscoveryCmd)
	rabbitmqCmd.AddCommand(rabbitmqStatusCmd)
	rootCmd.AddCommand(rabbitmqCmd)
}
