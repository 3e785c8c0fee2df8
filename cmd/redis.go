package cmd

import (
	"github.com/jandubois/checks/internal/checks"
	"github.com/jandubois/checks/internal/checks/redis"
	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:     "redis",
	Short:   "Check a Redis server",
	GroupID: servicesGroupID,
}

var redisInstalledCmd = &cobra.Command{
	Use:   "installed",
	Short: "Report whether redis-cli is present (1/0)",
	Args:  cobra.NoArgs,
	RunE:  serviceOp(redis.Run, checks.OpInstalled, ""),
}

var redisRunningCmd = &cobra.Command{
	Use:   "running",
	Short: "Report whether the server answers PING (1/0, 2 if not installed)",
	Args:  cobra.NoArgs,
	RunE:  serviceOp(redis.Run, checks.OpRunning, ""),
}

var redisDiscoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Discover populated keyspace dbs as an LLD document",
	Args:  cobra.NoArgs,
	RunE:  serviceOp(redis.Run, checks.OpDiscovery, ""),
}

var redisResptimeCmd = &cobra.Command{
	Use:   "resptime",
	Short: "Report the PING round-trip time in seconds",
	Args:  cobra.NoArgs,
	RunE:  serviceOp(redis.Run, checks.OpMetric, "resptime"),
}

var redisMetricCmd = &cobra.Command{
	Use:   "metric <field>",
	Short: "Report one INFO field (human sizes normalized to bytes)",
	Args:  cobra.ExactArgs(1),
	RunE:  serviceOp(redis.Run, checks.OpMetric, "metric"),
}

func init() {
	redisCmd.AddCommand(redisInstalledCmd)
	redisCmd.AddCommand(redisRunningCmd)
	redisCmd.AddCommand(redisDiscoveryCmd)
	redisCmd.AddCommand(redisResptimeCmd)
	redisCmd.AddCommand(redisMetricCmd)
	rootCmd.AddCommand(redisCmd)
}
