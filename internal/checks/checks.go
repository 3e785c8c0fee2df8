// Package checks holds the types shared by every service check: the
// operation enum decoded once by the command layer, the sentinel answers for
// installed/running probes, and the context bundle handed to each check.
package checks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jandubois/checks/internal/dcache"
	"github.com/jandubois/checks/internal/runner"
)

// Op identifies the single operation a check invocation performs.
type Op int

const (
	OpInstalled Op = iota
	OpRunning
	OpDiscovery
	OpStatus
	// OpMetric covers the per-service scalar metrics (bps, iops, resptime,
	// offset, epoch, ...); Params.Metric names which one.
	OpMetric
)

// Sentinel answers for installed/running probes. NotInstalled is printed by
// a running probe whose collaborator tool is absent.
const (
	No           = "0"
	Yes          = "1"
	NotInstalled = "2"
)

// ErrNotFound reports a status lookup for an entity that is absent from
// every source. The collaborator and the parser both worked; the identifier
// simply does not exist.
var ErrNotFound = errors.New("entity not found")

// ErrUnsupported reports an operation a service does not implement.
var ErrUnsupported = errors.New("unsupported operation")

// Params carries the operation parameters decoded from the command line.
type Params struct {
	// Metric names the scalar for OpMetric.
	Metric string
	// TTL is the discovery cache freshness window; zero disables the cache.
	TTL time.Duration
	// Filter is an optional entity name filter regex for discovery.
	Filter string
	// Args are the positional entity identifiers for OpStatus and OpMetric.
	Args []string
}

// CommandRunner is the slice of runner.Runner the checks consume; tests
// substitute a fake that records spawn attempts.
type CommandRunner interface {
	Lookup(tool string) (string, bool)
	Run(ctx context.Context, tool string, args ...string) (runner.Result, error)
}

// Context bundles the collaborators a check needs. Stdout carries only the
// check's answer; diagnostics go to the logger.
type Context struct {
	Runner CommandRunner
	Cache  dcache.Store
	Now    func() time.Time
	Stdout io.Writer
}

// Answer writes a single answer token (or document) followed by a newline.
func (c *Context) Answer(v string) error {
	_, err := fmt.Fprintln(c.Stdout, v)
	return err
}

// Bool renders a boolean probe result as its sentinel token.
func Bool(ok bool) string {
	if ok {
		return Yes
	}
	return No
}
