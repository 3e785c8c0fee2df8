// Package redis checks a Redis server through redis-cli: PING liveness and
// response time, single INFO field extraction, and keyspace db discovery.
package redis

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	units "github.com/docker/go-units"
	"github.com/jandubois/checks/internal/checks"
	"github.com/jandubois/checks/internal/lld"
)

const tool = "redis-cli"

// Run performs one redis check operation.
func Run(ctx context.Context, cc *checks.Context, op checks.Op, p checks.Params) error {
	switch op {
	case checks.OpInstalled:
		_, ok := cc.Runner.Lookup(tool)
		return cc.Answer(checks.Bool(ok))
	case checks.OpRunning:
		return running(ctx, cc)
	case checks.OpDiscovery:
		return discovery(ctx, cc)
	case checks.OpMetric:
		switch p.Metric {
		case "resptime":
			return resptime(ctx, cc)
		case "metric":
			if len(p.Args) != 1 {
				return fmt.Errorf("metric requires exactly one INFO field name")
			}
			return infoField(ctx, cc, p.Args[0])
		}
		return fmt.Errorf("redis metric %q: %w", p.Metric, checks.ErrUnsupported)
	default:
		return fmt.Errorf("redis: %w", checks.ErrUnsupported)
	}
}

func ping(ctx context.Context, cc *checks.Context) (alive, installed bool, err error) {
	res, err := cc.Runner.Run(ctx, tool, "ping")
	if err != nil {
		return false, false, err
	}
	if !res.Available {
		return false, false, nil
	}
	return strings.TrimSpace(string(res.Output)) == "PONG", true, nil
}

func running(ctx context.Context, cc *checks.Context) error {
	alive, installed, err := ping(ctx, cc)
	if err != nil {
		return err
	}
	if !installed {
		return cc.Answer(checks.NotInstalled)
	}
	return cc.Answer(checks.Bool(alive))
}

// resptime reports the wall time of one PING round trip, in seconds.
func resptime(ctx context.Context, cc *checks.Context) error {
	start := cc.Now()
	alive, installed, err := ping(ctx, cc)
	if err != nil {
		return err
	}
	if !installed || !alive {
		return fmt.Errorf("redis did not answer PING")
	}
	return cc.Answer(strconv.FormatFloat(cc.Now().Sub(start).Seconds(), 'f', 3, 64))
}

// parseInfo maps INFO output field names to values. Section headers and
// blank lines are skipped; an output with no fields at all is a parse error.
func parseInfo(output []byte) (map[string]string, error) {
	fields := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(output))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields[key] = value
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("unexpected INFO output shape")
	}
	return fields, nil
}

func infoField(ctx context.Context, cc *checks.Context, field string) error {
	res, err := cc.Runner.Run(ctx, tool, "info")
	if err != nil {
		return err
	}
	if !res.Available {
		return fmt.Errorf("redis-cli unavailable")
	}

	fields, err := parseInfo(res.Output)
	if err != nil {
		return err
	}
	value, ok := fields[field]
	if !ok {
		return fmt.Errorf("INFO field %s: %w", field, checks.ErrNotFound)
	}

	// Human-formatted memory figures ("1.05M") are normalized to bytes so
	// the agent always receives a plain number.
	if strings.HasSuffix(field, "_human") {
		n, err := units.RAMInBytes(value)
		if err != nil {
			return fmt.Errorf("parse %s value %q: %w", field, value, err)
		}
		return cc.Answer(strconv.FormatInt(n, 10))
	}
	return cc.Answer(value)
}

// discovery lists the populated keyspace dbs ("db0", "db1", ...).
func discovery(ctx context.Context, cc *checks.Context) error {
	doc := &lld.Document{}

	res, err := cc.Runner.Run(ctx, tool, "info", "keyspace")
	if err != nil {
		return err
	}
	if res.Available {
		// An idle server reports an empty keyspace section; that is a valid
		// zero-item discovery. Lines are kept in listing order.
		sc := bufio.NewScanner(bytes.NewReader(res.Output))
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			db, _, ok := strings.Cut(line, ":")
			if !ok || !strings.HasPrefix(db, "db") {
				continue
			}
			doc.Append(lld.Item{{Key: "DB", Value: db}})
		}
	}

	out, err := doc.Render()
	if err != nil {
		return err
	}
	return cc.Answer(string(out))
}
