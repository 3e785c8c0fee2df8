// Package ntp reports clock synchronization state, preferring chronyc and
// falling back to ntpq. The offset scalar is always in seconds; ntpq reports
// milliseconds and is converted.
package ntp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jandubois/checks/internal/checks"
)

const (
	chronyTool = "chronyc"
	ntpqTool   = "ntpq"
)

// Run performs one ntp check operation.
func Run(ctx context.Context, cc *checks.Context, op checks.Op, p checks.Params) error {
	switch op {
	case checks.OpInstalled:
		return cc.Answer(checks.Bool(installed(cc)))
	case checks.OpRunning:
		return running(ctx, cc)
	case checks.OpMetric:
		switch p.Metric {
		case "offset":
			return offset(ctx, cc)
		case "epoch":
			return cc.Answer(strconv.FormatInt(cc.Now().Unix(), 10))
		}
		return fmt.Errorf("ntp metric %q: %w", p.Metric, checks.ErrUnsupported)
	default:
		return fmt.Errorf("ntp: %w", checks.ErrUnsupported)
	}
}

func installed(cc *checks.Context) bool {
	if _, ok := cc.Runner.Lookup(chronyTool); ok {
		return true
	}
	_, ok := cc.Runner.Lookup(ntpqTool)
	return ok
}

func running(ctx context.Context, cc *checks.Context) error {
	if !installed(cc) {
		return cc.Answer(checks.NotInstalled)
	}
	if res, err := cc.Runner.Run(ctx, chronyTool, "tracking"); err != nil {
		return err
	} else if res.Available {
		return cc.Answer(checks.Bool(res.ExitCode == 0))
	}
	res, err := cc.Runner.Run(ctx, ntpqTool, "-pn")
	if err != nil {
		return err
	}
	if !res.Available {
		return cc.Answer(checks.NotInstalled)
	}
	return cc.Answer(checks.Bool(res.ExitCode == 0))
}

func offset(ctx context.Context, cc *checks.Context) error {
	if res, err := cc.Runner.Run(ctx, chronyTool, "tracking"); err != nil {
		return err
	} else if res.Available && res.ExitCode == 0 {
		value, err := parseChronyOffset(res.Output)
		if err != nil {
			return err
		}
		return cc.Answer(strconv.FormatFloat(value, 'f', 9, 64))
	}

	res, err := cc.Runner.Run(ctx, ntpqTool, "-pn")
	if err != nil {
		return err
	}
	if !res.Available || res.ExitCode != 0 {
		return fmt.Errorf("no usable time daemon answered")
	}
	value, err := parseNtpqOffset(res.Output)
	if err != nil {
		return err
	}
	return cc.Answer(strconv.FormatFloat(value, 'f', 6, 64))
}

// parseChronyOffset extracts the "Last offset" line of `chronyc tracking`,
// e.g. "Last offset     : +0.000012341 seconds".
func parseChronyOffset(output []byte) (float64, error) {
	sc := bufio.NewScanner(bytes.NewReader(output))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "Last offset") {
			continue
		}
		_, rest, ok := strings.Cut(line, ":")
		if !ok {
			break
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			break
		}
		return strconv.ParseFloat(fields[0], 64)
	}
	return 0, fmt.Errorf("unexpected chronyc tracking output shape")
}

// parseNtpqOffset extracts the system peer offset (ms) from `ntpq -pn` and
// converts it to seconds. The system peer row is marked with '*'.
func parseNtpqOffset(output []byte) (float64, error) {
	sc := bufio.NewScanner(bytes.NewReader(output))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "*") {
			continue
		}
		// remote refid st t when poll reach delay offset jitter
		fields := strings.Fields(line)
		if len(fields) < 9 {
			continue
		}
		ms, err := strconv.ParseFloat(fields[8], 64)
		if err != nil {
			continue
		}
		return ms / 1000, nil
	}
	return 0, fmt.Errorf("no system peer in ntpq output")
}
