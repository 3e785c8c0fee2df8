// Package diskio reports block device discovery and I/O rates from the
// kernel's /proc/diskstats table. Rates are computed from the delta of two
// samples taken one interval apart.
package diskio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	units "github.com/docker/go-units"
	"github.com/jandubois/checks/internal/checks"
	"github.com/jandubois/checks/internal/lld"
)

const sectorSize = 512

var (
	statsPath      = "/proc/diskstats"
	sampleInterval = time.Second
	sleep          = time.Sleep
)

// devStats is one /proc/diskstats row.
type devStats struct {
	name         string
	readIOs      uint64
	readSectors  uint64
	writeIOs     uint64
	writeSectors uint64
	ioTicksMs    uint64
}

// Run performs one diskio check operation.
func Run(_ context.Context, cc *checks.Context, op checks.Op, p checks.Params) error {
	switch op {
	case checks.OpInstalled, checks.OpRunning:
		_, err := os.Stat(statsPath)
		if op == checks.OpRunning && err != nil {
			return cc.Answer(checks.NotInstalled)
		}
		return cc.Answer(checks.Bool(err == nil))
	case checks.OpDiscovery:
		return discovery(cc, p.Filter)
	case checks.OpMetric:
		if len(p.Args) != 1 {
			return fmt.Errorf("%s requires exactly one device name", p.Metric)
		}
		return rate(cc, p.Metric, p.Args[0])
	default:
		return fmt.Errorf("diskio: %w", checks.ErrUnsupported)
	}
}

// parseDiskstats extracts the counters this check uses. Field layout per
// row: major minor name reads rmerged rsectors rms writes wmerged wsectors
// wms inflight ioticks weighted. Short rows are skipped.
func parseDiskstats(data []byte) []devStats {
	var stats []devStats
	for _, line := range strings.Split(string(data), "\n") {
		f := strings.Fields(line)
		if len(f) < 13 {
			continue
		}
		s := devStats{name: f[2]}
		var err error
		if s.readIOs, err = strconv.ParseUint(f[3], 10, 64); err != nil {
			continue
		}
		if s.readSectors, err = strconv.ParseUint(f[5], 10, 64); err != nil {
			continue
		}
		if s.writeIOs, err = strconv.ParseUint(f[7], 10, 64); err != nil {
			continue
		}
		if s.writeSectors, err = strconv.ParseUint(f[9], 10, 64); err != nil {
			continue
		}
		if s.ioTicksMs, err = strconv.ParseUint(f[12], 10, 64); err != nil {
			continue
		}
		stats = append(stats, s)
	}
	return stats
}

func sample() ([]devStats, error) {
	data, err := os.ReadFile(statsPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", statsPath, err)
	}
	return parseDiskstats(data), nil
}

// isVirtual reports devices that are not interesting to discover by default.
func isVirtual(name string) bool {
	for _, prefix := range []string{"loop", "ram", "zram", "fd", "sr", "dm-"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// isPartition reports whether name is a partition of another listed device:
// the other name is a proper prefix and the remainder is digits, optionally
// led by 'p' after a trailing digit (nvme0n1p1, mmcblk0p2).
func isPartition(name string, names map[string]bool) bool {
	for i := len(name) - 1; i > 0; i-- {
		if !unicode.IsDigit(rune(name[i])) {
			break
		}
		base := name[:i]
		if strings.HasSuffix(base, "p") && len(base) > 1 && unicode.IsDigit(rune(base[len(base)-2])) {
			base = base[:len(base)-1]
		}
		if names[base] {
			return true
		}
	}
	return false
}

func discovery(cc *checks.Context, filter string) error {
	var re *regexp.Regexp
	if filter != "" {
		var err error
		if re, err = regexp.Compile(filter); err != nil {
			return fmt.Errorf("compile device filter: %w", err)
		}
	}

	doc := &lld.Document{}
	stats, err := sample()
	if err == nil {
		names := make(map[string]bool, len(stats))
		for _, s := range stats {
			names[s.name] = true
		}
		for _, s := range stats {
			if isVirtual(s.name) || isPartition(s.name, names) {
				continue
			}
			if re != nil && !re.MatchString(s.name) {
				continue
			}
			doc.Append(lld.Item{{Key: "DEVNAME", Value: s.name}})
		}
	} else {
		slog.Debug("diskstats not readable, reporting empty discovery", "error", err)
	}

	out, err := doc.Render()
	if err != nil {
		return err
	}
	return cc.Answer(string(out))
}

// delta clamps at zero: counters restart when a device is re-attached or
// the kernel resets them, and a wrapped subtraction would report an absurd
// rate for that one window.
func delta(after, before uint64) uint64 {
	if after < before {
		return 0
	}
	return after - before
}

func find(stats []devStats, dev string) (devStats, bool) {
	for _, s := range stats {
		if s.name == dev {
			return s, true
		}
	}
	return devStats{}, false
}

// rate samples the counters twice and prints the requested per-second rate.
func rate(cc *checks.Context, metric, dev string) error {
	before, err := sample()
	if err != nil {
		return err
	}
	b, ok := find(before, dev)
	if !ok {
		return fmt.Errorf("device %s: %w", dev, checks.ErrNotFound)
	}

	sleep(sampleInterval)

	after, err := sample()
	if err != nil {
		return err
	}
	a, ok := find(after, dev)
	if !ok {
		return fmt.Errorf("device %s: %w", dev, checks.ErrNotFound)
	}

	secs := sampleInterval.Seconds()
	var value float64
	switch metric {
	case "bps":
		sectors := delta(a.readSectors, b.readSectors) + delta(a.writeSectors, b.writeSectors)
		value = float64(sectors) * sectorSize / secs
		slog.Debug("disk throughput", "device", dev, "rate", units.HumanSize(value)+"/s")
	case "iops":
		ios := delta(a.readIOs, b.readIOs) + delta(a.writeIOs, b.writeIOs)
		value = float64(ios) / secs
	case "util":
		value = float64(delta(a.ioTicksMs, b.ioTicksMs)) / (secs * 1000) * 100
	default:
		return fmt.Errorf("diskio metric %q: %w", metric, checks.ErrUnsupported)
	}

	return cc.Answer(strconv.FormatFloat(value, 'f', 2, 64))
}
