// Package systemd checks service units through systemctl: unit discovery
// from the list-units table and point status from is-active.
package systemd

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jandubois/checks/internal/checks"
	"github.com/jandubois/checks/internal/lld"
	"github.com/jandubois/checks/internal/tabular"
)

const tool = "systemctl"

// Run performs one systemd check operation.
func Run(ctx context.Context, cc *checks.Context, op checks.Op, p checks.Params) error {
	switch op {
	case checks.OpInstalled:
		_, ok := cc.Runner.Lookup(tool)
		return cc.Answer(checks.Bool(ok))
	case checks.OpRunning:
		return running(ctx, cc)
	case checks.OpDiscovery:
		return discovery(ctx, cc, p.Filter)
	case checks.OpStatus:
		if len(p.Args) != 1 {
			return fmt.Errorf("status requires exactly one unit name")
		}
		return status(ctx, cc, p.Args[0])
	default:
		return fmt.Errorf("systemd: %w", checks.ErrUnsupported)
	}
}

func running(ctx context.Context, cc *checks.Context) error {
	res, err := cc.Runner.Run(ctx, tool, "is-system-running")
	if err != nil {
		return err
	}
	if !res.Available {
		return cc.Answer(checks.NotInstalled)
	}
	// is-system-running exits non-zero for degraded systems; any answer at
	// all means the manager is up.
	state := strings.TrimSpace(string(res.Output))
	return cc.Answer(checks.Bool(state != "" && state != "offline"))
}

func discovery(ctx context.Context, cc *checks.Context, filter string) error {
	var re *regexp.Regexp
	if filter != "" {
		var err error
		if re, err = regexp.Compile(filter); err != nil {
			return fmt.Errorf("compile unit filter: %w", err)
		}
	}

	doc := &lld.Document{}
	res, err := cc.Runner.Run(ctx, tool, "list-units", "--type=service", "--all", "--plain", "--no-legend")
	if err != nil {
		return err
	}
	if res.Available {
		for _, rec := range tabular.Records(res.Output) {
			if re != nil && !re.MatchString(rec.Name) {
				continue
			}
			item := lld.Item{{Key: "NAME", Value: rec.Name}}
			// Columns are UNIT LOAD ACTIVE SUB DESCRIPTION; older systemd
			// drops trailing columns, so take what is there.
			if len(rec.Attrs) >= 2 {
				item = append(item, lld.Attr{Key: "ACTIVE", Value: rec.Attrs[1]})
			} else {
				item = append(item, lld.Attr{Key: "ACTIVE", Value: rec.Attrs[0]})
			}
			doc.Append(item)
		}
	} else {
		slog.Debug("systemctl not available, reporting empty discovery")
	}

	out, err := doc.Render()
	if err != nil {
		return err
	}
	return cc.Answer(string(out))
}

func status(ctx context.Context, cc *checks.Context, unit string) error {
	res, err := cc.Runner.Run(ctx, tool, "is-active", unit)
	if err != nil {
		return err
	}
	if !res.Available {
		return fmt.Errorf("unit %s: %w", unit, checks.ErrNotFound)
	}
	state := strings.TrimSpace(string(res.Output))
	if state == "" {
		return fmt.Errorf("unit %s: %w", unit, checks.ErrNotFound)
	}
	// is-active answers "inactive" even for units systemd has never heard
	// of, so a non-zero exit needs a load-state lookup to tell the two
	// apart.
	if res.ExitCode != 0 {
		known, err := unitKnown(ctx, cc, unit)
		if err != nil {
			return err
		}
		if !known {
			return fmt.Errorf("unit %s: %w", unit, checks.ErrNotFound)
		}
	}
	return cc.Answer(state)
}

// unitKnown reports whether systemd has a definition for unit. An unknown
// unit shows LoadState=not-found.
func unitKnown(ctx context.Context, cc *checks.Context, unit string) (bool, error) {
	res, err := cc.Runner.Run(ctx, tool, "show", "-p", "LoadState", "--value", unit)
	if err != nil {
		return false, err
	}
	if !res.Available {
		return false, nil
	}
	load := strings.TrimSpace(string(res.Output))
	return load != "" && load != "not-found", nil
}
