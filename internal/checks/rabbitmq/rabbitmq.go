// Package rabbitmq checks a RabbitMQ broker through rabbitmqctl. Queue
// discovery enumerates every vhost and its queues, which is expensive on
// busy brokers, so the enumeration is kept in the discovery cache and reused
// by later queue lookups within the caller's freshness window.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/jandubois/checks/internal/checks"
	"github.com/jandubois/checks/internal/dcache"
	"github.com/jandubois/checks/internal/lld"
	"github.com/jandubois/checks/internal/tabular"
)

const (
	tool = "rabbitmqctl"

	// Namespace of the cached vhost/queue enumeration.
	Namespace = "rabbitmq.queue_discovery"
)

// queueRef identifies one queue within a vhost.
type queueRef struct {
	Vhost string `json:"vhost"`
	Queue string `json:"queue"`
}

// Run performs one rabbitmq check operation.
func Run(ctx context.Context, cc *checks.Context, op checks.Op, p checks.Params) error {
	switch op {
	case checks.OpInstalled:
		_, ok := cc.Runner.Lookup(tool)
		return cc.Answer(checks.Bool(ok))
	case checks.OpRunning:
		return running(ctx, cc)
	case checks.OpDiscovery:
		return discovery(ctx, cc, p)
	case checks.OpStatus:
		if len(p.Args) != 2 {
			return fmt.Errorf("status requires <vhost> <queue>")
		}
		return queueStatus(ctx, cc, p, p.Args[0], p.Args[1])
	default:
		return fmt.Errorf("rabbitmq: %w", checks.ErrUnsupported)
	}
}

func running(ctx context.Context, cc *checks.Context) error {
	res, err := cc.Runner.Run(ctx, tool, "status", "-q")
	if err != nil {
		return err
	}
	if !res.Available {
		return cc.Answer(checks.NotInstalled)
	}
	return cc.Answer(checks.Bool(res.ExitCode == 0))
}

// enumerate lists every queue in every vhost. Returns ok=false when the
// control tool is unavailable.
func enumerate(ctx context.Context, cc *checks.Context) (refs []queueRef, ok bool, err error) {
	res, err := cc.Runner.Run(ctx, tool, "list_vhosts", "-q")
	if err != nil || !res.Available {
		return nil, false, err
	}

	for _, vhost := range tabular.Column(res.Output) {
		res, err := cc.Runner.Run(ctx, tool, "list_queues", "-q", "-p", vhost, "name")
		if err != nil {
			return nil, false, err
		}
		if !res.Available {
			return nil, false, nil
		}
		for _, queue := range tabular.Column(res.Output) {
			refs = append(refs, queueRef{Vhost: vhost, Queue: queue})
		}
	}
	return refs, true, nil
}

// cachedEnumeration returns the queue list, from the cache when fresh,
// recomputing and rewriting the entry otherwise. cached reports whether the
// answer came from the cache rather than a live enumeration.
func cachedEnumeration(ctx context.Context, cc *checks.Context, p checks.Params) (refs []queueRef, ok, cached bool, err error) {
	payload, err := cc.Cache.Get(ctx, Namespace, p.TTL)
	if err == nil {
		var refs []queueRef
		if err := json.Unmarshal(payload, &refs); err == nil {
			slog.Debug("queue discovery served from cache", "queues", len(refs))
			return refs, true, true, nil
		}
		// Undecodable entry: fall through and recompute.
	} else if !errors.Is(err, dcache.ErrStale) {
		return nil, false, false, err
	}

	refs, ok, err = freshEnumeration(ctx, cc, p)
	return refs, ok, false, err
}

// freshEnumeration always asks the broker, rewriting the cache entry when a
// freshness window is in effect.
func freshEnumeration(ctx context.Context, cc *checks.Context, p checks.Params) ([]queueRef, bool, error) {
	refs, ok, err := enumerate(ctx, cc)
	if err != nil || !ok {
		return nil, ok, err
	}

	if p.TTL > 0 {
		payload, err := json.Marshal(refs)
		if err != nil {
			return nil, false, fmt.Errorf("encode queue enumeration: %w", err)
		}
		if err := cc.Cache.Put(ctx, Namespace, payload); err != nil {
			return nil, false, err
		}
	}
	return refs, true, nil
}

func discovery(ctx context.Context, cc *checks.Context, p checks.Params) error {
	var re *regexp.Regexp
	if p.Filter != "" {
		var err error
		if re, err = regexp.Compile(p.Filter); err != nil {
			return fmt.Errorf("compile queue filter: %w", err)
		}
	}

	refs, ok, _, err := cachedEnumeration(ctx, cc, p)
	if err != nil {
		return err
	}

	doc := &lld.Document{}
	if ok {
		for _, ref := range refs {
			if re != nil && !re.MatchString(ref.Queue) {
				continue
			}
			doc.Append(lld.Item{
				{Key: "VHOST", Value: ref.Vhost},
				{Key: "QUEUE", Value: ref.Queue},
			})
		}
	} else {
		slog.Debug("rabbitmqctl not available, reporting empty discovery")
	}

	out, err := doc.Render()
	if err != nil {
		return err
	}
	return cc.Answer(string(out))
}

func containsQueue(refs []queueRef, vhost, queue string) bool {
	for _, ref := range refs {
		if ref.Vhost == vhost && ref.Queue == queue {
			return true
		}
	}
	return false
}

// queueDepth is one row of `list_queues --formatter json`.
type queueDepth struct {
	Name     string `json:"name"`
	Messages int64  `json:"messages"`
}

func queueStatus(ctx context.Context, cc *checks.Context, p checks.Params, vhost, queue string) error {
	refs, ok, cached, err := cachedEnumeration(ctx, cc, p)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("queue %s/%s: %w", vhost, queue, checks.ErrNotFound)
	}

	if !containsQueue(refs, vhost, queue) && cached {
		// The queue may have been created after the cached enumeration;
		// recompute (refreshing the cache) before declaring it missing.
		refs, ok, err = freshEnumeration(ctx, cc, p)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("queue %s/%s: %w", vhost, queue, checks.ErrNotFound)
		}
	}
	if !containsQueue(refs, vhost, queue) {
		return fmt.Errorf("queue %s/%s: %w", vhost, queue, checks.ErrNotFound)
	}

	res, err := cc.Runner.Run(ctx, tool, "list_queues", "-q", "-p", vhost, "name", "messages", "--formatter", "json")
	if err != nil {
		return err
	}
	if !res.Available {
		return fmt.Errorf("queue %s/%s: %w", vhost, queue, checks.ErrNotFound)
	}

	var depths []queueDepth
	if err := tabular.DecodeJSON(res.Output, &depths); err != nil {
		return err
	}
	for _, d := range depths {
		if d.Name == queue {
			return cc.Answer(strconv.FormatInt(d.Messages, 10))
		}
	}
	return fmt.Errorf("queue %s/%s: %w", vhost, queue, checks.ErrNotFound)
}
