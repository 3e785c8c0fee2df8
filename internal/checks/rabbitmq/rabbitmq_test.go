package rabbitmq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jandubois/checks/internal/checks"
	"github.com/jandubois/checks/internal/dcache"
	"github.com/jandubois/checks/internal/runner"
)

type fakeRunner struct {
	installed bool
	outputs   map[string]string
	exits     map[string]int
	calls     []string
}

func (f *fakeRunner) Lookup(tool string) (string, bool) {
	if !f.installed {
		return "", false
	}
	return "/usr/sbin/" + tool, true
}

func (f *fakeRunner) Run(_ context.Context, tool string, args ...string) (runner.Result, error) {
	key := strings.Join(append([]string{tool}, args...), " ")
	f.calls = append(f.calls, key)
	if !f.installed {
		return runner.Result{}, nil
	}
	out, ok := f.outputs[key]
	if !ok {
		return runner.Result{Available: true, ExitCode: 1}, nil
	}
	return runner.Result{Available: true, Output: []byte(out), ExitCode: f.exits[key]}, nil
}

func countCalls(calls []string, key string) int {
	n := 0
	for _, c := range calls {
		if c == key {
			n++
		}
	}
	return n
}

func brokerFake() *fakeRunner {
	return &fakeRunner{
		installed: true,
		outputs: map[string]string{
			"rabbitmqctl list_vhosts -q":              "/\nprod\n",
			"rabbitmqctl list_queues -q -p / name":    "jobs\nmailer\n",
			"rabbitmqctl list_queues -q -p prod name": "events\n",
			"rabbitmqctl list_queues -q -p / name messages --formatter json":    `[{"name":"jobs","messages":42},{"name":"mailer","messages":7}]`,
			"rabbitmqctl list_queues -q -p prod name messages --formatter json": `[{"name":"events","messages":0}]`,
		},
	}
}

func newTestContext(t *testing.T, r checks.CommandRunner) (*checks.Context, *bytes.Buffer, *dcache.FileStore) {
	t.Helper()
	var out bytes.Buffer
	store := dcache.NewFileStore(t.TempDir())
	return &checks.Context{
		Runner: r,
		Cache:  store,
		Now:    time.Now,
		Stdout: &out,
	}, &out, store
}

func TestDiscovery(t *testing.T) {
	fake := brokerFake()
	cc, out, _ := newTestContext(t, fake)

	if err := Run(context.Background(), cc, checks.OpDiscovery, checks.Params{}); err != nil {
		t.Fatalf("discovery failed: %v", err)
	}

	var parsed struct {
		Data []map[string]string `json:"data"`
	}
	if err := json.Unmarshal(out.Bytes(), &parsed); err != nil {
		t.Fatalf("discovery output is not JSON: %v", err)
	}
	if len(parsed.Data) != 3 {
		t.Fatalf("expected 3 queues, got %d", len(parsed.Data))
	}
	if parsed.Data[0]["{#VHOST}"] != "/" || parsed.Data[0]["{#QUEUE}"] != "jobs" {
		t.Errorf("unexpected first item: %v", parsed.Data[0])
	}
}

func TestDiscoveryAbsentBroker(t *testing.T) {
	cc, out, _ := newTestContext(t, &fakeRunner{installed: false})

	if err := Run(context.Background(), cc, checks.OpDiscovery, checks.Params{}); err != nil {
		t.Fatalf("discovery failed: %v", err)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, out.Bytes()); err != nil {
		t.Fatal(err)
	}
	if compact.String() != `{"data":[]}` {
		t.Errorf("expected empty document, got %s", compact.String())
	}
}

func TestDiscoveryCachesEnumeration(t *testing.T) {
	fake := brokerFake()
	cc, out, _ := newTestContext(t, fake)
	ctx := context.Background()

	p := checks.Params{TTL: 15 * time.Minute}
	if err := Run(ctx, cc, checks.OpDiscovery, p); err != nil {
		t.Fatalf("first discovery failed: %v", err)
	}
	first := out.String()
	out.Reset()

	if err := Run(ctx, cc, checks.OpDiscovery, p); err != nil {
		t.Fatalf("second discovery failed: %v", err)
	}
	if out.String() != first {
		t.Error("cached discovery differs from computed discovery")
	}
	if n := countCalls(fake.calls, "rabbitmqctl list_vhosts -q"); n != 1 {
		t.Errorf("expected 1 enumeration, control tool invoked %d times", n)
	}
}

func TestDiscoveryZeroTTLRecomputes(t *testing.T) {
	fake := brokerFake()
	cc, _, _ := newTestContext(t, fake)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := Run(ctx, cc, checks.OpDiscovery, checks.Params{}); err != nil {
			t.Fatalf("discovery failed: %v", err)
		}
	}
	if n := countCalls(fake.calls, "rabbitmqctl list_vhosts -q"); n != 2 {
		t.Errorf("expected 2 enumerations with disabled cache, got %d", n)
	}
}

func TestQueueStatusFromCache(t *testing.T) {
	fake := brokerFake()
	cc, out, _ := newTestContext(t, fake)
	ctx := context.Background()

	p := checks.Params{TTL: 15 * time.Minute}
	if err := Run(ctx, cc, checks.OpDiscovery, p); err != nil {
		t.Fatalf("discovery failed: %v", err)
	}
	out.Reset()

	p.Args = []string{"/", "jobs"}
	if err := Run(ctx, cc, checks.OpStatus, p); err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if strings.TrimSpace(out.String()) != "42" {
		t.Errorf("status = %q, want 42", out.String())
	}
	// The enumeration came from the cache, not a second list_vhosts.
	if n := countCalls(fake.calls, "rabbitmqctl list_vhosts -q"); n != 1 {
		t.Errorf("expected cached enumeration, list_vhosts called %d times", n)
	}
}

func TestQueueStatusExpiredCacheRecomputes(t *testing.T) {
	fake := brokerFake()
	cc, out, store := newTestContext(t, fake)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return now }

	p := checks.Params{TTL: time.Minute}
	if err := Run(ctx, cc, checks.OpDiscovery, p); err != nil {
		t.Fatalf("discovery failed: %v", err)
	}
	out.Reset()

	now = now.Add(5 * time.Minute)

	p.Args = []string{"prod", "events"}
	if err := Run(ctx, cc, checks.OpStatus, p); err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if strings.TrimSpace(out.String()) != "0" {
		t.Errorf("status = %q, want 0", out.String())
	}
	if n := countCalls(fake.calls, "rabbitmqctl list_vhosts -q"); n != 2 {
		t.Errorf("expected recomputation after expiry, list_vhosts called %d times", n)
	}
}

func TestQueueStatusMissingFromFreshCacheRecomputes(t *testing.T) {
	fake := brokerFake()
	fake.outputs["rabbitmqctl list_queues -q -p prod name"] = "events\nfresh\n"
	fake.outputs["rabbitmqctl list_queues -q -p prod name messages --formatter json"] =
		`[{"name":"events","messages":0},{"name":"fresh","messages":9}]`
	cc, out, store := newTestContext(t, fake)
	ctx := context.Background()

	// A still-fresh enumeration from before the queue existed.
	seed, err := json.Marshal([]queueRef{{Vhost: "prod", Queue: "events"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, Namespace, seed); err != nil {
		t.Fatal(err)
	}

	p := checks.Params{TTL: 15 * time.Minute, Args: []string{"prod", "fresh"}}
	if err := Run(ctx, cc, checks.OpStatus, p); err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "9" {
		t.Errorf("status = %q, want 9", got)
	}
	if n := countCalls(fake.calls, "rabbitmqctl list_vhosts -q"); n != 1 {
		t.Errorf("expected one recomputation on cache miss, list_vhosts called %d times", n)
	}

	// The recomputation superseded the stale entry.
	payload, err := store.Get(ctx, Namespace, time.Hour)
	if err != nil {
		t.Fatalf("cache read failed: %v", err)
	}
	if !strings.Contains(string(payload), `"fresh"`) {
		t.Errorf("cache entry not refreshed: %s", payload)
	}
}

func TestQueueStatusNotFoundRecomputesOnce(t *testing.T) {
	fake := brokerFake()
	cc, _, store := newTestContext(t, fake)
	ctx := context.Background()

	seed, err := json.Marshal([]queueRef{{Vhost: "/", Queue: "jobs"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, Namespace, seed); err != nil {
		t.Fatal(err)
	}

	p := checks.Params{TTL: 15 * time.Minute, Args: []string{"/", "ghost"}}
	if err := Run(ctx, cc, checks.OpStatus, p); !errors.Is(err, checks.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	// The broker was consulted before failing, but only once.
	if n := countCalls(fake.calls, "rabbitmqctl list_vhosts -q"); n != 1 {
		t.Errorf("expected exactly one recomputation, list_vhosts called %d times", n)
	}
}

func TestQueueStatusNotFound(t *testing.T) {
	fake := brokerFake()
	cc, _, _ := newTestContext(t, fake)

	err := Run(context.Background(), cc, checks.OpStatus, checks.Params{Args: []string{"/", "ghost"}})
	if !errors.Is(err, checks.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestQueueStatusMalformedJSONIsHardError(t *testing.T) {
	fake := brokerFake()
	fake.outputs["rabbitmqctl list_queues -q -p / name messages --formatter json"] = "Listing queues ..."
	cc, out, _ := newTestContext(t, fake)

	err := Run(context.Background(), cc, checks.OpStatus, checks.Params{Args: []string{"/", "jobs"}})
	if err == nil {
		t.Fatal("expected hard error for malformed JSON")
	}
	if out.Len() != 0 {
		t.Errorf("no answer must be printed on parse failure, got %q", out.String())
	}
}

func TestDiscoveryFilter(t *testing.T) {
	fake := brokerFake()
	cc, out, _ := newTestContext(t, fake)

	if err := Run(context.Background(), cc, checks.OpDiscovery, checks.Params{Filter: "^jobs$"}); err != nil {
		t.Fatalf("discovery failed: %v", err)
	}

	var parsed struct {
		Data []map[string]string `json:"data"`
	}
	if err := json.Unmarshal(out.Bytes(), &parsed); err != nil {
		t.Fatal(err)
	}
	if len(parsed.Data) != 1 || parsed.Data[0]["{#QUEUE}"] != "jobs" {
		t.Errorf("filter not applied: %v", parsed.Data)
	}
}

func TestQueueNameEscaping(t *testing.T) {
	fake := brokerFake()
	// A queue name with a reserved character.
	fake.outputs["rabbitmqctl list_queues -q -p prod name"] = "audit;log\n"
	cc, out, _ := newTestContext(t, fake)

	if err := Run(context.Background(), cc, checks.OpDiscovery, checks.Params{}); err != nil {
		t.Fatalf("discovery failed: %v", err)
	}
	if !strings.Contains(out.String(), "audit%3Blog") {
		t.Errorf("queue name not escaped:\n%s", out.String())
	}
}
