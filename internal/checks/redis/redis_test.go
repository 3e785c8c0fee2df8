package redis

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

const infoFixture = "# Server\r\nredis_version:7.2.4\r\nuptime_in_seconds:86400\r\n" +
	"# Memory\r\nused_memory:1048576\r\nused_memory_human:1.00M\r\n"

type fakeRunner struct {
	installed bool
	outputs   map[string]string
}

func (f *fakeRunner) Lookup(tool string) (string, bool) {
	if !f.installed {
		return "", false
	}
	return "/usr/bin/" + tool, true
}

func (f *fakeRunner) Run(_ context.Context, tool string, args ...string) (runner.Result, error) {
	if !f.installed {
		return runner.Result{}, nil
	}
	key := strings.Join(append([]string{tool}, args...), " ")
	out, ok := f.outputs[key]
	if !ok {
		return runner.Result{Available: true, ExitCode: 1}, nil
	}
	return runner.Result{Available: true, Output: []byte(out)}, nil
}

func newTestContext(t *testing.T, r checks.CommandRunner) (*checks.Context, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return &checks.Context{
		Runner: r,
		Cache:  dcache.NewFileStore(t.TempDir()),
		Now:    time.Now,
		Stdout: &out,
	}, &out
}

func TestRunning(t *testing.T) {
	tests := []struct {
		name      string
		installed bool
		pong      string
		expected  string
	}{
		{"answers PONG", true, "PONG\n", "1"},
		{"wrong answer", true, "LOADING\n", "0"},
		{"not installed", false, "", "2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeRunner{
				installed: tt.installed,
				outputs:   map[string]string{"redis-cli ping": tt.pong},
			}
			cc, out := newTestContext(t, fake)
			if err := Run(context.Background(), cc, checks.OpRunning, checks.Params{}); err != nil {
				t.Fatalf("running failed: %v", err)
			}
			if got := strings.TrimSpace(out.String()); got != tt.expected {
				t.Errorf("running = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestInfoField(t *testing.T) {
	fake := &fakeRunner{
		installed: true,
		outputs:   map[string]string{"redis-cli info": infoFixture},
	}
	cc, out := newTestContext(t, fake)
	ctx := context.Background()

	p := checks.Params{Metric: "metric", Args: []string{"uptime_in_seconds"}}
	if err := Run(ctx, cc, checks.OpMetric, p); err != nil {
		t.Fatalf("metric failed: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "86400" {
		t.Errorf("uptime = %q, want 86400", got)
	}
}

func TestInfoFieldHumanSizeNormalized(t *testing.T) {
	fake := &fakeRunner{
		installed: true,
		outputs:   map[string]string{"redis-cli info": infoFixture},
	}
	cc, out := newTestContext(t, fake)

	p := checks.Params{Metric: "metric", Args: []string{"used_memory_human"}}
	if err := Run(context.Background(), cc, checks.OpMetric, p); err != nil {
		t.Fatalf("metric failed: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "1048576" {
		t.Errorf("used_memory_human = %q, want 1048576", got)
	}
}

func TestInfoFieldNotFound(t *testing.T) {
	fake := &fakeRunner{
		installed: true,
		outputs:   map[string]string{"redis-cli info": infoFixture},
	}
	cc, _ := newTestContext(t, fake)

	p := checks.Params{Metric: "metric", Args: []string{"no_such_field"}}
	err := Run(context.Background(), cc, checks.OpMetric, p)
	if !errors.Is(err, checks.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestInfoParseFailure(t *testing.T) {
	fake := &fakeRunner{
		installed: true,
		outputs:   map[string]string{"redis-cli info": "ERR unknown command\n"},
	}
	cc, out := newTestContext(t, fake)

	p := checks.Params{Metric: "metric", Args: []string{"uptime_in_seconds"}}
	if err := Run(context.Background(), cc, checks.OpMetric, p); err == nil {
		t.Fatal("expected hard error for unparseable INFO output")
	}
	if out.Len() != 0 {
		t.Errorf("no answer must be printed on parse failure, got %q", out.String())
	}
}

func TestDiscoveryKeyspace(t *testing.T) {
	fake := &fakeRunner{
		installed: true,
		outputs: map[string]string{
			"redis-cli info keyspace": "# Keyspace\r\ndb0:keys=101,expires=0,avg_ttl=0\r\ndb3:keys=7,expires=1,avg_ttl=0\r\n",
		},
	}
	cc, out := newTestContext(t, fake)

	if err := Run(context.Background(), cc, checks.OpDiscovery, checks.Params{}); err != nil {
		t.Fatalf("discovery failed: %v", err)
	}

	var parsed struct {
		Data []map[string]string `json:"data"`
	}
	if err := json.Unmarshal(out.Bytes(), &parsed); err != nil {
		t.Fatal(err)
	}
	if len(parsed.Data) != 2 {
		t.Fatalf("expected 2 dbs, got %d", len(parsed.Data))
	}
	if parsed.Data[0]["{#DB}"] != "db0" || parsed.Data[1]["{#DB}"] != "db3" {
		t.Errorf("unexpected dbs: %v", parsed.Data)
	}
}

func TestDiscoveryEmptyKeyspace(t *testing.T) {
	fake := &fakeRunner{
		installed: true,
		outputs:   map[string]string{"redis-cli info keyspace": "# Keyspace\r\n"},
	}
	cc, out := newTestContext(t, fake)

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

func TestResptime(t *testing.T) {
	fake := &fakeRunner{
		installed: true,
		outputs:   map[string]string{"redis-cli ping": "PONG\n"},
	}
	cc, out := newTestContext(t, fake)

	// Deterministic clock: each reading advances 20ms.
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cc.Now = func() time.Time {
		now = now.Add(20 * time.Millisecond)
		return now
	}

	if err := Run(context.Background(), cc, checks.OpMetric, checks.Params{Metric: "resptime"}); err != nil {
		t.Fatalf("resptime failed: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "0.020" {
		t.Errorf("resptime = %q, want 0.020", got)
	}
}
