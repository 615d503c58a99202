package daemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/krishhrana/whatsapp-mcp/internal/bus"
	"github.com/krishhrana/whatsapp-mcp/internal/config"
	"github.com/krishhrana/whatsapp-mcp/internal/delivery"
	"github.com/krishhrana/whatsapp-mcp/internal/lock"
	"github.com/krishhrana/whatsapp-mcp/internal/mcpserver"
	"github.com/krishhrana/whatsapp-mcp/internal/probe"
	"github.com/krishhrana/whatsapp-mcp/internal/query"
	"github.com/krishhrana/whatsapp-mcp/internal/status"
	"github.com/krishhrana/whatsapp-mcp/internal/store"
	"github.com/krishhrana/whatsapp-mcp/internal/store/storetest"
)

// shortDir avoids the 104-char Unix socket limit on macOS.
func shortDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "wppmcp-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func waitHealth(t *testing.T, socket string, want healthpb.HealthCheckResponse_ServingStatus) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	var last string
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		resp, err := Check(ctx, socket)
		cancel()
		if err == nil && resp.Status == want {
			return
		}
		if err != nil {
			last = err.Error()
		} else {
			last = resp.Status.String()
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("health never reached %s, last: %s", want, last)
}

func TestHealthFollowsProbe(t *testing.T) {
	dir := shortDir(t)
	socket := filepath.Join(dir, "h.sock")
	logger := zap.NewNop()

	db := storetest.New(t)
	b := bus.New()
	machine := status.NewMachine(b)

	hs, err := NewHealthServer(socket, logger)
	if err != nil {
		t.Fatal(err)
	}
	hs.Follow(b, machine)
	go func() { _ = hs.Start() }()
	defer hs.Stop(context.Background())

	waitHealth(t, socket, healthpb.HealthCheckResponse_NOT_SERVING)

	p := probe.New(db, machine, b, time.Hour, logger)
	p.Check(context.Background())
	waitHealth(t, socket, healthpb.HealthCheckResponse_SERVING)

	_ = db.Close()
	p.Check(context.Background())
	waitHealth(t, socket, healthpb.HealthCheckResponse_NOT_SERVING)
	if machine.Current() != status.Degraded {
		t.Errorf("state = %s, want DEGRADED", machine.Current())
	}
}

func waitChecks(t *testing.T, c *CheckLog, wantFailures int) probe.Result {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if res, failures, ok := c.Last(); ok && failures == wantFailures {
			return res
		}
		time.Sleep(10 * time.Millisecond)
	}
	_, failures, ok := c.Last()
	t.Fatalf("failures = %d (seen %v), want %d", failures, ok, wantFailures)
	return probe.Result{}
}

func TestCheckLogFollowsResults(t *testing.T) {
	db := storetest.New(t)
	b := bus.New()
	machine := status.NewMachine(b)
	checks := FollowChecks(b, zap.NewNop())
	defer checks.Stop()

	if _, _, ok := checks.Last(); ok {
		t.Fatal("result before any check")
	}

	p := probe.New(db, machine, b, time.Hour, zap.NewNop())
	p.Check(context.Background())
	if res := waitChecks(t, checks, 0); res.Err != nil {
		t.Fatalf("first check: %v", res.Err)
	}

	_ = db.Close()
	p.Check(context.Background())
	waitChecks(t, checks, 1)
	p.Check(context.Background())
	if res := waitChecks(t, checks, 2); res.Err == nil {
		t.Fatal("closed archive reported healthy")
	}
}

func TestCheckWithoutDaemon(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if _, err := Check(ctx, filepath.Join(shortDir(t), "none.sock")); err == nil {
		t.Fatal("Check() against a missing socket should fail")
	}
}

// headerTransport adds an Authorization header to every request.
type headerTransport struct {
	auth string
}

func (h headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("Authorization", h.auth)
	return http.DefaultTransport.RoundTrip(r)
}

func TestHTTPTransportForwardsAuthorization(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	bridge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("Authorization"))
		mu.Unlock()
		_, _ = w.Write([]byte(`{"success":true,"message":"Message sent"}`))
	}))
	defer bridge.Close()

	db := storetest.New(t)
	logger := zap.NewNop()
	srv := mcpserver.New(query.New(db, logger), delivery.New(bridge.URL, time.Second, logger),
		mcpserver.WithBridgeToken("fallback"))

	cfg := config.Default()
	cfg.Transport = config.TransportHTTP
	cfg.HTTPAddr = "127.0.0.1:0"
	tr := NewTransport(cfg, srv, logger, nil)
	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = tr.Stop(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client := gomcp.NewClient(&gomcp.Implementation{Name: "test", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, &gomcp.StreamableClientTransport{
		Endpoint:   "http://" + tr.Addr() + cfg.HTTPPath,
		HTTPClient: &http.Client{Transport: headerTransport{auth: "Bearer from-client"}},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = cs.Close() }()

	res, err := cs.CallTool(ctx, &gomcp.CallToolParams{
		Name:      "send_message",
		Arguments: map[string]any{"recipient": "123", "message": "hi"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool error: %+v", res.Content)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != "Bearer from-client" {
		t.Errorf("bridge saw %v, want the client's header", seen)
	}
}

func TestUnknownTransport(t *testing.T) {
	cfg := config.Default()
	cfg.Transport = "sse"
	tr := NewTransport(cfg, nil, zap.NewNop(), nil)
	if err := tr.Start(); err == nil {
		t.Fatal("Start() should reject an unknown transport")
	}
}

// testConfig points every path into a temp dir and provisions an archive.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := shortDir(t)
	storePath := filepath.Join(dir, "messages.db")
	db, err := store.Open(storePath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	cfg := config.Default()
	cfg.StoreLocation = storePath
	cfg.Transport = config.TransportHTTP
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.LogPath = ""
	cfg.HealthSocket = filepath.Join(dir, "run", "h.sock")
	cfg.ProbeInterval = config.Duration{Duration: 50 * time.Millisecond}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestModuleGraph(t *testing.T) {
	if err := fx.ValidateApp(Module(Params{Config: config.Default()}), fx.NopLogger); err != nil {
		t.Fatalf("ValidateApp() error = %v", err)
	}
}

func TestDaemonLifecycle(t *testing.T) {
	cfg := testConfig(t)

	app := fxtest.New(t, Module(Params{Config: cfg, Version: "test"}), fx.NopLogger)
	app.RequireStart()

	waitHealth(t, cfg.HealthSocket, healthpb.HealthCheckResponse_SERVING)

	// A second daemon on the same runtime dir must not start.
	second := fx.New(Module(Params{Config: cfg}), fx.NopLogger)
	if err := second.Err(); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Errorf("second daemon error = %v, want lock held", err)
	}

	app.RequireStop()

	if _, err := os.Stat(cfg.HealthSocket); !os.IsNotExist(err) {
		t.Errorf("socket not removed: %v", err)
	}
	if _, err := lock.Holder(filepath.Dir(cfg.HealthSocket)); !os.IsNotExist(err) {
		t.Errorf("lock not released: %v", err)
	}
}
