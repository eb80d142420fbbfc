package p4runtime

import (
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/newtron-network/p4rt/pkg/grpcclient"
	"github.com/newtron-network/p4rt/pkg/pipeconf"
	"github.com/newtron-network/p4rt/pkg/util"
)

const basicP4Info = `
pkg_info {
  arch: "v1model"
}
tables {
  preamble {
    id: 33554433
    name: "ingress.l2_fwd"
    alias: "l2_fwd"
  }
}
`

// fakeP4Runtime answers pipeline config RPCs from canned responses and
// counts what it receives.
type fakeP4Runtime struct {
	p4v1.UnimplementedP4RuntimeServer

	mu      sync.Mutex
	setReqs []*p4v1.SetForwardingPipelineConfigRequest
	getReqs []*p4v1.GetForwardingPipelineConfigRequest
	setErr  error
	setResp *p4v1.SetForwardingPipelineConfigResponse
	getResp *p4v1.GetForwardingPipelineConfigResponse
	getErr  error

	// blockGet makes GET wait for cancellation; entered is signalled first.
	blockGet bool
	entered  chan struct{}

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeP4Runtime) enter() func() {
	n := f.inFlight.Add(1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	return func() { f.inFlight.Add(-1) }
}

func (f *fakeP4Runtime) SetForwardingPipelineConfig(ctx context.Context, req *p4v1.SetForwardingPipelineConfigRequest) (*p4v1.SetForwardingPipelineConfigResponse, error) {
	defer f.enter()()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setReqs = append(f.setReqs, req)
	if f.setErr != nil {
		return nil, f.setErr
	}
	if f.setResp != nil {
		return f.setResp, nil
	}
	return &p4v1.SetForwardingPipelineConfigResponse{}, nil
}

func (f *fakeP4Runtime) GetForwardingPipelineConfig(ctx context.Context, req *p4v1.GetForwardingPipelineConfigRequest) (*p4v1.GetForwardingPipelineConfigResponse, error) {
	defer f.enter()()
	f.mu.Lock()
	f.getReqs = append(f.getReqs, req)
	block, resp, err := f.blockGet, f.getResp, f.getErr
	f.mu.Unlock()

	if block {
		f.entered <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		resp = &p4v1.GetForwardingPipelineConfigResponse{}
	}
	return resp, nil
}

func (f *fakeP4Runtime) calls() (set, get int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.setReqs), len(f.getReqs)
}

func (f *fakeP4Runtime) lastSet() *p4v1.SetForwardingPipelineConfigRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.setReqs) == 0 {
		return nil
	}
	return f.setReqs[len(f.setReqs)-1]
}

// echoCookie makes GET return the given cookie.
func (f *fakeP4Runtime) echoCookie(cookie uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getResp = &p4v1.GetForwardingPipelineConfigResponse{
		Config: &p4v1.ForwardingPipelineConfig{
			Cookie: &p4v1.ForwardingPipelineConfig_Cookie{Cookie: cookie},
		},
	}
}

// startServer serves fake on an in-memory listener and returns a dial
// option that reaches it.
func startServer(t *testing.T, fake *fakeP4Runtime) grpc.DialOption {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	p4v1.RegisterP4RuntimeServer(srv, fake)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
}

type errorRecorder struct {
	mu   sync.Mutex
	errs []*util.RPCError
}

func (r *errorRecorder) observe(err *util.RPCError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *errorRecorder) all() []*util.RPCError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*util.RPCError(nil), r.errs...)
}

type harness struct {
	client *Client
	fake   *fakeP4Runtime
	errs   *errorRecorder
	conn   *grpc.ClientConn
}

// newHarness connects a client to a fake server. With connect set it waits
// until the session is open.
func newHarness(t *testing.T, connect bool) *harness {
	t.Helper()
	fake := &fakeP4Runtime{entered: make(chan struct{}, 1)}
	dialer := startServer(t, fake)

	conn, err := grpc.NewClient("passthrough:///bufnet", dialer,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient() error = %v", err)
	}

	errs := &errorRecorder{}
	c := NewClient("device:leaf1", conn, Options{
		P4DeviceID: 1,
		OnError:    errs.observe,
		Exec:       grpcclient.Config{LockTimeout: 5 * time.Second},
	})
	t.Cleanup(func() {
		<-c.Shutdown()
		conn.Close()
		c.StopWatching()
	})

	if connect {
		conn.Connect()
		waitFor(t, "session open", c.IsSessionOpen)
	}
	return &harness{client: c, fake: fake, errs: errs, conn: conn}
}

func testPipeconf(fingerprint uint64) *pipeconf.Artifact {
	return pipeconf.NewArtifact("basic", []byte(basicP4Info), pipeconf.FormatText, []byte{0x01, 0x02}, fingerprint)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func get[T any](t *testing.T, f *grpcclient.Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := f.Get(ctx)
	if err == context.DeadlineExceeded {
		t.Fatal("future did not resolve")
	}
	return v, err
}

// captureLogs silences the global logger and records its entries until the
// test ends.
func captureLogs(t *testing.T) *logtest.Hook {
	t.Helper()
	out, level := util.Logger.Out, util.Logger.GetLevel()
	hooks := util.Logger.ReplaceHooks(make(logrus.LevelHooks))
	util.SetLogOutput(io.Discard)
	t.Cleanup(func() {
		util.Logger.ReplaceHooks(hooks)
		util.SetLogOutput(out)
		util.Logger.SetLevel(level)
	})
	return logtest.NewLocal(util.Logger)
}

// countLogs returns how many recorded entries at level contain substr.
func countLogs(hook *logtest.Hook, level logrus.Level, substr string) int {
	n := 0
	for _, e := range hook.AllEntries() {
		if e.Level == level && strings.Contains(e.Message, substr) {
			n++
		}
	}
	return n
}
