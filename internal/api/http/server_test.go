package httpapi

import (
	stdcontext "context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Paintersrp/procsup/internal/api"
	"github.com/Paintersrp/procsup/internal/metrics"
)

type testController struct{}

func (t *testController) Status(stdcontext.Context) (*api.StatusReport, error) { return nil, nil }

func (t *testController) Start(stdcontext.Context, string) (*api.ActionResult, error) {
	return nil, nil
}

func (t *testController) Stop(stdcontext.Context, string) (*api.ActionResult, error) {
	return nil, nil
}

func (t *testController) Restart(stdcontext.Context, string) (*api.ActionResult, error) {
	return nil, nil
}

func TestNewServerRejectsTypedNilController(t *testing.T) {
	var ctrl api.Controller = (*testController)(nil)
	_, err := NewServer(Config{Controller: ctrl})
	if err == nil {
		t.Fatalf("expected error when controller is typed nil")
	}
	if !strings.Contains(err.Error(), "testController") {
		t.Fatalf("expected error to describe typed nil controller, got %v", err)
	}
}

func TestNormalizeAddr(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":               defaultAddr,
		":80":            "127.0.0.1:80",
		"0.0.0.0:80":     "127.0.0.1:80",
		"[::]:80":        "127.0.0.1:80",
		"localhost:9000": "localhost:9000",
		"[::1]:443":      "[::1]:443",
	}

	for input, expected := range tests {
		input, expected := input, expected
		t.Run(fmt.Sprintf("%s->%s", input, expected), func(t *testing.T) {
			t.Parallel()
			if got := normalizeAddr(input); got != expected {
				t.Fatalf("normalizeAddr(%q)=%q, want %q", input, got, expected)
			}
		})
	}
}

func serve(t *testing.T, server *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleStatus(t *testing.T) {
	ctrl := &mockController{
		statusFn: func(stdcontext.Context) (*api.StatusReport, error) {
			return &api.StatusReport{Programs: []api.ProgramStatus{
				{Name: "web", State: "RUNNING", Uptime: 42, RestartCount: 2},
			}}, nil
		},
	}
	server := newTestServer(t, ctrl)

	rec := serve(t, server, http.MethodGet, "/api/v1/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", rec.Code)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("expected no-store cache control, got %q", cc)
	}

	var body map[string][]map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed decoding response: %v", err)
	}
	programs := body["programs"]
	if len(programs) != 1 {
		t.Fatalf("expected one program, got %v", body)
	}
	got := programs[0]
	if got["name"] != "web" || got["state"] != "RUNNING" || got["uptime"] != float64(42) || got["restart_count"] != float64(2) {
		t.Fatalf("unexpected program payload %v", got)
	}
}

func TestHandleStatusError(t *testing.T) {
	ctrl := &mockController{
		statusFn: func(stdcontext.Context) (*api.StatusReport, error) {
			return nil, errors.New("boom")
		},
	}
	server := newTestServer(t, ctrl)

	rec := serve(t, server, http.MethodGet, "/api/v1/status")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if body.Code != "internal_error" {
		t.Fatalf("expected internal_error code, got %q", body.Code)
	}
}

func TestHandleStatusMethodNotAllowed(t *testing.T) {
	server := newTestServer(t, &mockController{})

	rec := serve(t, server, http.MethodPost, "/api/v1/status")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != http.MethodGet {
		t.Fatalf("expected Allow header %q, got %q", http.MethodGet, allow)
	}
}

func TestHandleActions(t *testing.T) {
	var calls []string
	record := func(action string) func(stdcontext.Context, string) (*api.ActionResult, error) {
		return func(_ stdcontext.Context, name string) (*api.ActionResult, error) {
			calls = append(calls, action+":"+name)
			return &api.ActionResult{Result: api.ResultOK}, nil
		}
	}
	ctrl := &mockController{startFn: record("start"), stopFn: record("stop"), restartFn: record("restart")}
	server := newTestServer(t, ctrl)

	for _, action := range []string{"start", "stop", "restart"} {
		rec := serve(t, server, http.MethodPost, "/api/v1/programs/web/"+action)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", action, rec.Code)
		}
		var body api.ActionResult
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode error: %v", err)
		}
		if body.Result != "OK" {
			t.Fatalf("%s: expected OK, got %q", action, body.Result)
		}
	}
	rec := serve(t, server, http.MethodPost, "/api/v1/programs/all/restart")
	if rec.Code != http.StatusOK {
		t.Fatalf("restart all: expected 200, got %d", rec.Code)
	}

	want := []string{"start:web", "stop:web", "restart:web", "restart:all"}
	if strings.Join(calls, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected calls %v", calls)
	}
}

func TestHandleActionNotFound(t *testing.T) {
	ctrl := &mockController{
		stopFn: func(_ stdcontext.Context, name string) (*api.ActionResult, error) {
			return nil, &api.NotFoundError{Name: name}
		},
	}
	server := newTestServer(t, ctrl)

	rec := serve(t, server, http.MethodPost, "/api/v1/programs/ghost/stop")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if body.Code != "not_found" {
		t.Fatalf("expected not_found code, got %q", body.Code)
	}
	if body.Message != "Program 'ghost' not found" {
		t.Fatalf("unexpected message %q", body.Message)
	}
	details, ok := body.Details.(map[string]any)
	if !ok {
		t.Fatalf("expected map details, got %T", body.Details)
	}
	if details["program"] != "ghost" {
		t.Fatalf("expected program key in details, got %v", details)
	}
	if _, ok := details["timestamp"]; !ok {
		t.Fatalf("expected timestamp key in details")
	}
}

func TestHandleActionShuttingDown(t *testing.T) {
	ctrl := &mockController{
		startFn: func(stdcontext.Context, string) (*api.ActionResult, error) {
			return nil, api.ErrShuttingDown
		},
	}
	server := newTestServer(t, ctrl)

	rec := serve(t, server, http.MethodPost, "/api/v1/programs/web/start")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestUnknownActionAndMethod(t *testing.T) {
	server := newTestServer(t, &mockController{})

	if rec := serve(t, server, http.MethodPost, "/api/v1/programs/web/explode"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown action, got %d", rec.Code)
	}
	rec := serve(t, server, http.MethodGet, "/api/v1/programs/web/start")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET action, got %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != http.MethodPost {
		t.Fatalf("expected Allow POST, got %q", allow)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t, &mockController{})

	program := "http_metrics"
	metrics.EmitBuildInfo()
	metrics.SetProgramUp(program, true)

	rec := serve(t, server, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from metrics endpoint, got %d", rec.Code)
	}
	body := rec.Body.String()
	expected := fmt.Sprintf("procsup_program_up{program=\"%s\"} 1", program)
	if !strings.Contains(body, expected) {
		t.Fatalf("expected body to contain %q, got:\n%s", expected, body)
	}
	if !strings.Contains(body, "procsup_build_info{") {
		t.Fatalf("expected metrics output to include build info, got:\n%s", body)
	}
}

func TestClientRoundTrip(t *testing.T) {
	ctrl := &mockController{
		statusFn: func(stdcontext.Context) (*api.StatusReport, error) {
			return &api.StatusReport{Programs: []api.ProgramStatus{{Name: "web", State: "STOPPED"}}}, nil
		},
		restartFn: func(_ stdcontext.Context, name string) (*api.ActionResult, error) {
			if name != "web" {
				return nil, &api.NotFoundError{Name: name}
			}
			return &api.ActionResult{Result: api.ResultOK}, nil
		},
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server, err := NewServer(Config{Controller: ctrl, Listener: ln, ShutdownTimeout: time.Second})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ctx, cancel := stdcontext.WithCancel(stdcontext.Background())
	done := make(chan error, 1)
	go func() { done <- server.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("server run: %v", err)
		}
	})

	client := NewClient(server.Addr())
	report, err := client.Status(stdcontext.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(report.Programs) != 1 || report.Programs[0].Name != "web" {
		t.Fatalf("unexpected report %+v", report)
	}

	result, err := client.Restart(stdcontext.Background(), "web")
	if err != nil || result.Result != "OK" {
		t.Fatalf("restart: %v %+v", err, result)
	}

	_, err = client.Restart(stdcontext.Background(), "ghost")
	if !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err.Error() != "Program 'ghost' not found" {
		t.Fatalf("unexpected error text %q", err.Error())
	}
}

func TestClientServiceNotRunning(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	_, err = NewClient(addr).Status(stdcontext.Background())
	if !errors.Is(err, ErrServiceNotRunning) {
		t.Fatalf("expected ErrServiceNotRunning, got %v", err)
	}
}

type mockController struct {
	statusFn  func(stdcontext.Context) (*api.StatusReport, error)
	startFn   func(stdcontext.Context, string) (*api.ActionResult, error)
	stopFn    func(stdcontext.Context, string) (*api.ActionResult, error)
	restartFn func(stdcontext.Context, string) (*api.ActionResult, error)
}

func (m *mockController) Status(ctx stdcontext.Context) (*api.StatusReport, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx)
	}
	return &api.StatusReport{}, nil
}

func (m *mockController) Start(ctx stdcontext.Context, name string) (*api.ActionResult, error) {
	if m.startFn != nil {
		return m.startFn(ctx, name)
	}
	return nil, nil
}

func (m *mockController) Stop(ctx stdcontext.Context, name string) (*api.ActionResult, error) {
	if m.stopFn != nil {
		return m.stopFn(ctx, name)
	}
	return nil, nil
}

func (m *mockController) Restart(ctx stdcontext.Context, name string) (*api.ActionResult, error) {
	if m.restartFn != nil {
		return m.restartFn(ctx, name)
	}
	return nil, nil
}

func newTestServer(t *testing.T, ctrl api.Controller) *Server {
	t.Helper()
	server, err := NewServer(Config{Controller: ctrl})
	if err != nil {
		t.Fatalf("failed creating server: %v", err)
	}
	return server
}
