package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/LayerDynamics/runtui/internal/event"
	"github.com/LayerDynamics/runtui/internal/executor"
)

func newTestRouter(t *testing.T, basePath string, withMetrics bool) (*Router, *event.Store) {
	t.Helper()
	store := event.NewStore()
	t.Cleanup(store.Close)
	exec := executor.New("/tmp/run.sh", []string{"--fast"}, executor.Options{Store: store})
	t.Cleanup(func() { _ = exec.Close() })
	return NewRouter(exec, store, basePath, withMetrics), store
}

func get(t *testing.T, srv *httptest.Server, path string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, body
}

func TestHealthz(t *testing.T) {
	r, _ := newTestRouter(t, "", false)
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	code, body := get(t, srv, "/healthz")
	if code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", code)
	}
	if string(body) != "ok" {
		t.Fatalf("healthz body = %q, want ok", body)
	}
}

func TestStatusIdleExecutor(t *testing.T) {
	r, _ := newTestRouter(t, "", false)
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	code, body := get(t, srv, "/status")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	var st statusResp
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("decode status: %v\n%s", err, body)
	}
	if st.Script != "/tmp/run.sh" {
		t.Fatalf("script = %q", st.Script)
	}
	if len(st.Args) != 1 || st.Args[0] != "--fast" {
		t.Fatalf("args = %v", st.Args)
	}
	if st.Running || st.Paused {
		t.Fatalf("idle executor reported running=%v paused=%v", st.Running, st.Paused)
	}
	if st.PID != 0 {
		t.Fatalf("pid = %d, want 0", st.PID)
	}
	if st.StartedAt != nil {
		t.Fatalf("started_at should be omitted before the first start")
	}
	if st.Counts != (event.Counts{}) {
		t.Fatalf("counts = %+v, want zero", st.Counts)
	}
}

func TestStatusReflectsStoreCounts(t *testing.T) {
	r, store := newTestRouter(t, "", false)
	store.AddOutput("hello", event.StreamStdout)
	store.AddOutput("boom", event.StreamStderr)
	store.AddCall("work", "app.py", 3, nil)
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	_, body := get(t, srv, "/status")
	var st statusResp
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Counts.Output != 2 || st.Counts.Calls != 1 {
		t.Fatalf("counts = %+v", st.Counts)
	}
}

func TestSummary(t *testing.T) {
	r, store := newTestRouter(t, "", false)
	store.AddOutput("line one", event.StreamStdout)
	store.AddOutput("Script completed successfully", event.StreamSystem)
	store.AddOutput("trailing", event.StreamStdout)
	store.AddCall("outer", "app.py", 1, nil)
	store.AddCall("inner", "app.py", 2, nil)
	store.AddReturn("inner", "3")
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	code, body := get(t, srv, "/api/summary")
	if code != http.StatusOK {
		t.Fatalf("summary status = %d, want 200", code)
	}
	var sum summaryResp
	if err := json.Unmarshal(body, &sum); err != nil {
		t.Fatalf("decode summary: %v\n%s", err, body)
	}
	if sum.Counts.Output != 3 || sum.Counts.Calls != 2 || sum.Counts.Returns != 1 {
		t.Fatalf("counts = %+v", sum.Counts)
	}
	if sum.ActiveCalls != 1 {
		t.Fatalf("active_calls = %d, want 1", sum.ActiveCalls)
	}
	if sum.LastSystem != "Script completed successfully" {
		t.Fatalf("last_system = %q", sum.LastSystem)
	}
}

func TestSummaryWithoutSystemLines(t *testing.T) {
	r, store := newTestRouter(t, "", false)
	store.AddOutput("only stdout", event.StreamStdout)
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	_, body := get(t, srv, "/api/summary")
	var sum summaryResp
	if err := json.Unmarshal(body, &sum); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if sum.LastSystem != "" {
		t.Fatalf("last_system = %q, want empty", sum.LastSystem)
	}
}

func TestMetricsEndpointToggle(t *testing.T) {
	off, _ := newTestRouter(t, "", false)
	srvOff := httptest.NewServer(off.Handler())
	defer srvOff.Close()
	if code, _ := get(t, srvOff, "/metrics"); code != http.StatusNotFound {
		t.Fatalf("metrics disabled: status = %d, want 404", code)
	}

	on, _ := newTestRouter(t, "", true)
	srvOn := httptest.NewServer(on.Handler())
	defer srvOn.Close()
	if code, _ := get(t, srvOn, "/metrics"); code != http.StatusOK {
		t.Fatalf("metrics enabled: status = %d, want 200", code)
	}
}

func TestBasePathRouting(t *testing.T) {
	r, _ := newTestRouter(t, "/dash", false)
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	if code, _ := get(t, srv, "/dash/healthz"); code != http.StatusOK {
		t.Fatalf("/dash/healthz status = %d, want 200", code)
	}
	if code, _ := get(t, srv, "/healthz"); code != http.StatusNotFound {
		t.Fatalf("bare /healthz status = %d, want 404", code)
	}
}

func TestSanitizeBase(t *testing.T) {
	cases := map[string]string{
		"":        "",
		"/":       "",
		"  /  ":   "",
		"dash":    "/dash",
		"/dash":   "/dash",
		"/dash/":  "/dash",
		"/a/b///": "/a/b",
	}
	for in, want := range cases {
		if got := sanitizeBase(in); got != want {
			t.Fatalf("sanitizeBase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewServerServes(t *testing.T) {
	store := event.NewStore()
	defer store.Close()
	exec := executor.New("/tmp/run.sh", nil, executor.Options{Store: store})
	defer func() { _ = exec.Close() }()

	srv, err := NewServer("127.0.0.1:0", "", exec, store, false)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer func() { _ = srv.Close() }()
	// The listener binds asynchronously inside ListenAndServe; exercise the
	// handler directly instead of racing it.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz via server handler = %d, want 200", rec.Code)
	}
}
