package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/seawingai/ai-marketing-agent/internal/agent"
	"github.com/seawingai/ai-marketing-agent/internal/dispatch"
	"github.com/seawingai/ai-marketing-agent/internal/eventbus"
	"github.com/seawingai/ai-marketing-agent/internal/storage"
	logx "github.com/seawingai/ai-marketing-agent/pkg/logx"
)

type fakePublisher struct{ kind string }

func (f *fakePublisher) Kind() string { return f.kind }

func (f *fakePublisher) Publish(_ context.Context, payload dispatch.PublishPayload) (*dispatch.PublishOutcome, error) {
	return &dispatch.PublishOutcome{Success: true, PostID: "post-1", Target: f.kind}, nil
}

func (f *fakePublisher) CheckPayload(dispatch.PublishPayload) []string { return nil }

type fakeFactory struct{}

func (fakeFactory) Build(name string, cfg dispatch.TargetConfig, _ logx.Logger) (dispatch.Publisher, error) {
	return &fakePublisher{kind: cfg.Kind}, nil
}

func (fakeFactory) Kinds() []string { return []string{"mock"} }

type fakeGenerator struct{}

func (fakeGenerator) Name() string { return "mock-llm" }

func (fakeGenerator) Generate(_ context.Context, req dispatch.GenerationRequest) (*dispatch.GenerationResult, error) {
	return &dispatch.GenerationResult{Text: "generated: " + req.Prompt, Model: "mock-1"}, nil
}

type testEnv struct {
	srv   *Server
	store storage.Store
}

func newTestEnv(t *testing.T, withLLM bool) *testEnv {
	t.Helper()
	reg := dispatch.NewRegistry(fakeFactory{}, map[string]dispatch.TargetConfig{
		"main": {Kind: "mock"},
	}, logx.Nop())

	opt := agent.Options{Registry: reg, Bus: eventbus.New(), Log: logx.Nop()}
	if withLLM {
		opt.Primary = fakeGenerator{}
	}
	ag := agent.New(opt)

	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "store")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return &testEnv{
		srv:   New(Config{HistoryLimit: 10}, ag, nil, st, nil, logx.Nop()),
		store: st,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	e.srv.srv.Handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)
	w := env.do(t, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Status  string `json:"status"`
		Targets int    `json:"targets"`
	}
	decodeBody(t, w, &body)
	if body.Status != "ok" || body.Targets != 1 {
		t.Fatalf("body = %+v", body)
	}
}

func TestPublishSuccessAndHistory(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)
	w := env.do(t, http.MethodPost, "/publish", `{"content": "hello world"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	var res dispatch.FanOutResult
	decodeBody(t, w, &res)
	if !res.Success || len(res.Succeeded) != 1 || res.Succeeded[0] != "main" {
		t.Fatalf("result = %+v", res)
	}

	recs, err := env.store.ListHistory(context.Background(), 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(recs) != 1 || recs[0].Content != "hello world" {
		t.Fatalf("history = %+v", recs)
	}
}

func TestPublishInvalidPayload(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)
	w := env.do(t, http.MethodPost, "/publish", `{"content": ""}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
}

func TestPublishRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)
	w := env.do(t, http.MethodPost, "/publish", `{"content": "hi", "bogus": 1}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestPublishToTarget(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)

	w := env.do(t, http.MethodPost, "/publish/main", `{"content": "hi"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	var out dispatch.PublishOutcome
	decodeBody(t, w, &out)
	if !out.Success || out.PostID != "post-1" {
		t.Fatalf("outcome = %+v", out)
	}

	w = env.do(t, http.MethodPost, "/publish/nope", `{"content": "hi"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown target status = %d", w.Code)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)
	w := env.do(t, http.MethodPost, "/validate", `{"content": ""}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var res dispatch.ValidationResult
	decodeBody(t, w, &res)
	if res.Valid || len(res.Errors) == 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestGenerate(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, true)
	w := env.do(t, http.MethodPost, "/generate", `{"prompt": "write a post"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	var res dispatch.GenerationResult
	decodeBody(t, w, &res)
	if res.Text != "generated: write a post" || res.Model != "mock-1" {
		t.Fatalf("result = %+v", res)
	}
}

func TestGenerateRequiresPrompt(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, true)
	w := env.do(t, http.MethodPost, "/generate", `{"prompt": ""}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestGenerateWithoutProvider(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)
	w := env.do(t, http.MethodPost, "/generate", `{"prompt": "hi"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
}

func TestTargetLifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)

	w := env.do(t, http.MethodPut, "/targets/extra", `{"kind": "mock", "credentials": {"k": "v"}, "timeout": "5s"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("register status = %d body = %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/targets", "")
	var list struct {
		Targets []string `json:"targets"`
	}
	decodeBody(t, w, &list)
	if len(list.Targets) != 2 {
		t.Fatalf("targets = %v", list.Targets)
	}

	w = env.do(t, http.MethodDelete, "/targets/extra", "")
	if w.Code != http.StatusOK {
		t.Fatalf("unregister status = %d", w.Code)
	}
	w = env.do(t, http.MethodDelete, "/targets/extra", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("second unregister status = %d", w.Code)
	}
}

func TestRegisterTargetBadDuration(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)
	w := env.do(t, http.MethodPut, "/targets/extra", `{"kind": "mock", "timeout": "soon"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestListKinds(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)
	w := env.do(t, http.MethodGet, "/targets/kinds", "")
	var body struct {
		Kinds []string `json:"kinds"`
	}
	decodeBody(t, w, &body)
	if len(body.Kinds) != 1 || body.Kinds[0] != "mock" {
		t.Fatalf("kinds = %v", body.Kinds)
	}
}

func TestSchedulesDisabled(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)
	for _, req := range []struct{ method, path string }{
		{http.MethodGet, "/schedules"},
		{http.MethodPost, "/schedules"},
		{http.MethodDelete, "/schedules/x"},
	} {
		w := env.do(t, req.method, req.path, "")
		if w.Code != http.StatusNotImplemented {
			t.Fatalf("%s %s status = %d", req.method, req.path, w.Code)
		}
	}
}

func TestHistoryEndpoint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)
	env.do(t, http.MethodPost, "/publish", `{"content": "first"}`)

	w := env.do(t, http.MethodGet, "/history", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		History []storage.PublishRecord `json:"history"`
	}
	decodeBody(t, w, &body)
	if len(body.History) != 1 || body.History[0].Content != "first" {
		t.Fatalf("history = %+v", body.History)
	}
}
