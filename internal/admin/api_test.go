package admin

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeController struct {
	startMsg      string
	startErr      error
	stopMsg       string
	stopErr       error
	status        StatusReport
	reconfigMsg   string
	reconfigErr   error
	lastReconfig  map[string]any
	lastPersist   bool
	shutdownMsg   string
	shutdownErr   error
}

func (f *fakeController) StartEngine() (string, error) { return f.startMsg, f.startErr }
func (f *fakeController) StopEngine() (string, error)  { return f.stopMsg, f.stopErr }
func (f *fakeController) Status() StatusReport         { return f.status }
func (f *fakeController) Reconfigure(data map[string]any, persist bool) (string, error) {
	f.lastReconfig = data
	f.lastPersist = persist
	return f.reconfigMsg, f.reconfigErr
}
func (f *fakeController) RequestShutdown() (string, error) { return f.shutdownMsg, f.shutdownErr }

func TestAPI_StartReturnsControllerMessage(t *testing.T) {
	ctrl := &fakeController{startMsg: "engine started"}
	api := New(ctrl, 0, 0)

	req := httptest.NewRequest(http.MethodPost, "/admin/start", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["message"] != "engine started" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestAPI_StartInternalErrorReturnsInternalServerError(t *testing.T) {
	ctrl := &fakeController{startErr: errors.New("binding input socket: address in use")}
	api := New(ctrl, 0, 0)

	req := httptest.NewRequest(http.MethodPost, "/admin/start", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestAPI_ReconfigureClientErrorReturnsBadRequest(t *testing.T) {
	ctrl := &fakeController{reconfigErr: &ClientError{Err: errors.New("threshold must be a number")}}
	api := New(ctrl, 0, 0)

	body, _ := json.Marshal(map[string]any{"config": map[string]any{"threshold": "nope"}})
	req := httptest.NewRequest(http.MethodPost, "/admin/reconfigure", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAPI_Status(t *testing.T) {
	ctrl := &fakeController{status: StatusReport{
		Status:   RunState{ComponentType: "detector", ComponentID: "abc-123", Running: true},
		Settings: map[string]any{"component_type": "detector"},
		Configs:  map[string]any{"threshold": 5},
	}}
	api := New(ctrl, 0, 0)

	req := httptest.NewRequest(http.MethodGet, "/admin/status", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got StatusReport
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if !got.Status.Running || got.Status.ComponentType != "detector" {
		t.Fatalf("unexpected status: %+v", got)
	}
}

func TestAPI_ReconfigurePassesBodyThrough(t *testing.T) {
	ctrl := &fakeController{reconfigMsg: "reconfigured"}
	api := New(ctrl, 0, 0)

	body, _ := json.Marshal(map[string]any{
		"config":  map[string]any{"threshold": 9},
		"persist": true,
	})
	req := httptest.NewRequest(http.MethodPost, "/admin/reconfigure", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !ctrl.lastPersist {
		t.Fatal("expected persist=true to reach the controller")
	}
	if ctrl.lastReconfig["threshold"] != float64(9) {
		t.Fatalf("unexpected config payload: %v", ctrl.lastReconfig)
	}
}

func TestAPI_ReconfigureEmptyBodyIsNoOp(t *testing.T) {
	ctrl := &fakeController{reconfigMsg: "reconfigure: no-op (empty config data)"}
	api := New(ctrl, 0, 0)

	req := httptest.NewRequest(http.MethodPost, "/admin/reconfigure", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var respBody map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &respBody); err != nil {
		t.Fatal(err)
	}
	if respBody["message"] != "reconfigure: no-op (empty config data)" {
		t.Fatalf("unexpected message: %v", respBody)
	}
}

func TestAPI_RateLimitRejectsBurstOverflow(t *testing.T) {
	ctrl := &fakeController{startMsg: "engine started"}
	api := New(ctrl, 1, 1)

	req := httptest.NewRequest(http.MethodPost, "/admin/start", nil)

	first := httptest.NewRecorder()
	api.Handler().ServeHTTP(first, req)
	if first.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	api.Handler().ServeHTTP(second, req)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", second.Code)
	}
}

func TestAPI_MetricsEndpointServesPlaintext(t *testing.T) {
	ctrl := &fakeController{}
	api := New(ctrl, 0, 0)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("expected text/plain content type, got %q", ct)
	}
}
