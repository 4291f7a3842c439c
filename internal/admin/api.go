// Package admin implements the AdminAPI: an HTTP control surface over the
// Engine and ConfigStore. It never installs an OS signal handler itself —
// that is the launcher's responsibility.
package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ait-detectmate/detectmate-go/pkg/metrics"
	mw "github.com/ait-detectmate/detectmate-go/pkg/middleware"
)

// ClientError marks a Controller error as the caller's fault — malformed or
// invalid input — so it surfaces as a 4xx response. Any other error a
// Controller method returns is treated as an internal failure and surfaces
// as 5xx: the source's distinction between a rejected request and a broken
// component (e.g. a socket bind failure on Start).
type ClientError struct {
	Err error
}

func (e *ClientError) Error() string { return e.Err.Error() }
func (e *ClientError) Unwrap() error { return e.Err }

// httpMetricsOnce guards construction of the process-wide HTTP metrics
// collectors: promauto (pkg/metrics's registration idiom) panics on a
// duplicate name, so every API instance in a process shares one
// MetricsManager rather than each registering its own.
var (
	httpMetricsOnce sync.Once
	httpMetrics     *metrics.MetricsManager
)

func sharedHTTPMetrics() *metrics.MetricsManager {
	httpMetricsOnce.Do(func() {
		httpMetrics = metrics.NewMetricsManager(metrics.DefaultConfig())
	})
	return httpMetrics
}

// RunState is the {component_type, component_id, running} triple nested
// under "status" in the admin status report.
type RunState struct {
	ComponentType string `json:"component_type"`
	ComponentID   string `json:"component_id"`
	Running       bool   `json:"running"`
}

// StatusReport carries the source's _create_status_report keys (status,
// settings, configs) so existing client tooling's field names keep working.
// The configs key is left out of the JSON when there is no config tree (nil
// or empty); it is not emitted as {}.
type StatusReport struct {
	Status   RunState       `json:"status"`
	Settings map[string]any `json:"settings"`
	Configs  map[string]any `json:"configs,omitempty"`
}

// Controller is everything AdminAPI needs from the composition root. service
// implements it; tests supply a fake.
type Controller interface {
	StartEngine() (string, error)
	StopEngine() (string, error)
	Status() StatusReport
	Reconfigure(data map[string]any, persist bool) (string, error)
	RequestShutdown() (string, error)
}

// API wires Controller behind an HTTP router.
type API struct {
	ctrl        Controller
	router      *mux.Router
	limiter     *rateLimitMiddleware
	httpMetrics *metrics.MetricsManager
}

// New builds an API. requestsPerSecond <= 0 disables rate limiting.
func New(ctrl Controller, requestsPerSecond float64, burst int) *API {
	a := &API{ctrl: ctrl}
	a.limiter = newRateLimitMiddleware(requestsPerSecond, burst)
	a.httpMetrics = sharedHTTPMetrics()

	r := mux.NewRouter()
	r.Use(mw.SecureHeaders())
	r.Use(a.limiter.middleware)
	r.Use(a.httpMetrics.Middleware)
	r.Use(loggingMiddleware)

	r.HandleFunc("/admin/start", a.handleStart).Methods(http.MethodPost)
	r.HandleFunc("/admin/stop", a.handleStop).Methods(http.MethodPost)
	r.HandleFunc("/admin/status", a.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/admin/reconfigure", a.handleReconfigure).Methods(http.MethodPost)
	r.HandleFunc("/admin/shutdown", a.handleShutdown).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	a.router = r
	return a
}

// Handler returns the HTTP handler to mount behind an *http.Server.
func (a *API) Handler() http.Handler {
	return a.router
}

func (a *API) handleStart(w http.ResponseWriter, r *http.Request) {
	msg, err := a.ctrl.StartEngine()
	writeResult(w, msg, err)
}

func (a *API) handleStop(w http.ResponseWriter, r *http.Request) {
	msg, err := a.ctrl.StopEngine()
	writeResult(w, msg, err)
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.ctrl.Status())
}

type reconfigureRequest struct {
	Config  map[string]any `json:"config"`
	Persist bool           `json:"persist"`
}

func (a *API) handleReconfigure(w http.ResponseWriter, r *http.Request) {
	var req reconfigureRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
	}
	msg, err := a.ctrl.Reconfigure(req.Config, req.Persist)
	writeResult(w, msg, err)
}

func (a *API) handleShutdown(w http.ResponseWriter, r *http.Request) {
	msg, err := a.ctrl.RequestShutdown()
	writeResult(w, msg, err)
}

func writeResult(w http.ResponseWriter, msg string, err error) {
	if err != nil {
		var clientErr *ClientError
		if errors.As(err, &clientErr) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
