// Package service is the composition root: it builds every other package's
// instance in dependency order, exposes the admin.Controller
// surface, and owns the process's single exit latch.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ait-detectmate/detectmate-go/internal/admin"
	"github.com/ait-detectmate/detectmate-go/internal/configstore"
	"github.com/ait-detectmate/detectmate-go/internal/engine"
	"github.com/ait-detectmate/detectmate-go/internal/identity"
	"github.com/ait-detectmate/detectmate-go/internal/plugin"
	_ "github.com/ait-detectmate/detectmate-go/internal/plugin/builtin"
	"github.com/ait-detectmate/detectmate-go/internal/settings"
	"github.com/ait-detectmate/detectmate-go/internal/transport"
	"github.com/ait-detectmate/detectmate-go/pkg/logger"
)

// exitLatch is a one-shot, multi-reader synchronization primitive: any
// number of goroutines may wait on Done, exactly one trigger takes effect.
type exitLatch struct {
	once sync.Once
	ch   chan struct{}
}

func newExitLatch() *exitLatch {
	return &exitLatch{ch: make(chan struct{})}
}

func (l *exitLatch) trigger() {
	l.once.Do(func() { close(l.ch) })
}

func (l *exitLatch) Done() <-chan struct{} {
	return l.ch
}

// Service is the running process: Settings, identity, logger, transport
// factory, plugin resolver/loader, the Engine, its ConfigStore, and the
// AdminAPI, wired together and ready to Run.
type Service struct {
	settings settings.Settings
	id       identity.Identity
	logger   *slog.Logger
	logFile  *lumberjack.Logger

	factory      *transport.Factory
	resolver     *plugin.Resolver
	loader       *plugin.Loader
	configStore  *configstore.ConfigStore
	metrics      *engine.Metrics
	eng          *engine.Engine
	adminAPI     *admin.API

	exit *exitLatch
}

// New builds a Service:
//  1. load Settings
//  2. apply a --config override, if one was given, in place of config_file
//  3. derive ComponentIdentity
//  4. build a logger bound to {component_type, component_id}
//  5. build the transport Factory
//  6. resolve the configured Processor
//  7. build and load the ConfigStore, if config_file is set
//  8. load the Processor with the initial config
//  9. build the Engine and its metrics
//  10. build the AdminAPI
//
// configOverride, when non-empty, replaces Settings.ConfigFile — the
// launcher's --config flag takes precedence over whatever the settings file
// itself names.
func New(settingsPath string, configOverride string) (*Service, error) {
	s, err := settings.Load(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("service: loading settings: %w", err)
	}
	if configOverride != "" {
		s.ConfigFile = configOverride
	}

	id := identity.Derive(s.ComponentType, s.ComponentID, s.ComponentName, s.EngineAddr, s.OutAddr)

	logger, logFile := buildLogger(s, id)

	factory := transport.New()

	resolver, err := plugin.NewResolver(64)
	if err != nil {
		return nil, fmt.Errorf("service: building resolver: %w", err)
	}
	loader := plugin.NewLoader()

	resolved, err := resolver.Resolve(s.Processor)
	if err != nil {
		return nil, fmt.Errorf("service: resolving processor %q: %w", s.Processor, err)
	}

	// resolved.ConfigPath names a companion schema the store could validate
	// against once a per-processor schema registry is wired in; until then
	// every processor shares the open default schema (see DESIGN.md).
	// A ConfigStore is only built when Settings.ConfigFile is actually set;
	// a component with no config file runs with an empty initial config and
	// reconfigure reports "no config manager configured".
	var store *configstore.ConfigStore
	var initialConfig map[string]any
	if s.ConfigFile != "" {
		store = configstore.New(s.ConfigFile, configstore.Default(), logger)
		if err := store.Load(); err != nil {
			return nil, fmt.Errorf("service: loading config store: %w", err)
		}
		initialConfig = store.Get()
	}

	proc, err := loader.Load(resolved.ProcessorPath, initialConfig)
	if err != nil {
		return nil, fmt.Errorf("service: loading processor %q: %w", resolved.ProcessorPath, err)
	}

	metrics := engine.NewMetrics(nil)
	eng := engine.New(id, factory, logger, proc, metrics, s.EngineAddr, s.OutAddr, s.EngineRecvTimeout)

	svc := &Service{
		settings:    s,
		id:          id,
		logger:      logger,
		logFile:     logFile,
		factory:     factory,
		resolver:    resolver,
		loader:      loader,
		configStore: store,
		metrics:     metrics,
		eng:         eng,
		exit:        newExitLatch(),
	}

	svc.adminAPI = admin.New(svc, 0, 0)

	return svc, nil
}

// buildLogger turns Settings' log_to_console/log_to_file pair into a slog
// handler, delegating level parsing and writer construction to pkg/logger so
// the component process and the AdminAPI's own logging share one notion of
// level strings and rotation policy. Two sinks fan out through multiHandler;
// pkg/logger.NewLogger only ever targets one, so it isn't called directly
// here — its ParseLevel/SetupWriter building blocks are reused instead.
func buildLogger(s settings.Settings, id identity.Identity) (*slog.Logger, *lumberjack.Logger) {
	level := logger.ParseLevel(s.LogLevel)
	opts := &slog.HandlerOptions{Level: level, AddSource: level == slog.LevelDebug}

	var handlers []slog.Handler
	var logFile *lumberjack.Logger

	if s.LogToConsole {
		writer := logger.SetupWriter(logger.Config{Output: "stdout"})
		handlers = append(handlers, slog.NewTextHandler(writer, opts))
	}
	if s.LogToFile {
		writer := logger.SetupWriter(logger.Config{
			Output:     "file",
			Filename:   s.LogDir + "/" + id.Type + "." + id.ID + ".log",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		})
		if lj, ok := writer.(*lumberjack.Logger); ok {
			logFile = lj
		}
		handlers = append(handlers, slog.NewJSONHandler(writer, opts))
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(logger.SetupWriter(logger.Config{Output: "stdout"}), opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}

	return slog.New(handler).With("component_type", id.Type, "component_id", id.ID), logFile
}

// AdminHandler exposes the built AdminAPI's HTTP handler for the launcher to
// mount behind an *http.Server.
func (s *Service) AdminHandler() http.Handler {
	return s.adminAPI.Handler()
}

// Settings returns the loaded, immutable process settings.
func (s *Service) Settings() settings.Settings {
	return s.settings
}

// Identity returns the derived component identity.
func (s *Service) Identity() identity.Identity {
	return s.id
}

// Logger returns the root logger bound to this component's identity.
func (s *Service) Logger() *slog.Logger {
	return s.logger
}

// Run starts the engine (if autostart is configured) and blocks until
// RequestShutdown is called or ctx is cancelled, then tears everything down.
func (s *Service) Run(ctx context.Context) error {
	if s.settings.EngineAutostart {
		if _, err := s.StartEngine(); err != nil {
			_ = s.Close()
			return fmt.Errorf("service: autostart: %w", err)
		}
	}

	select {
	case <-s.exit.Done():
	case <-ctx.Done():
	}

	return s.Close()
}

// Close tears components down in reverse dependency order: engine before
// transport, logger handles last.
func (s *Service) Close() error {
	if _, err := s.eng.Stop(); err != nil {
		s.logger.Error("service: engine stop failed during shutdown", "err", err)
	}
	if s.logFile != nil {
		_ = s.logFile.Close()
	}
	return nil
}

// Process delegates to the loaded processor directly, bypassing the engine's
// socket plumbing.
func (s *Service) Process(ctx context.Context, payload []byte) ([]byte, error) {
	return s.eng.ProcessDirect(ctx, payload)
}

// --- admin.Controller implementation ---

// StartEngine implements admin.Controller.
func (s *Service) StartEngine() (string, error) {
	return s.eng.Start(context.Background())
}

// StopEngine implements admin.Controller.
func (s *Service) StopEngine() (string, error) {
	return s.eng.Stop()
}

// Status implements admin.Controller, matching the source's
// _create_status_report shape: {status, settings, configs}.
func (s *Service) Status() admin.StatusReport {
	var configs map[string]any
	if s.configStore != nil {
		configs = s.configStore.Get()
	}
	return admin.StatusReport{
		Status: admin.RunState{
			ComponentType: s.id.Type,
			ComponentID:   s.id.ID,
			Running:       s.eng.State() == engine.StateRunning,
		},
		Settings: settingsToMap(s.settings),
		Configs:  configs,
	}
}

// Reconfigure implements admin.Controller, preserving the source's exact
// no-op and absent-manager message strings.
func (s *Service) Reconfigure(data map[string]any, persist bool) (string, error) {
	if len(data) == 0 {
		return "reconfigure: no-op (empty config data)", nil
	}
	if s.configStore == nil {
		return "reconfigure: no config manager configured", nil
	}
	if err := s.configStore.Update(data); err != nil {
		return "", &admin.ClientError{Err: fmt.Errorf("service: reconfigure: %w", err)}
	}
	if persist {
		if err := s.configStore.Save(nil); err != nil {
			return "", fmt.Errorf("service: persisting reconfigure: %w", err)
		}
	}
	return "reconfigure: ok", nil
}

// RequestShutdown implements admin.Controller: it triggers the exit latch so
// Run returns, rather than calling os.Exit directly.
func (s *Service) RequestShutdown() (string, error) {
	s.exit.trigger()
	return "shutdown requested", nil
}

func settingsToMap(s settings.Settings) map[string]any {
	return map[string]any{
		"component_name":         s.ComponentName,
		"component_id":           s.ComponentID,
		"component_type":         s.ComponentType,
		"component_config_class": s.ComponentConfigClass,
		"log_dir":                s.LogDir,
		"log_level":              s.LogLevel,
		"log_to_console":         s.LogToConsole,
		"log_to_file":            s.LogToFile,
		"engine_addr":            s.EngineAddr,
		"out_addr":               s.OutAddr,
		"processor":              s.Processor,
		"http_host":              s.HTTPHost,
		"http_port":              s.HTTPPort,
		"engine_autostart":       s.EngineAutostart,
		"engine_recv_timeout":    s.EngineRecvTimeout.String(),
		"config_file":            s.ConfigFile,
	}
}

// multiHandler fans a slog record out to every wrapped handler: the Go
// substitute for attaching several logging.Handler instances to one logger.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		out[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: out}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		out[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: out}
}
