package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, dir string, body string) string {
	t.Helper()
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestNew_BuildsServiceWithDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeSettings(t, dir, "engine_addr: ipc://"+filepath.Join(dir, "engine.sock")+"\n"+
		"config_file: "+filepath.Join(dir, "config.yaml")+"\n"+
		"log_dir: "+dir+"\n"+
		"log_to_file: false\n")

	svc, err := New(path, "")
	require.NoError(t, err)
	require.Equal(t, "core", svc.Settings().ComponentType)
	require.NotEmpty(t, svc.Identity().ID)
}

func TestReconfigure_EmptyDataIsNoOp(t *testing.T) {
	dir := t.TempDir()
	path := writeSettings(t, dir, "engine_addr: ipc://"+filepath.Join(dir, "engine.sock")+"\n"+
		"config_file: "+filepath.Join(dir, "config.yaml")+"\n"+
		"log_dir: "+dir+"\n"+
		"log_to_file: false\n")

	svc, err := New(path, "")
	require.NoError(t, err)

	msg, err := svc.Reconfigure(nil, false)
	require.NoError(t, err)
	require.Equal(t, "reconfigure: no-op (empty config data)", msg)
}

func TestReconfigure_UpdatesConfigStoreAndStatusReflectsIt(t *testing.T) {
	dir := t.TempDir()
	path := writeSettings(t, dir, "engine_addr: ipc://"+filepath.Join(dir, "engine.sock")+"\n"+
		"config_file: "+filepath.Join(dir, "config.yaml")+"\n"+
		"log_dir: "+dir+"\n"+
		"log_to_file: false\n")

	svc, err := New(path, "")
	require.NoError(t, err)

	msg, err := svc.Reconfigure(map[string]any{"threshold": 9}, false)
	require.NoError(t, err)
	require.Equal(t, "reconfigure: ok", msg)

	status := svc.Status()
	require.Equal(t, 9, status.Configs["threshold"])
}

func TestReconfigure_PersistWritesToDisk(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	path := writeSettings(t, dir, "engine_addr: ipc://"+filepath.Join(dir, "engine.sock")+"\n"+
		"config_file: "+configPath+"\n"+
		"log_dir: "+dir+"\n"+
		"log_to_file: false\n")

	svc, err := New(path, "")
	require.NoError(t, err)

	_, err = svc.Reconfigure(map[string]any{"threshold": 3}, true)
	require.NoError(t, err)

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "threshold")
}

func TestNew_NoConfigFileLeavesConfigStoreUnset(t *testing.T) {
	dir := t.TempDir()
	path := writeSettings(t, dir, "engine_addr: ipc://"+filepath.Join(dir, "engine.sock")+"\n"+
		"log_dir: "+dir+"\n"+
		"log_to_file: false\n")

	svc, err := New(path, "")
	require.NoError(t, err)
	require.Nil(t, svc.configStore)

	msg, err := svc.Reconfigure(map[string]any{"threshold": 9}, false)
	require.NoError(t, err)
	require.Equal(t, "reconfigure: no config manager configured", msg)

	status := svc.Status()
	require.Nil(t, status.Configs)
}

func TestNew_ConfigOverrideWinsOverSettingsConfigFile(t *testing.T) {
	dir := t.TempDir()
	overridePath := filepath.Join(dir, "override.yaml")
	path := writeSettings(t, dir, "engine_addr: ipc://"+filepath.Join(dir, "engine.sock")+"\n"+
		"config_file: "+filepath.Join(dir, "unused.yaml")+"\n"+
		"log_dir: "+dir+"\n"+
		"log_to_file: false\n")

	svc, err := New(path, overridePath)
	require.NoError(t, err)
	require.NotNil(t, svc.configStore)
	require.Equal(t, overridePath, svc.Settings().ConfigFile)
	require.FileExists(t, overridePath)
}

func TestRequestShutdown_UnblocksRun(t *testing.T) {
	dir := t.TempDir()
	path := writeSettings(t, dir, "engine_addr: ipc://"+filepath.Join(dir, "engine.sock")+"\n"+
		"config_file: "+filepath.Join(dir, "config.yaml")+"\n"+
		"log_dir: "+dir+"\n"+
		"log_to_file: false\n"+
		"engine_autostart: false\n")

	svc, err := New(path, "")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- svc.Run(context.Background()) }()

	msg, err := svc.RequestShutdown()
	require.NoError(t, err)
	require.Equal(t, "shutdown requested", msg)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after shutdown was requested")
	}
}
