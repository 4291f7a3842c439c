package transport

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIPCRoundTrip(t *testing.T) {
	dir := t.TempDir()
	uri := "ipc://" + filepath.Join(dir, "test.sock")

	f := New()
	srv, err := f.Bind(uri, nil)
	require.NoError(t, err)
	defer srv.Close()

	cli, err := f.Dial(uri, nil)
	require.NoError(t, err)
	defer cli.Close()

	ctx := context.Background()
	require.NoError(t, cli.Send(ctx, []byte("hello world")))

	srv.SetRecvTimeout(time.Second)
	got, err := srv.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), got)
}

func TestIPCCleansStalePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stale.sock")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	f := New()
	srv, err := f.Bind("ipc://"+path, nil)
	require.NoError(t, err)
	defer srv.Close()
}

func TestTCPAddressInUseFailsClosed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	f := New()
	_, err = f.Bind(fmt.Sprintf("tcp://127.0.0.1:%d", port), nil)
	require.Error(t, err)
}

func TestUnsupportedScheme(t *testing.T) {
	f := New()
	_, err := f.Bind("udp://127.0.0.1:9000", nil)
	require.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestRecvTimeoutIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	uri := "ipc://" + filepath.Join(dir, "timeout.sock")

	f := New()
	srv, err := f.Bind(uri, nil)
	require.NoError(t, err)
	defer srv.Close()

	cli, err := f.Dial(uri, nil)
	require.NoError(t, err)
	defer cli.Close()

	srv.SetRecvTimeout(20 * time.Millisecond)
	_, err = srv.Recv(context.Background())
	require.ErrorIs(t, err, ErrRecvTimeout)
}

func TestSendAfterCloseFails(t *testing.T) {
	dir := t.TempDir()
	uri := "ipc://" + filepath.Join(dir, "closed.sock")

	f := New()
	srv, err := f.Bind(uri, nil)
	require.NoError(t, err)

	cli, err := f.Dial(uri, nil)
	require.NoError(t, err)

	require.NoError(t, cli.Close())
	require.NoError(t, srv.Close())

	err = cli.Send(context.Background(), []byte("x"))
	require.Error(t, err)
}
