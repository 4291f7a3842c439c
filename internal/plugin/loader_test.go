package plugin

import (
	"context"
	"testing"
)

type echoProcessor struct{}

func (echoProcessor) Process(_ context.Context, payload []byte) ([]byte, error) {
	return payload, nil
}

type notAProcessor struct{}

func TestLoader_LoadsRegisteredProcessor(t *testing.T) {
	resetForTest()
	defer resetForTest()
	Register("Echo", Registration{Factory: func(map[string]any) (any, error) {
		return echoProcessor{}, nil
	}})

	l := NewLoader()
	proc, err := l.Load("detectmate.plugin.builtin.Echo", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := proc.Process(context.Background(), []byte("hi"))
	if err != nil || string(out) != "hi" {
		t.Fatalf("unexpected process result: %q, %v", out, err)
	}
}

func TestLoader_UnregisteredPathFails(t *testing.T) {
	resetForTest()
	defer resetForTest()
	l := NewLoader()
	_, err := l.Load("nowhere.Nothing", nil)
	if err == nil {
		t.Fatal("expected import-failed error")
	}
}

func TestLoader_NonConformingInstanceFails(t *testing.T) {
	resetForTest()
	defer resetForTest()
	Register("Bogus", Registration{Factory: func(map[string]any) (any, error) {
		return notAProcessor{}, nil
	}})

	l := NewLoader()
	_, err := l.Load("detectmate.plugin.builtin.Bogus", nil)
	if err == nil {
		t.Fatal("expected type-mismatch error")
	}
}
