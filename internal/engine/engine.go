// Package engine implements the Engine component: a single input socket,
// a loaded Processor, and zero or more output sockets that receive a
// broadcast copy of every non-empty processing result.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ait-detectmate/detectmate-go/internal/identity"
	"github.com/ait-detectmate/detectmate-go/internal/plugin"
	"github.com/ait-detectmate/detectmate-go/internal/transport"
)

// State is the engine's run state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// stopGrace bounds how long Stop waits for the loop goroutine to notice
// stopCh before it closes sockets out from under it.
const stopGrace = time.Second

// pausePollInterval bounds how often a paused loop re-checks its state
// instead of blocking on Recv, so stop is still observed promptly.
const pausePollInterval = 20 * time.Millisecond

// outputSlot is one dialed output socket. broken latches true after a Send
// failure so the loop stops retrying it without aborting the other slots.
type outputSlot struct {
	uri    string
	socket transport.Socket
	mu     sync.Mutex
	broken bool
	lastErr error
}

func (s *outputSlot) markBroken(err error) {
	s.mu.Lock()
	s.broken = true
	s.lastErr = err
	s.mu.Unlock()
}

func (s *outputSlot) isBroken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broken
}

// Engine is the runtime's data-plane component.
type Engine struct {
	id      identity.Identity
	factory *transport.Factory
	logger  *slog.Logger
	proc    plugin.Processor
	metrics *Metrics

	inputURI   string
	outputURIs []string
	recvTimeout time.Duration

	mu      sync.Mutex
	state   State
	input   transport.Socket
	outputs []*outputSlot
	stopCh  chan struct{}
	doneCh  chan struct{}
	paused  bool
}

// New builds an Engine ready to Start. It does not open any socket.
func New(id identity.Identity, factory *transport.Factory, logger *slog.Logger, proc plugin.Processor, metrics *Metrics, inputURI string, outputURIs []string, recvTimeout time.Duration) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if recvTimeout <= 0 {
		recvTimeout = 100 * time.Millisecond
	}
	return &Engine{
		id:          id,
		factory:     factory,
		logger:      logger,
		proc:        proc,
		metrics:     metrics,
		inputURI:    inputURI,
		outputURIs:  outputURIs,
		recvTimeout: recvTimeout,
		state:       StateIdle,
	}
}

// State reports the engine's current run state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start is idempotent: starting an already-running engine is a no-op that
// returns a status message rather than an error.
func (e *Engine) Start(ctx context.Context) (string, error) {
	e.mu.Lock()
	if e.state == StateRunning || e.state == StatePaused {
		e.mu.Unlock()
		return "engine already running", nil
	}

	input, err := e.factory.Bind(e.inputURI, e.logger)
	if err != nil {
		e.mu.Unlock()
		return "", fmt.Errorf("engine: binding input socket: %w", err)
	}
	input.SetRecvTimeout(e.recvTimeout)

	outputs := make([]*outputSlot, 0, len(e.outputURIs))
	for _, uri := range e.outputURIs {
		sock, dialErr := e.factory.Dial(uri, e.logger)
		slot := &outputSlot{uri: uri}
		if dialErr != nil {
			e.logger.Error("engine: output dial failed, slot starts broken", "uri", uri, "err", dialErr)
			slot.markBroken(dialErr)
		} else {
			slot.socket = sock
		}
		outputs = append(outputs, slot)
	}

	e.input = input
	e.outputs = outputs
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	e.paused = false
	e.state = StateRunning
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.incStarts(e.id.Type, e.id.ID)
		e.metrics.setRunning(e.id.Type, e.id.ID, true)
	}
	e.logger.Info("engine: started", "input", e.inputURI, "outputs", len(e.outputURIs))

	go e.loop(ctx)

	return "engine started", nil
}

// Stop requests the loop goroutine to exit, waits up to stopGrace for it to
// notice, then closes every socket regardless. Sends issued after Stop
// returns fail with transport.ErrClosed.
func (e *Engine) Stop() (string, error) {
	e.mu.Lock()
	if e.state == StateIdle || e.state == StateStopped {
		e.mu.Unlock()
		return "engine already stopped", nil
	}
	stopCh := e.stopCh
	doneCh := e.doneCh
	input := e.input
	outputs := e.outputs
	e.state = StateStopped
	e.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
	case <-time.After(stopGrace):
		e.logger.Warn("engine: loop did not exit within grace window, closing sockets anyway")
	}

	for _, slot := range outputs {
		if slot.socket != nil {
			_ = slot.socket.Close()
		}
	}
	if input != nil {
		_ = input.Close()
	}

	if e.metrics != nil {
		e.metrics.setRunning(e.id.Type, e.id.ID, false)
	}
	e.logger.Info("engine: stopped")
	return "engine stopped", nil
}

// Pause suspends processing without closing any socket: the loop stops
// calling input.Recv entirely, so whatever is in flight or unread on the
// wire stays there — pause neither drains nor flushes queues — and resumes
// draining from the same point once Resume is called.
func (e *Engine) Pause() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRunning {
		return "", fmt.Errorf("engine: cannot pause from state %s", e.state)
	}
	e.paused = true
	e.state = StatePaused
	return "engine paused", nil
}

// Resume reverses Pause.
func (e *Engine) Resume() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePaused {
		return "", fmt.Errorf("engine: cannot resume from state %s", e.state)
	}
	e.paused = false
	e.state = StateRunning
	return "engine resumed", nil
}

func (e *Engine) isPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// loop is the engine's single data-plane goroutine: bounded receive,
// timeout-is-not-an-error, empty-payload-skip, timed process, broadcast.
func (e *Engine) loop(ctx context.Context) {
	defer close(e.doneCh)

	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if e.isPaused() {
			// Paused: do not drain the input socket. Yield briefly and
			// re-check state so stop is still observed promptly, and so
			// whatever is sitting unread on the wire stays there for the
			// first Recv after Resume.
			select {
			case <-e.stopCh:
				return
			case <-ctx.Done():
				return
			case <-time.After(pausePollInterval):
			}
			continue
		}

		payload, err := e.input.Recv(ctx)
		if err != nil {
			if err == transport.ErrRecvTimeout {
				continue
			}
			if err == transport.ErrClosed {
				return
			}
			e.logger.Error("engine: recv failed", "err", err)
			continue
		}

		if len(payload) == 0 {
			continue
		}

		// A Recv already in flight when Pause was called can still return a
		// message; hold it unprocessed until Resume.
		for e.isPaused() {
			select {
			case <-e.stopCh:
				return
			case <-ctx.Done():
				return
			case <-time.After(pausePollInterval):
			}
		}

		if e.metrics != nil {
			e.metrics.addBytes(e.id.Type, e.id.ID, len(payload))
		}

		start := time.Now()
		result, procErr := e.proc.Process(ctx, payload)
		if e.metrics != nil {
			e.metrics.observeDuration(e.id.Type, e.id.ID, time.Since(start).Seconds())
		}
		if procErr != nil {
			e.logger.Error("engine: processor error", "err", procErr)
			continue
		}
		if len(result) == 0 {
			continue
		}

		e.broadcast(ctx, result)
	}
}

// broadcast sends result to every non-broken output slot. A send failure on
// one slot marks it broken and is logged; the remaining slots are still
// attempted — one broken output never halts the others.
func (e *Engine) broadcast(ctx context.Context, result []byte) {
	e.mu.Lock()
	outputs := e.outputs
	e.mu.Unlock()

	for _, slot := range outputs {
		if slot.isBroken() {
			continue
		}
		if err := slot.socket.Send(ctx, result); err != nil {
			e.logger.Error("engine: output send failed, slot marked broken", "uri", slot.uri, "err", err)
			slot.markBroken(err)
		}
	}
}

// ProcessDirect invokes the loaded processor directly, bypassing the input
// and output sockets entirely. Used for local dry-runs where a caller wants
// the pipeline's transformation without standing up a full engine.
func (e *Engine) ProcessDirect(ctx context.Context, payload []byte) ([]byte, error) {
	return e.proc.Process(ctx, payload)
}

// SlotStatus is a serializable snapshot of one output slot, returned by
// OutputStatuses. The admin status report does not include it.
type SlotStatus struct {
	URI    string `json:"uri"`
	Broken bool   `json:"broken"`
	Error  string `json:"error,omitempty"`
}

// OutputStatuses returns a snapshot of every output slot's health.
func (e *Engine) OutputStatuses() []SlotStatus {
	e.mu.Lock()
	outputs := e.outputs
	e.mu.Unlock()

	out := make([]SlotStatus, 0, len(outputs))
	for _, slot := range outputs {
		slot.mu.Lock()
		s := SlotStatus{URI: slot.uri, Broken: slot.broken}
		if slot.lastErr != nil {
			s.Error = slot.lastErr.Error()
		}
		slot.mu.Unlock()
		out = append(out, s)
	}
	return out
}
