package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

type State int

const (
	StateIdle State = iota
	StateOpen
	StateEmitting
	StateClosed
	StateAborted
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	case StateEmitting:
		return "emitting"
	case StateClosed:
		return "closed"
	case StateAborted:
		return "aborted"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) Terminal() bool {
	return s == StateClosed || s == StateAborted || s == StateErrored
}

// Source yields text deltas until io.EOF.
type Source interface {
	Recv() (string, error)
	Close() error
}

// Emitter writes deltas to the client. WriteDelta must flush before returning.
type Emitter interface {
	Open() error
	WriteDelta(text string) error
	Finish() error
	Fail(err error) error
}

// Outcome summarises a finished relay.
type Outcome struct {
	State State
	Text  string
	Err   error
}

// Relay moves deltas from a Source to an Emitter one at a time. It is single use.
type Relay struct {
	mu    sync.Mutex
	state State

	// OnDelta is called after each delta has been written.
	OnDelta func(text string)
}

func NewRelay() *Relay {
	return &Relay{state: StateIdle}
}

func (r *Relay) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Relay) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

var ErrRelayUsed = errors.New("relay already used")

// Run relays until the source ends, the source fails, or ctx is cancelled. The
// source is always closed when Run returns.
func (r *Relay) Run(ctx context.Context, src Source, em Emitter) Outcome {
	r.mu.Lock()
	if r.state != StateIdle {
		r.mu.Unlock()
		_ = src.Close()
		return Outcome{State: StateErrored, Err: ErrRelayUsed}
	}
	r.state = StateOpen
	r.mu.Unlock()

	defer src.Close()
	// Unblocks a Recv that is waiting on the upstream when the client goes away.
	stop := context.AfterFunc(ctx, func() { _ = src.Close() })
	defer stop()

	var text []byte
	finish := func(s State, err error) Outcome {
		r.setState(s)
		return Outcome{State: s, Text: string(text), Err: err}
	}

	if err := ctx.Err(); err != nil {
		return finish(StateAborted, err)
	}
	if err := em.Open(); err != nil {
		return finish(StateErrored, fmt.Errorf("open stream failed: %w", err))
	}

	for {
		if err := ctx.Err(); err != nil {
			_ = src.Close()
			return finish(StateAborted, err)
		}

		delta, err := src.Recv()
		if errors.Is(err, io.EOF) {
			if ferr := em.Finish(); ferr != nil {
				return finish(StateErrored, fmt.Errorf("finish stream failed: %w", ferr))
			}
			return finish(StateClosed, nil)
		}
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return finish(StateAborted, cerr)
			}
			_ = src.Close()
			_ = em.Fail(err)
			return finish(StateErrored, err)
		}

		if err := ctx.Err(); err != nil {
			_ = src.Close()
			return finish(StateAborted, err)
		}
		if err := em.WriteDelta(delta); err != nil {
			_ = src.Close()
			return finish(StateAborted, fmt.Errorf("write delta failed: %w", err))
		}
		text = append(text, delta...)
		r.setState(StateEmitting)
		if r.OnDelta != nil {
			r.OnDelta(delta)
		}
	}
}
