package engine

import (
	"errors"
	"log/slog"
)

// ErrEngineClosed is returned for commands submitted after Close.
var ErrEngineClosed = errors.New("engine closed")

// command is one queued mutating operation. Commands execute strictly in
// submission order on the single worker goroutine; each result travels back
// on its own done channel.
type command struct {
	name string
	run  func() error
	done chan error
}

// enqueue submits a command and waits for its result.
func (e *Engine) enqueue(name string, run func() error) error {
	done, err := e.enqueueAsync(name, run)
	if err != nil {
		return err
	}
	return <-done
}

// enqueueAsync submits a command without waiting. The returned channel
// receives exactly one result.
func (e *Engine) enqueueAsync(name string, run func() error) (<-chan error, error) {
	cmd := &command{name: name, run: run, done: make(chan error, 1)}

	e.closeMu.Lock()
	defer e.closeMu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}
	e.queue <- cmd
	return cmd.done, nil
}

// worker drains the command queue. A failing command marks the snapshot as
// errored but never halts the queue; the next command runs regardless.
func (e *Engine) worker() {
	defer e.wg.Done()
	for cmd := range e.queue {
		err := cmd.run()
		if err != nil {
			slog.Error("command failed", "command", cmd.name, "error", err)
			e.setError(err)
		}
		cmd.done <- err
	}
}
