// Package audit carries the authorization event stream. The event is
// the sole trail external settlement and observability subscribe to, so
// the package also offers a hash-chained export log for integrity.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/veilcash/pullauth/pkg/contracts"
)

// Emitter publishes authorization events.
type Emitter interface {
	Emit(ctx context.Context, ev contracts.AuthorizationEvent) error
}

// WriterEmitter writes events as JSON lines to a configurable Writer.
type WriterEmitter struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewWriterEmitter creates an emitter writing to os.Stdout.
func NewWriterEmitter() *WriterEmitter {
	return NewWriterEmitterTo(os.Stdout)
}

// NewWriterEmitterTo creates an emitter writing to the given writer.
// Allows injection for testing and custom sinks.
func NewWriterEmitterTo(w io.Writer) *WriterEmitter {
	if w == nil {
		w = os.Stdout
	}
	return &WriterEmitter{writer: w}
}

func (e *WriterEmitter) Emit(ctx context.Context, ev contracts.AuthorizationEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	// Prefix for easy filtering alongside operational logs.
	_, err = e.writer.Write(append([]byte("AUTH: "), append(raw, '\n')...))
	return err
}

// MemoryEmitter collects events for tests and previews.
type MemoryEmitter struct {
	mu     sync.Mutex
	events []contracts.AuthorizationEvent
}

// NewMemoryEmitter creates an empty in-memory emitter.
func NewMemoryEmitter() *MemoryEmitter {
	return &MemoryEmitter{}
}

func (e *MemoryEmitter) Emit(ctx context.Context, ev contracts.AuthorizationEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

// Events returns a snapshot of everything emitted so far.
func (e *MemoryEmitter) Events() []contracts.AuthorizationEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]contracts.AuthorizationEvent, len(e.events))
	copy(out, e.events)
	return out
}

// MultiEmitter fans an event out to several sinks. The first failure
// aborts; an event the chain could not record must not be considered
// emitted.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(ctx context.Context, ev contracts.AuthorizationEvent) error {
	for _, e := range m {
		if err := e.Emit(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}
