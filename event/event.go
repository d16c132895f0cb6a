// Package event provides the dispatcher that fans gateway events out to
// application-registered handlers.
package event

import (
	"reflect"
	"sync"

	"github.com/rs/zerolog"
)

// Handler reacts to a dispatched event. The arguments are whatever the
// dispatching side supplied; handlers are expected to know the shape of the
// events they register for.
type Handler func(args ...any)

// Dispatcher maps event names to ordered lists of handlers. Event names are
// usually strings ("ready", "guild_create", ...), but any comparable value
// can serve as a key.
//
// Dispatch runs the handlers for a call on a single background goroutine,
// one after another in registration order, and returns without waiting for
// any of them; a panicking handler is recovered and logged and never affects
// its siblings. The zero Dispatcher is not usable; call New.
type Dispatcher struct {
	mu       sync.Mutex
	handlers map[any][]Handler
	logger   zerolog.Logger

	// inflight tracks every goroutine spawned by Dispatch so that Wait can
	// drain them and panics are observed centrally rather than becoming
	// silent background failures.
	inflight sync.WaitGroup
}

// New creates an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[any][]Handler),
		logger:   zerolog.Nop(),
	}
}

// SetLogger sets the logger used to report recovered handler panics.
func (d *Dispatcher) SetLogger(logger zerolog.Logger) {
	d.mu.Lock()
	d.logger = logger
	d.mu.Unlock()
}

// normalize converts a bare event identifier to its canonical registry key.
// String names are prefixed with "on_"; any other key is used as-is.
func normalize(name any) any {
	if s, ok := name.(string); ok {
		return "on_" + s
	}
	return name
}

// AddListener appends h to the ordered handler list for name, creating the
// list on first registration. The name is used verbatim; listeners for
// dispatched string events register under the "on_"-prefixed form (for
// example "on_ready" to observe Dispatch("ready", ...)).
func (d *Dispatcher) AddListener(name any, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[name] = append(d.handlers[name], h)
}

// RemoveListener removes the first registration of h for name. Handlers are
// matched by function pointer; note that closures created from the same
// function literal share a pointer and are indistinguishable. Removing a
// handler that was never registered is a no-op.
func (d *Dispatcher) RemoveListener(name any, h Handler) {
	target := reflect.ValueOf(h).Pointer()

	d.mu.Lock()
	defer d.mu.Unlock()

	hs := d.handlers[name]
	for i, registered := range hs {
		if reflect.ValueOf(registered).Pointer() == target {
			d.handlers[name] = append(hs[:i:i], hs[i+1:]...)
			return
		}
	}
}

// Dispatch schedules every handler currently registered for name and returns
// immediately. String names are normalized to their "on_"-prefixed form
// before lookup. Dispatching a name with no registered handlers is a silent
// no-op.
//
// The handlers of one Dispatch call run sequentially, in registration order,
// on a single background goroutine. No ordering is guaranteed across
// separate Dispatch calls.
func (d *Dispatcher) Dispatch(name any, args ...any) {
	key := normalize(name)

	d.mu.Lock()
	hs := d.handlers[key]
	d.mu.Unlock()

	if len(hs) == 0 {
		return
	}

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		for _, h := range hs {
			d.run(key, h, args)
		}
	}()
}

func (d *Dispatcher) run(key any, h Handler, args []any) {
	defer func() {
		if r := recover(); r != nil {
			d.mu.Lock()
			logger := d.logger
			d.mu.Unlock()

			logger.Error().
				Interface("event", key).
				Interface("panic", r).
				Msg("event handler panicked")
		}
	}()

	h(args...)
}

// WaitFor registers h for name behind a wrapping Handler and returns the
// wrapper, which is what must be passed to RemoveListener. The handler keeps
// firing on every matching dispatch until it is removed.
func (d *Dispatcher) WaitFor(name any, h Handler) Handler {
	wrapped := Handler(func(args ...any) {
		h(args...)
	})

	d.AddListener(name, wrapped)
	return wrapped
}

// Wait blocks until every handler scheduled by prior Dispatch calls has
// returned.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}
