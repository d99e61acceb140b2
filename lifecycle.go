package strategycache

import (
	"sync"

	"github.com/rs/zerolog"
)

// Extender keeps the surrounding execution context alive until background
// work registered with it settles. Strategies use it to let cache writes and
// refreshes finish after the response has been returned to the caller.
type Extender interface {
	// WaitUntil registers a pending background operation.
	WaitUntil(op func() error)
}

// Registry is an Extender backed by a wait group. The event-wiring layer
// owns one and drains it with Wait before tearing its context down.
type Registry struct {
	wg  sync.WaitGroup
	log zerolog.Logger
}

func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{log: logger}
}

// WaitUntil runs op on its own goroutine. Failures are logged, never
// propagated: by the time a background operation can fail, the primary
// response has already been returned.
func (r *Registry) WaitUntil(op func() error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error().Interface("panic", rec).Msg("Panic in background operation")
			}
		}()
		if err := op(); err != nil {
			r.log.Error().Err(err).Msg("Background operation failed")
		}
	}()
}

// Wait blocks until all registered operations have settled.
func (r *Registry) Wait() {
	r.wg.Wait()
}
