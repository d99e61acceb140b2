package strategycache

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNoCachedResponse signals that a cache-backed strategy found no
	// usable cached response to return or fall back to.
	ErrNoCachedResponse = errors.New("no cached response")
	// ErrUnknownStrategy is returned by the factory for policy names
	// outside the five recognized policies.
	ErrUnknownStrategy = errors.New("unknown strategy")
)

// hookError marks an error raised by a plugin hook. Hook failures abort the
// current handling even in strategies that define a fallback path.
type hookError struct {
	hook  string
	index int
	err   error
}

func (e *hookError) Error() string {
	return fmt.Sprintf("%s plugin %d: %v", e.hook, e.index, e.err)
}

func (e *hookError) Unwrap() error { return e.err }

func isHookFailure(err error) bool {
	var he *hookError
	return errors.As(err, &he)
}
