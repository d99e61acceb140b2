package strategycache

import (
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// NetworkFirst fetches from the network, waiting at most the configured
// NetworkTimeout, and falls back to the cache on failure or timeout.
type NetworkFirst struct {
	strategy
	timeout time.Duration
}

// NewNetworkFirst constructs a network-first strategy. With a zero
// NetworkTimeout the network wait is unbounded.
func NewNetworkFirst(opts Options) (*NetworkFirst, error) {
	s, err := newStrategy(PolicyNetworkFirst, opts)
	if err != nil {
		return nil, err
	}
	return &NetworkFirst{strategy: s, timeout: opts.NetworkTimeout}, nil
}

// Handle fetches and caches the request, falling back to the cache when the
// network fails or does not answer within the timeout. A fetch that outlives
// the timeout is not cancelled: it keeps running through ext and its cache
// write still happens, so a later request can be served from cache.
func (s *NetworkFirst) Handle(req *http.Request, ext Extender) (*http.Response, error) {
	type result struct {
		res *http.Response
		err error
	}
	resultCh := make(chan result, 1)
	fetch := func() error {
		res, err := s.fetchAndCache(req, ext)
		resultCh <- result{res: res, err: err}
		// failures are reported through the channel, not the extender
		return nil
	}
	if ext != nil {
		ext.WaitUntil(fetch)
	} else {
		go fetch()
	}

	var timeoutCh <-chan time.Time
	if s.timeout > 0 {
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	var fetchErr error
	timedOut := false
	select {
	case r := <-resultCh:
		if r.err == nil {
			return r.res, nil
		}
		if isHookFailure(r.err) {
			return nil, r.err
		}
		fetchErr = r.err
	case <-timeoutCh:
		timedOut = true
		s.log.Debug().Dur("timeout", s.timeout).Msg("Network did not answer in time, trying cache")
	}

	cached, err := s.lookupCache(req)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}

	if timedOut {
		// no cached fallback: the in-flight fetch is the only remaining
		// source of a response
		r := <-resultCh
		if r.err == nil {
			return r.res, nil
		}
		fetchErr = r.err
	}
	return nil, errors.Wrap(fetchErr, "no cached response to fall back to")
}
