package strategycache

import "net/http"

// StaleWhileRevalidate answers from the cache when possible while always
// refreshing the cached entry from the network.
type StaleWhileRevalidate struct {
	strategy
}

// NewStaleWhileRevalidate constructs a stale-while-revalidate strategy.
func NewStaleWhileRevalidate(opts Options) (*StaleWhileRevalidate, error) {
	s, err := newStrategy(PolicyStaleWhileRevalidate, opts)
	if err != nil {
		return nil, err
	}
	return &StaleWhileRevalidate{strategy: s}, nil
}

// Handle starts a fetch-and-cache refresh and looks the cache up
// concurrently. A usable cached response is returned immediately; on a miss
// the handler waits for the fetch instead. The refresh proceeds regardless
// of a cache hit, kept alive through ext, so the next request sees a fresh
// entry.
func (s *StaleWhileRevalidate) Handle(req *http.Request, ext Extender) (*http.Response, error) {
	type result struct {
		res *http.Response
		err error
	}
	resultCh := make(chan result, 1)
	refresh := func() error {
		res, err := s.fetchAndCache(req, ext)
		resultCh <- result{res: res, err: err}
		// failures are reported through the channel; on the cache-hit path
		// nobody reads it and the fetch failure was already logged
		return nil
	}
	if ext != nil {
		ext.WaitUntil(refresh)
	} else {
		go refresh()
	}

	cached, err := s.lookupCache(req)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}

	r := <-resultCh
	if r.err != nil {
		// nothing to fall back to
		return nil, r.err
	}
	return r.res, nil
}
