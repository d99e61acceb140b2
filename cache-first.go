package strategycache

import "net/http"

// CacheFirst serves from the cache and falls back to the network, caching
// the fetched response for next time.
type CacheFirst struct {
	strategy
}

// NewCacheFirst constructs a cache-first strategy.
func NewCacheFirst(opts Options) (*CacheFirst, error) {
	s, err := newStrategy(PolicyCacheFirst, opts)
	if err != nil {
		return nil, err
	}
	return &CacheFirst{strategy: s}, nil
}

// Handle returns the cached response when one is usable. On a miss the
// request is fetched from the network, returned, and written to the cache
// through ext.
func (s *CacheFirst) Handle(req *http.Request, ext Extender) (*http.Response, error) {
	cached, err := s.lookupCache(req)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}
	return s.fetchAndCache(req, ext)
}
