package strategycache

import (
	"net/http"

	"github.com/pkg/errors"
)

// CacheOnly serves from the cache and never touches the network.
type CacheOnly struct {
	strategy
}

// NewCacheOnly constructs a cache-only strategy.
func NewCacheOnly(opts Options) (*CacheOnly, error) {
	s, err := newStrategy(PolicyCacheOnly, opts)
	if err != nil {
		return nil, err
	}
	return &CacheOnly{strategy: s}, nil
}

// Handle returns the cached response, or ErrNoCachedResponse when the cache
// has no usable entry for the request.
func (s *CacheOnly) Handle(req *http.Request, ext Extender) (*http.Response, error) {
	cached, err := s.lookupCache(req)
	if err != nil {
		return nil, err
	}
	if cached == nil {
		return nil, errors.Wrapf(ErrNoCachedResponse, "%s %s", req.Method, req.URL)
	}
	return cached, nil
}
