package strategycache

import "net/http"

// NetworkOnly always fetches from the network and never reads or writes the
// cache.
type NetworkOnly struct {
	strategy
}

// NewNetworkOnly constructs a network-only strategy.
func NewNetworkOnly(opts Options) (*NetworkOnly, error) {
	s, err := newStrategy(PolicyNetworkOnly, opts)
	if err != nil {
		return nil, err
	}
	return &NetworkOnly{strategy: s}, nil
}

// Handle fetches the request and returns the response. A fetch failure
// propagates; there is no fallback.
func (s *NetworkOnly) Handle(req *http.Request, ext Extender) (*http.Response, error) {
	return s.fetch(req)
}
