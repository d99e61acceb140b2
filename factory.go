package strategycache

import "github.com/pkg/errors"

// Policy names recognized by New.
const (
	PolicyCacheFirst           = "cache-first"
	PolicyCacheOnly            = "cache-only"
	PolicyNetworkFirst         = "network-first"
	PolicyNetworkOnly          = "network-only"
	PolicyStaleWhileRevalidate = "stale-while-revalidate"
)

// New constructs a ready-to-use strategy for the given policy name,
// expanding any shorthand plugin options first. Unknown policy names fail
// here, at construction time, with ErrUnknownStrategy.
func New(policy string, opts Options) (Strategy, error) {
	switch policy {
	case PolicyCacheFirst:
		return NewCacheFirst(opts)
	case PolicyCacheOnly:
		return NewCacheOnly(opts)
	case PolicyNetworkFirst:
		return NewNetworkFirst(opts)
	case PolicyNetworkOnly:
		return NewNetworkOnly(opts)
	case PolicyStaleWhileRevalidate:
		return NewStaleWhileRevalidate(opts)
	default:
		return nil, errors.Wrapf(ErrUnknownStrategy, "%q", policy)
	}
}

// buildPlugins expands the shorthand options into concrete plugins. Expanded
// plugins run before caller-supplied ones; caller order is preserved.
func buildPlugins(opts Options) []Plugin {
	plugins := make([]Plugin, 0, len(opts.Plugins)+2)
	if opts.CacheableResponse != nil {
		plugins = append(plugins, NewCacheableResponsePlugin(*opts.CacheableResponse))
	}
	if opts.MaxAge > 0 {
		plugins = append(plugins, NewMaxAgePlugin(opts.MaxAge))
	}
	return append(plugins, opts.Plugins...)
}
