package strategycache

import (
	"net/http"
)

// Plugin observes and rewrites requests and responses at the extension
// points of a strategy. All hooks are optional; a nil hook is skipped.
// A strategy holds its plugins in caller-supplied order for its lifetime
// and invokes them strictly in that order.
type Plugin struct {
	// RequestWillFetch is called before a network fetch is issued.
	// The returned request replaces the incoming one for the rest of the
	// chain; the last non-nil result is the request actually fetched.
	RequestWillFetch func(req *http.Request) (*http.Request, error)
	// CacheWillUpdate is called before a freshly fetched response is
	// written to the cache. Each plugin receives the previous plugin's
	// return value. Returning nil vetoes caching entirely and stops the
	// chain; no write occurs.
	CacheWillUpdate func(req *http.Request, res *http.Response) (*http.Response, error)
	// CachedResponseWillBeUsed is called after a successful cache lookup,
	// before the response is returned to the caller. Chained like
	// CacheWillUpdate. Returning nil rejects the cached response and the
	// lookup is treated as a miss.
	CachedResponseWillBeUsed func(req *http.Request, cached *http.Response) (*http.Response, error)
	// FetchDidSucceed is notified after a fetch attempt produced a
	// response. Return values are not modeled; fan-out only.
	FetchDidSucceed func(req *http.Request, res *http.Response)
	// FetchDidFail is notified after a fetch attempt failed without
	// producing a response. Fan-out only.
	FetchDidFail func(req *http.Request, err error)
}

// runRequestWillFetch folds the request through all plugins implementing the
// hook, in order. Hook errors propagate immediately.
func runRequestWillFetch(plugins []Plugin, req *http.Request) (*http.Request, error) {
	for i, p := range plugins {
		if p.RequestWillFetch == nil {
			continue
		}
		next, err := p.RequestWillFetch(req)
		if err != nil {
			return nil, &hookError{hook: "requestWillFetch", index: i, err: err}
		}
		if next != nil {
			req = next
		}
	}
	return req, nil
}

// runCacheWillUpdate folds the response through all plugins implementing the
// hook. A nil return from any plugin vetoes caching and stops the chain.
// When no plugin implements the hook, the default cacheability rule applies:
// any response may be cached unless it is opaque.
func runCacheWillUpdate(plugins []Plugin, req *http.Request, res *http.Response) (*http.Response, error) {
	ran := false
	for i, p := range plugins {
		if p.CacheWillUpdate == nil {
			continue
		}
		ran = true
		next, err := p.CacheWillUpdate(req, res)
		if err != nil {
			return nil, &hookError{hook: "cacheWillUpdate", index: i, err: err}
		}
		if next == nil {
			return nil, nil
		}
		res = next
	}
	if !ran && IsOpaque(res) {
		return nil, nil
	}
	return res, nil
}

// runCachedResponseWillBeUsed folds a cached response through all plugins
// implementing the hook. A nil return rejects the cached response and stops
// the chain; the caller treats it as a cache miss.
func runCachedResponseWillBeUsed(plugins []Plugin, req *http.Request, cached *http.Response) (*http.Response, error) {
	res := cached
	for i, p := range plugins {
		if p.CachedResponseWillBeUsed == nil {
			continue
		}
		next, err := p.CachedResponseWillBeUsed(req, res)
		if err != nil {
			return nil, &hookError{hook: "cachedResponseWillBeUsed", index: i, err: err}
		}
		if next == nil {
			return nil, nil
		}
		res = next
	}
	return res, nil
}

// notifyFetchDidSucceed fans the notification out to all plugins in order.
func notifyFetchDidSucceed(plugins []Plugin, req *http.Request, res *http.Response) {
	for _, p := range plugins {
		if p.FetchDidSucceed != nil {
			p.FetchDidSucceed(req, res)
		}
	}
}

// notifyFetchDidFail fans the notification out to all plugins in order.
func notifyFetchDidFail(plugins []Plugin, req *http.Request, err error) {
	for _, p := range plugins {
		if p.FetchDidFail != nil {
			p.FetchDidFail(req, err)
		}
	}
}
