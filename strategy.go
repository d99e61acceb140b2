// Package strategycache is a pluggable request-caching layer. A strategy
// answers a single request by combining a persistent response cache and the
// live network according to a fixed policy (cache-first, network-first,
// stale-while-revalidate, ...), with a plugin pipeline for observing and
// rewriting requests and responses at well-defined extension points.
package strategycache

import (
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/strategy-cache/strategy-cache/cache"
	cachekey "github.com/strategy-cache/strategy-cache/pkg/cache-key"
	snapshot "github.com/strategy-cache/strategy-cache/pkg/response-snapshot"
)

// Fetcher performs the network request for a strategy. *http.Client
// satisfies it. A failed transport attempt returns a nil response and a
// non-nil error; a response with any status code, opaque included, is not
// a fetch failure.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Strategy answers a single request by combining the cache and the network
// according to a fixed policy. Implementations hold no per-request state:
// the same instance may handle any number of requests concurrently.
type Strategy interface {
	// Handle produces a response for the request. Background work that
	// must outlive the returned response (deferred cache writes, refresh
	// fetches) is registered with ext so the surrounding context stays
	// alive until it settles; with a nil ext such work runs before Handle
	// returns, or untracked where the policy requires concurrency.
	Handle(req *http.Request, ext Extender) (*http.Response, error)
}

// Options configures a strategy instance. The zero value is usable: default
// runtime namespace, process-wide in-memory storage, http.DefaultClient.
type Options struct {
	// CacheName overrides the default runtime namespace.
	CacheName string
	// Plugins are invoked in order at each extension point.
	Plugins []Plugin
	// NetworkTimeout bounds how long NetworkFirst waits for the network
	// before falling back to the cache. Zero means no bound. Ignored by
	// the other strategies.
	NetworkTimeout time.Duration
	// CacheableResponse is shorthand for a leading CacheWillUpdate plugin,
	// see NewCacheableResponsePlugin.
	CacheableResponse *CacheableResponseConfig
	// MaxAge is shorthand for a leading CachedResponseWillBeUsed plugin,
	// see NewMaxAgePlugin.
	MaxAge time.Duration
	// Storage holds the cache namespaces.
	Storage cache.Storage
	// Fetcher performs network requests.
	Fetcher Fetcher
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
}

// IsOpaque reports whether the response status cannot be inspected,
// conventionally represented as status code 0. Opaque responses are not
// cached unless a CacheWillUpdate plugin explicitly returns them.
func IsOpaque(res *http.Response) bool {
	return res.StatusCode == 0
}

var (
	defaultStorageOnce sync.Once
	defaultStorage     cache.Storage
)

// DefaultStorage returns the process-wide in-memory storage used by
// strategies constructed without an explicit Storage.
func DefaultStorage() cache.Storage {
	defaultStorageOnce.Do(func() {
		defaultStorage = cache.NewMemoryStorage()
	})
	return defaultStorage
}

// strategy carries the configuration shared by every concrete strategy and
// the cache/network primitives they compose.
type strategy struct {
	name      string
	cacheName string
	plugins   []Plugin
	cache     cache.Cache
	fetcher   Fetcher
	keyer     cachekey.Keyer
	log       zerolog.Logger
}

func newStrategy(name string, opts Options) (strategy, error) {
	cacheName := opts.CacheName
	if cacheName == "" {
		cacheName = DefaultCacheName()
	}

	storage := opts.Storage
	if storage == nil {
		storage = DefaultStorage()
	}
	cacheHandle, err := storage.Open(cacheName)
	if err != nil {
		return strategy{}, errors.Wrapf(err, "open cache %q", cacheName)
	}

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = http.DefaultClient
	}

	// use the global logger if not specified in options
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	logger = logger.With().
		Str("strategy", name).
		Str("cache", cacheName).
		Logger()

	return strategy{
		name:      name,
		cacheName: cacheName,
		plugins:   buildPlugins(opts),
		cache:     cacheHandle,
		fetcher:   fetcher,
		keyer:     cachekey.NewKeyer(),
		log:       logger,
	}, nil
}

// CacheName returns the namespace this strategy reads and writes.
func (s *strategy) CacheName() string {
	return s.cacheName
}

// fetch runs the requestWillFetch hooks on a clone of the request, issues
// the network fetch and fans out the did-succeed/did-fail notifications.
// A fetch failure is never swallowed here.
func (s *strategy) fetch(req *http.Request) (*http.Response, error) {
	fetchReq, err := runRequestWillFetch(s.plugins, cloneRequest(req))
	if err != nil {
		return nil, err
	}

	res, err := s.fetcher.Do(fetchReq)
	if err != nil {
		notifyFetchDidFail(s.plugins, fetchReq, err)
		s.log.Debug().Err(err).Str("url", fetchReq.URL.String()).Msg("Fetch failed")
		return nil, errors.Wrap(err, "network fetch")
	}
	if res.Header == nil {
		res.Header = make(http.Header)
	}
	// as per https://www.rfc-editor.org/rfc/rfc9110#section-6.6.1-8
	if res.Header.Get("Date") == "" {
		res.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	notifyFetchDidSucceed(s.plugins, fetchReq, res)
	s.log.Trace().Str("url", fetchReq.URL.String()).Int("http-status", res.StatusCode).Msg("Got response from network")
	return res, nil
}

// fetchAndCache fetches the request over the network and, unless vetoed by
// the cacheWillUpdate hooks, writes a snapshot of the response to the cache.
// The returned response is the caller's to consume; the cache write operates
// on its own clone. When ext is non-nil the write happens in the background.
func (s *strategy) fetchAndCache(req *http.Request, ext Extender) (*http.Response, error) {
	key := s.keyer.GetKey(req)

	res, err := s.fetch(req)
	if err != nil {
		return nil, err
	}

	clone, err := snapshot.Clone(res)
	if err != nil {
		return nil, errors.Wrap(err, "clone response")
	}

	toCache, err := runCacheWillUpdate(s.plugins, req, clone)
	if err != nil {
		return nil, err
	}
	if toCache == nil {
		s.log.Trace().Str("key", key).Int("http-status", res.StatusCode).Msg("Non-cacheable response")
		return res, nil
	}

	bts, err := snapshot.Marshal(snapshot.TimedResponse{
		Response:   toCache,
		ReceivedAt: time.Now(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal response snapshot")
	}

	write := func() error {
		if err := s.cache.Put(key, bts); err != nil {
			return errors.Wrapf(err, "cache write for %s", key)
		}
		s.log.Trace().Str("key", key).Msg("Cache write")
		return nil
	}
	if ext != nil {
		ext.WaitUntil(write)
	} else if err := write(); err != nil {
		// the response was fetched fine, do not fail the handling
		s.log.Error().Err(err).Str("key", key).Msg("Could not write to cache")
	}
	return res, nil
}

// lookupCache reads the cache and runs the cachedResponseWillBeUsed hooks.
// A nil response with a nil error means there is no usable cached response,
// either a plain miss or an explicit rejection by a plugin.
func (s *strategy) lookupCache(req *http.Request) (*http.Response, error) {
	key := s.keyer.GetKey(req)

	bts, ok, err := s.cache.Get(key)
	if err != nil {
		return nil, errors.Wrapf(err, "cache read for %s", key)
	}
	if !ok {
		s.log.Trace().Str("key", key).Msg("Cache miss")
		return nil, nil
	}

	tr, err := snapshot.Unmarshal(bts, req)
	if err != nil {
		// in case we have a corrupted cache entry, we delete it and treat
		// the lookup as a miss
		s.log.Error().Err(err).Str("key", key).Msg("Could not read from cache")
		s.cache.Purge(key)
		return nil, nil
	}

	res, err := runCachedResponseWillBeUsed(s.plugins, req, tr.Response)
	if err != nil {
		return nil, err
	}
	if res == nil {
		s.log.Debug().Str("key", key).Time("received", tr.ReceivedAt).Msg("Cached response rejected by plugin")
		return nil, nil
	}
	s.log.Trace().Str("key", key).Time("received", tr.ReceivedAt).Msg("Cache hit")
	return res, nil
}

// cloneRequest copies the request for an independent use (cache lookup and
// network fetch may not share one). Bodies are not duplicated: the cached
// request shapes are idempotent and carry none.
func cloneRequest(req *http.Request) *http.Request {
	return req.Clone(req.Context())
}
