package strategycache

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheFirstHitAvoidsNetwork(t *testing.T) {
	fetcher := newFakeFetcher(respondWith(200, "from network"))
	opts, storage := testOptions(fetcher)
	s, err := NewCacheFirst(opts)
	require.NoError(t, err)

	req := getRequest(t, "/hit")
	putCached(t, storage, s.CacheName(), req, textResponse(200, "from cache"))

	res, err := s.Handle(req, nil)
	require.NoError(t, err)
	assert.Equal(t, "from cache", readBody(t, res))
	assert.Zero(t, fetcher.Calls())
}

func TestCacheFirstMissPopulatesCache(t *testing.T) {
	fetcher := newFakeFetcher(respondWith(200, "fresh"))
	opts, storage := testOptions(fetcher)
	s, err := NewCacheFirst(opts)
	require.NoError(t, err)
	registry := newTestRegistry()

	req := getRequest(t, "/miss")
	res, err := s.Handle(req, registry)
	require.NoError(t, err)
	assert.Equal(t, "fresh", readBody(t, res))
	assert.Equal(t, 1, fetcher.Calls())

	registry.Wait()
	stored, ok := getCached(t, storage, s.CacheName(), req)
	require.True(t, ok, "cache not populated after background completion")
	assert.Equal(t, 200, stored.StatusCode)
	assert.Equal(t, "fresh", readBody(t, stored))
}

func TestCacheFirstIdempotence(t *testing.T) {
	fetcher := newFakeFetcher(respondWith(200, "answer"))
	opts, _ := testOptions(fetcher)
	s, err := NewCacheFirst(opts)
	require.NoError(t, err)

	req := getRequest(t, "/idempotent")
	first, err := s.Handle(req, nil)
	require.NoError(t, err)
	assert.Equal(t, "answer", readBody(t, first))

	// the network is gone; the second call must be served entirely from cache
	fetcher.Set(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("network down")
	})
	second, err := s.Handle(getRequest(t, "/idempotent"), nil)
	require.NoError(t, err)
	assert.Equal(t, "answer", readBody(t, second))
	assert.Equal(t, 1, fetcher.Calls())
}

func TestCacheFirstOpaqueNotCachedByDefault(t *testing.T) {
	fetcher := newFakeFetcher(func(req *http.Request) (*http.Response, error) {
		return opaqueResponse(), nil
	})
	opts, storage := testOptions(fetcher)
	s, err := NewCacheFirst(opts)
	require.NoError(t, err)
	registry := newTestRegistry()

	req := getRequest(t, "/opaque")
	res, err := s.Handle(req, registry)
	require.NoError(t, err)
	assert.True(t, IsOpaque(res), "opaque response was not returned as-is")

	registry.Wait()
	_, ok := getCached(t, storage, s.CacheName(), req)
	assert.False(t, ok, "opaque response was cached")
}

func TestCacheWillUpdateOverrideCachesOpaque(t *testing.T) {
	allowAll := Plugin{
		CacheWillUpdate: func(req *http.Request, res *http.Response) (*http.Response, error) {
			return res, nil
		},
	}
	fetcher := newFakeFetcher(func(req *http.Request) (*http.Response, error) {
		return opaqueResponse(), nil
	})
	opts, storage := testOptions(fetcher, allowAll)
	s, err := NewCacheFirst(opts)
	require.NoError(t, err)
	registry := newTestRegistry()

	req := getRequest(t, "/opaque-override")
	_, err = s.Handle(req, registry)
	require.NoError(t, err)

	registry.Wait()
	stored, ok := getCached(t, storage, s.CacheName(), req)
	require.True(t, ok, "override did not enable caching")
	assert.True(t, IsOpaque(stored))
}

func TestCachedResponseSubstitution(t *testing.T) {
	substitute := Plugin{
		CachedResponseWillBeUsed: func(req *http.Request, cached *http.Response) (*http.Response, error) {
			return textResponse(203, "substituted"), nil
		},
	}
	fetcher := newFakeFetcher(respondWith(200, "from network"))
	opts, storage := testOptions(fetcher, substitute)
	s, err := NewCacheFirst(opts)
	require.NoError(t, err)

	req := getRequest(t, "/substitute")
	putCached(t, storage, s.CacheName(), req, textResponse(200, "stored"))

	res, err := s.Handle(req, nil)
	require.NoError(t, err)
	assert.Equal(t, 203, res.StatusCode)
	assert.Equal(t, "substituted", readBody(t, res))
	assert.Zero(t, fetcher.Calls())
}

func TestCachedResponseRejectionForcesRefetch(t *testing.T) {
	reject := Plugin{
		CachedResponseWillBeUsed: func(req *http.Request, cached *http.Response) (*http.Response, error) {
			return nil, nil
		},
	}
	fetcher := newFakeFetcher(respondWith(200, "refetched"))
	opts, storage := testOptions(fetcher, reject)
	s, err := NewCacheFirst(opts)
	require.NoError(t, err)
	registry := newTestRegistry()

	req := getRequest(t, "/reject")
	putCached(t, storage, s.CacheName(), req, textResponse(200, "stale"))

	res, err := s.Handle(req, registry)
	require.NoError(t, err)
	assert.Equal(t, "refetched", readBody(t, res))
	assert.Equal(t, 1, fetcher.Calls())

	registry.Wait()
	stored, ok := getCached(t, storage, s.CacheName(), req)
	require.True(t, ok)
	assert.Equal(t, "refetched", readBody(t, stored))
}

func TestCustomCacheNamespaceIsolation(t *testing.T) {
	fetcher := newFakeFetcher(respondWith(200, "namespaced"))
	opts, storage := testOptions(fetcher)
	opts.CacheName = "custom"
	s, err := NewCacheFirst(opts)
	require.NoError(t, err)

	req := getRequest(t, "/isolated")
	_, err = s.Handle(req, nil)
	require.NoError(t, err)

	_, ok := getCached(t, storage, "custom", req)
	assert.True(t, ok, "entry missing from custom namespace")
	_, ok = getCached(t, storage, DefaultCacheName(), req)
	assert.False(t, ok, "entry leaked into default namespace")

	names, err := storage.ListNames()
	require.NoError(t, err)
	assert.Contains(t, names, "custom")
	assert.NotContains(t, names, DefaultCacheName())
}

func TestCacheFirstReturnedAndCachedBodiesIndependent(t *testing.T) {
	fetcher := newFakeFetcher(respondWith(200, "dual use"))
	opts, storage := testOptions(fetcher)
	s, err := NewCacheFirst(opts)
	require.NoError(t, err)

	req := getRequest(t, "/dual")
	res, err := s.Handle(req, nil)
	require.NoError(t, err)

	// reading the returned body must not consume the cached copy
	assert.Equal(t, "dual use", readBody(t, res))
	stored, ok := getCached(t, storage, s.CacheName(), req)
	require.True(t, ok)
	assert.Equal(t, "dual use", readBody(t, stored))
}
