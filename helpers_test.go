package strategycache

import (
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/strategy-cache/strategy-cache/cache"
	cachekey "github.com/strategy-cache/strategy-cache/pkg/cache-key"
	snapshot "github.com/strategy-cache/strategy-cache/pkg/response-snapshot"
)

// fakeFetcher is a scriptable Fetcher counting its invocations.
type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	fn    func(req *http.Request) (*http.Response, error)
}

func newFakeFetcher(fn func(req *http.Request) (*http.Response, error)) *fakeFetcher {
	return &fakeFetcher{fn: fn}
}

func (f *fakeFetcher) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	f.calls++
	fn := f.fn
	f.mu.Unlock()
	return fn(req)
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFetcher) Set(fn func(req *http.Request) (*http.Response, error)) {
	f.mu.Lock()
	f.fn = fn
	f.mu.Unlock()
}

// textResponse builds a response with an in-memory body.
func textResponse(status int, body string) *http.Response {
	header := make(http.Header)
	header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	return &http.Response{
		StatusCode:    status,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

// opaqueResponse builds a response whose status cannot be inspected.
func opaqueResponse() *http.Response {
	return &http.Response{
		StatusCode: 0,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader("")),
	}
}

func respondWith(status int, body string) func(req *http.Request) (*http.Response, error) {
	return func(req *http.Request) (*http.Response, error) {
		return textResponse(status, body), nil
	}
}

func readBody(t *testing.T, res *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	res.Body.Close()
	return string(body)
}

func getRequest(t *testing.T, uri string) *http.Request {
	t.Helper()
	req, err := http.NewRequest("GET", uri, nil)
	require.NoError(t, err)
	return req
}

// putCached stores a response snapshot for the request directly, bypassing
// any strategy.
func putCached(t *testing.T, storage cache.Storage, name string, req *http.Request, res *http.Response) {
	t.Helper()
	c, err := storage.Open(name)
	require.NoError(t, err)
	bts, err := snapshot.Marshal(snapshot.TimedResponse{Response: res, ReceivedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, c.Put(cachekey.NewKeyer().GetKey(req), bts))
}

// getCached reads the stored response for the request directly, bypassing
// any strategy and its plugins.
func getCached(t *testing.T, storage cache.Storage, name string, req *http.Request) (*http.Response, bool) {
	t.Helper()
	c, err := storage.Open(name)
	require.NoError(t, err)
	bts, ok, err := c.Get(cachekey.NewKeyer().GetKey(req))
	require.NoError(t, err)
	if !ok {
		return nil, false
	}
	tr, err := snapshot.Unmarshal(bts, req)
	require.NoError(t, err)
	return tr.Response, true
}

func testOptions(fetcher Fetcher, plugins ...Plugin) (Options, cache.Storage) {
	storage := cache.NewMemoryStorage()
	logger := testLogger()
	return Options{
		Storage: storage,
		Fetcher: fetcher,
		Plugins: plugins,
		Logger:  &logger,
	}, storage
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestRegistry() *Registry {
	return NewRegistry(testLogger())
}
