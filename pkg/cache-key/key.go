package cachekey

import (
	"fmt"
	"net/http"
	"strings"
)

const (
	methodSeparator   = ":"
	cacheKeySeparator = "\t"
)

// Keyer maps requests to cache keys and back.
// The key identifies a request by method and request URI;
// a `Cache-Key` request header, when present, is appended so callers
// can partition entries for otherwise identical requests.
type Keyer struct{}

func NewKeyer() Keyer {
	return Keyer{}
}

// GetKey returns the cache key for a request.
func (k Keyer) GetKey(r *http.Request) string {
	key := r.Method + methodSeparator + r.URL.RequestURI()
	if ck := r.Header.Get("Cache-Key"); ck != "" {
		key += cacheKeySeparator + ck
	}
	return key
}

// GetRequestFromKey generates a caching-wise equal request to the request
// that resulted in the provided key.
// It returns an error if the request cannot for some reason be deducted.
func (k Keyer) GetRequestFromKey(key string) (*http.Request, error) {
	method, rest, found := strings.Cut(key, methodSeparator)
	if !found {
		return nil, fmt.Errorf("malformed key: %s", key)
	}
	uri, cacheKey, _ := strings.Cut(rest, cacheKeySeparator)
	req, err := http.NewRequest(method, uri, nil)
	if err != nil {
		return req, err
	}
	if cacheKey != "" {
		req.Header.Set("Cache-Key", cacheKey)
	}
	return req, nil
}
