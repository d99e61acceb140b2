package strategycache

import (
	"net/http"
	"time"
)

// NewMaxAgePlugin builds a CachedResponseWillBeUsed plugin that rejects
// cached responses older than maxAge, judged by their Date header, forcing
// the strategy to refetch. Responses without a parseable Date are accepted.
// It is the expansion target of Options.MaxAge.
func NewMaxAgePlugin(maxAge time.Duration) Plugin {
	return Plugin{
		CachedResponseWillBeUsed: func(req *http.Request, cached *http.Response) (*http.Response, error) {
			date, err := http.ParseTime(cached.Header.Get("Date"))
			if err != nil {
				return cached, nil
			}
			if time.Since(date) > maxAge {
				return nil, nil
			}
			return cached, nil
		},
	}
}
