package strategycache

import "net/http"

// CacheableResponseConfig declares which responses are allowed into the
// cache: the status must be one of Statuses (when non-empty) and every
// header in Headers must be present with the given value.
type CacheableResponseConfig struct {
	Statuses []int
	Headers  map[string]string
}

// NewCacheableResponsePlugin builds a CacheWillUpdate plugin that vetoes any
// response not matching the config. It is the expansion target of
// Options.CacheableResponse.
func NewCacheableResponsePlugin(config CacheableResponseConfig) Plugin {
	return Plugin{
		CacheWillUpdate: func(req *http.Request, res *http.Response) (*http.Response, error) {
			if len(config.Statuses) > 0 {
				matched := false
				for _, status := range config.Statuses {
					if res.StatusCode == status {
						matched = true
						break
					}
				}
				if !matched {
					return nil, nil
				}
			}
			for name, value := range config.Headers {
				if res.Header.Get(name) != value {
					return nil, nil
				}
			}
			return res, nil
		},
	}
}
