package strategycache

import "sync"

const runtimeNameSuffix = "runtime"

var (
	nameMutex  sync.Mutex
	namePrefix = "strategy-cache"
	// resolved lazily on first use, stable for the process lifetime
	runtimeName string
)

// DefaultCacheName returns the process-wide runtime cache namespace. It is
// resolved once, on first use, and every strategy constructed without an
// explicit CacheName shares it.
func DefaultCacheName() string {
	nameMutex.Lock()
	defer nameMutex.Unlock()
	if runtimeName == "" {
		runtimeName = namePrefix + "-" + runtimeNameSuffix
	}
	return runtimeName
}

// SetCacheNamePrefix overrides the prefix of the default runtime namespace.
// It returns false without effect once the name has been resolved.
func SetCacheNamePrefix(prefix string) bool {
	nameMutex.Lock()
	defer nameMutex.Unlock()
	if runtimeName != "" {
		return false
	}
	namePrefix = prefix
	return true
}
