package main

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	strategycache "github.com/strategy-cache/strategy-cache"
)

type Config struct {
	Origin string  `yaml:"origin"`
	Host   string  `yaml:"host"`
	Routes []Route `yaml:"routes"`
}

type Route struct {
	Prefix                string            `yaml:"prefix"`
	Strategy              string            `yaml:"strategy"`
	CacheName             string            `yaml:"cacheName"`
	NetworkTimeoutSeconds int               `yaml:"networkTimeoutSeconds"`
	MaxAgeSeconds         int               `yaml:"maxAgeSeconds"`
	CacheableStatuses     []int             `yaml:"cacheableStatuses"`
	CacheableHeaders      map[string]string `yaml:"cacheableHeaders"`
}

func getConfig(filename string) (Config, error) {
	var config Config
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(configBytes, &config)
	return config, err
}

// options translates a route into strategy construction options.
func (r Route) options() strategycache.Options {
	opts := strategycache.Options{
		CacheName:      r.CacheName,
		NetworkTimeout: time.Duration(r.NetworkTimeoutSeconds) * time.Second,
		MaxAge:         time.Duration(r.MaxAgeSeconds) * time.Second,
	}
	if len(r.CacheableStatuses) > 0 || len(r.CacheableHeaders) > 0 {
		opts.CacheableResponse = &strategycache.CacheableResponseConfig{
			Statuses: r.CacheableStatuses,
			Headers:  r.CacheableHeaders,
		}
	}
	return opts
}
