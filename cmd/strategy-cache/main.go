package main

import (
	"context"
	"flag"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	strategycache "github.com/strategy-cache/strategy-cache"
	"github.com/strategy-cache/strategy-cache/cache"
)

var (
	configFilenameFlag string
	portFlag           int
	originFlag         string
	strategyFlag       string
	providerFlag       string
	dbFilenameFlag     string
	verbosityTraceFlag bool
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.IntVar(&portFlag, "port", 8080, "Port to listen on")
	flag.StringVar(&originFlag, "origin", "", "Origin to fetch from (overrides config)")
	flag.StringVar(&strategyFlag, "strategy", strategycache.PolicyStaleWhileRevalidate, "Strategy to use when no config routes are given")
	flag.StringVar(&providerFlag, "provider", "sqlite", "Caching provider to use")
	flag.StringVar(&dbFilenameFlag, "db", "", "SQLite database file (in-memory if empty)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
}

// route pairs a path prefix with a constructed strategy. The first matching
// prefix wins, so order routes from most to least specific.
type route struct {
	prefix   string
	strategy strategycache.Strategy
}

// server hands incoming requests to the strategy of the first matching
// route and keeps background cache work alive through its registry.
type server struct {
	routes   []route
	registry *strategycache.Registry
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	strategy := s.match(r)
	if strategy == nil {
		http.NotFound(w, r)
		return
	}
	res, err := strategy.Handle(r, s.registry)
	if err != nil {
		log.Error().Err(err).Str("url", r.URL.String()).Msg("Could not get response")
		http.Error(w, "Could not get response", http.StatusBadGateway)
		return
	}
	if res.Body != nil {
		defer res.Body.Close()
	}
	copyHeader(w.Header(), res.Header)
	w.WriteHeader(res.StatusCode)
	bytesWritten, err := io.Copy(w, res.Body)
	if err != nil {
		log.Error().Err(err).Msg("Could not write response body to client")
	}
	log.Trace().Msgf("Wrote body (%d bytes)", bytesWritten)
}

func (s *server) match(r *http.Request) strategycache.Strategy {
	for _, rt := range s.routes {
		if strings.HasPrefix(r.URL.Path, rt.prefix) {
			return rt.strategy
		}
	}
	return nil
}

// originFetcher forwards requests to the configured origin.
type originFetcher struct {
	client    *http.Client
	originURL *url.URL
	host      string
}

func (f *originFetcher) Do(r *http.Request) (*http.Response, error) {
	uri := f.originURL.String() + r.URL.RequestURI()
	// need to specifically set body to nil on the outgoing request if content
	// is zero length, see https://github.com/golang/go/issues/16036
	body := r.Body
	if r.ContentLength == 0 {
		body = nil
	}
	req, err := http.NewRequest(r.Method, uri, body)
	if err != nil {
		return nil, err
	}
	if f.host != "" {
		req.Host = f.host
	}
	copyHeader(req.Header, r.Header)
	// do not forward connection header, this causes trouble
	req.Header.Del("Connection")
	return f.client.Do(req)
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		// some servers do not like the presence of these headers in the
		// downstream request
		if k != "X-Forwarded-For" && k != "X-Forwarded-Proto" && k != "X-Forwarded-Host" {
			for _, v := range vv {
				dst.Add(k, v)
			}
		}
	}
}

func main() {
	flag.Parse()

	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}
	log.Logger = log.Level(logLevel).Output(zerolog.ConsoleWriter{Out: os.Stdout})

	var config Config
	if configFilenameFlag != "" {
		var err error
		config, err = getConfig(configFilenameFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not read config")
		}
	}

	origin := config.Origin
	if originFlag != "" {
		origin = originFlag
	}
	if origin == "" {
		log.Fatal().Msg("Please specify origin")
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse origin")
	}

	// use configured provider, fail if none matches
	var storage cache.Storage
	switch providerFlag {
	case "sqlite":
		storage, err = cache.NewSQLiteStorage(dbFilenameFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not open sqlite storage")
		}
	case "memory":
		storage = cache.NewMemoryStorage()
	default:
		log.Fatal().Msgf("Unsupported cache provider: %s", providerFlag)
	}

	fetcher := &originFetcher{
		client: &http.Client{
			// do not follow redirects
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		originURL: originURL,
		host:      config.Host,
	}

	configuredRoutes := config.Routes
	if len(configuredRoutes) == 0 {
		configuredRoutes = []Route{{Prefix: "/", Strategy: strategyFlag}}
	}
	routes := make([]route, 0, len(configuredRoutes))
	for _, rc := range configuredRoutes {
		opts := rc.options()
		opts.Storage = storage
		opts.Fetcher = fetcher
		opts.Logger = &log.Logger
		strategy, err := strategycache.New(rc.Strategy, opts)
		if err != nil {
			log.Fatal().Err(err).Str("prefix", rc.Prefix).Msg("Could not construct strategy")
		}
		log.Info().Str("prefix", rc.Prefix).Str("strategy", rc.Strategy).Msg("Route configured")
		routes = append(routes, route{prefix: rc.Prefix, strategy: strategy})
	}

	registry := strategycache.NewRegistry(log.Logger)

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Handle("/*", &server{routes: routes, registry: registry})

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(portFlag),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Int("port", portFlag).Str("origin", origin).Msg("Listening")
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		// let in-flight cache writes and refreshes settle
		registry.Wait()
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}
}
