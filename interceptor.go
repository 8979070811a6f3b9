// Package interceptor is a caching layer between an application's HTTP client and the network.
//
// Every outbound request is classified by origin and path. Map tiles are
// cached with a lifetime taken from the response headers or the settings,
// application assets are served cache-first from a namespace tied to the
// application version, and everything else goes straight to the network.
//
// The layer is an http.RoundTripper and can also be mounted as a forward proxy handler.
package interceptor

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cygnal-app/interceptor/cache"
	router "github.com/cygnal-app/interceptor/pkg/request-router"
	"github.com/cygnal-app/interceptor/rfc9211"
	"github.com/cygnal-app/interceptor/settings"

	"github.com/VictoriaMetrics/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultAppName is used for namespace names when Config.AppName is empty.
const DefaultAppName = "app"

var (
	ErrNoStore = errors.New("no cache store configured")
	// ErrReservedVersion is returned for a version label whose asset namespace is the tile namespace.
	ErrReservedVersion = errors.New("version label is reserved")
)

type Config struct {
	// Storage for cache entries.
	Store cache.Store
	// Source of the tile caching duration and the known tile servers.
	// It is queried on every request.
	Settings settings.Provider
	// Origin of the application, e.g. https://app.example.
	// Origins with paths are not supported, the path is ignored.
	AppOrigin string
	// Name used as namespace prefix.
	AppName string
	// Version label of the application. Changing it rotates the asset namespace.
	Version string
	// Path prefix of the application API. Defaults to /api.
	APIPrefix string
	// Asset paths to precache on install, relative to the application origin.
	// The application root is always added.
	Manifest []string
	// Glob patterns of manifest paths to skip, e.g. "*hot-update.json".
	ManifestExclude []string
	// Number of concurrent manifest fetches. Defaults to 4.
	InstallConcurrency int
	// Transport used for network requests. http.DefaultTransport is used if nil.
	Transport http.RoundTripper
	// Maximum tile fetches per second. Zero disables rate limiting.
	TileRateLimit float64
	// Burst size of the tile rate limiter. Defaults to 1.
	TileBurst int
	// Never serve assets from the cache, e.g. during development.
	// Tiles are still cached.
	DisableAssetCache bool
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
	// Clock. time.Now is used if nil.
	Now func() time.Time
}

type Interceptor struct {
	store     cache.Store
	settings  settings.Provider
	router    *router.Router
	transport http.RoundTripper
	limiter   *rate.Limiter
	log       zerolog.Logger
	now       func() time.Time
	metrics   *counters

	assetNamespace string
	tileNamespace  string

	lifecycle lifecycle

	disableAssetCache bool
}

// New creates the interception layer.
// The lifecycle is not started, call Start (or Install and Activate) to precache the assets.
func New(config Config) (*Interceptor, error) {
	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	} else {
		logger = *config.Logger
	}

	if config.Store == nil {
		return nil, ErrNoStore
	}
	if config.Settings == nil {
		config.Settings = &settings.Static{}
	}
	rt, err := router.New(config.AppOrigin, config.APIPrefix, config.Settings)
	if err != nil {
		return nil, err
	}
	if config.AppName == "" {
		config.AppName = DefaultAppName
	}
	if cache.AssetNamespace(config.AppName, config.Version) == cache.TileNamespace(config.AppName) {
		return nil, fmt.Errorf("%w: %q", ErrReservedVersion, config.Version)
	}
	if config.Transport == nil {
		config.Transport = http.DefaultTransport
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	// create a child logger and add defaults
	logger = logger.With().
		Str("origin", rt.AppOrigin()).
		Str("version", config.Version).
		Logger()

	i := &Interceptor{
		store:             config.Store,
		settings:          config.Settings,
		router:            rt,
		transport:         config.Transport,
		log:               logger,
		now:               config.Now,
		metrics:           newCounters(),
		assetNamespace:    cache.AssetNamespace(config.AppName, config.Version),
		tileNamespace:     cache.TileNamespace(config.AppName),
		disableAssetCache: config.DisableAssetCache,
	}
	if config.TileRateLimit > 0 {
		burst := config.TileBurst
		if burst < 1 {
			burst = 1
		}
		i.limiter = rate.NewLimiter(rate.Limit(config.TileRateLimit), burst)
	}
	if err := i.lifecycle.init(config, rt.AppOrigin()); err != nil {
		return nil, err
	}
	return i, nil
}

// AssetNamespace returns the name of the namespace holding the current asset generation.
func (i *Interceptor) AssetNamespace() string {
	return i.assetNamespace
}

// TileNamespace returns the name of the namespace holding the tiles.
func (i *Interceptor) TileNamespace() string {
	return i.tileNamespace
}

// Metrics returns the counters of this instance.
func (i *Interceptor) Metrics() *metrics.Set {
	return i.metrics.set
}

// Client returns an HTTP client that sends its requests through the layer.
func (i *Interceptor) Client() *http.Client {
	return &http.Client{Transport: i}
}

// RoundTrip implements the http.RoundTripper interface.
// It is the main entry point for intercepted requests.
func (i *Interceptor) RoundTrip(r *http.Request) (*http.Response, error) {
	res, cs, err := i.serve(r)
	i.logRequest(r, cs, err)
	return res, err
}

// serve dispatches the request to the handler of its class.
func (i *Interceptor) serve(r *http.Request) (*http.Response, rfc9211.CacheStatus, error) {
	class := i.router.Classify(r)
	switch class {
	case router.Tile:
		cs := rfc9211.CacheStatus{Cache: "Tiles"}
		res, err := i.serveTile(r, &cs)
		return res, cs, err
	case router.Asset:
		cs := rfc9211.CacheStatus{Cache: "Assets"}
		res, err := i.serveAsset(r, &cs)
		return res, cs, err
	default:
		cs := rfc9211.CacheStatus{Detail: class.String()}
		cs.Forward(rfc9211.FwdReasonBypass)
		if class == router.Ignore && r.Method != http.MethodGet && r.Method != "" {
			cs.Forward(rfc9211.FwdReasonMethod)
		}
		i.metrics.passthrough.Inc()
		res, err := i.transport.RoundTrip(r)
		return res, cs, err
	}
}

func (i *Interceptor) logRequest(r *http.Request, cs rfc9211.CacheStatus, err error) {
	isHit := 0
	if cs.IsHit() {
		isHit = 1
	}
	event := i.log.Debug()
	if err != nil {
		event = i.log.Warn().Err(err)
	}
	event.
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Str("sourceIp", getRequestSourceIp(r)).
		Str("cache", cs.Cache).
		Str("status", string(cs.Status)).
		Str("fwd", string(cs.FwdReason)).
		Bool("stored", cs.Stored).
		Int("ttl", cs.TimeToLive).
		Int("hit", isHit).
		Msg("Sending response to client")
}

func getRequestSourceIp(r *http.Request) string {
	// RemoteAddr is in the format:
	// 1.2.3.4:10000 for ipv4
	// [1:2:3]:10000 for ipv6
	// it is empty for client requests
	ipAndPort := r.RemoteAddr
	portSepIdx := strings.LastIndex(ipAndPort, ":")
	// if not found, return
	if portSepIdx < 0 {
		return ipAndPort
	}
	return ipAndPort[:portSepIdx]
}

// overrideSeconds reads the tile caching duration from the settings.
func (i *Interceptor) overrideSeconds() int64 {
	d, ok := i.settings.TileCachingDuration()
	if !ok {
		return settings.DefaultTileCachingDuration
	}
	return d
}
