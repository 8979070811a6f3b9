package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cygnal-app/interceptor"
	"github.com/cygnal-app/interceptor/settings"

	"github.com/VictoriaMetrics/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	// CLI flags
	configFlag         string
	listenFlag         string
	adminFlag          string
	originFlag         string
	versionFlag        string
	storeFlag          string
	dbFilenameFlag     string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFlag, "config", "", "YAML config file")
	flag.StringVar(&listenFlag, "listen", "", "Address of the proxy listener (default :8080)")
	flag.StringVar(&adminFlag, "admin", "", "Address of the admin listener (default 127.0.0.1:8081)")
	flag.StringVar(&originFlag, "origin", "", "Application origin URL")
	flag.StringVar(&versionFlag, "app-version", "", "Application version label, changing it rotates the asset cache")
	flag.StringVar(&storeFlag, "store", "", "Cache store backend: memory, sqlite, leveldb or s3")
	flag.StringVar(&dbFilenameFlag, "db", "", "Cache DB path (use 'memory' for in-memory sqlite)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Timestamp().Str("build", version).Logger()

	config, err := getConfig(configFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not read config")
	}
	applyFlags(&config)
	config.defaults()
	if err := config.validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	store, err := openStore(config.Store)
	if err != nil {
		log.Fatal().Err(err).Str("backend", config.Store.Backend).Msg("Could not open cache store")
	}
	defer store.Close()

	provider, err := config.settingsProvider(func(path string) settings.Provider {
		return settings.NewFile(path, log.Logger)
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid tile settings")
	}

	i, err := interceptor.New(interceptor.Config{
		Store:             store,
		Settings:          provider,
		AppOrigin:         config.Origin,
		AppName:           config.App,
		Version:           config.Version,
		APIPrefix:         config.APIPrefix,
		Manifest:          config.Manifest,
		ManifestExclude:   config.ManifestExclude,
		TileRateLimit:     config.TileRateLimit,
		TileBurst:         config.TileBurst,
		DisableAssetCache: config.DisableAssets,
		Logger:            &log.Logger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Could not create interceptor")
	}
	metrics.RegisterSet(i.Metrics())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// a failed install keeps the previous generation, so the proxy still starts
	if err := i.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Lifecycle start failed")
	}

	messages := make(chan []byte, 16)
	go i.Listen(ctx, messages)

	proxyServer := &http.Server{Addr: config.Listen, Handler: i}
	adminServer := &http.Server{Addr: config.Admin, Handler: adminRouter(ctx, i, messages)}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, srv := range []*http.Server{proxyServer, adminServer} {
		srv := srv
		eg.Go(func() error {
			log.Info().Str("addr", srv.Addr).Msg("Listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return errors.Join(
			proxyServer.Shutdown(shutdownCtx),
			adminServer.Shutdown(shutdownCtx),
		)
	})

	if err := eg.Wait(); err != nil {
		log.Error().Err(err).Msg("Server error")
	}
	log.Info().Msg("Stopped")
}

// applyFlags overrides config file values with the flags that were set.
func applyFlags(c *Config) {
	if listenFlag != "" {
		c.Listen = listenFlag
	}
	if adminFlag != "" {
		c.Admin = adminFlag
	}
	if originFlag != "" {
		c.Origin = originFlag
	}
	if versionFlag != "" {
		c.Version = versionFlag
	}
	if storeFlag != "" {
		c.Store.Backend = storeFlag
	}
	if dbFilenameFlag != "" {
		c.Store.Path = dbFilenameFlag
	}
}
