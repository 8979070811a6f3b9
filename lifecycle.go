package interceptor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"sync"

	"github.com/cygnal-app/interceptor/cache"
	cachekey "github.com/cygnal-app/interceptor/pkg/cache-key"
	snapshot "github.com/cygnal-app/interceptor/pkg/response-snapshot"

	"github.com/gobwas/glob"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInstallFailed = errors.New("install failed")
	ErrNotInstalled  = errors.New("current version is not installed")
)

// Phase is the state of the asset generation lifecycle.
type Phase int

const (
	Idle Phase = iota
	Installing
	Installed
	Activated
)

func (p Phase) String() string {
	switch p {
	case Installing:
		return "installing"
	case Installed:
		return "installed"
	case Activated:
		return "activated"
	default:
		return "idle"
	}
}

const defaultInstallConcurrency = 4

type lifecycle struct {
	mu    sync.Mutex
	phase Phase

	// resolved manifest URLs, without excluded paths
	urls        []string
	concurrency int
}

func (l *lifecycle) init(config Config, appOrigin string) error {
	base, err := url.Parse(appOrigin + "/")
	if err != nil {
		return err
	}
	excludes := make([]glob.Glob, 0, len(config.ManifestExclude))
	for _, pattern := range config.ManifestExclude {
		g, err := glob.Compile(pattern)
		if err != nil {
			return fmt.Errorf("manifest exclude %q: %w", pattern, err)
		}
		excludes = append(excludes, g)
	}

	seen := map[string]struct{}{}
	paths := append(append([]string(nil), config.Manifest...), "./")
	for _, p := range paths {
		if excluded(excludes, p) {
			continue
		}
		ref, err := url.Parse(p)
		if err != nil {
			return fmt.Errorf("manifest entry %q: %w", p, err)
		}
		key := cachekey.Canonical(base.ResolveReference(ref))
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		l.urls = append(l.urls, key)
	}

	l.concurrency = config.InstallConcurrency
	if l.concurrency < 1 {
		l.concurrency = defaultInstallConcurrency
	}
	return nil
}

func excluded(excludes []glob.Glob, path string) bool {
	for _, g := range excludes {
		if g.Match(path) {
			return true
		}
	}
	return false
}

func (l *lifecycle) setPhase(p Phase) {
	l.mu.Lock()
	l.phase = p
	l.mu.Unlock()
}

// Phase returns the current lifecycle phase.
func (i *Interceptor) Phase() Phase {
	i.lifecycle.mu.Lock()
	defer i.lifecycle.mu.Unlock()
	return i.lifecycle.phase
}

// ManifestURLs returns the URLs precached on install.
func (i *Interceptor) ManifestURLs() []string {
	return append([]string(nil), i.lifecycle.urls...)
}

// Install precaches the manifest into the current asset namespace.
// All assets are fetched before anything is written. If any fetch fails or
// returns a non-2xx status nothing is stored and the previous generation keeps serving.
// The new generation is ready as soon as Install returns.
func (i *Interceptor) Install(ctx context.Context) error {
	l := &i.lifecycle
	l.mu.Lock()
	previous := l.phase
	l.phase = Installing
	l.mu.Unlock()

	logger := i.log.With().Str("namespace", i.assetNamespace).Logger()
	logger.Info().Int("assets", len(l.urls)).Msg("Installing")

	entries := make([]cache.Entry, len(l.urls))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(l.concurrency)
	for idx, u := range l.urls {
		idx, u := idx, u
		eg.Go(func() error {
			e, err := i.fetchAsset(egCtx, u)
			if err != nil {
				return err
			}
			entries[idx] = e
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		l.setPhase(previous)
		logger.Error().Err(err).Msg("Install failed")
		return fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}

	if err := i.storeAssets(ctx, entries); err != nil {
		l.setPhase(previous)
		logger.Error().Err(err).Msg("Install failed")
		return fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}

	l.setPhase(Installed)
	logger.Info().Msg("Installed")
	return nil
}

// storeAssets writes the fetched assets into the asset namespace.
// A namespace created here is removed again when a write fails, so that a
// partial generation is never served. A namespace that already held this
// version keeps a complete set, every key is either old or rewritten.
func (i *Interceptor) storeAssets(ctx context.Context, entries []cache.Entry) error {
	existing, err := i.store.Namespaces(ctx)
	if err != nil {
		return err
	}
	created := !slices.Contains(existing, i.assetNamespace)
	if err := i.store.Open(ctx, i.assetNamespace); err != nil {
		return err
	}
	for _, e := range entries {
		if err := i.store.Put(ctx, i.assetNamespace, e); err != nil {
			if created {
				if delErr := i.store.DeleteNamespace(ctx, i.assetNamespace); delErr != nil {
					return errors.Join(err, delErr)
				}
			}
			return err
		}
	}
	return nil
}

func (i *Interceptor) fetchAsset(ctx context.Context, u string) (cache.Entry, error) {
	req, err := cachekey.GetRequestFromKey(u)
	if err != nil {
		return cache.Entry{}, err
	}
	res, err := i.transport.RoundTrip(req.WithContext(ctx))
	if err != nil {
		return cache.Entry{}, fmt.Errorf("fetch %s: %w", u, err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return cache.Entry{}, fmt.Errorf("fetch %s: status %d", u, res.StatusCode)
	}
	snap, err := snapshot.Capture(res)
	if err != nil {
		return cache.Entry{}, fmt.Errorf("fetch %s: %w", u, err)
	}
	i.log.Trace().Str("url", u).Int("bytes", len(snap.Body)).Msg("Fetched asset")
	return cache.Entry{
		URL:        u,
		StatusCode: snap.StatusCode,
		Header:     snap.Header,
		Body:       snap.Body,
		CachedAt:   i.now(),
	}, nil
}

// Activate deletes every namespace other than the current asset namespace and the tile namespace.
// Failures to delete a namespace are logged and do not stop the sweep, they are
// returned joined once all namespaces were handled. Activation is complete either way.
func (i *Interceptor) Activate(ctx context.Context) error {
	if i.Phase() == Idle {
		return ErrNotInstalled
	}
	namespaces, err := i.store.Namespaces(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, ns := range namespaces {
		if ns == i.assetNamespace || ns == i.tileNamespace {
			continue
		}
		if err := i.store.DeleteNamespace(ctx, ns); err != nil {
			i.log.Error().Err(err).Str("namespace", ns).Msg("Could not delete old namespace")
			errs = append(errs, fmt.Errorf("namespace %s: %w", ns, err))
			continue
		}
		i.log.Info().Str("namespace", ns).Msg("Deleted old namespace")
	}
	i.lifecycle.setPhase(Activated)
	return errors.Join(errs...)
}

// Start installs and then activates the current version.
// An install failure aborts before anything is deleted.
func (i *Interceptor) Start(ctx context.Context) error {
	if err := i.Install(ctx); err != nil {
		return err
	}
	return i.Activate(ctx)
}
