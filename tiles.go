package interceptor

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/cygnal-app/interceptor/cache"
	cachekey "github.com/cygnal-app/interceptor/pkg/cache-key"
	"github.com/cygnal-app/interceptor/pkg/expiration"
	snapshot "github.com/cygnal-app/interceptor/pkg/response-snapshot"
	"github.com/cygnal-app/interceptor/rfc9211"
)

// serveTile answers a tile request from the tile namespace, or from the network
// when there is no fresh copy. Network responses are stored when either the
// headers or the settings grant them a positive lifetime.
func (i *Interceptor) serveTile(r *http.Request, cs *rfc9211.CacheStatus) (*http.Response, error) {
	ctx := r.Context()
	key := cachekey.GetKey(r)
	logger := i.log.With().Str("namespace", i.tileNamespace).Str("key", key).Logger()

	entry, err := i.store.Get(ctx, i.tileNamespace, key)
	switch {
	case err == nil:
		now := i.now()
		ttl := expiration.EffectiveTTL(entry.CacheControlSeconds, i.overrideSeconds())
		if expiration.IsFresh(entry.CachedAt, now, ttl) {
			cs.Hit()
			cs.TimeToLive = int(expiration.Remaining(entry.CachedAt, now, ttl))
			i.metrics.tileHits.Inc()
			logger.Trace().Msg("Serving tile from cache")
			return entryResponse(entry, r), nil
		}
		cs.Forward(rfc9211.FwdReasonStale)
		// expired entries are evicted before going to the network
		if err := i.store.Delete(ctx, i.tileNamespace, key); err != nil {
			logger.Warn().Err(err).Msg("Could not evict stale tile")
		} else {
			i.metrics.tileEvictions.Inc()
		}
	case errors.Is(err, cache.ErrNotFound):
		cs.Forward(rfc9211.FwdReasonUriMiss)
	default:
		logger.Warn().Err(err).Msg("Could not read tile from cache")
		cs.Forward(rfc9211.FwdReasonMiss)
	}
	i.metrics.tileMisses.Inc()

	res, err := i.fetchTile(r, key)
	if err != nil {
		return nil, err
	}
	// only complete responses are worth replaying
	if res.StatusCode != http.StatusOK {
		logger.Trace().Int("statusCode", res.StatusCode).Msg("Not storing tile")
		return res, nil
	}

	now := i.now()
	headerSeconds := expiration.HeaderSeconds(res.Header, now)
	override := i.overrideSeconds()
	if !expiration.Cacheable(headerSeconds, override) {
		logger.Trace().Msg("Tile has no lifetime, not storing")
		return res, nil
	}

	snap, err := snapshot.Capture(res)
	if err != nil {
		res.Body.Close()
		return nil, err
	}
	entry = cache.Entry{
		URL:                 key,
		StatusCode:          snap.StatusCode,
		Header:              snap.Header,
		Body:                snap.Body,
		CachedAt:            now,
		CacheControlSeconds: headerSeconds,
	}
	if err := i.store.Put(ctx, i.tileNamespace, entry); err != nil {
		logger.Warn().Err(err).Msg("Could not store tile")
		return res, nil
	}
	cs.Stored = true
	cs.TimeToLive = int(expiration.EffectiveTTL(headerSeconds, override))
	i.metrics.tileStores.Inc()
	logger.Trace().Int64("cacheControlSeconds", headerSeconds).Int64("override", override).Msg("Stored tile")
	return res, nil
}

// fetchTile requests the canonical URL from the network, respecting the tile rate limit.
func (i *Interceptor) fetchTile(r *http.Request, key string) (*http.Response, error) {
	ctx := r.Context()
	if i.limiter != nil {
		if err := i.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	u, err := url.Parse(key)
	if err != nil {
		return nil, err
	}
	req := r.Clone(ctx)
	req.URL = u
	req.Host = ""
	req.RequestURI = ""
	return i.transport.RoundTrip(req)
}

// entryResponse rebuilds the stored response for the request.
func entryResponse(e cache.Entry, r *http.Request) *http.Response {
	s := snapshot.Snapshot{
		StatusCode: e.StatusCode,
		Header:     e.Header,
		Body:       e.Body,
	}
	return s.Response(r)
}
