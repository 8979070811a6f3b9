package interceptor

import (
	"errors"
	"net/http"

	"github.com/cygnal-app/interceptor/cache"
	cachekey "github.com/cygnal-app/interceptor/pkg/cache-key"
	"github.com/cygnal-app/interceptor/rfc9211"
)

// serveAsset answers from the current asset namespace and falls back to the network.
// Network responses for assets are never stored, the namespace only holds the precached manifest.
func (i *Interceptor) serveAsset(r *http.Request, cs *rfc9211.CacheStatus) (*http.Response, error) {
	if i.disableAssetCache {
		cs.Forward(rfc9211.FwdReasonBypass)
		i.metrics.assetMisses.Inc()
		return i.transport.RoundTrip(r)
	}

	key := cachekey.GetKey(r)
	entry, err := i.store.Get(r.Context(), i.assetNamespace, key)
	switch {
	case err == nil:
		cs.Hit()
		i.metrics.assetHits.Inc()
		return entryResponse(entry, r), nil
	case errors.Is(err, cache.ErrNotFound):
		cs.Forward(rfc9211.FwdReasonUriMiss)
	default:
		i.log.Warn().Err(err).Str("namespace", i.assetNamespace).Str("key", key).Msg("Could not read asset from cache")
		cs.Forward(rfc9211.FwdReasonMiss)
	}
	i.metrics.assetMisses.Inc()
	return i.transport.RoundTrip(r)
}
