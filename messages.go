package interceptor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cygnal-app/interceptor/cache"
	"github.com/cygnal-app/interceptor/pkg/expiration"
)

// ActionPurgeExpiredTiles asks for a sweep of the tile namespace.
const ActionPurgeExpiredTiles = "PURGE_EXPIRED_TILES"

var (
	ErrMalformedCommand = errors.New("malformed command")
	ErrUnknownAction    = errors.New("unknown command action")
)

// Command is a message sent to the layer by the application.
type Command struct {
	Action string `json:"action"`
}

// HandleMessage decodes and executes a command.
// Invalid messages are logged and rejected without touching the cache.
func (i *Interceptor) HandleMessage(ctx context.Context, payload []byte) error {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		err = fmt.Errorf("%w: %v", ErrMalformedCommand, err)
		i.log.Error().Err(err).Msg("Ignoring message")
		return err
	}
	switch cmd.Action {
	case ActionPurgeExpiredTiles:
		n, err := i.PurgeExpiredTiles(ctx)
		i.log.Info().Int("purged", n).Msg("Purged expired tiles")
		return err
	case "":
		err := fmt.Errorf("%w: missing action", ErrMalformedCommand)
		i.log.Error().Err(err).Msg("Ignoring message")
		return err
	default:
		err := fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
		i.log.Error().Err(err).Msg("Ignoring message")
		return err
	}
}

// PurgeExpiredTiles deletes every tile whose lifetime has passed, using the current override.
// Entries that cannot be read or deleted are logged and skipped.
// It returns the number of deleted entries.
func (i *Interceptor) PurgeExpiredTiles(ctx context.Context) (int, error) {
	keys, err := i.store.Keys(ctx, i.tileNamespace)
	if err != nil {
		return 0, err
	}
	override := i.overrideSeconds()
	purged := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		entry, err := i.store.Get(ctx, i.tileNamespace, key)
		if errors.Is(err, cache.ErrNotFound) {
			// removed since listing
			continue
		}
		if err != nil {
			i.log.Warn().Err(err).Str("key", key).Msg("Could not read tile during purge")
			continue
		}
		ttl := expiration.EffectiveTTL(entry.CacheControlSeconds, override)
		if expiration.IsFresh(entry.CachedAt, i.now(), ttl) {
			continue
		}
		if err := i.store.Delete(ctx, i.tileNamespace, key); err != nil {
			i.log.Warn().Err(err).Str("key", key).Msg("Could not delete expired tile")
			continue
		}
		purged++
		i.metrics.purged.Inc()
	}
	return purged, nil
}

// Listen handles the messages from the channel in turn,
// until the channel is closed or the context is done.
func (i *Interceptor) Listen(ctx context.Context, messages <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			// errors are logged by HandleMessage
			_ = i.HandleMessage(ctx, msg)
		}
	}
}
