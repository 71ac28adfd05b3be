// Package handles maps account handles to numeric user ids.
package handles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ibeckermayer/threadscrape/internal/config"
	"github.com/ibeckermayer/threadscrape/internal/store"
)

// ErrUnknownHandle is returned when neither the seed table nor the cache
// knows a handle.
var ErrUnknownHandle = errors.New("unknown handle")

const keyPrefix = "handles/"

// Resolver looks handles up in a seed table first and a KV cache second.
// Seed ids are written through to the cache on every lookup so a stale
// cached id is replaced.
type Resolver struct {
	seeds  map[string]string
	cache  store.KV
	logger zerolog.Logger
}

// NewResolver creates a resolver. Seed keys are normalized.
func NewResolver(seeds map[string]string, cache store.KV, logger zerolog.Logger) *Resolver {
	norm := make(map[string]string, len(seeds))
	for h, id := range seeds {
		norm[config.NormalizeHandle(h)] = strings.TrimSpace(id)
	}
	return &Resolver{
		seeds:  norm,
		cache:  cache,
		logger: logger.With().Str("component", "handles").Logger(),
	}
}

// Resolve returns the user id for handle.
func (r *Resolver) Resolve(ctx context.Context, handle string) (string, error) {
	username := config.NormalizeHandle(handle)
	if username == "" {
		return "", fmt.Errorf("%w: empty handle", ErrUnknownHandle)
	}

	if id, ok := r.seeds[username]; ok && id != "" {
		if err := store.PutJSON(ctx, r.cache, keyPrefix+username, id); err != nil {
			r.logger.Warn().Err(err).Str("handle", username).Msg("failed to cache seed id")
		}
		r.logger.Debug().Str("handle", username).Str("user_id", id).Msg("using seed id")
		return id, nil
	}

	id, err := store.GetJSON[string](ctx, r.cache, keyPrefix+username)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrUnknownHandle, username)
	}
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", username, err)
	}
	r.logger.Debug().Str("handle", username).Str("user_id", id).Msg("using cached id")
	return id, nil
}

// Remember caches an id learned elsewhere, e.g. from a fetched timeline.
func (r *Resolver) Remember(ctx context.Context, handle, id string) error {
	username := config.NormalizeHandle(handle)
	if username == "" || id == "" {
		return nil
	}
	return store.PutJSON(ctx, r.cache, keyPrefix+username, id)
}

// Cached lists the handles in the cache.
func (r *Resolver) Cached(ctx context.Context) ([]string, error) {
	keys, err := r.cache.Keys(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = strings.TrimPrefix(k, keyPrefix)
	}
	return out, nil
}

// Clear empties the cache. Seeds are unaffected.
func (r *Resolver) Clear(ctx context.Context) (int, error) {
	keys, err := r.cache.Keys(ctx, keyPrefix)
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := r.cache.Delete(ctx, k); err != nil {
			return 0, err
		}
	}
	r.logger.Info().Int("entries", len(keys)).Msg("handle cache cleared")
	return len(keys), nil
}
