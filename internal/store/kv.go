package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by KV.Get for missing keys.
var ErrNotFound = errors.New("key not found")

// KV is the small key-value surface the progress tracker and handle cache
// need. Implementations must be safe for concurrent use.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys returns the keys starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Options selects and configures a KV backend.
type Options struct {
	Backend       string // "sqlite", "json" or "redis"
	SQLitePath    string
	JSONPath      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// Open returns the KV backend named by opts.Backend.
func Open(ctx context.Context, opts Options) (KV, error) {
	switch opts.Backend {
	case "sqlite", "":
		return New(opts.SQLitePath)
	case "json":
		return OpenJSONFile(opts.JSONPath)
	case "redis":
		return OpenRedis(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.RedisPrefix)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}

// GetJSON decodes the value at key into T.
func GetJSON[T any](ctx context.Context, kv KV, key string) (T, error) {
	var v T
	data, err := kv.Get(ctx, key)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, nil
}

// PutJSON encodes v and stores it at key.
func PutJSON[T any](ctx context.Context, kv KV, key string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return kv.Put(ctx, key, data)
}
