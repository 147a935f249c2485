package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/practicedesk/internal/errors"
)

// Backend names a Store implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendFile   Backend = "file"
	BackendRedis  Backend = "redis"
)

// Options selects and configures a Store backend.
type Options struct {
	Backend     Backend
	BaseURL     string
	File        string
	Passphrase  string
	RedisURL    string
	RedisPrefix string
	RedisTTL    time.Duration
}

// DefaultFilePath returns the session file used for baseURL when no explicit
// path is configured.
func DefaultFilePath(baseURL string) (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "practicedesk", "session-"+Namespace(baseURL)+".json"), nil
}

// Open builds the Store described by opts. Redis connectivity is checked
// before returning.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil

	case BackendFile, "":
		path := opts.File
		if path == "" {
			p, err := DefaultFilePath(opts.BaseURL)
			if err != nil {
				return nil, errors.NewStoreError("open", err)
			}
			path = p
		}
		return NewFileStore(path, WithPassphrase(opts.Passphrase)), nil

	case BackendRedis:
		redisOpts, err := redis.ParseURL(opts.RedisURL)
		if err != nil {
			return nil, errors.NewStoreError("open", err).
				WithSuggestion("Set session.redis_url to a valid redis:// URL")
		}
		client := redis.NewClient(redisOpts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, errors.NewStoreError("connect", err)
		}
		return NewRedisStore(client, opts.RedisPrefix, Namespace(opts.BaseURL), opts.RedisTTL), nil

	default:
		return nil, errors.NewStoreError("open", fmt.Errorf("unknown session backend %q", opts.Backend)).
			WithSuggestion("Use one of: memory, file, redis")
	}
}

// Close releases resources held by store, if any.
func Close(store Store) error {
	if c, ok := store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
