package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrCacheMiss reports that a key is absent or expired.
var ErrCacheMiss = errors.New("cache: key not found")

// Service is the operation set shared by the memory, Redis and layered
// backends. Pattern operations return how many keys they touched.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) (int64, error)
	CountByPattern(ctx context.Context, pattern string) (int64, error)
	MSet(ctx context.Context, values map[string]interface{}, expiration time.Duration) error
	MGet(ctx context.Context, keys ...string) (map[string]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// encodeBody prepares a value for storage. Strings pass through untouched so
// pre-encoded payloads are not wrapped in a second JSON layer.
func encodeBody(value interface{}) ([]byte, error) {
	if s, ok := value.(string); ok {
		return []byte(s), nil
	}
	return json.Marshal(value)
}

// decodeBody fills dest from a stored body, mirroring encodeBody.
func decodeBody(body []byte, dest interface{}) error {
	if sp, ok := dest.(*string); ok {
		*sp = string(body)
		return nil
	}
	return json.Unmarshal(body, dest)
}

// MGetTyped fetches several keys at once and decodes each hit into T.
// Entries that are missing or fail to decode are dropped from the result.
func MGetTyped[T any](ctx context.Context, c Service, keys ...string) (map[string]T, error) {
	out := make(map[string]T, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	hits, err := c.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}
	for key, body := range hits {
		var v T
		if err := json.Unmarshal([]byte(body), &v); err != nil {
			continue
		}
		out[key] = v
	}
	return out, nil
}
