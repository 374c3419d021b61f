package kairos

import (
	"context"
	"encoding/json"
	"fmt"
)

// GetJSON reads key from the named cache and decodes it into T.
func GetJSON[T any](s *System, cache, key string) (T, error) {
	var v T
	data, err := s.Get(cache, key)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("kairos: decode %s/%s: %w", cache, key, err)
	}
	return v, nil
}

// SetJSON encodes value and writes it to the named cache.
func SetJSON(s *System, cache, key string, value any, opts ...CacheOption) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kairos: encode %s/%s: %w", cache, key, err)
	}
	return s.Set(cache, key, data, opts...)
}

// FetchJSON is Fetch with the value decoded into T. A fallback value that
// accompanies a permanent failure is decoded as well, so callers should
// check the Source before trusting it.
func FetchJSON[T any](ctx context.Context, s *System, req Request) (T, Source, error) {
	var v T
	res, err := s.Fetch(ctx, req)
	if res.Value == nil {
		return v, res.Source, err
	}
	if derr := json.Unmarshal(res.Value, &v); derr != nil {
		return v, res.Source, fmt.Errorf("kairos: decode %s/%s: %w", req.Cache, req.Key, derr)
	}
	return v, res.Source, err
}
