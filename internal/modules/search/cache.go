package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisc "github.com/pilling-app/pilling-core/internal/pkg/redis"
)

// Cache is the short-TTL memoization layer in front of the medicine store,
// keyed by the composite search string. It only short-circuits repeats of the
// exact same query; the store stays the source of truth.
type Cache struct {
	rc *redisc.Client
}

func NewCache(rc *redisc.Client) *Cache { return &Cache{rc: rc} }

func nameSearchKey(query, shape string) string {
	return fmt.Sprintf("medicine_search_%s_%s", query, shape)
}

func symptomSearchKey(query, shape string) string {
	return fmt.Sprintf("symptom_search_%s_%s", query, shape)
}

// Get loads a cached result list into dest. Returns false on miss.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := c.rc.Get(ctx, key)
	if err != nil || raw == "" {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores a result list under the composite key with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rc.Set(ctx, key, data, ttl)
}
