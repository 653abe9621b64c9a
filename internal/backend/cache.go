package backend

import (
	"encoding/json"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fidde/oxminer/pkg/models"
)

type cacheKey struct {
	session string
	filter  string
}

// modelCache holds filtered-model payloads. Payloads are immutable once
// stored.
type modelCache struct {
	entries *lru.Cache[cacheKey, []byte]
}

func newModelCache(size int) (*modelCache, error) {
	if size <= 0 {
		return nil, nil
	}
	entries, err := lru.New[cacheKey, []byte](size)
	if err != nil {
		return nil, err
	}
	return &modelCache{entries: entries}, nil
}

func keyFor(sessionKey string, req models.FilterRequest) (cacheKey, bool) {
	data, err := json.Marshal(req)
	if err != nil {
		return cacheKey{}, false
	}
	return cacheKey{session: sessionKey, filter: string(data)}, true
}

func (c *modelCache) get(key cacheKey) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	return c.entries.Get(key)
}

func (c *modelCache) add(key cacheKey, payload []byte) {
	if c == nil {
		return
	}
	c.entries.Add(key, payload)
}

// purge drops every entry of a session.
func (c *modelCache) purge(sessionKey string) {
	if c == nil {
		return
	}
	for _, key := range c.entries.Keys() {
		if key.session == sessionKey {
			c.entries.Remove(key)
		}
	}
}

func (c *modelCache) len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
