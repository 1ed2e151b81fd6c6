package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory implementa Client in-process sobre go-cache (con janitor propio).
type Memory struct {
	c      *gocache.Cache
	prefix string
}

// NewMemory crea un cache en memoria. El janitor de go-cache barre expirados
// cada minuto.
func NewMemory(prefix string) *Memory {
	return &Memory{
		c:      gocache.New(gocache.NoExpiration, time.Minute),
		prefix: prefix,
	}
}

func (m *Memory) key(k string) string { return m.prefix + k }

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	v, ok := m.c.Get(m.key(key))
	if !ok {
		return "", ErrNotFound
	}
	s, _ := v.(string)
	return s, nil
}

func (m *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	m.c.Set(m.key(key), value, ttl)
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.c.Delete(m.key(key))
	return nil
}

func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.c.Get(m.key(key))
	return ok, nil
}

func (m *Memory) TTL(ctx context.Context, key string) (time.Duration, error) {
	_, exp, ok := m.c.GetWithExpiration(m.key(key))
	if !ok || exp.IsZero() {
		return 0, nil
	}
	d := time.Until(exp)
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
func (m *Memory) Close() error                   { return nil }
