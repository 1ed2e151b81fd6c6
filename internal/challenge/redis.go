package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// Redis es el backend distribuido del Store. La expiración la maneja Redis por
// TTL nativo (no requiere sweep). La atomicidad de Consume y Fail se garantiza
// con scripts Lua: un único round-trip hace el check-and-set completo.
type Redis struct {
	c      *rdb.Client
	prefix string
}

// NewRedis crea un store sobre un cliente go-redis.
func NewRedis(client *rdb.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "chal:"
	}
	return &Redis{c: client, prefix: prefix}
}

func (r *Redis) key(id string) string  { return r.prefix + id }
func (r *Redis) tomb(id string) string { return r.prefix + "used:" + id }

// consumeScript: borra el challenge y deja un tombstone para distinguir
// "ya consumido" de "nunca existió". KEYS[1]=challenge, KEYS[2]=tombstone.
var consumeScript = rdb.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 then
  return "CONSUMED"
end
local v = redis.call("GET", KEYS[1])
if not v then
  return false
end
redis.call("DEL", KEYS[1])
redis.call("SET", KEYS[2], "1", "EX", ARGV[1])
return v
`)

// failScript: incrementa attempts dentro del JSON guardado.
// Retorna el contador nuevo, o los strings de estado. Al agotar el
// presupuesto el challenge queda guardado hasta su TTL: el lockout tiene
// que seguir reportándose como tal, igual que en el backend de memoria.
var failScript = rdb.NewScript(`
local v = redis.call("GET", KEYS[1])
if not v then
  if redis.call("EXISTS", KEYS[2]) == 1 then
    return "CONSUMED"
  end
  return false
end
local ch = cjson.decode(v)
local max = ch.max_attempts or 0
if max > 0 and (ch.attempts or 0) >= max then
  return "LOCKED"
end
ch.attempts = (ch.attempts or 0) + 1
local ttl = redis.call("TTL", KEYS[1])
redis.call("SET", KEYS[1], cjson.encode(ch))
if ttl > 0 then
  redis.call("EXPIRE", KEYS[1], ttl)
end
if max > 0 and ch.attempts >= max then
  return "LOCKED"
end
return ch.attempts
`)

func (r *Redis) Put(ctx context.Context, ch *Challenge, ttl time.Duration) (string, error) {
	if ch.ID == "" {
		ch.ID = NewID()
	}
	now := time.Now().UTC()
	ch.CreatedAt = now
	ch.ExpiresAt = now.Add(ttl)
	ch.Consumed = false

	b, err := json.Marshal(ch)
	if err != nil {
		return "", fmt.Errorf("challenge: marshal: %w", err)
	}
	if err := r.c.Set(ctx, r.key(ch.ID), b, ttl).Err(); err != nil {
		return "", fmt.Errorf("challenge: redis set: %w", err)
	}
	return ch.ID, nil
}

func (r *Redis) Get(ctx context.Context, id string) (*Challenge, error) {
	b, err := r.c.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, rdb.Nil) {
		if r.c.Exists(ctx, r.tomb(id)).Val() == 1 {
			return nil, ErrAlreadyConsumed
		}
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("challenge: redis get: %w", err)
	}
	var ch Challenge
	if err := json.Unmarshal(b, &ch); err != nil {
		return nil, fmt.Errorf("challenge: unmarshal: %w", err)
	}
	if ch.Expired(time.Now()) {
		return nil, ErrNotFound
	}
	if ch.MaxAttempts > 0 && ch.Attempts >= ch.MaxAttempts {
		return nil, ErrTooManyAttempts
	}
	return &ch, nil
}

func (r *Redis) Consume(ctx context.Context, id string) (*Challenge, error) {
	// el tombstone vive lo que viviría el challenge más un margen
	res, err := consumeScript.Run(ctx, r.c, []string{r.key(id), r.tomb(id)}, int((10 * time.Minute).Seconds())).Result()
	if errors.Is(err, rdb.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("challenge: redis consume: %w", err)
	}
	s, _ := res.(string)
	if s == "CONSUMED" {
		return nil, ErrAlreadyConsumed
	}
	var ch Challenge
	if err := json.Unmarshal([]byte(s), &ch); err != nil {
		return nil, fmt.Errorf("challenge: unmarshal: %w", err)
	}
	if ch.Expired(time.Now()) {
		return nil, ErrExpired
	}
	if ch.MaxAttempts > 0 && ch.Attempts >= ch.MaxAttempts {
		return nil, ErrTooManyAttempts
	}
	ch.Consumed = true
	return &ch, nil
}

func (r *Redis) Fail(ctx context.Context, id string) (int, error) {
	res, err := failScript.Run(ctx, r.c, []string{r.key(id), r.tomb(id)}).Result()
	if errors.Is(err, rdb.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("challenge: redis fail: %w", err)
	}
	switch v := res.(type) {
	case string:
		if v == "CONSUMED" {
			return 0, ErrAlreadyConsumed
		}
		return 0, ErrTooManyAttempts // "LOCKED"
	case int64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("challenge: unexpected script result %T", res)
	}
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	return r.c.Del(ctx, r.key(id)).Err()
}
