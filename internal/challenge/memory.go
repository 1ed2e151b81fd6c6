package challenge

import (
	"context"
	"sync"
	"time"
)

// Memory es el backend in-process del Store. Pensado para desarrollo y tests;
// en producción multi-instancia usar el backend Redis.
//
// Un único mutex protege el mapa: Consume es check-and-set bajo el lock, que
// es exactamente la atomicidad que el contrato exige.
type Memory struct {
	mu    sync.Mutex
	items map[string]*Challenge
	now   func() time.Time
}

// NewMemory crea un store en memoria.
func NewMemory() *Memory {
	return &Memory{
		items: make(map[string]*Challenge),
		now:   time.Now,
	}
}

// NewMemoryAt crea un store en memoria con un reloj inyectado (tests).
func NewMemoryAt(now func() time.Time) *Memory {
	m := NewMemory()
	if now != nil {
		m.now = now
	}
	return m
}

func (m *Memory) Put(ctx context.Context, ch *Challenge, ttl time.Duration) (string, error) {
	if ch.ID == "" {
		ch.ID = NewID()
	}
	now := m.now().UTC()
	ch.CreatedAt = now
	ch.ExpiresAt = now.Add(ttl)
	ch.Consumed = false

	cp := *ch
	m.mu.Lock()
	m.items[ch.ID] = &cp
	m.mu.Unlock()
	return ch.ID, nil
}

func (m *Memory) Get(ctx context.Context, id string) (*Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	if e.Expired(m.now()) {
		// expiry perezoso: vencido-sin-consumir equivale a NotFound
		delete(m.items, id)
		return nil, ErrNotFound
	}
	if e.Consumed {
		return nil, ErrAlreadyConsumed
	}
	if e.MaxAttempts > 0 && e.Attempts >= e.MaxAttempts {
		return nil, ErrTooManyAttempts
	}
	cp := *e
	return &cp, nil
}

func (m *Memory) Consume(ctx context.Context, id string) (*Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	if e.Consumed {
		return nil, ErrAlreadyConsumed
	}
	if e.Expired(m.now()) {
		delete(m.items, id)
		return nil, ErrExpired
	}
	if e.MaxAttempts > 0 && e.Attempts >= e.MaxAttempts {
		return nil, ErrTooManyAttempts
	}
	e.Consumed = true
	cp := *e
	return &cp, nil
}

func (m *Memory) Fail(ctx context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.items[id]
	if !ok {
		return 0, ErrNotFound
	}
	if e.Expired(m.now()) {
		delete(m.items, id)
		return 0, ErrNotFound
	}
	if e.Consumed {
		return e.Attempts, ErrAlreadyConsumed
	}
	e.Attempts++
	if e.MaxAttempts > 0 && e.Attempts >= e.MaxAttempts {
		return e.Attempts, ErrTooManyAttempts
	}
	return e.Attempts, nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.items, id)
	m.mu.Unlock()
	return nil
}

// Sweep remueve challenges vencidos. El barrido solo toca entradas ya expiradas,
// así que nunca puede interferir entre el Get y el Consume de una operación
// lógica: Consume valida frescura por su cuenta.
func (m *Memory) Sweep(ctx context.Context) (int, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, e := range m.items {
		if e.Expired(now) {
			delete(m.items, id)
			removed++
		}
	}
	return removed, nil
}

// Len retorna la cantidad de challenges vivos (para métricas y tests).
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
