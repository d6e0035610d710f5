package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"reviewdraft/internal/draft/model"
	"reviewdraft/store"
)

// Latency bounds the simulated backend delay of each operation. Save picks a
// uniformly random delay in [SaveMin, SaveMax].
type Latency struct {
	Load    time.Duration
	SaveMin time.Duration
	SaveMax time.Duration
	Delete  time.Duration
}

// DefaultLatency mirrors the browser mock the dashboard shipped with.
var DefaultLatency = Latency{
	Load:    300 * time.Millisecond,
	SaveMin: 300 * time.Millisecond,
	SaveMax: 800 * time.Millisecond,
	Delete:  200 * time.Millisecond,
}

type Op string

const (
	OpLoad   Op = "load"
	OpSave   Op = "save"
	OpDelete Op = "delete"
)

var errInjected = errors.New("injected storage failure")

// MemoryStore is a keyed in-process draft store with simulated latency and
// failure, for development and tests.
type MemoryStore struct {
	prefix  string
	latency Latency
	now     func() time.Time

	mu          sync.Mutex
	drafts      map[string]store.Draft
	decisions   []RecordedDecision
	failureRate float64
	failNext    map[Op]int
}

type RecordedDecision struct {
	RecordID string
	Decision model.Decision
	Notes    string
}

type MemoryOption func(*MemoryStore)

func WithLatency(l Latency) MemoryOption {
	return func(m *MemoryStore) { m.latency = l }
}

func WithFailureRate(rate float64) MemoryOption {
	return func(m *MemoryStore) { m.failureRate = rate }
}

func WithNow(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) { m.now = now }
}

func NewMemoryStore(prefix string, opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		prefix:   prefix,
		now:      time.Now,
		drafts:   make(map[string]store.Draft),
		failNext: make(map[Op]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FailNext makes the next n calls of op fail.
func (m *MemoryStore) FailNext(op Op, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext[op] += n
}

func (m *MemoryStore) Load(ctx context.Context, recordID string) (*store.Draft, error) {
	if err := m.wait(ctx, m.latency.Load); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrLoadFailure, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shouldFail(OpLoad) {
		return nil, fmt.Errorf("%w: %w", model.ErrLoadFailure, errInjected)
	}
	d, ok := m.drafts[Key(m.prefix, recordID)]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *MemoryStore) Save(ctx context.Context, recordID, content string) (*store.Draft, error) {
	if err := m.wait(ctx, m.saveDelay()); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrSaveFailure, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shouldFail(OpSave) {
		return nil, fmt.Errorf("%w: %w", model.ErrSaveFailure, errInjected)
	}
	d := store.Draft{RecordID: recordID, Content: content, UpdatedAt: m.now()}
	m.drafts[Key(m.prefix, recordID)] = d
	return &d, nil
}

func (m *MemoryStore) Delete(ctx context.Context, recordID string) error {
	if err := m.wait(ctx, m.latency.Delete); err != nil {
		return fmt.Errorf("%w: %w", model.ErrDeleteFailure, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shouldFail(OpDelete) {
		return fmt.Errorf("%w: %w", model.ErrDeleteFailure, errInjected)
	}
	delete(m.drafts, Key(m.prefix, recordID))
	return nil
}

func (m *MemoryStore) RecordDecision(_ context.Context, recordID string, decision model.Decision, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, RecordedDecision{RecordID: recordID, Decision: decision, Notes: notes})
	return nil
}

// Decisions returns a copy of every decision recorded so far.
func (m *MemoryStore) Decisions() []RecordedDecision {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedDecision, len(m.decisions))
	copy(out, m.decisions)
	return out
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.drafts)
}

// shouldFail must be called with mu held.
func (m *MemoryStore) shouldFail(op Op) bool {
	if m.failNext[op] > 0 {
		m.failNext[op]--
		return true
	}
	return m.failureRate > 0 && rand.Float64() < m.failureRate
}

func (m *MemoryStore) saveDelay() time.Duration {
	lo, hi := m.latency.SaveMin, m.latency.SaveMax
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}

func (m *MemoryStore) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
