// Package testutil provides in-memory doubles of the metadata backend and a
// controllable clock.
package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/FreePeak/dataverse-metadata-mcp/internal/domain"
)

// FakeClock is a clock whose After advances time immediately.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a clock starting at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After advances the clock by d and returns a channel that already fired.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// EnvironmentBehavior controls how FakeBackend sessions for one environment act.
type EnvironmentBehavior struct {
	// ConnectErr fails Connect itself.
	ConnectErr error
	// NeverReady keeps sessions in the not-ready state.
	NeverReady bool
	// ReadyAfterPolls makes IsReady return true only after this many calls.
	ReadyAfterPolls int
	// LastError is reported by sessions that are not ready.
	LastError string

	OrganizationName string
	Version          string

	Entities      []domain.EntityMetadata
	Attributes    map[string][]domain.AttributeMetadata
	Relationships map[string][]domain.RelationshipMetadata
	MetadataErr   error
}

// FakeBackend is an in-memory MetadataBackend.
type FakeBackend struct {
	mu        sync.Mutex
	behaviors map[string]EnvironmentBehavior
	sessions  []*FakeSession
	gate      chan struct{}
	started   chan string

	connects int64
}

// NewFakeBackend creates a backend whose sessions are ready immediately.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		behaviors: make(map[string]EnvironmentBehavior),
		started:   make(chan string, 64),
	}
}

// SetBehavior configures sessions opened for the named environment.
func (b *FakeBackend) SetBehavior(env string, behavior EnvironmentBehavior) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.behaviors[env] = behavior
}

// Hold makes Connect block until Release is called or its context ends.
func (b *FakeBackend) Hold() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gate = make(chan struct{})
}

// Release unblocks every Connect waiting on Hold.
func (b *FakeBackend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gate != nil {
		close(b.gate)
		b.gate = nil
	}
}

// Started receives the environment name every time Connect is entered.
func (b *FakeBackend) Started() <-chan string {
	return b.started
}

// ConnectCount returns how many times Connect was called.
func (b *FakeBackend) ConnectCount() int {
	return int(atomic.LoadInt64(&b.connects))
}

// Sessions returns every session opened so far.
func (b *FakeBackend) Sessions() []*FakeSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*FakeSession, len(b.sessions))
	copy(out, b.sessions)
	return out
}

// Connect implements domain.MetadataBackend.
func (b *FakeBackend) Connect(ctx context.Context, params domain.ConnectionParams) (domain.Session, error) {
	atomic.AddInt64(&b.connects, 1)

	b.mu.Lock()
	gate := b.gate
	behavior := b.behaviors[params.EnvironmentName]
	b.mu.Unlock()

	select {
	case b.started <- params.EnvironmentName:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if behavior.ConnectErr != nil {
		return nil, behavior.ConnectErr
	}

	session := &FakeSession{
		id:       uuid.NewString(),
		env:      params.EnvironmentName,
		behavior: behavior,
	}

	b.mu.Lock()
	b.sessions = append(b.sessions, session)
	b.mu.Unlock()

	return session, nil
}

// FakeSession is the session type returned by FakeBackend.
type FakeSession struct {
	id       string
	env      string
	behavior EnvironmentBehavior

	polls  int64
	closed int32
}

// Environment returns the environment the session was opened for.
func (s *FakeSession) Environment() string { return s.env }

// Closed reports whether Close was called.
func (s *FakeSession) Closed() bool { return atomic.LoadInt32(&s.closed) == 1 }

// ID implements domain.Session.
func (s *FakeSession) ID() string { return s.id }

// IsReady implements domain.Session.
func (s *FakeSession) IsReady() bool {
	if s.Closed() || s.behavior.NeverReady {
		return false
	}
	polls := atomic.AddInt64(&s.polls, 1)
	return polls > int64(s.behavior.ReadyAfterPolls)
}

// LastError implements domain.Session.
func (s *FakeSession) LastError() string { return s.behavior.LastError }

// OrganizationName implements domain.Session.
func (s *FakeSession) OrganizationName() string { return s.behavior.OrganizationName }

// Version implements domain.Session.
func (s *FakeSession) Version() string { return s.behavior.Version }

// Close implements domain.Session.
func (s *FakeSession) Close() error {
	atomic.StoreInt32(&s.closed, 1)
	return nil
}

// ListEntities implements domain.MetadataRepository.
func (s *FakeSession) ListEntities(ctx context.Context, customOnly bool) ([]domain.EntityMetadata, error) {
	if s.behavior.MetadataErr != nil {
		return nil, s.behavior.MetadataErr
	}
	out := make([]domain.EntityMetadata, 0, len(s.behavior.Entities))
	for _, e := range s.behavior.Entities {
		if customOnly && !e.IsCustomEntity {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// GetEntity implements domain.MetadataRepository.
func (s *FakeSession) GetEntity(ctx context.Context, logicalName string) (*domain.EntityMetadata, error) {
	if s.behavior.MetadataErr != nil {
		return nil, s.behavior.MetadataErr
	}
	for _, e := range s.behavior.Entities {
		if e.LogicalName == logicalName {
			entity := e
			return &entity, nil
		}
	}
	return nil, domain.NewEntityNotFoundError(logicalName)
}

// ListAttributes implements domain.MetadataRepository.
func (s *FakeSession) ListAttributes(ctx context.Context, entityLogicalName string, customOnly bool) ([]domain.AttributeMetadata, error) {
	if s.behavior.MetadataErr != nil {
		return nil, s.behavior.MetadataErr
	}
	attrs, ok := s.behavior.Attributes[entityLogicalName]
	if !ok {
		return nil, domain.NewEntityNotFoundError(entityLogicalName)
	}
	out := make([]domain.AttributeMetadata, 0, len(attrs))
	for _, a := range attrs {
		if customOnly && !a.IsCustomAttribute {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// ListRelationships implements domain.MetadataRepository.
func (s *FakeSession) ListRelationships(ctx context.Context, entityLogicalName string) ([]domain.RelationshipMetadata, error) {
	if s.behavior.MetadataErr != nil {
		return nil, s.behavior.MetadataErr
	}
	return s.behavior.Relationships[entityLogicalName], nil
}
