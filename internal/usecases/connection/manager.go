// Package connection owns the single live backend session of the server.
package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/FreePeak/dataverse-metadata-mcp/internal/domain"
	"github.com/FreePeak/dataverse-metadata-mcp/internal/infrastructure/logging"
	"github.com/FreePeak/dataverse-metadata-mcp/internal/usecases/environment"
)

// DefaultPollInterval is how often a new session's readiness is checked.
const DefaultPollInterval = 100 * time.Millisecond

// errSuperseded is returned by an attempt whose environment selection changed
// while it ran; waiters start over.
var errSuperseded = errors.New("connection attempt superseded")

// errAbandoned is returned by an attempt cancelled because every waiter left.
var errAbandoned = errors.New("connection attempt abandoned")

// TestResult is the outcome of TestConnection.
type TestResult struct {
	Success          bool
	Message          string
	OrganizationName string
	Version          string
}

// SwitchResult is the outcome of a successful SwitchTo.
type SwitchResult struct {
	Success bool
	Message string
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used for readiness polling.
func WithClock(clock domain.Clock) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithPollInterval sets the readiness poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// flight tracks the callers waiting on one connection attempt so the attempt
// can be cancelled once nobody is left to receive it.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// Manager hands out a ready session for the current environment. Sessions
// are opened lazily, concurrent attempts for the same selection are
// coalesced, and switching environments invalidates whatever was built for
// the previous one.
type Manager struct {
	registry     *environment.Registry
	backend      domain.MetadataBackend
	clock        domain.Clock
	logger       *logging.Logger
	pollInterval time.Duration

	group singleflight.Group

	mu         sync.Mutex
	session    domain.Session
	sessionEnv string
	generation uint64
	state      domain.ConnectionState
	lastErr    error
	flights    map[string]*flight
}

// NewManager creates a manager for the environments in registry.
func NewManager(registry *environment.Registry, backend domain.MetadataBackend, opts ...Option) *Manager {
	m := &Manager{
		registry:     registry,
		backend:      backend,
		clock:        domain.SystemClock{},
		logger:       logging.NewNop(),
		pollInterval: DefaultPollInterval,
		state:        domain.StateDisconnected,
		flights:      make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the environment registry the manager reads from.
func (m *Manager) Registry() *environment.Registry {
	return m.registry
}

// State returns the state of the latest attempt and its error, if it failed.
func (m *Manager) State() (domain.ConnectionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.lastErr
}

// Acquire returns a ready session for the current environment, opening one
// if needed. Callers arriving while an attempt is in progress wait for it.
func (m *Manager) Acquire(ctx context.Context) (domain.Session, error) {
	for {
		m.mu.Lock()
		name := m.registry.CurrentName()
		if m.session != nil && m.sessionEnv == name && m.state == domain.StateReady {
			session := m.session
			m.mu.Unlock()
			return session, nil
		}
		gen := m.generation
		key := fmt.Sprintf("%s#%d", name, gen)
		f := m.join(ctx, key)
		m.mu.Unlock()

		ch := m.group.DoChan(key, func() (interface{}, error) {
			return m.attempt(f.ctx, name, gen)
		})

		select {
		case <-ctx.Done():
			m.leave(key, f)
			return nil, domain.ErrCancelled
		case res := <-ch:
			m.leave(key, f)
			if res.Err != nil {
				if errors.Is(res.Err, errSuperseded) || errors.Is(res.Err, errAbandoned) {
					continue
				}
				return nil, res.Err
			}
			return res.Val.(domain.Session), nil
		}
	}
}

// join registers a waiter for key. m.mu must be held.
func (m *Manager) join(ctx context.Context, key string) *flight {
	f, ok := m.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		m.flights[key] = f
	}
	f.waiters++
	return f
}

func (m *Manager) leave(key string, f *flight) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	if m.flights[key] == f {
		delete(m.flights, key)
	}
	f.cancel()
}

// attempt performs one connection attempt for the selection identified by
// name and gen, and publishes the session if the selection still holds.
func (m *Manager) attempt(ctx context.Context, name string, gen uint64) (domain.Session, error) {
	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return nil, errSuperseded
	}
	if m.session != nil && m.sessionEnv == name && m.state == domain.StateReady {
		session := m.session
		m.mu.Unlock()
		return session, nil
	}
	m.state = domain.StateConnecting
	m.lastErr = nil
	m.mu.Unlock()

	log := m.logger.With(logging.Fields{"environment": name})
	log.Info("Connecting to environment")

	session, err := m.open(ctx, name)

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		if session != nil {
			closeSession(log, session)
		}
		log.Debug("Discarding connection for superseded environment selection")
		return nil, errSuperseded
	}
	if err != nil {
		m.state = domain.StateFailed
		m.lastErr = err
		m.mu.Unlock()

		if errors.Is(err, domain.ErrCancelled) {
			log.Debug("Connection attempt abandoned")
			return nil, errAbandoned
		}
		log.Warn("Connection attempt failed", logging.Fields{"error": err.Error()})
		return nil, err
	}
	m.session = session
	m.sessionEnv = name
	m.state = domain.StateReady
	m.mu.Unlock()

	log.Info("Connected", logging.Fields{"session_id": session.ID(), "organization": session.OrganizationName()})
	return session, nil
}

// open resolves the environment, opens a backend session and waits for it to
// become ready within the environment's timeout.
func (m *Manager) open(ctx context.Context, name string) (domain.Session, error) {
	env, err := m.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	params, err := domain.NewConnectionParams(env)
	if err != nil {
		return nil, err
	}

	session, err := m.backend.Connect(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.ErrCancelled
		}
		return nil, err
	}

	deadline := m.clock.Now().Add(params.Timeout)
	for {
		if session.IsReady() {
			return session, nil
		}
		if !m.clock.Now().Before(deadline) {
			lastErr := session.LastError()
			closeSession(m.logger, session)
			return nil, &domain.ConnectTimeoutError{Timeout: params.Timeout, LastError: lastErr}
		}

		select {
		case <-ctx.Done():
			closeSession(m.logger, session)
			return nil, domain.ErrCancelled
		case <-m.clock.After(m.pollInterval):
		}
	}
}

// SwitchTo selects name as the current environment, drops the session held
// for the previous one and tests the new selection. The selection is kept
// even when the test fails; the outcome is reported in the result.
func (m *Manager) SwitchTo(ctx context.Context, name string) (SwitchResult, error) {
	if !m.registry.Has(name) {
		return SwitchResult{}, domain.NewEnvironmentNotFoundError(name)
	}

	m.mu.Lock()
	old := m.release()
	if err := m.registry.SetCurrent(name); err != nil {
		m.mu.Unlock()
		return SwitchResult{}, err
	}
	m.mu.Unlock()

	if old != nil {
		closeSession(m.logger, old)
	}
	m.logger.Info("Environment selected", logging.Fields{"environment": name})

	test := m.TestConnection(ctx)
	if !test.Success {
		return SwitchResult{
			Success: false,
			Message: fmt.Sprintf("Failed to connect to environment '%s': %s", name, test.Message),
		}, nil
	}
	return SwitchResult{
		Success: true,
		Message: fmt.Sprintf("Successfully switched to environment '%s'", name),
	}, nil
}

// TestConnection acquires a session and reports the organization it belongs
// to.
func (m *Manager) TestConnection(ctx context.Context) TestResult {
	session, err := m.Acquire(ctx)
	if err != nil {
		return TestResult{Success: false, Message: err.Error()}
	}
	return TestResult{
		Success:          true,
		Message:          "Connection successful",
		OrganizationName: session.OrganizationName(),
		Version:          session.Version(),
	}
}

// Dispose closes the held session, if any. Attempts in flight are discarded
// when they finish.
func (m *Manager) Dispose() {
	m.mu.Lock()
	old := m.release()
	m.mu.Unlock()

	if old != nil {
		closeSession(m.logger, old)
	}
}

// release detaches the held session and invalidates in-flight attempts.
// m.mu must be held.
func (m *Manager) release() domain.Session {
	old := m.session
	m.session = nil
	m.sessionEnv = ""
	m.state = domain.StateDisconnected
	m.lastErr = nil
	m.generation++
	return old
}

func closeSession(logger *logging.Logger, session domain.Session) {
	if err := session.Close(); err != nil {
		logger.Warn("Failed to close session", logging.Fields{"session_id": session.ID(), "error": err.Error()})
	}
}
