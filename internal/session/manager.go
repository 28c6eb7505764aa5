package session

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cattackle-hq/cattackle-core/internal/errs"
	"github.com/cattackle-hq/cattackle-core/internal/registry"
)

const (
	retryBaseDelay   = time.Second
	retryJitterSpan  = time.Second
	closeGracePeriod = 5 * time.Second
)

// Manager owns one pluginSession per plugin and multiplexes Execute calls
// against it, opening sessions lazily and single-flight, and retrying
// transient failures per the manifest's max_retries.
type Manager struct {
	registry *registry.Registry
	log      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*pluginSession

	open singleflight.Group
}

// NewManager returns a Manager resolving plugins through reg.
func NewManager(reg *registry.Registry, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}

	return &Manager{
		registry: reg,
		log:      log,
		sessions: make(map[string]*pluginSession),
	}
}

// Execute invokes command on pluginName's session with payload, opening the
// session on first use and retrying transient failures up to the manifest's
// max_retries with exponential backoff and jitter.
func (m *Manager) Execute(ctx context.Context, pluginName, command string, payload map[string]any) (string, error) {
	manifest, ok := m.registry.FindByPluginAndCommand(pluginName, command)
	if !ok {
		return "", errs.New(errs.KindCommandNotFound, "plugin or command not found: "+pluginName+"/"+command)
	}

	timeout := time.Duration(manifest.MCP.TimeoutSecs * float64(time.Second))
	maxRetries := manifest.MCP.MaxRetries

	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt - 1)

			select {
			case <-ctx.Done():
				return "", ctx.Err() //nolint:wrapcheck
			case <-time.After(delay):
			}
		}

		sess, err := m.sessionFor(ctx, manifest)
		if err != nil {
			lastErr = err

			continue
		}

		reply, err := sess.call(ctx, m.log, command, payload, timeout)
		if err == nil {
			return reply, nil
		}

		lastErr = err

		if !isTransient(err) {
			return "", err
		}
	}

	return "", lastErr
}

func isTransient(err error) bool {
	return errs.IsKind(err, errs.KindPluginTimeout) || errs.IsKind(err, errs.KindPluginTransport)
}

func backoffDelay(attempt int) time.Duration {
	backoff := retryBaseDelay << attempt //nolint:gosec // attempt bounded by manifest max_retries
	jitter := time.Duration(rand.Int63n(int64(2*retryJitterSpan))) - retryJitterSpan

	return backoff + jitter
}

// sessionFor returns a Ready session for manifest, opening it single-flight
// if it is not already Ready. It always consults the current manifest for
// reconnect parameters (SPEC_FULL.md §9 "Hot-reload without tearing down
// sessions").
func (m *Manager) sessionFor(ctx context.Context, manifest *registry.Manifest) (*pluginSession, error) {
	m.mu.Lock()
	sess, ok := m.sessions[manifest.Name]
	m.mu.Unlock()

	if ok {
		if _, st := sess.currentTransport(); st == stateReady {
			return sess, nil
		}
	}

	result, err, _ := m.open.Do(manifest.Name, func() (any, error) {
		return m.openSession(ctx, manifest)
	})
	if err != nil {
		return nil, err
	}

	opened, ok := result.(*pluginSession)
	if !ok {
		return nil, errors.New("internal error: unexpected session open result type") //nolint:err113
	}

	return opened, nil
}

func (m *Manager) openSession(ctx context.Context, manifest *registry.Manifest) (*pluginSession, error) {
	tr, err := newTransport(manifest, m.log)
	if err != nil {
		return nil, errs.Wrap(errs.KindPluginTransport, "failed to open plugin transport", err)
	}

	if err := handshake(ctx, tr, manifest.Name); err != nil {
		_ = tr.close(ctx)

		return nil, err
	}

	sess := &pluginSession{name: manifest.Name, transport: tr, state: stateReady}

	m.mu.Lock()
	m.sessions[manifest.Name] = sess
	m.mu.Unlock()

	m.log.InfoContext(ctx, "opened plugin session", "plugin", manifest.Name, "transport", manifest.MCP.Transport)

	return sess, nil
}

// CloseAll gracefully closes every open session, waiting up to 5 seconds
// before force-terminating stdio children.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*pluginSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*pluginSession)
	m.mu.Unlock()

	closeCtx, cancel := context.WithTimeout(ctx, closeGracePeriod)
	defer cancel()

	var wg sync.WaitGroup

	for _, s := range sessions {
		wg.Add(1)

		go func(s *pluginSession) {
			defer wg.Done()

			tr, _ := s.currentTransport()
			if tr == nil {
				return
			}

			if err := tr.close(closeCtx); err != nil {
				m.log.WarnContext(ctx, "plugin session closed with error", "plugin", s.name, "err", err)
			}
		}(s)
	}

	wg.Wait()
}
