package mosaic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"mosaic-orchestrator/internal/platform/metrics"

	"github.com/google/uuid"
)

var (
	// ErrNoChannels is returned by Start when the request carries an empty
	// channel list. Rejected before any resource is allocated.
	ErrNoChannels = errors.New("no channels requested")

	// ErrNoValidChannels is returned by Start when every requested channel
	// failed resolution.
	ErrNoValidChannels = errors.New("no valid channels")

	// ErrSessionNotFound is returned by Stop for an unknown (or already
	// stopped) session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNotOwner is returned by Stop when the caller did not create the
	// session.
	ErrNotOwner = errors.New("session owned by another caller")

	// ErrEngineFailed is returned by Start when the engine could not be
	// launched or exited immediately after launch.
	ErrEngineFailed = errors.New("engine failed to start")
)

// Teardown reasons, recorded in the session log line.
const (
	reasonStop        = "stop requested"
	reasonIdle        = "idle timeout"
	reasonEngineExit  = "engine exit"
	reasonStartFailed = "start failed"
	reasonShutdown    = "orchestrator shutdown"
)

// Config holds orchestrator settings.
type Config struct {
	// WorkspaceRoot is the directory under which each session gets a private
	// working directory named by its id.
	WorkspaceRoot string
	// MaxSessions bounds concurrently active sessions, minimum 1.
	MaxSessions int
	// IdleTimeout is the grace period after the last boundary-API touch
	// before a session is reaped.
	IdleTimeout time.Duration
	// PollInterval is how often each session's idle watcher checks the grace
	// period.
	PollInterval time.Duration
	// LaunchProbe is how long Start watches a freshly launched engine for an
	// immediate exit before declaring the session live.
	LaunchProbe time.Duration
	// Geometry and BitrateKbps are session defaults, overridable per start
	// request.
	Geometry    Geometry
	BitrateKbps int
}

func (c Config) withDefaults() Config {
	if c.MaxSessions < 1 {
		c.MaxSessions = 1
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 10 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Minute
	}
	if c.LaunchProbe <= 0 {
		c.LaunchProbe = 250 * time.Millisecond
	}
	if c.Geometry.TileWidth <= 0 || c.Geometry.TileHeight <= 0 {
		c.Geometry = DefaultGeometry
	}
	if c.BitrateKbps <= 0 {
		c.BitrateKbps = DefaultBitrateKbps
	}
	return c
}

// StartOptions carries one start request into the service.
type StartOptions struct {
	Channels []ChannelID
	Owner    string
	// Geometry overrides the configured tile size when non-zero.
	Geometry Geometry
	// BitrateKbps overrides the configured bitrate when positive.
	BitrateKbps int
}

// Service orchestrates mosaic sessions: admission, channel resolution,
// engine launch, registration, idle watching, and teardown.
type Service struct {
	cfg      Config
	log      *slog.Logger
	met      *metrics.Metrics
	resolver Resolver
	launcher Launcher
	registry *Registry
	gate     *Gate

	newTicker tickerFactory
	watchers  sync.WaitGroup
}

// NewService returns a Service using the given collaborators. Metrics may be
// nil to disable metric recording (e.g. in tests).
func NewService(cfg Config, log *slog.Logger, met *metrics.Metrics, resolver Resolver, launcher Launcher) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		cfg:       cfg,
		log:       log,
		met:       met,
		resolver:  resolver,
		launcher:  launcher,
		registry:  NewRegistry(),
		gate:      NewGate(cfg.MaxSessions),
		newTicker: newTimeTicker,
	}
}

// Start creates a mosaic session: it acquires a concurrency slot (blocking
// until one is free or ctx is done), resolves the requested channels keeping
// only successes, launches the engine process, and registers the session.
// Every failure after slot acquisition funnels through the same teardown
// routine, so no slot, directory, or process is ever leaked.
func (s *Service) Start(ctx context.Context, opts StartOptions) (*Session, error) {
	if len(opts.Channels) == 0 {
		return nil, ErrNoChannels
	}

	if err := s.gate.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("acquire session slot: %w", err)
	}

	geom := opts.Geometry
	if geom.TileWidth <= 0 || geom.TileHeight <= 0 {
		geom = s.cfg.Geometry
	}
	bitrate := opts.BitrateKbps
	if bitrate <= 0 {
		bitrate = s.cfg.BitrateKbps
	}

	sess := &Session{
		ID:          SessionID(uuid.NewString()),
		Requested:   append([]ChannelID(nil), opts.Channels...),
		Inputs:      make(map[ChannelID]string),
		Names:       make(map[ChannelID]string),
		HeaderFiles: make(map[ChannelID]string),
		Geometry:    geom,
		BitrateKbps: bitrate,
		Owner:       opts.Owner,
		CreatedAt:   time.Now(),
	}
	sess.Touch()
	sess.Dir = filepath.Join(s.cfg.WorkspaceRoot, string(sess.ID))
	sess.ManifestPath = path.Join("mosaic", "content", string(sess.ID), manifestName)

	if err := os.MkdirAll(sess.Dir, 0o755); err != nil {
		s.teardown(sess, reasonStartFailed)
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	headers := s.resolveChannels(ctx, sess)
	if len(sess.Inputs) == 0 {
		s.teardown(sess, reasonStartFailed)
		return nil, ErrNoValidChannels
	}

	if err := writeHeaderFiles(sess, headers); err != nil {
		s.teardown(sess, reasonStartFailed)
		return nil, fmt.Errorf("write credential files: %w", err)
	}

	proc, err := s.launcher.Launch(string(sess.ID), BuildEngineArgs(sess))
	if err != nil {
		if s.met != nil {
			s.met.IncLaunchFailures()
		}
		s.teardown(sess, reasonStartFailed)
		return nil, fmt.Errorf("%w: launch: %v", ErrEngineFailed, err)
	}
	sess.proc = proc

	// An engine that dies inside the probe window never worked; treat it as
	// a launch failure and keep the session out of the registry.
	select {
	case <-proc.Done():
		if s.met != nil {
			s.met.IncLaunchFailures()
		}
		cause := proc.Err()
		if cause == nil {
			cause = errors.New("exited cleanly")
		}
		s.teardown(sess, reasonStartFailed)
		return nil, fmt.Errorf("%w: exited during startup: %v", ErrEngineFailed, cause)
	case <-time.After(s.cfg.LaunchProbe):
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel
	s.registry.Insert(sess)

	s.watchers.Add(2)
	go s.watchProcess(sess)
	go s.watchIdle(watchCtx, sess)

	if s.met != nil {
		s.met.IncSessionsStarted()
	}
	s.log.Info("session started",
		slog.String("session", string(sess.ID)),
		slog.Int("requested", len(sess.Requested)),
		slog.Int("resolved", len(sess.Inputs)),
		slog.String("owner", opts.Owner),
	)
	return sess, nil
}

// Stop tears down the session with the given id. Stopping an unknown or
// already stopped session returns ErrSessionNotFound.
func (s *Service) Stop(id SessionID, caller string) error {
	sess, ok := s.registry.Lookup(id)
	if !ok {
		return ErrSessionNotFound
	}
	if caller != "" && sess.Owner != "" && sess.Owner != caller {
		return ErrNotOwner
	}
	s.teardown(sess, reasonStop)
	return nil
}

// Touch resets the idle clock of the session with the given id, reporting
// whether the session exists.
func (s *Service) Touch(id SessionID) bool {
	sess, ok := s.registry.Lookup(id)
	if ok {
		sess.Touch()
	}
	return ok
}

// Sessions returns a snapshot of all active sessions.
func (s *Service) Sessions() []*Session {
	return s.registry.List()
}

// ActiveSessions returns the number of registered sessions, for metrics.
func (s *Service) ActiveSessions() int {
	return s.registry.Len()
}

// Shutdown stops every live session and waits for all watcher goroutines to
// exit, or until ctx is done.
func (s *Service) Shutdown(ctx context.Context) error {
	for _, sess := range s.registry.List() {
		s.teardown(sess, reasonShutdown)
	}
	done := make(chan struct{})
	go func() {
		s.watchers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resolveChannels resolves every requested channel concurrently, recording
// successes on the session and returning the upstream auth headers keyed by
// channel. Per-channel failures are logged and skipped.
func (s *Service) resolveChannels(ctx context.Context, sess *Session) map[ChannelID]string {
	headers := make(map[ChannelID]string)
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, ch := range sess.Requested {
		wg.Add(1)
		go func(ch ChannelID) {
			defer wg.Done()
			rc, err := s.resolver.Resolve(ctx, ch)
			if err != nil {
				s.log.Warn("channel resolution failed",
					slog.String("session", string(sess.ID)),
					slog.String("channel", string(ch)),
					slog.String("error", err.Error()),
				)
				return
			}
			mu.Lock()
			sess.Inputs[ch] = rc.URL
			sess.Names[ch] = rc.Name
			if rc.AuthHeader != "" {
				headers[ch] = rc.AuthHeader
			}
			mu.Unlock()
		}(ch)
	}
	wg.Wait()
	return headers
}

// writeHeaderFiles writes each upstream auth header to a private file inside
// the session directory, recording the paths on the session for the composer.
func writeHeaderFiles(sess *Session, headers map[ChannelID]string) error {
	for idx, ch := range sess.ResolvedChannels() {
		hdr, ok := headers[ch]
		if !ok {
			continue
		}
		p := filepath.Join(sess.Dir, fmt.Sprintf("headers_%d.txt", idx))
		if err := os.WriteFile(p, []byte(hdr+"\r\n"), 0o600); err != nil {
			return err
		}
		sess.HeaderFiles[ch] = p
	}
	return nil
}

// watchProcess waits for the engine process to exit and funnels the session
// into teardown. The engine exiting for any reason, including a kill issued
// by teardown itself, lands here; teardown being idempotent makes the double
// trigger safe.
func (s *Service) watchProcess(sess *Session) {
	defer s.watchers.Done()
	<-sess.proc.Done()
	s.teardown(sess, reasonEngineExit)
}

// teardown is the single idempotent exit point for a session: deregister,
// cancel the idle watcher, kill the engine if still running, delete on-disk
// artifacts, and release the concurrency slot. Exactly one trigger (stop,
// idle timeout, engine exit, start failure, shutdown) executes the body.
func (s *Service) teardown(sess *Session, reason string) {
	sess.stopOnce.Do(func() {
		_, registered := s.registry.Remove(sess.ID)
		if sess.cancel != nil {
			sess.cancel()
		}
		if sess.proc != nil {
			sess.proc.Stop()
		}
		if err := os.RemoveAll(sess.Dir); err != nil {
			s.log.Warn("delete session directory failed",
				slog.String("session", string(sess.ID)),
				slog.String("error", err.Error()),
			)
		}
		s.gate.Release()
		if registered {
			if s.met != nil {
				s.met.IncSessionsStopped()
			}
			s.log.Info("session stopped",
				slog.String("session", string(sess.ID)),
				slog.String("reason", reason),
			)
		}
	})
}
