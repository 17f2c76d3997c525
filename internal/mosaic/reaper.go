package mosaic

import (
	"context"
	"log/slog"
	"time"
)

// ticker abstracts time.Ticker so idle-watch tests can drive ticks manually.
type ticker interface {
	C() <-chan time.Time
	Stop()
}

type tickerFactory func(time.Duration) ticker

type timeTicker struct {
	t *time.Ticker
}

func newTimeTicker(d time.Duration) ticker {
	return timeTicker{t: time.NewTicker(d)}
}

func (t timeTicker) C() <-chan time.Time {
	return t.t.C
}

func (t timeTicker) Stop() {
	t.t.Stop()
}

// watchIdle is the per-session idle reaper. On each poll tick it checks that
// the session is still registered and that the idle grace period has not
// elapsed since the last boundary-API touch; either failing triggers teardown
// and exits the watcher. The session's cancellation handle stops the watcher
// promptly on explicit stop, without waiting for the next tick.
func (s *Service) watchIdle(ctx context.Context, sess *Session) {
	defer s.watchers.Done()
	t := s.newTicker(s.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			if _, ok := s.registry.Lookup(sess.ID); !ok {
				return
			}
			if idle := time.Since(sess.LastAccess()); idle > s.cfg.IdleTimeout {
				s.log.Info("session idle",
					slog.String("session", string(sess.ID)),
					slog.Duration("idle", idle),
				)
				s.teardown(sess, reasonIdle)
				return
			}
		}
	}
}
