package mosaic

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"sync"
)

// Process is the handle to a running engine process. Each session owns
// exactly one Process for its whole lifetime; the session's teardown is the
// only caller of Stop.
type Process interface {
	// Done is closed when the process has exited, for any reason.
	Done() <-chan struct{}
	// Err returns the exit error, if any. Only valid after Done is closed.
	Err() error
	// Stop kills the process if it is still running and waits for it to
	// exit. Safe to call multiple times and after natural exit.
	Stop()
}

// Launcher starts engine processes. The exec-backed implementation is used in
// production; tests inject fakes.
type Launcher interface {
	Launch(label string, args []string) (Process, error)
}

// ExecLauncher launches the configured engine binary via os/exec. The process
// is detached from the caller's context: it must outlive the HTTP request
// that created it, so its lifetime is governed solely by Process.Stop.
type ExecLauncher struct {
	path string
	log  *slog.Logger
}

// NewExecLauncher returns a Launcher invoking the engine binary at path.
func NewExecLauncher(path string, log *slog.Logger) *ExecLauncher {
	return &ExecLauncher{path: path, log: log}
}

// Launch implements Launcher. The engine's stderr is captured line by line
// into the launcher's logger rather than inherited by the parent's streams.
func (l *ExecLauncher) Launch(label string, args []string) (Process, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, l.path, args...)
	cmd.Stderr = &lineWriter{log: l.log.With(slog.String("engine", label))}
	cmd.Stdout = nil

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, err
	}

	p := &execProcess{cancel: cancel, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
		cancel()
	}()
	return p, nil
}

type execProcess struct {
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
	stopOnce sync.Once
}

func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) Err() error { return p.err }

func (p *execProcess) Stop() {
	p.stopOnce.Do(p.cancel)
	<-p.done
}

// lineWriter re-emits engine diagnostic output line by line at debug level.
type lineWriter struct {
	log *slog.Logger
	buf bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	total := len(p)
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadBytes('\n')
		if err != nil {
			// Partial line; keep it buffered for the next write.
			w.buf.Write(line)
			break
		}
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			w.log.Debug("engine output", slog.String("line", string(trimmed)))
		}
	}
	return total, nil
}
