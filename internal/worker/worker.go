package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/liminalcommons/chora-cvm/internal/engine"
)

var jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cvm_worker_jobs_total",
	Help: "Jobs processed by the worker, by final status.",
}, []string{"status"})

// workerLogger wraps slog so the poll loop can log with printf ergonomics.
type workerLogger struct {
	logger *slog.Logger
}

func (l workerLogger) log(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

// NewLogger builds a worker logger. A non-empty path logs to a rotating
// file; otherwise lines go to stderr.
func NewLogger(path string) workerLogger {
	var w io.Writer = os.Stderr
	if path != "" {
		w = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
		}
	}
	return workerLogger{logger: slog.New(slog.NewTextHandler(w, nil))}
}

// Options configures a worker run.
type Options struct {
	PollInterval time.Duration
	PersonaID    string
	LogPath      string
}

// Worker drains the queue through the engine. One worker per queue file,
// enforced with a lock file.
type Worker struct {
	queue  *Queue
	eng    *engine.Engine
	opts   Options
	log    workerLogger
	wake   chan struct{}
	cancel context.CancelFunc
}

// New builds a worker over an open queue and engine.
func New(queue *Queue, eng *engine.Engine, opts Options) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	return &Worker{
		queue: queue,
		eng:   eng,
		opts:  opts,
		log:   NewLogger(opts.LogPath),
		wake:  make(chan struct{}, 1),
	}
}

// Run drains jobs until the context is canceled. It acquires an exclusive
// lock next to the queue file; a second worker on the same queue returns
// an error immediately.
func (w *Worker) Run(ctx context.Context) error {
	lock := flock.New(w.queue.Path() + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire worker lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another worker is already running on %s", w.queue.Path())
	}
	defer func() { _ = lock.Unlock() }()

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	defer cancel()

	w.startWatcher(ctx)
	w.log.log("Worker started (queue=%s poll=%v)", w.queue.Path(), w.opts.PollInterval)

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		if err := w.Drain(ctx); err != nil {
			w.log.log("Drain error: %v", err)
		}
		select {
		case <-ticker.C:
		case <-w.wake:
		case <-ctx.Done():
			w.log.log("Worker stopping")
			return nil
		}
	}
}

// Drain claims and executes jobs until the queue is empty.
func (w *Worker) Drain(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		job, err := w.queue.Claim(ctx)
		if err != nil {
			return err
		}
		if job == nil {
			return nil
		}

		w.log.log("Dispatching job %s (intent=%s)", job.ID, job.Intent)
		result := w.eng.Dispatch(ctx, job.Intent, job.Inputs, engine.DispatchOptions{
			PersonaID: firstNonEmpty(job.PersonaID, w.opts.PersonaID),
			StateID:   job.StateID,
			Sink:      func(content string) { w.log.log("[%s] %s", job.ID, content) },
		})

		if err := w.queue.Complete(ctx, job.ID, result); err != nil {
			return err
		}
		if result.OK {
			jobsProcessed.WithLabelValues(JobDone).Inc()
			w.log.log("Job %s done", job.ID)
		} else {
			jobsProcessed.WithLabelValues(JobError).Inc()
			w.log.log("Job %s failed: %s: %s", job.ID, result.ErrorKind, result.ErrorMessage)
		}
	}
}

// startWatcher wakes the loop when the queue file changes, so enqueued
// jobs start without waiting for the next tick. Falls back silently to
// ticker-only polling when fsnotify is unavailable.
func (w *Worker) startWatcher(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.log("fsnotify unavailable (%v), polling only", err)
		return
	}
	if err := watcher.Add(filepath.Dir(w.queue.Path())); err != nil {
		w.log.log("failed to watch queue directory (%v), polling only", err)
		_ = watcher.Close()
		return
	}

	queueBase := filepath.Base(w.queue.Path())
	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				// WAL means writes may land in <queue>-wal rather than the
				// main file.
				base := filepath.Base(event.Name)
				if base == queueBase || base == queueBase+"-wal" {
					if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
						select {
						case w.wake <- struct{}{}:
						default:
						}
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.log.log("Watcher error: %v", err)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
