package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxetl/voxetl/internal/task"
)

const workerJoinGrace = 2 * time.Second

// Pool errors.
var (
	ErrQueueFull    = errors.New("pipeline: queue full")
	ErrDuplicateURL = errors.New("pipeline: url already submitted")
	ErrNotResumable = errors.New("pipeline: task is not resumable")
	ErrShuttingDown = errors.New("pipeline: pool is shutting down")
)

// Pool owns the bounded task queue and the persistent workers that drive
// each task through the pipeline stages in order.
type Pool struct {
	registry    *task.Registry
	downloader  *Downloader
	splitter    *Splitter
	transcriber *Transcriber

	queue chan *task.Task
	done  chan struct{}
	wg    sync.WaitGroup

	mu       sync.Mutex
	shutdown bool

	logger *slog.Logger
}

// NewPool creates the pool and starts maxWorkers persistent workers.
func NewPool(registry *task.Registry, downloader *Downloader, splitter *Splitter, transcriber *Transcriber, maxWorkers, maxQueueSize int, logger *slog.Logger) *Pool {
	p := &Pool{
		registry:    registry,
		downloader:  downloader,
		splitter:    splitter,
		transcriber: transcriber,
		queue:       make(chan *task.Task, maxQueueSize),
		done:        make(chan struct{}),
		logger:      logger,
	}

	for i := 0; i < maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// Submit de-duplicates by URL, registers a Pending task, and enqueues it.
// When the queue is full the task is removed from the registry again and
// ErrQueueFull is returned.
func (p *Pool) Submit(url string) (*task.Task, error) {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return nil, ErrShuttingDown
	}
	p.mu.Unlock()

	t := task.New(url)
	if err := p.registry.Add(t); err != nil {
		if errors.Is(err, task.ErrDuplicateURL) {
			return nil, ErrDuplicateURL
		}
		return nil, err
	}

	select {
	case p.queue <- t:
		p.logger.Info("task submitted",
			slog.String("task_id", t.ID),
			slog.String("url", url),
		)
		return t, nil
	default:
		p.registry.Remove(t.ID)
		return nil, ErrQueueFull
	}
}

// Resume re-enqueues a task that ended in Failed, Cancelled, or Paused.
func (p *Pool) Resume(t *task.Task) error {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return ErrShuttingDown
	}
	p.mu.Unlock()

	if !t.CanResume() {
		return ErrNotResumable
	}
	if !t.TryTransition(task.StatusPending) {
		return ErrNotResumable
	}

	select {
	case p.queue <- t:
		p.logger.Info("task resumed", slog.String("task_id", t.ID))
		return nil
	default:
		return ErrQueueFull
	}
}

// worker pulls tasks until shutdown is signalled and the queue is drained.
func (p *Pool) worker(id int) {
	defer p.wg.Done()
	logger := p.logger.With(slog.Int("worker", id))

	for {
		select {
		case t := <-p.queue:
			p.runTask(context.Background(), t, logger)
		case <-p.done:
			// Drain remaining queued tasks before exiting.
			for {
				select {
				case t := <-p.queue:
					p.runTask(context.Background(), t, logger)
				default:
					return
				}
			}
		}
	}
}

// runTask drives one task through the stages in order. Each stage records
// its own error before returning failure; the pool performs the transition
// to Failed.
func (p *Pool) runTask(ctx context.Context, t *task.Task, logger *slog.Logger) {
	logger = logger.With(slog.String("task_id", t.ID))
	logger.Info("pipeline started", slog.String("url", t.URL))

	stages := []struct {
		status task.Status
		run    func(context.Context, *task.Task) error
	}{
		{task.StatusDownloading, p.downloader.Run},
		{task.StatusSplitting, p.splitter.Run},
		{task.StatusTranscribing, p.transcriber.TranscribeAll},
		{task.StatusMerging, p.transcriber.Merge},
	}

	for _, stage := range stages {
		if !t.TryTransition(stage.status) {
			p.failIllegalTransition(t, stage.status, logger)
			return
		}
		if err := stage.run(ctx, t); err != nil {
			logger.Warn("stage failed",
				slog.String("stage", stage.status.String()),
				slog.String("error", err.Error()),
			)
			t.TryTransition(task.StatusFailed)
			return
		}
	}

	if !t.TryTransition(task.StatusCompleted) {
		p.failIllegalTransition(t, task.StatusCompleted, logger)
		return
	}
	t.SetProcessing(procCompletedAt, time.Now().UTC().Format(time.RFC3339))
	logger.Info("pipeline completed")
}

func (p *Pool) failIllegalTransition(t *task.Task, to task.Status, logger *slog.Logger) {
	msg := fmt.Sprintf("illegal transition from %s to %s", t.GetStatus(), to)
	logger.Error("pipeline aborted", slog.String("error", msg))
	t.AddError(t.GetStatus(), msg, "")
	t.TryTransition(task.StatusFailed)
}

// Shutdown signals the workers, waits for the queue to drain and in-flight
// tasks to finish, and joins workers with a bounded grace period. Workers
// still running after the grace period are logged and abandoned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return nil
	}
	p.shutdown = true
	p.mu.Unlock()

	close(p.done)

	joined := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(joined)
	}()

	select {
	case <-joined:
		p.logger.Info("pool shut down")
		return nil
	case <-time.After(workerJoinGrace):
		p.logger.Warn("abandoning workers after join grace period",
			slog.Duration("grace", workerJoinGrace))
		return fmt.Errorf("workers did not finish within %v", workerJoinGrace)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueDepth returns the number of tasks waiting for a worker.
func (p *Pool) QueueDepth() int {
	return len(p.queue)
}
