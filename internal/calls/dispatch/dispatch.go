package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"outreach-server/internal/observability"
	"outreach-server/internal/session"

	"github.com/google/uuid"
)

// Initiator places the outbound call with the telephony provider.
type Initiator interface {
	InitiateCall(ctx context.Context, to, answerURL, statusCallbackURL string) (string, error)
}

// Config holds configuration for the call dispatch pool.
type Config struct {
	// NumWorkers is the number of concurrent initiation workers.
	NumWorkers int

	// QueueSize is the size of the job queue buffer. If the queue is full,
	// Submit() will block.
	QueueSize int

	// DrainTimeout is the maximum time to wait for in-flight initiations
	// to complete during graceful shutdown.
	DrainTimeout time.Duration

	// AnswerURL is where the provider fetches call instructions once the
	// callee picks up.
	AnswerURL string

	// StatusCallbackURL receives provider lifecycle events for the call.
	StatusCallbackURL string
}

// DefaultConfig returns sensible defaults for a dispatch pool.
func DefaultConfig() Config {
	return Config{
		NumWorkers:   4,
		QueueSize:    100,
		DrainTimeout: 30 * time.Second,
	}
}

// Dispatcher initiates outbound calls asynchronously. Session creation only
// enqueues; the worker moves the session through ACTIVE and CALLING, or fails
// it when the provider rejects the call.
type Dispatcher struct {
	config    Config
	registry  *session.Registry
	initiator Initiator
	logger    *observability.Logger

	jobChan chan uuid.UUID
	wg      sync.WaitGroup

	mu       sync.Mutex
	started  bool
	draining bool
	stopped  bool
	cancelFn context.CancelFunc
}

// New creates a dispatch pool for call initiation jobs.
func New(config Config, registry *session.Registry, initiator Initiator, logger *observability.Logger) *Dispatcher {
	if config.NumWorkers <= 0 {
		config.NumWorkers = DefaultConfig().NumWorkers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = DefaultConfig().DrainTimeout
	}

	return &Dispatcher{
		config:    config,
		registry:  registry,
		initiator: initiator,
		logger:    logger,
		jobChan:   make(chan uuid.UUID, config.QueueSize),
	}
}

// Start initializes the dispatch pool with N workers.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return fmt.Errorf("dispatcher already started")
	}
	if d.stopped {
		return fmt.Errorf("dispatcher already stopped")
	}

	workerCtx, cancel := context.WithCancel(ctx)
	d.cancelFn = cancel
	d.started = true

	for i := 0; i < d.config.NumWorkers; i++ {
		d.wg.Add(1)
		go d.worker(workerCtx, i)
	}

	d.logger.Info(ctx, fmt.Sprintf("Started %d call dispatch workers", d.config.NumWorkers))
	return nil
}

// Submit queues a session for call initiation.
func (d *Dispatcher) Submit(ctx context.Context, sessionID uuid.UUID) error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher not started")
	}
	if d.draining || d.stopped {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher is shutting down")
	}
	d.mu.Unlock()

	select {
	case d.jobChan <- sessionID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain stops accepting new jobs and waits for in-flight initiations.
func (d *Dispatcher) Drain(ctx context.Context) error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher not started")
	}
	if d.draining {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already draining")
	}
	d.draining = true
	d.mu.Unlock()

	d.logger.Info(ctx, fmt.Sprintf("Draining call dispatcher, %d jobs in flight", len(d.jobChan)))
	close(d.jobChan)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	drainCtx, cancel := context.WithTimeout(ctx, d.config.DrainTimeout)
	defer cancel()

	select {
	case <-done:
		d.logger.Info(ctx, "Call dispatcher drained")
		return nil
	case <-drainCtx.Done():
		d.logger.Warn(ctx, "Call dispatcher drain timeout exceeded, forcing shutdown")
		d.Stop()
		return fmt.Errorf("drain timeout exceeded")
	}
}

// Stop immediately stops all workers.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true

	if d.cancelFn != nil {
		d.cancelFn()
	}
	if !d.draining {
		close(d.jobChan)
	}
}

func (d *Dispatcher) worker(ctx context.Context, workerID int) {
	defer d.wg.Done()

	workerCtx := observability.WithFields(ctx,
		observability.Field{Key: "worker_id", Value: workerID},
	)
	d.logger.Info(workerCtx, fmt.Sprintf("Call dispatch worker %d started", workerID))

	for {
		select {
		case <-ctx.Done():
			d.logger.Info(workerCtx, fmt.Sprintf("Call dispatch worker %d stopping: context cancelled", workerID))
			return
		case sessionID, ok := <-d.jobChan:
			if !ok {
				d.logger.Info(workerCtx, fmt.Sprintf("Call dispatch worker %d stopping: queue closed", workerID))
				return
			}
			d.initiate(observability.WithFields(workerCtx,
				observability.Field{Key: "session_id", Value: sessionID.String()},
			), sessionID)
		}
	}
}

// initiate moves one session from PENDING through the provider call creation.
// A session cancelled before its turn in the queue is skipped silently.
func (d *Dispatcher) initiate(ctx context.Context, sessionID uuid.UUID) {
	sess, err := d.registry.GetByID(sessionID)
	if err != nil {
		d.logger.Warn(ctx, "Queued session no longer exists, skipping initiation")
		return
	}
	if sess.Status.IsTerminal() {
		d.logger.Info(ctx, "Session already terminal, skipping initiation")
		return
	}

	if err := d.registry.UpdateStatus(ctx, sessionID, session.StatusActive); err != nil {
		if errors.Is(err, session.ErrInvalidTransition) {
			d.logger.Info(ctx, "Session moved on before initiation, skipping")
			return
		}
		d.logger.Error(ctx, "Failed to activate session", err)
		return
	}

	callID, err := d.initiator.InitiateCall(ctx, sess.Config.Phone, d.config.AnswerURL, d.config.StatusCallbackURL)
	if err != nil {
		// Provider rejected the call: fail the session, no retry.
		if failErr := d.registry.Fail(ctx, sessionID, fmt.Sprintf("call initiation failed: %v", err)); failErr != nil {
			d.logger.Error(ctx, "Failed to record initiation failure", failErr)
		}
		return
	}

	if err := d.registry.BindExternalCallID(ctx, sessionID, callID); err != nil {
		d.logger.Error(ctx, "Failed to bind provider call id", err)
	}
	if err := d.registry.UpdateStatus(ctx, sessionID, session.StatusCalling); err != nil && !errors.Is(err, session.ErrInvalidTransition) {
		d.logger.Error(ctx, "Failed to mark session calling", err)
	}
}
