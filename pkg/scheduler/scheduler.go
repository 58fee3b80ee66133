// Package scheduler bounds the rate and concurrency of outbound requests to a
// single upstream service.
//
// Each upstream (TMDB, Trakt, Fanart.tv) owns its own Scheduler. A Scheduler
// enforces a token reservoir that is refilled to its full size at every
// window boundary, a cap on requests in flight, and optionally a minimum
// spacing between task starts. Tasks wait in FIFO order.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrClosed is returned for tasks submitted to, or still queued in, a closed scheduler.
var ErrClosed = errors.New("scheduler closed")

// Task is one outbound call. The context passed to a task is never cancelled
// by the submitting caller giving up.
type Task func(ctx context.Context) ([]byte, error)

// Result is the outcome of a Task.
type Result struct {
	Body []byte
	Err  error
}

// Config holds the limits of one upstream.
type Config struct {
	// Name labels logs and metrics (e.g. "tmdb", "trakt_get").
	Name string

	// ReservoirSize is the number of requests allowed per refill window.
	ReservoirSize int

	// RefillInterval is the length of a window. The reservoir is reset to
	// ReservoirSize at every boundary, it does not leak.
	RefillInterval time.Duration

	// MaxConcurrent is the number of requests allowed in flight.
	MaxConcurrent int

	// MinInterval spaces task starts; zero disables pacing.
	MinInterval time.Duration

	// QueueSize is the capacity of the FIFO wait queue.
	QueueSize int
}

// DefaultConfig returns the TMDB limits: 50 requests per second, 20 in flight.
func DefaultConfig(name string) Config {
	return Config{
		Name:           name,
		ReservoirSize:  50,
		RefillInterval: time.Second,
		MaxConcurrent:  20,
		QueueSize:      1024,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("scheduler name is required")
	}
	if c.ReservoirSize <= 0 {
		return fmt.Errorf("reservoir size must be > 0 (got %d)", c.ReservoirSize)
	}
	if c.RefillInterval <= 0 {
		return fmt.Errorf("refill interval must be > 0 (got %s)", c.RefillInterval)
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max concurrent must be > 0 (got %d)", c.MaxConcurrent)
	}
	if c.MinInterval < 0 {
		return fmt.Errorf("min interval must be >= 0 (got %s)", c.MinInterval)
	}
	return nil
}

type job struct {
	ctx      context.Context
	task     Task
	result   chan Result
	enqueued time.Time
}

// Scheduler admits tasks against a refilling reservoir and runs them on a
// fixed pool of MaxConcurrent workers.
//
// The reservoir counter is owned by the dispatcher goroutine alone; the
// in-flight cap is the worker count.
type Scheduler struct {
	cfg    Config
	logger zerolog.Logger

	queue  chan *job
	work   chan *job
	refill <-chan time.Time
	pacer  *rate.Limiter

	ctx        context.Context
	cancel     context.CancelFunc
	stopRefill func()
	closeOnce  sync.Once
	wg         sync.WaitGroup

	// mu orders enqueues against the final drain in Close.
	mu     sync.RWMutex
	closed bool
}

// New creates and starts a scheduler.
func New(cfg Config, logger zerolog.Logger) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ticker := time.NewTicker(cfg.RefillInterval)
	s := start(cfg, logger, ticker.C)
	s.stopRefill = ticker.Stop
	return s, nil
}

// start wires the dispatcher to an arbitrary refill signal.
func start(cfg Config, logger zerolog.Logger, refill <-chan time.Time) *Scheduler {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:    cfg,
		logger: logger.With().Str("upstream", cfg.Name).Logger(),
		queue:  make(chan *job, cfg.QueueSize),
		work:   make(chan *job),
		refill: refill,
		ctx:    ctx,
		cancel: cancel,
	}
	if cfg.MinInterval > 0 {
		s.pacer = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}

	tokensRemaining.WithLabelValues(cfg.Name).Set(float64(cfg.ReservoirSize))

	s.wg.Add(1 + cfg.MaxConcurrent)
	go s.dispatch()
	for i := 0; i < cfg.MaxConcurrent; i++ {
		go s.worker()
	}

	s.logger.Debug().
		Int("reservoir", cfg.ReservoirSize).
		Dur("refill_interval", cfg.RefillInterval).
		Int("max_concurrent", cfg.MaxConcurrent).
		Dur("min_interval", cfg.MinInterval).
		Msg("Scheduler started")

	return s
}

// Name returns the upstream name.
func (s *Scheduler) Name() string {
	return s.cfg.Name
}

// Submit enqueues a task and returns a channel that receives exactly one Result.
// Giving up on ctx does not cancel the task once it has been queued.
func (s *Scheduler) Submit(ctx context.Context, task Task) <-chan Result {
	j := &job{
		ctx:      context.WithoutCancel(ctx),
		task:     task,
		result:   make(chan Result, 1),
		enqueued: time.Now(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		j.result <- Result{Err: ErrClosed}
		return j.result
	}

	select {
	case s.queue <- j:
		queueDepth.WithLabelValues(s.cfg.Name).Inc()
	case <-ctx.Done():
		j.result <- Result{Err: ctx.Err()}
	case <-s.ctx.Done():
		j.result <- Result{Err: ErrClosed}
	}
	return j.result
}

// Do submits a task and waits for its result or for ctx to be done.
func (s *Scheduler) Do(ctx context.Context, task Task) ([]byte, error) {
	select {
	case r := <-s.Submit(ctx, task):
		return r.Body, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops admitting tasks, waits for running tasks and fails queued ones.
func (s *Scheduler) Close() error {
	s.closeOnce.Do(func() {
		// cancel first so Submits blocked on a full queue release mu
		s.cancel()
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.wg.Wait()
		if s.stopRefill != nil {
			s.stopRefill()
		}
		for {
			select {
			case j := <-s.queue:
				queueDepth.WithLabelValues(s.cfg.Name).Dec()
				j.result <- Result{Err: ErrClosed}
			default:
				s.logger.Debug().Msg("Scheduler closed")
				return
			}
		}
	})
	return nil
}

// dispatch moves queued jobs to the workers, one reservoir token per job.
func (s *Scheduler) dispatch() {
	defer s.wg.Done()
	defer close(s.work)

	tokens := s.cfg.ReservoirSize
	for {
		in := s.queue
		if tokens == 0 {
			in = nil
		}

		select {
		case <-s.ctx.Done():
			return

		case <-s.refill:
			if tokens == 0 {
				reservoirRefills.WithLabelValues(s.cfg.Name).Inc()
			}
			tokens = s.cfg.ReservoirSize
			tokensRemaining.WithLabelValues(s.cfg.Name).Set(float64(tokens))

		case j := <-in:
			queueDepth.WithLabelValues(s.cfg.Name).Dec()
			tokens--
			tokensRemaining.WithLabelValues(s.cfg.Name).Set(float64(tokens))
			if tokens == 0 {
				s.logger.Debug().Msg("Reservoir exhausted, waiting for refill")
			}

			if s.pacer != nil {
				if err := s.pacer.Wait(s.ctx); err != nil {
					j.result <- Result{Err: ErrClosed}
					return
				}
			}

			select {
			case s.work <- j:
			case <-s.ctx.Done():
				j.result <- Result{Err: ErrClosed}
				return
			}
		}
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for j := range s.work {
		s.run(j)
	}
}

func (s *Scheduler) run(j *job) {
	queueWait.WithLabelValues(s.cfg.Name).Observe(time.Since(j.enqueued).Seconds())
	inFlight.WithLabelValues(s.cfg.Name).Inc()
	start := time.Now()

	body, err := s.execute(j)

	inFlight.WithLabelValues(s.cfg.Name).Dec()
	taskDuration.WithLabelValues(s.cfg.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		tasksTotal.WithLabelValues(s.cfg.Name, "error").Inc()
	} else {
		tasksTotal.WithLabelValues(s.cfg.Name, "success").Inc()
	}

	j.result <- Result{Body: body, Err: err}
}

func (s *Scheduler) execute(j *job) (body []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("Task panicked")
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return j.task(j.ctx)
}
