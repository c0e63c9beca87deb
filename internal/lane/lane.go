// Package lane serializes work per key. Each key gets its own worker
// goroutine that runs jobs one at a time in FIFO order:
//
//   - Submit: append a job to the lane's queue
//   - Do: submit and wait for completion
//   - DoUrgent: cancel the in-flight job, run this one next and wait
//
// Lanes live until Close is called for their key or the manager stops.
package lane

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/dayuer/haggle-go/internal/logger"
)

var (
	ErrQueueFull  = errors.New("lane queue full")
	ErrLaneClosed = errors.New("lane closed")
	ErrStopped    = errors.New("lane manager stopped")
)

// Job is a unit of work. ctx is canceled when an urgent job preempts it or
// the manager stops.
type Job func(ctx context.Context)

type laneItem struct {
	job  Job
	done chan struct{}
}

// lane is a single key's queue and worker state.
type lane struct {
	key        string
	queue      chan laneItem
	urgent     chan laneItem
	quit       chan struct{}
	closed     bool
	idle       bool
	lastActive time.Time
	cancel     context.CancelFunc
	mu         sync.Mutex
}

// Manager owns the lanes for all keys.
type Manager struct {
	mu         sync.RWMutex
	lanes      map[string]*lane
	queueLimit int
	ctx        context.Context
	stop       context.CancelFunc
	stopped    bool
	log        *logger.Logger
}

// ManagerConfig configures a lane Manager.
type ManagerConfig struct {
	QueueLimit int // per-lane pending jobs (default 256)
	Logger     *logger.Logger
}

// NewManager creates a lane manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.QueueLimit <= 0 {
		cfg.QueueLimit = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewComponentLogger("lane")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		lanes:      make(map[string]*lane),
		queueLimit: cfg.QueueLimit,
		ctx:        ctx,
		stop:       cancel,
		log:        cfg.Logger,
	}
}

// Submit queues job on key's lane without waiting.
func (m *Manager) Submit(key string, job Job) error {
	_, err := m.enqueue(key, job, false)
	return err
}

// Do queues job and waits until it has run, the lane is closed or ctx ends.
func (m *Manager) Do(ctx context.Context, key string, job Job) error {
	done, err := m.enqueue(key, job, false)
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DoUrgent cancels the lane's in-flight job, queues job ahead of everything
// else and waits for it to run.
func (m *Manager) DoUrgent(ctx context.Context, key string, job Job) error {
	done, err := m.enqueue(key, job, true)
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) enqueue(key string, job Job, urgent bool) (<-chan struct{}, error) {
	l, err := m.getOrCreateLane(key)
	if err != nil {
		return nil, err
	}
	item := laneItem{job: job, done: make(chan struct{})}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrLaneClosed
	}
	target := l.queue
	if urgent {
		target = l.urgent
		if l.cancel != nil {
			l.cancel()
		}
	}
	select {
	case target <- item:
		return item.done, nil
	default:
		return nil, errors.Wrapf(ErrQueueFull, "lane %s", key)
	}
}

// getOrCreateLane gets or creates the lane for key and starts its worker.
func (m *Manager) getOrCreateLane(key string) (*lane, error) {
	m.mu.RLock()
	l, ok := m.lanes[key]
	stopped := m.stopped
	m.mu.RUnlock()
	if stopped {
		return nil, ErrStopped
	}
	if ok {
		return l, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return nil, ErrStopped
	}
	if l, ok := m.lanes[key]; ok {
		return l, nil
	}
	l = &lane{
		key:        key,
		queue:      make(chan laneItem, m.queueLimit),
		urgent:     make(chan laneItem, 8),
		quit:       make(chan struct{}),
		idle:       true,
		lastActive: time.Now(),
	}
	m.lanes[key] = l
	go m.runWorker(l)
	return l, nil
}

// runWorker is the per-lane worker loop. Urgent jobs are always taken first.
func (m *Manager) runWorker(l *lane) {
	defer l.drain()
	for {
		select {
		case item := <-l.urgent:
			m.run(l, item)
			continue
		default:
		}

		select {
		case item := <-l.urgent:
			m.run(l, item)
		case item := <-l.queue:
			m.run(l, item)
		case <-l.quit:
			return
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) run(l *lane, item laneItem) {
	ctx, cancel := context.WithCancel(m.ctx)
	l.mu.Lock()
	l.idle = false
	l.lastActive = time.Now()
	l.cancel = cancel
	l.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			m.log.Error("lane job panicked", "lane", l.key, "panic", r)
		}
		cancel()
		l.mu.Lock()
		l.idle = true
		l.lastActive = time.Now()
		l.cancel = nil
		l.mu.Unlock()
		close(item.done)
	}()
	item.job(ctx)
}

// drain releases waiters of jobs that will never run.
func (l *lane) drain() {
	for {
		select {
		case item := <-l.urgent:
			close(item.done)
		case item := <-l.queue:
			close(item.done)
		default:
			return
		}
	}
}

// Close stops key's worker after its in-flight job. Jobs still queued may
// be dropped; Do callers waiting on them return.
func (m *Manager) Close(key string) {
	m.mu.Lock()
	l, ok := m.lanes[key]
	delete(m.lanes, key)
	m.mu.Unlock()
	if !ok {
		return
	}
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.quit)
	}
	l.mu.Unlock()
}

// Stop cancels in-flight jobs and shuts down every worker.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	m.stop()
}

// Stats returns lane manager statistics.
func (m *Manager) Stats() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active, queued := 0, 0
	for _, l := range m.lanes {
		l.mu.Lock()
		if !l.idle {
			active++
		}
		queued += len(l.queue) + len(l.urgent)
		l.mu.Unlock()
	}

	return map[string]any{
		"totalLanes":  len(m.lanes),
		"activeLanes": active,
		"queuedJobs":  queued,
	}
}
