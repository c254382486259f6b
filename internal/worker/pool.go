package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// Task is one unit of background work, typically a verification job run.
type Task struct {
	ID      string
	Execute func(ctx context.Context)
}

type Config struct {
	Workers   int
	QueueSize int
}

// Pool runs submitted tasks on a fixed set of goroutines. A panicking task
// is logged and the worker keeps serving the queue.
type Pool struct {
	workers   int
	taskQueue chan Task
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	running   bool
}

func New(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		workers:   cfg.Workers,
		taskQueue: make(chan Task, cfg.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("pool already running")
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.running = true
	return nil
}

// Stop drains the queue and waits for in-flight tasks.
func (p *Pool) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return fmt.Errorf("pool not running")
	}
	p.running = false
	p.mu.Unlock()

	close(p.taskQueue)
	p.wg.Wait()
	p.cancel()
	return nil
}

// Submit enqueues a task without blocking; a full queue is an error so the
// caller can answer the client instead of hanging the request.
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running {
		return fmt.Errorf("pool not running")
	}
	select {
	case p.taskQueue <- task:
		return nil
	default:
		return fmt.Errorf("task queue full")
	}
}

func (p *Pool) QueueDepth() int {
	return len(p.taskQueue)
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.taskQueue {
		p.run(task)
	}
}

func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			logutil.GetLogger(p.ctx).Error("task panicked",
				zap.String("task_id", task.ID), zap.Any("panic", r))
		}
	}()
	task.Execute(p.ctx)
}
