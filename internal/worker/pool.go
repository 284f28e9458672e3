package worker

import (
	"context"
	"sync"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

type slot struct {
	index int
	job   Job
}

// Pool runs jobs on a fixed number of workers and hands the results back
// in submission order. Cancelling the parent context stops queued jobs
// from starting; their result slots stay nil.
type Pool struct {
	workers int
	queue   chan slot
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	results []Result

	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

// NewPool creates a pool whose jobs see a child of parent. Fewer than one
// worker means one.
func NewPool(parent context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(parent)
	return &Pool{
		workers: workers,
		queue:   make(chan slot, workers*2),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers. Submit starts the pool on first use.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		for range p.workers {
			p.wg.Add(1)
			go p.work()
		}
	})
}

func (p *Pool) work() {
	defer p.wg.Done()
	for s := range p.queue {
		if p.ctx.Err() != nil {
			continue
		}
		res := s.job.Execute(p.ctx)
		p.mu.Lock()
		p.results[s.index] = res
		p.mu.Unlock()
	}
}

// Submit queues job and reports whether it was accepted. After the pool
// context ends nothing is accepted.
func (p *Pool) Submit(job Job) bool {
	p.Start()
	if p.ctx.Err() != nil {
		return false
	}

	p.mu.Lock()
	index := len(p.results)
	p.results = append(p.results, nil)
	p.mu.Unlock()

	select {
	case <-p.ctx.Done():
		return false
	case p.queue <- slot{index: index, job: job}:
		return true
	}
}

// Wait closes the queue, waits for the workers and returns one result per
// accepted job in submission order
func (p *Pool) Wait() []Result {
	p.Start()
	p.closeOnce.Do(func() { close(p.queue) })
	p.wg.Wait()
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Result, len(p.results))
	copy(out, p.results)
	return out
}
