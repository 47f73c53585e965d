package loadctrl

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Iteration is one pass of a scenario's default function.
type Iteration func(ctx context.Context) error

// IterationObserver is told about every finished iteration.
type IterationObserver func(vu int, d time.Duration, err error)

type vuKey struct{}

// WithVU stores the VU id in ctx.
func WithVU(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, vuKey{}, id)
}

// VUFrom returns the VU id stored in ctx, or 0.
func VUFrom(ctx context.Context) int {
	id, _ := ctx.Value(vuKey{}).(int)
	return id
}

// VUPoolStats is a point-in-time view of the pool.
type VUPoolStats struct {
	// Target is the number of VUs the pool was last resized to.
	Target int
	// Active counts VU goroutines still running, including ones draining.
	Active int
	// Iterations counts completed iterations, failed ones included.
	Iterations int64
	Failed     int64
}

// VUPool runs a resizable set of virtual users. Each VU loops its Iteration
// until stopped; a stopped VU finishes the iteration in flight first.
//
// Thread Safety: Safe for concurrent use.
type VUPool struct {
	fn       Iteration
	observer IterationObserver
	maxVUs   int

	mu     sync.Mutex
	vus    []*vu
	nextID int
	ctx    context.Context
	wg     sync.WaitGroup

	running    atomic.Bool
	active     atomic.Int32
	iterations atomic.Int64
	failed     atomic.Int64
}

type vu struct {
	id      int
	stopCh  chan struct{}
	stopped atomic.Bool
}

func (v *vu) stop() {
	if v.stopped.Swap(true) {
		return
	}
	close(v.stopCh)
}

// NewVUPool creates a pool running fn. maxVUs caps Resize; 0 means no cap.
func NewVUPool(fn Iteration, maxVUs int, observer IterationObserver) *VUPool {
	return &VUPool{
		fn:       fn,
		observer: observer,
		maxVUs:   maxVUs,
	}
}

// Start makes the pool ready. Iterations run with ctx; cancelling it aborts
// them instead of letting them finish.
func (p *VUPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running.Swap(true) {
		return
	}
	p.ctx = ctx
}

// Resize adds or stops VUs to reach n. Stopped VUs drain in the background.
func (p *VUPool) Resize(n int) {
	if !p.running.Load() {
		return
	}
	if n < 0 {
		n = 0
	}
	if p.maxVUs > 0 && n > p.maxVUs {
		n = p.maxVUs
	}

	p.mu.Lock()
	// Stop may have won the race since the check above.
	if !p.running.Load() {
		p.mu.Unlock()
		return
	}
	var toStop []*vu
	for len(p.vus) < n {
		p.nextID++
		v := &vu{id: p.nextID, stopCh: make(chan struct{})}
		p.vus = append(p.vus, v)
		p.wg.Add(1)
		p.active.Add(1)
		go p.run(p.ctx, v)
	}
	for len(p.vus) > n {
		last := len(p.vus) - 1
		toStop = append(toStop, p.vus[last])
		p.vus = p.vus[:last]
	}
	p.mu.Unlock()

	for _, v := range toStop {
		v.stop()
	}
}

// Stop asks every VU to stop after its current iteration. It does not wait.
func (p *VUPool) Stop() {
	p.mu.Lock()
	if !p.running.Swap(false) {
		p.mu.Unlock()
		return
	}
	vus := p.vus
	p.vus = nil
	p.mu.Unlock()

	for _, v := range vus {
		v.stop()
	}
}

// Wait blocks until every VU has exited or timeout passes. It reports whether
// all VUs exited.
func (p *VUPool) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// Size returns the current VU target.
func (p *VUPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.vus)
}

// Stats returns pool statistics.
func (p *VUPool) Stats() VUPoolStats {
	return VUPoolStats{
		Target:     p.Size(),
		Active:     int(p.active.Load()),
		Iterations: p.iterations.Load(),
		Failed:     p.failed.Load(),
	}
}

func (p *VUPool) run(ctx context.Context, v *vu) {
	defer p.wg.Done()
	defer p.active.Add(-1)

	ctx = WithVU(ctx, v.id)
	for {
		select {
		case <-ctx.Done():
			return
		case <-v.stopCh:
			return
		default:
		}

		start := time.Now()
		err := p.iterate(ctx)
		d := time.Since(start)

		// An iteration cut short by a hard stop is not counted.
		if ctx.Err() != nil {
			return
		}
		p.iterations.Add(1)
		if err != nil {
			p.failed.Add(1)
		}
		if p.observer != nil {
			p.observer(v.id, d, err)
		}
	}
}

func (p *VUPool) iterate(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loadctrl: iteration panicked: %v", r)
		}
	}()
	return p.fn(ctx)
}
