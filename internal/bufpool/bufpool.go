// Package bufpool keeps a free list of equally sized byte buffers so that
// per-frame copies do not allocate once the pipeline is warm.
package bufpool

import "sync"

// DefaultMaxIdle bounds the number of buffers a Pool keeps around.
const DefaultMaxIdle = 8

// Pool hands out buffers of exactly Size bytes. A buffer obtained with Get
// belongs to the caller until it is given back with Put.
type Pool struct {
	size    int
	maxIdle int

	mu   sync.Mutex
	free [][]byte
}

// New returns a pool of size-byte buffers keeping at most maxIdle idle
// buffers. maxIdle <= 0 selects DefaultMaxIdle.
func New(size, maxIdle int) *Pool {
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdle
	}
	return &Pool{size: size, maxIdle: maxIdle}
}

// Size reports the length of buffers handed out by the pool.
func (p *Pool) Size() int { return p.size }

// Get returns an idle buffer or allocates a new one.
func (p *Pool) Get() []byte {
	p.mu.Lock()
	n := len(p.free)
	if n > 0 {
		b := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		p.mu.Unlock()
		return b
	}
	p.mu.Unlock()
	return make([]byte, p.size)
}

// Put returns b to the pool. Buffers of the wrong size, or beyond the idle
// limit, are left to the garbage collector.
func (p *Pool) Put(b []byte) {
	if cap(b) < p.size {
		return
	}
	b = b[:p.size]

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) >= p.maxIdle {
		return
	}
	p.free = append(p.free, b)
}

// Idle reports how many buffers are waiting in the pool.
func (p *Pool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
