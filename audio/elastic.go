package audio

import "sync"

// elasticBuffer is a bounded FIFO of raw PCM. Writes never block: when the
// buffer is full the oldest bytes are discarded. Reads always fill the
// destination, padding with silence.
type elasticBuffer struct {
	mu    sync.Mutex
	buf   []byte
	start int
	n     int
	align int

	overflowed uint64
}

func newElasticBuffer(capacity, align int) *elasticBuffer {
	if align <= 0 {
		align = 1
	}
	capacity -= capacity % align
	if capacity < align {
		capacity = align
	}
	return &elasticBuffer{buf: make([]byte, capacity), align: align}
}

// Write appends p, dropping the oldest data to make room.
func (b *elasticBuffer) Write(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := len(b.buf)
	if len(p) >= c {
		// Only the newest bytes survive, starting on a frame boundary.
		keep := c
		if partial := (b.n + len(p)) % b.align; partial != 0 {
			keep = c - b.align + partial
		}
		b.overflowed += uint64(b.n + len(p) - keep)
		copy(b.buf, p[len(p)-keep:])
		b.start = 0
		b.n = keep
		return
	}

	if over := b.n + len(p) - c; over > 0 {
		if r := over % b.align; r != 0 {
			over += b.align - r
		}
		b.discardLocked(over)
		b.overflowed += uint64(over)
	}

	end := (b.start + b.n) % c
	k := copy(b.buf[end:], p)
	copy(b.buf, p[k:])
	b.n += len(p)
}

// Read fills p completely and reports how many bytes came from the buffer;
// the rest is zeroed.
func (b *elasticBuffer) Read(p []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Whole frames only; a trailing partial frame waits for its remainder.
	want := min(len(p), b.n)
	want -= want % b.align
	c := len(b.buf)
	k := copy(p[:want], b.buf[b.start:min(b.start+want, c)])
	copy(p[k:want], b.buf[:want-k])
	b.start = (b.start + want) % c
	b.n -= want

	clear(p[want:])
	return want
}

// Len reports the buffered byte count.
func (b *elasticBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

// Discard drops up to n of the oldest bytes, rounded down to whole frames,
// and returns the amount dropped.
func (b *elasticBuffer) Discard(n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n -= n % b.align
	if n > b.n {
		n = b.n - b.n%b.align
	}
	b.discardLocked(n)
	return n
}

func (b *elasticBuffer) discardLocked(n int) {
	if n > b.n {
		n = b.n
	}
	b.start = (b.start + n) % len(b.buf)
	b.n -= n
}

func (b *elasticBuffer) Overflowed() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overflowed
}
