package encoder

import (
	"sync"
	"time"

	"go2tv.app/screenrec/internal/pipe"
)

// lane owns one input channel of the encoder and keeps at most one write
// outstanding on it. All methods except submit's goroutine run with mu held.
type lane struct {
	name  string
	ch    *pipe.Channel
	abort <-chan struct{}

	mu        sync.Mutex
	connected bool
	inflight  chan error
}

func newLane(name string, ch *pipe.Channel, abort <-chan struct{}) *lane {
	return &lane{name: name, ch: ch, abort: abort}
}

// handshake waits for the encoder to open the channel, once.
func (l *lane) handshake(timeout time.Duration) error {
	if l.connected {
		return nil
	}
	if err := l.ch.WaitConnected(timeout, l.abort); err != nil {
		return err
	}
	l.connected = true
	return nil
}

// await waits for the outstanding write. It reports false when the wait
// ended without the write finishing: timeout elapsed or abort fired.
// A non-positive timeout waits without a bound.
func (l *lane) await(timeout time.Duration) (bool, error) {
	if l.inflight == nil {
		return true, nil
	}

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case err := <-l.inflight:
		l.inflight = nil
		return true, err
	case <-expired:
		return false, nil
	case <-l.abort:
		// A result may have landed at the same time.
		select {
		case err := <-l.inflight:
			l.inflight = nil
			return true, err
		default:
			return false, nil
		}
	}
}

// drain is await without the abort channel, used during teardown.
func (l *lane) drain(timeout time.Duration) (bool, error) {
	if l.inflight == nil {
		return true, nil
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case err := <-l.inflight:
		l.inflight = nil
		return true, err
	case <-t.C:
		return false, nil
	}
}

// submit starts writing buf in the background. done runs once the write
// has finished with buf.
func (l *lane) submit(buf []byte, done func()) {
	res := make(chan error, 1)
	l.inflight = res
	go func() {
		_, err := l.ch.Write(buf)
		if done != nil {
			done()
		}
		res <- err
	}()
}
