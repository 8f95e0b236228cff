package supervisor

import (
	"sync"
	"time"

	"go2tv.app/screenrec/internal/logging"
)

// Registry tracks every live encoder process started by this application so
// they can all be torn down when the application exits or crashes.
type Registry struct {
	mu    sync.Mutex
	procs map[int]*Process
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{procs: make(map[int]*Process)}
}

// Register adds p. Registering the same pid twice replaces the entry.
func (r *Registry) Register(p *Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs[p.PID()] = p
}

// Unregister removes p if it is still the entry for its pid.
func (r *Registry) Unregister(p *Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.procs[p.PID()]; ok && cur == p {
		delete(r.procs, p.PID())
	}
}

// List returns a snapshot of the tracked processes.
func (r *Registry) List() []*Process {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Process, 0, len(r.procs))
	for _, p := range r.procs {
		out = append(out, p)
	}
	return out
}

// Len reports the number of tracked processes.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs)
}

// KillAll force-terminates every tracked process and empties the registry.
// The table is detached under the lock and the kills run outside of it, so
// exit notifications racing with KillAll never deadlock. Each process gets
// up to wait to exit; stragglers are logged and left to the OS.
func (r *Registry) KillAll(wait time.Duration) int {
	r.mu.Lock()
	procs := r.procs
	r.procs = make(map[int]*Process)
	r.mu.Unlock()

	if len(procs) == 0 {
		return 0
	}

	var wg sync.WaitGroup
	for _, p := range procs {
		wg.Add(1)
		go func(p *Process) {
			defer wg.Done()
			if !p.Kill(wait) {
				log.Warn("process did not exit after kill", logging.KeyPID, p.PID(), "label", p.Label())
			}
		}(p)
	}
	wg.Wait()
	log.Info("killed tracked processes", "count", len(procs))
	return len(procs)
}

// GuardPanic is meant to be deferred at the top of main and of goroutines
// owning encoders. On panic it kills every tracked process, then re-panics.
func (r *Registry) GuardPanic(wait time.Duration) {
	if v := recover(); v != nil {
		r.KillAll(wait)
		panic(v)
	}
}
