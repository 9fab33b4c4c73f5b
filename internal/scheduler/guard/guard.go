// Package guard keeps two runs of the same scheduler job from overlapping
// inside one process.
package guard

import (
	"errors"
	"strings"
	"sync"
)

var ErrJobRunning = errors.New("scheduler_job_running")

type Guard struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func New() *Guard {
	return &Guard{running: make(map[string]struct{})}
}

// Acquire marks job as running. The returned release must be called once
// the run ends; it is safe to call more than once.
func (g *Guard) Acquire(job string) (func(), error) {
	job = strings.TrimSpace(job)
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.running[job]; ok {
		return nil, ErrJobRunning
	}
	g.running[job] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.running, job)
			g.mu.Unlock()
		})
	}, nil
}

func (g *Guard) Running(job string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.running[strings.TrimSpace(job)]
	return ok
}
