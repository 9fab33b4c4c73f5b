// Package notificationtest provides an in-memory Notifier for tests.
package notificationtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/Nikjeremic/uptiomio/internal/notification/domain"
)

type Sent struct {
	To   string
	Kind domain.Kind
	Data domain.Data
}

// Recorder captures every Send. FailFor makes sends to an address fail.
type Recorder struct {
	mu      sync.Mutex
	sent    []Sent
	failFor map[string]error
	seq     int
}

func NewRecorder() *Recorder {
	return &Recorder{failFor: map[string]error{}}
}

func (r *Recorder) FailFor(to string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failFor[to] = err
}

func (r *Recorder) Send(_ context.Context, to string, kind domain.Kind, data domain.Data) domain.Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	r.sent = append(r.sent, Sent{To: to, Kind: kind, Data: data})
	if err, ok := r.failFor[to]; ok {
		return domain.Result{Err: err}
	}
	return domain.Result{MessageID: fmt.Sprintf("msg-%d", r.seq)}
}

func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// OfKind filters the recorded sends.
func (r *Recorder) OfKind(kind domain.Kind) []Sent {
	var out []Sent
	for _, s := range r.Sent() {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}
