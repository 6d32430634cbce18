// Package notify turns "new data may be available" push signals into
// debounced refresh runs.
package notify

import (
	"context"
	"sync"
	"time"

	"k8s.io/klog"
)

// Source is an external push channel keyed by user id. Events carry no
// payload guarantees; a signal only means new data may exist. Subscribe
// returns an unsubscribe function.
type Source interface {
	Subscribe(userID string, fn func()) (func(), error)
}

// Refresher is the slice of the orchestrator the listener needs.
type Refresher interface {
	Refresh(ctx context.Context, force bool) error
}

const DefaultDebounce = 2 * time.Second

// Listener debounces change signals: a burst of signals inside the debounce
// window collapses into a single non-forced refresh after the burst goes
// quiet.
type Listener struct {
	userID    string
	refresher Refresher
	debounce  time.Duration

	mu          sync.Mutex
	timer       *time.Timer
	closed      bool
	unsubscribe func()
}

func NewListener(source Source, refresher Refresher, userID string, debounce time.Duration) (*Listener, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	l := &Listener{
		userID:    userID,
		refresher: refresher,
		debounce:  debounce,
	}

	unsubscribe, err := source.Subscribe(userID, l.onSignal)
	if err != nil {
		return nil, err
	}
	l.unsubscribe = unsubscribe

	return l, nil
}

func (l *Listener) onSignal() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	// a newer signal restarts the quiet period
	if l.timer != nil {
		l.timer.Stop()
	}

	l.timer = time.AfterFunc(l.debounce, l.fire)
}

func (l *Listener) fire() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.timer = nil
	l.mu.Unlock()

	err := l.refresher.Refresh(context.Background(), false)
	if err != nil {
		klog.Errorf("change-triggered refresh for user %s failed: %v", l.userID, err)
	}
}

// Close cancels any pending debounce timer and unsubscribes from the
// source. Signals delivered after Close are ignored.
func (l *Listener) Close() {
	l.mu.Lock()
	l.closed = true
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	unsubscribe := l.unsubscribe
	l.unsubscribe = nil
	l.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}
