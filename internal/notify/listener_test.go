package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu           sync.Mutex
	signal       func()
	unsubscribed bool
}

func (s *fakeSource) Subscribe(userID string, fn func()) (func(), error) {
	s.signal = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.unsubscribed = true
	}, nil
}

type countingRefresher struct {
	mu    sync.Mutex
	calls int
}

func (r *countingRefresher) Refresh(ctx context.Context, force bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return nil
}

func (r *countingRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestListenerDebouncesSignalBursts(t *testing.T) {
	source := &fakeSource{}
	refresher := &countingRefresher{}

	listener, err := NewListener(source, refresher, "user-1", 20*time.Millisecond)
	require.NoError(t, err)
	defer listener.Close()

	for i := 0; i < 5; i++ {
		source.signal()
		time.Sleep(2 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 1, refresher.count())
}

func TestListenerRefreshesAgainAfterQuietPeriod(t *testing.T) {
	source := &fakeSource{}
	refresher := &countingRefresher{}

	listener, err := NewListener(source, refresher, "user-1", 10*time.Millisecond)
	require.NoError(t, err)
	defer listener.Close()

	source.signal()
	time.Sleep(50 * time.Millisecond)
	source.signal()
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 2, refresher.count())
}

func TestListenerCloseCancelsPendingRefresh(t *testing.T) {
	source := &fakeSource{}
	refresher := &countingRefresher{}

	listener, err := NewListener(source, refresher, "user-1", 20*time.Millisecond)
	require.NoError(t, err)

	source.signal()
	listener.Close()

	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, 0, refresher.count())
	assert.True(t, source.unsubscribed)
}

func TestListenerIgnoresSignalsAfterClose(t *testing.T) {
	source := &fakeSource{}
	refresher := &countingRefresher{}

	listener, err := NewListener(source, refresher, "user-1", 10*time.Millisecond)
	require.NoError(t, err)

	listener.Close()
	source.signal()

	time.Sleep(40 * time.Millisecond)

	assert.Equal(t, 0, refresher.count())
}
