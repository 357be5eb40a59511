// Package events fans out in-process domain events to subscribers.
package events

import (
	"sync"

	"github.com/vadiminshakov/whalewatch/internal/domain"
	"github.com/vadiminshakov/whalewatch/internal/metrics"
)

const defaultFeedBuffer = 64

// BalanceFeed delivers guard readings to live listeners.
//
// A STOP reading ends the feed: it is delivered, then every subscriber
// channel is closed and later subscribers get a closed channel at once.
type BalanceFeed struct {
	mu      sync.Mutex
	subs    map[chan domain.BalanceSnapshotRecord]struct{}
	buffer  int
	latest  domain.BalanceSnapshotRecord
	seen    bool
	stopped bool
}

// NewBalanceFeed creates a feed with the given per-subscriber buffer.
func NewBalanceFeed(buffer int) *BalanceFeed {
	if buffer < 1 {
		buffer = defaultFeedBuffer
	}
	return &BalanceFeed{
		subs:   make(map[chan domain.BalanceSnapshotRecord]struct{}),
		buffer: buffer,
	}
}

// Publish hands rec to every subscriber. A subscriber whose buffer is full
// misses rec; it can catch up from the snapshot store.
func (f *BalanceFeed) Publish(rec domain.BalanceSnapshotRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped {
		return
	}
	f.latest, f.seen = rec, true

	for ch := range f.subs {
		select {
		case ch <- rec:
		default:
			metrics.BalanceStreamDrops.Inc()
		}
	}

	if rec.Snapshot.Decision == domain.DecisionStop.String() {
		f.stopped = true
		for ch := range f.subs {
			close(ch)
			delete(f.subs, ch)
		}
	}
}

// Latest returns the last published reading, persisted or not.
func (f *BalanceFeed) Latest() (domain.BalanceSnapshotRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, f.seen
}

// Subscribe returns a channel receiving readings until Unsubscribe or STOP.
func (f *BalanceFeed) Subscribe() chan domain.BalanceSnapshotRecord {
	ch := make(chan domain.BalanceSnapshotRecord, f.buffer)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped {
		close(ch)
		return ch
	}
	f.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes ch and closes it. Unknown or already closed channels are ignored.
func (f *BalanceFeed) Unsubscribe(ch chan domain.BalanceSnapshotRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.subs[ch]; ok {
		delete(f.subs, ch)
		close(ch)
	}
}
