/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package fanout delivers every published frame to all current subscribers through bounded queues.
// A subscriber that cannot keep up loses frames, and after too many consecutive losses it is shed.
package fanout

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"

	"github.com/acronis/go-wsrelay/log"
)

// Default values.
const (
	DefaultQueueDepth    = 20
	DefaultShedThreshold = 50
)

// Frame is a single upstream message. Data is shared by all subscribers and must not be modified.
type Frame struct {
	Seq  uint64
	Type int
	Data []byte
}

// Reason tells why a subscriber was removed by the broadcaster.
type Reason int

// Removal reasons.
const (
	ReasonNone Reason = iota
	ReasonShed
)

// Subscriber is a handle of a single consumer. Its queue is never closed;
// Done is closed when the broadcaster removes the subscriber on its own.
type Subscriber struct {
	id    string
	queue chan Frame
	done  chan struct{}

	// Guarded by Broadcaster.publishMu.
	consecutiveDrops int

	totalDrops atomic.Uint64
	reason     atomic.Int32
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string {
	return s.id
}

// Frames returns the channel to read frames from.
func (s *Subscriber) Frames() <-chan Frame {
	return s.queue
}

// Done returns a channel that is closed when the subscriber was removed by the broadcaster.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Reason returns the removal reason, ReasonNone while the subscriber is still served.
func (s *Subscriber) Reason() Reason {
	return Reason(s.reason.Load())
}

// Dropped returns the total number of frames dropped for the subscriber.
func (s *Subscriber) Dropped() uint64 {
	return s.totalDrops.Load()
}

// BroadcasterOpts contains optional parameters for constructing Broadcaster.
type BroadcasterOpts struct {
	QueueDepth    int
	ShedThreshold int
	Metrics       MetricsCollector
}

// Broadcaster fans frames out to subscribers.
type Broadcaster struct {
	subscribers   *xsync.MapOf[*Subscriber, struct{}]
	publishMu     sync.Mutex
	seq           uint64
	queueDepth    int
	shedThreshold int
	logger        log.FieldLogger
	metrics       MetricsCollector
}

// NewBroadcaster creates a new Broadcaster.
func NewBroadcaster(logger log.FieldLogger, opts BroadcasterOpts) *Broadcaster {
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = DefaultQueueDepth
	}
	if opts.ShedThreshold <= 0 {
		opts.ShedThreshold = DefaultShedThreshold
	}
	if opts.Metrics == nil {
		opts.Metrics = disabledMetrics{}
	}
	return &Broadcaster{
		subscribers:   xsync.NewMapOf[*Subscriber, struct{}](),
		queueDepth:    opts.QueueDepth,
		shedThreshold: opts.ShedThreshold,
		logger:        logger,
		metrics:       opts.Metrics,
	}
}

// Subscribe registers a new subscriber. It receives frames published after this call.
func (b *Broadcaster) Subscribe(id string) *Subscriber {
	sub := &Subscriber{
		id:    id,
		queue: make(chan Frame, b.queueDepth),
		done:  make(chan struct{}),
	}
	b.subscribers.Store(sub, struct{}{})
	b.metrics.SetSubscribers(b.subscribers.Size())
	return sub
}

// Unsubscribe removes the subscriber. It returns false if the subscriber is not registered
// (already removed or shed), which is logged and counted but otherwise harmless.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) bool {
	if sub == nil {
		return false
	}
	if _, loaded := b.subscribers.LoadAndDelete(sub); !loaded {
		if sub.Reason() == ReasonShed {
			return false
		}
		b.logger.Warn("unsubscribing unknown subscriber", log.String("subscriber_id", sub.id))
		b.metrics.IncUnknownUnsubscribes()
		return false
	}
	b.metrics.SetSubscribers(b.subscribers.Size())
	b.metrics.ObserveSubscriberDrops(sub.totalDrops.Load())
	return true
}

// Len returns the number of current subscribers.
func (b *Broadcaster) Len() int {
	return b.subscribers.Size()
}

// Publish enqueues the frame for every subscriber without blocking.
// Frames are numbered in publish order, so each subscriber sees a subsequence of that order.
func (b *Broadcaster) Publish(msgType int, data []byte) Frame {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	b.seq++
	frame := Frame{Seq: b.seq, Type: msgType, Data: data}
	b.metrics.IncPublished()

	b.subscribers.Range(func(sub *Subscriber, _ struct{}) bool {
		select {
		case sub.queue <- frame:
			sub.consecutiveDrops = 0
		default:
			sub.consecutiveDrops++
			sub.totalDrops.Inc()
			b.metrics.IncDropped()
			if sub.consecutiveDrops >= b.shedThreshold {
				b.shed(sub)
			}
		}
		return true
	})
	return frame
}

func (b *Broadcaster) shed(sub *Subscriber) {
	// The reason is set first so a concurrent Unsubscribe by the owner does not report a violation.
	sub.reason.Store(int32(ReasonShed))
	if _, loaded := b.subscribers.LoadAndDelete(sub); !loaded {
		sub.reason.Store(int32(ReasonNone))
		return
	}
	close(sub.done)
	b.logger.Warn("subscriber is too slow, shedding it",
		log.String("subscriber_id", sub.id),
		log.Int("consecutive_drops", sub.consecutiveDrops),
		log.Uint64("total_drops", sub.totalDrops.Load()))
	b.metrics.IncShed()
	b.metrics.SetSubscribers(b.subscribers.Size())
	b.metrics.ObserveSubscriberDrops(sub.totalDrops.Load())
}
