/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package fanout

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-wsrelay/log"
	"github.com/acronis/go-wsrelay/log/logtest"
	"github.com/acronis/go-wsrelay/testutil"
)

const textMessage = 1

func drain(sub *Subscriber) []Frame {
	var frames []Frame
	for {
		select {
		case f := <-sub.Frames():
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func TestBroadcaster_Ordering(t *testing.T) {
	const framesNum = 1000
	b := NewBroadcaster(logtest.NewRecorder(), BroadcasterOpts{QueueDepth: framesNum})
	subs := []*Subscriber{b.Subscribe("a"), b.Subscribe("b"), b.Subscribe("c")}
	require.Equal(t, 3, b.Len())

	for i := 0; i < framesNum; i++ {
		f := b.Publish(textMessage, []byte(fmt.Sprintf("block-%d", i)))
		require.EqualValues(t, i+1, f.Seq)
	}

	for _, sub := range subs {
		frames := drain(sub)
		require.Len(t, frames, framesNum)
		for i, f := range frames {
			require.EqualValues(t, i+1, f.Seq)
			require.Equal(t, textMessage, f.Type)
			require.Equal(t, fmt.Sprintf("block-%d", i), string(f.Data))
		}
	}
}

func TestBroadcaster_OrderingWithConcurrentReader(t *testing.T) {
	const framesNum = 5000
	b := NewBroadcaster(logtest.NewRecorder(), BroadcasterOpts{QueueDepth: 8, ShedThreshold: framesNum * 2})
	sub := b.Subscribe("reader")

	var received []Frame
	done := make(chan struct{})
	go func() {
		defer close(done)
		for f := range sub.Frames() {
			received = append(received, f)
			if f.Seq >= framesNum {
				return
			}
		}
	}()

	for i := 0; i < framesNum; i++ {
		b.Publish(textMessage, []byte{byte(i)})
	}
	// The last frame may have been dropped, keep publishing until the reader sees the tail.
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for waiting := true; waiting; {
		select {
		case <-done:
			waiting = false
		case <-ticker.C:
			b.Publish(textMessage, nil)
		}
	}

	require.NotEmpty(t, received)
	for i := 1; i < len(received); i++ {
		require.Greater(t, received[i].Seq, received[i-1].Seq, "frames must come in publish order")
	}
}

func TestBroadcaster_DropUnderPressure(t *testing.T) {
	metrics := NewPrometheusMetrics("test")
	b := NewBroadcaster(logtest.NewRecorder(), BroadcasterOpts{QueueDepth: 4, ShedThreshold: 100, Metrics: metrics})
	stalled := b.Subscribe("stalled")
	healthy := b.Subscribe("healthy")

	for i := 1; i <= 10; i++ {
		b.Publish(textMessage, []byte{byte(i)})
		if i%2 == 0 {
			drain(healthy)
		}
	}

	frames := drain(stalled)
	require.Len(t, frames, 4)
	for i, f := range frames {
		require.EqualValues(t, i+1, f.Seq, "the oldest frames are kept, the newest are dropped")
	}
	require.EqualValues(t, 6, stalled.Dropped())
	require.EqualValues(t, 0, healthy.Dropped())
	require.Equal(t, 6.0, testutil.CounterValue(t, metrics.FramesDroppedTotal))
	require.Equal(t, 10.0, testutil.CounterValue(t, metrics.FramesPublishedTotal))

	// Successful enqueue resets the consecutive counter.
	b.Publish(textMessage, []byte("next"))
	require.Equal(t, 0, stalled.consecutiveDrops)
	require.Equal(t, 2, b.Len())
}

func TestBroadcaster_Shedding(t *testing.T) {
	logger := logtest.NewRecorder()
	metrics := NewPrometheusMetrics("test")
	b := NewBroadcaster(logger, BroadcasterOpts{QueueDepth: 2, ShedThreshold: 3, Metrics: metrics})
	slow := b.Subscribe("slow")
	fast := b.Subscribe("fast")

	for i := 0; i < 4; i++ {
		b.Publish(textMessage, []byte{byte(i)})
		drain(fast)
	}
	select {
	case <-slow.Done():
		t.Fatal("subscriber must not be shed before reaching the threshold")
	default:
	}
	require.Equal(t, ReasonNone, slow.Reason())

	b.Publish(textMessage, []byte("threshold"))
	require.Len(t, drain(fast), 1)
	select {
	case <-slow.Done():
	default:
		t.Fatal("subscriber must be shed")
	}
	require.Equal(t, ReasonShed, slow.Reason())
	require.Equal(t, 1, b.Len())
	require.Equal(t, 1.0, testutil.CounterValue(t, metrics.SubscribersShedTotal))
	require.Equal(t, 1.0, testutil.GaugeValue(t, metrics.Subscribers))
	testutil.RequireSamplesCountInHistogram(t, metrics.SubscriberDroppedFrames, 1)
	require.Equal(t, 3.0, testutil.HistogramSampleSum(t, metrics.SubscriberDroppedFrames))

	entry, found := logger.FindEntry("subscriber is too slow, shedding it")
	require.True(t, found)
	require.Equal(t, log.LevelWarn, entry.Level)
	require.Equal(t, "slow", entry.StringField("subscriber_id"))

	// Queue of a shed subscriber stays open and keeps the frames it got.
	require.Len(t, drain(slow), 2)

	// Owner's unsubscribe after shedding is expected and not a violation.
	require.False(t, b.Unsubscribe(slow))
	require.Equal(t, 0.0, testutil.CounterValue(t, metrics.UnknownUnsubscribesTotal))

	b.Publish(textMessage, []byte("after"))
	require.Empty(t, drain(slow))
	require.Len(t, drain(fast), 1)
}

func TestBroadcaster_UnknownUnsubscribe(t *testing.T) {
	logger := logtest.NewRecorder()
	metrics := NewPrometheusMetrics("test")
	b := NewBroadcaster(logger, BroadcasterOpts{Metrics: metrics})

	sub := b.Subscribe("x")
	require.True(t, b.Unsubscribe(sub))
	require.Equal(t, 0, b.Len())
	require.False(t, b.Unsubscribe(sub))
	require.False(t, b.Unsubscribe(nil))

	require.Equal(t, 1, logger.CountEntries("unsubscribing unknown subscriber"))
	require.Equal(t, 1.0, testutil.CounterValue(t, metrics.UnknownUnsubscribesTotal))
	testutil.RequireSamplesCountInHistogram(t, metrics.SubscriberDroppedFrames, 1)

	b.Publish(textMessage, []byte("nobody"))
	require.Empty(t, drain(sub))
}

func TestBroadcaster_ConcurrentSubscribeAndPublish(t *testing.T) {
	b := NewBroadcaster(logtest.NewRecorder(), BroadcasterOpts{QueueDepth: 16, ShedThreshold: 1 << 20})

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; ; j++ {
				select {
				case <-stop:
					return
				default:
				}
				sub := b.Subscribe(fmt.Sprintf("%d-%d", i, j))
				drain(sub)
				b.Unsubscribe(sub)
			}
		}(i)
	}
	for i := 0; i < 2000; i++ {
		b.Publish(textMessage, []byte("x"))
	}
	close(stop)
	wg.Wait()
	require.Equal(t, 0, b.Len())
}
