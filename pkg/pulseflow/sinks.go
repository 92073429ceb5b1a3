package pulseflow

import (
	"errors"
	"fmt"
	"sync"
)

// ErrChannelSinkClosed is returned when a channel sink is written to after being closed.
var ErrChannelSinkClosed = errors.New("pulseflow: channel sink closed")

// MetricBatchSink is invoked with each batch of metrics an analysis writes.
type MetricBatchSink func([]PulseMetric) error

// NewCallbackSink adapts a MetricBatchSink into a MetricSink so callers can
// plug arbitrary functions without defining structs.
func NewCallbackSink(name string, fn MetricBatchSink) MetricSink {
	if name == "" {
		name = "callback"
	}
	return &callbackSink{name: name, fn: fn}
}

// NewChannelSink exposes batches via a channel; it returns the sink, the read-only channel,
// and a close function that the caller should invoke during shutdown.
func NewChannelSink(name string, buffer int) (MetricSink, <-chan []PulseMetric, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan []PulseMetric, buffer)
	s := &channelSink{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return s, ch, func() { s.close() }
}

type callbackSink struct {
	name string
	fn   MetricBatchSink
}

func (s *callbackSink) WriteBatch(metrics []PulseMetric) error {
	if s.fn == nil {
		return fmt.Errorf("callback sink %q: nil handler", s.name)
	}
	if len(metrics) == 0 {
		return nil
	}
	return s.fn(copyBatch(metrics))
}

func (s *callbackSink) Name() string { return s.name }

type channelSink struct {
	name   string
	ch     chan []PulseMetric
	closed chan struct{}
	once   sync.Once
}

func (s *channelSink) WriteBatch(metrics []PulseMetric) error {
	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	default:
	}

	if len(metrics) == 0 {
		return nil
	}

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	case s.ch <- copyBatch(metrics):
		return nil
	}
}

func (s *channelSink) Name() string { return s.name }

func (s *channelSink) close() {
	s.once.Do(func() {
		close(s.closed)
		close(s.ch)
	})
}

func copyBatch(metrics []PulseMetric) []PulseMetric {
	return append([]PulseMetric(nil), metrics...)
}
