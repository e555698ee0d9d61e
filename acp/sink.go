package acp

import "sync/atomic"

// EventSink receives session updates relayed from agents. Emit is called on
// the connection's reader goroutine and must not block.
type EventSink interface {
	Emit(event SessionUpdateEvent)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(event SessionUpdateEvent)

// Emit calls f(event).
func (f SinkFunc) Emit(event SessionUpdateEvent) { f(event) }

// Discard is an EventSink that drops every event.
var Discard EventSink = SinkFunc(func(SessionUpdateEvent) {})

// ChannelSink buffers events on a channel for a consumer goroutine. When the
// buffer is full new events are dropped and counted rather than stalling the
// reader.
type ChannelSink struct {
	events  chan SessionUpdateEvent
	dropped atomic.Uint64
}

// NewChannelSink creates a sink buffering up to size events.
func NewChannelSink(size int) *ChannelSink {
	return &ChannelSink{events: make(chan SessionUpdateEvent, size)}
}

// Emit implements EventSink.
func (s *ChannelSink) Emit(event SessionUpdateEvent) {
	select {
	case s.events <- event:
	default:
		s.dropped.Add(1)
	}
}

// Events returns the channel events are delivered on. It is never closed.
func (s *ChannelSink) Events() <-chan SessionUpdateEvent { return s.events }

// Dropped returns how many events were discarded because the buffer was full.
func (s *ChannelSink) Dropped() uint64 { return s.dropped.Load() }
