package observability

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// Recorder reports chat engine and realtime activity to the OTel instruments.
// A Recorder with nil metrics records nothing.
type Recorder struct {
	metrics *Metrics
}

// NewRecorder returns a Recorder backed by m, which may be nil.
func NewRecorder(m *Metrics) *Recorder {
	return &Recorder{metrics: m}
}

func (r *Recorder) enabled() bool {
	return r != nil && r.metrics != nil
}

// MessageSent counts an accepted message in a channel of the given kind.
func (r *Recorder) MessageSent(channelKind string) {
	if !r.enabled() {
		return
	}
	r.metrics.MessagesSent.Add(context.Background(), 1, metric.WithAttributes(AttrChannelKind.String(channelKind)))
}

// EventPublished counts an event handed to subscribers.
func (r *Recorder) EventPublished(kind string) {
	if !r.enabled() {
		return
	}
	r.metrics.EventsPublished.Add(context.Background(), 1, metric.WithAttributes(AttrEventKind.String(kind)))
}

// SubscriberFault counts a panicking subscriber callback.
func (r *Recorder) SubscriberFault(string) {
	if !r.enabled() {
		return
	}
	r.metrics.SubscriberFaults.Add(context.Background(), 1)
}

// MirrorDropped counts a persistence write dropped by a full queue.
func (r *Recorder) MirrorDropped(op string) {
	if !r.enabled() {
		return
	}
	r.metrics.MirrorDropped.Add(context.Background(), 1, metric.WithAttributes(AttrMirrorOp.String(op)))
}

// MirrorFailed counts a persistence write the gateway rejected.
func (r *Recorder) MirrorFailed(op string) {
	if !r.enabled() {
		return
	}
	r.metrics.MirrorFailures.Add(context.Background(), 1, metric.WithAttributes(AttrMirrorOp.String(op)))
}

// SessionsChanged adjusts the active session gauge.
func (r *Recorder) SessionsChanged(delta int64) {
	if !r.enabled() {
		return
	}
	r.metrics.ActiveSessions.Add(context.Background(), delta)
}

// ConnectionsChanged adjusts the open WebSocket connection gauge.
func (r *Recorder) ConnectionsChanged(delta int64) {
	if !r.enabled() {
		return
	}
	r.metrics.RealtimeConnected.Add(context.Background(), delta)
}
