package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Registry holds relay counters and renders them in the Prometheus text
// format. All methods are safe on a nil receiver.
type Registry struct {
	connectionsAccepted atomic.Int64
	connectionsRejected atomic.Int64
	connectionsActive   atomic.Int64
	framesSent          atomic.Int64
	framesReceived      atomic.Int64
	writesApplied       atomic.Int64
	watchErrors         atomic.Int64
	watchRestarts       atomic.Int64
	pollRequests        atomic.Int64
	writeFailures       sync.Map
	eventsByKind        sync.Map
}

var Default = &Registry{}

func (r *Registry) ConnectionOpened() {
	if r == nil {
		return
	}
	r.connectionsAccepted.Add(1)
	r.connectionsActive.Add(1)
}

func (r *Registry) ConnectionClosed() {
	if r == nil {
		return
	}
	r.connectionsActive.Add(-1)
}

func (r *Registry) ConnectionRejected() {
	if r == nil {
		return
	}
	r.connectionsRejected.Add(1)
}

func (r *Registry) FrameSent(kind string) {
	if r == nil {
		return
	}
	r.framesSent.Add(1)
	r.counter(&r.eventsByKind, kind).Add(1)
}

func (r *Registry) FrameReceived() {
	if r == nil {
		return
	}
	r.framesReceived.Add(1)
}

func (r *Registry) WriteApplied() {
	if r == nil {
		return
	}
	r.writesApplied.Add(1)
}

func (r *Registry) WriteFailed(kind string) {
	if r == nil {
		return
	}
	r.counter(&r.writeFailures, kind).Add(1)
}

func (r *Registry) WatchError() {
	if r == nil {
		return
	}
	r.watchErrors.Add(1)
}

func (r *Registry) WatchRestarted() {
	if r == nil {
		return
	}
	r.watchRestarts.Add(1)
}

func (r *Registry) PollServed() {
	if r == nil {
		return
	}
	r.pollRequests.Add(1)
}

// Snapshot is a point-in-time copy of the scalar counters.
type Snapshot struct {
	ConnectionsAccepted int64
	ConnectionsRejected int64
	ConnectionsActive   int64
	FramesSent          int64
	FramesReceived      int64
	WritesApplied       int64
	WriteFailures       map[string]int64
	WatchErrors         int64
}

func (r *Registry) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		ConnectionsAccepted: r.connectionsAccepted.Load(),
		ConnectionsRejected: r.connectionsRejected.Load(),
		ConnectionsActive:   r.connectionsActive.Load(),
		FramesSent:          r.framesSent.Load(),
		FramesReceived:      r.framesReceived.Load(),
		WritesApplied:       r.writesApplied.Load(),
		WriteFailures:       loadAll(&r.writeFailures),
		WatchErrors:         r.watchErrors.Load(),
	}
}

func (r *Registry) WritePrometheus(writer io.Writer) error {
	if r == nil {
		return nil
	}

	writeCounter(writer, "filerelay_connections_accepted_total", "Peer connections accepted", r.connectionsAccepted.Load())
	writeCounter(writer, "filerelay_connections_rejected_total", "Peer connections refused because the root was busy", r.connectionsRejected.Load())
	writeGauge(writer, "filerelay_connections_active", "Peer connections currently relaying", r.connectionsActive.Load())
	writeCounter(writer, "filerelay_frames_sent_total", "Outbound frames written to peers", r.framesSent.Load())
	writeCounter(writer, "filerelay_frames_received_total", "Inbound frames read from peers", r.framesReceived.Load())
	writeCounter(writer, "filerelay_writes_applied_total", "Write requests applied to disk", r.writesApplied.Load())
	writeCounter(writer, "filerelay_watch_errors_total", "Errors reported by the watch backend", r.watchErrors.Load())
	writeCounter(writer, "filerelay_watch_restarts_total", "Watch backend restarts", r.watchRestarts.Load())
	writeCounter(writer, "filerelay_poll_requests_total", "Long-poll requests answered", r.pollRequests.Load())

	writeLabelled(writer, "filerelay_events_total", "Change events relayed by kind", "kind", loadAll(&r.eventsByKind))
	writeLabelled(writer, "filerelay_write_failures_total", "Rejected write requests by error kind", "kind", loadAll(&r.writeFailures))
	return nil
}

func (r *Registry) counter(values *sync.Map, name string) *atomic.Int64 {
	if strings.TrimSpace(name) == "" {
		name = "unknown"
	}
	value, _ := values.LoadOrStore(name, &atomic.Int64{})
	return value.(*atomic.Int64)
}

func loadAll(values *sync.Map) map[string]int64 {
	out := map[string]int64{}
	values.Range(func(key, value any) bool {
		out[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})
	return out
}

func writeHelp(writer io.Writer, metric, help string) {
	fmt.Fprintf(writer, "# HELP %s %s\n", metric, help)
}

func writeCounter(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func writeGauge(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s gauge\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func writeLabelled(writer io.Writer, metric, help, label string, values map[string]int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(writer, "%s{%s=%s} %d\n", metric, label, formatLabel(name), values[name])
	}
}

func formatLabel(value string) string {
	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	return fmt.Sprintf("\"%s\"", escaped)
}
