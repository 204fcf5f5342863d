// Package button models the physical push-to-talk button as a bounded
// stream of edge events. Hardware signaling is decoupled from the state
// machine: sources push edges, the session controller consumes them.
package button

import (
	log "log/slog"
	"time"
)

type Kind int

const (
	Press Kind = iota
	Release
)

func (k Kind) String() string {
	if k == Press {
		return "press"
	}
	return "release"
}

// Edge is one debounced press or release with a monotonic timestamp.
type Edge struct {
	Kind Kind
	At   time.Time
}

// Emit pushes an edge into ch without ever blocking the producer. A full
// channel means the consumer is wedged; the edge is dropped and logged.
func Emit(ch chan<- Edge, e Edge) {
	select {
	case ch <- e:
	default:
		log.Warn("button: edge dropped, channel full", "kind", e.Kind)
	}
}
