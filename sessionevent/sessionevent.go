// Package sessionevent publishes Channel connect/close lifecycle events
// to a Unix-domain socket, for ops tooling to observe independent of (and
// without influencing) request/response traffic on the data channel
// itself. Adapted from the teacher's eventsocket package, which serves
// the analogous TCP flow-open/flow-close events for its own kernel
// polling pipeline; here the "flow" is a tsclient.Channel's connection
// lifetime rather than a kernel TCP socket.
package sessionevent

import "time"

// Kind distinguishes a connect event from a close event.
type Kind int

const (
	// Connected is sent when a Channel successfully dials and opens.
	Connected = Kind(iota)
	// Disconnected is sent when a Channel closes, whether by request or
	// because an error aborted it.
	Disconnected
)

// String renders Kind for logging, written by hand rather than via
// stringer so the package has no generated-file dependency. JSON encodes
// Kind as its integer value, not as this string.
func (k Kind) String() string {
	switch k {
	case Connected:
		return "Connected"
	case Disconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// Event is the data sent down the socket in JSONL form. SessionID and
// Timestamp are always present; Host/Port are only meaningful on Connected.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	SessionID string
	Host      string `json:",omitempty"`
	Port      int    `json:",omitempty"`
}
