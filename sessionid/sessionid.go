// Package sessionid mints a short correlation ID for one Channel.Connect
// attempt, used to tag log lines and sessionevent notifications for that
// connection. Grounded on the teacher's own uuid package (FromTCPConn,
// FromCookie): rather than duplicate that socket-cookie logic, this
// package calls directly into github.com/m-lab/uuid, the external
// package the teacher's copy mirrors, and falls back to a counter-based
// ID when the underlying stream isn't a *net.TCPConn (as in tests).
package sessionid

import (
	"fmt"
	"net"
	"sync/atomic"

	"github.com/m-lab/uuid"
)

// fallbackCounter produces distinct IDs for connections that aren't a
// real *net.TCPConn (test doubles, non-TCP ByteStream implementations).
var fallbackCounter int64

// tcpConnProvider is satisfied by package tcpconn's *Conn, which wraps a
// *net.TCPConn without exposing it through the iostream.ByteStream
// interface directly.
type tcpConnProvider interface {
	TCPConn() *net.TCPConn
}

// New returns a correlation ID for a freshly dialed stream. If stream is
// (or exposes) a *net.TCPConn, the ID is derived from its socket cookie
// via github.com/m-lab/uuid, globally unique for the lifetime of this
// boot. Otherwise it falls back to a process-local sequential ID.
func New(stream interface{}) string {
	var tcp *net.TCPConn
	switch s := stream.(type) {
	case *net.TCPConn:
		tcp = s
	case tcpConnProvider:
		tcp = s.TCPConn()
	}
	if tcp != nil {
		if id, err := uuid.FromTCPConn(tcp); err == nil {
			return id
		}
	}
	n := atomic.AddInt64(&fallbackCounter, 1)
	return fmt.Sprintf("local_%d", n)
}
