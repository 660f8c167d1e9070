package tsclient

import (
	"time"

	"github.com/m-lab/tstorage-client/sessionevent"
)

// Default configuration values, per spec.md §6's Configuration table.
const (
	// DefaultMemoryLimit is large enough to hold one maximum-sized record
	// (a full 32-byte key plus a generously sized payload) with headroom.
	DefaultMemoryLimit = 32*1024*1024 + 56
	DefaultTimeout      = 20 * time.Second
)

// Config holds everything a Channel needs to connect and bound its own
// resource use. Host, Port, and Codec have no useful zero value and must
// be set before Connect.
type Config[T any] struct {
	Host string
	Port int

	// MemoryLimit bounds the DynamicBuffer backing both the inbound and
	// outbound BufferedStreams. Zero means DefaultMemoryLimit.
	MemoryLimit int
	// Timeout is the send/receive timeout applied to the underlying
	// ByteStream. Zero means DefaultTimeout.
	Timeout time.Duration

	// Codec encodes and decodes payload values of type T. Mandatory.
	Codec Codec[T]

	// Events, if set, receives Connected/Disconnected notifications for
	// every Connect/Close on this Channel, tagged with a sessionid.
	// Nil means no notifications are published.
	Events sessionevent.Server
}

func (c Config[T]) events() sessionevent.Server {
	if c.Events == nil {
		return sessionevent.NullServer()
	}
	return c.Events
}

// Codec mirrors recordset.Codec[T]; Config declares its own named type
// so callers configuring a Channel don't need to import recordset
// merely to name the interface.
type Codec[T any] interface {
	Encode(value T, out []byte) (needed int, err error)
	Decode(in []byte) (T, error)
}

func (c Config[T]) memoryLimit() int {
	if c.MemoryLimit <= 0 {
		return DefaultMemoryLimit
	}
	return c.MemoryLimit
}

func (c Config[T]) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}
