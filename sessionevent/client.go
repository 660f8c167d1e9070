package sessionevent

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log"
	"net"
	"strings"

	"github.com/m-lab/go/rtx"
)

// Filename is a command-line flag holding the name of the unix-domain
// socket used by both server and client, kept in one place the way the
// teacher's eventsocket.Filename is.
var Filename = flag.String("tstorage.eventsocket", "", "The filename of the unix-domain socket on which channel lifecycle events are served.")

// Handler receives lifecycle events read from a sessionevent socket.
type Handler interface {
	Connected(ctx context.Context, e Event)
	Disconnected(ctx context.Context, e Event)
}

// MustRun reads events from socket until ctx is canceled, dispatching
// each to handler. Any error other than the connection closing because
// ctx was canceled is fatal.
func MustRun(ctx context.Context, socket string, handler Handler) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c, err := net.Dial("unix", socket)
	rtx.Must(err, "Could not connect to %q", socket)
	go func() {
		<-ctx.Done()
		c.Close()
	}()

	s := bufio.NewScanner(c)
	for s.Scan() {
		var event Event
		rtx.Must(json.Unmarshal(s.Bytes(), &event), "Could not unmarshal sessionevent")
		switch event.Kind {
		case Connected:
			handler.Connected(ctx, event)
		case Disconnected:
			handler.Disconnected(ctx, event)
		default:
			log.Println("sessionevent: unknown event kind:", event.Kind)
		}
	}

	err = s.Err()
	if err != nil && strings.Contains(err.Error(), "use of closed network connection") {
		err = nil
	}
	rtx.Must(err, "Scanning of %s died with non-EOF error", socket)
}
