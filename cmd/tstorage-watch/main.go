// tstorage-watch is a minimal reference implementation of a sessionevent
// client: it connects to the unix-domain socket a tsclient Config.Events
// server is listening on, and logs every Connected/Disconnected event.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"

	"github.com/m-lab/tstorage-client/sessionevent"
)

var (
	mainCtx, mainCancel = context.WithCancel(context.Background())
)

// handler implements the sessionevent.Handler interface.
type handler struct {
	events chan sessionevent.Event
}

// Connected is called synchronously, and blocks, for every Channel
// connection event.
func (h *handler) Connected(ctx context.Context, e sessionevent.Event) {
	log.Println("connected   ", e.SessionID, e.Host, e.Port, e.Timestamp)
	h.events <- e
}

// Disconnected is called synchronously, and blocks, for every Channel
// disconnection event.
func (h *handler) Disconnected(ctx context.Context, e sessionevent.Event) {
	log.Println("disconnected", e.SessionID, e.Timestamp)
	h.events <- e
}

// processEvents reads and processes events received by the handler.
func (h *handler) processEvents(ctx context.Context) {
	for {
		select {
		case e := <-h.events:
			log.Println("processing", e)
		case <-ctx.Done():
			log.Println("shutdown")
			return
		}
	}
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not get args from environment variables")
	defer mainCancel()

	if *sessionevent.Filename == "" {
		log.Fatal("-tstorage.eventsocket path is required")
	}

	h := &handler{events: make(chan sessionevent.Event)}

	// Process events received by the handler. The goroutine will block
	// until a Connected or Disconnected event occurs.
	go h.processEvents(mainCtx)

	// Begin listening on the socket for new events, and dispatch them to h.
	go sessionevent.MustRun(mainCtx, *sessionevent.Filename, h)

	<-mainCtx.Done()
}
