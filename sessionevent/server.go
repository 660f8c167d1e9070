package sessionevent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"
)

// Server is the interface a tsclient.Channel publishes lifecycle events
// through. Construct one with New, or use NullServer when no one is
// listening.
type Server interface {
	Listen() error
	Serve(context.Context) error
	Connected(sessionID, host string, port int)
	Disconnected(sessionID string)
}

type server struct {
	eventC       chan *Event
	filename     string
	clients      map[net.Conn]struct{}
	unixListener net.Listener
	mutex        sync.Mutex
	servingWG    sync.WaitGroup
}

// New makes a Server that serves clients on the given Unix domain socket.
func New(filename string) Server {
	return &server{
		filename: filename,
		eventC:   make(chan *Event, 100),
		clients:  make(map[net.Conn]struct{}),
	}
}

func (s *server) addClient(c net.Conn) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.clients[c] = struct{}{}
}

func (s *server) removeClient(c net.Conn) {
	s.servingWG.Add(1)
	defer s.servingWG.Done()
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.clients[c]; !ok {
		return
	}
	delete(s.clients, c)
}

func (s *server) sendToAllListeners(data string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for c := range s.clients {
		if _, err := fmt.Fprintln(c, data); err != nil {
			log.Println("sessionevent: write to client failed, removing:", err)
			go s.removeClient(c)
			go c.Close()
		}
	}
}

func (s *server) notifyClients(ctx context.Context) {
	s.servingWG.Add(1)
	defer s.servingWG.Done()
	for ctx.Err() == nil {
		event := <-s.eventC
		if event == nil {
			continue
		}
		b, err := json.Marshal(*event)
		if err != nil {
			log.Println("sessionevent: could not marshal event:", err)
			continue
		}
		s.sendToAllListeners(string(b))
	}
}

// Listen opens the Unix-domain socket. Serve must be called afterward for
// connections to actually be accepted.
func (s *server) Listen() error {
	s.servingWG.Add(1)
	os.Remove(s.filename)
	var err error
	s.unixListener, err = net.Listen("unix", s.filename)
	return err
}

// Serve accepts clients until ctx is canceled. Expected to run in its own
// goroutine after Listen.
func (s *server) Serve(ctx context.Context) error {
	defer s.servingWG.Done()
	derivedCtx, derivedCancel := context.WithCancel(ctx)
	defer derivedCancel()

	go s.notifyClients(derivedCtx)

	s.servingWG.Add(1)
	go func() {
		<-derivedCtx.Done()
		s.unixListener.Close()
		close(s.eventC)
		s.servingWG.Done()
	}()

	var err error
	for derivedCtx.Err() == nil {
		var conn net.Conn
		conn, err = s.unixListener.Accept()
		if err != nil {
			break
		}
		s.addClient(conn)
	}
	return err
}

// Connected publishes a Connected event for sessionID.
func (s *server) Connected(sessionID, host string, port int) {
	s.eventC <- &Event{Kind: Connected, Timestamp: time.Now(), SessionID: sessionID, Host: host, Port: port}
}

// Disconnected publishes a Disconnected event for sessionID.
func (s *server) Disconnected(sessionID string) {
	s.eventC <- &Event{Kind: Disconnected, Timestamp: time.Now(), SessionID: sessionID}
}

type nullServer struct{}

func (nullServer) Listen() error                              { return nil }
func (nullServer) Serve(context.Context) error                { return nil }
func (nullServer) Connected(sessionID, host string, port int) {}
func (nullServer) Disconnected(sessionID string)              {}

// NullServer returns a Server that does nothing, for callers that accept a
// Server but have no socket configured.
func NullServer() Server {
	return nullServer{}
}
