package tcpconn

import (
	"net"
	"testing"
	"time"
)

func TestDialReadWriteRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	serverDone := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			serverDone <- err
			return
		}
		defer conn.Close()
		buf := make([]byte, 5)
		if _, err := conn.Read(buf); err != nil {
			serverDone <- err
			return
		}
		if string(buf) != "hello" {
			serverDone <- errBadEcho
			return
		}
		_, err = conn.Write([]byte("world"))
		serverDone <- err
	}()

	addr := ln.Addr().(*net.TCPAddr)
	c, err := Dial("127.0.0.1", addr.Port, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 5)
	n, err := c.Read(buf, 5)
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 || string(buf) != "world" {
		t.Fatalf("got %q (%d bytes), want %q", buf[:n], n, "world")
	}
	if err := <-serverDone; err != nil {
		t.Fatal(err)
	}
}

var errBadEcho = errBadEchoType{}

type errBadEchoType struct{}

func (errBadEchoType) Error() string { return "tcpconn_test: unexpected echo payload" }

func TestDialRefusedConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close() // nothing listening now

	if _, err := Dial("127.0.0.1", addr.Port, 200*time.Millisecond); err == nil {
		t.Fatal("expected an error dialing a closed port")
	}
}
