package sessionevent

import (
	"context"
	"io/ioutil"
	"os"
	"sync"
	"testing"

	"github.com/m-lab/go/rtx"
)

type testHandler struct {
	connects, disconnects int
	wg                    sync.WaitGroup
}

func (t *testHandler) Connected(ctx context.Context, e Event) {
	t.connects++
	t.wg.Done()
}

func (t *testHandler) Disconnected(ctx context.Context, e Event) {
	t.disconnects++
	t.wg.Done()
}

func TestClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dir, err := ioutil.TempDir("", "TestSessionEventClient")
	rtx.Must(err, "Could not create tempdir")
	defer os.RemoveAll(dir)

	srv := New(dir + "/session.sock").(*server)
	rtx.Must(srv.Listen(), "Could not listen")
	srvCtx, srvCancel := context.WithCancel(context.Background())
	go srv.Serve(srvCtx)
	defer srvCancel()

	th := &testHandler{}
	clientWg := sync.WaitGroup{}
	clientWg.Add(1)
	go func() {
		MustRun(ctx, dir+"/session.sock", th)
		clientWg.Done()
	}()
	th.wg.Add(2)

	srv.Connected("sess1", "db.example.com", 4321)
	srv.eventC <- &Event{Kind: Kind(1000), SessionID: "sess1"}
	srv.Disconnected("sess1")
	th.wg.Wait()

	cancel()
	clientWg.Wait()

	if th.connects != 1 || th.disconnects != 1 {
		t.Fatalf("connects=%d disconnects=%d, want 1 and 1", th.connects, th.disconnects)
	}
}
