// tstorage-bulkload reads a CSV file of records and PUTs them into a
// TStorage node through a small pool of Channels, the way the teacher's
// saver package fans marshalling work out across a pool of goroutines
// draining a shared task channel.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"sync"

	"github.com/gocarina/gocsv"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	"github.com/m-lab/tstorage-client/bytescodec"
	"github.com/m-lab/tstorage-client/iostream"
	"github.com/m-lab/tstorage-client/recordset"
	"github.com/m-lab/tstorage-client/tcpconn"
	"github.com/m-lab/tstorage-client/tsclient"
	"github.com/m-lab/tstorage-client/wire"
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	host     = flag.String("host", "localhost", "TStorage node to connect to")
	port     = flag.Int("port", 4321, "TStorage node port")
	promPort = flag.String("prom", ":9090", "Prometheus metrics export address and port")
	workers  = flag.Int("workers", 4, "Number of concurrent Channels to PUT through")
	useA     = flag.Bool("put-a", false, "Use PUT_A_SAFE instead of PUT_SAFE")
	input    = flag.String("input", "", "CSV file to read; empty means stdin")
)

// row is one line of the input CSV: a wire.Key spread across columns,
// plus a raw string payload. gocsv maps column headers to these field
// names case-insensitively.
type row struct {
	Cid     int32  `csv:"cid"`
	Mid     int64  `csv:"mid"`
	Moid    int32  `csv:"moid"`
	Cap     int64  `csv:"cap"`
	Acq     int64  `csv:"acq"`
	Payload string `csv:"payload"`
}

// task is one record queued for a PUT worker.
type task struct {
	key     wire.Key
	payload []byte
}

func runWorker(id int, tasks <-chan task, wg *sync.WaitGroup, errs chan<- error) {
	defer wg.Done()

	cfg := tsclient.Config[[]byte]{Host: *host, Port: *port, Codec: bytescodec.Codec{}}
	ch := tsclient.New[[]byte](cfg, func() (iostream.ByteStream, error) {
		return tcpconn.Dial(*host, *port, tsclient.DefaultTimeout)
	})
	if err := ch.Connect(); err != nil {
		errs <- err
		// Drain so the sender doesn't block forever on a dead worker.
		for range tasks {
		}
		return
	}
	defer ch.Close()

	count := 0
	for t := range tasks {
		set := recordset.New[[]byte](1)
		set.Append(recordset.Record[[]byte]{Key: t.key, Payload: t.payload})
		var err error
		if *useA {
			err = ch.PutA(set)
		} else {
			err = ch.Put(set)
		}
		if err != nil {
			errs <- err
			continue
		}
		count++
	}
	log.Printf("worker %d: put %d records", id, count)
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not get args from environment variables")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	promSrv := prometheusx.MustStartPrometheus(*promPort)
	defer promSrv.Shutdown(ctx)

	var source *os.File
	if *input == "" {
		source = os.Stdin
	} else {
		var err error
		source, err = os.Open(*input)
		rtx.Must(err, "Could not open %q", *input)
		defer source.Close()
	}

	var rows []*row
	rtx.Must(gocsv.UnmarshalFile(source, &rows), "Could not parse input CSV")

	tasks := make(chan task, 100)
	errs := make(chan error, 100)
	wg := &sync.WaitGroup{}
	n := *workers
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go runWorker(i, tasks, wg, errs)
	}

	go func() {
		for err := range errs {
			log.Println("put error:", err)
		}
	}()

	for _, r := range rows {
		tasks <- task{
			key:     wire.Key{Cid: r.Cid, Mid: r.Mid, Moid: r.Moid, Cap: r.Cap, Acq: r.Acq},
			payload: []byte(r.Payload),
		}
	}
	close(tasks)
	wg.Wait()
	close(errs)

	log.Printf("loaded %d rows", len(rows))
}
