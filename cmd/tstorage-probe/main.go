// tstorage-probe is a minimal reference client: it connects to a
// TStorage node, issues a single get/get-acq/put/put-a, and prints the
// result. It demonstrates wiring tsclient with tcpconn the way the
// teacher's main.go wires collector with saver.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/araddon/dateparse"
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
	host    = flag.String("host", "localhost", "TStorage node to connect to")
	port    = flag.Int("port", 4321, "TStorage node port")
	promPort = flag.String("prom", ":9090", "Prometheus metrics export address and port")

	op  = flag.String("op", "get", "Operation to perform: get, get-acq, put, put-a")
	cid = flag.Int("cid", 0, "Collection id")
	from = flag.String("from", "1970-01-01T00:00:00Z", "Start of the cap range (any format dateparse understands)")
	to   = flag.String("to", "2100-01-01T00:00:00Z", "End of the cap range")
	data = flag.String("data", "", "Payload bytes to PUT, as a raw string")
)

func keyRange() wire.KeyRange {
	fromT, err := dateparse.ParseAny(*from)
	rtx.Must(err, "Could not parse -from %q", *from)
	toT, err := dateparse.ParseAny(*to)
	rtx.Must(err, "Could not parse -to %q", *to)
	return wire.KeyRange{
		Min: wire.Key{Cid: int32(*cid), Mid: -1 << 63, Moid: -1 << 31, Cap: fromT.UnixNano(), Acq: -1 << 63},
		Max: wire.Key{Cid: int32(*cid), Mid: 1<<63 - 1, Moid: 1<<31 - 1, Cap: toT.UnixNano(), Acq: 1<<63 - 1},
	}
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not get args from environment variables")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	promSrv := prometheusx.MustStartPrometheus(*promPort)
	defer promSrv.Shutdown(ctx)

	cfg := tsclient.Config[[]byte]{
		Host:  *host,
		Port:  *port,
		Codec: bytescodec.Codec{},
	}
	ch := tsclient.New[[]byte](cfg, func() (iostream.ByteStream, error) {
		return tcpconn.Dial(*host, *port, tsclient.DefaultTimeout)
	})
	rtx.Must(ch.Connect(), "Could not connect to %s:%d", *host, *port)
	defer ch.Close()

	kr := keyRange()
	switch *op {
	case "get":
		set, acq, err := ch.Get(kr)
		rtx.Must(err, "GET failed")
		log.Printf("acq=%d records=%d", acq, set.Len())
		for i := 0; i < set.Len(); i++ {
			r := set.At(i)
			log.Printf("  %+v -> %q", r.Key, r.Payload)
		}
	case "get-acq":
		acq, err := ch.GetAcq(kr)
		rtx.Must(err, "GET_ACQ failed")
		log.Printf("acq=%d", acq)
	case "put", "put-a":
		set := recordset.New[[]byte](1)
		set.Append(recordset.Record[[]byte]{
			Key:     wire.Key{Cid: int32(*cid), Mid: 0, Moid: 0, Cap: 0, Acq: 0},
			Payload: []byte(*data),
		})
		if *op == "put" {
			rtx.Must(ch.Put(set), "PUT_SAFE failed")
		} else {
			rtx.Must(ch.PutA(set), "PUT_A_SAFE failed")
		}
		log.Println("ok")
	default:
		log.Fatalf("unknown -op %q", *op)
	}
}
