// Package tsclient implements Channel, the stateful client side of the
// TStorage wire protocol: GET, GET_ACQ, PUT_SAFE, and PUT_A_SAFE over a
// single ByteStream, sequenced by the ChannelStateMachine of spec.md
// §4.8 and mapped onto the public error taxonomy of spec.md §7.
//
// A Channel owns exactly one BufferedInputStream and one
// BufferedOutputStream, both sized by Config.MemoryLimit, and exactly
// one underlying iostream.ByteStream (typically a *tcpconn.Conn, but any
// faithful implementation suffices per spec.md §1). It is not safe for
// concurrent use: spec.md §5 calls for single-threaded cooperative use
// per channel, mirroring one connection per goroutine.
package tsclient

import (
	"errors"
	"time"

	"github.com/m-lab/tstorage-client/batch"
	"github.com/m-lab/tstorage-client/inbound"
	"github.com/m-lab/tstorage-client/iostream"
	"github.com/m-lab/tstorage-client/recordset"
	"github.com/m-lab/tstorage-client/sessionid"
	"github.com/m-lab/tstorage-client/tsmetrics"
	"github.com/m-lab/tstorage-client/wire"
)

// Operation labels used for tsmetrics counters and histograms.
const (
	opGet       = "get"
	opGetStream = "get_stream"
	opGetAcq    = "get_acq"
	opPut       = "put"
	opPutA      = "put_a"
)

// observe is called via defer at the top of every public operation. It
// records the request, its latency, and — if err is non-nil by the time
// the deferred call runs — the error's kind.
func (c *Channel[T]) observe(op string, start time.Time, err *error) {
	tsmetrics.RequestCount.WithLabelValues(op).Inc()
	tsmetrics.RequestLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil && *err != nil {
		tsmetrics.RequestErrorCount.WithLabelValues(op, kindOf(*err).String()).Inc()
	}
}

func kindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// observeBytes records the bytes sent/received by one operation, measured
// as the delta against snapshots taken before the operation started (out
// and in are captured then, since an error mid-operation nils c.out/c.in
// via abort before this runs).
func observeBytes(op string, out *iostream.BufferedOutputStream, in *iostream.BufferedInputStream, sentBefore, recvBefore int64) {
	if out != nil {
		tsmetrics.BytesSent.WithLabelValues(op).Add(float64(out.BytesWritten() - sentBefore))
	}
	if in != nil {
		tsmetrics.BytesReceived.WithLabelValues(op).Add(float64(in.BytesRead() - recvBefore))
	}
}

// state tracks the channel's position in the ChannelStateMachine.
// Sub-states exist only transiently inside a single public method call;
// a Channel is only ever observed at stateClosed or stateOpen between
// calls.
type state int

const (
	stateClosed state = iota
	stateOpen
)

// Channel is the public entry point: one TCP connection to a TStorage
// node, speaking GET/GET_ACQ/PUT_SAFE/PUT_A_SAFE. Construct with New,
// then Connect before issuing any request.
type Channel[T any] struct {
	cfg    Config[T]
	dial   func() (iostream.ByteStream, error)
	stream iostream.ByteStream

	st  state
	in  *iostream.BufferedInputStream
	out *iostream.BufferedOutputStream

	sessionID string
}

// New constructs a Channel from cfg. dial opens the underlying transport
// on demand; package tcpconn provides a Dial function suitable for use
// here (see tcpconn.Dial's doc comment for the adapter shape).
func New[T any](cfg Config[T], dial func() (iostream.ByteStream, error)) *Channel[T] {
	return &Channel[T]{cfg: cfg, dial: dial}
}

// Connect opens the underlying stream and allocates the channel's
// buffers at the configured memory limit. Fails with KindInvalid if
// already open.
func (c *Channel[T]) Connect() error {
	if c.st != stateClosed {
		return ErrInvalid
	}
	stream, err := c.dial()
	if err != nil {
		return newError(KindSendError, err)
	}
	limit := c.cfg.memoryLimit()
	in, err := iostream.NewBufferedInputStream(stream, limit, 0)
	if err != nil {
		return classify(err)
	}
	out, err := iostream.NewBufferedOutputStream(stream, limit, 0)
	if err != nil {
		return classify(err)
	}
	if ts, ok := stream.(interface{ SetTimeout(time.Duration) error }); ok {
		ts.SetTimeout(c.cfg.timeout())
	}
	c.stream = stream
	c.in = in
	c.out = out
	c.st = stateOpen
	c.sessionID = sessionid.New(stream)
	c.cfg.events().Connected(c.sessionID, c.cfg.Host, c.cfg.Port)
	return nil
}

// Close severs the underlying stream. It flushes nothing: a caller that
// needs buffered writes sent must have already done so. Fails with
// KindInvalid if not open.
func (c *Channel[T]) Close() error {
	if c.st != stateOpen {
		return ErrInvalid
	}
	c.st = stateClosed
	c.in = nil
	c.out = nil
	c.cfg.events().Disconnected(c.sessionID)
	c.sessionID = ""
	if closer, ok := c.stream.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			return newError(KindSendError, err)
		}
	}
	c.stream = nil
	return nil
}

// SetTimeout takes effect immediately on the underlying stream, if one
// is open, and is carried into any future Connect. A zero or negative d
// means DefaultTimeout, as for Config.Timeout. Legal in any state.
func (c *Channel[T]) SetTimeout(d time.Duration) {
	c.cfg.Timeout = d
	if c.stream != nil {
		if ts, ok := c.stream.(interface{ SetTimeout(time.Duration) error }); ok {
			ts.SetTimeout(c.cfg.timeout())
		}
	}
}

// SetMemoryLimit resets both buffers, emptying their storage; the next
// operation reallocates lazily at the new limit. Legal in any state;
// takes effect on the buffers only once a channel is open.
func (c *Channel[T]) SetMemoryLimit(bytes int) {
	c.cfg.MemoryLimit = bytes
	if c.st == stateOpen {
		c.in.Reset(c.cfg.memoryLimit())
		c.out.Reset(c.cfg.memoryLimit())
	}
}

// abort transitions to CLOSED on any surfaced component error, per
// spec.md §4.8 ("any sub-state -> CLOSED on any surfaced error").
func (c *Channel[T]) abort() {
	c.st = stateClosed
	c.in = nil
	c.out = nil
	c.stream = nil
	c.cfg.events().Disconnected(c.sessionID)
	c.sessionID = ""
}

func (c *Channel[T]) requireOpen() error {
	if c.st != stateOpen {
		return ErrInvalid
	}
	return nil
}

// writeRequestHeader writes, without flushing, a request header with no body,
// or with body already written by the caller before calling this with
// dataSize set accordingly. It is used directly only for PUT/PUT_A
// (dataSize=0, body is the batch stream that follows); GET/GET_ACQ write
// their own header plus key range in one reservation via writeKeyRangeRequest.
func (c *Channel[T]) writeRequestHeader(cmd int32, dataSize uint64) error {
	w, err := c.out.ReserveOrFlush(wire.SizeRequestHeader)
	if err != nil {
		return classify(err)
	}
	wire.PutRequestHeader(w, wire.RequestHeader{Cmd: cmd, DataSize: dataSize})
	c.out.Confirm(wire.SizeRequestHeader)
	return nil
}

func (c *Channel[T]) writeKeyRangeRequest(cmd int32, kr wire.KeyRange) error {
	total := wire.SizeRequestHeader + wire.SizeKeyRange
	w, err := c.out.ReserveOrFlush(total)
	if err != nil {
		return classify(err)
	}
	wire.PutRequestHeader(w[:wire.SizeRequestHeader], wire.RequestHeader{Cmd: cmd, DataSize: wire.SizeKeyRange})
	wire.PutKey(w[wire.SizeRequestHeader:wire.SizeRequestHeader+wire.SizeKeyFull], kr.Min)
	wire.PutKey(w[wire.SizeRequestHeader+wire.SizeKeyFull:], kr.Max)
	c.out.Confirm(total)
	if err := c.out.Flush(); err != nil {
		return classify(err)
	}
	return nil
}

func (c *Channel[T]) readResponseHeader() (wire.ResponseHeader, error) {
	w, err := c.in.Reserve(wire.SizeResponseHeader)
	if err != nil {
		return wire.ResponseHeader{}, classify(err)
	}
	return wire.GetResponseHeader(w), nil
}

// GetAcq issues GET_ACQ for the given key range and returns the
// consistency timestamp.
func (c *Channel[T]) GetAcq(kr wire.KeyRange) (acq int64, err error) {
	defer c.observe(opGetAcq, time.Now(), &err)
	if err = c.requireOpen(); err != nil {
		return 0, err
	}
	out, in := c.out, c.in
	sentBefore, recvBefore := out.BytesWritten(), in.BytesRead()
	defer func() { observeBytes(opGetAcq, out, in, sentBefore, recvBefore) }()
	if !kr.Valid() {
		c.abort()
		return 0, ErrInvalid
	}
	if err = c.writeKeyRangeRequest(wire.CmdGetAcq, kr); err != nil {
		c.abort()
		return 0, err
	}
	hdr, err := c.readResponseHeader()
	if err != nil {
		c.abort()
		return 0, err
	}
	if hdr.Result != 0 {
		c.abort()
		err = ServerStatus(hdr.Result)
		return 0, err
	}
	body, err := c.in.Reserve(8)
	if err != nil {
		c.abort()
		err = classify(err)
		return 0, err
	}
	acq = wire.GetInt64(body)
	c.in.Confirm()
	return acq, nil
}

// Get issues GET for the given key range, materializing every returned
// record before returning. On any error after records have started
// arriving, the records decoded so far are returned alongside the error.
func (c *Channel[T]) Get(kr wire.KeyRange) (set *recordset.RecordsSet[T], acq int64, err error) {
	defer c.observe(opGet, time.Now(), &err)
	if err = c.requireOpen(); err != nil {
		return nil, 0, err
	}
	out, in := c.out, c.in
	sentBefore, recvBefore := out.BytesWritten(), in.BytesRead()
	defer func() { observeBytes(opGet, out, in, sentBefore, recvBefore) }()

	if !kr.Valid() {
		c.abort()
		err = ErrInvalid
		return nil, 0, err
	}
	if err = c.writeKeyRangeRequest(wire.CmdGet, kr); err != nil {
		c.abort()
		return nil, 0, err
	}
	hdr, herr := c.readResponseHeader()
	if herr != nil {
		c.abort()
		err = herr
		return nil, 0, err
	}
	if hdr.Result != 0 {
		c.abort()
		err = ServerStatus(hdr.Result)
		return nil, 0, err
	}

	reader := inbound.New[T](c.in, c.cfg.Codec)
	var rerr error
	set, rerr = reader.ReadAll()
	tsmetrics.RecordCount.WithLabelValues(opGet, "received").Add(float64(reader.RecordsRead()))
	if rerr != nil {
		c.abort()
		err = classify(rerr)
		return set, 0, err
	}
	c.in.Confirm()

	acq, err = c.readConfirmation()
	if err != nil {
		c.abort()
		return set, 0, err
	}
	return set, acq, nil
}

func (c *Channel[T]) readConfirmation() (int64, error) {
	hdr, err := c.readResponseHeader()
	if err != nil {
		return 0, err
	}
	if hdr.Result != 0 {
		return 0, ServerStatus(hdr.Result)
	}
	body, err := c.in.Reserve(8)
	if err != nil {
		return 0, classify(err)
	}
	acq := wire.GetInt64(body)
	c.in.Confirm()
	return acq, nil
}

// GetStream is like Get, but hands decoded records to onFull in chunks
// as the buffer fills, bounding memory for large responses. Once the
// response header has been read successfully, onFull is always called at
// least once, even for a zero-record response or a record stream that
// fails partway.
func (c *Channel[T]) GetStream(kr wire.KeyRange, onFull inbound.OnFull[T]) (acq int64, err error) {
	defer c.observe(opGetStream, time.Now(), &err)
	if err = c.requireOpen(); err != nil {
		return 0, err
	}
	out, in := c.out, c.in
	sentBefore, recvBefore := out.BytesWritten(), in.BytesRead()
	defer func() { observeBytes(opGetStream, out, in, sentBefore, recvBefore) }()

	if !kr.Valid() {
		c.abort()
		err = ErrInvalid
		return 0, err
	}
	if err = c.writeKeyRangeRequest(wire.CmdGet, kr); err != nil {
		c.abort()
		return 0, err
	}
	hdr, herr := c.readResponseHeader()
	if herr != nil {
		c.abort()
		err = herr
		return 0, err
	}
	if hdr.Result != 0 {
		c.abort()
		err = ServerStatus(hdr.Result)
		return 0, err
	}

	reader := inbound.New[T](c.in, c.cfg.Codec)
	rerr := reader.ReadStreaming(onFull)
	tsmetrics.RecordCount.WithLabelValues(opGetStream, "received").Add(float64(reader.RecordsRead()))
	if rerr != nil {
		c.abort()
		err = classify(rerr)
		return 0, err
	}
	c.in.Confirm()

	acq, err = c.readConfirmation()
	if err != nil {
		c.abort()
		return 0, err
	}
	return acq, nil
}

// Put issues PUT_SAFE for records, in order, grouping them into batches
// by cid (spec.md §4.6). Returns ok iff the server's response result is
// zero.
func (c *Channel[T]) Put(records *recordset.RecordsSet[T]) error {
	return c.put(opPut, wire.CmdPutSafe, records)
}

// PutA issues PUT_A_SAFE, where acq is supplied by the caller on each
// record rather than assigned by the server.
func (c *Channel[T]) PutA(records *recordset.RecordsSet[T]) error {
	return c.put(opPutA, wire.CmdPutASafe, records)
}

func (c *Channel[T]) put(op string, cmd int32, records *recordset.RecordsSet[T]) (err error) {
	defer c.observe(op, time.Now(), &err)
	if err = c.requireOpen(); err != nil {
		return err
	}
	out, in := c.out, c.in
	sentBefore, recvBefore := out.BytesWritten(), in.BytesRead()
	defer func() { observeBytes(op, out, in, sentBefore, recvBefore) }()

	if err = c.writeRequestHeader(cmd, 0); err != nil {
		c.abort()
		return err
	}

	var ser *batch.Serializer[T]
	if cmd == wire.CmdPutASafe {
		ser = batch.NewPutASafe[T](c.out, c.cfg.Codec)
	} else {
		ser = batch.NewPutSafe[T](c.out, c.cfg.Codec)
	}
	for _, r := range records.All() {
		if err = ser.Append(r.Key, r.Payload); err != nil {
			c.abort()
			err = classify(err)
			return err
		}
	}
	if err = ser.Finish(); err != nil {
		c.abort()
		err = classify(err)
		return err
	}
	tsmetrics.BatchCount.WithLabelValues(op).Add(float64(ser.BatchesWritten()))
	tsmetrics.RecordCount.WithLabelValues(op, "sent").Add(float64(ser.RecordsWritten()))

	hdr, herr := c.readResponseHeader()
	if herr != nil {
		c.abort()
		err = herr
		return err
	}
	if hdr.Result != 0 {
		c.abort()
		err = ServerStatus(hdr.Result)
		return err
	}
	if hdr.DataSize > 0 {
		if _, rerr := c.in.Reserve(int(hdr.DataSize)); rerr != nil {
			c.abort()
			err = classify(rerr)
			return err
		}
		c.in.Confirm()
	}
	return nil
}
