package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/riakpb/protocol"
)

var (
	ErrNotConnected = errors.New("Transport is not connected, it was closed or invalidated by an earlier failure")
)

// TCP owns the socket of one connection to a node. It is the only thing that
// reads or writes that socket.
//
// Any I/O failure invalidates the TCP before the error is returned: the
// socket is closed and discarded, and Send and Receive fail with
// ErrNotConnected until Connect dials a fresh one. Nothing is retried.
//
// A TCP is not safe for concurrent use.
type TCP struct {
	addr           string
	connectTimeout time.Duration
	dial           DialFunc

	conn   net.Conn
	reader *bufio.Reader

	log   *zap.Logger
	trace bool
}

func NewTCP(options Options) *TCP {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	addr := net.JoinHostPort(options.Host, strconv.Itoa(options.Port))

	t := &TCP{
		addr:           addr,
		connectTimeout: options.ConnectTimeout,
		dial:           options.Dial,
		log:            log.With(zap.String("addr", addr)),
		trace:          options.Trace,
	}

	if t.dial == nil {
		dialer := &net.Dialer{Timeout: options.ConnectTimeout}
		t.dial = dialer.DialContext
	}

	return t
}

// Addr is the host:port this transport dials.
func (t *TCP) Addr() string {
	return t.addr
}

// Connected returns true when a usable socket is open.
func (t *TCP) Connected() bool {
	return t.conn != nil
}

// Connect dials the node unless a usable socket is already open.
func (t *TCP) Connect(ctx context.Context) error {
	if t.conn != nil {
		return nil
	}

	if t.connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.connectTimeout)
		defer cancel()
	}

	conn, err := t.dial(ctx, "tcp", t.addr)
	if err != nil {
		return fmt.Errorf("Failed to connect to %s: %w", t.addr, err)
	}

	t.conn = conn
	t.reader = bufio.NewReader(conn)

	t.log.Debug("Connected")

	return nil
}

// Send writes one frame. The context's deadline, if any, becomes the socket's
// deadline; it is not consulted again once the write begins.
func (t *TCP) Send(ctx context.Context, code protocol.MessageCode, payload []byte) error {
	if t.conn == nil {
		return ErrNotConnected
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := t.applyDeadline(ctx); err != nil {
		return t.fail("send", err)
	}

	if t.trace {
		t.log.Debug("Sending frame", zap.Stringer("code", code), zap.Binary("payload", payload))
	}

	if err := protocol.WriteFrame(t.conn, code, payload); err != nil {
		return t.fail("send", err)
	}

	return nil
}

// Receive blocks until one whole frame has been read.
func (t *TCP) Receive(ctx context.Context) (protocol.MessageCode, []byte, error) {
	if t.conn == nil {
		return 0, nil, ErrNotConnected
	}

	if err := t.applyDeadline(ctx); err != nil {
		return 0, nil, t.fail("receive", err)
	}

	code, payload, err := protocol.ReadFrame(t.reader)
	if err != nil {
		return 0, nil, t.fail("receive", err)
	}

	if t.trace {
		t.log.Debug("Received frame", zap.Stringer("code", code), zap.Binary("payload", payload))
	}

	return code, payload, nil
}

// Invalidate closes and discards the socket. The stream may be left part way
// through a frame, so it must never be reused.
func (t *TCP) Invalidate() error {
	if t.conn == nil {
		return nil
	}

	t.log.Debug("Invalidating connection")

	err := t.conn.Close()
	t.conn = nil
	t.reader = nil

	return err
}

// Close closes the socket. It is safe to call on a closed TCP.
func (t *TCP) Close() error {
	return t.Invalidate()
}

func (t *TCP) applyDeadline(ctx context.Context) error {
	deadline, _ := ctx.Deadline()
	return t.conn.SetDeadline(deadline)
}

// fail invalidates the transport and returns err. A failure to close the
// broken socket is reported alongside the original error.
func (t *TCP) fail(op string, err error) error {
	t.log.Warn("Connection failed, invalidating", zap.String("op", op), zap.Error(err))

	if cerr := t.Invalidate(); cerr != nil {
		err = multierr.Append(err, cerr)
	}

	return fmt.Errorf("Failed to %s frame: %w", op, err)
}
