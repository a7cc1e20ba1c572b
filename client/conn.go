// Package client is the public surface of riakpb: a Conn runs every
// operation a node supports as one request/response exchange, or one
// streamed sequence, over a single socket.
//
// A Conn runs one operation at a time and is not safe for concurrent use.
// Open one Conn per goroutine that needs to talk to a node.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/luma/riakpb/capability"
	"github.com/luma/riakpb/kverr"
	"github.com/luma/riakpb/protocol"
	"github.com/luma/riakpb/transport"
)

var (
	ErrUnexpectedResponse = errors.New("Node answered with an unexpected message")
)

type Conn struct {
	tcp *transport.TCP

	caps      capability.Set
	capsKnown bool

	clientID       []byte
	requestTimeout time.Duration

	limiter *rate.Limiter

	log *zap.Logger
}

// ServerInfo is what a node reports about itself.
type ServerInfo struct {
	Node          string `json:"node" yaml:"node"`
	ServerVersion string `json:"server_version" yaml:"server_version"`
}

func New(options Options) *Conn {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	c := &Conn{
		tcp: transport.NewTCP(transport.Options{
			Host:           options.Host,
			Port:           options.Port,
			ConnectTimeout: options.ConnectTimeout,
			Dial:           options.Dial,
			Trace:          options.Trace,
			Log:            log.Named("transport"),
		}),
		clientID:       options.ClientID,
		requestTimeout: options.RequestTimeout,
		log:            log.Named("client"),
	}

	if options.Capabilities != nil {
		c.caps = *options.Capabilities
		c.capsKnown = true
	} else if options.ServerVersion != "" {
		c.caps = capability.Detect(options.ServerVersion)
		c.capsKnown = true
	}

	if options.RateLimit > 0 {
		burst := options.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(options.RateLimit, burst)
	}

	return c
}

// Connect dials the node, if needed, and detects its capabilities the first
// time. Every operation connects on its own; calling Connect up front only
// surfaces connection problems early.
func (c *Conn) Connect(ctx context.Context) error {
	if !c.tcp.Connected() {
		if err := c.tcp.Connect(ctx); err != nil {
			return err
		}

		if c.clientID != nil {
			if _, err := c.roundTrip(ctx, kverr.Request{Op: kverr.OpSetClientID}, "SetClientIdReq",
				&protocol.SetClientIDRequest{ClientID: c.clientID}, protocol.SetClientIdResp); err != nil {
				return err
			}
		}
	}

	if c.capsKnown {
		return nil
	}

	info, err := c.serverInfo(ctx)
	if err != nil {
		return fmt.Errorf("Failed to detect capabilities: %w", err)
	}

	c.caps = capability.Detect(info.ServerVersion)
	c.capsKnown = true

	c.log.Debug("Detected capabilities",
		zap.String("serverVersion", info.ServerVersion),
		zap.Any("capabilities", c.caps))

	return nil
}

// Capabilities returns what the node supports. It is only meaningful once
// connected, or when capabilities were configured.
func (c *Conn) Capabilities() capability.Set {
	return c.caps
}

func (c *Conn) Close() error {
	return c.tcp.Close()
}

// begin prepares ctx for one operation and makes sure we are connected.
func (c *Conn) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, err
		}
	}

	cancel := context.CancelFunc(func() {})
	if c.requestTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
	}

	if err := c.Connect(ctx); err != nil {
		cancel()
		return nil, nil, err
	}

	return ctx, cancel, nil
}

// call runs one whole operation: a request and its single response.
func (c *Conn) call(
	ctx context.Context,
	req kverr.Request,
	operation string,
	msg protocol.Marshaler,
	expect protocol.MessageCode,
) (protocol.Response, error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return protocol.Response{}, err
	}
	defer cancel()

	return c.roundTrip(ctx, req, operation, msg, expect)
}

func (c *Conn) roundTrip(
	ctx context.Context,
	req kverr.Request,
	operation string,
	msg protocol.Marshaler,
	expect protocol.MessageCode,
) (protocol.Response, error) {
	if err := c.send(ctx, operation, msg); err != nil {
		return protocol.Response{}, err
	}

	return c.receive(ctx, req, expect)
}

func (c *Conn) send(ctx context.Context, operation string, msg protocol.Marshaler) error {
	code, payload, err := protocol.Encode(operation, msg)
	if err != nil {
		return err
	}

	if err := c.tcp.Send(ctx, code, payload); err != nil {
		return connectionFailure(err)
	}

	return nil
}

// receive reads and decodes one frame. An error frame is classified in the
// context of req.
func (c *Conn) receive(ctx context.Context, req kverr.Request, expect protocol.MessageCode) (protocol.Response, error) {
	code, payload, err := c.tcp.Receive(ctx)
	if err != nil {
		return protocol.Response{}, connectionFailure(err)
	}

	resp, err := protocol.Decode(code, payload)
	if err != nil {
		var errResp *protocol.ErrorResponse
		if errors.As(err, &errResp) {
			kerr := kverr.Classify(req, kverr.Raw{Message: errResp.Message})
			c.log.Debug("Node reported a failure",
				zap.String("op", string(req.Op)),
				zap.Error(kerr))
			return protocol.Response{}, kerr
		}

		return protocol.Response{}, err
	}

	if resp.Code != expect {
		// Whatever we were sent, the stream is no longer in step with us
		return protocol.Response{}, c.abandon(fmt.Errorf("Expected %s, got %s: %w", expect, resp.Code, ErrUnexpectedResponse))
	}

	return resp, nil
}

// abandon invalidates the connection after a failure that leaves unread
// frames on the socket.
func (c *Conn) abandon(err error) error {
	if cerr := c.tcp.Invalidate(); cerr != nil {
		c.log.Warn("Failed to close abandoned connection", zap.Error(cerr))
	}

	return err
}

// connectionFailure marks a closed socket as kverr.ConnectionClosed.
func connectionFailure(err error) error {
	if errors.Is(err, protocol.ErrConnectionClosed) {
		return fmt.Errorf("%w: %w", kverr.ConnectionClosed, err)
	}

	return err
}

func (c *Conn) Ping(ctx context.Context) error {
	_, err := c.call(ctx, kverr.Request{Op: kverr.OpPing}, "PingReq", nil, protocol.PingResp)
	return err
}

func (c *Conn) ClientID(ctx context.Context) ([]byte, error) {
	resp, err := c.call(ctx, kverr.Request{Op: kverr.OpClientID}, "GetClientIdReq", nil, protocol.GetClientIdResp)
	if err != nil {
		return nil, err
	}

	if resp.IsBare() {
		return nil, nil
	}

	return resp.Message.(*protocol.ClientIDResponse).ClientID, nil
}

// SetClientID changes the id the node attributes our writes to. The id is
// sent again whenever the connection is re-established.
func (c *Conn) SetClientID(ctx context.Context, id []byte) error {
	_, err := c.call(ctx, kverr.Request{Op: kverr.OpSetClientID}, "SetClientIdReq",
		&protocol.SetClientIDRequest{ClientID: id}, protocol.SetClientIdResp)
	if err != nil {
		return err
	}

	c.clientID = id
	return nil
}

func (c *Conn) ServerInfo(ctx context.Context) (ServerInfo, error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return ServerInfo{}, err
	}
	defer cancel()

	return c.serverInfo(ctx)
}

func (c *Conn) serverInfo(ctx context.Context) (ServerInfo, error) {
	resp, err := c.roundTrip(ctx, kverr.Request{Op: kverr.OpServerInfo}, "GetServerInfoReq", nil, protocol.GetServerInfoResp)
	if err != nil {
		return ServerInfo{}, err
	}

	if resp.IsBare() {
		return ServerInfo{}, nil
	}

	m := resp.Message.(*protocol.ServerInfoResponse)
	return ServerInfo{Node: m.Node, ServerVersion: m.ServerVersion}, nil
}

func (c *Conn) ListBuckets(ctx context.Context) ([]string, error) {
	resp, err := c.call(ctx, kverr.Request{Op: kverr.OpListBuckets}, "ListBucketsReq", nil, protocol.ListBucketsResp)
	if err != nil {
		return nil, err
	}

	if resp.IsBare() {
		return []string{}, nil
	}

	return resp.Message.(*protocol.ListBucketsResponse).Buckets, nil
}

// BucketProps are the properties of a bucket.
type BucketProps struct {
	NVal      uint32 `json:"n_val" yaml:"n_val"`
	AllowMult bool   `json:"allow_mult" yaml:"allow_mult"`
}

func (c *Conn) BucketProps(ctx context.Context, bucket string) (BucketProps, error) {
	resp, err := c.call(ctx, kverr.Request{Op: kverr.OpBucketProps, Bucket: bucket}, "GetBucketReq",
		&protocol.BucketRequest{Bucket: bucket}, protocol.GetBucketResp)
	if err != nil {
		return BucketProps{}, err
	}

	var props BucketProps
	if resp.IsBare() {
		return props, nil
	}

	m := resp.Message.(*protocol.GetBucketResponse)
	if m.Props.NVal != nil {
		props.NVal = *m.Props.NVal
	}
	if m.Props.AllowMult != nil {
		props.AllowMult = *m.Props.AllowMult
	}

	return props, nil
}

// SetBucketProps changes a bucket's properties. A zero NVal leaves the
// bucket's n_val as it is.
func (c *Conn) SetBucketProps(ctx context.Context, bucket string, props BucketProps) error {
	wire := protocol.BucketProps{AllowMult: &props.AllowMult}
	if props.NVal > 0 {
		wire.NVal = &props.NVal
	}

	_, err := c.call(ctx, kverr.Request{Op: kverr.OpSetBucket, Bucket: bucket}, "SetBucketReq",
		&protocol.SetBucketRequest{Bucket: bucket, Props: wire}, protocol.SetBucketResp)
	return err
}
