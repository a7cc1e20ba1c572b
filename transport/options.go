package transport

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
)

// DialFunc opens the raw connection to a node.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

type Options struct {
	// Host of the node to connect to
	Host string

	// Port of the node's protocol buffers listener
	Port int

	// ConnectTimeout bounds how long dialing may take. Zero means no bound
	// other than the context's.
	ConnectTimeout time.Duration

	// Dial replaces net.Dialer when set. This is only useful in tests.
	Dial DialFunc

	// Trace will log every frame's payload at debug level. This is only useful
	// in local debugging
	Trace bool

	Log *zap.Logger
}
