package client

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/luma/riakpb/capability"
	"github.com/luma/riakpb/transport"
)

type Options struct {
	// Host of the node to connect to
	Host string

	// Port of the node's protocol buffers listener
	Port int

	// ConnectTimeout bounds dialing the node
	ConnectTimeout time.Duration

	// RequestTimeout bounds each operation, including every frame of a
	// streaming one. Zero leaves it to the caller's context.
	RequestTimeout time.Duration

	// ClientID is sent after every (re)connect when set
	ClientID []byte

	// ServerVersion skips asking the node for its version when detecting
	// capabilities
	ServerVersion string

	// Capabilities skips detection altogether
	Capabilities *capability.Set

	// RateLimit caps operations per second, zero means unlimited
	RateLimit rate.Limit

	// Burst is the rate limiter's burst, defaults to 1
	Burst int

	// Dial replaces net.Dialer when set. This is only useful in tests.
	Dial transport.DialFunc

	// Trace will log every frame's payload at debug level
	Trace bool

	Log *zap.Logger
}
