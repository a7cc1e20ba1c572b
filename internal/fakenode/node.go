// Package fakenode is an in-process node speaking the protocol buffers wire
// protocol, backed by a storage.Store. It exists so the client can be tested
// against a real socket.
//
// Failures can be scripted per message code with FailNext and HangUpNext.
package fakenode

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"

	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/riakpb/protocol"
	"github.com/luma/riakpb/storage"
)

const (
	DefaultServerVersion = "1.4.12"
	DefaultNodeName      = "riak@127.0.0.1"
	DefaultKeysPerChunk  = 100
)

type Options struct {
	// Host to listen on
	Host string

	// Port to listen on, zero picks a free one
	Port int

	NumListeners int

	// ServerVersion is reported by GetServerInfoReq
	ServerVersion string

	// KeysPerChunk is the number of keys sent in each ListKeysResp
	KeysPerChunk int

	Store storage.Store

	Log *zap.Logger
}

type script struct {
	message string
	hangUp  bool
}

// Node accepts connections until Close is called.
type Node struct {
	cancel     context.CancelFunc
	stopWaiter sync.WaitGroup

	host          string
	port          int
	numListeners  int
	serverVersion string
	keysPerChunk  int

	listeners []*Listener

	store storage.Store

	mu       sync.Mutex
	scripts  map[protocol.MessageCode][]script
	received map[protocol.MessageCode]int

	log *zap.Logger
}

func New(options Options) *Node {
	n := &Node{
		host:          options.Host,
		port:          options.Port,
		numListeners:  options.NumListeners,
		serverVersion: options.ServerVersion,
		keysPerChunk:  options.KeysPerChunk,
		store:         options.Store,
		scripts:       make(map[protocol.MessageCode][]script),
		received:      make(map[protocol.MessageCode]int),
		log:           options.Log,
	}

	if n.host == "" {
		n.host = "127.0.0.1"
	}
	if n.numListeners < 1 {
		n.numListeners = 1
	}
	if n.serverVersion == "" {
		n.serverVersion = DefaultServerVersion
	}
	if n.keysPerChunk < 1 {
		n.keysPerChunk = DefaultKeysPerChunk
	}
	if n.store == nil {
		n.store = storage.NewInmemoryStore()
	}
	if n.log == nil {
		n.log = zap.NewNop()
	}

	return n
}

// Start listens before returning, so the node accepts connections as soon as
// Start succeeds.
func (n *Node) Start(parentCtx context.Context) error {
	ctx, cancel := context.WithCancel(parentCtx)
	n.cancel = cancel

	n.log.Info("Starting listeners", zap.Int("count", n.numListeners))

	for i := 0; i < n.numListeners; i++ {
		listener, err := n.listen(ctx, i)
		if err != nil {
			cancel()
			return multierr.Append(err, n.closeListeners())
		}

		n.listeners = append(n.listeners, listener)
	}

	for _, listener := range n.listeners {
		n.stopWaiter.Add(1)

		go func(listener *Listener) {
			defer n.stopWaiter.Done()

			if err := listener.Serve(); err != nil {
				n.log.Error("Listener failed", zap.Error(err))
			}
		}(listener)
	}

	return nil
}

func (n *Node) listen(ctx context.Context, i int) (*Listener, error) {
	port := n.port

	// With a picked port every further listener shares the first one's port
	if port == 0 && len(n.listeners) > 0 {
		port = n.listeners[0].Port()
	}

	l, err := reuseport.Listen("tcp", net.JoinHostPort(n.host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}

	return NewListener(ctx, l, n, n.log.Named("listener").With(zap.Int("listener", i))), nil
}

// Addr returns the host and port the node listens on.
func (n *Node) Addr() (string, int) {
	if len(n.listeners) == 0 {
		return n.host, n.port
	}

	return n.host, n.listeners[0].Port()
}

func (n *Node) Store() storage.Store {
	return n.store
}

func (n *Node) ServerVersion() string {
	return n.serverVersion
}

// FailNext makes the next request with code fail with an ErrorResp carrying
// message. Calls queue up in order.
func (n *Node) FailNext(code protocol.MessageCode, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.scripts[code] = append(n.scripts[code], script{message: message})
}

// HangUpNext makes the node close the connection instead of answering the
// next request with code.
func (n *Node) HangUpNext(code protocol.MessageCode) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.scripts[code] = append(n.scripts[code], script{hangUp: true})
}

// Received returns how many requests with code the node has read.
func (n *Node) Received(code protocol.MessageCode) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.received[code]
}

// next records a request and pops its script, if any.
func (n *Node) next(code protocol.MessageCode) (script, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.received[code]++

	queued := n.scripts[code]
	if len(queued) == 0 {
		return script{}, false
	}

	n.scripts[code] = queued[1:]
	return queued[0], true
}

// Close immediately closes all listeners and connections.
func (n *Node) Close() error {
	n.log.Info("Stopping node")

	if n.cancel != nil {
		n.cancel()
	}

	err := n.closeListeners()

	n.stopWaiter.Wait()
	n.log.Info("Node stopped")

	return err
}

func (n *Node) closeListeners() (err error) {
	for _, listener := range n.listeners {
		if cerr := listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}

	return err
}
