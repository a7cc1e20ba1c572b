package fakenode

import (
	"context"
	"errors"
	"net"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Listener struct {
	ctx context.Context

	listener net.Listener
	node     *Node
	log      *zap.Logger

	loopWaiter sync.WaitGroup

	mu          sync.Mutex
	activeConns map[*Conn]struct{}
}

func NewListener(ctx context.Context, listener net.Listener, node *Node, log *zap.Logger) *Listener {
	return &Listener{
		ctx:         ctx,
		listener:    listener,
		node:        node,
		log:         log,
		activeConns: make(map[*Conn]struct{}),
	}
}

func (l *Listener) Port() int {
	return l.listener.Addr().(*net.TCPAddr).Port
}

// Close stops accepting, closes every active connection and waits for their
// loops to exit.
func (l *Listener) Close() error {
	err := l.listener.Close()

	l.mu.Lock()
	for conn := range l.activeConns {
		err = multierr.Append(err, conn.Close())
	}
	l.mu.Unlock()

	l.loopWaiter.Wait()

	return err
}

// Serve accepts connections until the listener is closed.
func (l *Listener) Serve() error {
	for {
		nc, err := l.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || l.ctx.Err() != nil {
				// The listener was closed while we were waiting for new
				// connections, that's fine.
				return nil
			}

			return err
		}

		conn := NewConn(l.ctx, nc, l.node, l.log.Named("conn"))
		l.addConn(conn)

		l.loopWaiter.Add(1)
		go func() {
			defer l.loopWaiter.Done()
			defer l.removeConn(conn)

			conn.Start()
		}()
	}
}

func (l *Listener) addConn(conn *Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.activeConns[conn] = struct{}{}
}

func (l *Listener) removeConn(conn *Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.activeConns, conn)
}
