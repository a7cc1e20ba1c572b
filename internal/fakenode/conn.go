package fakenode

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/luma/riakpb/protocol"
)

type frame struct {
	code    protocol.MessageCode
	payload []byte
}

// Conn serves one client connection. Requests are read and answered in order
// by the read loop; the write loop drains the answers onto the socket.
type Conn struct {
	ctx        context.Context
	cancel     context.CancelFunc
	loopWaiter sync.WaitGroup
	closeOnce  sync.Once

	conn net.Conn
	node *Node

	clientID []byte

	writeQueue chan frame

	log *zap.Logger
}

func NewConn(parentCtx context.Context, conn net.Conn, node *Node, log *zap.Logger) *Conn {
	ctx, cancel := context.WithCancel(parentCtx)

	return &Conn{
		ctx:        ctx,
		cancel:     cancel,
		conn:       conn,
		node:       node,
		clientID:   []byte{0, 0, 0, 1},
		writeQueue: make(chan frame, 127),
		log:        log,
	}
}

// Close hangs up on the client. It is safe to call more than once.
func (c *Conn) Close() (err error) {
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	})

	return err
}

// Start blocks until both loops have exited.
func (c *Conn) Start() {
	c.loopWaiter.Add(2)

	go func() {
		<-c.ctx.Done()
		c.Close()
	}()

	go func() {
		defer c.loopWaiter.Done()
		c.ReadLoop()
	}()

	go func() {
		defer c.loopWaiter.Done()
		c.WriteLoop()
	}()

	c.loopWaiter.Wait()
	c.Close()
}

func (c *Conn) ReadLoop() {
	log := c.log.Named("readLoop")

	defer func() {
		// Our writer only stops once everything we queued was written
		close(c.writeQueue)
		log.Debug("Read loop exited")
	}()

	reader := bufio.NewReader(c.conn)

	for {
		code, payload, err := protocol.ReadFrame(reader)
		if err != nil {
			if !errors.Is(err, protocol.ErrConnectionClosed) && c.ctx.Err() == nil {
				log.Warn("Failed to read client request", zap.Error(err))
			}
			return
		}

		if s, ok := c.node.next(code); ok {
			if s.hangUp {
				log.Debug("Hanging up as scripted", zap.Stringer("code", code))
				c.cancel()
				return
			}

			c.queue(errorFrame(s.message))
			continue
		}

		for _, f := range c.handle(code, payload) {
			c.queue(f)
		}
	}
}

func (c *Conn) WriteLoop() {
	log := c.log.Named("writeLoop")

	for f := range c.writeQueue {
		if err := protocol.WriteFrame(c.conn, f.code, f.payload); err != nil {
			if c.ctx.Err() == nil {
				log.Warn("Failed to write response", zap.Stringer("code", f.code), zap.Error(err))
			}
			c.cancel()
		}
	}

	log.Debug("Write loop exited")
}

func (c *Conn) queue(f frame) {
	select {
	case c.writeQueue <- f:
	case <-c.ctx.Done():
	}
}
