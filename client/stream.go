package client

import (
	"context"

	"go.uber.org/zap"

	"github.com/luma/riakpb/kverr"
	"github.com/luma/riakpb/protocol"
)

// stream runs one whole streaming operation, see streamFrames.
func (c *Conn) stream(
	ctx context.Context,
	req kverr.Request,
	operation string,
	msg protocol.Marshaler,
	expect protocol.MessageCode,
	deliver func(resp protocol.Response) (bool, error),
) error {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	return c.streamFrames(ctx, req, operation, msg, expect, deliver)
}

// streamFrames sends one request on an already begun ctx then reads
// responses until a terminal one, handing each message to deliver. deliver
// reports whether the message was terminal, in which case it must not
// deliver its payload.
//
// Once streamFrames returns, no frame of the sequence is left unread: a
// failure from deliver or from the socket leaves the connection invalidated,
// and an error frame from the node ends the sequence.
func (c *Conn) streamFrames(
	ctx context.Context,
	req kverr.Request,
	operation string,
	msg protocol.Marshaler,
	expect protocol.MessageCode,
	deliver func(resp protocol.Response) (bool, error),
) error {
	if err := c.send(ctx, operation, msg); err != nil {
		return err
	}

	for n := 0; ; n++ {
		resp, err := c.receive(ctx, req, expect)
		if err != nil {
			return err
		}

		// A bare response is terminal with nothing to deliver
		if resp.IsBare() {
			return nil
		}

		done, err := deliver(resp)
		if err != nil {
			c.log.Debug("Abandoning stream", zap.String("op", string(req.Op)), zap.Int("received", n+1), zap.Error(err))
			return c.abandon(err)
		}

		if done {
			return nil
		}
	}
}

// ListKeys lists every key in bucket. With fn, keys are handed over one
// batch at a time as they arrive and nil is returned; an error from fn stops
// the listing and is returned. Without fn every key is collected and
// returned.
func (c *Conn) ListKeys(ctx context.Context, bucket string, fn func(keys []string) error) ([]string, error) {
	var keys []string

	if fn == nil {
		keys = []string{}
		fn = func(batch []string) error {
			keys = append(keys, batch...)
			return nil
		}
	}

	err := c.stream(ctx, kverr.Request{Op: kverr.OpListKeys, Bucket: bucket}, "ListKeysReq",
		&protocol.BucketRequest{Bucket: bucket}, protocol.ListKeysResp,
		func(resp protocol.Response) (bool, error) {
			m := resp.Message.(*protocol.ListKeysResponse)
			if m.Done {
				return true, nil
			}

			if len(m.Keys) > 0 {
				if err := fn(m.Keys); err != nil {
					return false, err
				}
			}

			return false, nil
		})
	if err != nil {
		return nil, err
	}

	return keys, nil
}
