package client_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/riakpb/capability"
	"github.com/luma/riakpb/client"
	"github.com/luma/riakpb/internal/fakenode"
	"github.com/luma/riakpb/kverr"
	"github.com/luma/riakpb/protocol"
)

func startNode(options fakenode.Options) *fakenode.Node {
	node := fakenode.New(options)
	Expect(node.Start(context.Background())).To(Succeed())
	return node
}

func dial(node *fakenode.Node, options client.Options) *client.Conn {
	options.Host, options.Port = node.Addr()
	if options.RequestTimeout == 0 {
		options.RequestTimeout = 5 * time.Second
	}
	return client.New(options)
}

var _ = Describe("Conn", func() {
	var (
		node *fakenode.Node
		conn *client.Conn
		ctx  = context.Background()
	)

	BeforeEach(func() {
		node = startNode(fakenode.Options{})
		conn = dial(node, client.Options{})
	})

	AfterEach(func() {
		Expect(conn.Close()).To(Succeed())
		Expect(node.Close()).To(Succeed())
	})

	It("pings", func() {
		Expect(conn.Ping(ctx)).To(Succeed())
		Expect(node.Received(protocol.PingReq)).To(Equal(1))
	})

	Describe("capabilities", func() {
		It("detects them from the node's version once", func() {
			Expect(conn.Ping(ctx)).To(Succeed())
			Expect(conn.Ping(ctx)).To(Succeed())

			Expect(node.Received(protocol.GetServerInfoReq)).To(Equal(1))
			Expect(conn.Capabilities()).To(Equal(capability.Detect(fakenode.DefaultServerVersion)))
		})

		It("trusts a configured version", func() {
			other := dial(node, client.Options{ServerVersion: "1.0.3"})
			defer other.Close()

			Expect(other.Ping(ctx)).To(Succeed())
			Expect(node.Received(protocol.GetServerInfoReq)).To(BeZero())
			Expect(other.Capabilities().Indexes).To(BeFalse())
			Expect(other.Capabilities().Conditionals).To(BeTrue())
		})

		It("trusts configured capabilities", func() {
			other := dial(node, client.Options{Capabilities: &capability.Set{Search: true}})
			defer other.Close()

			Expect(other.Ping(ctx)).To(Succeed())
			Expect(node.Received(protocol.GetServerInfoReq)).To(BeZero())
			Expect(other.Capabilities()).To(Equal(capability.Set{Search: true}))
		})
	})

	It("reports server info", func() {
		info, err := conn.ServerInfo(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(info).To(Equal(client.ServerInfo{
			Node:          fakenode.DefaultNodeName,
			ServerVersion: fakenode.DefaultServerVersion,
		}))
	})

	Describe("client ids", func() {
		It("sets and reads back the client id", func() {
			id := client.ClientIDFromUint32(0xDEADBEEF)
			Expect(id).To(Equal([]byte{0xDE, 0xAD, 0xBE, 0xEF}))

			Expect(conn.SetClientID(ctx, id)).To(Succeed())

			got, err := conn.ClientID(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(got).To(Equal(id))
		})

		It("sends the client id again after reconnecting", func() {
			other := dial(node, client.Options{ClientID: []byte("abcd")})
			defer other.Close()

			Expect(other.Ping(ctx)).To(Succeed())
			Expect(node.Received(protocol.SetClientIdReq)).To(Equal(1))

			node.HangUpNext(protocol.PingReq)
			Expect(other.Ping(ctx)).ToNot(Succeed())

			id, err := other.ClientID(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(id).To(Equal([]byte("abcd")))
			Expect(node.Received(protocol.SetClientIdReq)).To(Equal(2))
		})

		It("generates four byte ids", func() {
			Expect(client.NewClientID()).To(HaveLen(4))
			Expect(client.NewClientID()).ToNot(Equal(client.NewClientID()))
		})
	})

	Describe("buckets", func() {
		It("lists no buckets on an empty node", func() {
			buckets, err := conn.ListBuckets(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(buckets).To(BeEmpty())
		})

		It("lists buckets holding keys", func() {
			Expect(node.Store().Restore([]byte(`{"a":{"k":1},"b":{"k":2}}`))).To(Succeed())

			buckets, err := conn.ListBuckets(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(buckets).To(ConsistOf("a", "b"))
		})

		It("reads default properties", func() {
			props, err := conn.BucketProps(ctx, "b")
			Expect(err).ToNot(HaveOccurred())
			Expect(props).To(Equal(client.BucketProps{NVal: 3}))
		})

		It("changes properties", func() {
			Expect(conn.SetBucketProps(ctx, "b", client.BucketProps{NVal: 2, AllowMult: true})).To(Succeed())

			props, err := conn.BucketProps(ctx, "b")
			Expect(err).ToNot(HaveOccurred())
			Expect(props).To(Equal(client.BucketProps{NVal: 2, AllowMult: true}))
		})

		It("keeps n_val when only allow_mult changes", func() {
			Expect(conn.SetBucketProps(ctx, "b", client.BucketProps{NVal: 5})).To(Succeed())
			Expect(conn.SetBucketProps(ctx, "b", client.BucketProps{AllowMult: true})).To(Succeed())

			props, err := conn.BucketProps(ctx, "b")
			Expect(err).ToNot(HaveOccurred())
			Expect(props).To(Equal(client.BucketProps{NVal: 5, AllowMult: true}))
		})
	})

	Describe("failures", func() {
		It("classifies the node's errors", func() {
			node.FailNext(protocol.PingReq, "timeout")

			err := conn.Ping(ctx)
			Expect(errors.Is(err, kverr.RequestTimedOut)).To(BeTrue())

			Expect(conn.Ping(ctx)).To(Succeed())
		})

		It("reports a closed connection and reconnects", func() {
			node.HangUpNext(protocol.PingReq)

			err := conn.Ping(ctx)
			Expect(errors.Is(err, kverr.ConnectionClosed)).To(BeTrue())
			Expect(errors.Is(err, protocol.ErrConnectionClosed)).To(BeTrue())

			Expect(conn.Ping(ctx)).To(Succeed())
		})

		It("fails to connect to nothing", func() {
			Expect(conn.Close()).To(Succeed())
			Expect(node.Close()).To(Succeed())

			dead := dial(node, client.Options{ConnectTimeout: time.Second})
			Expect(dead.Ping(ctx)).ToNot(Succeed())

			node = startNode(fakenode.Options{})
			conn = dial(node, client.Options{})
		})

		It("respects an expired context", func() {
			expired, cancel := context.WithCancel(ctx)
			cancel()

			Expect(conn.Ping(expired)).ToNot(Succeed())
			Expect(node.Received(protocol.PingReq)).To(BeZero())
		})
	})

	It("limits the rate of operations", func() {
		limited := dial(node, client.Options{RateLimit: 10, Burst: 1})
		defer limited.Close()

		start := time.Now()
		for i := 0; i < 3; i++ {
			Expect(limited.Ping(ctx)).To(Succeed())
		}

		Expect(time.Since(start)).To(BeNumerically(">=", 150*time.Millisecond))
	})
})
