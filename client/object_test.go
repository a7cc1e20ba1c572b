package client_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/riakpb/capability"
	"github.com/luma/riakpb/client"
	"github.com/luma/riakpb/internal/fakenode"
	"github.com/luma/riakpb/kverr"
	"github.com/luma/riakpb/protocol"
	"github.com/luma/riakpb/quorum"
)

var _ = Describe("Objects", func() {
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

	store := func(bucket, key, value string) *client.Object {
		obj := client.NewObject(bucket, key)
		obj.SetValue([]byte(value), "text/plain")
		Expect(conn.Store(ctx, obj, quorum.Options{quorum.ReturnBody: true})).To(Succeed())
		return obj
	}

	Describe("Fetch", func() {
		It("fails with not found for a missing key", func() {
			_, err := conn.Fetch(ctx, "b", "missing", nil)
			Expect(kverr.IsNotFound(err)).To(BeTrue())

			var kerr *kverr.Error
			Expect(errors.As(err, &kerr)).To(BeTrue())
			Expect(kerr.Params.Bucket).To(Equal("b"))
			Expect(kerr.Params.Key).To(Equal("missing"))
		})

		It("reads a stored value", func() {
			store("b", "k", "hello")

			obj, err := conn.Fetch(ctx, "b", "k", quorum.Options{quorum.R: "quorum"})
			Expect(err).ToNot(HaveOccurred())
			Expect(obj.Bucket).To(Equal("b"))
			Expect(obj.Key).To(Equal("k"))
			Expect(obj.VClock).ToNot(BeEmpty())
			Expect(obj.Conflict()).To(BeFalse())
			Expect(obj.Content().Value).To(Equal([]byte("hello")))
			Expect(obj.Content().ContentType).To(Equal("text/plain"))
		})

		It("reads only headers", func() {
			store("b", "k", "hello")

			obj, err := conn.Fetch(ctx, "b", "k", quorum.Options{quorum.Head: true})
			Expect(err).ToNot(HaveOccurred())
			Expect(obj.Content().Value).To(BeEmpty())
			Expect(obj.Content().ContentType).To(Equal("text/plain"))
		})

		It("rejects invalid options before sending anything", func() {
			_, err := conn.Fetch(ctx, "b", "k", quorum.Options{quorum.R: "most"})
			Expect(errors.Is(err, quorum.ErrInvalidValue)).To(BeTrue())
			Expect(node.Received(protocol.GetReq)).To(BeZero())
		})

		It("classifies quorums above n_val", func() {
			_, err := conn.Fetch(ctx, "b", "k", quorum.Options{quorum.R: 5})

			var kerr *kverr.Error
			Expect(errors.As(err, &kerr)).To(BeTrue())
			Expect(kerr.Kind).To(Equal(kverr.InvalidQuorum))
			Expect(kerr.Params.Quorum).To(Equal("n"))
			Expect(kerr.Params.N).To(Equal(3))
		})
	})

	Describe("Reload", func() {
		It("leaves an unchanged object alone", func() {
			obj := store("b", "k", "hello")
			obj.Content().Value = []byte("local")

			Expect(conn.Reload(ctx, obj, nil)).To(Succeed())
			Expect(obj.Content().Value).To(Equal([]byte("local")))
			Expect(node.Received(protocol.GetReq)).To(Equal(1))
		})

		It("refreshes a changed object", func() {
			obj := store("b", "k", "hello")
			store("b", "k", "changed")

			Expect(conn.Reload(ctx, obj, nil)).To(Succeed())
			Expect(obj.Content().Value).To(Equal([]byte("changed")))
		})
	})

	Describe("Store", func() {
		It("refreshes the object from the returned body", func() {
			obj := store("b", "k", "hello")
			Expect(obj.VClock).ToNot(BeEmpty())
			Expect(obj.Content().Value).To(Equal([]byte("hello")))
		})

		It("takes the key the node generates", func() {
			obj := client.NewObject("b", "")
			obj.SetValue([]byte("anonymous"), "text/plain")

			Expect(conn.Store(ctx, obj, nil)).To(Succeed())
			Expect(obj.Key).ToNot(BeEmpty())

			fetched, err := conn.Fetch(ctx, "b", obj.Key, nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(fetched.Content().Value).To(Equal([]byte("anonymous")))
		})

		It("stores metadata, links and indexes", func() {
			obj := client.NewObject("b", "k")
			obj.SetValue([]byte("{}"), "application/json")
			obj.Content().Meta = map[string]string{"owner": "ann"}
			obj.Content().Links = []client.Link{{Bucket: "b", Key: "other", Tag: "friend"}}
			obj.Content().AddIndex("email_bin", "ann@example.com")

			Expect(conn.Store(ctx, obj, nil)).To(Succeed())

			fetched, err := conn.Fetch(ctx, "b", "k", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(fetched.Content().Meta).To(Equal(map[string]string{"owner": "ann"}))
			Expect(fetched.Content().Links).To(Equal(obj.Content().Links))
			Expect(fetched.Content().Indexes).To(Equal(map[string][]string{"email_bin": {"ann@example.com"}}))
		})

		It("compresses gzip encoded content", func() {
			obj := client.NewObject("b", "k")
			obj.SetValue([]byte("squeeze me"), "text/plain")
			obj.Content().ContentEncoding = "gzip"

			Expect(conn.Store(ctx, obj, nil)).To(Succeed())

			rec, err := node.Store().Get(ctx, "b", "k")
			Expect(err).ToNot(HaveOccurred())
			Expect(rec.Siblings[0].Value[:2]).To(Equal([]byte{0x1f, 0x8b}))

			fetched, err := conn.Fetch(ctx, "b", "k", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(fetched.Content().Value).To(Equal([]byte("squeeze me")))
		})

		It("refuses to store an object in conflict", func() {
			Expect(conn.SetBucketProps(ctx, "b", client.BucketProps{AllowMult: true})).To(Succeed())

			store("b", "k", "one")
			store("b", "k", "two")

			obj, err := conn.Fetch(ctx, "b", "k", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(obj.Conflict()).To(BeTrue())

			Expect(conn.Store(ctx, obj, nil)).ToNot(Succeed())
			Expect(node.Received(protocol.PutReq)).To(Equal(2))

			obj.SetValue([]byte("resolved"), "text/plain")
			Expect(conn.Store(ctx, obj, quorum.Options{quorum.ReturnBody: true})).To(Succeed())
			Expect(obj.Conflict()).To(BeFalse())
		})

		It("classifies write quorums above n_val", func() {
			obj := client.NewObject("b", "k")
			obj.SetValue([]byte("x"), "text/plain")

			err := conn.Store(ctx, obj, quorum.Options{quorum.W: 4})
			Expect(errors.Is(err, kverr.InvalidQuorum)).To(BeTrue())
		})

		Context("preventing stale writes", func() {
			It("lets the node check conditional writes", func() {
				stale := store("b", "k", "one")
				store("b", "k", "two")

				stale.PreventStaleWrites = true
				stale.SetValue([]byte("three"), "text/plain")

				err := conn.Store(ctx, stale, nil)
				Expect(errors.Is(err, kverr.StaleWrite)).To(BeTrue())
				Expect(node.Received(protocol.PutReq)).To(Equal(3))
			})

			It("refuses to create a key that exists", func() {
				store("b", "k", "one")

				obj := client.NewObject("b", "k")
				obj.PreventStaleWrites = true
				obj.SetValue([]byte("two"), "text/plain")

				Expect(errors.Is(conn.Store(ctx, obj, nil), kverr.StaleWrite)).To(BeTrue())
			})

			It("writes when the vclock is current", func() {
				obj := store("b", "k", "one")
				obj.PreventStaleWrites = true
				obj.SetValue([]byte("two"), "text/plain")

				Expect(conn.Store(ctx, obj, nil)).To(Succeed())
			})

			Context("on a node without conditional writes", func() {
				var old *client.Conn

				BeforeEach(func() {
					old = dial(node, client.Options{Capabilities: &capability.Set{}})
				})

				AfterEach(func() {
					Expect(old.Close()).To(Succeed())
				})

				It("compares vclocks itself", func() {
					stale := store("b", "k", "one")
					store("b", "k", "two")

					stale.PreventStaleWrites = true
					stale.SetValue([]byte("three"), "text/plain")

					err := old.Store(ctx, stale, nil)
					Expect(errors.Is(err, kverr.NotModified)).To(BeTrue())
					Expect(node.Received(protocol.PutReq)).To(Equal(2))
				})

				It("creates a key nobody has written", func() {
					obj := client.NewObject("b", "new")
					obj.PreventStaleWrites = true
					obj.SetValue([]byte("one"), "text/plain")

					Expect(old.Store(ctx, obj, nil)).To(Succeed())
				})

				It("refuses to create a key that exists", func() {
					store("b", "k", "one")

					obj := client.NewObject("b", "k")
					obj.PreventStaleWrites = true
					obj.SetValue([]byte("two"), "text/plain")

					Expect(errors.Is(old.Store(ctx, obj, nil), kverr.NotModified)).To(BeTrue())
				})
			})
		})
	})

	Describe("Delete", func() {
		It("removes a key", func() {
			obj := store("b", "k", "hello")

			Expect(conn.Delete(ctx, "b", "k", quorum.Options{quorum.RW: "all", quorum.VClock: obj.VClock})).To(Succeed())

			_, err := conn.Fetch(ctx, "b", "k", nil)
			Expect(kverr.IsNotFound(err)).To(BeTrue())
		})

		It("succeeds for a missing key", func() {
			Expect(conn.Delete(ctx, "b", "missing", nil)).To(Succeed())
		})
	})
})
