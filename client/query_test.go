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
)

var _ = Describe("Queries", func() {
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

	Describe("IndexQuery", func() {
		BeforeEach(func() {
			for key, age := range map[string]string{"ann": "31", "bob": "45", "cid": "52"} {
				obj := client.NewObject("people", key)
				obj.SetValue([]byte("{}"), "application/json")
				obj.Content().AddIndex("age_int", age)
				Expect(conn.Store(ctx, obj, nil)).To(Succeed())
			}
		})

		It("matches an exact value", func() {
			keys, err := conn.IndexQuery(ctx, "people", "age_int", client.IndexMatch("45"))
			Expect(err).ToNot(HaveOccurred())
			Expect(keys).To(Equal([]string{"bob"}))
		})

		It("matches a range", func() {
			keys, err := conn.IndexQuery(ctx, "people", "age_int", client.IndexRange("40", "60"))
			Expect(err).ToNot(HaveOccurred())
			Expect(keys).To(Equal([]string{"bob", "cid"}))
		})

		It("matches nothing", func() {
			keys, err := conn.IndexQuery(ctx, "people", "age_int", client.IndexMatch("99"))
			Expect(err).ToNot(HaveOccurred())
			Expect(keys).To(BeEmpty())
		})

		It("fails without sending on a node without indexes", func() {
			old := dial(node, client.Options{ServerVersion: "1.1.4"})
			defer old.Close()

			_, err := old.IndexQuery(ctx, "people", "age_int", client.IndexMatch("45"))

			var kerr *kverr.Error
			Expect(errors.As(err, &kerr)).To(BeTrue())
			Expect(kerr.Kind).To(Equal(kverr.FeatureUnsupported))
			Expect(kerr.Params.Feature).To(Equal(kverr.FeatureIndexes))
			Expect(node.Received(protocol.IndexReq)).To(BeZero())
		})
	})

	Describe("Search", func() {
		BeforeEach(func() {
			Expect(node.Store().Restore([]byte(`{
				"search": {"p1": {"name": "ann"}, "p2": {"name": "bob"}, "p3": {"name": "ann"}},
				"pets": {"rex": {"kind": "dog"}}
			}`))).To(Succeed())
		})

		It("searches the default index", func() {
			result, err := conn.Search(ctx, "", "name:ann", client.SearchOptions{})
			Expect(err).ToNot(HaveOccurred())
			Expect(result.NumFound).To(Equal(uint32(2)))
			Expect(result.MaxScore).To(BeNumerically(">", 0))
			Expect(result.Docs).To(ConsistOf(
				map[string]string{"id": "p1", "name": "ann"},
				map[string]string{"id": "p3", "name": "ann"},
			))
		})

		It("searches a named index", func() {
			result, err := conn.Search(ctx, "pets", "kind:dog", client.SearchOptions{})
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Docs).To(Equal([]map[string]string{{"id": "rex", "kind": "dog"}}))
		})

		It("pages through results", func() {
			result, err := conn.Search(ctx, "", "*:*", client.SearchOptions{Start: 1, Rows: 1})
			Expect(err).ToNot(HaveOccurred())
			Expect(result.NumFound).To(Equal(uint32(3)))
			Expect(result.Docs).To(HaveLen(1))
			Expect(result.Docs[0]["id"]).To(Equal("p2"))
		})

		It("finds nothing", func() {
			result, err := conn.Search(ctx, "", "name:zed", client.SearchOptions{})
			Expect(err).ToNot(HaveOccurred())
			Expect(result.NumFound).To(BeZero())
			Expect(result.Docs).To(BeEmpty())
		})

		It("fails without sending on a node without search", func() {
			old := dial(node, client.Options{Capabilities: &capability.Set{Indexes: true}})
			defer old.Close()

			_, err := old.Search(ctx, "", "name:ann", client.SearchOptions{})
			Expect(errors.Is(err, kverr.FeatureUnsupported)).To(BeTrue())
			Expect(node.Received(protocol.SearchQueryReq)).To(BeZero())
		})
	})
})
