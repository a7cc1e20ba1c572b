package kverr_test

import (
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"

	"github.com/luma/riakpb/kverr"
)

var fetch = kverr.Request{Op: kverr.OpFetch, Bucket: "users", Key: "alice"}
var store = kverr.Request{Op: kverr.OpStore, Bucket: "users", Key: "alice"}

var _ = Describe("Classify", func() {
	Describe("ClassifyMessage()", func() {
		DescribeTable("maps node messages to kinds",
			func(message string, kind kverr.Kind) {
				err := kverr.ClassifyMessage(store, message)
				Expect(err.Kind).To(Equal(kind))
				Expect(err.Message).To(Equal(message))
			},
			Entry("modified", "modified", kverr.StaleWrite),
			Entry("match_found", "match_found", kverr.StaleWrite),
			Entry("notfound", "notfound", kverr.NotFound),
			Entry("n_val_violation", "{n_val_violation,3}", kverr.InvalidQuorum),
			Entry("pw_val_unsatisfied", "{pw_val_unsatisfied,3,2}", kverr.InsufficientPrimaries),
			Entry("pr_val_unsatisfied", "{pr_val_unsatisfied,3,2}", kverr.InsufficientPrimaries),
			Entry("insufficient_vnodes", "{insufficient_vnodes,1,need,2}", kverr.InsufficientReplicas),
			Entry("r_val_unsatisfied", "{r_val_unsatisfied,3,1}", kverr.QuorumNotMet),
			Entry("w_val_unsatisfied", "{w_val_unsatisfied,3,3,1,1}", kverr.QuorumNotMet),
			Entry("too_many_fails", "too_many_fails", kverr.QuorumFailed),
			Entry("timeout", "timeout", kverr.RequestTimedOut),
			Entry("precommit_fail with reason", "{precommit_fail, not allowed}", kverr.PrecommitFailed),
			Entry("precommit_fail", "precommit_fail", kverr.PrecommitFailed),
			Entry("anything else", "the node is on fire", kverr.ServerError),
		)

		It("reads w_val_unsatisfied counts positionally", func() {
			err := kverr.ClassifyMessage(store, "w_val_unsatisfied 1/2/3/4")
			Expect(err.Kind).To(Equal(kverr.QuorumNotMet))
			Expect(err.Params.Quorums).To(Equal([]kverr.QuorumCount{
				{Name: "w", Requested: 1, Achieved: 3},
				{Name: "dw", Requested: 2, Achieved: 4},
			}))
		})

		It("reads r_val_unsatisfied as requested then achieved", func() {
			err := kverr.ClassifyMessage(fetch, "{r_val_unsatisfied,3,1}")
			Expect(err.Params.Quorums).To(Equal([]kverr.QuorumCount{{Name: "r", Requested: 3, Achieved: 1}}))
		})

		It("extracts requested and achieved primaries", func() {
			err := kverr.ClassifyMessage(store, "{pw_val_unsatisfied,3,2}")
			Expect(err.Params.Requested).To(Equal(3))
			Expect(err.Params.Achieved).To(Equal(2))
		})

		It("names the violated quorum", func() {
			err := kverr.ClassifyMessage(store, "{dw_val_violation,5}")
			Expect(err.Params.Quorum).To(Equal("dw"))
			Expect(err.Params.N).To(Equal(5))

			err = kverr.ClassifyMessage(store, "{pw_val_violation,5}")
			Expect(err.Params.Quorum).To(Equal("pw"))
		})

		It("takes the bucket and key of a not found from the request", func() {
			err := kverr.ClassifyMessage(fetch, "notfound")
			Expect(err.Params.Bucket).To(Equal("users"))
			Expect(err.Params.Key).To(Equal("alice"))
			Expect(kverr.IsNotFound(err)).To(BeTrue())
		})

		It("extracts the precommit hook's reason", func() {
			err := kverr.ClassifyMessage(store, `{precommit_fail, "missing owner"}`)
			Expect(err.Params.Reason).To(Equal(`"missing owner"`))
		})

		It("reports every failure during a map-reduce as a map-reduce error", func() {
			req := kverr.Request{Op: kverr.OpMapReduce}
			for _, message := range []string{"timeout", "{r_val_unsatisfied,3,1}", "notfound", "whatever"} {
				err := kverr.ClassifyMessage(req, message)
				Expect(err.Kind).To(Equal(kverr.MapReduceError))
				Expect(err.Message).To(Equal(message))
			}
		})

		It("is deterministic", func() {
			first := kverr.ClassifyMessage(store, "{w_val_unsatisfied,3,3,1,1}")
			second := kverr.ClassifyMessage(store, "{w_val_unsatisfied,3,3,1,1}")
			Expect(first).To(Equal(second))
		})
	})

	Describe("ClassifyHTTP()", func() {
		DescribeTable("maps HTTP failures to kinds",
			func(status int, body string, kind kverr.Kind) {
				err, ok := kverr.ClassifyHTTP(fetch, status, body)
				Expect(ok).To(BeTrue())
				Expect(err.Kind).To(Equal(kind))
			},
			Entry("bad quorum", 400, "r query parameter must be an integer or one of the following words: [one, quorum, all]", kverr.InvalidQuorum),
			Entry("n_val", 400, "Specified w/dw/pw values invalid for bucket n value of 3", kverr.NValViolation),
			Entry("content type", 400, "Missing Content-Type request header", kverr.ContentTypeMissing),
			Entry("index query", 400, "Invalid query", kverr.InvalidIndexQuery),
			Entry("link header", 400, "Invalid Link header", kverr.BadRequest),
			Entry("precommit", 403, "not allowed", kverr.PrecommitFailed),
			Entry("not found", 404, "not found", kverr.NotFound),
			Entry("write failures", 503, "Too many write failures to satisfy W/DW", kverr.QuorumFailed),
			Entry("timed out", 503, "request timed out", kverr.RequestTimedOut),
			Entry("primaries", 503, "PW-value unsatisfied: 1/2", kverr.InsufficientPrimaries),
			Entry("r quorum", 503, "R-value unsatisfied: 1/2", kverr.QuorumNotMet),
			Entry("unable to connect", 503, "Unable to connect to node", kverr.ServerError),
			Entry("w_val in a 500", 500, "{w_val_unsatisfied,3,3,1,1}", kverr.QuorumNotMet),
			Entry("vnodes in a 500", 500, "{insufficient_vnodes,1,need,2}", kverr.InsufficientReplicas),
			Entry("other 500", 500, "badarg", kverr.ServerError),
		)

		It("only treats a 404 as not found during a fetch", func() {
			err, ok := kverr.ClassifyHTTP(fetch, 404, "not found")
			Expect(ok).To(BeTrue())
			Expect(err.Params.Bucket).To(Equal("users"))
			Expect(err.Params.Key).To(Equal("alice"))

			err, ok = kverr.ClassifyHTTP(store, 404, "not found")
			Expect(ok).To(BeFalse())
			Expect(err).To(BeNil())
		})

		It("takes the quorum name from the first word of a 400", func() {
			err, _ := kverr.ClassifyHTTP(store, 400, "dw query parameter must be an integer")
			Expect(err.Params.Quorum).To(Equal("dw"))
		})

		It("swaps the achieved/requested order of HTTP quorum bodies", func() {
			err, _ := kverr.ClassifyHTTP(store, 503, "PW-value unsatisfied: 1/2")
			Expect(err.Params.Requested).To(Equal(2))
			Expect(err.Params.Achieved).To(Equal(1))

			err, _ = kverr.ClassifyHTTP(store, 503, "W-value unsatisfied: 1/2")
			Expect(err.Params.Quorums).To(Equal([]kverr.QuorumCount{{Name: "w", Requested: 2, Achieved: 1}}))
		})

		It("does not match unknown statuses", func() {
			_, ok := kverr.ClassifyHTTP(store, 418, "teapot")
			Expect(ok).To(BeFalse())
		})

		It("reports every failure during a map-reduce as a map-reduce error", func() {
			err, ok := kverr.ClassifyHTTP(kverr.Request{Op: kverr.OpMapReduce}, 400, "query parameter")
			Expect(ok).To(BeTrue())
			Expect(err.Kind).To(Equal(kverr.MapReduceError))
		})
	})

	Describe("Classify()", func() {
		It("routes protocol buffers failures through the message rules", func() {
			err := kverr.Classify(store, kverr.Raw{Message: "timeout"})
			Expect(err.Kind).To(Equal(kverr.RequestTimedOut))
		})

		It("falls back to a server error carrying the raw body", func() {
			err := kverr.Classify(store, kverr.Raw{Status: 404, Message: "not found"})
			Expect(err.Kind).To(Equal(kverr.ServerError))
			Expect(err.Message).To(Equal("not found"))
		})

		It("produces errors callers can branch on", func() {
			var err error = kverr.Classify(fetch, kverr.Raw{Status: 404, Message: "not found"})
			Expect(errors.Is(err, kverr.NotFound)).To(BeTrue())
			Expect(errors.Is(err, kverr.StaleWrite)).To(BeFalse())

			kind, ok := kverr.KindOf(err)
			Expect(ok).To(BeTrue())
			Expect(kind).To(Equal(kverr.NotFound))
		})
	})
})
