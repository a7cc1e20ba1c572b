package capability_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/riakpb/capability"
)

var _ = Describe("Detect()", func() {
	It("supports nothing for an unparseable version", func() {
		Expect(capability.Detect("")).To(Equal(capability.Set{}))
		Expect(capability.Detect("unknown")).To(Equal(capability.Set{}))
	})

	It("supports nothing before 1.0", func() {
		Expect(capability.Detect("0.14.2")).To(Equal(capability.Set{}))
	})

	It("enables quorum controls and conditionals from 1.0", func() {
		caps := capability.Detect("1.0.3")
		Expect(caps.QuorumControls).To(BeTrue())
		Expect(caps.Conditionals).To(BeTrue())
		Expect(caps.TombstoneVClocks).To(BeTrue())
		Expect(caps.PhaselessMapReduce).To(BeFalse())
		Expect(caps.Indexes).To(BeFalse())
	})

	It("enables phaseless map-reduce from 1.1", func() {
		caps := capability.Detect("1.1.4")
		Expect(caps.PhaselessMapReduce).To(BeTrue())
		Expect(caps.Search).To(BeFalse())
	})

	It("enables indexes and search from 1.2", func() {
		Expect(capability.Detect("1.2.0")).To(Equal(capability.All()))
		Expect(capability.Detect("1.4.12")).To(Equal(capability.All()))
	})

	It("ignores build suffixes", func() {
		Expect(capability.Detect("2.0.0p1")).To(Equal(capability.All()))
		Expect(capability.Detect("1.1.0-rc1")).To(Equal(capability.Detect("1.1.0")))
	})
})
