package tracing

import (
	"github.com/sarchlab/bankfinder/inference"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("CountHook", func() {
	It("should count every hook position", func() {
		hook := NewCountHook()
		run := inference.MakeBuilder().Build(newTable(4))
		run.AcceptHook(hook)

		_, err := run.Execute(conflictingStream())

		Expect(err).NotTo(HaveOccurred())
		Expect(hook.Count(inference.HookPosSampleRead)).To(Equal(uint64(6)))
		Expect(hook.Count(inference.HookPosMasterClassified)).To(Equal(uint64(3)))
		Expect(hook.Count(inference.HookPosConflict)).To(Equal(uint64(1)))
		Expect(hook.Count(inference.HookPosBankAssigned)).To(Equal(uint64(3)))
		Expect(hook.Count(inference.HookPosUnassigned)).To(BeZero())
		Expect(hook.Names()[0]).To(Equal("SampleRead"))
	})
})
