package inference

import (
	"github.com/sarchlab/bankfinder/addrspace"
	"github.com/sarchlab/bankfinder/hooking"
	"github.com/sarchlab/bankfinder/sampling"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Assigner", func() {
	var (
		table *addrspace.Table
		run   *Run
	)

	BeforeEach(func() {
		table = newTable(4)
		run = MakeBuilder().Build(table)
	})

	It("should number banks in master order", func() {
		timing := matrix(map[[2]int]uint64{
			{0, 1}: 100, {0, 2}: 100, {0, 3}: 500,
			{1, 2}: 50, {1, 3}: 50,
			{2, 3}: 50,
		}, 0)

		result, err := run.Execute(
			sampling.NewSliceStream(denseSamples(table, timing)))

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Banks).To(Equal([]Bank{
			{ID: 0, Master: 0, Siblings: []int{3}},
			{ID: 1, Master: 1},
			{ID: 2, Master: 2},
		}))
		Expect(result.Partition()).To(Equal([]int{0, 1, 2, 0}))
		Expect(result.PhysAddrs(result.Banks[0])).To(Equal(
			[]uint64{0x2c200000, 0x2c201800}))
		Expect(result.Unassigned).To(BeEmpty())
		Expect(result.Complete()).To(BeTrue())
	})

	It("should treat unclassified entries as singleton masters", func() {
		err := run.Assign()

		Expect(err).NotTo(HaveOccurred())
		Expect(run.Banks()).To(HaveLen(4))
		for i, b := range run.Banks() {
			Expect(b.ID).To(Equal(i))
			Expect(b.Master).To(Equal(i))
			Expect(b.Siblings).To(BeEmpty())
		}
	})

	It("should fail when masters exceed the bank limit", func() {
		run = MakeBuilder().WithMaxBanks(2).Build(table)

		_, err := run.Execute(
			sampling.NewSliceStream(denseSamples(table, matrix(nil, 100))))

		Expect(err).To(MatchError(ErrBankOverflow))
		Expect(err.Error()).To(ContainSubstring("entry 2"))
	})

	It("should accept exactly the bank limit", func() {
		run = MakeBuilder().WithMaxBanks(4).Build(table)

		result, err := run.Execute(
			sampling.NewSliceStream(denseSamples(table, matrix(nil, 100))))

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Banks).To(HaveLen(4))
	})

	It("should report entries that never got a bank", func() {
		unassigned := []addrspace.Entry{}
		run.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			if ctx.Pos == HookPosUnassigned {
				unassigned = append(unassigned, ctx.Item.(addrspace.Entry))
			}
		}))

		Expect(run.Validate()).To(Equal([]int{0, 1, 2, 3}))
		Expect(unassigned).To(HaveLen(4))
		Expect(unassigned[2].PhysAddr).To(Equal(uint64(0x2c201000)))
	})

	It("should invoke the hook once per bank", func() {
		banks := []Bank{}
		run.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			if ctx.Pos == HookPosBankAssigned {
				banks = append(banks, ctx.Item.(Bank))
			}
		}))

		err := run.Assign()

		Expect(err).NotTo(HaveOccurred())
		Expect(banks).To(Equal(run.Banks()))
	})

	It("should report bank members master first", func() {
		b := Bank{ID: 3, Master: 5, Siblings: []int{7, 9}}

		Expect(b.Members()).To(Equal([]int{5, 7, 9}))
		Expect(b.Size()).To(Equal(3))
	})
})
