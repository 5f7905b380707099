package addrspace_test

import (
	"github.com/sarchlab/bankfinder/addrspace"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Table", func() {
	It("should space entries by the stride", func() {
		t, err := addrspace.NewTable(addrspace.Layout{
			VirtBase: 0x1000,
			PhysBase: 0x2c200000,
			Stride:   0x800,
			Count:    4,
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(t.Len()).To(Equal(4))
		Expect(t.NumPairs()).To(Equal(6))
		Expect(t.Entry(3).PhysAddr).To(Equal(uint64(0x2c201800)))
		Expect(t.Entry(3).VirtAddr).To(Equal(uint64(0x2800)))
		Expect(t.Entry(3).Index).To(Equal(3))
	})

	It("should start with every entry unclaimed and unassigned", func() {
		t, err := addrspace.NewTable(addrspace.Layout{Stride: 64, Count: 3})
		Expect(err).NotTo(HaveOccurred())

		for _, e := range t.Entries() {
			Expect(e.Associated()).To(BeFalse())
			Expect(e.Assigned()).To(BeFalse())
		}
	})

	It("should clear mutable fields on reset", func() {
		t, _ := addrspace.NewTable(addrspace.Layout{Stride: 64, Count: 3})
		t.Entry(1).Master = 0
		t.Entry(1).BankID = 0

		t.Reset()

		Expect(t.Entry(1).Master).To(Equal(addrspace.NoMaster))
		Expect(t.Entry(1).BankID).To(Equal(addrspace.Unassigned))
	})

	It("should hand out copies from Entries", func() {
		t, _ := addrspace.NewTable(addrspace.Layout{Stride: 64, Count: 2})

		entries := t.Entries()
		entries[0].BankID = 7

		Expect(t.Entry(0).BankID).To(Equal(addrspace.Unassigned))
	})

	It("should reject empty and oversized tables", func() {
		_, err := addrspace.NewTable(addrspace.Layout{Stride: 64})
		Expect(err).To(MatchError(addrspace.ErrCapacity))

		_, err = addrspace.NewTable(addrspace.Layout{
			Stride: 64,
			Count:  addrspace.MaxEntries + 1,
		})
		Expect(err).To(MatchError(addrspace.ErrCapacity))
	})

	It("should reject a zero stride", func() {
		_, err := addrspace.NewTable(addrspace.Layout{Count: 2})
		Expect(err).To(HaveOccurred())
	})

	It("should derive the entry count from the region", func() {
		l := addrspace.LayoutForRegion(0, 0x100000,
			addrspace.DefaultMemSize, addrspace.DefaultMinBankSize)

		Expect(l.Count).To(Equal(4096))
		Expect(l.Stride).To(Equal(uint64(2048)))
		Expect(l.PhysBase).To(Equal(uint64(0x100000)))
	})
})
