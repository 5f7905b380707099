// Package synth generates timing samples from a known bank mapping. It
// stands in for the measurement harness in tests and demonstrations.
package synth

import (
	"math/bits"

	"github.com/sarchlab/bankfinder/addrspace"
)

// A Mapping is an XOR bank-selection function. Bank bit k is the parity of
// addr & BankMasks[k]. The row of an address is addr >> RowShift.
type Mapping struct {
	BankMasks []uint64
	RowShift  uint
}

// DefaultMapping returns a 16-bank mapping that folds address bits 17 to 20
// onto bits 11 to 14. Any two entries of a table with a 2 KiB stride either
// differ in bank or differ in row.
func DefaultMapping() Mapping {
	masks := make([]uint64, 4)
	for k := range masks {
		masks[k] = 1<<(11+k) | 1<<(17+k)
	}

	return Mapping{BankMasks: masks, RowShift: 15}
}

// NumBanks returns the number of banks the mapping can select.
func (m Mapping) NumBanks() int {
	return 1 << len(m.BankMasks)
}

// Bank returns the bank of addr.
func (m Mapping) Bank(addr uint64) int {
	bank := 0

	for k, mask := range m.BankMasks {
		bank |= (bits.OnesCount64(addr&mask) & 1) << k
	}

	return bank
}

// Row returns the row of addr.
func (m Mapping) Row(addr uint64) uint64 {
	return addr >> m.RowShift
}

// Conflicts returns true if a and b are in the same bank but different
// rows.
func (m Mapping) Conflicts(a, b uint64) bool {
	return m.Bank(a) == m.Bank(b) && m.Row(a) != m.Row(b)
}

// Partition returns, for each entry of the table, the bank the entry falls
// into. Banks are numbered in the order they first appear, which is also
// the order in which inference hands out bank IDs.
func (m Mapping) Partition(table *addrspace.Table) []int {
	ids := make(map[int]int)
	p := make([]int, table.Len())

	for i := range p {
		bank := m.Bank(table.Entry(i).PhysAddr)

		id, ok := ids[bank]
		if !ok {
			id = len(ids)
			ids[bank] = id
		}

		p[i] = id
	}

	return p
}
