// Package addrspace models the set of candidate addresses probed for bank
// conflicts.
package addrspace

import (
	"errors"
	"fmt"
)

// Unassigned is the bank ID of an entry that has not been placed in a bank.
const Unassigned = -1

// NoMaster is the back-reference of an entry that nobody has claimed.
const NoMaster = -1

// Default region geometry. They only need to be approximations of the real
// hardware.
const (
	PageSize           = 1 << 12
	DefaultMemSize     = 1 << 23
	DefaultMinBankSize = PageSize / 2
	MaxEntries         = 1 << 20
)

// ErrCapacity is returned when a table cannot hold the requested entries.
var ErrCapacity = errors.New("capacity exceeded")

// An Entry is one address under test.
type Entry struct {
	Index    int
	VirtAddr uint64
	PhysAddr uint64

	// BankID is the bank that the entry lies on, or Unassigned.
	BankID int

	// Master is the index of the entry that claimed this one as its
	// sibling, or NoMaster.
	Master int
}

// Associated returns true if the entry has been claimed by a master.
func (e Entry) Associated() bool {
	return e.Master != NoMaster
}

// Assigned returns true if the entry has a bank.
func (e Entry) Assigned() bool {
	return e.BankID != Unassigned
}

// Layout describes where the entries are.
type Layout struct {
	VirtBase uint64
	PhysBase uint64
	Stride   uint64
	Count    int
}

// LayoutForRegion creates a layout that covers a region of memSize bytes with
// one entry every minBankSize bytes.
func LayoutForRegion(virtBase, physBase, memSize, minBankSize uint64) Layout {
	l := Layout{
		VirtBase: virtBase,
		PhysBase: physBase,
		Stride:   minBankSize,
	}

	if minBankSize > 0 {
		l.Count = int(memSize / minBankSize)
	}

	return l
}

// A Table holds all the entries of a run.
type Table struct {
	layout  Layout
	entries []Entry
}

// NewTable creates a table with entries spaced by the layout's stride.
func NewTable(layout Layout) (*Table, error) {
	if layout.Stride == 0 {
		return nil, fmt.Errorf("addrspace: stride must be positive")
	}

	if layout.Count <= 0 || layout.Count > MaxEntries {
		return nil, fmt.Errorf("addrspace: %d entries (max %d): %w",
			layout.Count, MaxEntries, ErrCapacity)
	}

	t := &Table{
		layout:  layout,
		entries: make([]Entry, layout.Count),
	}

	for i := range t.entries {
		offset := uint64(i) * layout.Stride
		t.entries[i] = Entry{
			Index:    i,
			VirtAddr: layout.VirtBase + offset,
			PhysAddr: layout.PhysBase + offset,
		}
	}

	t.Reset()

	return t, nil
}

// Reset clears the result of any previous classification.
func (t *Table) Reset() {
	for i := range t.entries {
		t.entries[i].BankID = Unassigned
		t.entries[i].Master = NoMaster
	}
}

// Layout returns the layout the table was built with.
func (t *Table) Layout() Layout {
	return t.layout
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// Entry returns a pointer to the i-th entry.
func (t *Table) Entry(i int) *Entry {
	return &t.entries[i]
}

// Entries returns a copy of all the entries.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)

	return out
}

// NumPairs returns the number of ordered pairs (i, j) with i < j.
func (t *Table) NumPairs() int {
	n := len(t.entries)
	return n * (n - 1) / 2
}
