package inference

import (
	"errors"

	"github.com/sarchlab/bankfinder/addrspace"
	"github.com/sarchlab/bankfinder/hooking"
	"github.com/sarchlab/bankfinder/sampling"
)

// ErrBankOverflow is returned when more masters are found than banks are
// allowed. It usually means the region is too large for the bank count or the
// outlier percentage does not fit the hardware.
var ErrBankOverflow = errors.New("bank overflow")

// Hook positions invoked by a Run.
var (
	// HookPosSampleRead is invoked for every sample consumed. Item is a
	// PairSample.
	HookPosSampleRead = &hooking.HookPos{Name: "SampleRead"}

	// HookPosMasterClassified is invoked after a master's row has been
	// classified. Item is a MasterStats, Detail is the []float64 row of
	// timings, which is only valid during the call.
	HookPosMasterClassified = &hooking.HookPos{Name: "MasterClassified"}

	// HookPosRowSkipped is invoked when the row of a claimed entry is passed
	// over. Item is a RowSkip.
	HookPosRowSkipped = &hooking.HookPos{Name: "RowSkipped"}

	// HookPosSiblingClaimed is invoked when a master claims an entry. Item is
	// a Claim.
	HookPosSiblingClaimed = &hooking.HookPos{Name: "SiblingClaimed"}

	// HookPosConflict is invoked when a master tries to claim an entry that
	// already has a master. Item is a Conflict.
	HookPosConflict = &hooking.HookPos{Name: "Conflict"}

	// HookPosBankAssigned is invoked when a bank is created. Item is a Bank.
	HookPosBankAssigned = &hooking.HookPos{Name: "BankAssigned"}

	// HookPosUnassigned is invoked for each entry left without a bank. Item
	// is an addrspace.Entry.
	HookPosUnassigned = &hooking.HookPos{Name: "Unassigned"}
)

// PairSample is a sample together with the pair of entries it measured.
type PairSample struct {
	I, J   int
	Sample sampling.Sample
}

// A Cluster is a master and the entries it claimed, in claim order.
type Cluster struct {
	Master   int
	Siblings []int
}

// A Claim records that Master claimed Entry.
type Claim struct {
	Entry  int
	Master int
}

// A Conflict records that Master found Entry to be an outlier while Entry
// was already claimed by PriorMaster. The prior claim is kept.
type Conflict struct {
	Entry       int
	PriorMaster int
	Master      int
}

// RowSkip records that the row of a claimed entry was not classified.
type RowSkip struct {
	Index   int
	Master  int
	Samples int
}

// MasterStats summarizes the classification of one master's row.
type MasterStats struct {
	Index      int
	Candidates int
	Average    float64
	Threshold  float64

	// NearestNonOutlier is the largest timing below the threshold.
	NearestNonOutlier float64

	// Outliers counts the timings at or above the threshold, Siblings the
	// ones that were actually claimed.
	Outliers  int
	Siblings  int
	Conflicts int
}

// A Bank is a group of entries found to share a DRAM bank.
type Bank struct {
	ID       int
	Master   int
	Siblings []int
}

// Members returns the master followed by the siblings.
func (b Bank) Members() []int {
	members := make([]int, 0, len(b.Siblings)+1)
	members = append(members, b.Master)
	members = append(members, b.Siblings...)

	return members
}

// Size returns the number of entries in the bank.
func (b Bank) Size() int {
	return len(b.Siblings) + 1
}

// Result is the outcome of a run.
type Result struct {
	RunID           string
	Entries         []addrspace.Entry
	Banks           []Bank
	Conflicts       []Conflict
	Unassigned      []int
	Stats           []MasterStats
	SamplesConsumed int
}

// Complete returns true if there were no conflicts and no unassigned
// entries.
func (r *Result) Complete() bool {
	return len(r.Conflicts) == 0 && len(r.Unassigned) == 0
}

// PhysAddrs returns the physical addresses of a bank's members, master
// first.
func (r *Result) PhysAddrs(b Bank) []uint64 {
	addrs := make([]uint64, 0, b.Size())
	for _, i := range b.Members() {
		addrs = append(addrs, r.Entries[i].PhysAddr)
	}

	return addrs
}

// Partition returns, for each entry, the ID of its bank.
func (r *Result) Partition() []int {
	p := make([]int, len(r.Entries))
	for i, e := range r.Entries {
		p[i] = e.BankID
	}

	return p
}
