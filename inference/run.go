// Package inference groups addresses into DRAM banks from pairwise access
// timings.
//
// A Run walks the entries in index order. Every entry that has not been
// claimed yet becomes a master: its timings to all later entries are averaged
// and the ones at least OutlierPercentage above the average are claimed as
// siblings. Masters then receive sequential bank IDs that their siblings
// inherit.
package inference

import (
	"github.com/sarchlab/bankfinder/addrspace"
	"github.com/sarchlab/bankfinder/hooking"
	"github.com/sarchlab/bankfinder/sampling"
)

// A Run owns all the state of one inference over one table.
type Run struct {
	hooking.HookableBase

	id    string
	table *addrspace.Table

	outlierPercentage float64
	maxBanks          int
	layout            sampling.Layout
	verifyAddresses   bool

	clusters   []Cluster
	clusterOf  []int
	banks      []Bank
	conflicts  []Conflict
	unassigned []int
	stats      []MasterStats
	consumed   int
}

// ID returns the ID of the run.
func (r *Run) ID() string {
	return r.id
}

// Table returns the table the run classifies.
func (r *Run) Table() *addrspace.Table {
	return r.table
}

// OutlierPercentage returns the outlier percentage of the run.
func (r *Run) OutlierPercentage() float64 {
	return r.outlierPercentage
}

// MaxBanks returns the maximum number of banks the run accepts.
func (r *Run) MaxBanks() int {
	return r.maxBanks
}

// Layout returns the sample layout the run expects.
func (r *Run) Layout() sampling.Layout {
	return r.layout
}

// SamplesConsumed returns the number of samples read so far.
func (r *Run) SamplesConsumed() int {
	return r.consumed
}

// Clusters returns the clusters found by classification, in master order.
func (r *Run) Clusters() []Cluster {
	return r.clusters
}

// Banks returns the banks created by assignment, in ID order.
func (r *Run) Banks() []Bank {
	return r.banks
}

// Conflicts returns the conflicts seen during classification.
func (r *Run) Conflicts() []Conflict {
	return r.conflicts
}

// Execute classifies the samples of s, assigns banks and validates the
// result.
func (r *Run) Execute(s sampling.Stream) (*Result, error) {
	err := r.Classify(s)
	if err != nil {
		return nil, err
	}

	err = r.Assign()
	if err != nil {
		return nil, err
	}

	r.Validate()

	return r.Result(), nil
}

// Result returns a snapshot of the run's outcome.
func (r *Run) Result() *Result {
	return &Result{
		RunID:           r.id,
		Entries:         r.table.Entries(),
		Banks:           r.banks,
		Conflicts:       r.conflicts,
		Unassigned:      r.unassigned,
		Stats:           r.stats,
		SamplesConsumed: r.consumed,
	}
}

func (r *Run) invoke(pos *hooking.HookPos, item, detail any) {
	if r.NumHooks() == 0 {
		return
	}

	r.InvokeHook(hooking.HookCtx{
		Domain: r,
		Pos:    pos,
		Item:   item,
		Detail: detail,
	})
}
