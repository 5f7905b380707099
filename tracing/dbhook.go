package tracing

import (
	"fmt"

	"github.com/sarchlab/bankfinder/addrspace"
	"github.com/sarchlab/bankfinder/datarecording"
	"github.com/sarchlab/bankfinder/hooking"
	"github.com/sarchlab/bankfinder/inference"
)

// Names of the tables a DBHook writes.
const (
	TableRuns       = "runs"
	TableMasters    = "masters"
	TableConflicts  = "conflicts"
	TableBanks      = "bank_members"
	TableUnassigned = "unassigned"
	TableSamples    = "samples"
)

// RunRecord describes a run.
type RunRecord struct {
	RunID             string
	Entries           int
	PhysBase          uint64
	Stride            uint64
	OutlierPercentage float64
	MaxBanks          int
	Layout            string
}

// MasterRecord is one row of the masters table.
type MasterRecord struct {
	RunID             string
	Entry             int
	PhysAddr          uint64
	Candidates        int
	Average           float64
	Threshold         float64
	NearestNonOutlier float64
	Outliers          int
	Siblings          int
	Conflicts         int
}

// ConflictRecord is one row of the conflicts table.
type ConflictRecord struct {
	RunID       string
	Entry       int
	PriorMaster int
	Master      int
}

// BankMemberRecord places one entry in a bank. Position 0 is the master.
type BankMemberRecord struct {
	RunID    string
	BankID   int
	Position int
	Entry    int
	PhysAddr uint64
}

// UnassignedRecord is an entry that did not get a bank.
type UnassignedRecord struct {
	RunID    string
	Entry    int
	PhysAddr uint64
}

// SampleRecord is one timing sample.
type SampleRecord struct {
	RunID  string
	I      int
	J      int
	Addr1  uint64
	Addr2  uint64
	Cycles uint64
}

// A DBHook records run events with a DataRecorder.
type DBHook struct {
	backend       datarecording.DataRecorder
	recordSamples bool
}

// NewDBHook creates the tables and returns a hook that fills them.
func NewDBHook(
	backend datarecording.DataRecorder,
	recordSamples bool,
) *DBHook {
	backend.CreateTable(TableRuns, RunRecord{})
	backend.CreateTable(TableMasters, MasterRecord{})
	backend.CreateTable(TableConflicts, ConflictRecord{})
	backend.CreateTable(TableBanks, BankMemberRecord{})
	backend.CreateTable(TableUnassigned, UnassignedRecord{})

	if recordSamples {
		backend.CreateTable(TableSamples, SampleRecord{})
	}

	return &DBHook{
		backend:       backend,
		recordSamples: recordSamples,
	}
}

// RecordRun writes the parameters of a run.
func (h *DBHook) RecordRun(run *inference.Run) {
	layout := run.Table().Layout()

	h.backend.InsertData(TableRuns, RunRecord{
		RunID:             run.ID(),
		Entries:           run.Table().Len(),
		PhysBase:          layout.PhysBase,
		Stride:            layout.Stride,
		OutlierPercentage: run.OutlierPercentage(),
		MaxBanks:          run.MaxBanks(),
		Layout:            run.Layout().String(),
	})
}

// Func records the event.
func (h *DBHook) Func(ctx hooking.HookCtx) {
	run, ok := ctx.Domain.(*inference.Run)
	if !ok {
		return
	}

	switch ctx.Pos {
	case inference.HookPosSampleRead:
		if h.recordSamples {
			h.recordSample(run, ctx.Item.(inference.PairSample))
		}
	case inference.HookPosMasterClassified:
		h.recordMaster(run, ctx.Item.(inference.MasterStats))
	case inference.HookPosConflict:
		c := ctx.Item.(inference.Conflict)
		h.backend.InsertData(TableConflicts, ConflictRecord{
			RunID:       run.ID(),
			Entry:       c.Entry,
			PriorMaster: c.PriorMaster,
			Master:      c.Master,
		})
	case inference.HookPosBankAssigned:
		h.recordBank(run, ctx.Item.(inference.Bank))
	case inference.HookPosUnassigned:
		e := ctx.Item.(addrspace.Entry)
		h.backend.InsertData(TableUnassigned, UnassignedRecord{
			RunID:    run.ID(),
			Entry:    e.Index,
			PhysAddr: e.PhysAddr,
		})
	}
}

func (h *DBHook) recordSample(run *inference.Run, s inference.PairSample) {
	h.backend.InsertData(TableSamples, SampleRecord{
		RunID:  run.ID(),
		I:      s.I,
		J:      s.J,
		Addr1:  s.Sample.Addr1,
		Addr2:  s.Sample.Addr2,
		Cycles: s.Sample.Cycles,
	})
}

func (h *DBHook) recordMaster(run *inference.Run, s inference.MasterStats) {
	h.backend.InsertData(TableMasters, MasterRecord{
		RunID:             run.ID(),
		Entry:             s.Index,
		PhysAddr:          run.Table().Entry(s.Index).PhysAddr,
		Candidates:        s.Candidates,
		Average:           s.Average,
		Threshold:         s.Threshold,
		NearestNonOutlier: s.NearestNonOutlier,
		Outliers:          s.Outliers,
		Siblings:          s.Siblings,
		Conflicts:         s.Conflicts,
	})
}

func (h *DBHook) recordBank(run *inference.Run, b inference.Bank) {
	for pos, i := range b.Members() {
		h.backend.InsertData(TableBanks, BankMemberRecord{
			RunID:    run.ID(),
			BankID:   b.ID,
			Position: pos,
			Entry:    i,
			PhysAddr: run.Table().Entry(i).PhysAddr,
		})
	}
}

// Flush writes everything buffered so far.
func (h *DBHook) Flush() {
	h.backend.Flush()
}

func hexValue(v uint64) string {
	return fmt.Sprintf("0x%x", v)
}
