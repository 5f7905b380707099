// Package tracing provides hooks that observe inference runs.
package tracing

import (
	"context"
	"log/slog"

	"github.com/sarchlab/bankfinder/addrspace"
	"github.com/sarchlab/bankfinder/hooking"
	"github.com/sarchlab/bankfinder/inference"
)

// A LogHook writes run events to a structured logger. Conflicts and
// unassigned entries are warnings, everything else is debug output.
type LogHook struct {
	logger *slog.Logger
}

// NewLogHook creates a LogHook.
func NewLogHook(logger *slog.Logger) *LogHook {
	return &LogHook{logger: logger}
}

// Func logs the event.
func (h *LogHook) Func(ctx hooking.HookCtx) {
	run, ok := ctx.Domain.(*inference.Run)
	if !ok {
		return
	}

	table := run.Table()

	switch ctx.Pos {
	case inference.HookPosConflict:
		c := ctx.Item.(inference.Conflict)
		h.logger.Warn("entry being mapped to multiple siblings",
			"run", run.ID(),
			"entry", hexAddr(table, c.Entry),
			"prior_master", hexAddr(table, c.PriorMaster),
			"master", hexAddr(table, c.Master))
	case inference.HookPosUnassigned:
		e := ctx.Item.(addrspace.Entry)
		h.logger.Warn("entry not assigned any bank",
			"run", run.ID(),
			"entry", e.Index,
			"phys_addr", hexValue(e.PhysAddr))
	case inference.HookPosMasterClassified:
		h.logMaster(run, ctx.Item.(inference.MasterStats))
	case inference.HookPosBankAssigned:
		b := ctx.Item.(inference.Bank)
		h.logger.Debug("bank assigned",
			"run", run.ID(),
			"bank", b.ID,
			"master", hexAddr(table, b.Master),
			"entries", b.Size())
	case inference.HookPosRowSkipped:
		s := ctx.Item.(inference.RowSkip)
		h.logger.Debug("row skipped",
			"run", run.ID(),
			"entry", s.Index,
			"master", s.Master,
			"samples", s.Samples)
	}
}

func (h *LogHook) logMaster(run *inference.Run, s inference.MasterStats) {
	if !h.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	h.logger.Debug("master classified",
		"run", run.ID(),
		"entry", s.Index,
		"phys_addr", hexAddr(run.Table(), s.Index),
		"avg", s.Average,
		"threshold", s.Threshold,
		"nearest_nonoutlier", s.NearestNonOutlier,
		"siblings", s.Siblings,
		"conflicts", s.Conflicts)
}

func hexAddr(table *addrspace.Table, i int) string {
	return hexValue(table.Entry(i).PhysAddr)
}
