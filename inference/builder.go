package inference

import (
	"github.com/rs/xid"
	"github.com/sarchlab/bankfinder/addrspace"
	"github.com/sarchlab/bankfinder/sampling"
)

// Default parameters of a run.
const (
	// DefaultOutlierPercentage is how far above the running average a timing
	// has to be to count as a row-buffer conflict.
	DefaultOutlierPercentage = 30

	// DefaultMaxBanks bounds the number of banks a run may discover.
	DefaultMaxBanks = 128

	// MinBanks is the smallest bank count expected on real hardware.
	MinBanks = 8
)

// Builder can build inference runs.
type Builder struct {
	outlierPercentage float64
	maxBanks          int
	layout            sampling.Layout
	verifyAddresses   bool
	id                string
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		outlierPercentage: DefaultOutlierPercentage,
		maxBanks:          DefaultMaxBanks,
		layout:            sampling.LayoutDense,
	}
}

// WithOutlierPercentage sets the percentage above the running average at
// which a timing is treated as a conflict.
func (b Builder) WithOutlierPercentage(p float64) Builder {
	b.outlierPercentage = p
	return b
}

// WithMaxBanks sets the maximum number of banks.
func (b Builder) WithMaxBanks(n int) Builder {
	b.maxBanks = n
	return b
}

// WithLayout sets which rows of the pair matrix the stream carries.
func (b Builder) WithLayout(l sampling.Layout) Builder {
	b.layout = l
	return b
}

// WithAddressVerification makes the run check that every sample names the
// pair of addresses it is expected to measure.
func (b Builder) WithAddressVerification() Builder {
	b.verifyAddresses = true
	return b
}

// WithID sets the run ID. A random ID is used if not set.
func (b Builder) WithID(id string) Builder {
	b.id = id
	return b
}

// Build creates a run over the given table. The table is reset.
func (b Builder) Build(table *addrspace.Table) *Run {
	if table == nil {
		panic("inference: table is nil")
	}

	if b.maxBanks <= 0 {
		panic("inference: max banks must be positive")
	}

	if b.outlierPercentage < 0 {
		panic("inference: outlier percentage must not be negative")
	}

	id := b.id
	if id == "" {
		id = xid.New().String()
	}

	table.Reset()

	r := &Run{
		id:                id,
		table:             table,
		outlierPercentage: b.outlierPercentage,
		maxBanks:          b.maxBanks,
		layout:            b.layout,
		verifyAddresses:   b.verifyAddresses,
		clusterOf:         make([]int, table.Len()),
	}

	for i := range r.clusterOf {
		r.clusterOf[i] = -1
	}

	return r
}
