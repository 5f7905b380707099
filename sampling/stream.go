// Package sampling defines the stream of pairwise access timings that the
// measurement harness produces.
package sampling

import (
	"errors"
	"io"
)

// ErrMalformedInput is returned when a stream record is missing or cannot be
// understood.
var ErrMalformedInput = errors.New("malformed input")

// A Sample is the time it took to access two addresses back to back.
type Sample struct {
	Addr1  uint64
	Addr2  uint64
	Cycles uint64
}

// A Stream hands out samples one at a time. Next returns io.EOF after the last
// sample.
type Stream interface {
	Next() (Sample, error)
}

// Layout tells which rows of the pair matrix are present in a stream.
type Layout int

const (
	// LayoutDense streams every pair (i, j) with i < j.
	LayoutDense Layout = iota

	// LayoutMastersOnly omits the rows of entries that were claimed before
	// their turn, as an online harness running the same classification does.
	LayoutMastersOnly
)

func (l Layout) String() string {
	switch l {
	case LayoutDense:
		return "dense"
	case LayoutMastersOnly:
		return "masters-only"
	default:
		return "unknown"
	}
}

// ParseLayout converts a layout name to a Layout.
func ParseLayout(name string) (Layout, bool) {
	switch name {
	case "", "dense":
		return LayoutDense, true
	case "masters-only":
		return LayoutMastersOnly, true
	default:
		return LayoutDense, false
	}
}

// SliceStream streams samples held in memory.
type SliceStream struct {
	samples []Sample
	next    int
}

// NewSliceStream creates a stream over samples.
func NewSliceStream(samples []Sample) *SliceStream {
	return &SliceStream{samples: samples}
}

// NewCycleStream creates a stream of samples that only carry cycle counts.
func NewCycleStream(cycles ...uint64) *SliceStream {
	samples := make([]Sample, len(cycles))
	for i, c := range cycles {
		samples[i].Cycles = c
	}

	return NewSliceStream(samples)
}

// Next returns the next sample.
func (s *SliceStream) Next() (Sample, error) {
	if s.next >= len(s.samples) {
		return Sample{}, io.EOF
	}

	sample := s.samples[s.next]
	s.next++

	return sample, nil
}

// Consumed returns the number of samples handed out so far.
func (s *SliceStream) Consumed() int {
	return s.next
}
