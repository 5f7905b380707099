package synth

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"

	"github.com/sarchlab/bankfinder/addrspace"
	"github.com/sarchlab/bankfinder/sampling"
)

// Latency describes the access times the generator produces. Conflict is
// used for same-bank different-row pairs and Hit for every other pair. Each
// sample is perturbed by a uniform offset in [-Jitter, Jitter].
type Latency struct {
	Hit      uint64
	Conflict uint64
	Jitter   uint64
}

// DefaultLatency returns latencies close to what a desktop DDR4 system
// shows with rdtscp timing.
func DefaultLatency() Latency {
	return Latency{Hit: 220, Conflict: 380, Jitter: 20}
}

// A Generator produces dense sample streams for a table.
type Generator struct {
	mapping Mapping
	latency Latency
	seed    int64
}

// Builder can build generators.
type Builder struct {
	mapping Mapping
	latency Latency
	seed    int64
}

// MakeBuilder returns a builder with the default mapping and latency.
func MakeBuilder() Builder {
	return Builder{
		mapping: DefaultMapping(),
		latency: DefaultLatency(),
		seed:    1,
	}
}

// WithMapping sets the bank mapping.
func (b Builder) WithMapping(m Mapping) Builder {
	b.mapping = m
	return b
}

// WithLatency sets the latencies.
func (b Builder) WithLatency(l Latency) Builder {
	b.latency = l
	return b
}

// WithSeed sets the seed of the jitter.
func (b Builder) WithSeed(seed int64) Builder {
	b.seed = seed
	return b
}

// Build creates a generator.
func (b Builder) Build() *Generator {
	if len(b.mapping.BankMasks) == 0 {
		panic("synth: mapping has no bank masks")
	}

	if b.latency.Jitter > b.latency.Hit {
		panic("synth: jitter larger than hit latency")
	}

	return &Generator{
		mapping: b.mapping,
		latency: b.latency,
		seed:    b.seed,
	}
}

// Mapping returns the mapping of the generator.
func (g *Generator) Mapping() Mapping {
	return g.mapping
}

// Samples returns the dense samples of the table. The same generator
// always returns the same samples for the same table.
func (g *Generator) Samples(table *addrspace.Table) []sampling.Sample {
	n := table.Len()
	rng := rand.New(rand.NewSource(g.seed))
	samples := make([]sampling.Sample, 0, table.NumPairs())

	for i := 0; i < n; i++ {
		a := table.Entry(i).PhysAddr

		for j := i + 1; j < n; j++ {
			b := table.Entry(j).PhysAddr

			samples = append(samples, sampling.Sample{
				Addr1:  a,
				Addr2:  b,
				Cycles: g.cycles(rng, a, b),
			})
		}
	}

	return samples
}

func (g *Generator) cycles(rng *rand.Rand, a, b uint64) uint64 {
	c := g.latency.Hit
	if g.mapping.Conflicts(a, b) {
		c = g.latency.Conflict
	}

	if g.latency.Jitter == 0 {
		return c
	}

	offset := rng.Int63n(int64(2*g.latency.Jitter + 1))

	return c - g.latency.Jitter + uint64(offset)
}

// Stream returns the dense samples of the table as a stream.
func (g *Generator) Stream(table *addrspace.Table) *sampling.SliceStream {
	return sampling.NewSliceStream(g.Samples(table))
}

// WriteText writes the dense samples of the table in the text format.
func (g *Generator) WriteText(w io.Writer, table *addrspace.Table) error {
	bw := bufio.NewWriter(w)

	for _, s := range g.Samples(table) {
		_, err := fmt.Fprintln(bw, sampling.FormatRecord(s))
		if err != nil {
			return fmt.Errorf("synth: %w", err)
		}
	}

	return bw.Flush()
}
