package inference

import (
	"errors"
	"fmt"
	"io"

	"github.com/sarchlab/bankfinder/sampling"
)

// Classify reads the samples of s and claims siblings for every master.
func (r *Run) Classify(s sampling.Stream) error {
	n := r.table.Len()
	row := make([]float64, n)

	for i := 0; i < n; i++ {
		entry := r.table.Entry(i)

		if entry.Associated() {
			err := r.skipRow(s, i)
			if err != nil {
				return err
			}

			continue
		}

		timings := row[:n-i-1]

		err := r.readRow(s, i, timings)
		if err != nil {
			return err
		}

		r.classifyRow(i, timings)
	}

	return nil
}

func (r *Run) skipRow(s sampling.Stream, i int) error {
	skip := RowSkip{
		Index:  i,
		Master: r.table.Entry(i).Master,
	}

	if r.layout == sampling.LayoutDense {
		for j := i + 1; j < r.table.Len(); j++ {
			_, err := r.next(s, i, j)
			if err != nil {
				return err
			}

			skip.Samples++
		}
	}

	r.invoke(HookPosRowSkipped, skip, nil)

	return nil
}

func (r *Run) readRow(s sampling.Stream, i int, timings []float64) error {
	for k := range timings {
		sample, err := r.next(s, i, i+1+k)
		if err != nil {
			return err
		}

		timings[k] = float64(sample.Cycles)
	}

	return nil
}

func (r *Run) next(s sampling.Stream, i, j int) (sampling.Sample, error) {
	sample, err := s.Next()
	if errors.Is(err, io.EOF) {
		return sample, fmt.Errorf(
			"inference: stream ended at pair (%d, %d) after %d samples: %w",
			i, j, r.consumed, sampling.ErrMalformedInput)
	}

	if err != nil {
		return sample, fmt.Errorf("inference: pair (%d, %d): %w", i, j, err)
	}

	if r.verifyAddresses {
		err = r.verify(sample, i, j)
		if err != nil {
			return sample, err
		}
	}

	r.consumed++
	r.invoke(HookPosSampleRead, PairSample{I: i, J: j, Sample: sample}, nil)

	return sample, nil
}

func (r *Run) verify(sample sampling.Sample, i, j int) error {
	a := r.table.Entry(i).PhysAddr
	b := r.table.Entry(j).PhysAddr

	if sample.Addr1 != a || sample.Addr2 != b {
		return fmt.Errorf(
			"inference: sample %d measures (0x%x, 0x%x), "+
				"expected pair (%d, %d) at (0x%x, 0x%x): %w",
			r.consumed, sample.Addr1, sample.Addr2, i, j, a, b,
			sampling.ErrMalformedInput)
	}

	return nil
}

func (r *Run) classifyRow(i int, timings []float64) {
	stats := MasterStats{
		Index:      i,
		Candidates: len(timings),
	}

	sum := 0.0
	for _, t := range timings {
		sum += t
	}

	if len(timings) > 0 {
		stats.Average = sum / float64(len(timings))
	}

	stats.Threshold = stats.Average * (100 + r.outlierPercentage) / 100

	cluster := Cluster{Master: i}

	for k, t := range timings {
		if t < stats.Threshold {
			stats.NearestNonOutlier = max(stats.NearestNonOutlier, t)
			continue
		}

		stats.Outliers++
		r.claim(&cluster, &stats, i+1+k)
	}

	stats.Siblings = len(cluster.Siblings)

	r.clusterOf[i] = len(r.clusters)
	r.clusters = append(r.clusters, cluster)
	r.stats = append(r.stats, stats)

	r.invoke(HookPosMasterClassified, stats, timings)
}

func (r *Run) claim(cluster *Cluster, stats *MasterStats, j int) {
	sibling := r.table.Entry(j)

	if sibling.Associated() {
		conflict := Conflict{
			Entry:       j,
			PriorMaster: sibling.Master,
			Master:      cluster.Master,
		}

		r.conflicts = append(r.conflicts, conflict)
		stats.Conflicts++
		r.invoke(HookPosConflict, conflict, nil)

		return
	}

	sibling.Master = cluster.Master
	cluster.Siblings = append(cluster.Siblings, j)

	r.invoke(HookPosSiblingClaimed, Claim{Entry: j, Master: cluster.Master}, nil)
}
