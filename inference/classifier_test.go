package inference

import (
	"errors"
	"io"

	"github.com/sarchlab/bankfinder/addrspace"
	"github.com/sarchlab/bankfinder/hooking"
	"github.com/sarchlab/bankfinder/sampling"
	"go.uber.org/mock/gomock"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Classifier", func() {
	var (
		mockCtrl *gomock.Controller
		table    *addrspace.Table
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	Context("with four entries", func() {
		var (
			run    *Run
			timing func(i, j int) uint64
		)

		BeforeEach(func() {
			table = newTable(4)
			run = MakeBuilder().Build(table)
			timing = matrix(map[[2]int]uint64{
				{0, 1}: 100, {0, 2}: 100, {0, 3}: 500,
				{1, 2}: 50, {1, 3}: 50,
				{2, 3}: 50,
			}, 0)
		})

		It("should claim only the outlier of the first master", func() {
			err := run.Classify(
				sampling.NewSliceStream(denseSamples(table, timing)))

			Expect(err).NotTo(HaveOccurred())
			Expect(run.Clusters()).To(Equal([]Cluster{
				{Master: 0, Siblings: []int{3}},
				{Master: 1},
				{Master: 2},
			}))
			Expect(table.Entry(3).Master).To(Equal(0))
			Expect(table.Entry(0).Associated()).To(BeFalse())
			Expect(run.Conflicts()).To(BeEmpty())
		})

		It("should compute the running average and threshold", func() {
			err := run.Classify(
				sampling.NewSliceStream(denseSamples(table, timing)))
			Expect(err).NotTo(HaveOccurred())

			stats := run.Result().Stats
			Expect(stats).To(HaveLen(3))
			Expect(stats[0].Candidates).To(Equal(3))
			Expect(stats[0].Average).To(BeNumerically("~", 233.333, 0.001))
			Expect(stats[0].Threshold).To(BeNumerically("~", 303.333, 0.001))
			Expect(stats[0].NearestNonOutlier).To(Equal(100.0))
			Expect(stats[0].Outliers).To(Equal(1))
			Expect(stats[0].Siblings).To(Equal(1))
			Expect(stats[1].Average).To(Equal(50.0))
			Expect(stats[1].Threshold).To(Equal(65.0))
		})

		It("should consume the skipped row of a claimed entry", func() {
			stream := NewMockStream(mockCtrl)
			stream.EXPECT().Next().DoAndReturn(func() (sampling.Sample, error) {
				return sampling.Sample{Cycles: 100}, nil
			}).Times(2)
			stream.EXPECT().Next().Return(sampling.Sample{Cycles: 500}, nil)
			stream.EXPECT().Next().Return(sampling.Sample{Cycles: 50}, nil).Times(3)

			err := run.Classify(stream)

			Expect(err).NotTo(HaveOccurred())
			Expect(run.SamplesConsumed()).To(Equal(6))
		})

		It("should report a conflict and keep the first claim", func() {
			timing = matrix(map[[2]int]uint64{
				{0, 1}: 100, {0, 2}: 100, {0, 3}: 500,
				{1, 2}: 100, {1, 3}: 500,
				{2, 3}: 100,
			}, 0)
			conflicts := []Conflict{}
			run.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
				if ctx.Pos == HookPosConflict {
					conflicts = append(conflicts, ctx.Item.(Conflict))
				}
			}))

			err := run.Classify(
				sampling.NewSliceStream(denseSamples(table, timing)))

			Expect(err).NotTo(HaveOccurred())
			expected := Conflict{Entry: 3, PriorMaster: 0, Master: 1}
			Expect(run.Conflicts()).To(Equal([]Conflict{expected}))
			Expect(conflicts).To(Equal([]Conflict{expected}))
			Expect(table.Entry(3).Master).To(Equal(0))
			Expect(run.Clusters()[1].Siblings).To(BeEmpty())
			Expect(run.Result().Stats[1].Outliers).To(Equal(1))
			Expect(run.Result().Stats[1].Conflicts).To(Equal(1))
		})
	})

	It("should treat a timing equal to the threshold as an outlier", func() {
		table = newTable(3)
		run := MakeBuilder().Build(table)

		err := run.Classify(sampling.NewCycleStream(70, 130, 100))

		Expect(err).NotTo(HaveOccurred())
		Expect(run.Result().Stats[0].Threshold).To(Equal(130.0))
		Expect(run.Clusters()[0].Siblings).To(Equal([]int{2}))
	})

	It("should not claim a timing just below the threshold", func() {
		table = newTable(3)
		run := MakeBuilder().Build(table)

		err := run.Classify(sampling.NewCycleStream(71, 129, 100))

		Expect(err).NotTo(HaveOccurred())
		Expect(run.Clusters()[0].Siblings).To(BeEmpty())
		Expect(run.Result().Stats[0].NearestNonOutlier).To(Equal(129.0))
	})

	It("should use the configured outlier percentage", func() {
		table = newTable(3)
		run := MakeBuilder().WithOutlierPercentage(20).Build(table)

		err := run.Classify(sampling.NewCycleStream(71, 129, 100))

		Expect(err).NotTo(HaveOccurred())
		Expect(run.Clusters()[0].Siblings).To(Equal([]int{2}))
	})

	It("should make the last entry a singleton master", func() {
		table = newTable(1)
		run := MakeBuilder().Build(table)

		err := run.Classify(sampling.NewCycleStream())

		Expect(err).NotTo(HaveOccurred())
		Expect(run.Clusters()).To(Equal([]Cluster{{Master: 0}}))
		Expect(run.Result().Stats[0].Average).To(Equal(0.0))
	})

	It("should fail when the stream ends early", func() {
		table = newTable(4)
		run := MakeBuilder().Build(table)

		err := run.Classify(sampling.NewCycleStream(100, 100, 500, 50))

		Expect(err).To(MatchError(sampling.ErrMalformedInput))
		Expect(err.Error()).To(ContainSubstring("pair (1, 3)"))
	})

	It("should pass on stream errors", func() {
		table = newTable(2)
		run := MakeBuilder().Build(table)
		failure := errors.New("disk on fire")
		stream := NewMockStream(mockCtrl)
		stream.EXPECT().Next().Return(sampling.Sample{}, failure)

		err := run.Classify(stream)

		Expect(err).To(MatchError(failure))
	})

	It("should not read past the last required sample", func() {
		table = newTable(2)
		run := MakeBuilder().Build(table)
		stream := sampling.NewCycleStream(10, 20)

		err := run.Classify(stream)

		Expect(err).NotTo(HaveOccurred())
		next, err := stream.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(next.Cycles).To(Equal(uint64(20)))
	})

	Context("when verifying addresses", func() {
		BeforeEach(func() {
			table = newTable(3)
		})

		It("should accept samples that name the expected pair", func() {
			run := MakeBuilder().WithAddressVerification().Build(table)
			samples := denseSamples(table, matrix(nil, 100))

			_, err := run.Execute(sampling.NewSliceStream(samples))

			Expect(err).NotTo(HaveOccurred())
		})

		It("should reject a sample for the wrong pair", func() {
			run := MakeBuilder().WithAddressVerification().Build(table)
			samples := denseSamples(table, matrix(nil, 100))
			samples[1], samples[2] = samples[2], samples[1]

			err := run.Classify(sampling.NewSliceStream(samples))

			Expect(err).To(MatchError(sampling.ErrMalformedInput))
		})
	})

	Context("with the masters-only layout", func() {
		It("should not read the rows of claimed entries", func() {
			table = newTable(4)
			run := MakeBuilder().
				WithLayout(sampling.LayoutMastersOnly).
				Build(table)
			timing := matrix(map[[2]int]uint64{
				{0, 1}: 500, {0, 2}: 100, {0, 3}: 100,
				{2, 3}: 100,
			}, 0)
			samples := mastersOnlySamples(table, timing,
				map[int]bool{0: true, 2: true, 3: true})
			stream := sampling.NewSliceStream(samples)

			err := run.Classify(stream)

			Expect(err).NotTo(HaveOccurred())
			Expect(run.SamplesConsumed()).To(Equal(4))
			_, err = stream.Next()
			Expect(err).To(Equal(io.EOF))
			Expect(run.Clusters()).To(Equal([]Cluster{
				{Master: 0, Siblings: []int{1}},
				{Master: 2},
				{Master: 3},
			}))
		})
	})

	It("should invoke hooks for claims, rows and samples", func() {
		table = newTable(3)
		run := MakeBuilder().Build(table)
		positions := map[string]int{}
		run.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			positions[ctx.Pos.Name]++
			Expect(ctx.Domain).To(BeIdenticalTo(run))
		}))

		err := run.Classify(sampling.NewCycleStream(500, 100, 100))

		Expect(err).NotTo(HaveOccurred())
		Expect(positions).To(Equal(map[string]int{
			"SampleRead":       3,
			"SiblingClaimed":   1,
			"MasterClassified": 2,
			"RowSkipped":       1,
		}))
	})
})
