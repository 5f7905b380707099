package tracing

import (
	"github.com/sarchlab/bankfinder/inference"
	"github.com/sarchlab/bankfinder/sampling"
	"go.uber.org/mock/gomock"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("DBHook", func() {
	var (
		mockCtrl *gomock.Controller
		backend  *MockDataRecorder
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		backend = NewMockDataRecorder(mockCtrl)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	expectTables := func(withSamples bool) {
		for _, name := range []string{
			TableRuns, TableMasters, TableConflicts, TableBanks, TableUnassigned,
		} {
			backend.EXPECT().CreateTable(name, gomock.Any())
		}

		if withSamples {
			backend.EXPECT().CreateTable(TableSamples, SampleRecord{})
		}
	}

	It("should record masters, conflicts and bank members", func() {
		expectTables(false)
		hook := NewDBHook(backend, false)

		run := inference.MakeBuilder().WithID("r1").Build(newTable(4))
		run.AcceptHook(hook)

		backend.EXPECT().InsertData(TableRuns, RunRecord{
			RunID:             "r1",
			Entries:           4,
			PhysBase:          0x1000,
			Stride:            0x800,
			OutlierPercentage: 30,
			MaxBanks:          128,
			Layout:            "dense",
		})
		backend.EXPECT().InsertData(TableMasters, gomock.Any()).Times(3)
		backend.EXPECT().InsertData(TableConflicts, ConflictRecord{
			RunID: "r1", Entry: 3, PriorMaster: 0, Master: 1,
		})
		backend.EXPECT().InsertData(TableBanks, BankMemberRecord{
			RunID: "r1", BankID: 0, Position: 0, Entry: 0, PhysAddr: 0x1000,
		})
		backend.EXPECT().InsertData(TableBanks, BankMemberRecord{
			RunID: "r1", BankID: 0, Position: 1, Entry: 3, PhysAddr: 0x2800,
		})
		backend.EXPECT().InsertData(TableBanks, gomock.Any()).Times(2)
		backend.EXPECT().Flush()

		hook.RecordRun(run)
		_, err := run.Execute(conflictingStream())
		Expect(err).NotTo(HaveOccurred())
		hook.Flush()
	})

	It("should record samples when asked to", func() {
		expectTables(true)
		hook := NewDBHook(backend, true)

		run := inference.MakeBuilder().WithID("r2").Build(newTable(2))
		run.AcceptHook(hook)

		backend.EXPECT().InsertData(TableSamples, SampleRecord{
			RunID: "r2", I: 0, J: 1, Cycles: 42,
		})
		backend.EXPECT().InsertData(TableMasters, gomock.Any()).Times(2)
		backend.EXPECT().InsertData(TableBanks, gomock.Any()).Times(2)

		_, err := run.Execute(sampling.NewCycleStream(42))
		Expect(err).NotTo(HaveOccurred())
	})
})
