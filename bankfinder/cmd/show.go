package cmd

import (
	"context"
	"fmt"

	"github.com/sarchlab/bankfinder/datarecording"
	"github.com/sarchlab/bankfinder/report"
	"github.com/sarchlab/bankfinder/tracing"
	"github.com/spf13/cobra"
)

func newShowCmd() *cobra.Command {
	showCmd := &cobra.Command{
		Use:   "show [flags] <db file>",
		Short: "Print the banks recorded in a database.",
		Long: "`show <db file>` prints the banks of every run recorded with " +
			"--record, in the text report format.",
		Args: cobra.ExactArgs(1),
		RunE: runShow,
	}

	showCmd.Flags().String("run", "", "only show the run with this ID")

	return showCmd
}

func runShow(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	reader, err := datarecording.NewReader(args[0])
	if err != nil {
		return err
	}
	defer reader.Close()

	reader.MapTable(tracing.TableRuns, tracing.RunRecord{})
	reader.MapTable(tracing.TableBanks, tracing.BankMemberRecord{})
	reader.MapTable(tracing.TableConflicts, tracing.ConflictRecord{})

	runID, _ := cmd.Flags().GetString("run")
	params := datarecording.QueryParams{}
	if runID != "" {
		params.Where = "RunID = ?"
		params.Args = []any{runID}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	runs, _, err := reader.Query(ctx, tracing.TableRuns, params)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		return fmt.Errorf("no run found in %s", args[0])
	}

	for _, r := range runs {
		err = showRun(cmd, reader, r.(*tracing.RunRecord))
		if err != nil {
			return err
		}
	}

	return nil
}

func showRun(
	cmd *cobra.Command,
	reader datarecording.DataReader,
	run *tracing.RunRecord,
) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	fmt.Fprintf(out, "Run %s (%d entries from %s, outlier percentage %g)\n",
		run.RunID, run.Entries, report.Hex(run.PhysBase), run.OutlierPercentage)

	members, _, err := reader.Query(ctx, tracing.TableBanks,
		datarecording.QueryParams{
			Where:   "RunID = ?",
			Args:    []any{run.RunID},
			OrderBy: "BankID, Position",
		})
	if err != nil {
		return err
	}

	bank := -1
	for _, m := range members {
		member := m.(*tracing.BankMemberRecord)
		if member.BankID != bank {
			bank = member.BankID
			fmt.Fprintf(out, "Bank %d\n", bank)
		}

		fmt.Fprintln(out, report.Hex(member.PhysAddr))
	}

	_, conflicts, err := reader.Query(ctx, tracing.TableConflicts,
		datarecording.QueryParams{
			Where: "RunID = ?",
			Args:  []any{run.RunID},
		})
	if err != nil {
		return err
	}

	if conflicts > 0 {
		fmt.Fprintf(out, "%d conflicts\n", conflicts)
	}

	return nil
}
