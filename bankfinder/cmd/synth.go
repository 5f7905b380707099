package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/bankfinder/addrspace"
	"github.com/sarchlab/bankfinder/synth"
	"github.com/spf13/cobra"
)

func newSynthCmd() *cobra.Command {
	synthCmd := &cobra.Command{
		Use:   "synth [flags] <out file> <phyaddr>",
		Short: "Write synthetic timings for a known XOR bank mapping.",
		Long: "`synth <out file> <phyaddr>` writes one timing record for every " +
			"pair of the region, as a measurement harness would, using a " +
			"16-bank XOR mapping. \"-\" writes to standard output.",
		Args: cobra.ExactArgs(2),
		RunE: runSynth,
	}

	f := synthCmd.Flags()
	f.Uint64("mem-size", 0, "size of the region in bytes")
	f.Uint64("min-bank-size", 0, "distance between candidate addresses")
	f.Int64("seed", 1, "seed of the timing jitter")
	f.Uint64("hit", synth.DefaultLatency().Hit, "cycles of a row hit")
	f.Uint64("conflict", synth.DefaultLatency().Conflict,
		"cycles of a row conflict")
	f.Uint64("jitter", synth.DefaultLatency().Jitter,
		"maximum deviation of a timing")

	return synthCmd
}

func runSynth(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg.LogLevel)

	physBase, err := parseAddr(args[1])
	if err != nil {
		return err
	}

	table, err := addrspace.NewTable(cfg.Layout(physBase))
	if err != nil {
		return err
	}

	f := cmd.Flags()
	seed, _ := f.GetInt64("seed")
	latency := synth.Latency{}
	latency.Hit, _ = f.GetUint64("hit")
	latency.Conflict, _ = f.GetUint64("conflict")
	latency.Jitter, _ = f.GetUint64("jitter")

	if latency.Jitter > latency.Hit {
		return fmt.Errorf("jitter %d larger than hit latency %d",
			latency.Jitter, latency.Hit)
	}

	g := synth.MakeBuilder().WithLatency(latency).WithSeed(seed).Build()

	out, err := openOutput(cmd, args[0])
	if err != nil {
		return err
	}

	err = g.WriteText(out, table)
	if err != nil {
		out.Close()
		return err
	}

	err = out.Close()
	if err != nil {
		return err
	}

	logger.Info("synthetic timings written",
		"file", args[0],
		"entries", table.Len(),
		"samples", table.NumPairs(),
		"banks", g.Mapping().NumBanks())

	return nil
}

type nopWriteCloser struct {
	*bufio.Writer
}

func (w nopWriteCloser) Close() error {
	return w.Flush()
}

func openOutput(cmd *cobra.Command, name string) (io.WriteCloser, error) {
	if name == "-" {
		return nopWriteCloser{bufio.NewWriter(cmd.OutOrStdout())}, nil
	}

	f, err := os.Create(name)
	if err != nil {
		return nil, fmt.Errorf("cannot create output file: %w", err)
	}

	return f, nil
}
