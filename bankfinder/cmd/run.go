package cmd

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/sarchlab/bankfinder/addrspace"
	"github.com/sarchlab/bankfinder/config"
	"github.com/sarchlab/bankfinder/datarecording"
	"github.com/sarchlab/bankfinder/hostinfo"
	"github.com/sarchlab/bankfinder/inference"
	"github.com/sarchlab/bankfinder/monitoring"
	"github.com/sarchlab/bankfinder/plotting"
	"github.com/sarchlab/bankfinder/report"
	"github.com/sarchlab/bankfinder/sampling"
	"github.com/sarchlab/bankfinder/tracing"
	"github.com/spf13/cobra"
)

func runInference(cmd *cobra.Command, args []string) error {
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

	in, err := openInput(cmd, args[0])
	if err != nil {
		return err
	}
	defer in.Close()

	table, err := addrspace.NewTable(cfg.Layout(physBase))
	if err != nil {
		return err
	}

	run := cfg.InferenceBuilder().Build(table)
	logBanner(logger, cfg, run)

	counts := tracing.NewCountHook()
	run.AcceptHook(counts)
	run.AcceptHook(tracing.NewLogHook(logger))

	recorder, err := attachRecorder(cfg, run)
	if err != nil {
		return err
	}

	var profiles *plotting.ProfileHook
	if cfg.Plotting.Dir != "" {
		profiles = plotting.NewProfileHook(cfg.Plotting.Masters)
		run.AcceptHook(profiles)
	}

	if cfg.Monitoring.Enabled {
		err = startMonitor(cfg, run)
		if err != nil {
			return err
		}
	}

	stream := sampling.NewTextStream(bufio.NewReader(in))

	result, err := run.Execute(stream)
	if err != nil {
		return err
	}

	if _, err := stream.Next(); err == nil {
		logger.Warn("samples after the last pair ignored", "line", stream.Line())
	}

	err = writeReport(cmd, cfg, result)
	if err != nil {
		return err
	}

	if profiles != nil {
		files, err := profiles.Save(cfg.Plotting.Dir)
		if err != nil {
			return err
		}

		logger.Info("profiles plotted", "dir", cfg.Plotting.Dir, "files", len(files))
	}

	if recorder != nil {
		recorder.Flush()
		logger.Info("run recorded", "file", cfg.Recording.Path+".sqlite3")
	}

	logger.Info("inference done",
		"run", result.RunID,
		"banks", len(result.Banks),
		"samples", result.SamplesConsumed,
		"skipped_rows", counts.Count(inference.HookPosRowSkipped),
		"conflicts", counts.Count(inference.HookPosConflict),
		"unassigned", len(result.Unassigned))

	return nil
}

func openInput(cmd *cobra.Command, name string) (io.ReadCloser, error) {
	if name == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}

	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("cannot open time file: %w", err)
	}

	return f, nil
}

func logBanner(logger *slog.Logger, cfg *config.Config, run *inference.Run) {
	layout := run.Table().Layout()

	logger.Info("parameters",
		"run", run.ID(),
		"mem_size", cfg.Region.MemSize,
		"page_size", addrspace.PageSize,
		"min_bank_size", cfg.Region.MinBankSize,
		"entries", layout.Count,
		"virt_base", report.Hex(layout.VirtBase),
		"phys_base", report.Hex(layout.PhysBase),
		"outlier_percentage", run.OutlierPercentage(),
		"max_banks", run.MaxBanks(),
		"layout", run.Layout().String())

	info, err := hostinfo.Collect()
	if err != nil {
		logger.Warn("host information incomplete", "err", err)
	}

	logger.Info("host", info.Attrs()...)
}

func attachRecorder(
	cfg *config.Config,
	run *inference.Run,
) (*tracing.DBHook, error) {
	if cfg.Recording.Path == "" {
		return nil, nil
	}

	backend, err := datarecording.New(cfg.Recording.Path)
	if err != nil {
		return nil, err
	}

	hook := tracing.NewDBHook(backend, cfg.Recording.Samples)
	hook.RecordRun(run)
	run.AcceptHook(hook)

	return hook, nil
}

func startMonitor(cfg *config.Config, run *inference.Run) error {
	m := monitoring.NewMonitor().WithPortNumber(cfg.Monitoring.Port)
	m.RegisterRun(run)

	err := m.StartServer()
	if err != nil {
		return err
	}

	if cfg.Monitoring.OpenBrowser {
		err = m.OpenInBrowser()
		if err != nil {
			slog.Warn("cannot open browser", "url", m.URL(), "err", err)
		}
	}

	return nil
}

func writeReport(
	cmd *cobra.Command,
	cfg *config.Config,
	result *inference.Result,
) error {
	format, err := report.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}

	err = report.NewWriter(cmd.OutOrStdout()).
		WithFormat(format).
		WithBinary(cfg.Output.Binary).
		Write(result)
	if err != nil {
		return err
	}

	if cfg.Output.Stats {
		return report.WriteStats(cmd.ErrOrStderr(), result)
	}

	return nil
}
