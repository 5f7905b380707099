// Package cmd provides the command-line interface of bankfinder.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/sarchlab/bankfinder/config"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// newRootCmd creates the bankfinder command with all its subcommands.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bankfinder [flags] <time file> <phyaddr>",
		Short: "Group the addresses of a memory region into DRAM banks.",
		Long: `bankfinder reads pairwise access timings of the addresses in a ` +
			`physically contiguous region and groups the addresses that share ` +
			`a DRAM bank. <time file> holds one "<paddr1> <paddr2> <cycles>" ` +
			`record per pair ("-" reads standard input). <phyaddr> is the ` +
			`physical base address of the region.`,
		Args:          cobra.ExactArgs(2),
		SilenceErrors: true,
		RunE:          runInference,
	}

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "YAML configuration file")
	pf.String("env-file", "", "file with BANKFINDER_* variables to load")
	pf.String("log-level", config.DefaultLogLevel,
		"log level: debug, info, warn or error")

	f := rootCmd.Flags()
	f.Uint64("mem-size", 0, "size of the region in bytes")
	f.Uint64("min-bank-size", 0, "distance between candidate addresses")
	f.Uint64("virt-base", 0, "virtual address the region is mapped at")
	f.Float64("outlier-percentage", 0,
		"how far above the row average a conflict timing must be")
	f.Int("max-banks", 0, "maximum number of banks")
	f.String("layout", "", "sample layout: dense or masters-only")
	f.Bool("verify-addresses", false,
		"check that every sample measures the expected pair")
	f.String("format", "", "report format: text, json or yaml")
	f.Bool("binary", false, "print addresses in binary as well")
	f.Bool("stats", false, "print the number of entries of every bank")
	f.String("record", "", "record the run into <record>.sqlite3")
	f.Bool("record-samples", false, "also record every timing sample")
	f.String("plot-dir", "", "write timing profile plots into this directory")
	f.Int("plot-masters", 0, "number of masters to plot")
	f.Bool("monitor", false, "serve a monitoring page during the run")
	f.Int("monitor-port", 0, "port of the monitoring page")
	f.Bool("open-browser", false, "open the monitoring page in a browser")

	rootCmd.AddCommand(newSynthCmd(), newShowCmd())

	return rootCmd
}

// Execute runs the command line and exits the process. Registered exit
// handlers, such as the flush of a recording, run before the exit.
func Execute() {
	rootCmd := newRootCmd()

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

// loadConfig resolves the settings of a command from the defaults, the
// configuration file, the environment and the flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()

	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		var err error

		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	}

	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile != "" {
		err := config.LoadEnv(envFile)
		if err != nil {
			return nil, err
		}
	}

	err := cfg.ApplyEnv()
	if err != nil {
		return nil, err
	}

	applyFlags(cmd, cfg)

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()

	if f.Changed("log-level") {
		cfg.LogLevel, _ = f.GetString("log-level")
	}

	uints := map[string]*uint64{
		"mem-size":      &cfg.Region.MemSize,
		"min-bank-size": &cfg.Region.MinBankSize,
		"virt-base":     &cfg.Region.VirtBase,
	}
	for name, dst := range uints {
		if f.Changed(name) {
			*dst, _ = f.GetUint64(name)
		}
	}

	ints := map[string]*int{
		"max-banks":    &cfg.Inference.MaxBanks,
		"plot-masters": &cfg.Plotting.Masters,
		"monitor-port": &cfg.Monitoring.Port,
	}
	for name, dst := range ints {
		if f.Changed(name) {
			*dst, _ = f.GetInt(name)
		}
	}

	strs := map[string]*string{
		"layout":   &cfg.Inference.Layout,
		"format":   &cfg.Output.Format,
		"record":   &cfg.Recording.Path,
		"plot-dir": &cfg.Plotting.Dir,
	}
	for name, dst := range strs {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}

	bools := map[string]*bool{
		"verify-addresses": &cfg.Inference.VerifyAddresses,
		"binary":           &cfg.Output.Binary,
		"stats":            &cfg.Output.Stats,
		"record-samples":   &cfg.Recording.Samples,
		"monitor":          &cfg.Monitoring.Enabled,
		"open-browser":     &cfg.Monitoring.OpenBrowser,
	}
	for name, dst := range bools {
		if f.Changed(name) {
			*dst, _ = f.GetBool(name)
		}
	}

	if f.Changed("outlier-percentage") {
		cfg.Inference.OutlierPercentage, _ = f.GetFloat64("outlier-percentage")
	}
}

func setupLogger(w io.Writer, level string) *slog.Logger {
	var l slog.Level

	err := l.UnmarshalText([]byte(level))
	if err != nil {
		l = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
	slog.SetDefault(logger)

	return logger
}

func parseAddr(s string) (uint64, error) {
	addr, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid physical address %q: %w", s, err)
	}

	return addr, nil
}
