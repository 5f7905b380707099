package config

import (
	"fmt"
	"os"

	"github.com/sarchlab/bankfinder/addrspace"
	"github.com/sarchlab/bankfinder/inference"
	"github.com/sarchlab/bankfinder/report"
	"github.com/sarchlab/bankfinder/sampling"
	"gopkg.in/yaml.v3"
)

// Default values that are not owned by another package.
const (
	DefaultPlotMasters = 8
	DefaultLogLevel    = "info"
)

// Config holds every setting of a run.
type Config struct {
	Region     RegionConfig     `yaml:"region"`
	Inference  InferenceConfig  `yaml:"inference"`
	Output     OutputConfig     `yaml:"output"`
	Recording  RecordingConfig  `yaml:"recording"`
	Plotting   PlottingConfig   `yaml:"plotting"`
	Monitoring MonitoringConfig `yaml:"monitoring"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`
}

// RegionConfig describes the memory region under test.
type RegionConfig struct {
	// MemSize is the size of the region in bytes (default 8 MiB).
	MemSize uint64 `yaml:"mem_size"`

	// MinBankSize is the distance between two candidate addresses
	// (default 2 KiB).
	MinBankSize uint64 `yaml:"min_bank_size"`

	// VirtBase is the virtual address the region is mapped at. It is only
	// reported, never dereferenced.
	VirtBase uint64 `yaml:"virt_base"`
}

// InferenceConfig tunes the classifier and the assigner.
type InferenceConfig struct {
	OutlierPercentage float64 `yaml:"outlier_percentage"`
	MaxBanks          int     `yaml:"max_banks"`

	// Layout is one of: dense | masters-only.
	Layout string `yaml:"layout"`

	VerifyAddresses bool `yaml:"verify_addresses"`
}

// OutputConfig controls the report.
type OutputConfig struct {
	// Format is one of: text | json | yaml.
	Format string `yaml:"format"`
	Binary bool   `yaml:"binary"`
	Stats  bool   `yaml:"stats"`
}

// RecordingConfig controls the SQLite recording of a run.
type RecordingConfig struct {
	// Path of the database without the .sqlite3 suffix. Recording is off
	// when empty.
	Path    string `yaml:"path"`
	Samples bool   `yaml:"samples"`
}

// PlottingConfig controls the master profile plots.
type PlottingConfig struct {
	// Dir receives the plots. Plotting is off when empty.
	Dir     string `yaml:"dir"`
	Masters int    `yaml:"masters"`
}

// MonitoringConfig controls the HTTP monitor.
type MonitoringConfig struct {
	Enabled     bool `yaml:"enabled"`
	Port        int  `yaml:"port"`
	OpenBrowser bool `yaml:"open_browser"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Region: RegionConfig{
			MemSize:     addrspace.DefaultMemSize,
			MinBankSize: addrspace.DefaultMinBankSize,
		},
		Inference: InferenceConfig{
			OutlierPercentage: inference.DefaultOutlierPercentage,
			MaxBanks:          inference.DefaultMaxBanks,
			Layout:            sampling.LayoutDense.String(),
		},
		Output: OutputConfig{
			Format: report.FormatText.String(),
		},
		Plotting: PlottingConfig{
			Masters: DefaultPlotMasters,
		},
		LogLevel: DefaultLogLevel,
	}
}

// Load reads and parses the config file at path. Missing fields keep their
// default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the structural constraints of the configuration.
func (c *Config) Validate() error {
	err := c.validate()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	return nil
}

func (c *Config) validate() error {
	r := c.Region
	if r.MinBankSize == 0 {
		return fmt.Errorf("region.min_bank_size must be positive")
	}

	if r.MemSize < r.MinBankSize {
		return fmt.Errorf("region.mem_size %d is smaller than min_bank_size %d",
			r.MemSize, r.MinBankSize)
	}

	if r.MemSize/r.MinBankSize > addrspace.MaxEntries {
		return fmt.Errorf("region has %d entries, at most %d allowed",
			r.MemSize/r.MinBankSize, addrspace.MaxEntries)
	}

	i := c.Inference
	if i.OutlierPercentage < 0 {
		return fmt.Errorf("inference.outlier_percentage must not be negative")
	}

	if i.MaxBanks <= 0 {
		return fmt.Errorf("inference.max_banks must be positive")
	}

	if _, ok := sampling.ParseLayout(i.Layout); !ok {
		return fmt.Errorf("inference.layout %q unknown: want dense|masters-only",
			i.Layout)
	}

	if _, err := report.ParseFormat(c.Output.Format); err != nil {
		return fmt.Errorf("output.format %q unknown: want text|json|yaml",
			c.Output.Format)
	}

	if c.Plotting.Masters < 0 {
		return fmt.Errorf("plotting.masters must not be negative")
	}

	if c.Monitoring.Port < 0 || c.Monitoring.Port > 65535 {
		return fmt.Errorf("monitoring.port %d is out of range [0, 65535]",
			c.Monitoring.Port)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q unknown: want debug|info|warn|error",
			c.LogLevel)
	}

	return nil
}

// Layout returns the table layout of the region starting at physBase.
func (c *Config) Layout(physBase uint64) addrspace.Layout {
	return addrspace.LayoutForRegion(
		c.Region.VirtBase, physBase, c.Region.MemSize, c.Region.MinBankSize)
}

// InferenceBuilder returns an inference builder with the configured
// parameters.
func (c *Config) InferenceBuilder() inference.Builder {
	layout, _ := sampling.ParseLayout(c.Inference.Layout)

	b := inference.MakeBuilder().
		WithOutlierPercentage(c.Inference.OutlierPercentage).
		WithMaxBanks(c.Inference.MaxBanks).
		WithLayout(layout)

	if c.Inference.VerifyAddresses {
		b = b.WithAddressVerification()
	}

	return b
}
