package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// EnvPrefix starts the name of every environment variable read by ApplyEnv.
const EnvPrefix = "BANKFINDER_"

// LoadEnv loads a .env file into the process environment. Variables that
// are already set are not overridden.
func LoadEnv(file string) error {
	err := godotenv.Load(file)
	if err != nil {
		return fmt.Errorf("config: load env file %q: %w", file, err)
	}

	return nil
}

// ApplyEnv overrides the configuration with BANKFINDER_* variables and
// validates the result.
func (c *Config) ApplyEnv() error {
	setters := []struct {
		name string
		set  func(v string) error
	}{
		{"MEM_SIZE", uintSetter(&c.Region.MemSize)},
		{"MIN_BANK_SIZE", uintSetter(&c.Region.MinBankSize)},
		{"VIRT_BASE", uintSetter(&c.Region.VirtBase)},
		{"OUTLIER_PERCENTAGE", floatSetter(&c.Inference.OutlierPercentage)},
		{"MAX_BANKS", intSetter(&c.Inference.MaxBanks)},
		{"LAYOUT", stringSetter(&c.Inference.Layout)},
		{"VERIFY_ADDRESSES", boolSetter(&c.Inference.VerifyAddresses)},
		{"FORMAT", stringSetter(&c.Output.Format)},
		{"RECORD", stringSetter(&c.Recording.Path)},
		{"PLOT_DIR", stringSetter(&c.Plotting.Dir)},
		{"MONITOR_PORT", intSetter(&c.Monitoring.Port)},
		{"LOG_LEVEL", stringSetter(&c.LogLevel)},
	}

	for _, s := range setters {
		v, ok := os.LookupEnv(EnvPrefix + s.name)
		if !ok {
			continue
		}

		err := s.set(v)
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", EnvPrefix, s.name, err)
		}
	}

	return c.Validate()
}

func uintSetter(dst *uint64) func(string) error {
	return func(v string) error {
		n, err := strconv.ParseUint(v, 0, 64)
		if err != nil {
			return err
		}

		*dst = n

		return nil
	}
}

func intSetter(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}

		*dst = n

		return nil
	}
}

func floatSetter(dst *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}

		*dst = f

		return nil
	}
}

func boolSetter(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}

		*dst = b

		return nil
	}
}

func stringSetter(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}
