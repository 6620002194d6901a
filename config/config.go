// Package config loads the optional corejit.toml run configuration.
package config

import (
	"os"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// FileName is the configuration file looked up in the working directory.
const FileName = "corejit.toml"

// Config holds the settings of one run.
type Config struct {
	OutputDir string   `toml:"output-dir"`
	Emit      []string `toml:"emit"`
	LogLevel  string   `toml:"log-level"`
	FiboInput uint32   `toml:"fibo-input"`
	CPU       string   `toml:"cpu"`
	SelfTest  bool     `toml:"self-test"`
}

// tomlConfig mirrors the file; pointers tell absent keys from zero values
type tomlConfig struct {
	OutputDir *string   `toml:"output-dir"`
	Emit      *[]string `toml:"emit"`
	LogLevel  *string   `toml:"log-level"`
	FiboInput *int64    `toml:"fibo-input"`
	CPU       *string   `toml:"cpu"`
	SelfTest  *bool     `toml:"self-test"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		OutputDir: "target",
		Emit:      []string{"ll", "asm", "obj"},
		LogLevel:  "verbose",
		FiboInput: 10,
		CPU:       "generic",
	}
}

// Load reads path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	buff, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	cfg, err := Parse(buff)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Parse decodes TOML text over the defaults and validates the result.
func Parse(buff []byte) (*Config, error) {
	tc := &tomlConfig{}
	if err := toml.Unmarshal(buff, tc); err != nil {
		return nil, err
	}

	cfg := Default()
	if tc.OutputDir != nil {
		cfg.OutputDir = *tc.OutputDir
	}
	if tc.Emit != nil {
		cfg.Emit = *tc.Emit
	}
	if tc.LogLevel != nil {
		cfg.LogLevel = *tc.LogLevel
	}
	if tc.FiboInput != nil {
		// fibo(48) no longer fits in 32 bits
		if *tc.FiboInput < 0 || *tc.FiboInput > 47 {
			return nil, errors.Errorf("fibo-input must be between 0 and 47, got %d", *tc.FiboInput)
		}
		cfg.FiboInput = uint32(*tc.FiboInput)
	}
	if tc.CPU != nil {
		cfg.CPU = *tc.CPU
	}
	if tc.SelfTest != nil {
		cfg.SelfTest = *tc.SelfTest
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.OutputDir == "" {
		return errors.New("output-dir must not be empty")
	}
	seen := make(map[string]bool)
	for _, kind := range cfg.Emit {
		switch kind {
		case "ll", "asm", "obj":
		default:
			return errors.Errorf("unknown emit kind %q (want ll, asm or obj)", kind)
		}
		if seen[kind] {
			return errors.Errorf("emit kind %q listed twice", kind)
		}
		seen[kind] = true
	}
	switch cfg.LogLevel {
	case "silent", "error", "warning", "verbose":
	default:
		return errors.Errorf("unknown log-level %q", cfg.LogLevel)
	}
	return nil
}
