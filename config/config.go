// Package config loads export settings from a TOML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/janelia-flyem/mipexport/downres"
	"github.com/janelia-flyem/mipexport/mip"
	"github.com/janelia-flyem/mipexport/pyramid"
	"github.com/janelia-flyem/mipexport/source"
)

const (
	// DefaultThreads is the number of workers if none is configured.
	DefaultThreads = 4

	// DefaultMaxBytes is the memory budget if none is configured.
	DefaultMaxBytes = 4 * mip.Giga

	// DefaultPressureFraction triggers cache release when less than half the budget is free.
	DefaultPressureFraction = 0.5
)

// Config is the parsed TOML configuration.
type Config struct {
	Logging mip.LogConfig
	Export  exportConfig
	Level   []levelConfig
	Source  sourceConfig
	Store   storeConfig
	Memory  memoryConfig

	location string
}

type exportConfig struct {
	Threads       int
	Method        downres.Method
	Compression   mip.Compression
	Policy        pyramid.ErrorPolicy
	DatasetFormat string `toml:"dataset_format"`
	LevelsJSON    string `toml:"levels_json"`
}

type levelConfig struct {
	Factors []int64
	Block   []int64
}

type sourceConfig struct {
	Path       string
	Dims       []int64
	Type       mip.DataType
	CacheBytes int `toml:"cache_bytes"`
}

type storeConfig struct {
	Ref string
}

type memoryConfig struct {
	MaxBytes         int64   `toml:"max_bytes"`
	PressureFraction float64 `toml:"pressure_fraction"`
}

// Load decodes a TOML configuration file and converts relative paths to absolute
// paths relative to the file's directory.
func Load(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("no TOML configuration file provided")
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	c, err := Parse(string(data))
	if err != nil {
		return nil, err
	}
	c.location = filename
	if err := c.convertPathsToAbsolute(filename); err != nil {
		return nil, fmt.Errorf("could not convert relative paths to absolute paths in TOML config: %v", err)
	}
	return c, nil
}

// Parse decodes TOML configuration text and fills in defaults.
func Parse(text string) (*Config, error) {
	c := &Config{
		Export: exportConfig{
			Threads:       DefaultThreads,
			Method:        downres.Average,
			Compression:   mip.Gzip,
			DatasetFormat: pyramid.DefaultDatasetFormat,
		},
		Memory: memoryConfig{
			MaxBytes:         DefaultMaxBytes,
			PressureFraction: DefaultPressureFraction,
		},
	}
	md, err := toml.Decode(text, c)
	if err != nil {
		return nil, fmt.Errorf("could not decode TOML config: %v", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		mip.Warningf("Ignoring unknown TOML keys: %v\n", undecoded)
	}
	return c, nil
}

// Location returns the path of the loaded file, if any.
func (c *Config) Location() string {
	return c.location
}

// Some settings in the TOML can be given as relative paths.
// This function converts them in-place to absolute paths,
// assuming the given paths were relative to the TOML file's own directory.
func (c *Config) convertPathsToAbsolute(configPath string) error {
	var err error
	configDir := filepath.Dir(configPath)

	// [logging].logfile
	if c.Logging.Logfile != "" {
		c.Logging.Logfile, err = mip.ConvertToAbsolute(c.Logging.Logfile, configDir)
		if err != nil {
			return fmt.Errorf("Error converting logfile setting to absolute path")
		}
	}

	// [source].path
	if c.Source.Path != "" {
		c.Source.Path, err = mip.ConvertToAbsolute(c.Source.Path, configDir)
		if err != nil {
			return fmt.Errorf("Error converting source path to absolute path")
		}
	}

	// [export].levels_json
	if c.Export.LevelsJSON != "" {
		c.Export.LevelsJSON, err = mip.ConvertToAbsolute(c.Export.LevelsJSON, configDir)
		if err != nil {
			return fmt.Errorf("Error converting levels_json setting to absolute path")
		}
	}
	return nil
}

// Levels returns the planned levels for the given source dimensions, taken from the
// levels JSON file if one is set, otherwise from the [[level]] tables.
func (c *Config) Levels(dims mip.Point) ([]pyramid.Level, error) {
	var factors, blocks []mip.Point
	if c.Export.LevelsJSON != "" {
		data, err := os.ReadFile(c.Export.LevelsJSON)
		if err != nil {
			return nil, err
		}
		if factors, blocks, err = pyramid.ParseLevelsJSON(data); err != nil {
			return nil, err
		}
	} else {
		for _, lc := range c.Level {
			factors = append(factors, mip.NewPoint(lc.Factors...))
			blocks = append(blocks, mip.NewPoint(lc.Block...))
		}
	}
	return pyramid.Plan(dims, factors, blocks)
}

// OpenSource opens the raw source volume described in [source].
func (c *Config) OpenSource() (*source.Virtual, error) {
	if c.Source.Path == "" {
		return nil, fmt.Errorf("%q must be specified for source configuration", "path")
	}
	if len(c.Source.Dims) == 0 {
		return nil, fmt.Errorf("%q must be specified for source configuration", "dims")
	}
	return source.OpenRawFile(c.Source.Path, mip.NewPoint(c.Source.Dims...), c.Source.Type, c.Source.CacheBytes)
}

// StoreRef returns the sink reference given in [store].
func (c *Config) StoreRef() (string, error) {
	if c.Store.Ref == "" {
		return "", fmt.Errorf("%q must be specified for store configuration", "ref")
	}
	return c.Store.Ref, nil
}

// ExportConfig returns the pyramid configuration for an export from src.
func (c *Config) ExportConfig(src source.Array) pyramid.Config {
	cfg := pyramid.Config{
		Threads:       c.Export.Threads,
		Method:        c.Export.Method,
		Compression:   c.Export.Compression,
		Policy:        c.Export.Policy,
		DatasetFormat: c.Export.DatasetFormat,
		Heuristic:     pyramid.DefaultHeuristic{MaxMemory: c.Memory.MaxBytes},
		Progress:      &pyramid.LogProgress{Step: 0.1},
	}
	if _, ok := src.(source.Releaser); ok {
		cfg.Governor = pyramid.NewMemoryGovernor(src, pyramid.RuntimePressure(c.Memory.MaxBytes, c.Memory.PressureFraction))
	}
	return cfg
}
