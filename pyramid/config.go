package pyramid

import (
	"fmt"
	"strings"

	"github.com/janelia-flyem/mipexport/downres"
	"github.com/janelia-flyem/mipexport/mip"
)

// ErrorPolicy determines what happens when a chunk can't be generated or written.
type ErrorPolicy uint8

const (
	// BestEffort logs failed chunks and keeps going, leaving the level incomplete.
	BestEffort ErrorPolicy = iota

	// FailFast stops the export after the plane holding the first failed chunk.
	FailFast
)

func (p ErrorPolicy) String() string {
	if p == FailFast {
		return "fail-fast"
	}
	return "best-effort"
}

// ParseErrorPolicy parses "best-effort" or "fail-fast".  An empty string is BestEffort.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch strings.ToLower(s) {
	case "", "best-effort", "besteffort":
		return BestEffort, nil
	case "fail-fast", "failfast":
		return FailFast, nil
	}
	return BestEffort, fmt.Errorf("unknown error policy %q", s)
}

func (p ErrorPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *ErrorPolicy) UnmarshalText(b []byte) error {
	policy, err := ParseErrorPolicy(string(b))
	if err != nil {
		return err
	}
	*p = policy
	return nil
}

// DefaultDatasetFormat names level datasets "s0", "s1", ...
const DefaultDatasetFormat = "s%d"

// Config holds all settings of an export.  It is passed by value and never modified
// by the export.
type Config struct {
	// Threads is the number of pool workers.  Values below 1 mean 1.
	Threads int

	Method      downres.Method
	Compression mip.Compression
	Policy      ErrorPolicy

	// DatasetFormat is a fmt format taking the level index.
	DatasetFormat string

	// Heuristic decides loopback.  A nil heuristic never loops back.
	Heuristic LoopbackHeuristic

	// Governor is called after each plane.  May be nil.
	Governor CacheGovernor

	// Progress receives completion ratios.  May be nil.
	Progress ProgressSink
}

// DefaultConfig returns a block-averaging, best-effort configuration using the
// default loopback heuristic with the given memory budget.
func DefaultConfig(threads int, maxMemory int64) Config {
	return Config{
		Threads:       threads,
		Method:        downres.Average,
		Compression:   mip.Gzip,
		Policy:        BestEffort,
		DatasetFormat: DefaultDatasetFormat,
		Heuristic:     DefaultHeuristic{MaxMemory: maxMemory},
	}
}

func (c Config) withDefaults() Config {
	if c.Threads < 1 {
		c.Threads = 1
	}
	if c.DatasetFormat == "" {
		c.DatasetFormat = DefaultDatasetFormat
	}
	return c
}

// DatasetPath returns the dataset path of a level.
func (c Config) DatasetPath(level int) string {
	format := c.DatasetFormat
	if format == "" {
		format = DefaultDatasetFormat
	}
	return fmt.Sprintf(format, level)
}
