package mip

import "fmt"

// PlanningError is returned before any writes when a requested pyramid
// cannot be planned, e.g., non-integer factors or mismatched dimensionality.
type PlanningError struct {
	Level int // -1 if not specific to a level
	Msg   string
}

func (e *PlanningError) Error() string {
	if e.Level < 0 {
		return "pyramid planning: " + e.Msg
	}
	return fmt.Sprintf("pyramid planning, level %d: %s", e.Level, e.Msg)
}

// NewPlanningError returns a PlanningError with a formatted message.
func NewPlanningError(level int, format string, args ...interface{}) *PlanningError {
	return &PlanningError{Level: level, Msg: fmt.Sprintf(format, args...)}
}

// SourceReadError is returned when a source or loopback level cannot supply
// a region required by a chunk.
type SourceReadError struct {
	Region Region
	Err    error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("unable to read source region %s: %v", e.Region, e.Err)
}

func (e *SourceReadError) Unwrap() error {
	return e.Err
}

// SinkWriteError is returned when a chunked sink rejects a dataset creation or block write.
type SinkWriteError struct {
	Path    string
	GridPos Point // nil for dataset creation
	Err     error
}

func (e *SinkWriteError) Error() string {
	if e.GridPos == nil {
		return fmt.Sprintf("unable to create dataset %q: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("unable to write block %s of dataset %q: %v", e.GridPos, e.Path, e.Err)
}

func (e *SinkWriteError) Unwrap() error {
	return e.Err
}
