package mip

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

const (
	Kilo = 1 << 10
	Mega = 1 << 20
	Giga = 1 << 30
	Tera = 1 << 40
)

// HumanBytes returns a human-readable byte count like "83 MB".
func HumanBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.Bytes(uint64(-n))
	}
	return humanize.Bytes(uint64(n))
}

// ConvertToAbsolute converts a relative path to an absolute one using the given
// base directory.  Absolute paths are returned unchanged.
func ConvertToAbsolute(path, baseDir string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	abs, err := filepath.Abs(filepath.Join(baseDir, path))
	if err != nil {
		return "", fmt.Errorf("can't make %q absolute: %v", path, err)
	}
	return abs, nil
}
