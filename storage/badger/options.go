package badger

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v3"
)

// parseRef parses "badger://<dir>?value_threshold=N&vlog_size=N&sync=true" into a
// directory and badger options.
func parseRef(ref string) (path string, opts badger.Options, err error) {
	rest := trimScheme(ref)
	var query string
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		rest, query = rest[:i], rest[i+1:]
	}
	if rest == "" {
		err = fmt.Errorf("directory must be specified for BadgerDB reference %q", ref)
		return
	}
	path = rest
	opts = badger.DefaultOptions(path).WithLogger(nil)
	opts.NumVersionsToKeep = 1
	opts.SyncWrites = DefaultSyncWrites

	values, err := url.ParseQuery(query)
	if err != nil {
		return
	}
	if v := values.Get("value_threshold"); v != "" {
		var n int64
		if n, err = strconv.ParseInt(v, 10, 64); err != nil {
			err = fmt.Errorf("%q setting must be an integer (%s)", "value_threshold", v)
			return
		}
		opts = opts.WithValueThreshold(n)
	}
	if v := values.Get("vlog_size"); v != "" {
		var n int64
		if n, err = strconv.ParseInt(v, 10, 64); err != nil {
			err = fmt.Errorf("%q setting must be an integer (%s)", "vlog_size", v)
			return
		}
		opts = opts.WithValueLogFileSize(n)
	}
	if v := values.Get("sync"); v != "" {
		var sync bool
		if sync, err = strconv.ParseBool(v); err != nil {
			err = fmt.Errorf("%q setting must be a bool (%s)", "sync", v)
			return
		}
		opts = opts.WithSyncWrites(sync)
	}
	return
}
