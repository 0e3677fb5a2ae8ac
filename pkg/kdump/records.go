package kdump

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// Record describes one captured crash dump under the crash directory. Dump
// directories are named YYYYMMDDhhmm and hold a dump.<stamp> file.
type Record struct {
	Index     int    `json:"index" yaml:"index"`
	Timestamp string `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Path      string `json:"path" yaml:"path"`
	SizeBytes int64  `json:"size_bytes" yaml:"size_bytes"`
}

// Records enumerates captured crash dumps, newest first. A missing or
// unreadable crash directory yields an empty list, not an error.
func (r *Reconciler) Records() []Record {
	entries, err := os.ReadDir(r.Paths.CrashDir)
	if err != nil {
		r.Log.Debug("cannot read crash directory", "path", r.Paths.CrashDir, "error", err)
		return nil
	}

	type dump struct {
		name string
		size int64
	}
	var dumps []dump
	for _, entry := range entries {
		size, ok := crashDumpSize(r.Paths.CrashDir, entry)
		if !ok {
			continue
		}
		dumps = append(dumps, dump{name: entry.Name(), size: size})
	}
	sort.Slice(dumps, func(i, j int) bool { return dumps[j].name < dumps[i].name })

	records := make([]Record, len(dumps))
	for i, d := range dumps {
		records[i] = Record{
			Index:     i,
			Timestamp: timestampFromName(d.name),
			Path:      filepath.Join(r.Paths.CrashDir, d.name),
			SizeBytes: d.size,
		}
	}
	return records
}

// crashDumpSize validates a candidate dump directory and returns the dump
// file size.
func crashDumpSize(dir string, entry os.DirEntry) (int64, bool) {
	if !entry.IsDir() {
		return 0, false
	}
	name := entry.Name()
	if len(name) != 12 { // YYYYMMDDhhmm
		return 0, false
	}
	if _, err := strconv.ParseUint(name, 10, 64); err != nil {
		return 0, false
	}
	fi, err := os.Stat(filepath.Join(dir, name, "dump."+name))
	if err != nil || !fi.Mode().IsRegular() || fi.Size() == 0 {
		return 0, false
	}
	return fi.Size(), true
}

// timestampFromName converts a YYYYMMDDhhmm directory name to RFC 3339.
func timestampFromName(name string) string {
	if len(name) != 12 {
		return ""
	}
	return fmt.Sprintf("%s-%s-%sT%s:%s:00Z",
		name[:4], name[4:6], name[6:8], name[8:10], name[10:])
}
