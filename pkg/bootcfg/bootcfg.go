// Package bootcfg edits the crashkernel token inside bootloader command-line
// files. It understands the grub-style multi-line config as well as the
// Aboot-style one-line-per-image cmdline file; both use the same token grammar
// on the line belonging to an installed image.
package bootcfg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// NotFound is returned by LocateImageLine when no line carries the image
// token. Indexing lines with it is a caller-side precondition violation.
const NotFound = -1

// ErrImageNotFound is wrapped by callers when a boot config has no line for
// the requested image.
var ErrImageNotFound = errors.New("image has no boot config entry")

const (
	imageLineToken    = "loop=image-"
	crashkernelMarker = " crashkernel="
)

var runtimeCrashkernelRe = regexp.MustCompile(`(?:^|\s)crashkernel=(\S+)`)

// LocateImageLine returns the index of the first line containing the
// loop=image-<name> token, or NotFound. Callers are expected to guarantee
// uniqueness upstream; later matches are ignored.
func LocateImageLine(lines []string, image string) int {
	token := imageLineToken + image
	for i, line := range lines {
		if strings.Contains(line, token) {
			return i
		}
	}
	return NotFound
}

// ExtractCrashkernel returns the value of the crashkernel token on a boot
// line, or "" when the token is absent. The value extends from right after
// the '=' up to the next space or end of line.
func ExtractCrashkernel(line string) string {
	i := strings.Index(line, crashkernelMarker)
	if i == NotFound {
		return ""
	}
	rest := line[i+len(crashkernelMarker):]
	if j := strings.IndexByte(rest, ' '); j >= 0 {
		return rest[:j]
	}
	return rest
}

// ApplyCrashkernel sets the crashkernel token on lines[index] to desired.
// runtime is the value currently active in the booted kernel (from
// /proc/cmdline, "" when none). The returned flag reports whether a
// reboot-required change is outstanding:
//
//   - token absent: appended, true
//   - token equals desired and runtime equals desired: no-op, false
//   - token equals desired but runtime differs: file untouched, still true
//     (an earlier change has not taken effect yet)
//   - token differs: value replaced in place, true
func ApplyCrashkernel(lines []string, index int, desired, runtime string) ([]string, bool) {
	line := lines[index]
	current := ExtractCrashkernel(line)

	switch {
	case current == "":
		line += crashkernelMarker + desired
	case current == desired:
		return lines, runtime != desired
	default:
		line = strings.Replace(line, "crashkernel="+current, "crashkernel="+desired, 1)
	}

	out := make([]string, len(lines))
	copy(out, lines)
	out[index] = line
	return out, true
}

// RemoveCrashkernel strips the crashkernel token from lines[index]. Returns
// the lines unchanged and false when the token is already absent.
func RemoveCrashkernel(lines []string, index int) ([]string, bool) {
	line := lines[index]
	current := ExtractCrashkernel(line)
	if current == "" {
		return lines, false
	}

	out := make([]string, len(lines))
	copy(out, lines)
	out[index] = strings.TrimRight(strings.Replace(line, "crashkernel="+current, "", 1), " ")
	return out, true
}

// RuntimeCrashkernel reads the crashkernel value active in the booted kernel.
// path is normally /proc/cmdline. Returns "" when no reservation is active.
func RuntimeCrashkernel(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	m := runtimeCrashkernelRe.FindStringSubmatch(strings.TrimSpace(string(data)))
	if m == nil {
		return "", nil
	}
	return m[1], nil
}

// Store is the load/save seam over a boot config file. The file content is
// the only persisted state; saves rewrite it wholesale.
type Store interface {
	Load() ([]string, error)
	Save(lines []string) error
}

// FileStore is the on-disk Store. Save writes a temp file in the target
// directory and renames it over the original.
type FileStore struct {
	Path string
}

func (s FileStore) Load() ([]string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read boot config %s: %w", s.Path, err)
	}
	return splitLines(string(data)), nil
}

func (s FileStore) Save(lines []string) error {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.Path), filepath.Base(s.Path)+".*")
	if err != nil {
		return fmt.Errorf("failed to stage boot config %s: %w", s.Path, err)
	}
	name := tmp.Name()
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("failed to write boot config %s: %w", s.Path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("failed to write boot config %s: %w", s.Path, err)
	}
	if err := os.Rename(name, s.Path); err != nil {
		os.Remove(name)
		return fmt.Errorf("failed to replace boot config %s: %w", s.Path, err)
	}
	return nil
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
