// Package toolcfg reads and writes individual settings in the kdump tool's
// config file (/etc/default/kdump-tools). Every write is followed by a
// verifying read; a mismatch is a hard failure, never retried.
package toolcfg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/sonic-net/kdumpctl/pkg/hostcmd"
)

// DefaultPath is where kdump-tools keeps its config on the switch.
const DefaultPath = "/etc/default/kdump-tools"

// DefaultToolCmd is the external kdump tool invoked for unload.
const DefaultToolCmd = "/usr/sbin/kdump-config"

// ErrVerify reports that a write's read-back did not match the value written.
// Treated as a data-integrity failure by callers.
var ErrVerify = errors.New("kdump config verification failed")

var (
	useKdumpRe = regexp.MustCompile(`^USE_KDUMP=(\S+)`)
	numDumpsRe = regexp.MustCompile(`^#*KDUMP_NUM_DUMPS=(\d+)`)
	sshRe      = regexp.MustCompile(`^(#*)SSH="?([^"]*)"?\s*$`)
	sshKeyRe   = regexp.MustCompile(`^(#*)SSH_KEY="?([^"]*)"?\s*$`)
)

// Editor edits the kdump tool config file. Runner is used for the unload
// action triggered by disabling USE_KDUMP.
type Editor struct {
	Path    string
	ToolCmd string
	Runner  hostcmd.Runner
}

func NewEditor(runner hostcmd.Runner) *Editor {
	return &Editor{Path: DefaultPath, ToolCmd: DefaultToolCmd, Runner: runner}
}

// ReadUseKdump reports whether the tool is activated. A missing or commented
// line counts as 0.
func (e *Editor) ReadUseKdump() (int, error) {
	lines, err := e.load()
	if err != nil {
		return 0, err
	}
	for _, line := range lines {
		if m := useKdumpRe.FindStringSubmatch(line); m != nil {
			v, err := strconv.Atoi(m[1])
			if err != nil {
				return 0, fmt.Errorf("malformed USE_KDUMP value %q in %s", m[1], e.Path)
			}
			return v, nil
		}
	}
	return 0, nil
}

// WriteUseKdump activates (1) or deactivates (0) the tool. Deactivation also
// unloads the capture kernel via the external tool; its failure is fatal to
// the caller.
func (e *Editor) WriteUseKdump(ctx context.Context, v int) error {
	err := e.setLine(regexp.MustCompile(`^#*USE_KDUMP=`), fmt.Sprintf("USE_KDUMP=%d", v))
	if err != nil {
		return err
	}
	got, err := e.ReadUseKdump()
	if err != nil {
		return err
	}
	if got != v {
		return fmt.Errorf("%w: USE_KDUMP wrote %d, read back %d", ErrVerify, v, got)
	}
	if v == 0 {
		res, err := e.Runner.Run(ctx, e.ToolCmd, "unload")
		if err != nil {
			return fmt.Errorf("failed to run %s unload: %w", e.ToolCmd, err)
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("%s unload exited %d: %s", e.ToolCmd, res.ExitCode, res.StderrText())
		}
	}
	return nil
}

// ReadNumDumps returns the configured dump count. The line may carry a
// comment marker when the value has never been set explicitly.
func (e *Editor) ReadNumDumps() (int, error) {
	lines, err := e.load()
	if err != nil {
		return 0, err
	}
	for _, line := range lines {
		if m := numDumpsRe.FindStringSubmatch(line); m != nil {
			return strconv.Atoi(m[1])
		}
	}
	return 0, fmt.Errorf("KDUMP_NUM_DUMPS not present in %s", e.Path)
}

func (e *Editor) WriteNumDumps(n int) error {
	err := e.setLine(regexp.MustCompile(`^#*KDUMP_NUM_DUMPS=`), fmt.Sprintf("KDUMP_NUM_DUMPS=%d", n))
	if err != nil {
		return err
	}
	got, err := e.ReadNumDumps()
	if err != nil {
		return err
	}
	if got != n {
		return fmt.Errorf("%w: KDUMP_NUM_DUMPS wrote %d, read back %d", ErrVerify, n, got)
	}
	return nil
}

// ReadSSHString returns the remote dump endpoint and whether its line is
// commented out.
func (e *Editor) ReadSSHString() (value string, commented bool, err error) {
	return e.readQuoted(sshRe, "SSH")
}

func (e *Editor) WriteSSHString(s string) error {
	err := e.setLine(regexp.MustCompile(`^#*SSH=`), fmt.Sprintf("SSH=%q", s))
	if err != nil {
		return err
	}
	got, _, err := e.ReadSSHString()
	if err != nil {
		return err
	}
	if got != s {
		return fmt.Errorf("%w: SSH wrote %q, read back %q", ErrVerify, s, got)
	}
	return nil
}

// ReadSSHPath returns the remote key path. A stored value that is not an
// absolute path is a read error.
func (e *Editor) ReadSSHPath() (value string, commented bool, err error) {
	v, c, err := e.readQuoted(sshKeyRe, "SSH_KEY")
	if err != nil {
		return "", false, err
	}
	if !strings.HasPrefix(v, "/") {
		return "", false, fmt.Errorf("SSH_KEY value %q in %s is not an absolute path", v, e.Path)
	}
	return v, c, nil
}

func (e *Editor) WriteSSHPath(p string) error {
	err := e.setLine(regexp.MustCompile(`^#*SSH_KEY=`), fmt.Sprintf("SSH_KEY=%q", p))
	if err != nil {
		return err
	}
	got, _, err := e.ReadSSHPath()
	if err != nil {
		return fmt.Errorf("%w: SSH_KEY wrote %q: %v", ErrVerify, p, err)
	}
	if got != p {
		return fmt.Errorf("%w: SSH_KEY wrote %q, read back %q", ErrVerify, p, got)
	}
	return nil
}

// ToggleRemote comments or uncomments the SSH and SSH_KEY lines as a pair,
// independent of their values. Both lines must exist; toggling a missing line
// is a verification failure.
func (e *Editor) ToggleRemote(enable bool) error {
	lines, err := e.load()
	if err != nil {
		return err
	}
	for i, line := range lines {
		if sshRe.MatchString(line) || sshKeyRe.MatchString(line) {
			if enable {
				lines[i] = strings.TrimLeft(line, "#")
			} else if !strings.HasPrefix(line, "#") {
				lines[i] = "#" + line
			}
		}
	}
	if err := e.save(lines); err != nil {
		return err
	}

	_, sshCommented, err := e.ReadSSHString()
	if err != nil {
		return fmt.Errorf("%w: SSH line missing after toggle: %v", ErrVerify, err)
	}
	_, keyCommented, err := e.readQuoted(sshKeyRe, "SSH_KEY")
	if err != nil {
		return fmt.Errorf("%w: SSH_KEY line missing after toggle: %v", ErrVerify, err)
	}
	if sshCommented == enable || keyCommented == enable {
		return fmt.Errorf("%w: remote lines not toggled to enabled=%t", ErrVerify, enable)
	}
	return nil
}

func (e *Editor) readQuoted(re *regexp.Regexp, key string) (string, bool, error) {
	lines, err := e.load()
	if err != nil {
		return "", false, err
	}
	for _, line := range lines {
		if m := re.FindStringSubmatch(line); m != nil {
			return m[2], m[1] != "", nil
		}
	}
	return "", false, fmt.Errorf("%s not present in %s", key, e.Path)
}

// setLine replaces the first line matching re, or appends when none matches.
func (e *Editor) setLine(re *regexp.Regexp, replacement string) error {
	lines, err := e.load()
	if err != nil {
		return err
	}
	replaced := false
	for i, line := range lines {
		if re.MatchString(line) {
			lines[i] = replacement
			replaced = true
			break
		}
	}
	if !replaced {
		lines = append(lines, replacement)
	}
	return e.save(lines)
}

func (e *Editor) load() ([]string, error) {
	data, err := os.ReadFile(e.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read kdump config %s: %w", e.Path, err)
	}
	s := strings.TrimRight(string(data), "\n")
	if s == "" {
		return nil, nil
	}
	return strings.Split(s, "\n"), nil
}

func (e *Editor) save(lines []string) error {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	tmp, err := os.CreateTemp(filepath.Dir(e.Path), filepath.Base(e.Path)+".*")
	if err != nil {
		return fmt.Errorf("failed to stage kdump config %s: %w", e.Path, err)
	}
	name := tmp.Name()
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("failed to write kdump config %s: %w", e.Path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("failed to write kdump config %s: %w", e.Path, err)
	}
	if err := os.Rename(name, e.Path); err != nil {
		os.Remove(name)
		return fmt.Errorf("failed to replace kdump config %s: %w", e.Path, err)
	}
	return nil
}
