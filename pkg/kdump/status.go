package kdump

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"

	"github.com/sonic-net/kdumpctl/pkg/bootcfg"
)

// kdumpUnit is the systemd unit driving the kdump tool at boot.
const kdumpUnit = "kdump-tools.service"

// Status is the observed crash-dump state of the running system.
type Status struct {
	Enabled               bool   `json:"enabled" yaml:"enabled"`
	Loaded                bool   `json:"loaded" yaml:"loaded"`
	ReservedBytes         uint64 `json:"reserved_bytes" yaml:"reserved_bytes"`
	RuntimeCrashkernel    string `json:"runtime_crashkernel,omitempty" yaml:"runtime_crashkernel,omitempty"`
	ConfiguredCrashkernel string `json:"configured_crashkernel,omitempty" yaml:"configured_crashkernel,omitempty"`
	RebootRequired        bool   `json:"reboot_required" yaml:"reboot_required"`
	ServiceState          string `json:"service_state" yaml:"service_state"`
}

// UnitStater probes the active state of a systemd unit.
type UnitStater interface {
	UnitActiveState(ctx context.Context, unit string) (string, error)
}

// systemdStater asks systemd over D-Bus.
type systemdStater struct{}

func (systemdStater) UnitActiveState(ctx context.Context, unit string) (string, error) {
	conn, err := dbus.NewWithContext(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	units, err := conn.ListUnitsByNamesContext(ctx, []string{unit})
	if err != nil {
		return "", err
	}
	if len(units) == 0 {
		return "", fmt.Errorf("unit %s not known to systemd", unit)
	}
	return units[0].ActiveState, nil
}

// Status gathers the observed state. kexec probes are authoritative; the
// systemd probe degrades to "unknown" rather than failing the command.
func (r *Reconciler) Status(ctx context.Context) (*Status, error) {
	st := &Status{ServiceState: "unknown"}

	use, err := r.Tool.ReadUseKdump()
	if err != nil {
		return nil, err
	}
	st.Enabled = use == 1

	st.Loaded, err = readBoolFile(r.Paths.KexecCrashLoaded)
	if err != nil {
		return nil, err
	}
	st.ReservedBytes, err = readUintFile(r.Paths.KexecCrashSize)
	if err != nil {
		return nil, err
	}
	st.RuntimeCrashkernel, err = bootcfg.RuntimeCrashkernel(r.Paths.ProcCmdline)
	if err != nil {
		return nil, fmt.Errorf("failed to read kernel cmdline: %w", err)
	}

	st.ConfiguredCrashkernel = r.configuredCrashkernel(ctx)
	st.RebootRequired = st.ConfiguredCrashkernel != st.RuntimeCrashkernel

	if r.Units != nil {
		if state, err := r.Units.UnitActiveState(ctx, kdumpUnit); err == nil {
			st.ServiceState = state
		} else {
			r.Log.Debug("systemd unit state unavailable", "unit", kdumpUnit, "error", err)
		}
	}
	return st, nil
}

// configuredCrashkernel reads the crashkernel value configured for the
// current image's boot line, "" when unresolvable.
func (r *Reconciler) configuredCrashkernel(ctx context.Context) string {
	image, err := r.CurrentImage(ctx)
	if err != nil {
		r.Log.Debug("cannot resolve current image", "error", err)
		return ""
	}
	cfg := r.locator().Resolve(image)
	if cfg.Kind == bootcfg.KindUnsupported {
		return ""
	}
	lines, err := bootcfg.FileStore{Path: cfg.Path}.Load()
	if err != nil {
		return ""
	}
	idx := bootcfg.LocateImageLine(lines, image)
	if idx == bootcfg.NotFound {
		return ""
	}
	return bootcfg.ExtractCrashkernel(lines[idx])
}

func readBoolFile(path string) (bool, error) {
	n, err := readUintFile(path)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func readUintFile(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(data)), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed value in %s: %w", path, err)
	}
	return n, nil
}
