// Package kdump reconciles the desired crash-dump configuration with the
// bootloader command line and the kdump tool's config file, and queries the
// resulting runtime state.
//
// Each operation is one-shot and strictly sequential. Concurrent invocations
// against the same files are outside the contract; operators serialize runs.
package kdump

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/sonic-net/kdumpctl/pkg/bootcfg"
	"github.com/sonic-net/kdumpctl/pkg/configdb"
	"github.com/sonic-net/kdumpctl/pkg/hostcmd"
	"github.com/sonic-net/kdumpctl/pkg/toolcfg"
)

// Paths collects every host file the reconciler touches, so tests can point
// it at a scratch tree.
type Paths struct {
	GrubCfg          string
	MachineConf      string
	AbootCmdlineFmt  string
	ProcCmdline      string
	KexecCrashLoaded string
	KexecCrashSize   string
	StartupConfig    string
	CrashDir         string
}

func DefaultPaths() Paths {
	return Paths{
		GrubCfg:          bootcfg.DefaultGrubCfgPath,
		MachineConf:      bootcfg.DefaultMachineConfPath,
		AbootCmdlineFmt:  bootcfg.DefaultAbootCmdlineFmt,
		ProcCmdline:      "/proc/cmdline",
		KexecCrashLoaded: "/sys/kernel/kexec_crash_loaded",
		KexecCrashSize:   "/sys/kernel/kexec_crash_size",
		StartupConfig:    "/etc/sonic/config_db.json",
		CrashDir:         "/var/crash",
	}
}

// DesiredSource samples the declarative configuration. Satisfied by
// *configdb.Accessor.
type DesiredSource interface {
	DesiredConfig(ctx context.Context) configdb.Desired
}

// Reconciler drives a single enable/disable/config-next operation.
type Reconciler struct {
	Paths        Paths
	Runner       hostcmd.Runner
	Tool         *toolcfg.Editor
	DB           DesiredSource
	Units        UnitStater
	Log          *slog.Logger
	InstallerCmd string
	ToolCmd      string
}

const (
	defaultInstallerCmd = "/usr/local/bin/sonic-installer"
	defaultToolCmd      = toolcfg.DefaultToolCmd
)

// New wires a reconciler against the real host.
func New(db DesiredSource, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	runner := hostcmd.ExecRunner{}
	return &Reconciler{
		Paths:        DefaultPaths(),
		Runner:       runner,
		Tool:         toolcfg.NewEditor(runner),
		DB:           db,
		Units:        systemdStater{},
		Log:          log,
		InstallerCmd: defaultInstallerCmd,
		ToolCmd:      defaultToolCmd,
	}
}

func (r *Reconciler) locator() bootcfg.Locator {
	return bootcfg.Locator{
		GrubCfgPath:     r.Paths.GrubCfg,
		MachineConfPath: r.Paths.MachineConf,
		AbootCmdlineFmt: r.Paths.AbootCmdlineFmt,
	}
}

// Enable turns crash-dump capture on for the currently booted image. The
// returned flag reports whether a reboot is required for the reservation to
// take effect.
func (r *Reconciler) Enable(ctx context.Context) (bool, error) {
	image, err := r.CurrentImage(ctx)
	if err != nil {
		return false, err
	}
	return r.enableImage(ctx, image)
}

// ConfigNext applies the desired configuration to the next boot image, so the
// next boot picks up the reservation without disturbing the running image.
func (r *Reconciler) ConfigNext(ctx context.Context) (bool, error) {
	image, err := r.NextImage(ctx)
	if err != nil {
		return false, err
	}
	return r.enableImage(ctx, image)
}

func (r *Reconciler) enableImage(ctx context.Context, image string) (bool, error) {
	desired := r.DB.DesiredConfig(ctx)

	cfg := r.locator().Resolve(image)
	if cfg.Kind == bootcfg.KindUnsupported {
		r.Log.Warn("kernel crash dump is not supported on this platform")
		return false, nil
	}
	r.Log.Debug("resolved boot config", "kind", cfg.Kind.String(), "path", cfg.Path, "image", image)

	store := bootcfg.FileStore{Path: cfg.Path}
	lines, err := store.Load()
	if err != nil {
		return false, err
	}
	idx := bootcfg.LocateImageLine(lines, image)
	if idx == bootcfg.NotFound {
		return false, fmt.Errorf("%w: image %s has no entry in %s", bootcfg.ErrImageNotFound, image, cfg.Path)
	}

	runtime, err := bootcfg.RuntimeCrashkernel(r.Paths.ProcCmdline)
	if err != nil {
		return false, fmt.Errorf("failed to read kernel cmdline: %w", err)
	}

	lines, changed := bootcfg.ApplyCrashkernel(lines, idx, desired.MemorySpec, runtime)
	if changed {
		if err := store.Save(lines); err != nil {
			return false, err
		}
	} else {
		r.Log.Info("crash-dump memory reservation already active", "memory", desired.MemorySpec)
	}

	if err := r.Tool.WriteUseKdump(ctx, 1); err != nil {
		return false, err
	}

	if desired.Remote {
		if err := r.setupRemote(ctx, desired); err != nil {
			return false, err
		}
	}

	// A kernel with an existing reservation can pick up the new state
	// without waiting for the reboot.
	if runtime != "" {
		res, err := r.Runner.Run(ctx, r.ToolCmd, "load")
		if err != nil {
			return false, fmt.Errorf("failed to run %s load: %w", r.ToolCmd, err)
		}
		if res.ExitCode != 0 {
			return false, fmt.Errorf("%s load exited %d: %s", r.ToolCmd, res.ExitCode, res.StderrText())
		}
	}

	return changed, nil
}

// Disable turns crash-dump capture off for the currently booted image. Tool
// deactivation is unconditional and happens before the boot-file edit; the
// startup-config durability probe afterwards is informational only and rolls
// nothing back.
func (r *Reconciler) Disable(ctx context.Context) (bool, error) {
	image, err := r.CurrentImage(ctx)
	if err != nil {
		return false, err
	}

	if err := r.Tool.WriteUseKdump(ctx, 0); err != nil {
		return false, err
	}

	cfg := r.locator().Resolve(image)
	if cfg.Kind == bootcfg.KindUnsupported {
		r.Log.Warn("kernel crash dump is not supported on this platform")
		return false, nil
	}

	store := bootcfg.FileStore{Path: cfg.Path}
	lines, err := store.Load()
	if err != nil {
		return false, err
	}
	idx := bootcfg.LocateImageLine(lines, image)
	if idx == bootcfg.NotFound {
		return false, fmt.Errorf("%w: image %s has no entry in %s", bootcfg.ErrImageNotFound, image, cfg.Path)
	}

	lines, changed := bootcfg.RemoveCrashkernel(lines, idx)
	if changed {
		if err := store.Save(lines); err != nil {
			return false, err
		}
	} else {
		r.Log.Info("crash-dump capture already disabled")
	}

	if !r.startupConfigHasKdump() {
		r.Log.Warn("kdump configuration is not present in the startup config; change will not persist across reboot",
			"path", r.Paths.StartupConfig)
		return false, nil
	}

	return changed, nil
}

// setupRemote configures dumping over SSH: the tool config lines are
// uncommented and set to the desired endpoint and key, then the external tool
// propagates the remote settings.
func (r *Reconciler) setupRemote(ctx context.Context, desired configdb.Desired) error {
	if desired.SSHString == "" || desired.SSHPath == "" {
		return fmt.Errorf("remote crash dump requested but ssh_string or ssh_path is unset")
	}
	if err := r.Tool.ToggleRemote(true); err != nil {
		return err
	}
	if err := r.Tool.WriteSSHString(desired.SSHString); err != nil {
		return err
	}
	if err := r.Tool.WriteSSHPath(desired.SSHPath); err != nil {
		return err
	}
	res, err := r.Runner.Run(ctx, r.ToolCmd, "set-remote", desired.SSHString, desired.SSHPath)
	if err != nil {
		return fmt.Errorf("failed to run %s set-remote: %w", r.ToolCmd, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s set-remote exited %d: %s", r.ToolCmd, res.ExitCode, res.StderrText())
	}
	return nil
}

// SetMemory applies a new crashkernel memory spec to the current image's boot
// file. A no-op while the tool is deactivated; the value then only lives in
// the config database until the next enable.
func (r *Reconciler) SetMemory(ctx context.Context, spec string) (bool, error) {
	use, err := r.Tool.ReadUseKdump()
	if err != nil {
		return false, err
	}
	if use != 1 {
		r.Log.Info("kdump is disabled; memory spec recorded but boot config left untouched")
		return false, nil
	}

	image, err := r.CurrentImage(ctx)
	if err != nil {
		return false, err
	}
	cfg := r.locator().Resolve(image)
	if cfg.Kind == bootcfg.KindUnsupported {
		r.Log.Warn("kernel crash dump is not supported on this platform")
		return false, nil
	}

	store := bootcfg.FileStore{Path: cfg.Path}
	lines, err := store.Load()
	if err != nil {
		return false, err
	}
	idx := bootcfg.LocateImageLine(lines, image)
	if idx == bootcfg.NotFound {
		return false, fmt.Errorf("%w: image %s has no entry in %s", bootcfg.ErrImageNotFound, image, cfg.Path)
	}

	runtime, err := bootcfg.RuntimeCrashkernel(r.Paths.ProcCmdline)
	if err != nil {
		return false, fmt.Errorf("failed to read kernel cmdline: %w", err)
	}

	lines, changed := bootcfg.ApplyCrashkernel(lines, idx, spec, runtime)
	if changed {
		if err := store.Save(lines); err != nil {
			return false, err
		}
	}
	return changed, nil
}

// startupConfigHasKdump reports whether the persisted startup configuration
// carries a KDUMP config entry, i.e. whether a disable survives a reboot.
func (r *Reconciler) startupConfigHasKdump() bool {
	data, err := os.ReadFile(r.Paths.StartupConfig)
	if err != nil {
		return false
	}
	var cfg struct {
		Kdump map[string]json.RawMessage `json:"KDUMP"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return false
	}
	_, ok := cfg.Kdump["config"]
	return ok
}
