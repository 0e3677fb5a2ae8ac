package kdump

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonic-net/kdumpctl/pkg/bootcfg"
	"github.com/sonic-net/kdumpctl/pkg/configdb"
	"github.com/sonic-net/kdumpctl/pkg/hostcmd"
	"github.com/sonic-net/kdumpctl/pkg/toolcfg"
)

const (
	curImage  = "20240530.10"
	nextImage = "20241001.05"
)

var installerOutput = []string{
	"Current: SONiC-OS-" + curImage,
	"Next: SONiC-OS-" + nextImage,
	"Available:",
	"SONiC-OS-" + curImage,
	"SONiC-OS-" + nextImage,
}

const toolConfig = `USE_KDUMP=0
#KDUMP_NUM_DUMPS=3
#SSH="user@example.com"
#SSH_KEY="/root/.ssh/kdump_id_rsa"
`

type staticDB struct {
	d configdb.Desired
}

func (s staticDB) DesiredConfig(context.Context) configdb.Desired { return s.d }

type fixture struct {
	r      *Reconciler
	runner *hostcmd.FakeRunner
	dir    string
}

func (f *fixture) grubLines(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(f.r.Paths.GrubCfg)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func newFixture(t *testing.T, desired configdb.Desired) *fixture {
	t.Helper()
	dir := t.TempDir()

	paths := Paths{
		GrubCfg:          filepath.Join(dir, "grub.cfg"),
		MachineConf:      filepath.Join(dir, "machine.conf"),
		AbootCmdlineFmt:  filepath.Join(dir, "image-%s", "kernel-cmdline"),
		ProcCmdline:      filepath.Join(dir, "cmdline"),
		KexecCrashLoaded: filepath.Join(dir, "kexec_crash_loaded"),
		KexecCrashSize:   filepath.Join(dir, "kexec_crash_size"),
		StartupConfig:    filepath.Join(dir, "config_db.json"),
		CrashDir:         filepath.Join(dir, "crash"),
	}

	writeFixtureFile(t, paths.GrubCfg,
		"menuentry 'SONiC-OS-"+curImage+"' {\n"+
			"linux /image-"+curImage+"/boot/vmlinuz loop=image-"+curImage+" ro\n"+
			"linux /image-"+nextImage+"/boot/vmlinuz loop=image-"+nextImage+" ro\n"+
			"}\n")
	writeFixtureFile(t, paths.ProcCmdline, "BOOT_IMAGE=/image-"+curImage+"/boot/vmlinuz loop=image-"+curImage+" ro\n")
	writeFixtureFile(t, paths.KexecCrashLoaded, "0\n")
	writeFixtureFile(t, paths.KexecCrashSize, "0\n")
	writeFixtureFile(t, paths.StartupConfig, `{"KDUMP": {"config": {"enabled": "true"}}}`)

	toolPath := filepath.Join(dir, "kdump-tools")
	writeFixtureFile(t, toolPath, toolConfig)

	runner := hostcmd.NewFakeRunner()
	runner.Respond("sonic-installer", hostcmd.Result{Stdout: installerOutput})

	r := &Reconciler{
		Paths:        paths,
		Runner:       runner,
		Tool:         &toolcfg.Editor{Path: toolPath, ToolCmd: "kdump-config", Runner: runner},
		DB:           staticDB{d: desired},
		Log:          slog.Default(),
		InstallerCmd: "sonic-installer",
		ToolCmd:      "kdump-config",
	}
	return &fixture{r: r, runner: runner, dir: dir}
}

func writeFixtureFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func desiredEnabled(memory string) configdb.Desired {
	return configdb.Desired{Enabled: true, MemorySpec: memory, NumDumps: 3}
}

func TestEnableAppendsCrashkernel(t *testing.T) {
	f := newFixture(t, desiredEnabled("256M"))

	changed, err := f.r.Enable(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)

	lines := f.grubLines(t)
	assert.Contains(t, lines[1], "loop=image-"+curImage+" ro crashkernel=256M")
	// other image's line untouched
	assert.NotContains(t, lines[2], "crashkernel")

	use, err := f.r.Tool.ReadUseKdump()
	require.NoError(t, err)
	assert.Equal(t, 1, use)

	// no reservation in the running kernel, so no immediate load
	for _, call := range f.runner.CallLines() {
		assert.NotEqual(t, "kdump-config load", call)
	}
}

func TestEnableIdempotentWhenRuntimeMatches(t *testing.T) {
	f := newFixture(t, desiredEnabled("256M"))

	// file and running kernel already carry the desired reservation
	writeFixtureFile(t, f.r.Paths.GrubCfg,
		"linux loop=image-"+curImage+" ro crashkernel=256M\n")
	writeFixtureFile(t, f.r.Paths.ProcCmdline,
		"BOOT_IMAGE=vmlinuz loop=image-"+curImage+" ro crashkernel=256M\n")

	changed, err := f.r.Enable(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)

	// a reservation is live, so the tool reloads to pick up config changes
	assert.Contains(t, f.runner.CallLines(), "kdump-config load")
}

func TestEnableRebootStillPendingWhenRuntimeDiffers(t *testing.T) {
	f := newFixture(t, desiredEnabled("256M"))

	writeFixtureFile(t, f.r.Paths.GrubCfg,
		"linux loop=image-"+curImage+" ro crashkernel=256M\n")
	// running kernel still has the old reservation
	writeFixtureFile(t, f.r.Paths.ProcCmdline,
		"BOOT_IMAGE=vmlinuz loop=image-"+curImage+" ro crashkernel=128M\n")

	changed, err := f.r.Enable(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestEnableReplacesDifferingValue(t *testing.T) {
	f := newFixture(t, desiredEnabled("256M"))

	writeFixtureFile(t, f.r.Paths.GrubCfg,
		"linux loop=image-"+curImage+" crashkernel=128M ro\n")

	changed, err := f.r.Enable(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Contains(t, f.grubLines(t)[0], "crashkernel=256M")
	assert.NotContains(t, f.grubLines(t)[0], "crashkernel=128M")
}

func TestEnableLoadsWhenReservationActive(t *testing.T) {
	f := newFixture(t, desiredEnabled("256M"))

	writeFixtureFile(t, f.r.Paths.ProcCmdline,
		"BOOT_IMAGE=vmlinuz loop=image-"+curImage+" ro crashkernel=128M\n")

	changed, err := f.r.Enable(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Contains(t, f.runner.CallLines(), "kdump-config load")
}

func TestEnableLoadFailureIsFatal(t *testing.T) {
	f := newFixture(t, desiredEnabled("256M"))
	writeFixtureFile(t, f.r.Paths.ProcCmdline,
		"BOOT_IMAGE=vmlinuz ro crashkernel=128M\n")
	f.runner.Respond("kdump-config", hostcmd.Result{ExitCode: 1, Stderr: []string{"kexec failed"}})

	_, err := f.r.Enable(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kexec failed")
}

func TestEnableUnsupportedPlatformIsNoop(t *testing.T) {
	f := newFixture(t, desiredEnabled("256M"))
	require.NoError(t, os.Remove(f.r.Paths.GrubCfg))

	changed, err := f.r.Enable(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)

	// the tool config must not have been activated
	use, err := f.r.Tool.ReadUseKdump()
	require.NoError(t, err)
	assert.Equal(t, 0, use)
}

func TestEnableAboot(t *testing.T) {
	f := newFixture(t, desiredEnabled("256M"))
	require.NoError(t, os.Remove(f.r.Paths.GrubCfg))
	writeFixtureFile(t, f.r.Paths.MachineConf, "aboot_platform=x86_64-arista\n")
	abootPath := filepath.Join(f.dir, "image-"+curImage, "kernel-cmdline")
	writeFixtureFile(t, abootPath, "root=/dev/sda loop=image-"+curImage+" ro\n")

	changed, err := f.r.Enable(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)

	data, err := os.ReadFile(abootPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "crashkernel=256M")
}

func TestEnableImageLineMissingIsFatal(t *testing.T) {
	f := newFixture(t, desiredEnabled("256M"))
	writeFixtureFile(t, f.r.Paths.GrubCfg, "linux loop=image-otherimage ro\n")

	_, err := f.r.Enable(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, bootcfg.ErrImageNotFound))
}

func TestEnableRemote(t *testing.T) {
	d := desiredEnabled("256M")
	d.Remote = true
	d.SSHString = "user@10.0.0.1"
	d.SSHPath = "/etc/kdump/id_rsa"
	f := newFixture(t, d)

	changed, err := f.r.Enable(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)

	v, commented, err := f.r.Tool.ReadSSHString()
	require.NoError(t, err)
	assert.False(t, commented)
	assert.Equal(t, "user@10.0.0.1", v)

	p, commented, err := f.r.Tool.ReadSSHPath()
	require.NoError(t, err)
	assert.False(t, commented)
	assert.Equal(t, "/etc/kdump/id_rsa", p)

	assert.Contains(t, f.runner.CallLines(), "kdump-config set-remote user@10.0.0.1 /etc/kdump/id_rsa")
}

func TestEnableRemoteMissingEndpointIsFatal(t *testing.T) {
	d := desiredEnabled("256M")
	d.Remote = true
	f := newFixture(t, d)

	_, err := f.r.Enable(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ssh_string")
}

func TestEnableRemoteSetRemoteFailureIsFatal(t *testing.T) {
	d := desiredEnabled("256M")
	d.Remote = true
	d.SSHString = "user@10.0.0.1"
	d.SSHPath = "/etc/kdump/id_rsa"
	f := newFixture(t, d)
	f.runner.Respond("kdump-config", hostcmd.Result{ExitCode: 2, Stderr: []string{"unreachable"}})

	_, err := f.r.Enable(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestConfigNextTargetsNextImage(t *testing.T) {
	f := newFixture(t, desiredEnabled("256M"))

	changed, err := f.r.ConfigNext(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)

	lines := f.grubLines(t)
	assert.Contains(t, lines[2], "loop=image-"+nextImage+" ro crashkernel=256M")
	assert.NotContains(t, lines[1], "crashkernel")
}

func TestDisableRemovesReservation(t *testing.T) {
	f := newFixture(t, desiredEnabled("256M"))
	writeFixtureFile(t, f.r.Paths.GrubCfg,
		"linux loop=image-"+curImage+" ro crashkernel=256M\n")

	changed, err := f.r.Disable(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NotContains(t, f.grubLines(t)[0], "crashkernel")

	use, err := f.r.Tool.ReadUseKdump()
	require.NoError(t, err)
	assert.Equal(t, 0, use)
	assert.Contains(t, f.runner.CallLines(), "kdump-config unload")
}

func TestDisableAlreadyDisabled(t *testing.T) {
	f := newFixture(t, desiredEnabled("256M"))

	changed, err := f.r.Disable(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)

	// deactivation is unconditional even when the boot file had no token
	use, err := f.r.Tool.ReadUseKdump()
	require.NoError(t, err)
	assert.Equal(t, 0, use)
}

func TestDisableNotDurableWithoutStartupConfig(t *testing.T) {
	f := newFixture(t, desiredEnabled("256M"))
	writeFixtureFile(t, f.r.Paths.GrubCfg,
		"linux loop=image-"+curImage+" ro crashkernel=256M\n")
	require.NoError(t, os.Remove(f.r.Paths.StartupConfig))

	changed, err := f.r.Disable(context.Background())
	require.NoError(t, err)
	// the file edit happened but the change is reported as not durable
	assert.False(t, changed)
	assert.NotContains(t, f.grubLines(t)[0], "crashkernel")
	use, err := f.r.Tool.ReadUseKdump()
	require.NoError(t, err)
	assert.Equal(t, 0, use)
}

func TestDisableStartupConfigWithoutKdumpTable(t *testing.T) {
	f := newFixture(t, desiredEnabled("256M"))
	writeFixtureFile(t, f.r.Paths.GrubCfg,
		"linux loop=image-"+curImage+" ro crashkernel=256M\n")
	writeFixtureFile(t, f.r.Paths.StartupConfig, `{"DEVICE_METADATA": {}}`)

	changed, err := f.r.Disable(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestEnableTwiceIsIdempotent(t *testing.T) {
	f := newFixture(t, desiredEnabled("256M"))

	changed, err := f.r.Enable(context.Background())
	require.NoError(t, err)
	require.True(t, changed)

	// simulate the reboot: runtime cmdline now carries the reservation
	writeFixtureFile(t, f.r.Paths.ProcCmdline,
		"BOOT_IMAGE=vmlinuz loop=image-"+curImage+" ro crashkernel=256M\n")

	changed, err = f.r.Enable(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSetMemory(t *testing.T) {
	f := newFixture(t, desiredEnabled("256M"))

	// disabled: recorded only, boot file untouched
	changed, err := f.r.SetMemory(context.Background(), "512M")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NotContains(t, f.grubLines(t)[1], "crashkernel")

	require.NoError(t, f.r.Tool.WriteUseKdump(context.Background(), 1))

	changed, err = f.r.SetMemory(context.Background(), "512M")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Contains(t, f.grubLines(t)[1], "crashkernel=512M")
}
