package bootcfg

import (
	"fmt"
	"os"
	"strings"
)

// Kind identifies which bootloader config format applies to this platform.
type Kind int

const (
	KindUnsupported Kind = iota
	KindGrub
	KindAboot
)

func (k Kind) String() string {
	switch k {
	case KindGrub:
		return "grub"
	case KindAboot:
		return "aboot"
	default:
		return "unsupported"
	}
}

// Config is the resolved boot config target for one image: which format and
// which file. Resolved once at the start of an operation.
type Config struct {
	Kind Kind
	Path string
}

// Default locations on the switch.
const (
	DefaultGrubCfgPath     = "/host/grub/grub.cfg"
	DefaultMachineConfPath = "/host/machine.conf"
	DefaultAbootCmdlineFmt = "/host/image-%s/kernel-cmdline"

	abootPlatformMarker = "aboot_platform"
)

// Locator resolves the boot config file for an image. Grub wins when its
// config file exists; otherwise the machine config is consulted for the Aboot
// platform marker. Anything else is an unsupported platform.
type Locator struct {
	GrubCfgPath     string
	MachineConfPath string
	// AbootCmdlineFmt is a format string with one %s for the image name.
	AbootCmdlineFmt string
}

func DefaultLocator() Locator {
	return Locator{
		GrubCfgPath:     DefaultGrubCfgPath,
		MachineConfPath: DefaultMachineConfPath,
		AbootCmdlineFmt: DefaultAbootCmdlineFmt,
	}
}

func (l Locator) Resolve(image string) Config {
	if _, err := os.Stat(l.GrubCfgPath); err == nil {
		return Config{Kind: KindGrub, Path: l.GrubCfgPath}
	}
	if data, err := os.ReadFile(l.MachineConfPath); err == nil {
		if strings.Contains(string(data), abootPlatformMarker) {
			return Config{Kind: KindAboot, Path: fmt.Sprintf(l.AbootCmdlineFmt, image)}
		}
	}
	return Config{Kind: KindUnsupported}
}
