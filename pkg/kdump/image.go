package kdump

import (
	"context"
	"fmt"
	"strings"
)

// ImagePrefix is carried by every installed OS image name reported by the
// bootloader query; it is stripped before use.
const ImagePrefix = "SONiC-OS-"

const (
	currentMarker = "Current: "
	nextMarker    = "Next: "
)

// CurrentImage resolves the name of the currently booted image.
func (r *Reconciler) CurrentImage(ctx context.Context) (string, error) {
	return r.queryImage(ctx, currentMarker)
}

// NextImage resolves the name of the image that boots after the next reboot.
func (r *Reconciler) NextImage(ctx context.Context) (string, error) {
	return r.queryImage(ctx, nextMarker)
}

func (r *Reconciler) queryImage(ctx context.Context, marker string) (string, error) {
	res, err := r.Runner.Run(ctx, r.InstallerCmd, "list")
	if err != nil {
		return "", fmt.Errorf("failed to run %s list: %w", r.InstallerCmd, err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("%s list exited %d: %s", r.InstallerCmd, res.ExitCode, res.StderrText())
	}

	for _, line := range res.Stdout {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, marker) {
			continue
		}
		name := strings.TrimSpace(strings.TrimPrefix(line, marker))
		if !strings.HasPrefix(name, ImagePrefix) {
			return "", fmt.Errorf("unexpected image name %q: missing %s prefix", name, ImagePrefix)
		}
		return strings.TrimPrefix(name, ImagePrefix), nil
	}
	return "", fmt.Errorf("no %q entry in %s list output", strings.TrimSuffix(marker, ": "), r.InstallerCmd)
}
