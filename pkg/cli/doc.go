// Package cli implements the command-line interface for the kdumpctl tool.
//
// # Overview
//
// kdumpctl manages kernel crash-dump (kdump) configuration on the switch. It
// reconciles the desired state held in the configuration database with the
// bootloader command-line file for the current or next installed OS image and
// with the kdump tool's own config file.
//
// # Commands
//
// Reconciliation (root required):
//
//	kdumpctl enable        # enable capture for the current image
//	kdumpctl config-next   # enable capture for the next boot image
//	kdumpctl disable       # disable capture for the current image
//
// Settings (root required to set, not to show):
//
//	kdumpctl memory [SPEC]          # crashkernel memory reservation
//	kdumpctl num-dumps [N]          # retained dump count
//	kdumpctl remote [on|off]        # remote dump over SSH
//	kdumpctl ssh-string [USER@HOST] # remote endpoint
//	kdumpctl ssh-path [PATH]        # SSH private key path
//
// Display:
//
//	kdumpctl show config|status|records [--format json|yaml|table] [--output FILE]
//
// # Global Flags
//
//	--debug      Enable debug logging
//	--log-json   Output logs in JSON format
//
// # Exit Codes
//
//	0  Success, including "not supported on this platform" no-ops
//	1  Fatal error (bad arguments, missing privileges, failed reconciliation)
//
// A mutation that only takes effect after a reboot prints an explicit notice
// on stdout; diagnostics go to stderr.
//
// # Architecture
//
// The CLI uses the urfave/cli/v3 framework and delegates to specialized
// packages:
//   - pkg/kdump - reconciliation driver and state probes
//   - pkg/configdb - typed view over the configuration database
//   - pkg/bootcfg - bootloader command-line editing
//   - pkg/toolcfg - kdump tool config file editing
//   - pkg/serializer - output formatting
//   - pkg/logging - structured logging
package cli
