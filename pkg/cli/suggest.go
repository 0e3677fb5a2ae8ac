package cli

import (
	"github.com/agnivade/levenshtein"
	"github.com/urfave/cli/v3"
)

// suggestThreshold caps how far a typo may be from a real command name before
// we stay quiet instead of guessing.
const suggestThreshold = 3

// suggestCommand returns the closest command name to input, or "" when
// nothing is plausibly close.
func suggestCommand(cmds []*cli.Command, input string) string {
	best := ""
	bestDist := suggestThreshold + 1
	for _, c := range cmds {
		if d := levenshtein.ComputeDistance(input, c.Name); d < bestDist {
			best, bestDist = c.Name, d
		}
	}
	return best
}
