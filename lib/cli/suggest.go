// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"

	"github.com/spf13/pflag"
)

const suggestThreshold = 3

// suggestCommand returns the closest subcommand name to unknown, or "".
func suggestCommand(unknown string, commands []*Command) string {
	bestName := ""
	bestDistance := suggestThreshold + 1
	for _, command := range commands {
		if distance := levenshtein(unknown, command.Name); distance < bestDistance {
			bestDistance = distance
			bestName = command.Name
		}
	}
	return bestName
}

// suggestFlag finds the first undefined flag in args and returns the
// closest defined flag with its prefix, or "".
func suggestFlag(args []string, flagSet *pflag.FlagSet) string {
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") || arg == "-" || arg == "--" {
			continue
		}
		name := strings.TrimLeft(arg, "-")
		if index := strings.IndexByte(name, '='); index >= 0 {
			name = name[:index]
		}
		if flagSet.Lookup(name) != nil || (len(name) == 1 && flagSet.ShorthandLookup(name) != nil) {
			continue
		}

		bestName := ""
		bestDistance := suggestThreshold + 1
		flagSet.VisitAll(func(f *pflag.Flag) {
			if distance := levenshtein(name, f.Name); distance < bestDistance {
				bestDistance = distance
				bestName = f.Name
			}
		})
		if bestName != "" {
			return "--" + bestName
		}
		break
	}
	return ""
}

// levenshtein is the single-row edit distance between a and b.
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	if len(a) > len(b) {
		a, b = b, a
	}

	previous := make([]int, len(a)+1)
	for i := range previous {
		previous[i] = i
	}
	for j := 1; j <= len(b); j++ {
		current := make([]int, len(a)+1)
		current[0] = j
		for i := 1; i <= len(a); i++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			current[i] = min(previous[i]+1, current[i-1]+1, previous[i-1]+cost)
		}
		previous = current
	}
	return previous[len(a)]
}
