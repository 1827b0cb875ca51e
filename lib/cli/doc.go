// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the calltally
// binary.
//
// A [Command] has a name, an optional pflag FlagSet factory, nested
// [Command.Subcommands] and a Run function. [Command.Execute] routes
// positional arguments to subcommands, parses flags and prints help.
// Unknown commands and flags get a "did you mean" suggestion when the
// Levenshtein distance to a known name is at most 3.
//
// [NewLogger] builds the process logger: text on a terminal, JSON when
// stderr is redirected.
package cli
