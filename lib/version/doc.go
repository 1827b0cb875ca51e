// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the calltally build.
//
// Release builds inject values with -ldflags:
//
//	go build -ldflags "-X github.com/bureau-foundation/calltally/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Without them, the VCS stamp recorded by the Go toolchain is used.
package version
