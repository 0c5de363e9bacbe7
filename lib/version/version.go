// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"io"
	"runtime"
)

// Set via -ldflags at build time.
var (
	// Number is the release version.
	Number = "0.1.0-dev"

	// Commit is the short git SHA.
	Commit = "unknown"

	// Dirty is "true" when the tree had uncommitted changes.
	Dirty = "false"

	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

// String returns "<number> (<commit>[-dirty], <build time>)".
func String() string {
	commit := Commit
	if Dirty == "true" {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s)", Number, commit, BuildTime)
}

// Print writes the version banner for binary name to w, followed by the
// Go toolchain and platform.
func Print(w io.Writer, name string) {
	fmt.Fprintf(w, "%s %s\n  go: %s\n  platform: %s/%s\n",
		name, String(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
