/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version carries build information.
package version

import (
	"fmt"
	"runtime"
)

// Build information, set at build time via ldflags:
//
//	-X github.com/friendsincode/teamslot/internal/version.Version=X.Y.Z
//	-X github.com/friendsincode/teamslot/internal/version.Commit=abc1234
var (
	Version   = "0.1.0-dev"
	Commit    = ""
	BuildDate = ""
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version"`
}

// Get returns the build information of this binary.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
}

// String renders the info on one line.
func (i Info) String() string {
	s := "teamslot " + i.Version
	if i.Commit != "" {
		s += fmt.Sprintf(" (%s", shortCommit(i.Commit))
		if i.BuildDate != "" {
			s += ", " + i.BuildDate
		}
		s += ")"
	}
	return s + " " + i.GoVersion
}

func shortCommit(c string) string {
	if len(c) > 7 {
		return c[:7]
	}
	return c
}
