// SPDX-License-Identifier: MIT
//
// Package build exposes the metadata stamped into the binary at link time:
//
//	go build -ldflags "-X micspectrum/pkg/build.buildVersion=0.3.0 \
//	    -X micspectrum/pkg/build.buildCommit=$(git rev-parse --short HEAD) \
//	    -X micspectrum/pkg/build.buildTime=$(date -u +%FT%TZ)"
//
// Development builds run with the "unknown" placeholders.
package build

import (
	"errors"
	"fmt"
)

// Info describes the running binary.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String renders the info the way the version command prints it.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

// Populated by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
)

var info = Info{
	Name:        "micspectrum",
	Description: "Live microphone spectrum analyzer",
	Time:        "unknown",
	Commit:      "unknown",
	Version:     "unknown",
}

// Initialize copies the linker-provided values over the defaults. Every
// missing value is reported in the returned error, but the defaults stay in
// place so callers may treat the error as a warning.
func Initialize() error {
	var errs []error
	set := func(dst *string, val, flag string) {
		if val == "" {
			errs = append(errs, fmt.Errorf("%s is required", flag))
			return
		}
		*dst = val
	}

	if buildName != "" {
		info.Name = buildName
	}
	set(&info.Time, buildTime, "BuildTime")
	set(&info.Commit, buildCommit, "BuildCommit")
	set(&info.Version, buildVersion, "BuildVersion")

	return errors.Join(errs...)
}

// Get returns the current build information.
func Get() Info {
	return info
}
