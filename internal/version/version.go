// Package version contains WebStats version information.
package version

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/AdguardTeam/golibs/stringutil"
)

// These are set by the linker.  Unfortunately we cannot set constants during
// linking, and Go doesn't have a concept of immutable variables, so to be
// thorough we have to only export them through getters.
var (
	version    string
	committime string
)

// vFmtFull defines the format of full version output.
const vFmtFull = "WebStats, version %s"

// Full returns the full current version of WebStats.
func Full() (v string) {
	return fmt.Sprintf(vFmtFull, Version())
}

// Version returns the WebStats build version.  If it hasn't been set by the
// linker, the version of the main module is used.
func Version() (v string) {
	if version != "" {
		return version
	}

	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" {
		return "(devel)"
	}

	return info.Main.Version
}

// fmtModule returns formatted information about module.  The result looks like:
//
//	github.com/Username/module@v1.2.3 (sum: someHASHSUM=)
func fmtModule(m *debug.Module) (formatted string) {
	if m == nil {
		return ""
	}

	if repl := m.Replace; repl != nil {
		return fmtModule(repl)
	}

	b := &strings.Builder{}

	stringutil.WriteToBuilder(b, m.Path)
	if ver := m.Version; ver != "" {
		sep := "@"
		if ver == "(devel)" {
			sep = " "
		}

		stringutil.WriteToBuilder(b, sep, ver)
	}

	if sum := m.Sum; sum != "" {
		stringutil.WriteToBuilder(b, " (sum: ", sum, ")")
	}

	return b.String()
}

// Constants defining the headers of build information message.
const (
	vFmtHdr       = "WebStats"
	vFmtVerHdr    = "Version: "
	vFmtGoHdr     = "Go version: "
	vFmtTimeHdr   = "Commit time: "
	vFmtGOOSHdr   = "GOOS: " + runtime.GOOS
	vFmtGOARCHHdr = "GOARCH: " + runtime.GOARCH
	vFmtDepsHdr   = "Dependencies:"
)

// WriteVerbose writes formatted build information to w.  Output example:
//
//	WebStats
//	Version: v0.1.0
//	Go version: go1.24.5
//	Commit time: 2024-03-30 16:26:08 +0300 MSK
//	GOOS: linux
//	GOARCH: amd64
//	Dependencies:
//	        ...
func WriteVerbose(w io.Writer) (err error) {
	b := &strings.Builder{}

	const nl = "\n"
	stringutil.WriteToBuilder(b, vFmtHdr, nl)
	stringutil.WriteToBuilder(b, vFmtVerHdr, Version(), nl)
	stringutil.WriteToBuilder(b, vFmtGoHdr, runtime.Version(), nl)

	writeCommitTime(b)

	stringutil.WriteToBuilder(b, vFmtGOOSHdr, nl)
	stringutil.WriteToBuilder(b, vFmtGOARCHHdr, nl)

	if info, ok := debug.ReadBuildInfo(); ok && len(info.Deps) > 0 {
		stringutil.WriteToBuilder(b, vFmtDepsHdr, nl)
		for _, dep := range info.Deps {
			if depStr := fmtModule(dep); depStr != "" {
				stringutil.WriteToBuilder(b, "\t", depStr, nl)
			}
		}
	}

	_, err = io.WriteString(w, b.String())

	return err
}

// writeCommitTime writes the commit time line, if the time is known.
func writeCommitTime(b *strings.Builder) {
	if committime == "" {
		return
	}

	commitTimeUnix, err := strconv.ParseInt(committime, 10, 64)
	if err != nil {
		stringutil.WriteToBuilder(b, vFmtTimeHdr, fmt.Sprintf("parse error: %s", err), "\n")
	} else {
		stringutil.WriteToBuilder(b, vFmtTimeHdr, time.Unix(commitTimeUnix, 0).String(), "\n")
	}
}
