package version

import (
	"fmt"
	"runtime"
)

// Set at build time with -ldflags "-X citerag/internal/version.Version=...".
var (
	Version = "dev"
	Commit  = ""
)

func String() string {
	s := "citerag " + Version
	if Commit != "" {
		s += " (" + Commit + ")"
	}
	return fmt.Sprintf("%s %s/%s %s", s, runtime.GOOS, runtime.GOARCH, runtime.Version())
}
