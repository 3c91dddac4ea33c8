package main

import (
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X main.version=...". Unset values fall back to the module build info.
var (
	version = "dev"
	commit  = ""
	date    = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info, _ := debug.ReadBuildInfo()
		fmt.Fprintln(cmd.OutOrStdout(), versionString(info))
		return nil
	},
}

func versionString(info *debug.BuildInfo) string {
	v, rev, built, dirty := version, commit, date, false
	if info != nil {
		if v == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if rev == "" {
					rev = s.Value
				}
			case "vcs.time":
				if built == "" {
					built = s.Value
				}
			case "vcs.modified":
				dirty = s.Value == "true"
			}
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "trade-data-collector %s", v)
	if rev != "" {
		if len(rev) > 12 {
			rev = rev[:12]
		}
		fmt.Fprintf(&b, " commit %s", rev)
		if dirty {
			b.WriteString("-dirty")
		}
	}
	if built != "" {
		fmt.Fprintf(&b, " built %s", built)
	}
	if info != nil && info.GoVersion != "" {
		fmt.Fprintf(&b, " (%s)", info.GoVersion)
	}
	return b.String()
}
