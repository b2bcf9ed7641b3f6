// Package version holds build metadata injected with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/sweeney/toggle-blinker/internal/version.Version=v1.2.0"
package version

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Set at build time.
var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// Short returns the version string.
func Short() string {
	return Version
}

// Full returns the version with commit, build time and Go runtime.
func Full() string {
	return fmt.Sprintf("toggle-blinker %s (commit %s, built %s, %s %s/%s)",
		Version, Commit, BuildTime, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// AttachCobraVersionCommand adds a `version` subcommand to root and sets
// root.Version so `--version` works too.
func AttachCobraVersionCommand(root *cobra.Command) {
	root.Version = Short()
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), Full())
		},
	})
}
