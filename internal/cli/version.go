package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pyisolate/guard/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := version.Get()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "pyisolate-guard %s\n", info.Version)
		fmt.Fprintf(out, "Git Commit: %s\n", info.GitCommit)
		fmt.Fprintf(out, "Build Date: %s\n", info.BuildTime)
		fmt.Fprintf(out, "Go: %s %s\n", info.GoVersion, info.Platform)
	},
}
