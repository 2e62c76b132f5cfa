package cmd

import (
	"github.com/dendrascience/circlefs/version"
	"github.com/spf13/cobra"
)

// NewRootCmd creates and returns the root cobra command for the circlefs CLI.
// It sets up all subcommands, command groups, and basic configuration.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "circlefs",
		Short: "circlefs - a FUSE filesystem of per-user Unix socket directories",
		Long: `circlefs is a FUSE filesystem where processes publish Unix domain sockets
under a directory named after their user.

Binding a socket to MOUNTPOINT/USER/NAME registers it; the entry disappears
once the process that bound it exits. Only root and USER may register sockets
under USER, so a path in circlefs tells clients who is listening on it.

Use subcommands to perform different operations:
  - mount: Mount circlefs at a mountpoint
  - probe: Bind test sockets in a mounted circlefs and check they resolve
  - ls: List users and their registered sockets
  - version: Print build information`,
		Version: version.GetFullVersion(),
	}

	groupUtilities := "utilities"
	groupFilesystem := "filesystem"

	rootCmd.AddGroup(&cobra.Group{
		ID:    groupFilesystem,
		Title: "Filesystem Operations",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    groupUtilities,
		Title: "Utility Commands",
	})

	mountCmd := NewMountCmd()
	probeCmd := NewProbeCmd()
	lsCmd := NewLsCmd()
	versionCmd := NewVersionCmd()

	mountCmd.GroupID = groupFilesystem
	probeCmd.GroupID = groupUtilities
	lsCmd.GroupID = groupUtilities
	versionCmd.GroupID = groupUtilities

	rootCmd.AddCommand(mountCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(versionCmd)

	return rootCmd
}
