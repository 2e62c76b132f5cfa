package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/taigrr/colorhash"
)

// NewLsCmd creates and returns the ls subcommand for the circlefs CLI.
// It prints every user directory of a mounted circlefs with its sockets.
func NewLsCmd() *cobra.Command {
	var (
		noColor   bool
		skipCheck bool
	)

	cmd := &cobra.Command{
		Use:   "ls MOUNTPOINT",
		Short: "List users and their registered sockets",
		Long: `List the user directories of a mounted circlefs and the sockets registered
in each. Listing the mount also collects sockets whose processes have exited.

Each user is printed in a colour derived from the user name, so the same user
keeps the same colour across runs.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if !skipCheck {
				if err := checkMounted(args[0]); err != nil {
					log.Fatal(err)
				}
			}
			if err := listTree(cmd.OutOrStdout(), args[0], !noColor); err != nil {
				log.Fatal(err)
			}
		},
	}

	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable coloured output")
	cmd.Flags().BoolVar(&skipCheck, "skip-mount-check", false, "Do not verify that MOUNTPOINT is a circlefs mount")

	return cmd
}

func listTree(w io.Writer, root string, color bool) error {
	users, err := os.ReadDir(root)
	if err != nil {
		return err
	}

	for _, u := range users {
		if !u.IsDir() {
			continue
		}
		sockets, err := os.ReadDir(filepath.Join(root, u.Name()))
		if errors.Is(err, fs.ErrNotExist) {
			// the last socket went away between the two listings
			continue
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "%s/\n", colorize(u.Name(), color))
		for _, s := range sockets {
			fmt.Fprintf(w, "  %s\n", describe(s))
		}
	}
	return nil
}

// colorize wraps name in a 256-colour ANSI escape picked from its hash.
func colorize(name string, enabled bool) string {
	if !enabled {
		return name
	}
	// skip the 16 system colours, which terminals remap freely
	h := colorhash.HashString(name) % 216
	if h < 0 {
		h += 216
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", 16+h, name)
}

func describe(e fs.DirEntry) string {
	info, err := e.Info()
	if err != nil {
		return fmt.Sprintf("%s (%v)", e.Name(), err)
	}
	owner := "?"
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		owner = fmt.Sprint(st.Uid)
	}
	return fmt.Sprintf("%s %s uid=%s %s", info.Mode(), info.ModTime().Format("2006-01-02 15:04:05"), owner, e.Name())
}
