package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/moby/sys/mountinfo"
)

const fsType = "fuse.circlefs"

var errNotCirclefs = errors.New("not a circlefs mount")

// checkMounted makes sure mountpoint is where a circlefs is mounted, so the
// utilities do not end up binding sockets on some unrelated filesystem.
func checkMounted(mountpoint string) error {
	return checkMountType(mountpoint, fsType)
}

func checkMountType(mountpoint, fstype string) error {
	// the mount table only holds absolute, cleaned, resolved paths
	target, err := filepath.Abs(mountpoint)
	if err != nil {
		return err
	}
	if resolved, err := filepath.EvalSymlinks(target); err == nil {
		target = resolved
	}

	mounts, err := mountinfo.GetMounts(mountinfo.SingleEntryFilter(target))
	if err != nil {
		return fmt.Errorf("reading mount table: %w", err)
	}
	if len(mounts) == 0 {
		return fmt.Errorf("%s: %w (nothing is mounted there)", mountpoint, errNotCirclefs)
	}
	if mounts[len(mounts)-1].FSType != fstype {
		return fmt.Errorf("%s: %w (found %s)", mountpoint, errNotCirclefs, mounts[len(mounts)-1].FSType)
	}
	return nil
}
