package circlefs

import (
	"fmt"
	"os"
)

// Caller identifies the process behind a FUSE request.
type Caller struct {
	PID uint32
	UID uint32 // effective uid
	GID uint32
}

// checkMknod decides whether caller may register a socket at loc with the
// requested mode. Only sockets without setuid/setgid may be created, only at
// /USER/NAME, and only by root or by USER itself.
func checkMknod(loc Location, mode os.FileMode, caller Caller) error {
	if mode.Type() != os.ModeSocket {
		return fmt.Errorf("mode %#o: %w", UnixMode(mode), ErrNotSocket)
	}
	if mode&(os.ModeSetuid|os.ModeSetgid) != 0 {
		return fmt.Errorf("mode %#o: %w", UnixMode(mode), ErrForbiddenMode)
	}

	switch loc.Kind {
	case PathRoot, PathUser:
		return fmt.Errorf("%s: %w", loc.Path, ErrNotCreatable)
	case PathInvalid:
		return ErrInvalidPath
	}

	if loc.Account == nil {
		return fmt.Errorf("%q: %w", loc.User, ErrUnknownAccount)
	}
	if caller.UID != 0 && caller.UID != loc.Account.UID {
		return fmt.Errorf("uid %d registering under %s: %w", caller.UID, loc.User, ErrIdentityMismatch)
	}
	return nil
}
