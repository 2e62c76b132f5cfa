package circlefs

import (
	"errors"
	"fmt"
	"syscall"

	"bazil.org/fuse"
)

// Sentinel errors for package circlefs.
// These errors can be checked with errors.Is() for specific error handling.
var (
	// Error kinds reported to the kernel
	ErrNotFound   = errors.New("no such file or directory")
	ErrPermission = errors.New("permission denied")
	ErrInvalid    = errors.New("invalid argument")

	// Path errors
	ErrInvalidPath    = fmt.Errorf("path is not /, /USER or /USER/NAME: %w", ErrNotFound)
	ErrUnknownAccount = fmt.Errorf("no such user account: %w", ErrNotFound)

	// Make-node policy errors
	ErrNotSocket        = fmt.Errorf("node type is not a socket: %w", ErrPermission)
	ErrForbiddenMode    = fmt.Errorf("setuid and setgid bits are not allowed: %w", ErrPermission)
	ErrNotCreatable     = fmt.Errorf("directories are synthesized and cannot be created: %w", ErrPermission)
	ErrWriteAccess      = fmt.Errorf("only read-only opens are allowed: %w", ErrPermission)
	ErrIdentityMismatch = fmt.Errorf("caller does not own the target directory: %w", ErrInvalid)
)

// Errno translates an error returned by Service into the errno the kernel
// receives. Unknown errors map to EIO.
func Errno(err error) fuse.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrNotFound):
		return fuse.Errno(syscall.ENOENT)
	case errors.Is(err, ErrPermission):
		return fuse.Errno(syscall.EACCES)
	case errors.Is(err, ErrInvalid):
		return fuse.Errno(syscall.EINVAL)
	}
	return fuse.Errno(syscall.EIO)
}

// ReturnCode gives the classic callback convention for err: 0 on success,
// the negated errno otherwise.
func ReturnCode(err error) int {
	return -int(Errno(err))
}
