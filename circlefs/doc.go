// Package circlefs implements a FUSE filesystem where processes register
// named Unix domain sockets under per-user directories.
//
// The filesystem has no backing storage. Its tree is synthesized from the
// host's user accounts and an in-memory registry of socket entries:
//
//	/                 one directory per user owning a live socket
//	/USER             the sockets registered by USER
//	/USER/NAME        a socket created by bind(2)
//
// Binding a Unix socket to /USER/NAME makes the kernel issue a mknod for a
// socket node. The filesystem accepts it only when the caller is root or
// USER, the node is a socket, and no setuid/setgid bits are requested. The
// entry remembers the pid of its creator and disappears once that process
// exits; dead entries are collected whenever their directory is read, so no
// background goroutine is needed.
//
// Service implements the operations on plain paths and is what tests drive.
// FS wraps a Service in bazil.org/fuse nodes for mounting.
package circlefs
