// Command circlefs mounts a FUSE filesystem where processes publish Unix
// domain sockets under a directory named after their user.
//
// Subcommands:
//   - mount: Mount circlefs at a mountpoint
//   - probe: Bind test sockets in a live mount and check they resolve
//   - ls: List users and their registered sockets
//   - version: Print build information
package main
