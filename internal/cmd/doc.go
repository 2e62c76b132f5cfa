// Package cmd provides the command-line interface implementation for circlefs.
//
// Each subcommand lives in its own file with a constructor returning a
// *cobra.Command:
//   - root: Main command coordinator and entry point
//   - mount: Mount the filesystem and serve it until unmounted
//   - probe: Smoke test a live mount by binding and connecting to sockets
//   - ls: Print the user directories and sockets of a live mount
//   - version: Build information
//
// main runs the root command through Fang for styled help and errors.
package cmd
