// Package version reports build metadata for circlefs.
//
// Values come from, in order of preference:
//   - variables injected at link time with -ldflags -X
//   - the build info embedded by the go tool (module version, vcs.revision, vcs.time)
//   - development defaults
package version
