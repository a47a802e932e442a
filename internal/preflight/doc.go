// Package preflight provides readiness checks for the external tools,
// services, and filesystem paths that adsplice depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup. If any check fails the daemon
//     refuses to start rather than burning queue items on a doomed setup.
//   - The CLI "adsplice status" command uses the individual check functions
//     (CheckExecutor, CheckDirectoryAccess) to display service health.
//
// Each check is gated by its config toggle; unconfigured features are skipped.
package preflight
