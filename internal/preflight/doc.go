// Package preflight provides readiness checks for the paths, stores, and
// provider bookloom depends on.
//
// These checks run in two contexts:
//   - daemonrun calls RunAll before starting a worker and refuses to start
//     when a required check fails.
//   - The CLI "bookloom health" command renders every Result.
//
// Checks that need the network (the provider call) only run when requested.
package preflight
