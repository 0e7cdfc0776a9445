// Package daemonrun wires configuration into a running worker: it opens the
// configured store backend, builds the provider client and pipeline lanes,
// and runs the daemon until a termination signal arrives. The CLI reuses the
// store and admin wiring for one-shot commands.
package daemonrun
