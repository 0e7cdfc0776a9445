// Package daemonctl starts, stops, and inspects background bookloom workers.
//
// A worker holds an flock on config.LockPath and records its pid in
// config.PIDPath while running. Probe reads both without contacting the
// worker; FetchStatus queries the status API when it is enabled.
package daemonctl
