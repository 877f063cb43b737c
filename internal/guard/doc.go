// Package guard keeps a single daemon writing to a store.
//
// A new instance takes an exclusive flock on a lock file next to the
// database. If an older instance still holds it, the PID recorded in the
// file is asked to stop with SIGTERM and, after a grace period, killed with
// SIGKILL. Leftover helper processes (for example a radio bridge spawned by
// a crashed daemon) can be matched by command line and stopped the same
// way. The guard assumes a single host.
package guard
