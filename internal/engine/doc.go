// Package engine turns inbound mesh messages into board mutations.
//
// ARCHITECTURE:
//
// Single-Writer Job Loop:
// Inbound commands and expiration sweeps are the only sources of store
// mutation. Both are queued as jobs and processed one at a time by
// Engine.Run, so a command's transaction and a sweep's per-post cascade
// never interleave.
//
// Job Processing Flow:
//  1. Listen reads the transport and queues each message (the only
//     blocking read in the command path)
//  2. RunSweeper queues a sweep at startup and every interval
//  3. Run dequeues a job; messages go through command.Parse and
//     Executor.Execute, sweeps through Executor.Sweep
//  4. Replies are sent to the sender; committed events go to the Notifier
//     and the display Publisher
//
// Notification sends happen outside the loop. Recipients are resolved in
// the mutating transaction, so delivery reflects subscriptions as of
// commit time.
//
// Shutdown:
// Cancelling the Run context stops intake. The job in flight runs to
// completion on a detached context bounded by the job timeout.
package engine
