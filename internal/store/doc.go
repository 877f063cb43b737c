// Package store provides the SQLite-backed content store for the notice board.
//
// The store holds three tables:
//   - posts: AUTOINCREMENT ids, so an id is never reused even after expiry
//   - comments: cascade with their parent post
//   - subscriptions: keyed (subscriber, post_id), post_id 0 is the ALL scope
//
// # Transactions
//
// Every multi-step mutation runs inside Update, which executes the callback
// in a single transaction. Busy and locked errors retry the whole
// transaction with bounded exponential backoff; when retries run out the
// caller gets a board.StoreUnavailable error. View runs read-only callbacks
// the same way.
//
// The pool is limited to one connection, so the store itself is a single
// writer. Callbacks must only use the *Tx they are given; calling back into
// the Store from inside a callback would wait forever for the connection.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout: Wait for locks held by other connections
//   - foreign_keys=ON: Enforce referential integrity
package store
