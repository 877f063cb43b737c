// Package board defines the notice board's domain values and error taxonomy.
//
// The board is the logical content set exposed to mesh nodes:
//   - Posts: immutable text with a fixed expiry, ids assigned by the store
//   - Comments: immutable replies that never outlive their parent post
//   - Subscriptions: (subscriber, scope) pairs, scope is ALL or one post
//
// Events are transient. The executor produces them inside the transaction
// that commits the mutation, with the recipient set already resolved, and
// the dispatcher consumes each one exactly once.
//
// Every user-facing failure is a *Error carrying a Code. Callers classify
// with IsCode, which unwraps through fmt.Errorf chains.
package board
