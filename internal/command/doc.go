// Package command turns an inbound mesh text line into a typed Command.
//
// Parsing is total and side-effect free: Parse never touches storage, and
// every input yields exactly one of a Command, a *board.Error, or nothing.
// Nothing is returned for empty lines and for lines that do not start with
// "!", so ordinary mesh chatter never gets a reply.
//
// Command is a closed set. Each grammar rule has one variant and the
// unexported marker method keeps other packages from adding more, so the
// executor's type switch is the single place a new command must be handled.
package command
