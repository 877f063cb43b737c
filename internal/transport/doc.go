// Package transport carries text between the board and the mesh.
//
// The daemon does not speak the radio protocol itself. A bridge process
// owns the radio and exchanges newline-delimited JSON with the daemon over
// stdio, TCP or a unix socket (see Stream). Memory is an in-process
// implementation for tests.
//
// Every outbound text is bounded by MaxPayload bytes. Callers are expected
// to fit their text to that budget; transports reject anything larger
// rather than fragmenting it.
package transport
