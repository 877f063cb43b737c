// Package config loads the daemon configuration.
//
// Configuration comes from a YAML file. The raw document is first checked
// against an embedded CUE schema, which rejects unknown keys, wrong types
// and malformed durations with a positioned error, then decoded over the
// defaults so that omitted keys keep their default values. Validate applies
// the cross-field rules CUE does not express.
//
// The loaded *Config is passed explicitly to every component constructor.
// There is no package-level configuration state.
package config
