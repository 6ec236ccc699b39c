// Package confighash reduces a stage configuration to a deterministic,
// secret-free digest.
//
// A configuration value is deep-converted to plain JSON values, the configured
// secret paths are overwritten with an empty string, and the result is encoded
// with sorted keys before hashing with SHA-256. Secret-holding sections are
// always materialized: a configuration that omits the section hashes the same
// as one that carries it with any token value.
package confighash
