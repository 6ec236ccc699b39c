// Package fingerprint computes content identities for stage input files.
//
// A FileFingerprint pairs a file's base name with its size and the SHA-256 of
// its bytes. Files are streamed in fixed-size chunks so multi-gigabyte
// recordings are hashed with bounded memory.
//
// Primary entry points:
//   - File: fingerprint one path with the default chunk size
//   - Hasher.File: fingerprint with a configured chunk size and observer
//   - Hasher.Files: fingerprint a set of paths, sorted by name
package fingerprint
