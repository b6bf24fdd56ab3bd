// Package ir holds the foundational types of the identity registry.
//
// Every other internal package imports ir; ir imports nothing internal.
// It defines account identifiers, identity records and claims, the error
// kinds surfaced in replies, and the canonical JSON encoding used for
// storage, replies and content hashes.
//
// Key constraints:
//   - No floats anywhere; numbers are int64 or uint64
//   - Canonical JSON follows RFC 8785 key ordering with NFC-normalised strings
//   - Time is logical, supplied by the host per invocation
package ir
