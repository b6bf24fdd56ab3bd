package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for a future algorithm change.
const (
	DomainInvocation = "idreg/invocation/v1"
	DomainState      = "idreg/state/v1"
	DomainAttribute  = "idreg/attribute/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) [32]byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// InvocationID computes a content-addressed id for one inbound message.
// Identical (caller, timestamp, payload) triples hash identically, which lets
// logs and traces correlate replays of the same delivery.
func InvocationID(caller AccountID, timestamp int64, payload []byte) (string, error) {
	obj := Object{
		"caller":    String(caller.String()),
		"timestamp": Int(timestamp),
		"payload":   String(hex.EncodeToString(payload)),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("invocation id: %w", err)
	}
	sum := hashWithDomain(DomainInvocation, canonical)
	return hex.EncodeToString(sum[:]), nil
}

// StateDigest hashes an ordered list of key/value pairs. The caller must
// supply pairs sorted by key; each key and value is length-prefixed.
func StateDigest(pairs [][2][]byte) string {
	var data []byte
	for _, kv := range pairs {
		data = appendLengthPrefixed(data, kv[0])
		data = appendLengthPrefixed(data, kv[1])
	}
	sum := hashWithDomain(DomainState, data)
	return hex.EncodeToString(sum[:])
}

// HashAttribute derives the 32-byte claim hash of an attribute value, so a
// subject can prove a claim covers one of its attributes.
func HashAttribute(name string, value []byte) [32]byte {
	data := appendLengthPrefixed(nil, []byte(name))
	data = appendLengthPrefixed(data, value)
	return hashWithDomain(DomainAttribute, data)
}

func appendLengthPrefixed(dst, b []byte) []byte {
	n := uint32(len(b))
	dst = append(dst, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	return append(dst, b...)
}
