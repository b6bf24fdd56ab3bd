package testutil

import (
	"crypto/sha256"

	"github.com/roach88/idreg/internal/ir"
)

// Account derives a stable account id from a readable name, so tests can
// say Account("alice") instead of spelling out 64 hex characters.
func Account(name string) ir.AccountID {
	return ir.AccountID(sha256.Sum256([]byte("idreg-test-account:" + name)))
}

// AccountPtr is Account for optional fields.
func AccountPtr(name string) *ir.AccountID {
	id := Account(name)
	return &id
}

// Attrs builds attributes from name/value pairs. It panics on an odd
// argument count.
func Attrs(pairs ...string) ir.Attributes {
	if len(pairs)%2 != 0 {
		panic("testutil.Attrs: odd number of arguments")
	}
	attrs := make(ir.Attributes, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		attrs[pairs[i]] = []byte(pairs[i+1])
	}
	return attrs
}

// FixedTokenGenerator returns the same correlation token on every call.
// An empty token defaults to "test-token-default".
type FixedTokenGenerator struct {
	token string
}

// NewFixedTokenGenerator creates a fixed token generator.
func NewFixedTokenGenerator(token string) *FixedTokenGenerator {
	if token == "" {
		token = "test-token-default"
	}
	return &FixedTokenGenerator{token: token}
}

// Generate returns the fixed token.
func (g *FixedTokenGenerator) Generate() string {
	return g.token
}
