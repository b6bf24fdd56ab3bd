package ir

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// AccountIDSize is the length in bytes of an account identifier.
const AccountIDSize = 32

// AccountID is an opaque fixed-size account identifier verified by the host.
// The zero value is the zero identifier, which never owns a record.
type AccountID [AccountIDSize]byte

// ZeroAccount is the all-zero identifier.
var ZeroAccount AccountID

// ParseAccountID parses the 64 hex character form, with or without a 0x prefix.
func ParseAccountID(s string) (AccountID, error) {
	var id AccountID
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != AccountIDSize*2 {
		return id, fmt.Errorf("account id must be %d hex characters, got %d", AccountIDSize*2, len(s))
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return id, fmt.Errorf("account id: %w", err)
	}
	return id, nil
}

// MustParseAccountID is like ParseAccountID but panics on error.
// Use only in tests or with known-valid constants.
func MustParseAccountID(s string) AccountID {
	id, err := ParseAccountID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// IsZero reports whether id is the zero identifier.
func (id AccountID) IsZero() bool {
	return id == ZeroAccount
}

// String returns the lowercase hex form without prefix.
func (id AccountID) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns the first 8 hex characters, for log lines.
func (id AccountID) Short() string {
	return id.String()[:8]
}

// MarshalText implements encoding.TextMarshaler.
func (id AccountID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *AccountID) UnmarshalText(b []byte) error {
	parsed, err := ParseAccountID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// MarshalJSON encodes the identifier as a hex string.
func (id AccountID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON decodes a hex string identifier.
func (id *AccountID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("account id must be a string: %w", err)
	}
	return id.UnmarshalText([]byte(s))
}

// Compare orders identifiers bytewise.
func (id AccountID) Compare(other AccountID) int {
	for i := range id {
		if id[i] != other[i] {
			if id[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
