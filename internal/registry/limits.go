package registry

// Limits bound the size of registry state and payloads.
// A zero field means unlimited.
type Limits struct {
	MaxRecords        int `json:"max_records" yaml:"max_records"`
	MaxAttributes     int `json:"max_attributes" yaml:"max_attributes"`
	MaxAttributeName  int `json:"max_attribute_name" yaml:"max_attribute_name"`
	MaxAttributeValue int `json:"max_attribute_value" yaml:"max_attribute_value"`
	MaxClaims         int `json:"max_claims" yaml:"max_claims"`
	MaxHashes         int `json:"max_hashes" yaml:"max_hashes"`
}

// DefaultLimits returns the limits used when no policy is configured.
func DefaultLimits() Limits {
	return Limits{
		MaxRecords:        0,
		MaxAttributes:     64,
		MaxAttributeName:  256,
		MaxAttributeValue: 64 << 10,
		MaxClaims:         256,
		MaxHashes:         64,
	}
}

func exceeds(n, limit int) bool {
	return limit > 0 && n > limit
}
