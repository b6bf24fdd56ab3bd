package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityRecordCloneIsDeep(t *testing.T) {
	rec := IdentityRecord{
		Owner:      AccountID{1},
		Attributes: Attributes{"name": []byte("alice")},
		Claims: map[uint64]Claim{
			3: {ID: 3, HashedInfo: []Hash{{1}}, Verifiers: []AccountID{{9}}},
		},
	}

	clone := rec.Clone()
	clone.Attributes["name"][0] = 'X'
	clone.Attributes["extra"] = []byte("y")
	c := clone.Claims[3]
	c.Verifiers[0] = AccountID{8}

	assert.Equal(t, []byte("alice"), rec.Attributes["name"])
	assert.NotContains(t, rec.Attributes, "extra")
	assert.Equal(t, AccountID{9}, rec.Claims[3].Verifiers[0])
}

func TestAttributesEqual(t *testing.T) {
	a := Attributes{"x": []byte("1"), "y": []byte("2")}
	assert.True(t, a.Equal(Attributes{"y": []byte("2"), "x": []byte("1")}))
	assert.False(t, a.Equal(Attributes{"x": []byte("1")}))
	assert.False(t, a.Equal(Attributes{"x": []byte("1"), "y": []byte("3")}))
}

func TestClaimSets(t *testing.T) {
	set := NewHashSet([]Hash{{3}, {1}, {3}, {2}})
	require.Len(t, set, 3)
	assert.Equal(t, Hash{1}, set[0])

	c := Claim{HashedInfo: set}
	assert.True(t, c.Contains(Hash{2}))
	assert.False(t, c.Contains(Hash{4}))

	assert.True(t, c.AddVerifier(AccountID{5}))
	assert.True(t, c.AddVerifier(AccountID{4}))
	assert.False(t, c.AddVerifier(AccountID{5}))
	assert.Equal(t, []AccountID{{4}, {5}}, c.Verifiers)
}

func TestRecordValueCanonical(t *testing.T) {
	rec := IdentityRecord{
		Owner:      AccountID{1},
		Attributes: Attributes{"name": []byte("alice")},
		Seq:        4,
		CreatedAt:  10,
		UpdatedAt:  12,
	}

	b, err := MarshalCanonical(rec.Value(AccountID{1}))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"attributes":{"name":"YWxpY2U="}`)
	assert.Contains(t, string(b), `"claims":[]`)
	assert.Contains(t, string(b), `"seq":4`)
}
