package store

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/idreg/internal/ir"
)

// recordDoc is the stored (schema v2) shape of an identity record.
// It mirrors ir.IdentityRecord.Value so stored bytes are canonical JSON.
type recordDoc struct {
	Account    string            `json:"account"`
	Owner      ir.AccountID      `json:"owner"`
	Attributes map[string]string `json:"attributes"`
	Claims     []claimDoc        `json:"claims"`
	Seq        uint64            `json:"seq"`
	CreatedAt  int64             `json:"created_at"`
	UpdatedAt  int64             `json:"updated_at"`
}

type claimDoc struct {
	ID           uint64         `json:"id"`
	Issuer       ir.AccountID   `json:"issuer"`
	Subject      ir.AccountID   `json:"subject"`
	HashedInfo   []string       `json:"hashed_info"`
	IssuanceDate int64          `json:"issuance_date"`
	Valid        bool           `json:"valid"`
	Verifiers    []ir.AccountID `json:"verifiers"`
}

// legacyRecordDoc is the schema v1 shape: plain string attribute values,
// no sequence id, no claims.
type legacyRecordDoc struct {
	Owner      ir.AccountID      `json:"owner"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  int64             `json:"created_at"`
	UpdatedAt  int64             `json:"updated_at"`
}

// marshalRecord encodes a record as canonical JSON.
func marshalRecord(account ir.AccountID, rec ir.IdentityRecord) ([]byte, error) {
	data, err := ir.MarshalCanonical(rec.Value(account))
	if err != nil {
		return nil, fmt.Errorf("marshal record %s: %w", account.Short(), err)
	}
	return data, nil
}

// unmarshalRecord decodes a schema v2 record. Unknown fields are rejected.
func unmarshalRecord(data []byte) (ir.AccountID, ir.IdentityRecord, error) {
	var doc recordDoc
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return ir.AccountID{}, ir.IdentityRecord{}, fmt.Errorf("unmarshal record: %w", err)
	}

	account, err := ir.ParseAccountID(doc.Account)
	if err != nil {
		return ir.AccountID{}, ir.IdentityRecord{}, fmt.Errorf("unmarshal record: %w", err)
	}

	rec := ir.IdentityRecord{
		Owner:      doc.Owner,
		Attributes: make(ir.Attributes, len(doc.Attributes)),
		Claims:     make(map[uint64]ir.Claim, len(doc.Claims)),
		Seq:        doc.Seq,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
	for name, encoded := range doc.Attributes {
		v, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return ir.AccountID{}, ir.IdentityRecord{}, fmt.Errorf("unmarshal record: attribute %q: %w", name, err)
		}
		rec.Attributes[name] = v
	}
	for _, cd := range doc.Claims {
		claim := ir.Claim{
			ID:           cd.ID,
			Issuer:       cd.Issuer,
			Subject:      cd.Subject,
			IssuanceDate: cd.IssuanceDate,
			Valid:        cd.Valid,
		}
		if len(cd.Verifiers) > 0 {
			claim.Verifiers = cd.Verifiers
		}
		for _, hx := range cd.HashedInfo {
			h, err := ir.ParseHash(hx)
			if err != nil {
				return ir.AccountID{}, ir.IdentityRecord{}, fmt.Errorf("unmarshal record: claim %d: %w", cd.ID, err)
			}
			claim.HashedInfo = append(claim.HashedInfo, h)
		}
		rec.Claims[cd.ID] = claim
	}
	return account, rec, nil
}

// unmarshalLegacyRecord decodes the schema v1 record stored for account.
// A missing or zero owner means the account owns itself. Attribute names
// are NFC-normalised the way inbound messages are.
func unmarshalLegacyRecord(account ir.AccountID, data []byte) (ir.IdentityRecord, error) {
	if account.IsZero() {
		return ir.IdentityRecord{}, fmt.Errorf("unmarshal legacy record: zero account")
	}
	var doc legacyRecordDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return ir.IdentityRecord{}, fmt.Errorf("unmarshal legacy record: %w", err)
	}
	rec := ir.IdentityRecord{
		Owner:      doc.Owner,
		Attributes: make(ir.Attributes, len(doc.Attributes)),
		Claims:     map[uint64]ir.Claim{},
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
	if rec.Owner.IsZero() {
		rec.Owner = account
	}
	for name, v := range doc.Attributes {
		normalized := norm.NFC.String(name)
		if normalized == "" {
			return ir.IdentityRecord{}, fmt.Errorf("unmarshal legacy record: empty attribute name")
		}
		if _, dup := rec.Attributes[normalized]; dup {
			return ir.IdentityRecord{}, fmt.Errorf("unmarshal legacy record: attribute %q duplicates another name after normalisation", normalized)
		}
		rec.Attributes[normalized] = []byte(v)
	}
	return rec, nil
}

func marshalUint(n uint64) []byte {
	return []byte(strconv.FormatUint(n, 10))
}

func unmarshalUint(key string, data []byte) (uint64, error) {
	n, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("meta %s: %w", key, err)
	}
	return n, nil
}
