package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"math"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/idreg/internal/ir"
)

type envelope struct {
	Version *int            `json:"version"`
	Action  *string         `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

type attributesField = *map[string]string

type registerPayload struct {
	Attributes attributesField `json:"attributes"`
}

type updatePayload struct {
	Subject    *ir.AccountID   `json:"subject"`
	Attributes attributesField `json:"attributes"`
}

type deletePayload struct {
	Subject *ir.AccountID `json:"subject"`
}

type transferPayload struct {
	Subject  *ir.AccountID `json:"subject"`
	NewOwner *ir.AccountID `json:"new_owner"`
}

type queryPayload struct {
	Target *ir.AccountID `json:"target"`
}

type issueClaimPayload struct {
	Subject      *ir.AccountID `json:"subject"`
	HashedInfo   *[]string     `json:"hashed_info"`
	IssuanceDate *int64        `json:"issuance_date"`
}

type setClaimStatusPayload struct {
	Subject *ir.AccountID `json:"subject"`
	ClaimID *uint64       `json:"claim_id"`
	Valid   *bool         `json:"valid"`
}

type verifyClaimPayload struct {
	Subject *ir.AccountID `json:"subject"`
	ClaimID *uint64       `json:"claim_id"`
}

type checkClaimPayload struct {
	Subject *ir.AccountID `json:"subject"`
	ClaimID *uint64       `json:"claim_id"`
	Hash    *string       `json:"hash"`
}

// Decode parses an inbound envelope into an Action.
// Every failure is an *ir.Error of kind DecodeError.
func Decode(raw []byte) (Action, error) {
	var env envelope
	if err := decodeStrict(raw, &env); err != nil {
		return nil, decodeErr("envelope: %v", err)
	}
	if env.Version == nil {
		return nil, decodeErr("envelope: missing version")
	}
	if *env.Version != ir.WireVersion {
		return nil, decodeErr("unsupported version %d (want %d)", *env.Version, ir.WireVersion)
	}
	if env.Action == nil {
		return nil, decodeErr("envelope: missing action")
	}
	if len(env.Payload) == 0 {
		return nil, decodeErr("envelope: missing payload")
	}

	switch kind := ActionKind(*env.Action); kind {
	case KindRegister:
		var p registerPayload
		if err := decodePayload(kind, env.Payload, &p); err != nil {
			return nil, err
		}
		attrs, err := decodeAttributes(kind, p.Attributes)
		if err != nil {
			return nil, err
		}
		return Register{Attributes: attrs}, nil

	case KindUpdate:
		var p updatePayload
		if err := decodePayload(kind, env.Payload, &p); err != nil {
			return nil, err
		}
		attrs, err := decodeAttributes(kind, p.Attributes)
		if err != nil {
			return nil, err
		}
		return Update{Subject: p.Subject, Attributes: attrs}, nil

	case KindDelete:
		var p deletePayload
		if err := decodePayload(kind, env.Payload, &p); err != nil {
			return nil, err
		}
		return Delete{Subject: p.Subject}, nil

	case KindTransfer:
		var p transferPayload
		if err := decodePayload(kind, env.Payload, &p); err != nil {
			return nil, err
		}
		if p.NewOwner == nil {
			return nil, missingField(kind, "new_owner")
		}
		if p.NewOwner.IsZero() {
			return nil, decodeErr("%s: new_owner is the zero identifier", kind)
		}
		return Transfer{Subject: p.Subject, NewOwner: *p.NewOwner}, nil

	case KindQuery:
		var p queryPayload
		if err := decodePayload(kind, env.Payload, &p); err != nil {
			return nil, err
		}
		return Query{Target: p.Target}, nil

	case KindIssueClaim:
		var p issueClaimPayload
		if err := decodePayload(kind, env.Payload, &p); err != nil {
			return nil, err
		}
		subject, err := requireSubject(kind, p.Subject)
		if err != nil {
			return nil, err
		}
		if p.HashedInfo == nil {
			return nil, missingField(kind, "hashed_info")
		}
		if p.IssuanceDate == nil {
			return nil, missingField(kind, "issuance_date")
		}
		hashes := make([]ir.Hash, 0, len(*p.HashedInfo))
		for i, s := range *p.HashedInfo {
			h, err := ir.ParseHash(s)
			if err != nil {
				return nil, decodeErr("%s: hashed_info[%d]: %v", kind, i, err)
			}
			hashes = append(hashes, h)
		}
		return IssueClaim{
			Subject:      subject,
			HashedInfo:   ir.NewHashSet(hashes),
			IssuanceDate: *p.IssuanceDate,
		}, nil

	case KindSetClaimStatus:
		var p setClaimStatusPayload
		if err := decodePayload(kind, env.Payload, &p); err != nil {
			return nil, err
		}
		subject, err := requireSubject(kind, p.Subject)
		if err != nil {
			return nil, err
		}
		id, err := requireClaimID(kind, p.ClaimID)
		if err != nil {
			return nil, err
		}
		if p.Valid == nil {
			return nil, missingField(kind, "valid")
		}
		return SetClaimStatus{Subject: subject, ClaimID: id, Valid: *p.Valid}, nil

	case KindVerifyClaim:
		var p verifyClaimPayload
		if err := decodePayload(kind, env.Payload, &p); err != nil {
			return nil, err
		}
		subject, err := requireSubject(kind, p.Subject)
		if err != nil {
			return nil, err
		}
		id, err := requireClaimID(kind, p.ClaimID)
		if err != nil {
			return nil, err
		}
		return VerifyClaim{Subject: subject, ClaimID: id}, nil

	case KindCheckClaim:
		var p checkClaimPayload
		if err := decodePayload(kind, env.Payload, &p); err != nil {
			return nil, err
		}
		if p.Subject == nil {
			return nil, missingField(kind, "subject")
		}
		id, err := requireClaimID(kind, p.ClaimID)
		if err != nil {
			return nil, err
		}
		if p.Hash == nil {
			return nil, missingField(kind, "hash")
		}
		h, err := ir.ParseHash(*p.Hash)
		if err != nil {
			return nil, decodeErr("%s: hash: %v", kind, err)
		}
		return CheckClaim{Subject: *p.Subject, ClaimID: id, Hash: h}, nil

	default:
		return nil, decodeErr("unknown action %q", *env.Action)
	}
}

// decodeStrict decodes exactly one JSON value, rejecting unknown fields
// and trailing data.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after JSON value")
	}
	return nil
}

func decodePayload(kind ActionKind, raw json.RawMessage, v any) error {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return decodeErr("%s: payload must be an object", kind)
	}
	if err := decodeStrict(raw, v); err != nil {
		return decodeErr("%s: %v", kind, err)
	}
	return nil
}

// decodeAttributes validates names and base64-decodes values. Names are
// NFC-normalised; two names that normalise to the same string are rejected.
func decodeAttributes(kind ActionKind, field attributesField) (ir.Attributes, error) {
	if field == nil {
		return nil, missingField(kind, "attributes")
	}
	attrs := make(ir.Attributes, len(*field))
	for name, encoded := range *field {
		if name == "" {
			return nil, decodeErr("%s: attribute name is empty", kind)
		}
		normalized := norm.NFC.String(name)
		if _, dup := attrs[normalized]; dup {
			return nil, decodeErr("%s: attribute %q duplicates another name after normalisation", kind, normalized)
		}
		value, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, decodeErr("%s: attribute %q: value is not base64: %v", kind, normalized, err)
		}
		attrs[normalized] = value
	}
	return attrs, nil
}

func requireSubject(kind ActionKind, subject *ir.AccountID) (ir.AccountID, error) {
	if subject == nil {
		return ir.AccountID{}, missingField(kind, "subject")
	}
	if subject.IsZero() {
		return ir.AccountID{}, decodeErr("%s: subject is the zero identifier", kind)
	}
	return *subject, nil
}

// requireClaimID bounds claim ids to the signed range replies can carry.
func requireClaimID(kind ActionKind, id *uint64) (uint64, error) {
	if id == nil {
		return 0, missingField(kind, "claim_id")
	}
	if *id > math.MaxInt64 {
		return 0, decodeErr("%s: claim_id %d out of range", kind, *id)
	}
	return *id, nil
}

func missingField(kind ActionKind, field string) *ir.Error {
	return decodeErr("%s: missing field %q", kind, field)
}

func decodeErr(format string, args ...any) *ir.Error {
	return ir.NewError(ir.KindDecodeError, format, args...)
}
