package store

import (
	"context"
	"fmt"
	"math"

	"github.com/roach88/idreg/internal/ir"
)

// UpgradeReport describes what an Upgrade call did.
type UpgradeReport struct {
	From     int `json:"from"`
	To       int `json:"to"`
	Migrated int `json:"migrated"`
}

// Upgrade rewrites the persisted layout to ir.SchemaVersion.
//
// Upgrade is idempotent: a store already at the current version is left
// untouched, and a second call after a successful upgrade does nothing.
// Each step is a single atomic Apply, so an interrupted upgrade leaves the
// store at its previous version.
func (s *Store) Upgrade(ctx context.Context) (UpgradeReport, error) {
	from, err := s.SchemaVersion(ctx)
	if err != nil {
		return UpgradeReport{}, fmt.Errorf("upgrade: %w", err)
	}
	report := UpgradeReport{From: from, To: from}

	if from > ir.SchemaVersion {
		return report, fmt.Errorf("upgrade: schema version %d: %w", from, ErrUnsupportedSchema)
	}
	if from == ir.SchemaVersion {
		return report, nil
	}

	if from < 2 {
		n, err := s.migrateToV2(ctx)
		if err != nil {
			return report, err
		}
		report.Migrated += n
		report.To = 2
	}

	return report, nil
}

// migrateToV2 moves identity/<hex> records to record/<hex>, converting
// plain string attributes to bytes and assigning sequence ids in key order.
func (s *Store) migrateToV2(ctx context.Context) (int, error) {
	legacy, err := s.backend.Scan(ctx, prefixLegacy)
	if err != nil {
		return 0, fmt.Errorf("migrate to v2: %w", err)
	}
	nextSeq, err := s.readUint(ctx, keyNextSeq, 1)
	if err != nil {
		return 0, fmt.Errorf("migrate to v2: %w", err)
	}
	generation, err := s.readUint(ctx, keyGeneration, 0)
	if err != nil {
		return 0, fmt.Errorf("migrate to v2: %w", err)
	}

	batch := make([]Mutation, 0, 2*len(legacy)+3)
	for _, kv := range legacy {
		account, err := accountFromKey(kv.Key, prefixLegacy)
		if err != nil {
			return 0, fmt.Errorf("migrate to v2: key %q: %w", kv.Key, err)
		}
		rec, err := unmarshalLegacyRecord(account, kv.Value)
		if err != nil {
			return 0, fmt.Errorf("migrate to v2: %s: %w", kv.Key, err)
		}
		if nextSeq > math.MaxInt64 {
			return 0, fmt.Errorf("migrate to v2: sequence ids exhausted at %s", kv.Key)
		}
		rec.Seq = nextSeq
		nextSeq++

		data, err := marshalRecord(account, rec)
		if err != nil {
			return 0, fmt.Errorf("migrate to v2: %w", err)
		}
		batch = append(batch,
			Mutation{Key: recordKey(account), Value: data},
			Mutation{Key: legacyKey(account), Delete: true},
		)
	}
	batch = append(batch,
		Mutation{Key: keyNextSeq, Value: marshalUint(nextSeq)},
		Mutation{Key: keyGeneration, Value: marshalUint(generation + 1)},
		Mutation{Key: keySchemaVersion, Value: marshalUint(2)},
	)

	if err := s.backend.Apply(ctx, batch); err != nil {
		return 0, fmt.Errorf("migrate to v2: %w", err)
	}
	return len(legacy), nil
}
