package lsmkv

import (
	"errors"
	"maps"
	"math/rand"
	"slices"
	"testing"

	"github.com/twlk9/lsmkv/keys"
)

// StateValidator mirrors every write in a map and checks the database
// against it.
type StateValidator struct {
	db        *DB
	t         *testing.T
	knownData map[uint64]uint64 // live keys
	deleted   map[uint64]bool   // keys whose last write was a delete
}

// NewStateValidator creates a new state validator for a database
func NewStateValidator(t *testing.T, db *DB) *StateValidator {
	return &StateValidator{
		db:        db,
		t:         t,
		knownData: make(map[uint64]uint64),
		deleted:   make(map[uint64]bool),
	}
}

// TrackPut records a put operation for later validation
func (sv *StateValidator) TrackPut(key, value uint64) {
	sv.knownData[key] = value
	delete(sv.deleted, key)
}

// TrackDelete records a delete operation for later validation
func (sv *StateValidator) TrackDelete(key uint64) {
	delete(sv.knownData, key)
	sv.deleted[key] = true
}

// Expected returns the tracked live data in key order.
func (sv *StateValidator) Expected() []keys.KVPair {
	out := make([]keys.KVPair, 0, len(sv.knownData))
	for _, k := range slices.Sorted(maps.Keys(sv.knownData)) {
		out = append(out, keys.KVPair{Key: k, Value: sv.knownData[k]})
	}
	return out
}

// ValidateConsistency performs every check below.
func (sv *StateValidator) ValidateConsistency() {
	sv.t.Helper()
	sv.validateAllDataPresent()
	sv.validateDeletesHidden()
	sv.validateScan()
}

// validateAllDataPresent ensures all tracked data is still in the database
func (sv *StateValidator) validateAllDataPresent() {
	sv.t.Helper()
	for key, expected := range sv.knownData {
		actual, err := sv.db.Get(key)
		if err != nil {
			sv.t.Errorf("Key %d should exist but got error: %v", key, err)
			continue
		}
		if expected != actual {
			sv.t.Errorf("Key %d: expected %d, got %d", key, expected, actual)
		}
	}
}

// validateDeletesHidden ensures deleted keys stay deleted
func (sv *StateValidator) validateDeletesHidden() {
	sv.t.Helper()
	for key := range sv.deleted {
		if v, err := sv.db.Get(key); !errors.Is(err, ErrNotFound) {
			sv.t.Errorf("Deleted key %d: expected ErrNotFound, got %d, %v", key, v, err)
		}
	}
}

// validateScan checks a full scan returns exactly the tracked data: nothing
// missing, nothing duplicated, no phantom keys.
func (sv *StateValidator) validateScan() {
	sv.t.Helper()
	got, err := sv.db.Scan(keys.MinKey, keys.MaxKey)
	if err != nil {
		sv.t.Errorf("Scan failed: %v", err)
		return
	}
	want := sv.Expected()
	if len(got) != len(want) {
		sv.t.Errorf("Scan returned %d pairs, expected %d", len(got), len(want))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Key >= got[i].Key {
			sv.t.Errorf("Scan out of order at %d: %v then %v", i, got[i-1], got[i])
		}
	}
	for _, p := range got {
		expected, ok := sv.knownData[p.Key]
		if !ok {
			sv.t.Errorf("Found phantom key %d that should not exist", p.Key)
			continue
		}
		if expected != p.Value {
			sv.t.Errorf("Scan key %d: expected %d, got %d", p.Key, expected, p.Value)
		}
	}
}

// RandomDataGenerator provides deterministic random operations
type RandomDataGenerator struct {
	rng      *rand.Rand
	keySpace uint64
}

// NewRandomDataGenerator creates a generator drawing keys from [0, keySpace)
func NewRandomDataGenerator(seed int64, keySpace uint64) *RandomDataGenerator {
	return &RandomDataGenerator{
		rng:      rand.New(rand.NewSource(seed)),
		keySpace: keySpace,
	}
}

// Operation represents a database operation for property-based testing
type Operation struct {
	Type  OperationType
	Key   uint64
	Value uint64
}

type OperationType int

const (
	OpPut OperationType = iota
	OpGet
	OpDelete
)

// Next returns one random operation. Values stay clear of the reserved
// tombstone and sentinel values.
func (rdg *RandomDataGenerator) Next() Operation {
	key := rdg.rng.Uint64() % rdg.keySpace
	switch rdg.rng.Intn(5) {
	case 0, 1, 2:
		return Operation{Type: OpPut, Key: key, Value: rdg.rng.Uint64() >> 1}
	case 3:
		return Operation{Type: OpGet, Key: key}
	default:
		return Operation{Type: OpDelete, Key: key}
	}
}

// PropertyBasedTester runs property-based tests on a database
type PropertyBasedTester struct {
	db        *DB
	validator *StateValidator
	generator *RandomDataGenerator
	t         *testing.T
}

// NewPropertyBasedTester creates a new property-based tester
func NewPropertyBasedTester(t *testing.T, db *DB, seed int64, keySpace uint64) *PropertyBasedTester {
	return &PropertyBasedTester{
		db:        db,
		validator: NewStateValidator(t, db),
		generator: NewRandomDataGenerator(seed, keySpace),
		t:         t,
	}
}

// RunRandomOperationSequence executes a sequence of random operations,
// validating consistency every checkEvery operations and at the end.
func (pbt *PropertyBasedTester) RunRandomOperationSequence(numOperations, checkEvery int) {
	pbt.t.Helper()
	for i := range numOperations {
		op := pbt.generator.Next()
		switch op.Type {
		case OpPut:
			if err := pbt.db.Put(op.Key, op.Value); err != nil {
				pbt.t.Fatalf("Put operation failed at step %d: %v", i, err)
			}
			pbt.validator.TrackPut(op.Key, op.Value)

		case OpGet:
			v, err := pbt.db.Get(op.Key)
			expected, live := pbt.validator.knownData[op.Key]
			switch {
			case live && (err != nil || v != expected):
				pbt.t.Errorf("Get %d at step %d: expected %d, got %d, %v", op.Key, i, expected, v, err)
			case !live && !errors.Is(err, ErrNotFound):
				pbt.t.Errorf("Get %d at step %d: expected ErrNotFound, got %d, %v", op.Key, i, v, err)
			}

		case OpDelete:
			if err := pbt.db.Delete(op.Key); err != nil {
				pbt.t.Fatalf("Delete operation failed at step %d: %v", i, err)
			}
			pbt.validator.TrackDelete(op.Key)
		}

		if checkEvery > 0 && i%checkEvery == 0 {
			pbt.validator.ValidateConsistency()
		}
	}
	pbt.validator.ValidateConsistency()
}
