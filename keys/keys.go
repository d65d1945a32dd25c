package keys

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// MinKey is the smallest key in the domain.
	MinKey uint64 = 0
	// MaxKey is the largest key in the domain.
	MaxKey uint64 = math.MaxUint64
	// Tombstone is the reserved value marking a logical delete.
	Tombstone uint64 = math.MaxUint64 - 1

	// EntrySize is the encoded size of a KVPair on disk.
	EntrySize = 16
)

var (
	// ErrNotFound is returned when a key is absent or deleted
	ErrNotFound = errors.New("key not found")

	// ErrCorruption is returned when data corruption is detected
	ErrCorruption = errors.New("data corruption detected")

	// ErrReservedPair is returned when a caller tries to store NullPair
	ErrReservedPair = errors.New("pair is reserved as end-of-block marker")
)

// KVPair is the record stored in memtables, runs and cached pages.
type KVPair struct {
	Key   uint64
	Value uint64
}

// NullPair marks the end of the written records in a serialized block.
// It can never be stored as a real record.
var NullPair = KVPair{Key: MaxKey, Value: MaxKey}

// IsTombstone reports whether the pair marks a deleted key.
func (p KVPair) IsTombstone() bool {
	return p.Value == Tombstone
}

// IsNull reports whether the pair is the end-of-block sentinel.
func (p KVPair) IsNull() bool {
	return p == NullPair
}

func (p KVPair) String() string {
	if p.IsTombstone() {
		return fmt.Sprintf("(%d,<deleted>)", p.Key)
	}
	return fmt.Sprintf("(%d,%d)", p.Key, p.Value)
}

// Encode writes the pair into dst, which must hold at least EntrySize bytes.
func (p KVPair) Encode(dst []byte) {
	binary.LittleEndian.PutUint64(dst[0:8], p.Key)
	binary.LittleEndian.PutUint64(dst[8:16], p.Value)
}

// Decode reads a pair from the first EntrySize bytes of src.
func Decode(src []byte) KVPair {
	return KVPair{
		Key:   binary.LittleEndian.Uint64(src[0:8]),
		Value: binary.LittleEndian.Uint64(src[8:16]),
	}
}

// Merge returns the sorted union of two sorted, duplicate free sequences.
// When both contain a key the pair from newer wins. Tombstones are dropped,
// and a tombstone in newer also hides the older value for that key.
func Merge(newer, older []KVPair) []KVPair {
	return merge(newer, older, false)
}

// MergeKeepTombstones is Merge without tombstone suppression. Used when the
// result still sits on top of older data that a tombstone has to shadow.
func MergeKeepTombstones(newer, older []KVPair) []KVPair {
	return merge(newer, older, true)
}

func merge(newer, older []KVPair, keepTombstones bool) []KVPair {
	out := make([]KVPair, 0, len(newer)+len(older))
	emit := func(p KVPair) {
		if keepTombstones || !p.IsTombstone() {
			out = append(out, p)
		}
	}

	i, j := 0, 0
	for i < len(newer) && j < len(older) {
		switch {
		case newer[i].Key < older[j].Key:
			emit(newer[i])
			i++
		case older[j].Key < newer[i].Key:
			emit(older[j])
			j++
		default:
			emit(newer[i])
			i++
			j++
		}
	}
	for ; i < len(newer); i++ {
		emit(newer[i])
	}
	for ; j < len(older); j++ {
		emit(older[j])
	}
	return out
}

// DropTombstones filters deleted pairs out of s in place.
func DropTombstones(s []KVPair) []KVPair {
	out := s[:0]
	for _, p := range s {
		if !p.IsTombstone() {
			out = append(out, p)
		}
	}
	return out
}

// IsSorted reports whether s is strictly ascending by key.
func IsSorted(s []KVPair) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1].Key >= s[i].Key {
			return false
		}
	}
	return true
}
