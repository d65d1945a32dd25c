package snapshot

import (
	"bytes"
	"errors"
	"maps"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twlk9/lsmkv/compression"
	"github.com/twlk9/lsmkv/keys"
)

type sliceSource []keys.KVPair

func (s sliceSource) Scan(lo, hi uint64) ([]keys.KVPair, error) {
	var out []keys.KVPair
	for _, p := range s {
		if p.Key >= lo && p.Key <= hi {
			out = append(out, p)
		}
	}
	return out, nil
}

type mapSink map[uint64]uint64

func (m mapSink) Put(key, value uint64) error {
	m[key] = value
	return nil
}

func records(n int) sliceSource {
	out := make(sliceSource, n)
	for i := range out {
		out[i] = keys.KVPair{Key: uint64(i) * 3, Value: uint64(i) % 17}
	}
	return out
}

func TestExportImportRoundTrip(t *testing.T) {
	src := records(10_000)
	for _, typ := range []compression.Type{compression.None, compression.Snappy, compression.S2, compression.Zstd} {
		t.Run(typ.String(), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Compression = compression.Config{Type: typ, MinReductionPercent: 5, ZstdLevel: compression.ZstdDefault}
			cfg.BlockRecords = 1000

			var buf bytes.Buffer
			exported, err := Export(&buf, src, cfg)
			require.NoError(t, err)
			require.Equal(t, 10_000, exported.Records)
			require.Equal(t, 10, exported.Blocks)
			if typ != compression.None {
				require.Less(t, exported.StoredBytes, exported.RawBytes)
			}

			sink := mapSink{}
			imported, err := Import(&buf, sink)
			require.NoError(t, err)
			require.Equal(t, exported, imported)

			want := map[uint64]uint64{}
			for _, p := range src {
				want[p.Key] = p.Value
			}
			require.Equal(t, want, map[uint64]uint64(sink))
		})
	}
}

func TestExportEmpty(t *testing.T) {
	var buf bytes.Buffer
	st, err := Export(&buf, sliceSource(nil), DefaultConfig())
	require.NoError(t, err)
	require.Zero(t, st.Records)

	sink := mapSink{}
	st, err = Import(&buf, sink)
	require.NoError(t, err)
	require.Zero(t, st.Records)
	require.Empty(t, sink)
}

func TestImportRejectsForeignStreams(t *testing.T) {
	_, err := Import(bytes.NewReader([]byte("definitely not a snapshot")), mapSink{})
	require.ErrorIs(t, err, ErrBadMagic)

	_, err = Import(bytes.NewReader([]byte("LSM")), mapSink{})
	require.ErrorIs(t, err, ErrBadMagic)

	_, err = Import(bytes.NewReader([]byte(magic+"\x07\x00")), mapSink{})
	require.ErrorIs(t, err, ErrBadVersion)
}

func TestImportDetectsCorruption(t *testing.T) {
	cfg := Config{Compression: compression.Config{Type: compression.None}, BlockRecords: 100}
	var buf bytes.Buffer
	_, err := Export(&buf, records(1000), cfg)
	require.NoError(t, err)
	stream := buf.Bytes()

	// The trailer is a zero byte and a two byte count; flip the last payload byte.
	flipped := slices.Clone(stream)
	flipped[len(flipped)-4] ^= 0xff
	_, err = Import(bytes.NewReader(flipped), mapSink{})
	require.ErrorIs(t, err, ErrCorrupt)
	require.ErrorIs(t, err, keys.ErrCorruption)

	_, err = Import(bytes.NewReader(stream[:len(stream)/2]), mapSink{})
	require.ErrorIs(t, err, ErrCorrupt)

	// Dropping the trailer count is caught too.
	_, err = Import(bytes.NewReader(stream[:len(stream)-2]), mapSink{})
	require.ErrorIs(t, err, ErrCorrupt)
}

type failingSink struct{ after int }

var errSinkFull = errors.New("sink full")

func (f *failingSink) Put(uint64, uint64) error {
	if f.after == 0 {
		return errSinkFull
	}
	f.after--
	return nil
}

func TestImportStopsOnSinkError(t *testing.T) {
	var buf bytes.Buffer
	_, err := Export(&buf, records(50), DefaultConfig())
	require.NoError(t, err)

	st, err := Import(&buf, &failingSink{after: 10})
	require.ErrorIs(t, err, errSinkFull)
	require.Equal(t, 10, st.Records)
}

func TestExportCoversKeyExtremes(t *testing.T) {
	src := sliceSource{{Key: keys.MinKey, Value: 1}, {Key: keys.MaxKey - 1, Value: 2}}
	var buf bytes.Buffer
	_, err := Export(&buf, src, DefaultConfig())
	require.NoError(t, err)

	sink := mapSink{}
	_, err = Import(&buf, sink)
	require.NoError(t, err)
	require.Equal(t, []uint64{keys.MinKey, keys.MaxKey - 1}, slices.Sorted(maps.Keys(sink)))
}
