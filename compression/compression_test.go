package compression

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func compressible(n int) []byte {
	return bytes.Repeat([]byte("key=00000042 value=00001337;"), n/28+1)[:n]
}

func random(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestTypeNames(t *testing.T) {
	for _, typ := range []Type{None, Snappy, Zstd, S2} {
		parsed, err := ParseType(typ.String())
		require.NoError(t, err)
		require.Equal(t, typ, parsed)
	}
	parsed, err := ParseType("ZSTD")
	require.NoError(t, err)
	require.Equal(t, Zstd, parsed)

	_, err = ParseType("lz4")
	require.ErrorIs(t, err, ErrUnknownType)
	require.Equal(t, "unknown", Type(42).String())
}

func TestCompressorsRoundTrip(t *testing.T) {
	src := compressible(16 << 10)
	for _, cfg := range []Config{
		{Type: None},
		{Type: Snappy, MinReductionPercent: 12},
		{Type: S2, MinReductionPercent: 12},
		{Type: Zstd, MinReductionPercent: 8, ZstdLevel: ZstdFastest},
		{Type: Zstd, MinReductionPercent: 8, ZstdLevel: ZstdBest},
	} {
		t.Run(cfg.Type.String(), func(t *testing.T) {
			c, err := NewCompressor(cfg)
			require.NoError(t, err)
			require.Equal(t, cfg.Type, c.Type())

			out, kept, err := c.Compress(nil, src)
			require.NoError(t, err)
			require.Equal(t, cfg.Type != None, kept)
			if kept {
				require.Less(t, len(out), len(src))
			}

			if !kept {
				require.Equal(t, src, out)
				return
			}
			back, err := c.Decompress(nil, out)
			require.NoError(t, err)
			require.Equal(t, src, back)
		})
	}
}

func TestMinReductionFallsBackToRaw(t *testing.T) {
	src := random(t, 8<<10)
	for _, typ := range []Type{Snappy, S2, Zstd} {
		c, err := NewCompressor(Config{Type: typ, MinReductionPercent: 12})
		require.NoError(t, err)
		out, kept, err := c.Compress(nil, src)
		require.NoError(t, err)
		require.False(t, kept, typ.String())
		require.Equal(t, src, out)
	}
}

func TestCompressBlock(t *testing.T) {
	c, err := NewCompressor(DefaultConfig())
	require.NoError(t, err)

	// Small blocks are never compressed.
	small := compressible(100)
	out, typ, err := CompressBlock(c, nil, small)
	require.NoError(t, err)
	require.Equal(t, None, typ)
	require.Equal(t, small, out)

	big := compressible(64 << 10)
	out, typ, err = CompressBlock(c, nil, big)
	require.NoError(t, err)
	require.Equal(t, S2, typ)

	back, err := DecompressBlock(nil, out, typ)
	require.NoError(t, err)
	require.Equal(t, big, back)
}

func TestDecompressBlockEveryCodec(t *testing.T) {
	src := compressible(32 << 10)
	for _, typ := range []Type{Snappy, S2, Zstd} {
		c, err := NewCompressor(Config{Type: typ, ZstdLevel: ZstdDefault})
		require.NoError(t, err)
		out, got, err := CompressBlock(c, nil, src)
		require.NoError(t, err)
		require.Equal(t, typ, got)

		back, err := DecompressBlock(make([]byte, 0, len(src)), out, got)
		require.NoError(t, err)
		require.Equal(t, src, back)
	}
}

func TestUnknownType(t *testing.T) {
	_, err := NewCompressor(Config{Type: Type(99)})
	require.ErrorIs(t, err, ErrUnknownType)

	_, err = DecompressBlock(nil, []byte("x"), Type(99))
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestCorruptInput(t *testing.T) {
	garbage := []byte{0xff, 0xfe, 0xfd, 0xfc, 0x01, 0x02}
	for _, typ := range []Type{Snappy, S2, Zstd} {
		_, err := DecompressBlock(nil, garbage, typ)
		require.Error(t, err, typ.String())
	}
}
