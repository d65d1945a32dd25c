// Package compression wraps the klauspost/compress codecs behind a single
// block interface. Snapshots use it to shrink framed record blocks.
package compression

import (
	"errors"
	"fmt"
	"strings"
)

// Type identifies a codec. The value is what gets written in block headers.
type Type uint8

const (
	None Type = iota
	Snappy
	Zstd
	S2
)

var ErrUnknownType = errors.New("unknown compression type")

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case Snappy:
		return "snappy"
	case Zstd:
		return "zstd"
	case S2:
		return "s2"
	default:
		return "unknown"
	}
}

// ParseType maps a codec name to its Type.
func ParseType(s string) (Type, error) {
	for t := None; t <= S2; t++ {
		if strings.EqualFold(s, t.String()) {
			return t, nil
		}
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

type Config struct {
	Type Type

	// MinReductionPercent is the smallest size reduction worth keeping. A
	// block that shrinks less is stored raw.
	MinReductionPercent uint8

	// ZstdLevel is only read when Type is Zstd.
	ZstdLevel ZstdLevel
}

// DefaultConfig is S2 with a 12% threshold.
func DefaultConfig() Config {
	return Config{
		Type:                S2,
		MinReductionPercent: 12,
		ZstdLevel:           ZstdDefault,
	}
}

// Compressor compresses and decompresses whole blocks.
type Compressor interface {
	// Compress returns the encoded block and whether compression was kept.
	Compress(dst, src []byte) ([]byte, bool, error)
	Decompress(dst, src []byte) ([]byte, error)
	Type() Type
}

func NewCompressor(config Config) (Compressor, error) {
	switch config.Type {
	case None:
		return noneCompressor{}, nil
	case Snappy:
		return NewSnappyCompressor(config.MinReductionPercent), nil
	case Zstd:
		return NewZstdCompressor(config.MinReductionPercent, config.ZstdLevel), nil
	case S2:
		return NewS2Compressor(config.MinReductionPercent), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, config.Type)
	}
}

type noneCompressor struct{}

func (noneCompressor) Compress(dst, src []byte) ([]byte, bool, error) {
	return copyInto(dst, src), false, nil
}

func (noneCompressor) Decompress(dst, src []byte) ([]byte, error) {
	return copyInto(dst, src), nil
}

func (noneCompressor) Type() Type { return None }

// copyInto copies src into dst, growing dst if it is too small.
func copyInto(dst, src []byte) []byte {
	if cap(dst) < len(src) {
		dst = make([]byte, len(src))
	}
	dst = dst[:len(src)]
	copy(dst, src)
	return dst
}

// worthKeeping reports whether compressed is at least minReduction percent
// smaller than src.
func worthKeeping(src, compressed []byte, minReduction uint8) bool {
	if minReduction == 0 || len(src) == 0 {
		return true
	}
	return (len(src)-len(compressed))*100/len(src) >= int(minReduction)
}

// minCompressionSize is the block size below which encoder overhead is not
// worth paying.
const minCompressionSize = 1024

// CompressBlock compresses src and returns the codec that must be used to
// read it back. Small or incompressible blocks come back as None.
func CompressBlock(c Compressor, dst, src []byte) ([]byte, Type, error) {
	if len(src) < minCompressionSize {
		return copyInto(dst, src), None, nil
	}
	out, kept, err := c.Compress(dst, src)
	if err != nil {
		return nil, None, err
	}
	if !kept {
		return out, None, nil
	}
	return out, c.Type(), nil
}

// DecompressBlock decodes a block written by CompressBlock.
func DecompressBlock(dst, src []byte, t Type) ([]byte, error) {
	switch t {
	case None:
		return copyInto(dst, src), nil
	case Snappy:
		return DecompressSnappy(dst, src)
	case Zstd:
		return DecompressZstd(dst, src)
	case S2:
		return DecompressS2(dst, src)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, t)
	}
}
