// Package snapshot writes a logical dump of a database to a stream and loads
// it back.
//
// A snapshot is a header followed by framed blocks of records:
//
//	header  "LSMKVSNP" | version (1 byte) | codec (1 byte)
//	frame   rawLen uvarint | storedLen uvarint | codec (1 byte) |
//	        crc32 (4 bytes LE, over the stored bytes) | stored bytes
//	trailer rawLen 0 | record count uvarint
//
// Raw block contents are records encoded as in a run page.
package snapshot

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"

	"github.com/twlk9/lsmkv/compression"
	"github.com/twlk9/lsmkv/keys"
)

const (
	magic   = "LSMKVSNP"
	version = 1

	// DefaultBlockRecords is the number of records per frame.
	DefaultBlockRecords = 4096

	// maxBlockBytes bounds a frame so a corrupt length cannot force a huge
	// allocation.
	maxBlockBytes = 64 << 20
)

var crc32Table = crc32.MakeTable(crc32.Castagnoli)

var (
	ErrBadMagic   = errors.New("not a snapshot stream")
	ErrBadVersion = errors.New("unsupported snapshot version")
	// ErrCorrupt wraps keys.ErrCorruption.
	ErrCorrupt = fmt.Errorf("snapshot corrupt: %w", keys.ErrCorruption)
)

// Source yields the live records to export.
type Source interface {
	Scan(lo, hi uint64) ([]keys.KVPair, error)
}

// Sink receives imported records.
type Sink interface {
	Put(key, value uint64) error
}

type Config struct {
	Compression  compression.Config
	BlockRecords int
	Logger       *slog.Logger
}

func DefaultConfig() Config {
	return Config{
		Compression:  compression.DefaultConfig(),
		BlockRecords: DefaultBlockRecords,
	}
}

// Stats summarises one export or import.
type Stats struct {
	Records     int
	Blocks      int
	RawBytes    int64
	StoredBytes int64
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// Export writes every live record of src to w.
func Export(w io.Writer, src Source, cfg Config) (Stats, error) {
	var st Stats
	if cfg.BlockRecords <= 0 {
		cfg.BlockRecords = DefaultBlockRecords
	}
	if cfg.Logger == nil {
		cfg.Logger = discardLogger()
	}
	comp, err := compression.NewCompressor(cfg.Compression)
	if err != nil {
		return st, err
	}

	records, err := src.Scan(keys.MinKey, keys.MaxKey)
	if err != nil {
		return st, err
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(magic); err != nil {
		return st, err
	}
	if _, err := bw.Write([]byte{version, byte(cfg.Compression.Type)}); err != nil {
		return st, err
	}

	raw := make([]byte, 0, cfg.BlockRecords*keys.EntrySize)
	var stored []byte
	var hdr [2*binary.MaxVarintLen64 + 1 + 4]byte
	for start := 0; start < len(records); start += cfg.BlockRecords {
		block := records[start:min(start+cfg.BlockRecords, len(records))]
		raw = raw[:len(block)*keys.EntrySize]
		for i, p := range block {
			p.Encode(raw[i*keys.EntrySize:])
		}

		var codec compression.Type
		stored, codec, err = compression.CompressBlock(comp, stored[:0], raw)
		if err != nil {
			return st, err
		}

		n := binary.PutUvarint(hdr[:], uint64(len(raw)))
		n += binary.PutUvarint(hdr[n:], uint64(len(stored)))
		hdr[n] = byte(codec)
		n++
		binary.LittleEndian.PutUint32(hdr[n:], crc32.Checksum(stored, crc32Table))
		n += 4
		if _, err := bw.Write(hdr[:n]); err != nil {
			return st, err
		}
		if _, err := bw.Write(stored); err != nil {
			return st, err
		}

		st.Blocks++
		st.Records += len(block)
		st.RawBytes += int64(len(raw))
		st.StoredBytes += int64(len(stored))
	}

	n := binary.PutUvarint(hdr[:], 0)
	n += binary.PutUvarint(hdr[n:], uint64(st.Records))
	if _, err := bw.Write(hdr[:n]); err != nil {
		return st, err
	}
	if err := bw.Flush(); err != nil {
		return st, err
	}
	cfg.Logger.Info("snapshot exported", "records", st.Records, "blocks", st.Blocks,
		"raw_bytes", st.RawBytes, "stored_bytes", st.StoredBytes, "codec", cfg.Compression.Type.String())
	return st, nil
}

// Import reads a snapshot from r and puts every record into dst. Records are
// applied as they are decoded, so a failed import may leave dst partially
// loaded.
func Import(r io.Reader, dst Sink) (Stats, error) {
	var st Stats
	br := bufio.NewReader(r)

	var head [len(magic) + 2]byte
	if _, err := io.ReadFull(br, head[:]); err != nil {
		return st, fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	if string(head[:len(magic)]) != magic {
		return st, ErrBadMagic
	}
	if head[len(magic)] != version {
		return st, fmt.Errorf("%w: %d", ErrBadVersion, head[len(magic)])
	}

	var stored, raw []byte
	for {
		rawLen, err := binary.ReadUvarint(br)
		if err != nil {
			return st, fmt.Errorf("%w: reading frame: %v", ErrCorrupt, err)
		}
		if rawLen == 0 {
			count, err := binary.ReadUvarint(br)
			if err != nil {
				return st, fmt.Errorf("%w: reading trailer: %v", ErrCorrupt, err)
			}
			if int(count) != st.Records {
				return st, fmt.Errorf("%w: trailer counts %d records, read %d", ErrCorrupt, count, st.Records)
			}
			return st, nil
		}
		storedLen, err := binary.ReadUvarint(br)
		if err != nil {
			return st, fmt.Errorf("%w: reading frame: %v", ErrCorrupt, err)
		}
		if rawLen > maxBlockBytes || storedLen > maxBlockBytes || rawLen%keys.EntrySize != 0 {
			return st, fmt.Errorf("%w: frame sizes %d/%d", ErrCorrupt, rawLen, storedLen)
		}

		var fixed [5]byte
		if _, err := io.ReadFull(br, fixed[:]); err != nil {
			return st, fmt.Errorf("%w: reading frame: %v", ErrCorrupt, err)
		}
		codec := compression.Type(fixed[0])
		sum := binary.LittleEndian.Uint32(fixed[1:])

		if cap(stored) < int(storedLen) {
			stored = make([]byte, storedLen)
		}
		stored = stored[:storedLen]
		if _, err := io.ReadFull(br, stored); err != nil {
			return st, fmt.Errorf("%w: reading block: %v", ErrCorrupt, err)
		}
		if crc32.Checksum(stored, crc32Table) != sum {
			return st, fmt.Errorf("%w: checksum mismatch in block %d", ErrCorrupt, st.Blocks)
		}

		raw, err = compression.DecompressBlock(raw[:0], stored, codec)
		if err != nil {
			return st, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint64(len(raw)) != rawLen {
			return st, fmt.Errorf("%w: block %d decoded to %d bytes, want %d", ErrCorrupt, st.Blocks, len(raw), rawLen)
		}

		for off := 0; off < len(raw); off += keys.EntrySize {
			p := keys.Decode(raw[off:])
			if err := dst.Put(p.Key, p.Value); err != nil {
				return st, err
			}
			st.Records++
		}
		st.Blocks++
		st.RawBytes += int64(rawLen)
		st.StoredBytes += int64(storedLen)
	}
}
