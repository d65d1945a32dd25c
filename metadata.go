package lsmkv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/twlk9/lsmkv/directio"
)

const (
	metadataFileName = "metadata"
	metadataSize     = directio.BlockSize
	metadataFields   = 3
)

// Metadata is the state persisted across open and close.
type Metadata struct {
	MemtableSize int32
	NextRunID    int32 // runs written over the lifetime of the database
	NumElems     int32 // puts and deletes accepted
}

func (m Metadata) encode() []byte {
	buf := directio.AlignedBlock(metadataSize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(m.MemtableSize))
	binary.LittleEndian.PutUint32(buf[4:], uint32(m.NextRunID))
	binary.LittleEndian.PutUint32(buf[8:], uint32(m.NumElems))
	return buf
}

func decodeMetadata(buf []byte) (Metadata, error) {
	if len(buf) < 4*metadataFields {
		return Metadata{}, fmt.Errorf("%w: metadata is %d bytes", ErrCorruption, len(buf))
	}
	m := Metadata{
		MemtableSize: int32(binary.LittleEndian.Uint32(buf[0:])),
		NextRunID:    int32(binary.LittleEndian.Uint32(buf[4:])),
		NumElems:     int32(binary.LittleEndian.Uint32(buf[8:])),
	}
	if m.MemtableSize <= 0 || m.NextRunID < 0 {
		return Metadata{}, fmt.Errorf("%w: metadata holds memtable size %d, next run id %d", ErrCorruption, m.MemtableSize, m.NextRunID)
	}
	return m, nil
}

// readMetadata loads the metadata file of dir. The bool is false when the
// file does not exist.
func readMetadata(dir string, direct bool) (Metadata, bool, error) {
	path := filepath.Join(dir, metadataFileName)
	f, err := directio.Open(path, os.O_RDONLY, 0, direct)
	if errors.Is(err, fs.ErrNotExist) {
		return Metadata{}, false, nil
	}
	if err != nil {
		return Metadata{}, false, err
	}
	defer f.Close()

	buf := directio.AlignedBlock(metadataSize)
	n, err := f.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return Metadata{}, true, err
	}
	m, err := decodeMetadata(buf[:n])
	return m, true, err
}

// writeMetadata replaces the metadata file of dir with one synchronous write.
func writeMetadata(dir string, m Metadata, direct bool) error {
	return directio.WriteFileAtomic(filepath.Join(dir, metadataFileName), m.encode(), 0644, direct)
}
