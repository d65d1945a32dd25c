package sstable

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/twlk9/lsmkv/directio"
	"github.com/twlk9/lsmkv/keys"
)

// On-disk layout of a run:
//
//	index region  IndexBlockSize * k bytes
//	  word 0      data page count
//	  word 1      record count
//	  word 2..    last key of each page that holds records
//	data pages    PageSize bytes each, EntriesPerPage records per page,
//	              NullPair after the last record, zero padding after that
//
// All integers are little-endian uint64.
const (
	PageSize       = 4096
	IndexBlockSize = 4096
	EntriesPerPage = PageSize / keys.EntrySize

	wordSize     = 8
	headerWords  = 2
	Extension    = ".sst"
	filePerm     = 0644
)

var ErrUnsorted = errors.New("records not strictly ascending by key")

// NumPages returns the data page count for a run of n records. There is
// always room for the trailing NullPair, so a multiple of EntriesPerPage
// gets one extra page.
func NumPages(n int) int {
	return n/EntriesPerPage + 1
}

// recordPages is the number of pages that hold at least one record.
func recordPages(n int) int {
	return (n + EntriesPerPage - 1) / EntriesPerPage
}

// IndexSize returns the size of the index region for a run of n records.
func IndexSize(n int) int {
	return directio.RoundUp((headerWords+recordPages(n))*wordSize, IndexBlockSize)
}

// FileSize returns the on-disk size of a run of n records.
func FileSize(n int) int64 {
	return int64(IndexSize(n)) + int64(NumPages(n))*PageSize
}

// Encode serialises records into a block-aligned buffer laid out as above.
func Encode(records []keys.KVPair) ([]byte, error) {
	if !keys.IsSorted(records) {
		return nil, ErrUnsorted
	}
	n := len(records)
	indexSize := IndexSize(n)
	buf := directio.AlignedBlock(int(FileSize(n)))

	binary.LittleEndian.PutUint64(buf[0:], uint64(NumPages(n)))
	binary.LittleEndian.PutUint64(buf[wordSize:], uint64(n))

	data := buf[indexSize:]
	for i, p := range records {
		if p.IsNull() {
			return nil, fmt.Errorf("%w at position %d", keys.ErrReservedPair, i)
		}
		p.Encode(data[i*keys.EntrySize:])
		if i%EntriesPerPage == EntriesPerPage-1 || i == n-1 {
			word := headerWords + i/EntriesPerPage
			binary.LittleEndian.PutUint64(buf[word*wordSize:], p.Key)
		}
	}
	keys.NullPair.Encode(data[n*keys.EntrySize:])
	return buf, nil
}

// header is the decoded start of the index region.
type header struct {
	numPages   int
	numEntries int
}

func decodeHeader(b []byte) header {
	return header{
		numPages:   int(binary.LittleEndian.Uint64(b[0:])),
		numEntries: int(binary.LittleEndian.Uint64(b[wordSize:])),
	}
}

func (h header) validate(size int64) error {
	if h.numEntries < 0 || h.numPages != NumPages(h.numEntries) {
		return fmt.Errorf("%w: header claims %d pages for %d records", keys.ErrCorruption, h.numPages, h.numEntries)
	}
	if want := FileSize(h.numEntries); size < want {
		return fmt.Errorf("%w: file is %d bytes, header needs %d", keys.ErrCorruption, size, want)
	}
	return nil
}

// decodeIndex reads the per-page samples out of the index region.
func decodeIndex(region []byte, n int) ([]uint64, error) {
	index := make([]uint64, recordPages(n))
	for i := range index {
		index[i] = binary.LittleEndian.Uint64(region[(headerWords+i)*wordSize:])
		if i > 0 && index[i] <= index[i-1] {
			return nil, fmt.Errorf("%w: index samples out of order at page %d", keys.ErrCorruption, i)
		}
	}
	return index, nil
}

// decodePage fills dst with the count records of a raw page and checks the
// sentinel when the page is not full.
func decodePage(dst []keys.KVPair, raw []byte, count int) ([]keys.KVPair, error) {
	dst = dst[:0]
	for i := 0; i < count; i++ {
		dst = append(dst, keys.Decode(raw[i*keys.EntrySize:]))
	}
	if count < EntriesPerPage && !keys.Decode(raw[count*keys.EntrySize:]).IsNull() {
		return nil, fmt.Errorf("%w: missing end-of-block marker", keys.ErrCorruption)
	}
	return dst, nil
}
