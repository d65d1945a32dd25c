package sstable

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/twlk9/lsmkv/directio"
	"github.com/twlk9/lsmkv/keys"
)

type WriterOpts struct {
	// DirectIO bypasses the page cache where the file system allows it.
	DirectIO bool
	Logger   *slog.Logger
}

// Write stores records, which must be strictly ascending by key, as a run at
// path. The run is written to a temporary file, synced and renamed into
// place, so path either holds the complete run or is left untouched.
func Write(path string, records []keys.KVPair, opts WriterOpts) error {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	}
	buf, err := Encode(records)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return directio.Wrap("mkdir", filepath.Dir(path), err)
	}
	if err := directio.WriteFileAtomic(path, buf, filePerm, opts.DirectIO); err != nil {
		opts.Logger.Error("Failed to write run", "error", err, "sstable", path)
		return err
	}
	opts.Logger.Debug("run written", "sstable", path, "records", len(records), "pages", NumPages(len(records)), "bytes", len(buf))
	return nil
}
