package lsmkv

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/twlk9/lsmkv/directio"
	"github.com/twlk9/lsmkv/keys"
	"github.com/twlk9/lsmkv/memtable"
	"github.com/twlk9/lsmkv/sstable"
)

// flushLocked moves the memtable to disk by cascading it through the run
// slots. Slots behave like the digits of a binary counter: every occupied
// slot from 0 upward is merged into the accumulator, and the result lands in
// the first free slot. The merged runs are then retired.
// Must be called with db.mu held.
func (db *DB) flushLocked() error {
	acc := db.memtable.Entries(keys.MinKey, keys.MaxKey)
	if len(acc) == 0 {
		db.memtable = memtable.New(int(db.meta.MemtableSize))
		return nil
	}
	start := time.Now()
	flushed := len(acc)

	var superseded []string
	slot := 0
	for ; db.catalog.contains(runName(slot)); slot++ {
		name := runName(slot)
		r, err := db.files.Get(name)
		if err != nil {
			return err
		}
		older, err := r.ReadAll()
		if err != nil {
			db.logger.Error("Failed to read run for merge", "error", err, "run", name)
			return err
		}
		acc = keys.MergeKeepTombstones(acc, older)
		superseded = append(superseded, name)
	}

	// Nothing older sits below the new run, so deletes have nothing left to
	// shadow.
	bottom := !db.catalog.occupiedAbove(slot)
	if bottom {
		acc = keys.DropTombstones(acc)
	}

	name := runName(slot)
	if len(acc) > 0 {
		path := filepath.Join(db.path, name)
		err := sstable.Write(path, acc, sstable.WriterOpts{DirectIO: db.options.DirectIO, Logger: db.logger})
		if err != nil {
			db.logger.Error("Failed to write run", "error", err, "path", path)
			return err
		}
		db.catalog.add(name)
		db.meta.NextRunID++
	}

	for _, old := range superseded {
		db.retire(old)
	}
	if len(superseded) > 0 {
		if err := directio.SyncDir(db.path); err != nil {
			return err
		}
	}

	db.memtable = memtable.New(int(db.meta.MemtableSize))
	db.metrics.flushed(start, len(superseded), len(db.catalog.runs))
	db.logger.Debug("Flushed memtable",
		"entries", flushed,
		"run", name,
		"records", len(acc),
		"merged", len(superseded),
		"bottom", bottom,
		"duration", time.Since(start))
	return nil
}

// removeFile deletes run files. Tests replace it to simulate a failed delete.
var removeFile = os.Remove

// retire removes a run merged into a newer one: reader closed, cached pages
// dropped, file deleted, then out of the catalog. A file that cannot be
// deleted still leaves the catalog; its records live on in the newer run and
// the next open deletes it as superseded.
// Must be called with db.mu held.
func (db *DB) retire(name string) {
	db.files.Evict(name)
	dropped := db.pool.Drop(name)

	path := filepath.Join(db.path, name)
	err := removeFile(path)
	db.catalog.remove(name)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		db.logger.Error("Failed to delete retired run", "error", directio.Wrap("remove", path, err), "path", path)
		return
	}
	db.logger.Debug("Retired run", "run", name, "pages_dropped", dropped)
}

// removeSuperseded deletes runs left on disk by a flush that did not finish
// retiring its inputs. Must be called before the catalog is used.
func (db *DB) removeSuperseded() error {
	stale := db.catalog.superseded()
	for _, name := range stale {
		path := filepath.Join(db.path, name)
		if err := removeFile(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			db.logger.Error("Failed to delete superseded run", "error", err, "path", path)
			return directio.Wrap("remove", path, err)
		}
		db.catalog.remove(name)
		db.logger.Warn("Removed superseded run", "run", name)
	}
	if len(stale) > 0 {
		return directio.SyncDir(db.path)
	}
	return nil
}

// cleanupTempFiles removes temp files left behind by writes that never
// reached their rename.
func (db *DB) cleanupTempFiles() error {
	tmps, err := filepath.Glob(filepath.Join(db.path, "*"+directio.TempSuffix))
	if err != nil {
		return err
	}
	removed := 0
	for _, tmp := range tmps {
		if err := os.Remove(tmp); err != nil {
			db.logger.Warn("Failed to remove orphaned temp file", "file", tmp, "error", err)
			continue
		}
		removed++
		db.logger.Debug("Removed orphaned temp file", "file", tmp)
	}
	if removed > 0 {
		db.logger.Info("Cleaned up orphaned temp files", "count", removed)
	}
	return nil
}
