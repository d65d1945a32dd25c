package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/twlk9/lsmkv"
	"github.com/twlk9/lsmkv/bufferpool"
	"github.com/twlk9/lsmkv/compression"
	"github.com/twlk9/lsmkv/keys"
	"github.com/twlk9/lsmkv/snapshot"
	"github.com/twlk9/lsmkv/sstable"
)

const version = "1.0.0"

// maxDump bounds the records printed by dump and scan.
const maxDump = 1000

func main() {
	flag.Usage = printUsage

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	commands := map[string]func([]string) error{
		"info":   infoCommand,
		"runs":   runsCommand,
		"dump":   dumpCommand,
		"verify": verifyCommand,
		"get":    getCommand,
		"put":    putCommand,
		"del":    delCommand,
		"scan":   scanCommand,
		"export": exportCommand,
		"import": importCommand,
	}

	switch command {
	case "version":
		fmt.Printf("lsmkv-cli version %s\n", version)
	case "help":
		printUsage()
	default:
		run, ok := commands[command]
		if !ok {
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
			printUsage()
			os.Exit(1)
		}
		if err := run(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

func printUsage() {
	fmt.Printf(`lsmkv-cli - Command line tool for inspecting and editing lsmkv databases

Usage:
  lsmkv-cli <command> [options]

Commands:
  info <db_path>                        Show metadata, runs and buffer pool settings
  runs <db_path>                        List runs, newest first, with sizes
  dump <db_path> <slot>                 Dump the records of one run
  verify <db_path>                      Check every run decodes and is sorted
  get <db_path> <key>                   Print the value of a key
  put <db_path> <key> <value>           Write a key
  del <db_path> <key>                   Delete a key
  scan <db_path> <lo> <hi>              Print live pairs with lo <= key <= hi
  export [-codec s2] <db_path> <file>   Write a compressed snapshot of the database
  import <db_path> <file>               Load a snapshot into the database
  version                               Show version information
  help                                  Show this help message

Options for commands that open the database:
  -policy clock|lru                     Page replacement policy (default clock)
  -memtable N                           Memtable budget when creating a database

Examples:
  lsmkv-cli put /path/to/database 42 4200
  lsmkv-cli scan /path/to/database 0 100
  lsmkv-cli export -codec zstd /path/to/database backup.snap

`)
}

// dbFlags parses the options shared by commands that open the database.
func dbFlags(name string, args []string, extra func(*flag.FlagSet)) (*flag.FlagSet, *lsmkv.Options, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	policy := fs.String("policy", "clock", "page replacement policy")
	memtable := fs.Int("memtable", lsmkv.DefaultMemtableSize, "memtable budget for new databases")
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	p, err := bufferpool.ParsePolicy(*policy)
	if err != nil {
		return nil, nil, err
	}
	opts := lsmkv.DefaultOptions()
	opts.Policy = p
	opts.MemtableSize = *memtable
	return fs, opts, nil
}

// openDB opens an existing database, or creates it when create is set.
func openDB(path string, opts *lsmkv.Options, create bool) (*lsmkv.DB, error) {
	if !create {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("database directory does not exist: %s", path)
		}
	}
	opts.Path = path
	opts.CreateIfMissing = create
	db, err := lsmkv.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func parseKey(s string) (uint64, error) {
	k, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid key %q: %w", s, err)
	}
	return k, nil
}

func infoCommand(args []string) error {
	fs, opts, err := dbFlags("info", args, nil)
	if err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("info command requires database path")
	}
	db, err := openDB(fs.Arg(0), opts, false)
	if err != nil {
		return err
	}
	defer db.Close()

	st := db.Stats()
	fmt.Printf("Database: %s\n", db.Path())
	fmt.Printf("  Memtable size:   %d\n", st.Metadata.MemtableSize)
	fmt.Printf("  Runs written:    %d\n", st.Metadata.NextRunID)
	fmt.Printf("  Writes accepted: %d\n", st.Metadata.NumElems)
	fmt.Printf("  Live runs:       %d\n", st.Runs)
	fmt.Printf("Buffer pool:\n")
	fmt.Printf("  Policy:          %s\n", st.BufferPool.Policy)
	fmt.Printf("  Directory:       %d slots (max %d)\n", st.BufferPool.CurrCapacity, st.BufferPool.MaxCapacity)
	return nil
}

func runsCommand(args []string) error {
	fs, opts, err := dbFlags("runs", args, nil)
	if err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("runs command requires database path")
	}
	db, err := openDB(fs.Arg(0), opts, false)
	if err != nil {
		return err
	}
	defer db.Close()

	runs := db.Runs()
	if len(runs) == 0 {
		fmt.Println("No runs found in database")
		return nil
	}

	fmt.Printf("Database: %s\n", db.Path())
	fmt.Printf("Total runs: %d\n\n", len(runs))
	fmt.Printf("%-10s %10s %8s %12s\n", "Run", "Records", "Pages", "Size")
	for i := len(runs) - 1; i >= 0; i-- {
		path := filepath.Join(db.Path(), runs[i])
		r, err := sstable.OpenReader(path, sstable.ReaderOpts{})
		if err != nil {
			return fmt.Errorf("failed to open run %s: %w", runs[i], err)
		}
		fmt.Printf("%-10s %10d %8d %12s\n", runs[i], r.NumEntries(), r.NumPages(),
			formatBytes(uint64(sstable.FileSize(r.NumEntries()))))
		r.Close()
	}
	return nil
}

func dumpCommand(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("dump command requires database path and slot")
	}
	slot, err := strconv.Atoi(args[1])
	if err != nil || slot < 0 {
		return fmt.Errorf("invalid slot: %s", args[1])
	}
	path := filepath.Join(args[0], strconv.Itoa(slot)+sstable.Extension)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("run file does not exist: %s", path)
	}

	r, err := sstable.OpenReader(path, sstable.ReaderOpts{})
	if err != nil {
		return fmt.Errorf("failed to open run: %w", err)
	}
	defer r.Close()

	fmt.Printf("Run: %s\n", path)
	fmt.Printf("Records: %d in %d pages (%s)\n\n", r.NumEntries(), r.NumPages(),
		formatBytes(uint64(sstable.FileSize(r.NumEntries()))))

	records, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read run: %w", err)
	}
	fmt.Printf("%-8s %-22s %-22s %s\n", "Index", "Key", "Value", "Type")
	fmt.Printf("%s\n", "----------------------------------------------------------------")
	for i, p := range records {
		if i >= maxDump {
			fmt.Printf("... (showing first %d entries of %d)\n", maxDump, len(records))
			break
		}
		kind, value := "SET", strconv.FormatUint(p.Value, 10)
		if p.IsTombstone() {
			kind, value = "DELETE", "-"
		}
		fmt.Printf("%-8d %-22d %-22s %s\n", i, p.Key, value, kind)
	}
	return nil
}

func verifyCommand(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("verify command requires database path")
	}
	dbPath := args[0]
	opts := lsmkv.DefaultOptions()
	db, err := openDB(dbPath, opts, false)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Printf("Verifying database integrity: %s\n", dbPath)
	total := 0
	for _, name := range db.Runs() {
		records, err := sstable.Read(filepath.Join(dbPath, name), sstable.ReaderOpts{})
		if err != nil {
			return fmt.Errorf("run %s: %w", name, err)
		}
		if !keys.IsSorted(records) {
			return fmt.Errorf("run %s: %w", name, lsmkv.ErrUnsorted)
		}
		total += len(records)
		fmt.Printf("  %-10s %d records\n", name, len(records))
	}

	live, err := db.Scan(keys.MinKey, keys.MaxKey)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	fmt.Printf("✓ Successfully verified %d records in %d runs, %d live keys\n", total, len(db.Runs()), len(live))
	return nil
}

func getCommand(args []string) error {
	fs, opts, err := dbFlags("get", args, nil)
	if err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return fmt.Errorf("get command requires database path and key")
	}
	key, err := parseKey(fs.Arg(1))
	if err != nil {
		return err
	}
	db, err := openDB(fs.Arg(0), opts, false)
	if err != nil {
		return err
	}
	defer db.Close()

	v, err := db.Get(key)
	if errors.Is(err, lsmkv.ErrNotFound) {
		return fmt.Errorf("key %d not found", key)
	}
	if err != nil {
		return err
	}
	fmt.Println(v)
	return nil
}

func putCommand(args []string) error {
	fs, opts, err := dbFlags("put", args, nil)
	if err != nil {
		return err
	}
	if fs.NArg() < 3 {
		return fmt.Errorf("put command requires database path, key and value")
	}
	key, err := parseKey(fs.Arg(1))
	if err != nil {
		return err
	}
	value, err := strconv.ParseUint(fs.Arg(2), 0, 64)
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", fs.Arg(2), err)
	}
	db, err := openDB(fs.Arg(0), opts, true)
	if err != nil {
		return err
	}
	if err := db.Put(key, value); err != nil {
		db.Close()
		return err
	}
	return db.Close()
}

func delCommand(args []string) error {
	fs, opts, err := dbFlags("del", args, nil)
	if err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return fmt.Errorf("del command requires database path and key")
	}
	key, err := parseKey(fs.Arg(1))
	if err != nil {
		return err
	}
	db, err := openDB(fs.Arg(0), opts, false)
	if err != nil {
		return err
	}
	if err := db.Delete(key); err != nil {
		db.Close()
		return err
	}
	return db.Close()
}

func scanCommand(args []string) error {
	fs, opts, err := dbFlags("scan", args, nil)
	if err != nil {
		return err
	}
	if fs.NArg() < 3 {
		return fmt.Errorf("scan command requires database path, lo and hi")
	}
	lo, err := parseKey(fs.Arg(1))
	if err != nil {
		return err
	}
	hi, err := parseKey(fs.Arg(2))
	if err != nil {
		return err
	}
	db, err := openDB(fs.Arg(0), opts, false)
	if err != nil {
		return err
	}
	defer db.Close()

	pairs, err := db.Scan(lo, hi)
	if err != nil {
		return err
	}
	for i, p := range pairs {
		if i >= maxDump {
			fmt.Printf("... (showing first %d of %d pairs)\n", maxDump, len(pairs))
			break
		}
		fmt.Printf("%d\t%d\n", p.Key, p.Value)
	}
	return nil
}

func exportCommand(args []string) error {
	var codec string
	fs, opts, err := dbFlags("export", args, func(fs *flag.FlagSet) {
		fs.StringVar(&codec, "codec", "s2", "block compression: none, snappy, s2 or zstd")
	})
	if err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return fmt.Errorf("export command requires database path and output file")
	}
	t, err := compression.ParseType(codec)
	if err != nil {
		return err
	}
	cfg := snapshot.DefaultConfig()
	cfg.Compression.Type = t

	db, err := openDB(fs.Arg(0), opts, false)
	if err != nil {
		return err
	}
	defer db.Close()

	f, err := os.Create(fs.Arg(1))
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	st, err := snapshot.Export(w, db, cfg)
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(fs.Arg(1))
		return fmt.Errorf("export failed: %w", err)
	}
	fmt.Printf("Exported %d records in %d blocks (%s raw, %s stored, %s)\n",
		st.Records, st.Blocks, formatBytes(uint64(st.RawBytes)), formatBytes(uint64(st.StoredBytes)), t)
	return nil
}

func importCommand(args []string) error {
	fs, opts, err := dbFlags("import", args, nil)
	if err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return fmt.Errorf("import command requires database path and input file")
	}
	f, err := os.Open(fs.Arg(1))
	if err != nil {
		return err
	}
	defer f.Close()

	db, err := openDB(fs.Arg(0), opts, true)
	if err != nil {
		return err
	}
	st, err := snapshot.Import(f, db)
	if cerr := db.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	fmt.Printf("Imported %d records from %d blocks\n", st.Records, st.Blocks)
	return nil
}

// Helper functions for formatting output

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
