// lsmcalc is a calculator for cascade-merge run slot and size estimation.
package main

import (
	"bufio"
	"fmt"
	"math/bits"
	"os"
	"strconv"
	"strings"

	"github.com/twlk9/lsmkv"
	"github.com/twlk9/lsmkv/sstable"
)

const (
	KiB = 1024
	MiB = KiB * 1024
	GiB = MiB * 1024
	TiB = GiB * 1024
)

type Config struct {
	MemtableSize int64 // Writes absorbed before a flush
	TotalWrites  int64 // Puts and deletes issued over the database lifetime
	UniqueKeys   int64 // Distinct keys among them, 0 means every write is unique
}

// slotRow describes one run slot after TotalWrites writes.
type slotRow struct {
	Slot     int
	Occupied bool
	Records  int64 // upper bound, assuming no key repeats inside the run
	FileSize int64
}

type layout struct {
	Flushes      int64
	Rows         []slotRow
	LiveRuns     int
	TotalRecords int64
	TotalBytes   int64
	Rewrites     float64 // average times a record is rewritten by merges
}

func main() {
	reader := bufio.NewReader(os.Stdin)
	cfg := Config{
		MemtableSize: int64(lsmkv.DefaultMemtableSize),
		TotalWrites:  1_000_000,
	}

	fmt.Println("Run Slot Layout Calculator")
	fmt.Println("==========================")
	fmt.Println("Press Enter to accept defaults shown in brackets.")
	fmt.Println()

	cfg.MemtableSize = promptCount(reader, "Memtable size (writes per flush)", cfg.MemtableSize)
	cfg.TotalWrites = promptCount(reader, "Total writes", cfg.TotalWrites)
	cfg.UniqueKeys = promptCount(reader, "Distinct keys (0 = all unique)", cfg.UniqueKeys)

	fmt.Println()
	printLayout(cfg, computeLayout(cfg))
}

func promptCount(reader *bufio.Reader, prompt string, defaultVal int64) int64 {
	fmt.Printf("%s [%s]: ", prompt, formatCount(defaultVal))
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return parseCount(input, defaultVal)
}

// parseCount accepts plain integers and K/M/G suffixes in powers of ten.
func parseCount(s string, defaultVal int64) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	multiplier := 1.0

	switch {
	case strings.HasSuffix(s, "G"):
		multiplier = 1e9
		s = strings.TrimSuffix(s, "G")
	case strings.HasSuffix(s, "M"):
		multiplier = 1e6
		s = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "K"):
		multiplier = 1e3
		s = strings.TrimSuffix(s, "K")
	}

	val, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || val < 0 {
		return defaultVal
	}
	return int64(val * multiplier)
}

// computeLayout models the binary-counter cascade: after f flushes, slot i
// is occupied exactly when bit i of f is set and then holds the output of
// 2^i flushes.
func computeLayout(cfg Config) layout {
	var l layout
	if cfg.MemtableSize <= 0 {
		return l
	}
	l.Flushes = cfg.TotalWrites / cfg.MemtableSize
	slots := bits.Len64(uint64(l.Flushes))

	for i := range slots {
		records := cfg.MemtableSize << i
		if cfg.UniqueKeys > 0 {
			records = min(records, cfg.UniqueKeys)
		}
		row := slotRow{
			Slot:     i,
			Occupied: l.Flushes&(1<<i) != 0,
			Records:  records,
			FileSize: sstable.FileSize(int(records)),
		}
		if row.Occupied {
			l.LiveRuns++
			l.TotalRecords += records
			l.TotalBytes += row.FileSize
		}
		l.Rows = append(l.Rows, row)
	}

	// Every carry rewrites the runs it passes through. Averaged over the
	// lifetime a record is rewritten about log2(flushes)/2 times.
	if l.Flushes > 1 {
		l.Rewrites = float64(bits.Len64(uint64(l.Flushes))-1) / 2
	}
	return l
}

func formatCount(n int64) string {
	switch {
	case n >= 1e9 && n%1e9 == 0:
		return fmt.Sprintf("%dG", n/1e9)
	case n >= 1e6 && n%1e6 == 0:
		return fmt.Sprintf("%dM", n/1e6)
	case n >= 1e3 && n%1e3 == 0:
		return fmt.Sprintf("%dK", n/1e3)
	default:
		return strconv.FormatInt(n, 10)
	}
}

func formatSize(bytes int64) string {
	switch {
	case bytes >= TiB:
		return fmt.Sprintf("%.1fTB", float64(bytes)/float64(TiB))
	case bytes >= GiB:
		return fmt.Sprintf("%.1fGB", float64(bytes)/float64(GiB))
	case bytes >= MiB:
		return fmt.Sprintf("%.1fMB", float64(bytes)/float64(MiB))
	case bytes >= KiB:
		return fmt.Sprintf("%.1fKB", float64(bytes)/float64(KiB))
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}

func printLayout(cfg Config, l layout) {
	fmt.Println("Run Slot Layout")
	fmt.Println("===============")
	fmt.Printf("Flushes: %d (%s writes, memtable %s)\n\n", l.Flushes, formatCount(cfg.TotalWrites), formatCount(cfg.MemtableSize))

	if len(l.Rows) == 0 {
		fmt.Println("No flush yet: everything is still in the memtable.")
		return
	}

	fmt.Printf("%-8s  %10s  %15s  %12s\n", "Slot", "Occupied", "Records (max)", "File Size")
	fmt.Printf("%-8s  %10s  %15s  %12s\n", "----", "--------", "-------------", "---------")
	for _, row := range l.Rows {
		occupied := "-"
		if row.Occupied {
			occupied = "yes"
		}
		fmt.Printf("%-8s  %10s  %15d  %12s\n", sstableName(row.Slot), occupied, row.Records, formatSize(row.FileSize))
	}
	fmt.Printf("%-8s  %10s  %15s  %12s\n", "----", "--------", "-------------", "---------")
	fmt.Printf("%-8s  %10d  %15d  %12s\n", "TOTAL", l.LiveRuns, l.TotalRecords, formatSize(l.TotalBytes))

	fmt.Printf("\nA lookup miss probes up to %d runs. Merges rewrite each record about %.1f times.\n",
		l.LiveRuns, l.Rewrites)
}

func sstableName(slot int) string {
	return strconv.Itoa(slot) + sstable.Extension
}
