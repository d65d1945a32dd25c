package lsmkv

import (
	"cmp"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/twlk9/lsmkv/directio"
	"github.com/twlk9/lsmkv/sstable"
)

// runName returns the file name of the run in slot.
func runName(slot int) string {
	return strconv.Itoa(slot) + sstable.Extension
}

// runSlot parses a run file name back into its slot.
func runSlot(name string) (int, bool) {
	base, ok := strings.CutSuffix(name, sstable.Extension)
	if !ok {
		return 0, false
	}
	slot, err := strconv.Atoi(base)
	if err != nil || slot < 0 || runName(slot) != name {
		return 0, false
	}
	return slot, true
}

// catalog is the ordered list of live runs, oldest added first.
type catalog struct {
	runs []string
}

func (c *catalog) contains(name string) bool {
	return slices.Contains(c.runs, name)
}

func (c *catalog) add(name string) {
	c.runs = append(c.runs, name)
}

func (c *catalog) remove(name string) {
	c.runs = slices.DeleteFunc(c.runs, func(r string) bool { return r == name })
}

// occupiedAbove reports whether any run sits in a slot higher than slot.
func (c *catalog) occupiedAbove(slot int) bool {
	for _, name := range c.runs {
		if s, ok := runSlot(name); ok && s > slot {
			return true
		}
	}
	return false
}

// newestFirst returns the runs in lookup order.
func (c *catalog) newestFirst() []string {
	out := slices.Clone(c.runs)
	slices.Reverse(out)
	return out
}

// superseded returns the runs that a newer run in a higher slot already
// absorbed. In a consistent catalog slots strictly decrease from oldest to
// newest, so any run older than a higher-slot run is stale.
func (c *catalog) superseded() []string {
	var stale []string
	highest := -1
	for _, name := range c.newestFirst() {
		slot, ok := runSlot(name)
		if !ok {
			continue
		}
		if slot < highest {
			stale = append(stale, name)
			continue
		}
		highest = slot
	}
	return stale
}

func (c *catalog) names() []string {
	return slices.Clone(c.runs)
}

type runFile struct {
	name    string
	slot    int
	created time.Time
}

// loadCatalog rebuilds the catalog from the run files in dir, ordered by
// creation time. Equal timestamps put the higher slot first: a higher slot
// always holds older data.
func loadCatalog(dir string) (*catalog, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, directio.Wrap("readdir", dir, err)
	}

	var files []runFile
	var skipped []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), sstable.Extension) {
			continue
		}
		slot, ok := runSlot(e.Name())
		if !ok {
			skipped = append(skipped, e.Name())
			continue
		}
		created, err := creationTime(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, nil, directio.Wrap("stat", filepath.Join(dir, e.Name()), err)
		}
		files = append(files, runFile{name: e.Name(), slot: slot, created: created})
	}

	slices.SortFunc(files, func(a, b runFile) int {
		if c := a.created.Compare(b.created); c != 0 {
			return c
		}
		return cmp.Compare(b.slot, a.slot)
	})

	c := &catalog{}
	for _, f := range files {
		c.add(f.name)
	}
	return c, skipped, nil
}
