package bufferpool

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedPolicy is returned for a replacement policy that has no
// implementation.
var ErrUnsupportedPolicy = errors.New("unsupported replacement policy")

// PageID names one page of one run.
type PageID struct {
	Run   string
	Index int
}

func (id PageID) String() string {
	return fmt.Sprintf("%s#%d", id.Run, id.Index)
}

// Policy selects the page replacement algorithm.
type Policy int

const (
	Clock Policy = iota
	LRU
)

func (p Policy) String() string {
	switch p {
	case Clock:
		return "clock"
	case LRU:
		return "lru"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy maps "clock" or "lru" (any case) to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "clock":
		return Clock, nil
	case "lru":
		return LRU, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedPolicy, s)
}

// Replacer decides which cached page to give up when the pool is full.
type Replacer interface {
	// RecordAccess marks id as used, starting to track it if needed.
	RecordAccess(id PageID)
	// Evict chooses a victim and stops tracking it.
	Evict() (PageID, bool)
	// Remove stops tracking id without choosing it. It reports whether id
	// was tracked.
	Remove(id PageID) bool
	// Len is the number of tracked pages.
	Len() int
}

// NewReplacer builds the replacer for policy.
func NewReplacer(policy Policy) (Replacer, error) {
	switch policy {
	case Clock:
		return NewClockReplacer(), nil
	case LRU:
		return NewLRUReplacer(), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnsupportedPolicy, int(policy))
}
