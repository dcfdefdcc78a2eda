package ordinals

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/samber/lo"
)

// DefaultMaxOrdinal is the largest ordinal a PE export table can address.
const DefaultMaxOrdinal = 65535

var (
	ErrNoOrdinals        = errors.New("no ordinals found")
	ErrInvalidOrdinal    = errors.New("invalid ordinal")
	ErrOrdinalOutOfRange = errors.New("ordinal out of range")
	ErrDuplicateOrdinal  = errors.New("ordinal defined twice")
	ErrDuplicateName     = errors.New("name defined twice")
)

// RawEntry is a single ordinal declaration as it appears in the def file.
type RawEntry struct {
	Line    int
	Ordinal string
	Name    string
}

// Entry is one slot of the dense ordinal table. An empty Name marks a hole.
type Entry struct {
	Ordinal int
	Name    string
}

func (e Entry) IsHole() bool {
	return e.Name == ""
}

type config struct {
	maxOrdinal int
}

type Option func(*config)

// WithMaxOrdinal sets the ceiling above which ordinals are rejected.
func WithMaxOrdinal(n int) Option {
	return func(c *config) {
		c.maxOrdinal = n
	}
}

// Table is the gap-filled ordinal table and its inverse name index.
// It is immutable after Build returns.
type Table struct {
	entries []Entry
	byName  map[string]int
}

func Build(raw []RawEntry, opts ...Option) (*Table, error) {
	cfg := config{maxOrdinal: DefaultMaxOrdinal}
	for _, o := range opts {
		o(&cfg)
	}

	idToName := make(map[int]string, len(raw))
	for _, r := range raw {
		id, err := strconv.Atoi(r.Ordinal)
		if err != nil || id < 0 {
			return nil, fmt.Errorf("line %d: %q: %w", r.Line, r.Ordinal, ErrInvalidOrdinal)
		}
		if id > cfg.maxOrdinal {
			return nil, fmt.Errorf("line %d: ordinal %d exceeds %d: %w", r.Line, id, cfg.maxOrdinal, ErrOrdinalOutOfRange)
		}
		if existing, found := idToName[id]; found {
			return nil, fmt.Errorf("line %d: ID %d defined twice (%s, %s): %w", r.Line, id, existing, r.Name, ErrDuplicateOrdinal)
		}
		idToName[id] = r.Name
	}

	if len(idToName) == 0 {
		return nil, ErrNoOrdinals
	}

	// The maximum was scanned, so filling [0, max) leaves no gaps.
	maxID := lo.Max(lo.Keys(idToName))
	entries := make([]Entry, maxID+1)
	for i := 0; i < maxID; i++ {
		entries[i] = Entry{Ordinal: i, Name: idToName[i]}
	}
	entries[maxID] = Entry{Ordinal: maxID, Name: idToName[maxID]}

	byName := make(map[string]int, len(idToName))
	for _, e := range entries {
		if e.IsHole() {
			continue
		}
		if existing, found := byName[e.Name]; found {
			return nil, fmt.Errorf("name %s at ordinals %d and %d: %w", e.Name, existing, e.Ordinal, ErrDuplicateName)
		}
		byName[e.Name] = e.Ordinal
	}

	return &Table{entries: entries, byName: byName}, nil
}

// Len returns MaxOrdinal()+1.
func (t *Table) Len() int {
	return len(t.entries)
}

func (t *Table) MaxOrdinal() int {
	return len(t.entries) - 1
}

func (t *Table) Entry(ordinal int) (Entry, bool) {
	if ordinal < 0 || ordinal >= len(t.entries) {
		return Entry{}, false
	}
	return t.entries[ordinal], true
}

func (t *Table) Entries() []Entry {
	return slices.Clone(t.entries)
}

// Lookup resolves a symbolic name to its ordinal.
func (t *Table) Lookup(name string) (int, bool) {
	id, found := t.byName[name]
	return id, found
}

// Names returns the number of named (non-hole) ordinals.
func (t *Table) Names() int {
	return len(t.byName)
}

// Holes returns the ordinals the def file never mentioned.
func (t *Table) Holes() []int {
	return lo.FilterMap(t.entries, func(e Entry, _ int) (int, bool) {
		return e.Ordinal, e.IsHole()
	})
}

// RawEntries returns the named entries in ordinal order, in the shape Build accepts.
func (t *Table) RawEntries() []RawEntry {
	return lo.FilterMap(t.entries, func(e Entry, _ int) (RawEntry, bool) {
		return RawEntry{Line: e.Ordinal + 1, Ordinal: strconv.Itoa(e.Ordinal), Name: e.Name}, !e.IsHole()
	})
}
