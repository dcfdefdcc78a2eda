// Package reconcile joins header declarations with the ordinal table.
package reconcile

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/castai/kimportgen/pkg/decl"
	"github.com/castai/kimportgen/pkg/ordinals"
)

var (
	ErrUnresolved   = errors.New("unresolved declaration")
	ErrSlotConflict = errors.New("import slot claimed twice")
)

type Severity string

const SeverityWarning Severity = "warning"

type Diagnostic struct {
	Severity Severity `json:"severity" yaml:"severity"`
	ImportID int      `json:"importId" yaml:"importId"`
	// Symbol is the def file name of the slot, empty for ordinals the def file never mentioned.
	Symbol  string `json:"symbol,omitempty" yaml:"symbol,omitempty"`
	Message string `json:"message" yaml:"message"`
}

type Report struct {
	Functions        int          `json:"functions" yaml:"functions"`
	Variables        int          `json:"variables" yaml:"variables"`
	Total            int          `json:"total" yaml:"total"`
	UnknownImportIDs []int        `json:"unknownImportIds" yaml:"unknownImportIds"`
	Diagnostics      []Diagnostic `json:"diagnostics" yaml:"diagnostics"`
}

// ImportTable is indexed by ordinal. Slot i holds a declaration only if its ImportID is i.
type ImportTable struct {
	ordinals *ordinals.Table
	slots    []decl.Declaration
	funcs    []*decl.Function
	vars     []*decl.Variable
}

// Reconcile resolves every declaration against the ordinal table. Nothing is assigned
// unless every declaration resolves to its own slot; a name missing from the table or
// two declarations claiming one ordinal is fatal. Empty slots are reported as warnings.
func Reconcile(table *ordinals.Table, funcs []*decl.Function, vars []*decl.Variable) (*ImportTable, *Report, error) {
	decls := make([]decl.Declaration, 0, len(funcs)+len(vars))
	for _, f := range funcs {
		decls = append(decls, f)
	}
	for _, v := range vars {
		decls = append(decls, v)
	}

	slots := make([]decl.Declaration, table.Len())
	for _, d := range decls {
		id, found := table.Lookup(d.DeclName())
		if !found {
			return nil, nil, fmt.Errorf("could not resolve %s %s against ordinal table: %w", d.Kind(), d.DeclName(), ErrUnresolved)
		}
		if d.ImportID() != decl.Unresolved {
			return nil, nil, fmt.Errorf("%s: %w", d.DeclName(), decl.ErrAlreadyResolved)
		}
		if prev := slots[id]; prev != nil {
			return nil, nil, fmt.Errorf("ordinal %d claimed by %s %s and %s %s: %w",
				id, prev.Kind(), prev.DeclName(), d.Kind(), d.DeclName(), ErrSlotConflict)
		}
		slots[id] = d
	}

	for id, d := range slots {
		if d == nil {
			continue
		}
		if err := d.Resolve(id); err != nil {
			return nil, nil, err
		}
	}

	it := &ImportTable{
		ordinals: table,
		slots:    slots,
		funcs:    slices.Clone(funcs),
		vars:     slices.Clone(vars),
	}

	report := &Report{
		Functions:        len(funcs),
		Variables:        len(vars),
		Total:            len(funcs) + len(vars),
		UnknownImportIDs: []int{},
		Diagnostics:      []Diagnostic{},
	}
	for _, id := range it.Unknown() {
		report.UnknownImportIDs = append(report.UnknownImportIDs, id)
		report.Diagnostics = append(report.Diagnostics, Diagnostic{
			Severity: SeverityWarning,
			ImportID: id,
			Symbol:   it.Symbol(id),
			Message:  fmt.Sprintf("definition of import ID %d is unknown", id),
		})
	}

	return it, report, nil
}

// Len returns MaxOrdinal()+1.
func (t *ImportTable) Len() int {
	return len(t.slots)
}

func (t *ImportTable) MaxOrdinal() int {
	return len(t.slots) - 1
}

// At returns the declaration in slot i. The second result is false for empty and out of range slots.
func (t *ImportTable) At(i int) (decl.Declaration, bool) {
	if i < 0 || i >= len(t.slots) || t.slots[i] == nil {
		return nil, false
	}
	return t.slots[i], true
}

// Symbol returns the def file name for ordinal i.
func (t *ImportTable) Symbol(i int) string {
	e, _ := t.ordinals.Entry(i)
	return e.Name
}

// Functions returns the resolved functions sorted by name.
func (t *ImportTable) Functions() []*decl.Function {
	res := slices.Clone(t.funcs)
	slices.SortFunc(res, func(a, b *decl.Function) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return res
}

// Variables returns the resolved variables sorted by import ID.
func (t *ImportTable) Variables() []*decl.Variable {
	res := slices.Clone(t.vars)
	slices.SortFunc(res, func(a, b *decl.Variable) int {
		return cmp.Compare(a.ImportID(), b.ImportID())
	})
	return res
}

// Declarations returns the populated slots in ordinal order.
func (t *ImportTable) Declarations() []decl.Declaration {
	return lo.Compact(t.slots)
}

// Unknown returns the ordinals without a declaration.
func (t *ImportTable) Unknown() []int {
	return lo.FilterMap(t.slots, func(d decl.Declaration, i int) (int, bool) {
		return i, d == nil
	})
}
