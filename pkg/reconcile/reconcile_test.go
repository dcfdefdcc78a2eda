package reconcile

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/castai/kimportgen/pkg/decl"
	"github.com/castai/kimportgen/pkg/ordinals"
)

func buildTable(t *testing.T, names map[int]string) *ordinals.Table {
	t.Helper()

	raw := make([]ordinals.RawEntry, 0, len(names))
	for id, name := range names {
		raw = append(raw, ordinals.RawEntry{Line: id + 1, Ordinal: strconv.Itoa(id), Name: name})
	}
	table, err := ordinals.Build(raw)
	require.NoError(t, err)
	return table
}

func TestReconcile(t *testing.T) {
	t.Run("places declarations at their ordinals", func(t *testing.T) {
		r := require.New(t)

		table := buildTable(t, map[int]string{
			1: "NtClose",
			4: "Foo",
			7: "XboxKrnlVersion",
			9: "KeTickCount",
		})
		funcs := []*decl.Function{
			decl.NewFunction("NtClose", "NTSTATUS", []decl.Argument{{Type: "HANDLE", Name: "Handle"}}),
			decl.NewFunction("Foo", "void", []decl.Argument{{Type: "int", Name: "x"}}),
		}
		vars := []*decl.Variable{
			decl.NewVariable("KeTickCount", "DWORD"),
			decl.NewVariable("XboxKrnlVersion", "DWORD"),
		}

		it, rep, err := Reconcile(table, funcs, vars)
		r.NoError(err)
		r.Equal(10, it.Len())
		r.Equal(9, it.MaxOrdinal())

		r.Equal(1, funcs[0].ImportID())
		r.Equal(4, funcs[1].ImportID())
		r.Equal(9, vars[0].ImportID())
		r.Equal(7, vars[1].ImportID())

		for i := 0; i < it.Len(); i++ {
			d, ok := it.At(i)
			if !ok {
				continue
			}
			r.Equal(i, d.ImportID())
		}

		d, ok := it.At(7)
		r.True(ok)
		r.Equal(decl.KindVariable, d.Kind())
		r.Equal("XboxKrnlVersion", d.DeclName())

		_, ok = it.At(10)
		r.False(ok)
		_, ok = it.At(-1)
		r.False(ok)

		r.Equal([]string{"Foo", "NtClose"}, names(it.Functions()))
		r.Equal([]int{7, 9}, []int{it.Variables()[0].ImportID(), it.Variables()[1].ImportID()})
		r.Len(it.Declarations(), 4)
		r.Equal([]int{0, 2, 3, 5, 6, 8}, it.Unknown())

		r.Equal(2, rep.Functions)
		r.Equal(2, rep.Variables)
		r.Equal(4, rep.Total)
		r.Equal([]int{0, 2, 3, 5, 6, 8}, rep.UnknownImportIDs)
		r.Len(rep.Diagnostics, 6)
		r.Equal(Diagnostic{
			Severity: SeverityWarning,
			ImportID: 0,
			Message:  "definition of import ID 0 is unknown",
		}, rep.Diagnostics[0])
	})

	t.Run("named ordinal without declaration is reported with its symbol", func(t *testing.T) {
		r := require.New(t)

		table := buildTable(t, map[int]string{0: "AvGetSavedDataAddress", 1: "NtClose"})
		funcs := []*decl.Function{decl.NewFunction("NtClose", "NTSTATUS", nil)}

		it, rep, err := Reconcile(table, funcs, nil)
		r.NoError(err)
		r.Equal([]int{0}, it.Unknown())
		r.Equal("AvGetSavedDataAddress", it.Symbol(0))
		r.Equal([]Diagnostic{{
			Severity: SeverityWarning,
			ImportID: 0,
			Symbol:   "AvGetSavedDataAddress",
			Message:  "definition of import ID 0 is unknown",
		}}, rep.Diagnostics)
		r.Equal(1, rep.Total)
	})

	t.Run("no declarations", func(t *testing.T) {
		r := require.New(t)

		it, rep, err := Reconcile(buildTable(t, map[int]string{2: "NtClose"}), nil, nil)
		r.NoError(err)
		r.Empty(it.Declarations())
		r.Empty(it.Functions())
		r.Equal([]int{0, 1, 2}, rep.UnknownImportIDs)
		r.Zero(rep.Total)
	})

	t.Run("unresolved name is fatal and assigns nothing", func(t *testing.T) {
		r := require.New(t)

		table := buildTable(t, map[int]string{1: "NtClose"})
		funcs := []*decl.Function{
			decl.NewFunction("NtClose", "NTSTATUS", nil),
			decl.NewFunction("NtOpenFile", "NTSTATUS", nil),
		}

		_, _, err := Reconcile(table, funcs, nil)
		r.ErrorIs(err, ErrUnresolved)
		r.ErrorContains(err, "NtOpenFile")
		r.Equal(decl.Unresolved, funcs[0].ImportID())
	})

	t.Run("two declarations on one ordinal are fatal", func(t *testing.T) {
		r := require.New(t)

		table := buildTable(t, map[int]string{3: "KeTickCount"})
		funcs := []*decl.Function{decl.NewFunction("KeTickCount", "DWORD", nil)}
		vars := []*decl.Variable{decl.NewVariable("KeTickCount", "DWORD")}

		_, _, err := Reconcile(table, funcs, vars)
		r.ErrorIs(err, ErrSlotConflict)
		r.Equal(decl.Unresolved, funcs[0].ImportID())
		r.Equal(decl.Unresolved, vars[0].ImportID())
	})

	t.Run("already resolved declaration", func(t *testing.T) {
		r := require.New(t)

		table := buildTable(t, map[int]string{3: "KeTickCount"})
		v := decl.NewVariable("KeTickCount", "DWORD")
		r.NoError(v.Resolve(3))

		_, _, err := Reconcile(table, nil, []*decl.Variable{v})
		r.ErrorIs(err, decl.ErrAlreadyResolved)
	})
}

func names(funcs []*decl.Function) []string {
	res := make([]string, len(funcs))
	for i, f := range funcs {
		res[i] = f.Name
	}
	return res
}
