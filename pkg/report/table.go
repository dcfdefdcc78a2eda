package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"

	"github.com/castai/kimportgen/pkg/decl"
	"github.com/castai/kimportgen/pkg/reconcile"
)

// WriteTable lists every slot of the import table. Empty slots are included only when
// withUnknown is set.
func WriteTable(w io.Writer, it *reconcile.ImportTable, withUnknown bool) error {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Ordinal", "Kind", "Name", "Convention", "Signature"})
	t.SetStyle(table.StyleLight)

	for i := 0; i < it.Len(); i++ {
		d, ok := it.At(i)
		if !ok {
			if withUnknown {
				t.AppendRow(table.Row{i, "null", it.Symbol(i), "", ""})
			}
			continue
		}

		switch v := d.(type) {
		case *decl.Function:
			t.AppendRow(table.Row{i, v.Kind().String(), v.Name, v.CallingConvention, Signature(v)})
		case *decl.Variable:
			t.AppendRow(table.Row{i, v.Kind().String(), v.Name, "", v.Type})
		}
	}

	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// Signature spells a function as a C prototype without calling convention.
func Signature(f *decl.Function) string {
	args := lo.Map(f.Arguments, func(a decl.Argument, _ int) string {
		return a.Type + " " + a.Name
	})
	if f.Variadic {
		args = append(args, "...")
	}
	if len(args) == 0 {
		args = []string{"void"}
	}
	return fmt.Sprintf("%s %s(%s)", f.ReturnType, f.Name, strings.Join(args, ", "))
}
