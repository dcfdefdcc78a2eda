package emit

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/castai/kimportgen/pkg/decl"
	"github.com/castai/kimportgen/pkg/reconcile"
)

const (
	ImportsFile = "imports.h"
	VarsFile    = "vars.h"
	CommonFile  = "common.h"
	StubExt     = ".cpp"
)

type Options struct {
	// MacroPrefix names the import list macros, e.g. KERNEL_IMPORTS and KERNEL_IMPORT_FUNC.
	MacroPrefix string
	StructName  string
	// ClassName qualifies every stub, e.g. `int Xbox::NtClose()`.
	ClassName string
}

func DefaultOptions() Options {
	return Options{
		MacroPrefix: "KERNEL",
		StructName:  "KernelVariables",
		ClassName:   "Xbox",
	}
}

// Artifact is one generated file.
type Artifact struct {
	Name    string
	Content []byte
}

// Render produces every generated file: the import list, the variable struct, the common
// include and one stub per function, in that order with stubs sorted by name.
func Render(table *reconcile.ImportTable, opts Options) []Artifact {
	funcs := table.Functions()
	res := make([]Artifact, 0, len(funcs)+3)
	res = append(res,
		Artifact{Name: ImportsFile, Content: []byte(RenderImports(table, opts))},
		Artifact{Name: VarsFile, Content: []byte(RenderVars(table.Variables(), opts))},
		Artifact{Name: CommonFile, Content: []byte(RenderCommon())},
	)
	for _, f := range funcs {
		res = append(res, Artifact{Name: StubFileName(f), Content: []byte(RenderStub(f, opts))})
	}
	return res
}

// RenderImports lists every slot from 0 to the maximum ordinal as one continued macro.
func RenderImports(table *reconcile.ImportTable, opts Options) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "#define %s_IMPORTS \\\n", opts.MacroPrefix)
	for i := 0; i < table.Len(); i++ {
		d, ok := table.At(i)
		switch {
		case !ok:
			fmt.Fprintf(&sb, "\t%s_IMPORT_NULL(%d) \\\n", opts.MacroPrefix, i)
		case d.Kind() == decl.KindVariable:
			fmt.Fprintf(&sb, "\t%s_IMPORT_DATA(%d, %s) \\\n", opts.MacroPrefix, i, d.DeclName())
		default:
			fmt.Fprintf(&sb, "\t%s_IMPORT_FUNC(%d, %s) \\\n", opts.MacroPrefix, i, d.DeclName())
		}
	}
	sb.WriteString("\n\n")

	return sb.String()
}

// RenderVars declares the variable storage struct. vars must already be in import ID order.
func RenderVars(vars []*decl.Variable, opts Options) string {
	var sb strings.Builder

	width := lo.Max(lo.Map(vars, func(v *decl.Variable, _ int) int { return len(v.Type) }))

	sb.WriteString("#include \"common.h\"\n\n")
	fmt.Fprintf(&sb, "struct %s {\n", opts.StructName)
	for _, v := range vars {
		fmt.Fprintf(&sb, "\t%-*s %s;\n", width, v.Type, v.Name)
	}
	sb.WriteString("};\n\n")

	return sb.String()
}

func RenderCommon() string {
	return `#include "types.h"`
}

func StubFileName(f *decl.Function) string {
	return f.Name + StubExt
}

// RenderStub writes the documented, unimplemented body of a single kernel function.
func RenderStub(f *decl.Function, opts Options) string {
	var sb strings.Builder

	width := lo.Max(lo.Map(f.Arguments, func(a decl.Argument, _ int) int { return len(a.Type) }))
	returnsValue := !strings.EqualFold(f.ReturnType, "void")

	sb.WriteString("#include \"common.h\"\n\n")

	sb.WriteString("/*\n")
	fmt.Fprintf(&sb, " * %s\n", f.Name)
	sb.WriteString(" *\n")
	fmt.Fprintf(&sb, " * Import Number:      %d\n", f.ImportID())
	fmt.Fprintf(&sb, " * Calling Convention: %s\n", f.CallingConvention)
	for i, a := range f.Arguments {
		fmt.Fprintf(&sb, " * Parameter %d:        %-*s %s\n", i, width, a.Type, a.Name)
	}
	fmt.Fprintf(&sb, " * Return Type:        %s\n", f.ReturnType)
	sb.WriteString(" */\n")

	fmt.Fprintf(&sb, "int %s::%s()\n", opts.ClassName, f.Name)
	sb.WriteString("{\n")
	fmt.Fprintf(&sb, "\tK_ENTER_%s();\n", strings.ToUpper(f.CallingConvention))
	for _, a := range f.Arguments {
		fmt.Fprintf(&sb, "\tK_INIT_ARG(%-*s %s);\n", width+1, a.Type+",", a.Name)
	}
	if returnsValue {
		fmt.Fprintf(&sb, "\t%s rval;\n", f.ReturnType)
	}
	sb.WriteString("\n")
	if returnsValue {
		sb.WriteString("\tK_EXIT_WITH_VALUE(rval);\n")
	} else {
		sb.WriteString("\tK_EXIT();\n")
	}
	sb.WriteString("\treturn ERROR_NOT_IMPLEMENTED;\n")
	sb.WriteString("}\n")

	return sb.String()
}
