// Package cheader scans C headers for exported function and variable declarations.
//
// Headers are preprocessed and parsed with modernc.org/cc/v4. Each header is scanned
// standalone: includes resolve to empty files and every type name the header uses is
// declared by a generated prelude, together with the export, calling-convention and
// ignored macros. Typedefs, tag declarations and function definitions are skipped.
package cheader

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/samber/lo"
	"modernc.org/cc/v4"

	"github.com/castai/kimportgen/pkg/decl"
)

var (
	ErrSyntax            = errors.New("syntax error")
	ErrUnsupportedDefine = errors.New("unsupported define")
)

var knownConventions = []string{"stdcall", "fastcall", "cdecl", "thiscall", "vectorcall"}

type Options struct {
	// ExportMacro must prefix a declaration for it to be picked up. Empty accepts every
	// top-level declaration.
	ExportMacro string
	// CallingConventions maps calling-convention macros to annotation tags.
	CallingConventions map[string]string
	// Ignored lists macros that expand to nothing, like SAL annotations.
	Ignored map[string]struct{}
}

func DefaultOptions() Options {
	return Options{
		ExportMacro: "XBAPI",
		CallingConventions: map[string]string{
			"NTAPI":      "stdcall",
			"WINAPI":     "stdcall",
			"__stdcall":  "stdcall",
			"FASTCALL":   "fastcall",
			"__fastcall": "fastcall",
			"CDECL":      "cdecl",
			"__cdecl":    "cdecl",
		},
		Ignored: lo.SliceToMap([]string{
			"IN", "OUT", "OPTIONAL", "UNALIGNED", "CONST", "DECLSPEC_NORETURN",
		}, func(s string) (string, struct{}) {
			return s, struct{}{}
		}),
	}
}

// ApplyDefines extends the options from compiler-style define arguments, for example
// `-DXAPI -DSTDAPI=stdcall`. A bare define expands to nothing; a define whose value is
// a calling convention becomes a calling-convention macro.
func (o *Options) ApplyDefines(cmdline string) error {
	args, err := shellwords.Parse(cmdline)
	if err != nil {
		return fmt.Errorf("parsing defines %q: %w", cmdline, err)
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "-D" {
			if i+1 >= len(args) {
				return fmt.Errorf("-D without name: %w", ErrUnsupportedDefine)
			}
			i++
			arg = args[i]
		} else if strings.HasPrefix(arg, "-D") {
			arg = strings.TrimPrefix(arg, "-D")
		} else {
			return fmt.Errorf("%q: %w", arg, ErrUnsupportedDefine)
		}

		name, value, _ := strings.Cut(arg, "=")
		switch {
		case name == "":
			return fmt.Errorf("%q: %w", args[i], ErrUnsupportedDefine)
		case value == "":
			if o.Ignored == nil {
				o.Ignored = map[string]struct{}{}
			}
			o.Ignored[name] = struct{}{}
		case lo.Contains(knownConventions, value):
			if o.CallingConventions == nil {
				o.CallingConventions = map[string]string{}
			}
			o.CallingConventions[name] = value
		default:
			return fmt.Errorf("%s=%s: %w", name, value, ErrUnsupportedDefine)
		}
	}

	return nil
}

// Param is a function parameter. Name is empty for abstract declarators like `(ULONG)`.
type Param struct {
	Name string
	Type string
}

func (p Param) Spelling() string     { return p.Name }
func (p Param) TypeSpelling() string { return p.Type }

type Func struct {
	Name              string
	ReturnType        string
	CallingConvention string
	Parameters        []Param
	IsVariadic        bool
	Line              int
}

func (f *Func) Spelling() string   { return f.Name }
func (f *Func) ResultType() string { return f.ReturnType }
func (f *Func) Variadic() bool     { return f.IsVariadic }

func (f *Func) Annotation() (string, bool) {
	return f.CallingConvention, f.CallingConvention != ""
}

func (f *Func) Params() []decl.ParamNode {
	return lo.Map(f.Parameters, func(p Param, _ int) decl.ParamNode {
		return p
	})
}

type Var struct {
	Name string
	Type string
	Line int
}

func (v *Var) Spelling() string     { return v.Name }
func (v *Var) TypeSpelling() string { return v.Type }

// Unit is a scanned header. It implements decl.Source.
type Unit struct {
	Funcs []*Func
	Vars  []*Var
}

func (u *Unit) FunctionNodes() []decl.FunctionNode {
	return lo.Map(u.Funcs, func(f *Func, _ int) decl.FunctionNode {
		return f
	})
}

func (u *Unit) VariableNodes() []decl.VariableNode {
	return lo.Map(u.Vars, func(v *Var, _ int) decl.VariableNode {
		return v
	})
}

func Parse(r io.Reader, opts Options) (*Unit, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	return ParseString(string(data), opts)
}

func ParseString(src string, opts Options) (*Unit, error) {
	if !strings.HasSuffix(src, "\n") {
		src += "\n"
	}

	names, err := opts.discoverTypeNames(src)
	if err != nil {
		return nil, err
	}

	ast, err := cc.Parse(newConfig(), []cc.Source{
		{Name: preludeName, Value: opts.prelude(names)},
		{Name: headerName, Value: src},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}

	w := &walker{opts: opts}
	unit := &Unit{}
	for tu := ast.TranslationUnit; tu != nil; tu = tu.TranslationUnit {
		if err := w.external(unit, tu.ExternalDeclaration); err != nil {
			return nil, err
		}
	}

	return unit, nil
}
