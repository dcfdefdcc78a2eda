package cheader

import (
	"fmt"
	"slices"
	"strings"
	"text/scanner"

	"github.com/samber/lo"
	"modernc.org/cc/v4"
)

var keywords = lo.SliceToMap([]string{
	"_Alignas", "_Alignof", "_Atomic", "_Bool", "_Complex", "_Decimal128", "_Decimal32",
	"_Decimal64", "_Float128", "_Float128x", "_Float16", "_Float32", "_Float32x", "_Float64",
	"_Float64x", "_Generic", "_Imaginary", "_Nonnull", "_Noreturn", "_Static_assert",
	"_Thread_local", "__alignof", "__alignof__", "__asm", "__asm__", "__attribute",
	"__attribute__", "__auto_type", "__complex", "__complex__", "__const", "__declspec",
	"__float128", "__imag", "__imag__", "__inline", "__inline__", "__int128", "__int128_t",
	"__label__", "__real", "__real__", "__restrict", "__restrict__", "__signed", "__signed__",
	"__thread", "__typeof", "__typeof__", "__uint128_t", "__volatile", "__volatile__", "asm",
	"auto", "break", "case", "char", "const", "continue", "default", "do", "double", "else",
	"enum", "extern", "float", "for", "goto", "if", "inline", "int", "long", "register",
	"restrict", "return", "short", "signed", "sizeof", "static", "struct", "switch", "typedef",
	"typeof", "union", "unsigned", "void", "volatile", "while",
}, func(s string) (string, struct{}) {
	return s, struct{}{}
})

type ptoken struct {
	kind rune
	text string
}

func (t ptoken) is(words ...string) bool {
	return t.kind == scanner.Ident && lo.Contains(words, t.text)
}

// discoverTypeNames preprocesses src and collects the identifiers used in type position
// that the header itself may never declare, like the typedefs of an included file.
func (o Options) discoverTypeNames(src string) ([]string, error) {
	var out strings.Builder
	err := cc.Preprocess(newConfig(), []cc.Source{
		{Name: preludeName, Value: o.prelude(nil)},
		{Name: headerName, Value: src},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	return typeNames(tokenize(out.String())), nil
}

func tokenize(src string) []ptoken {
	var s scanner.Scanner
	s.Init(strings.NewReader(src))
	s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats | scanner.ScanChars | scanner.ScanStrings
	s.Error = func(*scanner.Scanner, string) {}

	var toks []ptoken
	for tok := s.Scan(); tok != scanner.EOF; tok = s.Scan() {
		toks = append(toks, ptoken{kind: tok, text: s.TokenText()})
	}
	return toks
}

// typeNames reports, sorted, every identifier that is followed by a declarator, a
// pointer or a parenthesized pointer declarator, or that stands alone as a parameter.
// Attribute arguments, array dimensions, initializers and function bodies are skipped.
func typeNames(toks []ptoken) []string {
	found := map[string]struct{}{}
	depth := 0
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		switch {
		case t.is("__attribute__", "__attribute", "__declspec", "__asm__", "__asm", "asm"):
			i = skipGroup(toks, i+1, '(', ')')
		case t.kind == '[':
			i = skipGroup(toks, i, '[', ']')
		case t.kind == '=':
			i = skipInitializer(toks, i)
		case t.kind == '{' && at(toks, i-1).kind == ')':
			i = skipGroup(toks, i, '{', '}')
		case t.kind == '(':
			depth++
		case t.kind == ')':
			depth--
		case t.kind == scanner.Ident && isTypeName(toks, i, depth):
			found[t.text] = struct{}{}
		}
	}

	names := lo.Keys(found)
	slices.Sort(names)
	return names
}

func isTypeName(toks []ptoken, i, depth int) bool {
	if _, ok := keywords[toks[i].text]; ok {
		return false
	}
	prev, next := at(toks, i-1), at(toks, i+1)
	if prev.is("struct", "union", "enum") {
		return false
	}

	switch next.kind {
	case scanner.Ident, '*':
		return true
	case '(':
		after := at(toks, i+2)
		return after.kind == '*' || after.is("__attribute__", "__attribute")
	case ')', ',':
		return depth > 0 && (prev.kind == '(' || prev.kind == ',')
	}
	return false
}

func at(toks []ptoken, i int) ptoken {
	if i < 0 || i >= len(toks) {
		return ptoken{}
	}
	return toks[i]
}

// skipGroup returns the index closing the group opened at toks[i], or i-1 when toks[i]
// does not open one.
func skipGroup(toks []ptoken, i int, open, close rune) int {
	if at(toks, i).kind != open {
		return i - 1
	}

	depth := 0
	for ; i < len(toks); i++ {
		switch toks[i].kind {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(toks) - 1
}

// skipInitializer returns the index of the last token of the initializer starting after
// the '=' at toks[i].
func skipInitializer(toks []ptoken, i int) int {
	depth := 0
	for i++; i < len(toks); i++ {
		switch toks[i].kind {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			if depth == 0 {
				return i - 1
			}
			depth--
		case ',', ';':
			if depth == 0 {
				return i - 1
			}
		}
	}
	return len(toks) - 1
}
