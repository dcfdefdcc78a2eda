package cheader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"modernc.org/cc/v4"
)

type walker struct {
	opts Options
}

// specifiers is what a declaration's specifier list contributes to its declarators.
type specifiers struct {
	words      []string
	typedef    bool
	exported   bool
	convention string
}

func (s specifiers) spelling() string {
	return strings.Join(s.words, " ")
}

func (w *walker) external(unit *Unit, ed *cc.ExternalDeclaration) error {
	if ed == nil || ed.Case != cc.ExternalDeclarationDecl || ed.Declaration == nil {
		return nil
	}
	d := ed.Declaration
	if d.Case != cc.DeclarationDecl || d.InitDeclaratorList == nil {
		return nil
	}

	id := d.InitDeclaratorList.InitDeclarator
	nameTok := id.Declarator.NameTok()
	pos := nameTok.Position()
	if pos.Filename != headerName {
		return nil
	}

	specs := collectSpecifiers(d.DeclarationSpecifiers)
	if specs.typedef || (w.opts.ExportMacro != "" && !specs.exported) {
		return nil
	}

	name := nameTok.SrcStr()
	if d.InitDeclaratorList.InitDeclaratorList != nil {
		return fmt.Errorf("%w: line %d: more than one declarator next to %s", ErrSyntax, pos.Line, name)
	}
	if len(specs.words) == 0 {
		return fmt.Errorf("%w: line %d: %s has no type", ErrSyntax, pos.Line, name)
	}
	if tag, ok := annotation(id.AttributeSpecifierList); ok {
		specs.convention = tag
	}

	dd := id.Declarator.DirectDeclarator
	switch dd.Case {
	case cc.DirectDeclaratorFuncParam, cc.DirectDeclaratorFuncIdent:
		if dd.DirectDeclarator.Case != cc.DirectDeclaratorIdent {
			return fmt.Errorf("%w: line %d: %s has a parenthesized declarator", ErrSyntax, pos.Line, name)
		}
		params, variadic, err := parameters(dd)
		if err != nil {
			return fmt.Errorf("line %d: %s: %w", pos.Line, name, err)
		}
		unit.Funcs = append(unit.Funcs, &Func{
			Name:              name,
			ReturnType:        specs.spelling() + stars(id.Declarator.Pointer),
			CallingConvention: specs.convention,
			Parameters:        params,
			IsVariadic:        variadic,
			Line:              pos.Line,
		})
		return nil
	}

	for isArray(dd) {
		dd = dd.DirectDeclarator
	}
	if dd.Case != cc.DirectDeclaratorIdent {
		return fmt.Errorf("%w: line %d: %s is a function pointer variable", ErrSyntax, pos.Line, name)
	}
	unit.Vars = append(unit.Vars, &Var{
		Name: name,
		Type: specs.spelling() + stars(id.Declarator.Pointer),
		Line: pos.Line,
	})
	return nil
}

func collectSpecifiers(ds *cc.DeclarationSpecifiers) specifiers {
	var s specifiers
	for ; ds != nil; ds = ds.DeclarationSpecifiers {
		switch ds.Case {
		case cc.DeclarationSpecifiersStorage:
			sc := ds.StorageClassSpecifier
			switch sc.Case {
			case cc.StorageClassSpecifierTypedef:
				s.typedef = true
			case cc.StorageClassSpecifierDeclspec:
				if lo.ContainsBy(sc.Declspecs, func(t cc.Token) bool {
					return t.SrcStr() == "dllimport" || t.SrcStr() == "dllexport"
				}) {
					s.exported = true
				}
			}
		case cc.DeclarationSpecifiersTypeSpec:
			s.words = append(s.words, typeWords(ds.TypeSpecifier)...)
		case cc.DeclarationSpecifiersAttr:
			if tag, ok := annotation(ds.AttributeSpecifierList); ok {
				s.convention = tag
			}
		}
	}
	return s
}

// typeWords spells a type specifier. Tagged types keep only their keyword and tag.
func typeWords(ts *cc.TypeSpecifier) []string {
	switch ts.Case {
	case cc.TypeSpecifierStructOrUnion:
		sus := ts.StructOrUnionSpecifier
		return lo.Compact([]string{sus.StructOrUnion.Token.SrcStr(), sus.Token.SrcStr()})
	case cc.TypeSpecifierEnum:
		es := ts.EnumSpecifier
		if es.Token2.Ch != rune(cc.IDENTIFIER) {
			return []string{es.Token.SrcStr()}
		}
		return []string{es.Token.SrcStr(), es.Token2.SrcStr()}
	}
	return lo.Map(cc.NodeTokens(ts), func(t cc.Token, _ int) string { return t.SrcStr() })
}

// annotation finds the tag of an `annotate("tag")` attribute.
func annotation(list *cc.AttributeSpecifierList) (string, bool) {
	for ; list != nil; list = list.AttributeSpecifierList {
		toks := cc.NodeTokens(list.AttributeSpecifier)
		for i := 0; i+2 < len(toks); i++ {
			if toks[i].SrcStr() != "annotate" || toks[i+1].Ch != '(' || toks[i+2].Ch != rune(cc.STRINGLITERAL) {
				continue
			}
			if tag, err := strconv.Unquote(toks[i+2].SrcStr()); err == nil {
				return tag, true
			}
		}
	}
	return "", false
}

func parameters(dd *cc.DirectDeclarator) ([]Param, bool, error) {
	if dd.Case == cc.DirectDeclaratorFuncIdent {
		return nil, false, fmt.Errorf("%w: identifier list instead of parameter types", ErrSyntax)
	}

	ptl := dd.ParameterTypeList
	if ptl == nil {
		return nil, false, nil
	}

	var params []Param
	for pl := ptl.ParameterList; pl != nil; pl = pl.ParameterList {
		pd := pl.ParameterDeclaration
		if pd == nil {
			return nil, false, fmt.Errorf("%w: malformed parameter %d", ErrSyntax, len(params))
		}
		p, err := parameter(pd)
		if err != nil {
			return nil, false, fmt.Errorf("parameter %d: %w", len(params), err)
		}
		params = append(params, p)
	}

	if len(params) == 1 && params[0].Name == "" && strings.EqualFold(params[0].Type, "void") {
		params = nil
	}
	return params, ptl.Case == cc.ParameterTypeListVar, nil
}

func parameter(pd *cc.ParameterDeclaration) (Param, error) {
	specs := collectSpecifiers(pd.DeclarationSpecifiers)
	if len(specs.words) == 0 {
		return Param{}, fmt.Errorf("%w: missing type", ErrSyntax)
	}

	if pd.Case == cc.ParameterDeclarationDecl {
		return Param{
			Name: pd.Declarator.Name(),
			Type: specs.spelling() + stars(pd.Declarator.Pointer) + directSuffix(pd.Declarator.DirectDeclarator),
		}, nil
	}
	return Param{Type: specs.spelling() + abstractSuffix(pd.AbstractDeclarator)}, nil
}

// directSuffix spells what a declarator adds to its base type, without the name and
// array dimensions. `(*Callback)(PVOID)` becomes `(*)(PVOID)`.
func directSuffix(dd *cc.DirectDeclarator) string {
	switch {
	case dd == nil || dd.Case == cc.DirectDeclaratorIdent:
		return ""
	case dd.Case == cc.DirectDeclaratorDecl:
		return "(" + stars(dd.Declarator.Pointer) + directSuffix(dd.Declarator.DirectDeclarator) + ")"
	case dd.Case == cc.DirectDeclaratorFuncParam:
		return directSuffix(dd.DirectDeclarator) + "(" + parameterTypes(dd.ParameterTypeList) + ")"
	case dd.Case == cc.DirectDeclaratorFuncIdent:
		return directSuffix(dd.DirectDeclarator) + "()"
	}
	return directSuffix(dd.DirectDeclarator)
}

func abstractSuffix(ad *cc.AbstractDeclarator) string {
	if ad == nil {
		return ""
	}
	return stars(ad.Pointer) + directAbstractSuffix(ad.DirectAbstractDeclarator)
}

func directAbstractSuffix(dad *cc.DirectAbstractDeclarator) string {
	switch {
	case dad == nil:
		return ""
	case dad.Case == cc.DirectAbstractDeclaratorDecl:
		return "(" + abstractSuffix(dad.AbstractDeclarator) + ")"
	case dad.Case == cc.DirectAbstractDeclaratorFunc:
		return directAbstractSuffix(dad.DirectAbstractDeclarator) + "(" + parameterTypes(dad.ParameterTypeList) + ")"
	}
	return directAbstractSuffix(dad.DirectAbstractDeclarator)
}

func parameterTypes(ptl *cc.ParameterTypeList) string {
	if ptl == nil {
		return ""
	}

	var types []string
	for pl := ptl.ParameterList; pl != nil; pl = pl.ParameterList {
		if pl.ParameterDeclaration == nil {
			continue
		}
		p, err := parameter(pl.ParameterDeclaration)
		if err != nil {
			continue
		}
		types = append(types, p.Type)
	}
	if ptl.Case == cc.ParameterTypeListVar {
		types = append(types, "...")
	}
	return strings.Join(types, ", ")
}

func stars(p *cc.Pointer) string {
	n := 0
	for ; p != nil; p = p.Pointer {
		n++
	}
	return strings.Repeat("*", n)
}

func isArray(dd *cc.DirectDeclarator) bool {
	switch dd.Case {
	case cc.DirectDeclaratorArr, cc.DirectDeclaratorStaticArr, cc.DirectDeclaratorArrStatic, cc.DirectDeclaratorStar:
		return true
	}
	return false
}
