package decl

import (
	"errors"
	"fmt"
)

var (
	ErrUnnamedArgument = errors.New("unnamed argument")
	ErrMissingType     = errors.New("missing type spelling")
	ErrMissingName     = errors.New("missing declaration name")
)

// Source is a parsed header, already split into function-like and variable-like nodes.
type Source interface {
	FunctionNodes() []FunctionNode
	VariableNodes() []VariableNode
}

type FunctionNode interface {
	Spelling() string
	ResultType() string
	// Annotation returns the calling convention attached to the declaration, if any.
	Annotation() (string, bool)
	Params() []ParamNode
	Variadic() bool
}

type ParamNode interface {
	Spelling() string
	TypeSpelling() string
}

type VariableNode interface {
	Spelling() string
	TypeSpelling() string
}

// Extract normalizes the header nodes into declarations, keeping encounter order.
// A parameter without a name aborts extraction: stubs bind every argument by name.
func Extract(src Source) ([]*Function, []*Variable, error) {
	fnodes := src.FunctionNodes()
	funcs := make([]*Function, 0, len(fnodes))
	for _, n := range fnodes {
		f, err := extractFunction(n)
		if err != nil {
			return nil, nil, err
		}
		funcs = append(funcs, f)
	}

	vnodes := src.VariableNodes()
	vars := make([]*Variable, 0, len(vnodes))
	for _, n := range vnodes {
		name := n.Spelling()
		if name == "" {
			return nil, nil, fmt.Errorf("variable of type %q: %w", n.TypeSpelling(), ErrMissingName)
		}
		if n.TypeSpelling() == "" {
			return nil, nil, fmt.Errorf("variable %s: %w", name, ErrMissingType)
		}
		vars = append(vars, NewVariable(name, n.TypeSpelling()))
	}

	return funcs, vars, nil
}

func extractFunction(n FunctionNode) (*Function, error) {
	name := n.Spelling()
	if name == "" {
		return nil, fmt.Errorf("function returning %q: %w", n.ResultType(), ErrMissingName)
	}
	if n.ResultType() == "" {
		return nil, fmt.Errorf("return type of func %s: %w", name, ErrMissingType)
	}

	params := n.Params()
	args := make([]Argument, 0, len(params))
	for i, p := range params {
		if p.TypeSpelling() == "" {
			return nil, fmt.Errorf("parameter %d of func %s: %w", i, name, ErrMissingType)
		}
		if p.Spelling() == "" {
			return nil, fmt.Errorf("parameter %d (%s) of func %s: %w", i, p.TypeSpelling(), name, ErrUnnamedArgument)
		}
		args = append(args, Argument{Type: p.TypeSpelling(), Name: p.Spelling()})
	}

	f := NewFunction(name, n.ResultType(), args)
	if cc, ok := n.Annotation(); ok && cc != "" {
		f.CallingConvention = cc
	}
	f.Variadic = n.Variadic()

	return f, nil
}
