package decl

import (
	"errors"
	"fmt"
)

const (
	// Unresolved is the import ID of a declaration not yet matched against the ordinal table.
	Unresolved = -1

	DefaultCallingConvention = "stdcall"
)

var ErrAlreadyResolved = errors.New("declaration already resolved")

type Kind uint8

const (
	KindFunction Kind = iota + 1
	KindVariable
)

func (k Kind) String() string {
	switch k {
	case KindFunction:
		return "func"
	case KindVariable:
		return "data"
	}
	return "unknown"
}

// Declaration is either a *Function or a *Variable.
type Declaration interface {
	Kind() Kind
	DeclName() string
	ImportID() int
	Resolve(importID int) error
}

// Symbol holds the fields shared by functions and variables.
type Symbol struct {
	Name     string
	importID int
}

func newSymbol(name string) Symbol {
	return Symbol{Name: name, importID: Unresolved}
}

func (s *Symbol) DeclName() string {
	return s.Name
}

func (s *Symbol) ImportID() int {
	return s.importID
}

func (s *Symbol) Resolved() bool {
	return s.importID != Unresolved
}

// Resolve assigns the import ID. It may be called once.
func (s *Symbol) Resolve(importID int) error {
	if s.Resolved() {
		return fmt.Errorf("%s already has import ID %d: %w", s.Name, s.importID, ErrAlreadyResolved)
	}
	if importID < 0 {
		return fmt.Errorf("%s: negative import ID %d", s.Name, importID)
	}
	s.importID = importID
	return nil
}

type Argument struct {
	Type string
	Name string
}

type Function struct {
	Symbol
	CallingConvention string
	ReturnType        string
	Arguments         []Argument
	Variadic          bool
}

func NewFunction(name, returnType string, args []Argument) *Function {
	return &Function{
		Symbol:            newSymbol(name),
		CallingConvention: DefaultCallingConvention,
		ReturnType:        returnType,
		Arguments:         args,
	}
}

func (*Function) Kind() Kind {
	return KindFunction
}

type Variable struct {
	Symbol
	Type string
}

func NewVariable(name, typ string) *Variable {
	return &Variable{Symbol: newSymbol(name), Type: typ}
}

func (*Variable) Kind() Kind {
	return KindVariable
}
