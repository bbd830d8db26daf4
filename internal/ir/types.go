package ir

import "fmt"

// This file defines the IR's data model: types, values, instructions and
// the containers that own them (basic blocks, functions, modules). The
// shape follows a tagged enum of instruction kinds rather than a deep class
// hierarchy: each kind is its own struct implementing Instruction, and
// callers pattern-match with a type switch instead of virtual dispatch.

// Type is the tagged sum of IR types. Only the handful of kinds the passes
// need to reason about are modeled; aggregate and vector types are not
// (obfuscating them is a stated non-goal).
type Type interface {
	String() string
	Bits() int
}

type IntType struct{ Width int }

func (t *IntType) String() string { return fmt.Sprintf("i%d", t.Width) }
func (t *IntType) Bits() int      { return t.Width }

type PointerType struct{ Elem Type }

func (t *PointerType) String() string { return t.Elem.String() + "*" }
func (t *PointerType) Bits() int      { return 64 }

type VoidType struct{}

func (t *VoidType) String() string { return "void" }
func (t *VoidType) Bits() int      { return 0 }

type LabelType struct{}

func (t *LabelType) String() string { return "label" }
func (t *LabelType) Bits() int      { return 0 }

type FuncType struct {
	Params []Type
	Ret    Type
	VarArg bool
}

func (t *FuncType) String() string { return "func" }
func (t *FuncType) Bits() int      { return 0 }

var (
	I1  = &IntType{Width: 1}
	I8  = &IntType{Width: 8}
	I32 = &IntType{Width: 32}
	I64 = &IntType{Width: 64}
)

// Value is the sum type every operand belongs to: an instruction's result,
// a function argument, a constant, a global value reference, or an
// inline-asm blob.
type Value interface {
	Type() Type
	String() string
}

// InstValue is the SSA value produced by a value-producing instruction. It
// owns the instruction's use list, following an arena-style side table
// rather than intrusive pointer cycles: Uses holds the Use records that
// point back at this value's consumers.
type InstValue struct {
	ID    int
	Name  string
	Typ   Type
	Def   Instruction
	Block *BasicBlock
	Uses  []*Use
}

func (v *InstValue) Type() Type { return v.Typ }
func (v *InstValue) String() string {
	if v.Name != "" {
		return "%" + v.Name
	}
	return fmt.Sprintf("%%%d", v.ID)
}

// Use records that Value is consumed by User at operand index Index.
type Use struct {
	Value Value
	User  Instruction
	Index int
}

// Argument is a function parameter.
type Argument struct {
	Name   string
	Typ    Type
	Parent *Function
	Index  int
}

func (a *Argument) Type() Type      { return a.Typ }
func (a *Argument) String() string  { return "%" + a.Name }

// ConstantInt is an integer literal, stored as a raw two's-complement bit
// pattern. Val may carry bits above the type's width (a negative literal
// keeps its full 64-bit pattern); Mask gives the width-truncated value.
type ConstantInt struct {
	Typ Type
	Val uint64
}

func (c *ConstantInt) Type() Type     { return c.Typ }
func (c *ConstantInt) String() string { return fmt.Sprintf("%d", c.Val) }

// Mask returns c.Val truncated to the type's bit width.
func (c *ConstantInt) Mask() uint64 {
	w := c.Typ.Bits()
	if w >= 64 || w <= 0 {
		return c.Val
	}
	return c.Val & ((uint64(1) << uint(w)) - 1)
}

type ConstantNull struct{ Typ Type }

func (c *ConstantNull) Type() Type     { return c.Typ }
func (c *ConstantNull) String() string { return "null" }

// BlockAddress is the address of a basic block taken as a first-class
// constant (e.g. for computed gotos). Func2Mod counts a BlockAddress
// operand as a reference to its function, which forces that function into
// the remainder partition.
type BlockAddress struct {
	Fn *Function
	BB *BasicBlock
}

func (b *BlockAddress) Type() Type     { return &PointerType{Elem: &IntType{Width: 8}} }
func (b *BlockAddress) String() string { return fmt.Sprintf("blockaddress(@%s, %%%s)", b.Fn.Name, b.BB.Name) }

// GlobalRef is a reference to a Function or GlobalVariable used as an
// operand (its address).
type GlobalRef struct {
	Target GlobalValue
}

func (g *GlobalRef) Type() Type     { return &PointerType{Elem: &IntType{Width: 8}} }
func (g *GlobalRef) String() string { return "@" + g.Target.GlobalName() }

// InlineAsmValue is an inline-assembly blob usable as a call target.
type InlineAsmValue struct {
	Typ         *FuncType
	Asm         string
	Constraints string
}

func (i *InlineAsmValue) Type() Type     { return i.Typ }
func (i *InlineAsmValue) String() string { return fmt.Sprintf("asm %q", i.Asm) }

// Linkage mirrors the handful of LLVM linkage kinds the passes care about.
type Linkage int

const (
	LinkageExternal Linkage = iota
	LinkageInternal
	LinkagePrivate
)

func (l Linkage) String() string {
	switch l {
	case LinkageInternal:
		return "internal"
	case LinkagePrivate:
		return "private"
	default:
		return "external"
	}
}

// DLLStorageClass mirrors LLVM's DLL import/export annotation, used by
// Func2Mod to mark cross-module-visible symbols.
type DLLStorageClass int

const (
	DLLStorageDefault DLLStorageClass = iota
	DLLStorageImport
	DLLStorageExport
)

// Attribute is a function attribute flag.
type Attribute int

const (
	AttrNoInline Attribute = iota
	AttrOptimizeNone
)

// GlobalValue is the interface shared by Function, GlobalVariable and
// Alias: anything Func2Mod can partition and externalize.
type GlobalValue interface {
	Value
	GlobalName() string
	SetGlobalName(string)
	GetLinkage() Linkage
	SetLinkage(Linkage)
	GetDLLStorageClass() DLLStorageClass
	SetDLLStorageClass(DLLStorageClass)
	Comdat() string
	SetComdat(string)
	DSOLocal() bool
	SetDSOLocal(bool)
	IsDeclarationGV() bool
}

type globalBase struct {
	Name            string
	Linkage         Linkage
	DLLClass        DLLStorageClass
	ComdatGroup     string
	DSOLocalFlag    bool
	declarationOnly bool
}

func (g *globalBase) GlobalName() string                     { return g.Name }
func (g *globalBase) SetGlobalName(n string)                  { g.Name = n }
func (g *globalBase) GetLinkage() Linkage                     { return g.Linkage }
func (g *globalBase) SetLinkage(l Linkage)                    { g.Linkage = l }
func (g *globalBase) GetDLLStorageClass() DLLStorageClass     { return g.DLLClass }
func (g *globalBase) SetDLLStorageClass(c DLLStorageClass)    { g.DLLClass = c }
func (g *globalBase) Comdat() string                          { return g.ComdatGroup }
func (g *globalBase) SetComdat(c string)                       { g.ComdatGroup = c }
func (g *globalBase) DSOLocal() bool                          { return g.DSOLocalFlag }
func (g *globalBase) SetDSOLocal(v bool)                      { g.DSOLocalFlag = v }
func (g *globalBase) IsDeclarationGV() bool                   { return g.declarationOnly }

// GlobalVariable is a module-level storage location.
type GlobalVariable struct {
	globalBase
	Typ          Type
	Initializer  Value
}

func (g *GlobalVariable) Type() Type     { return &PointerType{Elem: g.Typ} }
func (g *GlobalVariable) String() string { return "@" + g.Name }

// Alias is a named alternate symbol for another global value.
type Alias struct {
	globalBase
	Aliasee GlobalValue
}

func (a *Alias) Type() Type     { return a.Aliasee.Type() }
func (a *Alias) String() string { return "@" + a.Name }

// IFunc is an indirect-function symbol resolved at load time; modeled only
// enough to be partitionable by Func2Mod.
type IFunc struct {
	globalBase
	Resolver *Function
}

func (f *IFunc) Type() Type     { return &PointerType{Elem: &IntType{Width: 8}} }
func (f *IFunc) String() string { return "@" + f.Name }

// Parameter is a function's formal parameter declaration.
type Parameter struct {
	Name string
	Typ  Type
}

// Function is a named, typed region of basic blocks, or a bare declaration
// when Blocks is empty.
type Function struct {
	globalBase
	Params      []*Parameter
	Args        []*Argument
	ReturnType  Type
	VarArg      bool
	CallingConv int
	Attrs       map[Attribute]bool
	Blocks      []*BasicBlock
	Parent      *Module
}

func (f *Function) Type() Type { return &PointerType{Elem: &FuncType{Ret: f.ReturnType}} }
func (f *Function) String() string { return "@" + f.Name }

func (f *Function) Entry() *BasicBlock {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

func (f *Function) HasAttr(a Attribute) bool { return f.Attrs != nil && f.Attrs[a] }

func (f *Function) AddAttr(a Attribute) {
	if f.Attrs == nil {
		f.Attrs = map[Attribute]bool{}
	}
	f.Attrs[a] = true
}

func (f *Function) FuncType() *FuncType {
	ft := &FuncType{Ret: f.ReturnType, VarArg: f.VarArg}
	for _, p := range f.Params {
		ft.Params = append(ft.Params, p.Typ)
	}
	return ft
}

// BasicBlock is a maximal straight-line sequence of instructions ending in
// exactly one terminator.
type BasicBlock struct {
	Name         string
	Parent       *Function
	Instructions []Instruction
	Terminator   Terminator
}

func (b *BasicBlock) String() string { return "%" + b.Name }

// AllInstructions returns the block's body plus its terminator, in order.
func (b *BasicBlock) AllInstructions() []Instruction {
	if b.Terminator == nil {
		return b.Instructions
	}
	return append(append([]Instruction{}, b.Instructions...), b.Terminator)
}

// Successors returns the blocks this block's terminator may transfer
// control to.
func (b *BasicBlock) Successors() []*BasicBlock {
	if b.Terminator == nil {
		return nil
	}
	return b.Terminator.Successors()
}

// Module is the top-level container: an ordered collection of functions,
// globals and aliases plus module-wide metadata.
type Module struct {
	Identifier     string
	TargetTriple   string
	ModuleInlineAsm string
	Functions      []*Function
	Globals        []*GlobalVariable
	Aliases        []*Alias
	IFuncs         []*IFunc
}

// AllGlobalValues returns every GlobalValue the module owns, in a stable
// order (functions, then globals, then aliases, then ifuncs).
func (m *Module) AllGlobalValues() []GlobalValue {
	var out []GlobalValue
	for _, f := range m.Functions {
		out = append(out, f)
	}
	for _, g := range m.Globals {
		out = append(out, g)
	}
	for _, a := range m.Aliases {
		out = append(out, a)
	}
	for _, i := range m.IFuncs {
		out = append(out, i)
	}
	return out
}

func (m *Module) FunctionByName(name string) *Function {
	for _, f := range m.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}
