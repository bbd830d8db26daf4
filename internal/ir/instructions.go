package ir

import (
	"fmt"
	"strings"
)

// Instruction kinds. Each is a plain struct carrying its own operand
// fields; the common behavior (ID, result, operand list, parent block) is
// implemented per-kind below rather than through embedding, so that each
// kind's operand accessors stay exact.

type Instruction interface {
	InstID() int
	Result() *InstValue
	Operands() []Value
	SetOperand(i int, v Value)
	Parent() *BasicBlock
	setParent(*BasicBlock)
	IsTerminator() bool
	String() string
}

type Terminator interface {
	Instruction
	Successors() []*BasicBlock
}

// BinOp enumerates the integer binary operators the passes rewrite.
type BinOp int

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpUDiv
	OpSDiv
	OpURem
	OpSRem
	OpShl
	OpLShr
	OpAShr
	OpAnd
	OpOr
	OpXor
)

func (o BinOp) String() string {
	return [...]string{"add", "sub", "mul", "udiv", "sdiv", "urem", "srem", "shl", "lshr", "ashr", "and", "or", "xor"}[o]
}

// ICmpPred enumerates integer comparison predicates.
type ICmpPred int

const (
	ICmpEQ ICmpPred = iota
	ICmpNE
	ICmpUGT
	ICmpUGE
	ICmpULT
	ICmpULE
	ICmpSGT
	ICmpSGE
	ICmpSLT
	ICmpSLE
)

func (p ICmpPred) String() string {
	return [...]string{"eq", "ne", "ugt", "uge", "ult", "ule", "sgt", "sge", "slt", "sle"}[p]
}

// CastOp enumerates the integer/pointer conversions the IR supports.
type CastOp int

const (
	CastZExt CastOp = iota
	CastSExt
	CastTrunc
	CastIntToPtr
	CastPtrToInt
	CastBitcast
)

func (c CastOp) String() string {
	return [...]string{"zext", "sext", "trunc", "inttoptr", "ptrtoint", "bitcast"}[c]
}

// --- non-terminator instructions ---

type AllocaInst struct {
	ID    int
	Res   *InstValue
	Alloc Type
	block *BasicBlock
}

func (i *AllocaInst) InstID() int            { return i.ID }
func (i *AllocaInst) Result() *InstValue     { return i.Res }
func (i *AllocaInst) Operands() []Value      { return nil }
func (i *AllocaInst) SetOperand(int, Value)  {}
func (i *AllocaInst) Parent() *BasicBlock    { return i.block }
func (i *AllocaInst) setParent(b *BasicBlock) { i.block = b }
func (i *AllocaInst) IsTerminator() bool     { return false }
func (i *AllocaInst) String() string         { return i.Res.String() + " = alloca " + i.Alloc.String() }

type LoadInst struct {
	ID    int
	Res   *InstValue
	Addr  Value
	block *BasicBlock
}

func (i *LoadInst) InstID() int        { return i.ID }
func (i *LoadInst) Result() *InstValue { return i.Res }
func (i *LoadInst) Operands() []Value  { return []Value{i.Addr} }
func (i *LoadInst) SetOperand(idx int, v Value) {
	if idx == 0 {
		i.Addr = v
	}
}
func (i *LoadInst) Parent() *BasicBlock     { return i.block }
func (i *LoadInst) setParent(b *BasicBlock) { i.block = b }
func (i *LoadInst) IsTerminator() bool      { return false }
func (i *LoadInst) String() string          { return i.Res.String() + " = load " + i.Addr.String() }

type StoreInst struct {
	ID    int
	Addr  Value
	Val   Value
	block *BasicBlock
}

func (i *StoreInst) InstID() int        { return i.ID }
func (i *StoreInst) Result() *InstValue { return nil }
func (i *StoreInst) Operands() []Value  { return []Value{i.Val, i.Addr} }
func (i *StoreInst) SetOperand(idx int, v Value) {
	switch idx {
	case 0:
		i.Val = v
	case 1:
		i.Addr = v
	}
}
func (i *StoreInst) Parent() *BasicBlock     { return i.block }
func (i *StoreInst) setParent(b *BasicBlock) { i.block = b }
func (i *StoreInst) IsTerminator() bool      { return false }
func (i *StoreInst) String() string          { return "store " + i.Val.String() + ", " + i.Addr.String() }

type BinaryInst struct {
	ID    int
	Res   *InstValue
	Op    BinOp
	LHS   Value
	RHS   Value
	block *BasicBlock
}

func (i *BinaryInst) InstID() int        { return i.ID }
func (i *BinaryInst) Result() *InstValue { return i.Res }
func (i *BinaryInst) Operands() []Value  { return []Value{i.LHS, i.RHS} }
func (i *BinaryInst) SetOperand(idx int, v Value) {
	switch idx {
	case 0:
		i.LHS = v
	case 1:
		i.RHS = v
	}
}
func (i *BinaryInst) Parent() *BasicBlock     { return i.block }
func (i *BinaryInst) setParent(b *BasicBlock) { i.block = b }
func (i *BinaryInst) IsTerminator() bool      { return false }
func (i *BinaryInst) String() string {
	return i.Res.String() + " = " + i.Op.String() + " " + i.LHS.String() + ", " + i.RHS.String()
}

type ICmpInst struct {
	ID    int
	Res   *InstValue
	Pred  ICmpPred
	LHS   Value
	RHS   Value
	block *BasicBlock
}

func (i *ICmpInst) InstID() int        { return i.ID }
func (i *ICmpInst) Result() *InstValue { return i.Res }
func (i *ICmpInst) Operands() []Value  { return []Value{i.LHS, i.RHS} }
func (i *ICmpInst) SetOperand(idx int, v Value) {
	switch idx {
	case 0:
		i.LHS = v
	case 1:
		i.RHS = v
	}
}
func (i *ICmpInst) Parent() *BasicBlock     { return i.block }
func (i *ICmpInst) setParent(b *BasicBlock) { i.block = b }
func (i *ICmpInst) IsTerminator() bool      { return false }
func (i *ICmpInst) String() string {
	return i.Res.String() + " = icmp " + i.Pred.String() + " " + i.LHS.String() + ", " + i.RHS.String()
}

type CastInst struct {
	ID    int
	Res   *InstValue
	Op    CastOp
	Src   Value
	block *BasicBlock
}

func (i *CastInst) InstID() int        { return i.ID }
func (i *CastInst) Result() *InstValue { return i.Res }
func (i *CastInst) Operands() []Value  { return []Value{i.Src} }
func (i *CastInst) SetOperand(idx int, v Value) {
	if idx == 0 {
		i.Src = v
	}
}
func (i *CastInst) Parent() *BasicBlock     { return i.block }
func (i *CastInst) setParent(b *BasicBlock) { i.block = b }
func (i *CastInst) IsTerminator() bool      { return false }
func (i *CastInst) String() string {
	return i.Res.String() + " = " + i.Op.String() + " " + i.Src.String() + " to " + i.Res.Typ.String()
}

type SelectInst struct {
	ID                    int
	Res                   *InstValue
	Cond, TrueV, FalseV   Value
	block                 *BasicBlock
}

func (i *SelectInst) InstID() int        { return i.ID }
func (i *SelectInst) Result() *InstValue { return i.Res }
func (i *SelectInst) Operands() []Value  { return []Value{i.Cond, i.TrueV, i.FalseV} }
func (i *SelectInst) SetOperand(idx int, v Value) {
	switch idx {
	case 0:
		i.Cond = v
	case 1:
		i.TrueV = v
	case 2:
		i.FalseV = v
	}
}
func (i *SelectInst) Parent() *BasicBlock     { return i.block }
func (i *SelectInst) setParent(b *BasicBlock) { i.block = b }
func (i *SelectInst) IsTerminator() bool      { return false }
func (i *SelectInst) String() string {
	return i.Res.String() + " = select " + i.Cond.String() + ", " + i.TrueV.String() + ", " + i.FalseV.String()
}

type GEPInst struct {
	ID      int
	Res     *InstValue
	Base    Value
	Indices []Value
	block   *BasicBlock
}

func (i *GEPInst) InstID() int        { return i.ID }
func (i *GEPInst) Result() *InstValue { return i.Res }
func (i *GEPInst) Operands() []Value  { return append([]Value{i.Base}, i.Indices...) }
func (i *GEPInst) SetOperand(idx int, v Value) {
	if idx == 0 {
		i.Base = v
		return
	}
	if idx-1 < len(i.Indices) {
		i.Indices[idx-1] = v
	}
}
func (i *GEPInst) Parent() *BasicBlock     { return i.block }
func (i *GEPInst) setParent(b *BasicBlock) { i.block = b }
func (i *GEPInst) IsTerminator() bool      { return false }
func (i *GEPInst) String() string          { return i.Res.String() + " = getelementptr " + i.Base.String() }

// PHIEdge is one incoming (predecessor, value) pair of a PHIInst.
type PHIEdge struct {
	Block *BasicBlock
	Val   Value
}

type PHIInst struct {
	ID       int
	Res      *InstValue
	Incoming []PHIEdge
	block    *BasicBlock
}

func (i *PHIInst) InstID() int        { return i.ID }
func (i *PHIInst) Result() *InstValue { return i.Res }
func (i *PHIInst) Operands() []Value {
	vals := make([]Value, len(i.Incoming))
	for k, e := range i.Incoming {
		vals[k] = e.Val
	}
	return vals
}
func (i *PHIInst) SetOperand(idx int, v Value) {
	if idx < len(i.Incoming) {
		i.Incoming[idx].Val = v
	}
}
func (i *PHIInst) Parent() *BasicBlock     { return i.block }
func (i *PHIInst) setParent(b *BasicBlock) { i.block = b }
func (i *PHIInst) IsTerminator() bool      { return false }
func (i *PHIInst) String() string {
	parts := make([]string, len(i.Incoming))
	for k, e := range i.Incoming {
		parts[k] = fmt.Sprintf("[ %s, %s ]", e.Val.String(), e.Block.String())
	}
	return i.Res.String() + " = phi " + strings.Join(parts, ", ")
}

type CallInst struct {
	ID          int
	Res         *InstValue // nil for void calls
	Callee      *Function
	Args        []Value
	CallingConv int // 0 = default C convention; ObfCall assigns a target-specific ID here
	block       *BasicBlock
}

func (i *CallInst) InstID() int        { return i.ID }
func (i *CallInst) Result() *InstValue { return i.Res }
func (i *CallInst) Operands() []Value  { return i.Args }
func (i *CallInst) SetOperand(idx int, v Value) {
	if idx < len(i.Args) {
		i.Args[idx] = v
	}
}
func (i *CallInst) Parent() *BasicBlock     { return i.block }
func (i *CallInst) setParent(b *BasicBlock) { i.block = b }
func (i *CallInst) IsTerminator() bool      { return false }
func (i *CallInst) String() string {
	s := "call @" + i.Callee.Name
	if i.Res != nil {
		s = i.Res.String() + " = " + s
	}
	return s
}

// InlineAsmCallInst calls an inline-assembly blob, kept for data-model
// completeness (spec.md §3 lists "InlineAsm call" as a key opcode); no
// pass in this rewrite emits one (Connect uses the generateGarbage
// alternative instead, see DESIGN.md).
type InlineAsmCallInst struct {
	ID    int
	Res   *InstValue
	Asm   *InlineAsmValue
	Args  []Value
	block *BasicBlock
}

func (i *InlineAsmCallInst) InstID() int        { return i.ID }
func (i *InlineAsmCallInst) Result() *InstValue { return i.Res }
func (i *InlineAsmCallInst) Operands() []Value  { return i.Args }
func (i *InlineAsmCallInst) SetOperand(idx int, v Value) {
	if idx < len(i.Args) {
		i.Args[idx] = v
	}
}
func (i *InlineAsmCallInst) Parent() *BasicBlock     { return i.block }
func (i *InlineAsmCallInst) setParent(b *BasicBlock) { i.block = b }
func (i *InlineAsmCallInst) IsTerminator() bool      { return false }
func (i *InlineAsmCallInst) String() string          { return "call " + i.Asm.String() }

// --- terminators ---

type ReturnInst struct {
	ID    int
	Val   Value // nil for void return
	block *BasicBlock
}

func (i *ReturnInst) InstID() int        { return i.ID }
func (i *ReturnInst) Result() *InstValue { return nil }
func (i *ReturnInst) Operands() []Value {
	if i.Val == nil {
		return nil
	}
	return []Value{i.Val}
}
func (i *ReturnInst) SetOperand(idx int, v Value) {
	if idx == 0 {
		i.Val = v
	}
}
func (i *ReturnInst) Parent() *BasicBlock       { return i.block }
func (i *ReturnInst) setParent(b *BasicBlock)   { i.block = b }
func (i *ReturnInst) IsTerminator() bool        { return true }
func (i *ReturnInst) Successors() []*BasicBlock { return nil }
func (i *ReturnInst) String() string {
	if i.Val == nil {
		return "ret void"
	}
	return "ret " + i.Val.String()
}

type BranchInst struct {
	ID     int
	Target *BasicBlock
	block  *BasicBlock
}

func (i *BranchInst) InstID() int                 { return i.ID }
func (i *BranchInst) Result() *InstValue          { return nil }
func (i *BranchInst) Operands() []Value           { return nil }
func (i *BranchInst) SetOperand(int, Value)       {}
func (i *BranchInst) Parent() *BasicBlock         { return i.block }
func (i *BranchInst) setParent(b *BasicBlock)     { i.block = b }
func (i *BranchInst) IsTerminator() bool          { return true }
func (i *BranchInst) Successors() []*BasicBlock   { return []*BasicBlock{i.Target} }
func (i *BranchInst) String() string              { return "br label " + i.Target.String() }

type CondBranchInst struct {
	ID               int
	Cond             Value
	TrueBB, FalseBB  *BasicBlock
	block            *BasicBlock
}

func (i *CondBranchInst) InstID() int        { return i.ID }
func (i *CondBranchInst) Result() *InstValue { return nil }
func (i *CondBranchInst) Operands() []Value  { return []Value{i.Cond} }
func (i *CondBranchInst) SetOperand(idx int, v Value) {
	if idx == 0 {
		i.Cond = v
	}
}
func (i *CondBranchInst) Parent() *BasicBlock     { return i.block }
func (i *CondBranchInst) setParent(b *BasicBlock) { i.block = b }
func (i *CondBranchInst) IsTerminator() bool      { return true }
func (i *CondBranchInst) Successors() []*BasicBlock {
	return []*BasicBlock{i.TrueBB, i.FalseBB}
}
func (i *CondBranchInst) String() string {
	return "br " + i.Cond.String() + ", label " + i.TrueBB.String() + ", label " + i.FalseBB.String()
}

// SwitchCase is one (value, destination) arm of a SwitchInst.
type SwitchCase struct {
	Val *ConstantInt
	BB  *BasicBlock
}

type SwitchInst struct {
	ID      int
	Cond    Value
	Default *BasicBlock
	Cases   []SwitchCase
	block   *BasicBlock
}

func (i *SwitchInst) InstID() int        { return i.ID }
func (i *SwitchInst) Result() *InstValue { return nil }
func (i *SwitchInst) Operands() []Value  { return []Value{i.Cond} }
func (i *SwitchInst) SetOperand(idx int, v Value) {
	if idx == 0 {
		i.Cond = v
	}
}
func (i *SwitchInst) Parent() *BasicBlock     { return i.block }
func (i *SwitchInst) setParent(b *BasicBlock) { i.block = b }
func (i *SwitchInst) IsTerminator() bool      { return true }
func (i *SwitchInst) Successors() []*BasicBlock {
	out := []*BasicBlock{i.Default}
	for _, c := range i.Cases {
		out = append(out, c.BB)
	}
	return out
}
func (i *SwitchInst) String() string { return "switch " + i.Cond.String() }

// AddCase appends a case routing the caller-supplied value val to bb,
// mirroring LLVM's SwitchInst::addCase; the caller picks every case value.
func (i *SwitchInst) AddCase(val *ConstantInt, bb *BasicBlock) {
	i.Cases = append(i.Cases, SwitchCase{Val: val, BB: bb})
}

func (i *SwitchInst) FindCase(bb *BasicBlock) *ConstantInt {
	for _, c := range i.Cases {
		if c.BB == bb {
			return c.Val
		}
	}
	return nil
}

type UnreachableInst struct {
	ID    int
	block *BasicBlock
}

func (i *UnreachableInst) InstID() int                 { return i.ID }
func (i *UnreachableInst) Result() *InstValue          { return nil }
func (i *UnreachableInst) Operands() []Value           { return nil }
func (i *UnreachableInst) SetOperand(int, Value)       {}
func (i *UnreachableInst) Parent() *BasicBlock         { return i.block }
func (i *UnreachableInst) setParent(b *BasicBlock)     { i.block = b }
func (i *UnreachableInst) IsTerminator() bool          { return true }
func (i *UnreachableInst) Successors() []*BasicBlock   { return nil }
func (i *UnreachableInst) String() string              { return "unreachable" }

// InvokeInst models a call with an exception edge. Every pass that would
// otherwise mutate control flow checks for this terminator first and opts
// out (spec.md §1 Non-goals: "handling of invoke/landing-pad exception
// edges (passes opt out when encountered)").
type InvokeInst struct {
	ID                int
	Res               *InstValue
	Callee            *Function
	Args              []Value
	NormalBB, UnwindBB *BasicBlock
	block             *BasicBlock
}

func (i *InvokeInst) InstID() int        { return i.ID }
func (i *InvokeInst) Result() *InstValue { return i.Res }
func (i *InvokeInst) Operands() []Value  { return i.Args }
func (i *InvokeInst) SetOperand(idx int, v Value) {
	if idx < len(i.Args) {
		i.Args[idx] = v
	}
}
func (i *InvokeInst) Parent() *BasicBlock     { return i.block }
func (i *InvokeInst) setParent(b *BasicBlock) { i.block = b }
func (i *InvokeInst) IsTerminator() bool      { return true }
func (i *InvokeInst) Successors() []*BasicBlock {
	return []*BasicBlock{i.NormalBB, i.UnwindBB}
}
func (i *InvokeInst) String() string { return "invoke @" + i.Callee.Name }

// HasInvoke reports whether f contains an InvokeInst anywhere, the
// precondition every CFG-mutating pass checks before proceeding.
func HasInvoke(f *Function) bool {
	for _, b := range f.Blocks {
		if _, ok := b.Terminator.(*InvokeInst); ok {
			return true
		}
	}
	return false
}
