package asmir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/pkg/errors"

	"obfuscate/internal/ir"
)

var parser *participle.Parser[File]

func init() {
	p, err := participle.Build[File](
		participle.Lexer(AsmLexer),
		participle.Elide("Whitespace", "Comment"),
		participle.UseLookahead(4),
	)
	if err != nil {
		panic(err)
	}
	parser = p
}

// Parse builds an *ir.Module from source written in this package's
// textual SSA-assembly dialect (see grammar.go's doc comment).
func Parse(src string) (*ir.Module, error) {
	f, err := parser.ParseString("", src)
	if err != nil {
		return nil, errors.Wrap(err, "parsing asm source")
	}
	return build(f)
}

func unquote(s string) string {
	u, err := strconv.Unquote(s)
	if err != nil {
		return strings.Trim(s, `"`)
	}
	return u
}

func resolveType(t *TypeRef) (ir.Type, error) {
	var base ir.Type
	switch t.Name {
	case "void":
		base = &ir.VoidType{}
	case "label":
		base = &ir.LabelType{}
	default:
		if !strings.HasPrefix(t.Name, "i") {
			return nil, fmt.Errorf("asmir: unknown type %q", t.Name)
		}
		w, err := strconv.Atoi(t.Name[1:])
		if err != nil {
			return nil, fmt.Errorf("asmir: bad integer type %q", t.Name)
		}
		base = &ir.IntType{Width: w}
	}
	for range t.Ptr {
		base = &ir.PointerType{Elem: base}
	}
	return base, nil
}

func build(f *File) (*ir.Module, error) {
	b := ir.NewBuilder()
	triple := ""
	if f.Triple != nil {
		triple = unquote(*f.Triple)
	}
	m := ir.NewModule(unquote(f.ModuleName), triple)

	fns := map[string]*ir.Function{}
	globals := map[string]*ir.GlobalVariable{}

	for _, item := range f.Items {
		if item.Func == nil {
			continue
		}
		fd := item.Func
		ret, err := resolveType(fd.Ret)
		if err != nil {
			return nil, err
		}
		var params []*ir.Parameter
		for _, p := range fd.Params {
			pt, err := resolveType(p.Type)
			if err != nil {
				return nil, err
			}
			params = append(params, &ir.Parameter{Name: p.Name, Typ: pt})
		}
		fn := b.NewFunction(m, fd.Name, ret, params)
		if fd.Internal {
			fn.SetLinkage(ir.LinkageInternal)
		}
		fns[fd.Name] = fn
	}

	for _, item := range f.Items {
		if item.Global == nil {
			continue
		}
		gd := item.Global
		gt, err := resolveType(gd.Type)
		if err != nil {
			return nil, err
		}
		gv := &ir.GlobalVariable{Typ: gt}
		gv.SetGlobalName(gd.Name)
		if gd.Internal {
			gv.SetLinkage(ir.LinkageInternal)
		} else {
			gv.SetLinkage(ir.LinkageExternal)
		}
		if gd.Init != nil {
			iv, err := buildConstOperand(gd.Init, gt, fns, globals)
			if err != nil {
				return nil, err
			}
			gv.Initializer = iv
		}
		m.Globals = append(m.Globals, gv)
		globals[gd.Name] = gv
	}

	for _, item := range f.Items {
		if item.Func == nil || item.Func.Body == nil {
			continue
		}
		if err := buildFunctionBody(b, fns[item.Func.Name], item.Func.Body, fns, globals); err != nil {
			return nil, errors.Wrapf(err, "function %s", item.Func.Name)
		}
	}
	return m, nil
}

func buildConstOperand(v *Value, typ ir.Type, fns map[string]*ir.Function, globals map[string]*ir.GlobalVariable) (ir.Value, error) {
	switch {
	case v.Int != nil:
		n, err := strconv.ParseInt(*v.Int, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("asmir: bad integer literal %q", *v.Int)
		}
		if typ == nil {
			// Untyped literal reached through the plain (non-typed) operand
			// path — only conditions (i1) take that path in practice.
			typ = ir.I1
		}
		return &ir.ConstantInt{Typ: typ, Val: uint64(n)}, nil
	case v.Null:
		if typ == nil {
			typ = &ir.PointerType{Elem: ir.I8}
		}
		return &ir.ConstantNull{Typ: typ}, nil
	case v.Global != nil:
		if fn, ok := fns[*v.Global]; ok {
			return &ir.GlobalRef{Target: fn}, nil
		}
		if g, ok := globals[*v.Global]; ok {
			return &ir.GlobalRef{Target: g}, nil
		}
		return nil, fmt.Errorf("asmir: undefined global @%s", *v.Global)
	default:
		return nil, fmt.Errorf("asmir: local value not valid in this context")
	}
}

// phiJob is a deferred PHI-edge resolution: incoming values may reference
// SSA values or blocks not yet built when the phi itself is encountered
// (loop back-edges), so every phi's edges are wired after every block in
// the function has been fully built.
type phiJob struct {
	bb   *ir.BasicBlock
	inst *ir.PHIInst
	rhs  *PhiRHS
	typ  ir.Type
}

func buildFunctionBody(b *ir.Builder, fn *ir.Function, body *FuncBody, fns map[string]*ir.Function, globals map[string]*ir.GlobalVariable) error {
	blocks := map[string]*ir.BasicBlock{}
	for _, blk := range body.Blocks {
		blocks[blk.Label] = b.NewBlock(fn, blk.Label)
	}

	vals := map[string]ir.Value{}
	for _, a := range fn.Args {
		vals[a.Name] = a
	}
	lookup := func(v *Value) (ir.Value, error) {
		switch {
		case v.Local != nil:
			val, ok := vals[*v.Local]
			if !ok {
				return nil, fmt.Errorf("asmir: undefined value %%%s", *v.Local)
			}
			return val, nil
		default:
			return buildConstOperand(v, nil, fns, globals)
		}
	}
	typedLookup := func(tv *TypedValue) (ir.Value, error) {
		typ, err := resolveType(tv.Type)
		if err != nil {
			return nil, err
		}
		if tv.Val.Local != nil {
			return lookup(tv.Val)
		}
		return buildConstOperand(tv.Val, typ, fns, globals)
	}

	var phiJobs []phiJob

	for _, blk := range body.Blocks {
		bb := blocks[blk.Label]
		for _, inst := range blk.Insts {
			switch {
			case inst.Assign != nil:
				name := inst.Assign.Name
				res, job, err := buildAssign(b, bb, inst.Assign.RHS, fns, lookup, typedLookup)
				if err != nil {
					return err
				}
				if job != nil {
					job.rhs = inst.Assign.RHS.Phi
					phiJobs = append(phiJobs, *job)
				}
				vals[name] = res
			case inst.Store != nil:
				val, err := typedLookup(inst.Store.Val)
				if err != nil {
					return err
				}
				addr, err := lookup(inst.Store.Addr)
				if err != nil {
					return err
				}
				b.Store(bb, val, addr)
			case inst.Br != nil:
				target, ok := blocks[inst.Br.Target]
				if !ok {
					return fmt.Errorf("asmir: undefined block %%%s", inst.Br.Target)
				}
				b.Br(bb, target)
			case inst.CondBr != nil:
				cond, err := lookup(inst.CondBr.Cond)
				if err != nil {
					return err
				}
				t, ok := blocks[inst.CondBr.True]
				if !ok {
					return fmt.Errorf("asmir: undefined block %%%s", inst.CondBr.True)
				}
				fbb, ok := blocks[inst.CondBr.False]
				if !ok {
					return fmt.Errorf("asmir: undefined block %%%s", inst.CondBr.False)
				}
				b.CondBr(bb, cond, t, fbb)
			case inst.Ret != nil:
				if inst.Ret.Void {
					b.Ret(bb, nil)
				} else {
					v, err := typedLookup(inst.Ret.Val)
					if err != nil {
						return err
					}
					b.Ret(bb, v)
				}
			case inst.Unreachable:
				b.Unreachable(bb)
			}
		}
	}

	for _, job := range phiJobs {
		for _, edge := range job.rhs.Incoming {
			var v ir.Value
			var err error
			if edge.Val.Local != nil {
				v, err = lookup(edge.Val)
			} else {
				v, err = buildConstOperand(edge.Val, job.typ, fns, globals)
			}
			if err != nil {
				return err
			}
			srcBB, ok := blocks[edge.Block]
			if !ok {
				return fmt.Errorf("asmir: undefined block %%%s", edge.Block)
			}
			job.inst.AddIncoming(srcBB, v)
		}
	}
	// Prepend phis in reverse collection order so their final order within
	// each block matches source order (InsertPhiFront always prepends to
	// the absolute front).
	for i := len(phiJobs) - 1; i >= 0; i-- {
		b.InsertPhiFront(phiJobs[i].bb, phiJobs[i].inst)
	}

	return nil
}

func buildAssign(b *ir.Builder, bb *ir.BasicBlock, rhs *RHS, fns map[string]*ir.Function, lookup func(*Value) (ir.Value, error), typedLookup func(*TypedValue) (ir.Value, error)) (ir.Value, *phiJob, error) {
	switch {
	case rhs.Alloca != nil:
		typ, err := resolveType(rhs.Alloca.Type)
		if err != nil {
			return nil, nil, err
		}
		return b.Alloca(bb, typ, ""), nil, nil

	case rhs.Load != nil:
		typ, err := resolveType(rhs.Load.Type)
		if err != nil {
			return nil, nil, err
		}
		addr, err := lookup(rhs.Load.Addr)
		if err != nil {
			return nil, nil, err
		}
		return b.Load(bb, addr, typ, ""), nil, nil

	case rhs.Binary != nil:
		op, err := binOpFromString(rhs.Binary.Op)
		if err != nil {
			return nil, nil, err
		}
		typ, err := resolveType(rhs.Binary.Typ)
		if err != nil {
			return nil, nil, err
		}
		lhs, err := buildConstOrLookup(rhs.Binary.LHS, typ, fns, lookup)
		if err != nil {
			return nil, nil, err
		}
		rval, err := buildConstOrLookup(rhs.Binary.RHS, typ, fns, lookup)
		if err != nil {
			return nil, nil, err
		}
		return b.Binary(bb, op, lhs, rval, ""), nil, nil

	case rhs.ICmp != nil:
		pred, err := icmpPredFromString(rhs.ICmp.Pred)
		if err != nil {
			return nil, nil, err
		}
		typ, err := resolveType(rhs.ICmp.Typ)
		if err != nil {
			return nil, nil, err
		}
		lhs, err := buildConstOrLookup(rhs.ICmp.LHS, typ, fns, lookup)
		if err != nil {
			return nil, nil, err
		}
		rval, err := buildConstOrLookup(rhs.ICmp.RHS, typ, fns, lookup)
		if err != nil {
			return nil, nil, err
		}
		return b.ICmp(bb, pred, lhs, rval, ""), nil, nil

	case rhs.Cast != nil:
		op, err := castOpFromString(rhs.Cast.Op)
		if err != nil {
			return nil, nil, err
		}
		from, err := resolveType(rhs.Cast.From)
		if err != nil {
			return nil, nil, err
		}
		to, err := resolveType(rhs.Cast.To)
		if err != nil {
			return nil, nil, err
		}
		src, err := buildConstOrLookup(rhs.Cast.Val, from, fns, lookup)
		if err != nil {
			return nil, nil, err
		}
		return b.Cast(bb, op, src, to, ""), nil, nil

	case rhs.Select != nil:
		cond, err := lookup(rhs.Select.Cond)
		if err != nil {
			return nil, nil, err
		}
		t, err := typedLookup(rhs.Select.True)
		if err != nil {
			return nil, nil, err
		}
		f, err := typedLookup(rhs.Select.False)
		if err != nil {
			return nil, nil, err
		}
		return b.Select(bb, cond, t, f, ""), nil, nil

	case rhs.Call != nil:
		callee, ok := fns[rhs.Call.Callee]
		if !ok {
			return nil, nil, fmt.Errorf("asmir: undefined function @%s", rhs.Call.Callee)
		}
		var args []ir.Value
		for _, a := range rhs.Call.Args {
			v, err := typedLookup(a)
			if err != nil {
				return nil, nil, err
			}
			args = append(args, v)
		}
		return b.Call(bb, callee, args, ""), nil, nil

	case rhs.Phi != nil:
		typ, err := resolveType(rhs.Phi.Typ)
		if err != nil {
			return nil, nil, err
		}
		phi := b.Phi(bb, typ, "")
		return phi.Result(), &phiJob{bb: bb, inst: phi, typ: typ}, nil
	}
	return nil, nil, fmt.Errorf("asmir: empty instruction RHS")
}

func buildConstOrLookup(v *Value, typ ir.Type, fns map[string]*ir.Function, lookup func(*Value) (ir.Value, error)) (ir.Value, error) {
	if v.Local != nil {
		return lookup(v)
	}
	return buildConstOperand(v, typ, fns, nil)
}

func binOpFromString(s string) (ir.BinOp, error) {
	ops := []ir.BinOp{ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpUDiv, ir.OpSDiv, ir.OpURem, ir.OpSRem, ir.OpShl, ir.OpLShr, ir.OpAShr, ir.OpAnd, ir.OpOr, ir.OpXor}
	for _, op := range ops {
		if op.String() == s {
			return op, nil
		}
	}
	return 0, fmt.Errorf("asmir: unknown binary op %q", s)
}

func icmpPredFromString(s string) (ir.ICmpPred, error) {
	preds := []ir.ICmpPred{ir.ICmpEQ, ir.ICmpNE, ir.ICmpUGT, ir.ICmpUGE, ir.ICmpULT, ir.ICmpULE, ir.ICmpSGT, ir.ICmpSGE, ir.ICmpSLT, ir.ICmpSLE}
	for _, p := range preds {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("asmir: unknown icmp predicate %q", s)
}

func castOpFromString(s string) (ir.CastOp, error) {
	ops := []ir.CastOp{ir.CastZExt, ir.CastSExt, ir.CastTrunc, ir.CastIntToPtr, ir.CastPtrToInt, ir.CastBitcast}
	for _, op := range ops {
		if op.String() == s {
			return op, nil
		}
	}
	return 0, fmt.Errorf("asmir: unknown cast op %q", s)
}
