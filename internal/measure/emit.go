package measure

import "github.com/ccp-core/ccp/internal/wire"

// Binary is the output of DSL compilation: an ordered instruction sequence
// paired with the Scope used to resolve it (§4.2).
type Binary struct {
	Instructions []wire.Instruction
	Scope        *Scope
}

// emitter lowers a resolved Program into a flat Instruction sequence. Every
// assignment (decl initializer, then fold-body statement, in source order)
// becomes one or more instructions; scratch registers used only to hold
// intermediate sub-expression results are allocated past every
// permanent/temporary index the resolver assigned, so they never alias a
// named register.
type emitter struct {
	scope        *Scope
	instructions []wire.Instruction
	nextScratch  uint32
}

func newEmitter(scope *Scope, firstScratch uint32) *emitter {
	return &emitter{scope: scope, nextScratch: firstScratch}
}

// emitProgram emits decl initializers (in declaration order) followed by the
// fold body (in source order), each assignment compiled to instructions
// that store their result into the destination's resolved register index.
func (em *emitter) emitProgram(prog *Program) {
	for _, d := range prog.Decls {
		if d.Init == nil {
			continue
		}
		dst, _ := em.scope.Reg(d.Name)
		em.emitAssign(dst, d.Init)
	}
	for _, stmt := range prog.Body {
		dst, _ := em.scope.Reg(stmt.Name)
		em.emitAssign(dst, &stmt.Expr)
	}
}

// emitAssign emits instructions that compute e and move the result into dst.
func (em *emitter) emitAssign(dst wire.Reg, e *Expr) {
	srcIdx := em.emitExpr(e)
	em.instructions = append(em.instructions, wire.Instruction{
		Op:   wire.OpMov,
		Dst:  regIndex(dst),
		Src1: srcIdx,
	})
}

// emitExpr emits instructions that compute e into a register and returns
// that register's encoded index (see regIndex).
func (em *emitter) emitExpr(e *Expr) uint32 {
	switch e.Kind {
	case ExprNumber:
		dst := em.allocScratch()
		em.instructions = append(em.instructions, wire.Instruction{
			Op:   wire.OpConst,
			Dst:  dst,
			Src1: uint32(e.NumberVal),
		})
		return dst

	case ExprIdent:
		r, _ := em.scope.Reg(e.Ident)
		return regIndex(r)

	case ExprBinary:
		l := em.emitExpr(e.Left)
		rr := em.emitExpr(e.Right)
		dst := em.allocScratch()
		em.instructions = append(em.instructions, wire.Instruction{
			Op:   opFor(e.Op),
			Dst:  dst,
			Src1: l,
			Src2: rr,
		})
		return dst

	default:
		return 0
	}
}

// allocScratch returns the encoded index of a fresh Temporary register used
// to hold an intermediate sub-expression result.
func (em *emitter) allocScratch() uint32 {
	idx := em.nextScratch
	em.nextScratch++
	return regIndex(wire.Temporary(idx))
}

func opFor(op BinOp) wire.Opcode {
	switch op {
	case BinAdd:
		return wire.OpAdd
	case BinSub:
		return wire.OpSub
	case BinMul:
		return wire.OpMul
	case BinDiv:
		return wire.OpDiv
	default:
		return wire.OpAdd
	}
}

// regIndex returns the flat register-machine index backing r, used as an
// Instruction operand (Dst/Src1/Src2). The instruction format has no spare
// byte for a Reg's kind discriminant (§4.2: 13 bytes total, three 4-byte
// operand slots), so the kind is folded into the index's top byte and the
// index itself into the low 24 bits. This keeps Permanent(0), Temporary(0),
// and Implicit(0) — which would otherwise collide, since each kind's
// indices independently start at 0 — in disjoint operand values while still
// fitting the fixed 4-byte slot.
func regIndex(r wire.Reg) uint32 {
	return uint32(r.Kind)<<24 | (r.Index & 0x00FFFFFF)
}

// Compile runs the full pipeline (tokenize → parse → resolve → type-check →
// emit) over src and returns the resulting Binary. Compilation is
// deterministic: identical src always yields a byte-identical instruction
// sequence and an isomorphic Scope (§4.2).
func Compile(src string) (*Binary, error) {
	parser, err := NewParser(src)
	if err != nil {
		return nil, err
	}
	prog, err := parser.ParseProgram()
	if err != nil {
		return nil, err
	}

	r := newResolver()
	if err := r.resolveProgram(prog); err != nil {
		return nil, err
	}

	if err := typeCheckProgram(prog); err != nil {
		return nil, err
	}

	// Temporaries allocated by the resolver use Temporary indices
	// [0, numTemporaries); scratch registers used for intermediate
	// expression results are Temporaries starting at
	// numPermanents+numTemporaries, past every resolver-assigned index.
	em := newEmitter(r.scope, uint32(r.scope.numPermanents)+r.nextTemp)
	em.emitProgram(prog)

	return &Binary{Instructions: em.instructions, Scope: r.scope}, nil
}

// typeCheckProgram walks every expression in prog and validates binary
// operator operand types (§4.2). With the current single-type grammar this
// never fails; see checkOperandType's doc comment.
func typeCheckProgram(prog *Program) error {
	for _, d := range prog.Decls {
		if d.Init == nil {
			continue
		}
		if _, err := typeOfExpr(d.Init); err != nil {
			return err
		}
	}
	for _, stmt := range prog.Body {
		if _, err := typeOfExpr(&stmt.Expr); err != nil {
			return err
		}
	}
	return nil
}

func typeOfExpr(e *Expr) (Type, error) {
	switch e.Kind {
	case ExprNumber, ExprIdent:
		return TypeNum, nil
	case ExprBinary:
		lt, err := typeOfExpr(e.Left)
		if err != nil {
			return 0, err
		}
		rt, err := typeOfExpr(e.Right)
		if err != nil {
			return 0, err
		}
		if err := checkOperandType(e.Op, lt, rt); err != nil {
			return 0, err
		}
		return lt, nil
	default:
		return 0, &ParseError{Pos: e.Pos, Expected: "well-formed expression"}
	}
}
