package measure

import "github.com/ccp-core/ccp/internal/wire"

// Scope maps a measurement program's identifiers to their resolved
// registers. It is built once by Compile and is the sole ground truth used
// to interpret a Measurement report (§3, §4.2). Permanent indices are dense
// starting at 0, in source-declaration order.
type Scope struct {
	regs          map[string]wire.Reg
	numPermanents int
}

// newScope returns an empty Scope.
func newScope() *Scope {
	return &Scope{regs: make(map[string]wire.Reg)}
}

// Reg returns the register bound to name and whether it was found.
func (s *Scope) Reg(name string) (wire.Reg, bool) {
	r, ok := s.regs[name]
	return r, ok
}

// NumPermanents returns the number of permanent registers this program
// declares.
func (s *Scope) NumPermanents() int {
	return s.numPermanents
}

// PermanentIndex returns the permanent-register index bound to name, and
// true only if name resolves to a Permanent register (not a Temporary or
// Implicit). This is the lookup Measurement.GetField uses (§4.4): a
// Measurement report's field i corresponds to the permanent register with
// index i (§3).
func (s *Scope) PermanentIndex(name string) (int, bool) {
	r, ok := s.regs[name]
	if !ok || r.Kind != wire.RegPermanent {
		return 0, false
	}
	return int(r.Index), true
}

// implicitVocabulary maps the datapath's fixed implicit variable names to
// their register indices (§4.3 / SPEC_FULL.md).
var implicitVocabulary = map[string]uint32{
	"Ack":  0,
	"Rtt":  1,
	"Loss": 2,
	"Now":  3,
}

// resolver walks a Program, binding permanents and temporaries into a Scope
// and validating that every identifier reference resolves to exactly one
// declaration (permanent, implicit, or temporary).
type resolver struct {
	scope    *Scope
	nextTemp uint32
}

func newResolver() *resolver {
	return &resolver{scope: newScope()}
}

// resolveProgram binds prog.Decls as permanent registers (in declaration
// order) and then walks the fold body, allocating a fresh Temporary
// register for each name assigned that is not already a permanent.
func (r *resolver) resolveProgram(prog *Program) error {
	if len(prog.Decls) > MaxPermanents {
		return &TooManyPermanentsError{Count: len(prog.Decls)}
	}
	for i, d := range prog.Decls {
		if _, exists := r.scope.regs[d.Name]; exists {
			return &UnknownIdentifierError{Name: d.Name, Pos: d.Pos} // redeclaration treated as unresolvable
		}
		r.scope.regs[d.Name] = wire.Permanent(uint32(i))
	}
	r.scope.numPermanents = len(prog.Decls)

	for i := range prog.Decls {
		if prog.Decls[i].Init == nil {
			continue
		}
		if err := r.resolveExpr(prog.Decls[i].Init); err != nil {
			return err
		}
	}

	for _, stmt := range prog.Body {
		if err := r.resolveExpr(&stmt.Expr); err != nil {
			return err
		}
		if _, exists := r.scope.regs[stmt.Name]; !exists {
			r.scope.regs[stmt.Name] = wire.Temporary(r.nextTemp)
			r.nextTemp++
		}
	}
	return nil
}

// resolveExpr resolves every identifier reachable from e against the scope
// built so far, including e itself if it is an ExprIdent.
func (r *resolver) resolveExpr(e *Expr) error {
	switch e.Kind {
	case ExprNumber:
		return nil
	case ExprIdent:
		if _, ok := r.scope.regs[e.Ident]; ok {
			return nil
		}
		if idx, ok := implicitVocabulary[e.Ident]; ok {
			r.scope.regs[e.Ident] = wire.Implicit(idx)
			return nil
		}
		return &UnknownIdentifierError{Name: e.Ident, Pos: e.Pos}
	case ExprBinary:
		if err := r.resolveExpr(e.Left); err != nil {
			return err
		}
		return r.resolveExpr(e.Right)
	default:
		return &UnknownIdentifierError{Name: "<malformed expr>", Pos: e.Pos}
	}
}

// checkOperandType validates that a binary operator's operands share a
// type. With the current single-type (Num) grammar this never fails
// through the parser; it exists so type-checking has a real entry point to
// extend if a second scalar type is added.
func checkOperandType(op BinOp, left, right Type) error {
	if left != right {
		return &TypeMismatchError{Op: op.String(), Got: right, Expected: left}
	}
	return nil
}
