// Package wire implements the CCP wire protocol: a self-describing,
// byte-packed message family and the codec that serializes and parses it.
//
// Every message carries a 4-byte header — [tag:u8][reserved:u8][length:u16 LE]
// — followed by a body that always begins with a 4-byte little-endian flow
// id (SockID). All multi-byte integers are little-endian; there is no
// padding or alignment, and fields are packed in declaration order. See
// Encode and Decode in codec.go for the framing contract, and the package
// tests for the golden UpdateField vector this layout must reproduce
// exactly.
package wire

// SockID identifies a flow. It is assigned by the datapath and is opaque to
// the control plane beyond being a stable lookup key.
type SockID uint32

// Tag identifies a message's on-wire kind.
type Tag byte

const (
	TagCreate      Tag = 0
	TagMeasurement Tag = 1
	TagInstallFold Tag = 2
	TagUpdateField Tag = 3
	TagPattern     Tag = 4
)

// headerSize is the fixed 4-byte header: tag, reserved, length (u16 LE).
const headerSize = 4

// RegKind discriminates the four Register variants of §3 Data Model.
type RegKind byte

const (
	RegPermanent RegKind = 0
	RegTemporary RegKind = 1
	RegImplicit  RegKind = 2
	RegConstant  RegKind = 3
)

func (k RegKind) String() string {
	switch k {
	case RegPermanent:
		return "Permanent"
	case RegTemporary:
		return "Temporary"
	case RegImplicit:
		return "Implicit"
	case RegConstant:
		return "Constant"
	default:
		return "Unknown"
	}
}

// Reg is a reference to a named storage cell in the measurement DSL. It
// serializes as exactly 5 bytes: 1 discriminant byte + a 4-byte payload that
// is an index for Permanent/Temporary/Implicit or a literal value for
// Constant.
type Reg struct {
	Kind    RegKind
	Index   uint32 // meaningful for Permanent, Temporary, Implicit
	Literal uint32 // meaningful for Constant
}

// Permanent builds a Reg referring to the permanent register at idx.
func Permanent(idx uint32) Reg { return Reg{Kind: RegPermanent, Index: idx} }

// Temporary builds a Reg referring to the compiler-internal temporary at idx.
func Temporary(idx uint32) Reg { return Reg{Kind: RegTemporary, Index: idx} }

// Implicit builds a Reg referring to a datapath-provided implicit variable.
func Implicit(idx uint32) Reg { return Reg{Kind: RegImplicit, Index: idx} }

// Constant builds a Reg holding a compiler-internal literal value.
func Constant(v uint32) Reg { return Reg{Kind: RegConstant, Literal: v} }

// Message is the tagged union of all wire messages.
type Message interface {
	// MessageTag returns the on-wire type tag for this message.
	MessageTag() Tag
	// Flow returns the message's flow id.
	Flow() SockID
}

// Create announces a new flow and its immutable datapath metadata.
type Create struct {
	SockID   SockID
	InitCwnd uint32
	Mss      uint32
	SrcIP    uint32
	SrcPort  uint32
	DstIP    uint32
	DstPort  uint32
}

func (m *Create) MessageTag() Tag { return TagCreate }
func (m *Create) Flow() SockID    { return m.SockID }

// Measurement carries an ordered vector of 64-bit fields reported for a flow.
// A zero-length Fields slice signals flow termination (§4.5).
type Measurement struct {
	SockID SockID
	Fields []uint64
}

func (m *Measurement) MessageTag() Tag { return TagMeasurement }
func (m *Measurement) Flow() SockID    { return m.SockID }

// InstallFold installs a compiled measurement program (instruction binary)
// for a flow. Outbound-only: the control plane sends it, the datapath never
// originates one.
type InstallFold struct {
	SockID SockID
	Instrs []Instruction
}

func (m *InstallFold) MessageTag() Tag { return TagInstallFold }
func (m *InstallFold) Flow() SockID    { return m.SockID }

// UpdateFieldEntry pairs a Reg with the value to assign it.
type UpdateFieldEntry struct {
	Reg   Reg
	Value uint64
}

// UpdateField pushes out-of-band register updates to the datapath.
// Outbound-only, per §9's resolved Open Question.
type UpdateField struct {
	SockID  SockID
	Entries []UpdateFieldEntry
}

func (m *UpdateField) MessageTag() Tag { return TagUpdateField }
func (m *UpdateField) Flow() SockID    { return m.SockID }

// PatternMsg carries a serialized Pattern (internal/pattern) for a flow.
// Outbound-only.
type PatternMsg struct {
	SockID SockID
	Raw    []byte // pre-serialized pattern.Pattern body (events only)
}

func (m *PatternMsg) MessageTag() Tag { return TagPattern }
func (m *PatternMsg) Flow() SockID    { return m.SockID }
