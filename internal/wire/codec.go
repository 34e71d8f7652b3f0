package wire

import (
	"encoding/binary"
	"fmt"
)

// --- primitive packers ---
//
// All multi-byte integers are little-endian; there is no padding or
// alignment, and fields are packed in declaration order (§4.1).

func putU32LE(buf []byte, v uint32) {
	binary.LittleEndian.PutUint32(buf, v)
}

func getU32LE(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf)
}

func putU64LE(buf []byte, v uint64) {
	binary.LittleEndian.PutUint64(buf, v)
}

func getU64LE(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf)
}

func putU16LE(buf []byte, v uint16) {
	binary.LittleEndian.PutUint16(buf, v)
}

func getU16LE(buf []byte) uint16 {
	return binary.LittleEndian.Uint16(buf)
}

// regSize is the fixed 5-byte on-wire size of a Reg: 1 discriminant byte +
// a 4-byte payload.
const regSize = 5

// updateFieldEntrySize is the fixed on-wire size of one UpdateFieldEntry:
// a Reg (regSize) followed by an 8-byte value.
const updateFieldEntrySize = regSize + 8

// putReg appends Reg's 5-byte encoding (1 discriminant + 4-byte payload) to
// buf at offset off and returns the next offset.
func putReg(buf []byte, off int, r Reg) int {
	buf[off] = byte(r.Kind)
	payload := r.Index
	if r.Kind == RegConstant {
		payload = r.Literal
	}
	putU32LE(buf[off+1:], payload)
	return off + regSize
}

// getReg decodes a 5-byte Reg starting at off. Returns the decoded Reg, the
// next offset, and an error if the discriminant is unknown.
func getReg(buf []byte, off int) (Reg, int, error) {
	if off+regSize > len(buf) {
		return Reg{}, off, ErrTruncated
	}
	kind := RegKind(buf[off])
	payload := getU32LE(buf[off+1:])
	switch kind {
	case RegPermanent, RegTemporary, RegImplicit:
		return Reg{Kind: kind, Index: payload}, off + regSize, nil
	case RegConstant:
		return Reg{Kind: kind, Literal: payload}, off + regSize, nil
	default:
		return Reg{}, off, ErrInvalidEnum
	}
}

// putInstruction appends Instruction's 13-byte encoding to buf at offset off
// and returns the next offset.
func putInstruction(buf []byte, off int, ins Instruction) int {
	buf[off] = byte(ins.Op)
	putU32LE(buf[off+1:], ins.Dst)
	putU32LE(buf[off+5:], ins.Src1)
	putU32LE(buf[off+9:], ins.Src2)
	return off + InstructionSize
}

func getInstruction(buf []byte, off int) (Instruction, int, error) {
	if off+InstructionSize > len(buf) {
		return Instruction{}, off, ErrTruncated
	}
	op := Opcode(buf[off])
	switch op {
	case OpAdd, OpSub, OpMov, OpConst, OpMul, OpDiv:
	default:
		return Instruction{}, off, ErrInvalidEnum
	}
	ins := Instruction{
		Op:   op,
		Dst:  getU32LE(buf[off+1:]),
		Src1: getU32LE(buf[off+5:]),
		Src2: getU32LE(buf[off+9:]),
	}
	return ins, off + InstructionSize, nil
}

// Encode serializes msg into a framed byte buffer. The returned buffer's
// length equals the header-declared length and its first 4 bytes are the
// header (§4.1).
func Encode(msg Message) ([]byte, error) {
	var body []byte
	switch m := msg.(type) {
	case *Create:
		body = make([]byte, 4+24)
		putU32LE(body[0:], uint32(m.SockID))
		putU32LE(body[4:], m.InitCwnd)
		putU32LE(body[8:], m.Mss)
		putU32LE(body[12:], m.SrcIP)
		putU32LE(body[16:], m.SrcPort)
		putU32LE(body[20:], m.DstIP)
		putU32LE(body[24:], m.DstPort)

	case *Measurement:
		body = make([]byte, 4+4+8*len(m.Fields))
		putU32LE(body[0:], uint32(m.SockID))
		putU32LE(body[4:], uint32(len(m.Fields)))
		off := 8
		for _, f := range m.Fields {
			putU64LE(body[off:], f)
			off += 8
		}

	case *InstallFold:
		body = make([]byte, 4+4+InstructionSize*len(m.Instrs))
		putU32LE(body[0:], uint32(m.SockID))
		putU32LE(body[4:], uint32(len(m.Instrs)))
		off := 8
		for _, ins := range m.Instrs {
			off = putInstruction(body, off, ins)
		}

	case *UpdateField:
		body = make([]byte, 4+4+updateFieldEntrySize*len(m.Entries))
		putU32LE(body[0:], uint32(m.SockID))
		putU32LE(body[4:], uint32(len(m.Entries)))
		off := 8
		for _, e := range m.Entries {
			off = putReg(body, off, e.Reg)
			putU64LE(body[off:], e.Value)
			off += 8
		}

	case *PatternMsg:
		body = make([]byte, 4+len(m.Raw))
		putU32LE(body[0:], uint32(m.SockID))
		copy(body[4:], m.Raw)

	default:
		return nil, fmt.Errorf("wire: encode: %w: %T", ErrUnknownTag, msg)
	}

	total := headerSize + len(body)
	if total > 0xFFFF {
		return nil, fmt.Errorf("wire: encode: message too large (%d bytes)", total)
	}
	buf := make([]byte, total)
	buf[0] = byte(msg.MessageTag())
	buf[1] = 0 // reserved
	putU16LE(buf[2:], uint16(total))
	copy(buf[headerSize:], body)
	return buf, nil
}

// Decode reads the header, validates the declared length against the
// buffer's actual length, and dispatches on the type tag to a kind-specific
// decoder (§4.1).
func Decode(buf []byte) (Message, error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("wire: decode header: %w", ErrTruncated)
	}
	tag := Tag(buf[0])
	declared := int(getU16LE(buf[2:]))
	if declared != len(buf) {
		return nil, fmt.Errorf("wire: decode: declared length %d, buffer length %d: %w",
			declared, len(buf), ErrBadFraming)
	}

	body := buf[headerSize:]
	if len(body) < 4 {
		return nil, fmt.Errorf("wire: decode body: %w", ErrTruncated)
	}
	sid := SockID(getU32LE(body))
	rest := body[4:]

	switch tag {
	case TagCreate:
		if len(rest) < 24 {
			return nil, fmt.Errorf("wire: decode Create: %w", ErrTruncated)
		}
		return &Create{
			SockID:   sid,
			InitCwnd: getU32LE(rest[0:]),
			Mss:      getU32LE(rest[4:]),
			SrcIP:    getU32LE(rest[8:]),
			SrcPort:  getU32LE(rest[12:]),
			DstIP:    getU32LE(rest[16:]),
			DstPort:  getU32LE(rest[20:]),
		}, nil

	case TagMeasurement:
		if len(rest) < 4 {
			return nil, fmt.Errorf("wire: decode Measurement: %w", ErrTruncated)
		}
		n := int(getU32LE(rest))
		rest = rest[4:]
		if len(rest) < 8*n {
			return nil, fmt.Errorf("wire: decode Measurement fields: %w", ErrTruncated)
		}
		var fields []uint64
		if n > 0 {
			fields = make([]uint64, n)
		}
		for i := 0; i < n; i++ {
			fields[i] = getU64LE(rest[i*8:])
		}
		return &Measurement{SockID: sid, Fields: fields}, nil

	case TagInstallFold:
		if len(rest) < 4 {
			return nil, fmt.Errorf("wire: decode InstallFold: %w", ErrTruncated)
		}
		n := int(getU32LE(rest))
		rest = rest[4:]
		if len(rest) < InstructionSize*n {
			return nil, fmt.Errorf("wire: decode InstallFold instructions: %w", ErrTruncated)
		}
		off := 0
		instrs := make([]Instruction, n)
		for i := 0; i < n; i++ {
			ins, next, err := getInstruction(rest, off)
			if err != nil {
				return nil, fmt.Errorf("wire: decode InstallFold instruction %d: %w", i, err)
			}
			instrs[i] = ins
			off = next
		}
		return &InstallFold{SockID: sid, Instrs: instrs}, nil

	case TagUpdateField:
		if len(rest) < 4 {
			return nil, fmt.Errorf("wire: decode UpdateField: %w", ErrTruncated)
		}
		n := int(getU32LE(rest))
		rest = rest[4:]
		if len(rest) < updateFieldEntrySize*n {
			return nil, fmt.Errorf("wire: decode UpdateField entries: %w", ErrTruncated)
		}
		off := 0
		entries := make([]UpdateFieldEntry, n)
		for i := 0; i < n; i++ {
			r, next, err := getReg(rest, off)
			if err != nil {
				return nil, fmt.Errorf("wire: decode UpdateField entry %d reg: %w", i, err)
			}
			if next+8 > len(rest) {
				return nil, fmt.Errorf("wire: decode UpdateField entry %d value: %w", i, ErrTruncated)
			}
			entries[i] = UpdateFieldEntry{Reg: r, Value: getU64LE(rest[next:])}
			off = next + 8
		}
		return &UpdateField{SockID: sid, Entries: entries}, nil

	case TagPattern:
		raw := make([]byte, len(rest))
		copy(raw, rest)
		return &PatternMsg{SockID: sid, Raw: raw}, nil

	default:
		return nil, fmt.Errorf("wire: decode: tag %d: %w", tag, ErrUnknownTag)
	}
}
