// Package pattern implements the typed, serializable sequence of datapath
// actions described in §4.3 of the specification. A Pattern is built
// incrementally with Builder and replayed by the datapath in construction
// order.
package pattern

import (
	"fmt"

	"github.com/ccp-core/ccp/internal/wire"
)

// EventKind identifies one datapath action.
type EventKind byte

const (
	EventSetRate     EventKind = 0
	EventSetCwnd     EventKind = 1
	EventWaitMicros  EventKind = 2
	EventReport      EventKind = 3
)

func (k EventKind) String() string {
	switch k {
	case EventSetRate:
		return "SetRate"
	case EventSetCwnd:
		return "SetCwnd"
	case EventWaitMicros:
		return "WaitMicros"
	case EventReport:
		return "Report"
	default:
		return "Unknown"
	}
}

// ImplicitFields is the datapath's implicit variable vocabulary (SPEC_FULL.md
// §4.3), used to validate any field name a pattern event references.
var ImplicitFields = map[string]bool{
	"Ack":  true,
	"Rtt":  true,
	"Loss": true,
	"Now":  true,
}

// Event is one entry in a Pattern's action sequence. Exactly one of the
// fields below is meaningful, selected by Kind:
//
//	SetRate:    RateBytesPerSec
//	SetCwnd:    CwndBytes
//	WaitMicros: Micros
//	Report:     (no fields)
type Event struct {
	Kind            EventKind
	RateBytesPerSec uint64
	CwndBytes       uint32
	Micros          uint64
}

// Pattern is an ordered sequence of datapath actions.
type Pattern struct {
	Events []Event
}

// Builder constructs a Pattern incrementally. The zero value is ready to
// use. Serialization (via Encode) emits events in construction order.
type Builder struct {
	events []Event
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

// ValidateImplicit reports an error if name is not a member of the
// datapath's implicit field vocabulary (§4.3). None of the Builder methods
// take a field name, so Builder itself never calls it.
func ValidateImplicit(name string) error {
	if !ImplicitFields[name] {
		return fmt.Errorf("pattern: %q is not a known implicit field", name)
	}
	return nil
}

// SetRate appends a SetRate event.
func (b *Builder) SetRate(bytesPerSec uint64) *Builder {
	b.events = append(b.events, Event{Kind: EventSetRate, RateBytesPerSec: bytesPerSec})
	return b
}

// SetCwnd appends a SetCwnd event.
func (b *Builder) SetCwnd(bytes uint32) *Builder {
	b.events = append(b.events, Event{Kind: EventSetCwnd, CwndBytes: bytes})
	return b
}

// WaitMicros appends a WaitMicros event. micros must be non-negative; since
// the field is an unsigned wire type there is nothing to validate beyond the
// caller not having wrapped a negative value into it.
func (b *Builder) WaitMicros(micros uint64) *Builder {
	b.events = append(b.events, Event{Kind: EventWaitMicros, Micros: micros})
	return b
}

// Report appends a Report event, which triggers an out-of-band Measurement
// from the datapath when replayed.
func (b *Builder) Report() *Builder {
	b.events = append(b.events, Event{Kind: EventReport})
	return b
}

// Build returns the constructed Pattern. The Builder remains usable
// afterwards; subsequent calls continue appending to the same sequence.
func (b *Builder) Build() Pattern {
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return Pattern{Events: out}
}

// Encode serializes p's event sequence as "num_events:u32, events: typed
// action sequence" (§4.1's Pattern body, minus the leading flow id which
// wire.PatternMsg carries separately).
func Encode(p Pattern) []byte {
	size := 4
	for range p.Events {
		size += eventSize
	}
	buf := make([]byte, size)
	putU32LE(buf[0:], uint32(len(p.Events)))
	off := 4
	for _, ev := range p.Events {
		off = putEvent(buf, off, ev)
	}
	return buf
}

// Decode parses a Pattern body (as produced by Encode) back into a Pattern.
func Decode(buf []byte) (Pattern, error) {
	if len(buf) < 4 {
		return Pattern{}, fmt.Errorf("pattern: decode: %w", wire.ErrTruncated)
	}
	n := int(getU32LE(buf))
	off := 4
	events := make([]Event, n)
	for i := 0; i < n; i++ {
		ev, next, err := getEvent(buf, off)
		if err != nil {
			return Pattern{}, fmt.Errorf("pattern: decode event %d: %w", i, err)
		}
		events[i] = ev
		off = next
	}
	return Pattern{Events: events}, nil
}

// eventSize is the fixed on-wire size of one Event: 1-byte kind + an 8-byte
// payload wide enough for the largest variant (RateBytesPerSec/Micros).
const eventSize = 1 + 8

func putU32LE(buf []byte, v uint32) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
}

func getU32LE(buf []byte) uint32 {
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
}

func putU64LE(buf []byte, v uint64) {
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
}

func getU64LE(buf []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(buf[i]) << (8 * i)
	}
	return v
}

func putEvent(buf []byte, off int, ev Event) int {
	buf[off] = byte(ev.Kind)
	var payload uint64
	switch ev.Kind {
	case EventSetRate:
		payload = ev.RateBytesPerSec
	case EventSetCwnd:
		payload = uint64(ev.CwndBytes)
	case EventWaitMicros:
		payload = ev.Micros
	case EventReport:
		payload = 0
	}
	putU64LE(buf[off+1:], payload)
	return off + eventSize
}

func getEvent(buf []byte, off int) (Event, int, error) {
	if off+eventSize > len(buf) {
		return Event{}, off, wire.ErrTruncated
	}
	kind := EventKind(buf[off])
	payload := getU64LE(buf[off+1:])
	switch kind {
	case EventSetRate:
		return Event{Kind: kind, RateBytesPerSec: payload}, off + eventSize, nil
	case EventSetCwnd:
		return Event{Kind: kind, CwndBytes: uint32(payload)}, off + eventSize, nil
	case EventWaitMicros:
		return Event{Kind: kind, Micros: payload}, off + eventSize, nil
	case EventReport:
		return Event{Kind: kind}, off + eventSize, nil
	default:
		return Event{}, off, wire.ErrInvalidEnum
	}
}

// ToMessage wraps p as a wire.PatternMsg for the given flow, ready for
// transmission via the Transport capability.
func ToMessage(sid wire.SockID, p Pattern) *wire.PatternMsg {
	return &wire.PatternMsg{SockID: sid, Raw: Encode(p)}
}

// FromMessage decodes the Pattern carried by a wire.PatternMsg.
func FromMessage(m *wire.PatternMsg) (Pattern, error) {
	return Decode(m.Raw)
}
