package wire

import "errors"

// Sentinel errors returned by Decode (and, for UnknownTag, by Encode when
// handed an unsupported message type). Wrap these with fmt.Errorf("%w", ...)
// for additional context; callers can still match with errors.Is.
var (
	// ErrBadFraming indicates the header-declared length did not match the
	// buffer length handed to Decode.
	ErrBadFraming = errors.New("wire: bad framing: declared length disagrees with buffer")

	// ErrUnknownTag indicates the header's type tag does not match any
	// known message kind.
	ErrUnknownTag = errors.New("wire: unknown message tag")

	// ErrTruncated indicates the buffer is shorter than the 4-byte header,
	// or the body is shorter than its fixed fields or declared element
	// count require. A buffer shorter than its declared length is
	// ErrBadFraming instead.
	ErrTruncated = errors.New("wire: truncated buffer")

	// ErrInvalidEnum indicates an unknown Reg discriminant or instruction
	// opcode was encountered while decoding.
	ErrInvalidEnum = errors.New("wire: invalid enum discriminant")
)
