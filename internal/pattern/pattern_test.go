package pattern

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccp-core/ccp/internal/wire"
)

func TestBuilderConstructionOrder(t *testing.T) {
	p := NewBuilder().
		SetCwnd(10 * 1448).
		SetRate(1_000_000).
		WaitMicros(5000).
		Report().
		Build()

	require.Len(t, p.Events, 4)
	require.Equal(t, EventSetCwnd, p.Events[0].Kind)
	require.Equal(t, EventSetRate, p.Events[1].Kind)
	require.Equal(t, EventWaitMicros, p.Events[2].Kind)
	require.Equal(t, EventReport, p.Events[3].Kind)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := NewBuilder().
		SetRate(42).
		SetCwnd(14480).
		WaitMicros(100).
		Report().
		Build()

	buf := Encode(p)
	got, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, p, got)
}

func TestToFromMessage(t *testing.T) {
	p := NewBuilder().SetRate(7).Build()
	msg := ToMessage(wire.SockID(3), p)
	require.Equal(t, wire.SockID(3), msg.SockID)

	got, err := FromMessage(msg)
	require.NoError(t, err)
	require.Equal(t, p, got)
}

func TestValidateImplicit(t *testing.T) {
	require.NoError(t, ValidateImplicit("Rtt"))
	require.Error(t, ValidateImplicit("Bogus"))
}
