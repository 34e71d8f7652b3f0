package ccp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccp-core/ccp/internal/pattern"
	"github.com/ccp-core/ccp/internal/wire"
)

type fakeSender struct {
	sent [][]byte
	err  error
}

func (f *fakeSender) Send(_ context.Context, buf []byte) error {
	if f.err != nil {
		return f.err
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	f.sent = append(f.sent, cp)
	return nil
}

func TestSendPattern(t *testing.T) {
	sender := &fakeSender{}
	c := NewControl(wire.SockID(7), sender)

	p := pattern.NewBuilder().SetRate(1000).WaitMicros(50).Build()
	require.NoError(t, c.SendPattern(context.Background(), p))
	require.Len(t, sender.sent, 1)

	msg, err := wire.Decode(sender.sent[0])
	require.NoError(t, err)
	pm, ok := msg.(*wire.PatternMsg)
	require.True(t, ok)
	require.Equal(t, wire.SockID(7), pm.Flow())

	decoded, err := pattern.FromMessage(pm)
	require.NoError(t, err)
	require.Equal(t, p, decoded)
}

func TestInstallMeasurementSendsOnlyOnSuccessfulCompile(t *testing.T) {
	sender := &fakeSender{}
	c := NewControl(wire.SockID(3), sender)

	scope, err := c.InstallMeasurement(context.Background(), `
permanent acked: Num = 0;
fold (ev, state) {
	acked = acked + Ack;
}
`)
	require.NoError(t, err)
	require.NotNil(t, scope)
	require.Len(t, sender.sent, 1)

	msg, err := wire.Decode(sender.sent[0])
	require.NoError(t, err)
	_, ok := msg.(*wire.InstallFold)
	require.True(t, ok)
}

func TestInstallMeasurementSendsNothingOnCompileFailure(t *testing.T) {
	sender := &fakeSender{}
	c := NewControl(wire.SockID(3), sender)

	_, err := c.InstallMeasurement(context.Background(), `permanent x Num;`)
	require.Error(t, err)
	require.Empty(t, sender.sent)
}

func TestMeasurementGetField(t *testing.T) {
	sender := &fakeSender{}
	c := NewControl(wire.SockID(1), sender)

	scope, err := c.InstallMeasurement(context.Background(), `
permanent acked: Num = 0;
permanent rtt: Num = 0;
fold (ev, state) {
	acked = acked + Ack;
	rtt = Rtt;
}
`)
	require.NoError(t, err)

	m := NewMeasurement(wire.Measurement{SockID: 1, Fields: []uint64{5, 17}}, scope)
	require.False(t, m.IsTerminal())

	v, ok := m.GetField("acked")
	require.True(t, ok)
	require.Equal(t, uint64(5), v)

	v, ok = m.GetField("rtt")
	require.True(t, ok)
	require.Equal(t, uint64(17), v)

	_, ok = m.GetField("missing")
	require.False(t, ok)
}

func TestMeasurementIsTerminal(t *testing.T) {
	m := NewMeasurement(wire.Measurement{SockID: 1, Fields: nil}, nil)
	require.True(t, m.IsTerminal())
}
