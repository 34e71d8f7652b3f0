package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccp-core/ccp/internal/ccperr"
	"github.com/ccp-core/ccp/internal/ipc"
	"github.com/ccp-core/ccp/internal/wire"
)

// fakeTransport is an in-process Transport double: Send records frames,
// Listen replays a pre-seeded sequence and then closes.
type fakeTransport struct {
	sent   [][]byte
	frames [][]byte
}

func (f *fakeTransport) Send(_ context.Context, buf []byte) error {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeTransport) Listen(ipc.ListenMode) <-chan []byte {
	ch := make(chan []byte, len(f.frames))
	for _, fr := range f.frames {
		ch <- fr
	}
	close(ch)
	return ch
}

func (f *fakeTransport) Close() error { return nil }

// recordingAlgorithm captures every Measurement it receives and counts
// Close calls.
type recordingAlgorithm struct {
	measurements []wire.Measurement
	closed       int
}

func (a *recordingAlgorithm) Measurement(m wire.Measurement) {
	a.measurements = append(a.measurements, m)
}

func (a *recordingAlgorithm) Close() {
	a.closed++
}

func newFactory(instances map[wire.SockID]*recordingAlgorithm) Factory {
	return func(dp *Datapath, cfg Config, info DatapathInfo) (Algorithm, error) {
		algo := &recordingAlgorithm{}
		instances[info.SockID] = algo
		return algo, nil
	}
}

func encode(t *testing.T, m wire.Message) []byte {
	t.Helper()
	buf, err := wire.Encode(m)
	require.NoError(t, err)
	return buf
}

// TestCreateMeasureClose is §8 scenario 1: Create, one Measurement, then a
// terminating zero-field Measurement.
func TestCreateMeasureClose(t *testing.T) {
	instances := map[wire.SockID]*recordingAlgorithm{}
	transport := &fakeTransport{frames: [][]byte{
		encode(t, &wire.Create{SockID: 1, InitCwnd: 10, Mss: 1460}),
		encode(t, &wire.Measurement{SockID: 1, Fields: []uint64{5, 17}}),
		encode(t, &wire.Measurement{SockID: 1, Fields: nil}),
	}}

	loop := NewLoop(transport, Config{}, newFactory(instances))
	err := loop.Run(context.Background())
	require.Error(t, err)
	require.True(t, ccperr.Is(err, ccperr.CategoryClosed))

	algo := instances[1]
	require.NotNil(t, algo)
	require.Len(t, algo.measurements, 1)
	require.Equal(t, []uint64{5, 17}, algo.measurements[0].Fields)
	require.Equal(t, 1, algo.closed)
	require.Equal(t, 0, loop.NumFlows())
}

// TestDuplicateCreateReplacesFlow is §8 scenario 2.
func TestDuplicateCreateReplacesFlow(t *testing.T) {
	var constructed []wire.SockID
	factory := func(dp *Datapath, cfg Config, info DatapathInfo) (Algorithm, error) {
		constructed = append(constructed, info.SockID)
		return &recordingAlgorithm{}, nil
	}

	transport := &fakeTransport{frames: [][]byte{
		encode(t, &wire.Create{SockID: 1, InitCwnd: 10, Mss: 1460}),
		encode(t, &wire.Create{SockID: 1, InitCwnd: 20, Mss: 1460}),
	}}

	loop := NewLoop(transport, Config{}, factory)
	err := loop.Run(context.Background())
	require.Error(t, err)
	require.True(t, ccperr.Is(err, ccperr.CategoryClosed))

	require.Equal(t, []wire.SockID{1, 1}, constructed)
	require.Equal(t, 1, loop.NumFlows())
}

// TestMeasurementForUnknownFlowIsDropped is §8 scenario 3.
func TestMeasurementForUnknownFlowIsDropped(t *testing.T) {
	instances := map[wire.SockID]*recordingAlgorithm{}
	transport := &fakeTransport{frames: [][]byte{
		encode(t, &wire.Measurement{SockID: 99, Fields: []uint64{1}}),
	}}

	loop := NewLoop(transport, Config{}, newFactory(instances))
	err := loop.Run(context.Background())
	require.Error(t, err)
	require.True(t, ccperr.Is(err, ccperr.CategoryClosed))
	require.Equal(t, 0, loop.NumFlows())
	require.Empty(t, instances)
}

// TestInboundOutboundOnlyMessagesAreFatal is §8 scenario 4, repeated for
// each of the three outbound-only message kinds.
func TestInboundOutboundOnlyMessagesAreFatal(t *testing.T) {
	cases := []struct {
		name string
		msg  wire.Message
	}{
		{"Pattern", &wire.PatternMsg{SockID: 1, Raw: []byte{0, 0, 0, 0}}},
		{"InstallFold", &wire.InstallFold{SockID: 1}},
		{"UpdateField", &wire.UpdateField{SockID: 1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			instances := map[wire.SockID]*recordingAlgorithm{}
			transport := &fakeTransport{frames: [][]byte{
				encode(t, &wire.Create{SockID: 1, InitCwnd: 10, Mss: 1460}),
				encode(t, tc.msg),
			}}

			loop := NewLoop(transport, Config{}, newFactory(instances))
			err := loop.Run(context.Background())
			require.Error(t, err)
			require.True(t, ccperr.Is(err, ccperr.CategoryDirection))
		})
	}
}

// TestUndecodableFrameIsDroppedNotFatal ensures a decode failure logs and
// continues rather than terminating the loop; the loop only stops once the
// transport itself closes (here, after the last fake frame is drained).
func TestUndecodableFrameIsDroppedNotFatal(t *testing.T) {
	instances := map[wire.SockID]*recordingAlgorithm{}
	transport := &fakeTransport{frames: [][]byte{
		{0xFF, 0xFF, 0xFF, 0xFF}, // garbage: bad framing
		encode(t, &wire.Create{SockID: 1, InitCwnd: 10, Mss: 1460}),
	}}

	loop := NewLoop(transport, Config{}, newFactory(instances))
	err := loop.Run(context.Background())
	require.Error(t, err)
	require.True(t, ccperr.Is(err, ccperr.CategoryClosed))
	require.Equal(t, 1, loop.NumFlows())
}
