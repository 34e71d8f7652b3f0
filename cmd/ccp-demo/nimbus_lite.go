package main

import (
	"context"
	"fmt"

	"github.com/ccp-core/ccp/internal/dispatch"
	"github.com/ccp-core/ccp/internal/pattern"
	"github.com/ccp-core/ccp/internal/wire"
)

// nimbusLiteFactory is the algorithm-specific config payload for
// nimbus-lite. It holds no tunables; it exists to give
// dispatch.Config.Algorithm a concrete type and to demonstrate the
// Cloneable hook (SPEC_FULL.md §9's per-algorithm typed configuration
// design note).
type nimbusLiteFactory struct{}

// Clone satisfies dispatch.Cloneable. nimbusLiteFactory carries no mutable
// state, so returning itself is correct.
func (f nimbusLiteFactory) Clone() any { return f }

// nimbusLite is a fixed-cwnd, no-op-on-measurement algorithm. It is not a
// real congestion-control algorithm; it exercises the control API end to
// end so the demo has something to dial against.
type nimbusLite struct {
	dp *dispatch.Datapath
}

// nimbusLiteSource declares the one permanent field this demo reports on:
// cumulative acknowledged bytes, mirrored straight from the datapath's
// implicit Ack variable.
const nimbusLiteSource = `
permanent acked : Num = 0;
fold (ev, st) {
	acked = acked + Ack;
}
`

// newNimbusLite is a dispatch.Factory: it is called once per newly-created
// flow. It installs the measurement program above and immediately pushes a
// Pattern that pins the flow's congestion window to its initial value.
func newNimbusLite(dp *dispatch.Datapath, cfg dispatch.Config, info dispatch.DatapathInfo) (dispatch.Algorithm, error) {
	if _, ok := cfg.Algorithm.(nimbusLiteFactory); !ok {
		return nil, fmt.Errorf("nimbus-lite: unexpected config payload %T", cfg.Algorithm)
	}

	ctx := context.Background()
	if _, err := dp.InstallMeasurement(ctx, nimbusLiteSource); err != nil {
		return nil, fmt.Errorf("nimbus-lite: installing measurement: %w", err)
	}

	p := pattern.NewBuilder().SetCwnd(info.InitCwnd).Build()
	if err := dp.SendPattern(ctx, p); err != nil {
		return nil, fmt.Errorf("nimbus-lite: sending initial pattern: %w", err)
	}

	return &nimbusLite{dp: dp}, nil
}

// Measurement satisfies dispatch.Algorithm. nimbus-lite never reacts to
// reports; it exists only to keep the pipeline exercised.
func (n *nimbusLite) Measurement(m wire.Measurement) {
	_ = m
}

// Close satisfies dispatch.Closer. nimbus-lite holds no resources.
func (n *nimbusLite) Close() {}
