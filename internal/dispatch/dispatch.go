// Package dispatch implements the single-threaded per-flow dispatch loop
// (§5): one registry of live algorithm instances keyed by sock_id, fed by a
// single inbound frame stream. There is deliberately no locking here — the
// loop is the only goroutine that ever touches the registry (§5, §9: "do not
// model this with locks").
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/ccp-core/ccp/internal/ccp"
	"github.com/ccp-core/ccp/internal/ccperr"
	"github.com/ccp-core/ccp/internal/ccplog"
	"github.com/ccp-core/ccp/internal/ipc"
	"github.com/ccp-core/ccp/internal/wire"
)

// DatapathInfo is the immutable per-flow metadata carried by a Create
// message (§3), handed to an algorithm's factory at construction time.
type DatapathInfo struct {
	SockID   wire.SockID
	InitCwnd uint32
	Mss      uint32
	SrcIP    uint32
	SrcPort  uint32
	DstIP    uint32
	DstPort  uint32
}

func infoFromCreate(m *wire.Create) DatapathInfo {
	return DatapathInfo{
		SockID:   m.SockID,
		InitCwnd: m.InitCwnd,
		Mss:      m.Mss,
		SrcIP:    m.SrcIP,
		SrcPort:  m.SrcPort,
		DstIP:    m.DstIP,
		DstPort:  m.DstPort,
	}
}

// Cloneable lets an algorithm-specific config payload control how it is
// duplicated per flow. Config.Clone uses this when present; payloads that
// are already immutable (or effectively-value types) don't need it.
type Cloneable interface {
	Clone() any
}

// Config is the product type every algorithm's factory receives (§7):
// an optional shared Logger plus an opaque algorithm-specific payload the
// core never inspects.
type Config struct {
	Logger    *ccplog.Logger
	Algorithm any
}

// Clone returns a copy of c suitable for handing to a new flow's factory
// call. If Algorithm implements Cloneable, its Clone method is used;
// otherwise the field is copied by value/reference as-is, which is correct
// for read-only or value-type payloads.
func (c Config) Clone() Config {
	out := c
	if cl, ok := c.Algorithm.(Cloneable); ok {
		out.Algorithm = cl.Clone()
	}
	return out
}

// Datapath is the per-flow handle an Algorithm uses to talk back to the
// datapath (§7): it embeds the Control API and carries this flow's
// immutable metadata.
type Datapath struct {
	*ccp.Control
	Info DatapathInfo
}

// Algorithm is the single hook surface the dispatch loop drives. One
// instance is constructed per flow by Factory and lives until that flow's
// terminal Measurement arrives.
type Algorithm interface {
	// Measurement delivers one non-terminal report for this flow (§4.4).
	// The core never interprets its contents; it is the algorithm's own
	// compiled Scope (from a prior Control.InstallMeasurement call) that
	// gives the field vector meaning.
	Measurement(m wire.Measurement)
}

// Closer is an optional hook an Algorithm may implement to release any
// resources it holds when its flow terminates (§5). Algorithms that hold
// nothing can omit it; the loop treats its absence as a no-op.
type Closer interface {
	Close()
}

// Factory constructs a new Algorithm instance for a newly-created flow.
type Factory func(dp *Datapath, cfg Config, info DatapathInfo) (Algorithm, error)

// Loop is the single-threaded dispatch loop (§5). It owns one Transport and
// one flow registry, and runs until the transport's receive side closes.
type Loop struct {
	transport ipc.Transport
	config    Config
	factory   Factory
	logger    *ccplog.Logger
	flows     map[wire.SockID]Algorithm
}

// NewLoop returns a Loop ready to Run. factory is called once per new flow
// (on Create) with a fresh clone of cfg.
func NewLoop(transport ipc.Transport, cfg Config, factory Factory) *Loop {
	return &Loop{
		transport: transport,
		config:    cfg,
		factory:   factory,
		logger:    cfg.Logger,
		flows:     make(map[wire.SockID]Algorithm),
	}
}

// Run drives the loop to completion. It always returns a non-nil error
// (§7): either a CategoryClosed error when the transport's receive side
// closes, or a CategoryDirection error if an inbound frame violates the
// direction invariant (Pattern, InstallFold, and UpdateField are
// outbound-only; receiving one is fatal, §5 / §9).
func (l *Loop) Run(ctx context.Context) error {
	frames := l.transport.Listen(ipc.Blocking)
	for frame := range frames {
		msg, err := wire.Decode(frame)
		if errors.Is(err, wire.ErrUnknownTag) {
			// Unknown or reserved tag: silently discard (§5).
			continue
		}
		if err != nil {
			l.logger.Warn("dispatch: dropping undecodable frame", "error", err.Error())
			continue
		}

		switch m := msg.(type) {
		case *wire.Create:
			l.handleCreate(ctx, m)

		case *wire.Measurement:
			l.handleMeasurement(m)

		case *wire.InstallFold:
			return l.directionViolation("InstallFold", m.SockID)
		case *wire.UpdateField:
			return l.directionViolation("UpdateField", m.SockID)
		case *wire.PatternMsg:
			return l.directionViolation("Pattern", m.SockID)

		default:
			// Unknown or reserved tag: silently discard (§5).
		}
	}
	return l.transportClosed()
}

// transportClosed reports the transport's receive-side closure as a fatal,
// distinguishable condition (§7: "Transport closure — fatal; the loop
// terminates"), separate from the direction-violation fatal path.
func (l *Loop) transportClosed() error {
	err := fmt.Errorf("dispatch: transport receive side closed")
	l.logger.Error("dispatch: fatal transport closure")
	return ccperr.Wrap(ccperr.CategoryClosed, err)
}

func (l *Loop) directionViolation(kind string, sockID wire.SockID) error {
	err := fmt.Errorf("dispatch: received outbound-only %s message inbound for flow %d", kind, sockID)
	l.logger.Error("dispatch: fatal direction violation", "kind", kind, "sock_id", uint32(sockID))
	return ccperr.Wrap(ccperr.CategoryDirection, err)
}

// handleCreate installs a new algorithm instance for m.SockID. A Create for
// a sock_id already in the registry replaces the existing instance after
// logging a warning (§5: "duplicate Create replaces the existing
// instance").
func (l *Loop) handleCreate(ctx context.Context, m *wire.Create) {
	if _, exists := l.flows[m.SockID]; exists {
		l.logger.Warn("dispatch: duplicate Create, replacing existing flow", "sock_id", uint32(m.SockID))
	}

	info := infoFromCreate(m)
	dp := &Datapath{
		Control: ccp.NewControl(m.SockID, l.transport),
		Info:    info,
	}

	algo, err := l.factory(dp, l.config.Clone(), info)
	if err != nil {
		l.logger.Error("dispatch: algorithm construction failed, flow dropped", "sock_id", uint32(m.SockID), "error", err.Error())
		delete(l.flows, m.SockID)
		return
	}

	l.flows[m.SockID] = algo
	l.logger.Info("dispatch: flow created", "sock_id", uint32(m.SockID))
	_ = ctx // reserved for future cancellation-aware factories
}

// handleMeasurement routes a report to its flow's algorithm, or removes and
// closes the flow on a terminal (zero-field) report. A report for an
// unknown sock_id is soft-dropped (§5: the datapath and control plane can
// race during flow teardown).
func (l *Loop) handleMeasurement(m *wire.Measurement) {
	algo, ok := l.flows[m.SockID]
	if !ok {
		l.logger.Debug("dispatch: measurement for unknown flow, dropping", "sock_id", uint32(m.SockID))
		return
	}

	if len(m.Fields) == 0 {
		delete(l.flows, m.SockID)
		if closer, ok := algo.(Closer); ok {
			closer.Close()
		}
		l.logger.Info("dispatch: flow closed", "sock_id", uint32(m.SockID))
		return
	}

	algo.Measurement(*m)
}

// NumFlows returns the number of flows currently tracked. Exposed for tests
// and health reporting; the loop itself never needs it.
func (l *Loop) NumFlows() int {
	return len(l.flows)
}
