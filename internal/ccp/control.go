// Package ccp implements the control-plane-side Control API (§7): sending
// Pattern programs and InstallFold measurement bytecode to the datapath, and
// interpreting inbound Measurement reports against the Scope a prior compile
// produced.
package ccp

import (
	"context"
	"fmt"

	"github.com/ccp-core/ccp/internal/ccperr"
	"github.com/ccp-core/ccp/internal/measure"
	"github.com/ccp-core/ccp/internal/pattern"
	"github.com/ccp-core/ccp/internal/wire"
)

// Sender is the narrow capability the Control API needs from a transport:
// deliver one outbound frame. Defined here (rather than depending on
// ipc.Transport directly) so algorithm code can be tested against a fake
// without importing the ipc package.
type Sender interface {
	Send(ctx context.Context, buf []byte) error
}

// Control is the per-flow handle an Algorithm uses to drive the datapath
// (§7). It is constructed once per flow by the dispatch loop and closes over
// that flow's sock_id so algorithm code never has to thread it through.
type Control struct {
	sockID wire.SockID
	sender Sender
}

// NewControl returns a Control bound to sockID, sending frames via sender.
func NewControl(sockID wire.SockID, sender Sender) *Control {
	return &Control{sockID: sockID, sender: sender}
}

// SendPattern encodes p as a Pattern message for this flow and sends it.
func (c *Control) SendPattern(ctx context.Context, p pattern.Pattern) error {
	msg := pattern.ToMessage(c.sockID, p)
	buf, err := wire.Encode(msg)
	if err != nil {
		return ccperr.Wrap(ccperr.CategoryDecode, fmt.Errorf("ccp: encoding pattern: %w", err))
	}
	if err := c.sender.Send(ctx, buf); err != nil {
		return ccperr.Wrap(ccperr.CategoryTransport, fmt.Errorf("ccp: sending pattern: %w", err))
	}
	return nil
}

// InstallMeasurement compiles source, and only on successful compilation
// sends the resulting bytecode to the datapath as an InstallFold message
// (§4.2: "No bytes are sent to the datapath until compilation succeeds in
// full"). It returns the Scope needed to later interpret Measurement reports
// via GetField.
func (c *Control) InstallMeasurement(ctx context.Context, source string) (*measure.Scope, error) {
	bin, err := measure.Compile(source)
	if err != nil {
		return nil, ccperr.Wrap(ccperr.CategoryCompile, fmt.Errorf("ccp: compiling measurement: %w", err))
	}

	msg := &wire.InstallFold{SockID: c.sockID, Instrs: bin.Instructions}
	buf, err := wire.Encode(msg)
	if err != nil {
		return nil, ccperr.Wrap(ccperr.CategoryDecode, fmt.Errorf("ccp: encoding install_fold: %w", err))
	}
	if err := c.sender.Send(ctx, buf); err != nil {
		return nil, ccperr.Wrap(ccperr.CategoryTransport, fmt.Errorf("ccp: sending install_fold: %w", err))
	}

	return bin.Scope, nil
}

// UpdateField sends a batch of permanent-register writes (§4.1's
// UpdateField message), used to seed or reset state the datapath holds on
// an algorithm's behalf outside of the normal fold evaluation.
func (c *Control) UpdateField(ctx context.Context, entries []wire.UpdateFieldEntry) error {
	msg := &wire.UpdateField{SockID: c.sockID, Entries: entries}
	buf, err := wire.Encode(msg)
	if err != nil {
		return ccperr.Wrap(ccperr.CategoryDecode, fmt.Errorf("ccp: encoding update_field: %w", err))
	}
	if err := c.sender.Send(ctx, buf); err != nil {
		return ccperr.Wrap(ccperr.CategoryTransport, fmt.Errorf("ccp: sending update_field: %w", err))
	}
	return nil
}

// Measurement wraps an inbound wire.Measurement report together with the
// Scope it must be interpreted against, and provides named-field lookup
// (§4.4).
type Measurement struct {
	Fields []uint64
	scope  *measure.Scope
}

// NewMeasurement pairs a decoded report with the Scope its source program
// produced.
func NewMeasurement(m wire.Measurement, scope *measure.Scope) Measurement {
	return Measurement{Fields: m.Fields, scope: scope}
}

// GetField returns the value of the permanent register named name, and
// false if name does not resolve to a permanent in this measurement's scope
// or the report did not carry enough fields to cover its index (§4.4: a
// short report yields an absent field, not an error).
func (m Measurement) GetField(name string) (uint64, bool) {
	idx, ok := m.scope.PermanentIndex(name)
	if !ok || idx >= len(m.Fields) {
		return 0, false
	}
	return m.Fields[idx], true
}

// IsTerminal reports whether this measurement signals flow termination
// (§5: a zero-field Measurement).
func (m Measurement) IsTerminal() bool {
	return len(m.Fields) == 0
}
