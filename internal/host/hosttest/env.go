// Package hosttest provides a configurable host.Environment for tests.
package hosttest

import "xrate-oracle/internal/host"

// Environment simulates the runtime pieces the engine observes.
type Environment struct {
	EnvCaller          host.Principal
	CyclesAvail        uint64
	AcceptReturnsShort bool

	accepted uint64
	timeSecs uint64
}

// Builder assembles a test Environment.
type Builder struct {
	env Environment
}

// NewBuilder returns a Builder with a non-anonymous default caller.
func NewBuilder() *Builder {
	return &Builder{env: Environment{EnvCaller: host.Principal("rrkah-fqaaa-aaaaa-aaaaq-cai")}}
}

// WithCaller sets the caller principal.
func (b *Builder) WithCaller(p host.Principal) *Builder {
	b.env.EnvCaller = p
	return b
}

// WithCyclesAvailable sets the cycles attached to the message.
func (b *Builder) WithCyclesAvailable(cycles uint64) *Builder {
	b.env.CyclesAvail = cycles
	return b
}

// WithTimeSecs pins the current time.
func (b *Builder) WithTimeSecs(ts uint64) *Builder {
	b.env.timeSecs = ts
	return b
}

// WithShortAccept makes AcceptCycles accept one cycle less than requested,
// simulating a runtime that refuses the fee.
func (b *Builder) WithShortAccept() *Builder {
	b.env.AcceptReturnsShort = true
	return b
}

// Build returns the assembled Environment.
func (b *Builder) Build() *Environment {
	env := b.env
	return &env
}

// Caller implements host.Environment.
func (e *Environment) Caller() host.Principal { return e.EnvCaller }

// TimeSecs implements host.Environment.
func (e *Environment) TimeSecs() uint64 { return e.timeSecs }

// CyclesAvailable implements host.Environment.
func (e *Environment) CyclesAvailable() uint64 { return e.CyclesAvail - e.accepted }

// AcceptCycles implements host.Environment.
func (e *Environment) AcceptCycles(amount uint64) uint64 {
	if e.AcceptReturnsShort && amount > 0 {
		amount--
	}
	if avail := e.CyclesAvailable(); amount > avail {
		amount = avail
	}
	e.accepted += amount
	return amount
}

// Accepted reports the cycles retained so far.
func (e *Environment) Accepted() uint64 { return e.accepted }

var _ host.Environment = (*Environment)(nil)
