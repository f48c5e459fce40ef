// Package rangestep implements the L5 range-stepping engine: resolving
// GDB's `vCont;r start,end:tid` into a minimal set of intercepted addresses
// instead of single-stepping through the whole range, using the AVR
// opcode decoder in internal/rangestep/avropcode to classify each
// instruction's control-flow behaviour.
package rangestep

import (
	"context"

	"github.com/mcudbg/coredbg/internal/coreerr"
	"github.com/mcudbg/coredbg/internal/rangestep/avropcode"
)

// Target is the narrow set of target-driver operations the engine needs:
// reading program memory, setting/clearing hardware breakpoints, stepping
// and running, and reading the program counter. internal/target/avr8's
// Driver satisfies this via a thin per-session adapter in internal/session
// (the engine itself stays free of any L4 package's concrete types).
type Target interface {
	ReadProgramMemory(ctx context.Context, startAddr uint32, n int) ([]byte, error)
	SetHardwareBreakpoint(ctx context.Context, address uint32) error
	ClearHardwareBreakpoint(ctx context.Context, address uint32) error
	Step(ctx context.Context) error
	Run(ctx context.Context) error
	GetProgramCounter(ctx context.Context) (uint32, error)
}

// AddressRange is an inclusive-exclusive [Start, End) byte range.
type AddressRange struct {
	Start, End uint32
}

func (r AddressRange) contains(addr uint32) bool { return addr >= r.Start && addr < r.End }

// Session is the state of one active range-stepping run, per spec.md
// §4.4 step 6.
type Session struct {
	Range                AddressRange
	InterceptedAddresses map[uint32]bool
}

// Engine drives range-stepping sessions against a Target. One Engine
// serves one target driver for the lifetime of a debug session.
type Engine struct {
	target             Target
	programMemoryRange AddressRange
	session            *Session
}

// NewEngine constructs an Engine bound to target, with programMemoryRange
// describing the byte extent of program memory the decoded range must lie
// within entirely (spec.md §4.4 step 1).
func NewEngine(target Target, programMemoryRange AddressRange) *Engine {
	return &Engine{target: target, programMemoryRange: programMemoryRange}
}

// Active reports whether a range-stepping session is currently in
// progress.
func (e *Engine) Active() bool { return e.session != nil }

// Session returns the active session, or nil if none is in progress.
func (e *Engine) Session() *Session { return e.session }

// terminate clears any hardware breakpoints the active session installed
// and discards it. ClearHardwareBreakpoint tolerates clearing an address
// with no breakpoint set, so this is safe to call unconditionally.
func (e *Engine) terminate(ctx context.Context) {
	if e.session == nil {
		return
	}
	for addr := range e.session.InterceptedAddresses {
		e.target.ClearHardwareBreakpoint(ctx, addr)
	}
	e.session = nil
}

// Start begins a new range-stepping session over [start, end), terminating
// any session already in progress first. Per spec.md §4.4: start must be
// less than end, both must be 2-byte aligned, and the range must lie
// entirely within program memory. A single-instruction range (end-start <=
// 2) just issues one step instead of building an interception set.
func (e *Engine) Start(ctx context.Context, start, end uint32) error {
	e.terminate(ctx)

	if start >= end {
		return coreerr.NewConfigurationError("rangestep: start %#x is not less than end %#x", start, end)
	}
	if start%2 != 0 || end%2 != 0 {
		return coreerr.NewConfigurationError("rangestep: range [%#x, %#x) is not 2-byte aligned", start, end)
	}
	fullRange := AddressRange{Start: start, End: end}
	if !e.programMemoryRange.contains(start) || end > e.programMemoryRange.End {
		return coreerr.NewConfigurationError("rangestep: range [%#x, %#x) is not entirely within program memory [%#x, %#x)",
			start, end, e.programMemoryRange.Start, e.programMemoryRange.End)
	}

	if end-start <= 2 {
		if err := e.target.Step(ctx); err != nil {
			return err
		}
		e.session = &Session{Range: fullRange, InterceptedAddresses: map[uint32]bool{end: true}}
		return nil
	}

	intercepted, err := e.computeInterceptedAddresses(ctx, fullRange)
	if err != nil {
		return err
	}
	e.session = &Session{Range: fullRange, InterceptedAddresses: intercepted}

	if err := e.target.Step(ctx); err != nil {
		e.session = nil
		return err
	}
	return nil
}

// computeInterceptedAddresses implements spec.md §4.4 steps 3-5: read
// range.End-range.Start-1 bytes of program memory at range.Start, decode
// the whole words among them (the range's last instruction word is not
// decoded), and for each one decide whether the instruction's own address
// or its jump destination must be intercepted.
func (e *Engine) computeInterceptedAddresses(ctx context.Context, r AddressRange) (map[uint32]bool, error) {
	n := int(r.End - r.Start - 1)
	raw, err := e.target.ReadProgramMemory(ctx, r.Start, n)
	if err != nil {
		return nil, err
	}

	words := bytesToWordsLE(raw)
	intercepted := make(map[uint32]bool)

	for i := 0; i < len(words); {
		addr := r.Start + uint32(i)*2
		if i+1 >= len(words) && wouldNeedSecondWord(words[i]) {
			// A 2-word opcode whose second word falls outside the decoded
			// range: treat as an opaque hazard, matching the "decoding
			// failed" rule.
			intercepted[addr] = true
			break
		}
		insn := avropcode.Decode(words, i, r.Start)
		e.classify(insn, addr, r, intercepted)
		i += insn.SizeWords
	}

	intercepted[r.End] = true
	return intercepted, nil
}

// classify applies spec.md §4.4 step 4's per-instruction rule.
func (e *Engine) classify(insn avropcode.Instruction, addr uint32, r AddressRange, intercepted map[uint32]bool) {
	if !insn.CanChangeProgramFlow {
		return
	}
	if insn.DestinationAddress == nil {
		intercepted[addr] = true
		return
	}
	dest := *insn.DestinationAddress
	if !e.programMemoryRange.contains(dest) {
		intercepted[addr] = true
		return
	}
	if !r.contains(dest) {
		intercepted[dest] = true
		return
	}
}

// wouldNeedSecondWord reports whether w is the first word of a JMP/CALL
// (the only 2-word AVR instructions this package decodes).
func wouldNeedSecondWord(w uint16) bool {
	return w&0xFE0E == 0x940C || w&0xFE0E == 0x940E
}

func bytesToWordsLE(b []byte) []uint16 {
	words := make([]uint16, len(b)/2)
	for i := range words {
		words[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
	}
	return words
}

// OnBreak is called when the probe reports a break while a session is
// active. It decides, per spec.md §4.4's on-break contract, whether to
// continue the range (arming breakpoints at every intercepted address and
// issuing run) or report the stop to the debugger. reportStop is true
// when the caller must surface this break to the debugger as a normal
// stop (current PC is outside the range, or at an intercepted address);
// it is false when the engine has re-armed the range and resumed
// execution on the caller's behalf.
func (e *Engine) OnBreak(ctx context.Context) (reportStop bool, err error) {
	if e.session == nil {
		return true, nil
	}
	pc, err := e.target.GetProgramCounter(ctx)
	if err != nil {
		return true, err
	}
	if !e.session.Range.contains(pc) || e.session.InterceptedAddresses[pc] {
		e.terminate(ctx)
		return true, nil
	}

	for addr := range e.session.InterceptedAddresses {
		if err := e.target.SetHardwareBreakpoint(ctx, addr); err != nil {
			e.terminate(ctx)
			return true, err
		}
	}
	if err := e.target.Run(ctx); err != nil {
		e.terminate(ctx)
		return true, err
	}
	return false, nil
}
