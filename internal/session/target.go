// Package session implements the L5 Debug Session: the component that
// speaks the GDB Remote Serial Protocol command subset in internal/rsp
// against whichever target driver (internal/target/avr8 or
// internal/target/riscv) is active, per spec.md §9's "tagged variant"
// design note — a capability-set interface here stands in for that sum
// type, with one thin adapter per architecture.
package session

import (
	"context"

	"github.com/mcudbg/coredbg/internal/coreerr"
	"github.com/mcudbg/coredbg/internal/target/avr8"
	"github.com/mcudbg/coredbg/internal/target/riscv"
	"github.com/mcudbg/coredbg/internal/targetdesc"
)

// ExecState mirrors the per-architecture ExecutionState enums without
// depending on either package's concrete type.
type ExecState int

const (
	Stopped ExecState = iota
	Running
	Stepping
)

// TargetDriver is the capability set spec.md §9 calls for: every public
// operation expressible on any target, addressed with flat byte addresses
// so the session and the RSP layer never need to know which architecture
// is active.
type TargetDriver interface {
	Detach(ctx context.Context) error
	Deactivate(ctx context.Context) error

	Run(ctx context.Context) error
	Stop(ctx context.Context) error
	Step(ctx context.Context) error
	GetExecutionState(ctx context.Context) (ExecState, error)
	GetProgramCounter(ctx context.Context) (uint32, error)
	SetProgramCounter(ctx context.Context, addr uint32) error

	ReadMemory(ctx context.Context, addr uint32, n int) ([]byte, error)
	WriteMemory(ctx context.Context, addr uint32, data []byte) error

	SetHardwareBreakpoint(ctx context.Context, addr uint32) error
	ClearHardwareBreakpoint(ctx context.Context, addr uint32) error
	SetSoftwareBreakpoint(ctx context.Context, addr uint32, size int) error
	ClearSoftwareBreakpoint(ctx context.Context, addr uint32) error
	ClearAllBreakpoints(ctx context.Context) error

	EnableProgrammingMode(ctx context.Context) error
	DisableProgrammingMode(ctx context.Context) error
}

// rangeStepTarget adapts a TargetDriver to rangestep.Target, keeping that
// package free of any L4 or session type per its own doc comment.
type rangeStepTarget struct {
	d TargetDriver
}

func (t rangeStepTarget) ReadProgramMemory(ctx context.Context, startAddr uint32, n int) ([]byte, error) {
	return t.d.ReadMemory(ctx, startAddr, n)
}
func (t rangeStepTarget) SetHardwareBreakpoint(ctx context.Context, address uint32) error {
	return t.d.SetHardwareBreakpoint(ctx, address)
}
func (t rangeStepTarget) ClearHardwareBreakpoint(ctx context.Context, address uint32) error {
	return t.d.ClearHardwareBreakpoint(ctx, address)
}
func (t rangeStepTarget) Step(ctx context.Context) error { return t.d.Step(ctx) }
func (t rangeStepTarget) Run(ctx context.Context) error  { return t.d.Run(ctx) }
func (t rangeStepTarget) GetProgramCounter(ctx context.Context) (uint32, error) {
	return t.d.GetProgramCounter(ctx)
}

// dataSpaceOffset is the classic avr-gdb convention for disambiguating
// AVR8's two address-zero-based spaces on the single flat address GDB's
// 'm'/'M'/'X' packets carry: addresses at or above this offset select the
// "data" (SRAM) address space, with the offset subtracted back out;
// addresses below it select "prog" (flash) directly. Neither TDF address
// space is otherwise self-describing about which one a bare GDB address
// means, so the session decides per this well-known real-world convention
// rather than guessing.
const dataSpaceOffset = 0x800000

// Avr8Adapter adapts *avr8.Driver to TargetDriver, resolving flat GDB
// addresses to the AddressSpaceDescriptor/MemorySegmentDescriptor pair
// avr8.Driver's MemoryAccess requires.
type Avr8Adapter struct {
	D  *avr8.Driver
	TD *targetdesc.TargetDescriptor
}

func (a *Avr8Adapter) resolve(addr uint32) (avr8.MemoryAccess, error) {
	spaceKey, local := "prog", addr
	if addr >= dataSpaceOffset {
		spaceKey, local = "data", addr-dataSpaceOffset
	}
	as, ok := a.TD.AddressSpace(spaceKey)
	if !ok {
		return avr8.MemoryAccess{}, coreerr.NewConfigurationError("no %q address space in target description", spaceKey)
	}
	for _, seg := range as.Segments {
		if seg.Range.ContainsAddress(uint64(local)) {
			return avr8.MemoryAccess{AddressSpace: as, Segment: seg, StartAddr: local}, nil
		}
	}
	return avr8.MemoryAccess{}, coreerr.NewConfigurationError("address %#x (space %q) matches no memory segment", local, spaceKey)
}

func (a *Avr8Adapter) Detach(ctx context.Context) error     { return a.D.Detach(ctx) }
func (a *Avr8Adapter) Deactivate(ctx context.Context) error { return a.D.Deactivate(ctx) }
func (a *Avr8Adapter) Run(ctx context.Context) error        { return a.D.Run(ctx) }
func (a *Avr8Adapter) Stop(ctx context.Context) error       { return a.D.Stop(ctx) }
func (a *Avr8Adapter) Step(ctx context.Context) error       { return a.D.Step(ctx) }

func (a *Avr8Adapter) GetExecutionState(ctx context.Context) (ExecState, error) {
	s, err := a.D.GetExecutionState(ctx)
	return ExecState(s), err
}
func (a *Avr8Adapter) GetProgramCounter(ctx context.Context) (uint32, error) {
	return a.D.GetProgramCounter(ctx)
}
func (a *Avr8Adapter) SetProgramCounter(ctx context.Context, addr uint32) error {
	return a.D.SetProgramCounter(ctx, addr)
}

func (a *Avr8Adapter) ReadMemory(ctx context.Context, addr uint32, n int) ([]byte, error) {
	access, err := a.resolve(addr)
	if err != nil {
		return nil, err
	}
	return a.D.ReadMemory(ctx, access, n, nil)
}

func (a *Avr8Adapter) WriteMemory(ctx context.Context, addr uint32, data []byte) error {
	access, err := a.resolve(addr)
	if err != nil {
		return err
	}
	return a.D.WriteMemory(ctx, access, data)
}

func (a *Avr8Adapter) SetHardwareBreakpoint(ctx context.Context, addr uint32) error {
	return a.D.SetHardwareBreakpoint(ctx, addr)
}
func (a *Avr8Adapter) ClearHardwareBreakpoint(ctx context.Context, addr uint32) error {
	return a.D.ClearHardwareBreakpoint(ctx, addr)
}
func (a *Avr8Adapter) SetSoftwareBreakpoint(ctx context.Context, addr uint32, size int) error {
	return a.D.SetSoftwareBreakpoints(ctx, []uint32{addr})
}
func (a *Avr8Adapter) ClearSoftwareBreakpoint(ctx context.Context, addr uint32) error {
	return a.D.ClearSoftwareBreakpoints(ctx, []uint32{addr})
}
func (a *Avr8Adapter) ClearAllBreakpoints(ctx context.Context) error { return a.D.ClearAllBreakpoints(ctx) }

func (a *Avr8Adapter) EnableProgrammingMode(ctx context.Context) error  { return a.D.EnableProgrammingMode(ctx) }
func (a *Avr8Adapter) DisableProgrammingMode(ctx context.Context) error { return a.D.DisableProgrammingMode(ctx) }

// RiscVAdapter adapts *riscv.Driver to TargetDriver. RISC-V's TDF models a
// single unified address space (no prog/data split to disambiguate), so
// addresses pass straight through; the TargetDescriptor is only consulted
// to tell flash writes (which must route through WriteFlash) apart from
// ordinary ones.
type RiscVAdapter struct {
	D  *riscv.Driver
	TD *targetdesc.TargetDescriptor
}

func (a *RiscVAdapter) findSegment(addr uint32) *targetdesc.MemorySegmentDescriptor {
	for _, as := range a.TD.AddressSpaces {
		for _, seg := range as.Segments {
			if seg.Range.ContainsAddress(uint64(addr)) {
				return seg
			}
		}
	}
	return nil
}

func (a *RiscVAdapter) Detach(ctx context.Context) error     { return a.D.Detach(ctx) }
func (a *RiscVAdapter) Deactivate(ctx context.Context) error { return nil } // WCH-Link has no separate deactivate step
func (a *RiscVAdapter) Run(ctx context.Context) error        { return a.D.Run(ctx) }
func (a *RiscVAdapter) Stop(ctx context.Context) error       { return a.D.Stop(ctx) }
func (a *RiscVAdapter) Step(ctx context.Context) error       { return a.D.Step(ctx) }

func (a *RiscVAdapter) GetExecutionState(ctx context.Context) (ExecState, error) {
	s, err := a.D.GetExecutionState(ctx)
	return ExecState(s), err
}
func (a *RiscVAdapter) GetProgramCounter(ctx context.Context) (uint32, error) {
	return a.D.GetProgramCounter(ctx)
}
func (a *RiscVAdapter) SetProgramCounter(ctx context.Context, addr uint32) error {
	return a.D.SetProgramCounter(ctx, addr)
}

func (a *RiscVAdapter) ReadMemory(ctx context.Context, addr uint32, n int) ([]byte, error) {
	return a.D.ReadMemory(ctx, addr, n)
}

func (a *RiscVAdapter) WriteMemory(ctx context.Context, addr uint32, data []byte) error {
	if seg := a.findSegment(addr); seg != nil && seg.Type == targetdesc.SegmentFlash {
		return a.D.WriteFlash(ctx, seg, addr, data)
	}
	return a.D.WriteMemory(ctx, addr, data)
}

func (a *RiscVAdapter) SetHardwareBreakpoint(ctx context.Context, addr uint32) error {
	return a.D.SetHardwareBreakpoint(ctx, addr)
}
func (a *RiscVAdapter) ClearHardwareBreakpoint(ctx context.Context, addr uint32) error {
	return a.D.ClearHardwareBreakpoint(ctx, addr)
}
func (a *RiscVAdapter) SetSoftwareBreakpoint(ctx context.Context, addr uint32, size int) error {
	return a.D.SetSoftwareBreakpoint(ctx, addr, size)
}
func (a *RiscVAdapter) ClearSoftwareBreakpoint(ctx context.Context, addr uint32) error {
	return a.D.ClearSoftwareBreakpoint(ctx, addr)
}
func (a *RiscVAdapter) ClearAllBreakpoints(ctx context.Context) error {
	return a.D.ClearAllBreakpoints(ctx)
}

// RISC-V has no programming-mode state machine distinct from ordinary
// flash writes; both are no-ops satisfying the interface.
func (a *RiscVAdapter) EnableProgrammingMode(ctx context.Context) error  { return nil }
func (a *RiscVAdapter) DisableProgrammingMode(ctx context.Context) error { return nil }
