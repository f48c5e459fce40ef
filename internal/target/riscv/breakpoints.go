package riscv

import (
	"context"
	"encoding/binary"

	"github.com/mcudbg/coredbg/internal/coreerr"
	"github.com/mcudbg/coredbg/internal/targetdesc"
)

// flashSegmentAt returns the flash segment containing address, or nil if
// address falls outside every address space's flash segment.
func (d *Driver) flashSegmentAt(address uint32) *targetdesc.MemorySegmentDescriptor {
	for _, as := range d.td.AddressSpaces {
		for _, seg := range as.Segments {
			if seg.Type == targetdesc.SegmentFlash && seg.Range.ContainsAddress(uint64(address)) {
				return seg
			}
		}
	}
	return nil
}

// ebreak32 and cebreak16 are the opcodes written by SetSoftwareBreakpoint
// for 4-byte and 2-byte instructions respectively, per spec.md §4.3.
const (
	ebreak32 uint32 = 0x00100073
	cebreak16 uint16 = 0x9002
)

// SetSoftwareBreakpoint reads the original instruction at address (size 2
// or 4 bytes), writes the corresponding EBREAK opcode, and records the
// original instruction for a later Clear.
func (d *Driver) SetSoftwareBreakpoint(ctx context.Context, address uint32, size int) error {
	if size != 2 && size != 4 {
		return coreerr.NewConfigurationError("riscv: software breakpoint size must be 2 or 4, got %d", size)
	}
	original, err := d.ReadMemory(ctx, address, size)
	if err != nil {
		return err
	}

	var opcode []byte
	if size == 4 {
		opcode = make([]byte, 4)
		binary.LittleEndian.PutUint32(opcode, ebreak32)
	} else {
		opcode = make([]byte, 2)
		binary.LittleEndian.PutUint16(opcode, cebreak16)
	}
	seg := d.flashSegmentAt(address)
	if seg == nil {
		return coreerr.NewConfigurationError("riscv: no flash segment contains breakpoint address %#x", address)
	}
	if err := d.WriteFlash(ctx, seg, address, opcode); err != nil {
		return err
	}

	var originalWord uint32
	for i, b := range original {
		originalWord |= uint32(b) << (8 * i)
	}
	d.swBreakpoints[address] = originalWord
	d.swBreakpointLen[address] = size
	return nil
}

// freeSlot returns the lowest trigger slot not currently in hwBreakpoints,
// or ok=false if all maxHWSlots slots are taken.
func (d *Driver) freeSlot() (slot byte, ok bool) {
	used := make(map[byte]bool, len(d.hwBreakpoints))
	for _, s := range d.hwBreakpoints {
		used[s] = true
	}
	for s := byte(0); int(s) < d.maxHWSlots; s++ {
		if !used[s] {
			return s, true
		}
	}
	return 0, false
}

// SetHardwareBreakpoint allocates the lowest free trigger slot for
// address, selects it via tselect, and programs an execute-match
// trigger (tdata1/tdata2) pointing at address.
func (d *Driver) SetHardwareBreakpoint(ctx context.Context, address uint32) error {
	if _, exists := d.hwBreakpoints[address]; exists {
		return nil
	}
	slot, ok := d.freeSlot()
	if !ok {
		return coreerr.NewTargetOperationFailure(0, "no free hardware breakpoint (trigger) slots")
	}
	if err := d.writeCSR(ctx, csrTSelect, uint32(slot)); err != nil {
		return err
	}
	if err := d.writeCSR(ctx, csrTData2, address); err != nil {
		return err
	}
	if err := d.writeCSR(ctx, csrTData1, mcontrolType6|mcontrolM|mcontrolExecute); err != nil {
		return err
	}
	d.hwBreakpoints[address] = slot
	return nil
}

// ClearHardwareBreakpoint disables the trigger at address, if any.
// Clearing an unknown address is a non-fatal warning, matching the AVR8
// driver's contract.
func (d *Driver) ClearHardwareBreakpoint(ctx context.Context, address uint32) error {
	slot, ok := d.hwBreakpoints[address]
	if !ok {
		d.log.Warnf("clearHardwareBreakpoint: no breakpoint set at %#x", address)
		return nil
	}
	if err := d.writeCSR(ctx, csrTSelect, uint32(slot)); err != nil {
		return err
	}
	if err := d.writeCSR(ctx, csrTData1, 0); err != nil {
		return err
	}
	delete(d.hwBreakpoints, address)
	return nil
}

// ClearSoftwareBreakpoint restores the original instruction at address.
func (d *Driver) ClearSoftwareBreakpoint(ctx context.Context, address uint32) error {
	original, ok := d.swBreakpoints[address]
	if !ok {
		d.log.Warnf("clearSoftwareBreakpoint: no breakpoint set at %#x", address)
		return nil
	}
	size := d.swBreakpointLen[address]
	data := make([]byte, size)
	for i := 0; i < size; i++ {
		data[i] = byte(original >> (8 * i))
	}
	seg := d.flashSegmentAt(address)
	if seg == nil {
		return coreerr.NewConfigurationError("riscv: no flash segment contains breakpoint address %#x", address)
	}
	if err := d.WriteFlash(ctx, seg, address, data); err != nil {
		return err
	}
	delete(d.swBreakpoints, address)
	delete(d.swBreakpointLen, address)
	return nil
}

// ClearAllBreakpoints clears every software and hardware breakpoint this
// driver currently has registered.
func (d *Driver) ClearAllBreakpoints(ctx context.Context) error {
	for addr := range d.swBreakpoints {
		if err := d.ClearSoftwareBreakpoint(ctx, addr); err != nil {
			return err
		}
	}
	for addr := range d.hwBreakpoints {
		if err := d.ClearHardwareBreakpoint(ctx, addr); err != nil {
			return err
		}
	}
	return nil
}
