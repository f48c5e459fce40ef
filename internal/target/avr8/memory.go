package avr8

import (
	"context"

	"github.com/mcudbg/coredbg/internal/coreerr"
	"github.com/mcudbg/coredbg/internal/probeproto/edbgavr8"
	"github.com/mcudbg/coredbg/internal/targetdesc"
)

// MemoryAccess groups the request fields common to ReadMemory and
// WriteMemory, per spec.md §4.2's "public operation" signature.
type MemoryAccess struct {
	AddressSpace *targetdesc.AddressSpaceDescriptor
	Segment      *targetdesc.MemorySegmentDescriptor
	StartAddr    uint32
}

// ForceMaskedReadEmulation, when set, makes ReadMemory always use the
// driver-side splice emulation even for SRAM, instead of the probe's
// native masked ReadMemory (0x22) command. Exposed for sessions that want
// to exercise the emulation path directly.
func (d *Driver) ForceMaskedReadEmulation(force bool) { d.forceMaskEmulation = force }

// resolveMemoryType implements the dispatch table in spec.md §4.2, along
// with the rebasing XMEGA boot/appl/EEPROM segments require. rebasedAddr
// is the address to send to the probe (equal to access.StartAddr unless
// rebasing applies).
func (d *Driver) resolveMemoryType(access MemoryAccess) (memType edbgavr8.MemoryType, rebasedAddr uint32, err error) {
	seg := access.Segment
	addr := access.StartAddr

	switch seg.Type {
	case targetdesc.SegmentFlash:
		switch d.variant {
		case VariantMegaJTAG:
			if d.programmingModeEnabled {
				return edbgavr8.MemFlashPage, addr, nil
			}
			return edbgavr8.MemSPM, addr, nil
		case VariantXmega:
			bootStart := uint32(d.cfg.XmegaParams.BootBaseAddr)
			if addr >= bootStart {
				return edbgavr8.MemBootFlash, addr - bootStart, nil
			}
			return edbgavr8.MemApplFlash, addr, nil
		default:
			return edbgavr8.MemFlashPage, addr, nil
		}

	case targetdesc.SegmentEEPROM:
		switch d.variant {
		case VariantMegaJTAG:
			if d.programmingModeEnabled {
				return edbgavr8.MemEEPROMPage, addr, nil
			}
			return edbgavr8.MemEEPROM, addr, nil
		case VariantXmega:
			return edbgavr8.MemEEPROM, addr - uint32(d.cfg.XmegaParams.EEPROMBaseAddr), nil
		case VariantUPDI:
			return edbgavr8.MemEEPROMAtomic, addr, nil
		default:
			return edbgavr8.MemEEPROM, addr, nil
		}

	case targetdesc.SegmentFuses:
		if d.variant == VariantDebugWire {
			return 0, 0, coreerr.NewTargetOperationFailure(0, "debugWIRE cannot access fuses")
		}
		if d.variant == VariantXmega {
			return edbgavr8.MemFuses, addr - uint32(d.cfg.XmegaParams.FuseBaseAddr), nil
		}
		return edbgavr8.MemFuses, addr, nil

	default:
		if d.programmingModeEnabled {
			return 0, 0, coreerr.NewConfigurationError("cannot access %s while in programming mode", seg.Type)
		}
		return edbgavr8.MemSRAM, addr, nil
	}
}

func isPagedMemType(t edbgavr8.MemoryType) bool {
	switch t {
	case edbgavr8.MemFlashPage, edbgavr8.MemApplFlash, edbgavr8.MemBootFlash, edbgavr8.MemSPM,
		edbgavr8.MemEEPROMPage, edbgavr8.MemEEPROMAtomic:
		return true
	}
	return false
}

// alignRange computes the paged-access range enclosing [addr, addr+n).
func alignRange(addr uint32, n int, pageSize uint32) (alignedAddr uint32, alignedLen int) {
	if pageSize == 0 {
		return addr, n
	}
	start := (addr / pageSize) * pageSize
	end := addr + uint32(n)
	endAligned := ((end + pageSize - 1) / pageSize) * pageSize
	return start, int(endAligned - start)
}

// ReadMemory reads byteCount bytes starting at access.StartAddr, handling
// memory-type dispatch, page alignment, chunking, and masked-read
// emulation for non-SRAM types.
func (d *Driver) ReadMemory(ctx context.Context, access MemoryAccess, byteCount int, excluded map[uint32]bool) ([]byte, error) {
	enteredForFuses, err := d.maybeEnterProgrammingModeForFuses(ctx, access.Segment)
	if err != nil {
		return nil, err
	}
	defer d.maybeLeaveTransparentProgrammingMode(ctx, enteredForFuses)

	memType, rebasedAddr, err := d.resolveMemoryType(access)
	if err != nil {
		return nil, err
	}

	if memType == edbgavr8.MemSRAM {
		excluded = d.withOCDDataRegisterExcluded(excluded)
	}

	if !isPagedMemType(memType) {
		maxChunk := d.probe.MaxChunkSize(0)
		if memType == edbgavr8.MemSRAM && len(excluded) > 0 && !d.forceMaskEmulation {
			return d.probe.ReadMemoryMasked(ctx, memType, rebasedAddr, byteCount, excluded, maxChunk)
		}
		if len(excluded) > 0 {
			return d.readWithEmulatedMask(ctx, memType, rebasedAddr, byteCount, excluded, maxChunk)
		}
		return d.probe.ReadMemory(ctx, memType, rebasedAddr, byteCount, maxChunk)
	}

	pageSize := access.Segment.PageSize
	alignedAddr, alignedLen := alignRange(rebasedAddr, byteCount, pageSize)
	maxChunk := d.probe.MaxChunkSize(int(pageSize))

	var data []byte
	if len(excluded) > 0 {
		data, err = d.readWithEmulatedMask(ctx, memType, alignedAddr, alignedLen, excluded, maxChunk)
	} else {
		data, err = d.probe.ReadMemory(ctx, memType, alignedAddr, alignedLen, maxChunk)
	}
	if err != nil {
		return nil, err
	}
	offset := int(rebasedAddr - alignedAddr)
	return data[offset : offset+byteCount], nil
}

// readWithEmulatedMask emulates a masked read for memory types that have
// no native masked-read command: it reads the full range normally, then
// splices 0x00 at each excluded address.
func (d *Driver) readWithEmulatedMask(ctx context.Context, memType edbgavr8.MemoryType, addr uint32, n int, excluded map[uint32]bool, maxChunk int) ([]byte, error) {
	data, err := d.probe.ReadMemory(ctx, memType, addr, n, maxChunk)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		if excluded[addr+uint32(i)] {
			data[i] = 0x00
		}
	}
	return data, nil
}

// withOCDDataRegisterExcluded returns excluded with the TDF's OCD data
// register address added, per spec.md §4.2: "reading it corrupts debug
// state and must be excluded from bulk SRAM reads."
func (d *Driver) withOCDDataRegisterExcluded(excluded map[uint32]bool) map[uint32]bool {
	if d.variant != VariantDebugWire && d.variant != VariantMegaJTAG {
		return excluded
	}
	ocdAddr := uint32(d.cfg.DebugWireMegaParams.OCDDataRegister)
	if ocdAddr == 0 {
		return excluded
	}
	out := make(map[uint32]bool, len(excluded)+1)
	for k := range excluded {
		out[k] = true
	}
	out[ocdAddr] = true
	return out
}

// WriteMemory writes data to access.StartAddr, handling memory-type
// dispatch, page alignment (read-modify-write of the enclosing aligned
// block), and chunking.
func (d *Driver) WriteMemory(ctx context.Context, access MemoryAccess, data []byte) error {
	if d.programmingModeEnabled && access.Segment.Type == targetdesc.SegmentRAM {
		return coreerr.NewConfigurationError("cannot write RAM while in programming mode")
	}

	enteredForFuses, err := d.maybeEnterProgrammingModeForFuses(ctx, access.Segment)
	if err != nil {
		return err
	}

	memType, rebasedAddr, err := d.resolveMemoryType(access)
	if err != nil {
		return err
	}

	if !isPagedMemType(memType) {
		maxChunk := d.probe.MaxChunkSize(0)
		err = d.probe.WriteMemory(ctx, memType, rebasedAddr, data, maxChunk)
	} else {
		err = d.writePaged(ctx, memType, rebasedAddr, data, access.Segment.PageSize)
	}

	d.maybeLeaveTransparentProgrammingMode(ctx, enteredForFuses)

	if err == nil && access.Segment.Type == targetdesc.SegmentFuses {
		if ferr := d.reenterProgrammingModeAfterFuseWrite(ctx, enteredForFuses); ferr != nil {
			return ferr
		}
	}
	return err
}

func (d *Driver) writePaged(ctx context.Context, memType edbgavr8.MemoryType, addr uint32, data []byte, pageSize uint32) error {
	alignedAddr, alignedLen := alignRange(addr, len(data), pageSize)
	maxChunk := d.probe.MaxChunkSize(int(pageSize))

	if alignedAddr == addr && alignedLen == len(data) {
		return d.probe.WriteMemory(ctx, memType, addr, data, maxChunk)
	}

	existing, err := d.probe.ReadMemory(ctx, memType, alignedAddr, alignedLen, maxChunk)
	if err != nil {
		return err
	}
	offset := int(addr - alignedAddr)
	copy(existing[offset:offset+len(data)], data)
	return d.probe.WriteMemory(ctx, memType, alignedAddr, existing, maxChunk)
}

// maybeEnterProgrammingModeForFuses transparently enters programming mode
// when a FUSES access is requested outside of it, per spec.md §4.2.
func (d *Driver) maybeEnterProgrammingModeForFuses(ctx context.Context, seg *targetdesc.MemorySegmentDescriptor) (entered bool, err error) {
	if seg.Type != targetdesc.SegmentFuses || d.programmingModeEnabled {
		return false, nil
	}
	if err := d.EnableProgrammingMode(ctx); err != nil {
		return false, err
	}
	d.transparentProgramming = true
	return true, nil
}

func (d *Driver) maybeLeaveTransparentProgrammingMode(ctx context.Context, entered bool) {
	if !entered {
		return
	}
	if err := d.DisableProgrammingMode(ctx); err != nil {
		d.log.WithError(err).Warn("failed to leave transparently-entered programming mode")
		return
	}
	d.transparentProgramming = false
}

// reenterProgrammingModeAfterFuseWrite implements the programming-mode
// state machine for fuse writes in spec.md §4.2: after any fuse write, the
// driver must leave and (if it was already in programming mode before this
// access, i.e. not entered transparently) re-enter programming mode so the
// new fuse bits take effect.
func (d *Driver) reenterProgrammingModeAfterFuseWrite(ctx context.Context, enteredTransparently bool) error {
	if enteredTransparently {
		// Already left above by maybeLeaveTransparentProgrammingMode; the
		// driver stays out, per spec.md §4.2.
		return nil
	}
	if err := d.DisableProgrammingMode(ctx); err != nil {
		return err
	}
	return d.EnableProgrammingMode(ctx)
}
