package riscv

import (
	"context"

	"github.com/mcudbg/coredbg/internal/coreerr"
	"github.com/mcudbg/coredbg/internal/targetdesc"
)

const maxPartialBlockWriteLen = 64

// WriteFlash writes data to addr within seg, dispatching between the
// partial-block and full-block write paths per spec.md §4.3. Per Open
// Question (a), the entire range must fit within one segment; a write
// that would span segments is a ConfigurationError rather than a guess
// at which segment's block size applies to the overflow.
func (d *Driver) WriteFlash(ctx context.Context, seg *targetdesc.MemorySegmentDescriptor, addr uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	end := uint64(addr) + uint64(len(data)) - 1
	if uint64(addr) < seg.Range.Start || end > seg.Range.End {
		return coreerr.NewConfigurationError("flash write [%#x, %#x] is not contained within segment %q [%#x, %#x]",
			addr, end, seg.Key, seg.Range.Start, seg.Range.End)
	}
	return d.writeFlashRange(ctx, seg, addr, data)
}

func (d *Driver) writeFlashRange(ctx context.Context, seg *targetdesc.MemorySegmentDescriptor, addr uint32, data []byte) error {
	remaining := data
	cur := addr
	for len(remaining) > 0 {
		blockSize := d.flashBlockSize
		fitsFullBlock := cur%blockSize == 0 && uint64(cur)+uint64(blockSize) <= seg.Range.End+1 && len(remaining) >= int(blockSize)
		if len(remaining) <= maxPartialBlockWriteLen || !fitsFullBlock {
			n := len(remaining)
			if n > maxPartialBlockWriteLen {
				n = maxPartialBlockWriteLen
			}
			if seg.PageSize > 0 {
				pageEnd := ((cur / seg.PageSize) + 1) * seg.PageSize
				if uint32(n) > pageEnd-cur {
					n = int(pageEnd - cur)
				}
			}
			if n == 0 {
				return coreerr.NewInternalFatalError("riscv: computed zero-length partial flash write at %#x", cur)
			}
			if err := d.partialBlockWrite(ctx, cur, remaining[:n]); err != nil {
				return err
			}
			cur += uint32(n)
			remaining = remaining[n:]
			continue
		}

		if err := d.fullBlockWrite(ctx, cur, remaining[:blockSize]); err != nil {
			return err
		}
		cur += blockSize
		remaining = remaining[blockSize:]
	}
	return nil
}

// partialBlockWrite clears the target's program buffer (the probe reuses
// it to service this command; stale instructions can otherwise fault the
// target), then issues the ≤64-byte write. The probe can only write
// 16-bit-aligned, even-length chunks, so an unaligned addr or odd-length
// chunk is serviced by a driver-side read-modify-write: read the
// enclosing even-aligned, even-length chunk via the ordinary (non-flash)
// read path, splice chunk into it, and write the expanded range instead —
// mirroring the AVR8 driver's paged read-modify-write
// (internal/target/avr8/memory.go's writePaged).
func (d *Driver) partialBlockWrite(ctx context.Context, addr uint32, chunk []byte) error {
	writeAddr, payload := addr, chunk
	if addr%2 != 0 || len(chunk)%2 != 0 {
		alignedAddr := addr &^ 1
		alignedLen := int(addr-alignedAddr) + len(chunk)
		if alignedLen%2 != 0 {
			alignedLen++
		}
		existing, err := d.ReadMemory(ctx, alignedAddr, alignedLen)
		if err != nil {
			return err
		}
		copy(existing[addr-alignedAddr:], chunk)
		writeAddr, payload = alignedAddr, existing
	}

	if err := d.clearProgramBuffer(ctx); err != nil {
		return err
	}
	if err := d.probe.PreparePartialFlashBlockWrite(ctx, writeAddr, byte(len(payload))); err != nil {
		return err
	}
	if _, err := d.probe.WriteDataPayload(ctx, payload); err != nil {
		return err
	}
	cmderr, err := d.abstractCommandError(ctx)
	if err != nil {
		return err
	}
	// BUSY is treated as success in this specific context: a known probe
	// quirk when a partial write follows a full-block write.
	if cmderr != AbstractCmdErrNone && cmderr != AbstractCmdErrBusy {
		return coreerr.NewTargetOperationFailure(int(cmderr), "partial flash block write failed")
	}
	return nil
}

// fullBlockWrite writes one whole block and resynchronises the probe
// afterwards with the detach/GetDeviceInfo/attach sequence spec.md §4.3
// requires.
func (d *Driver) fullBlockWrite(ctx context.Context, addr uint32, block []byte) error {
	if err := d.probe.SetFlashWriteRegion(ctx, addr, uint32(len(block))); err != nil {
		return err
	}
	if err := d.probe.StartRamCodeWrite(ctx); err != nil {
		return err
	}
	ok, err := d.probe.WriteDataPayload(ctx, block)
	if err != nil {
		return err
	}
	if !ok {
		return coreerr.NewDeviceCommunicationFailure("riscv: full-block flash write payload rejected by probe")
	}
	if err := d.probe.WriteFlash(ctx); err != nil {
		return err
	}
	if err := d.probe.EndRamCodeWrite(ctx); err != nil {
		return err
	}
	if err := d.probe.EndProgrammingSession(ctx); err != nil {
		return err
	}
	return d.probe.Reattach(ctx)
}

func (d *Driver) clearProgramBuffer(ctx context.Context) error {
	for i := byte(0); i < 4; i++ {
		if err := d.probe.DMIWrite(ctx, RegProgBuf0+i, 0); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) abstractCommandError(ctx context.Context) (AbstractCommandError, error) {
	val, err := d.probe.DMIRead(ctx, RegAbstractCS)
	if err != nil {
		return 0, err
	}
	return AbstractCommandError((val >> 8) & 0x7), nil
}
